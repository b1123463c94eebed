package download

import "sync"

// StatusEvent is broadcast on every download status transition. Delivery is
// reliable: subscribers receive every event, in order, per subscription.
type StatusEvent struct {
	Download *Download
	Status   Status
}

// ProgressEvent is broadcast on page progress. Delivery is latest-only: a
// slow subscriber sees the most recent event, intermediate ones may be
// dropped. Page is a copy taken at publish time.
type ProgressEvent struct {
	Download *Download
	Page     Page
}

// statusBufferSize absorbs bursts so publishers rarely block. Beyond the
// buffer a send blocks rather than drop: status transitions are the one
// stream observers must never miss.
const statusBufferSize = 64

type statusHub struct {
	mu   sync.Mutex
	subs map[int]chan StatusEvent
	next int
}

func newStatusHub() *statusHub {
	return &statusHub{subs: make(map[int]chan StatusEvent)}
}

func (h *statusHub) subscribe() (<-chan StatusEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan StatusEvent, statusBufferSize)
	h.subs[id] = ch

	// cancel unsubscribes without closing: a publisher may hold a snapshot
	// of the channel, and sending on a closed channel panics.
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
	return ch, cancel
}

func (h *statusHub) publish(ev StatusEvent) {
	h.mu.Lock()
	chans := make([]chan StatusEvent, 0, len(h.subs))
	for _, ch := range h.subs {
		chans = append(chans, ch)
	}
	h.mu.Unlock()

	for _, ch := range chans {
		ch <- ev
	}
}

type progressHub struct {
	mu   sync.Mutex
	subs map[int]chan ProgressEvent
	next int
}

func newProgressHub() *progressHub {
	return &progressHub{subs: make(map[int]chan ProgressEvent)}
}

func (h *progressHub) subscribe() (<-chan ProgressEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	// Capacity 1: the channel holds only the latest unread event.
	ch := make(chan ProgressEvent, 1)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
	return ch, cancel
}

// publish replaces a pending unread event instead of blocking.
func (h *progressHub) publish(ev ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
