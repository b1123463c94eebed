package download

import (
	"log/slog"
	"sync"
)

// Queue is the ordered, duplicate-free list of pending downloads. Structural
// mutation happens from the orchestrator; reads from other goroutines get a
// consistent snapshot that may be stale by the time it is inspected.
//
// The queue performs no I/O itself: every structural change fires an
// asynchronous save through the store.
type Queue struct {
	log   *slog.Logger
	store *Store

	mu    sync.RWMutex
	items []*Download

	status   *statusHub
	progress *progressHub
}

// NewQueue creates an empty queue. store may be nil, in which case nothing
// is persisted.
func NewQueue(store *Store, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		log:      logger.With("component", "queue"),
		store:    store,
		status:   newStatusHub(),
		progress: newProgressHub(),
	}
}

// Add appends downloads that are not already present (by identity), marks
// them Queued, and returns how many were added.
func (q *Queue) Add(downloads ...*Download) int {
	q.mu.Lock()
	added := make([]*Download, 0, len(downloads))
	for _, d := range downloads {
		if q.containsLocked(d.Identity()) {
			continue
		}
		q.items = append(q.items, d)
		added = append(added, d)
	}
	q.mu.Unlock()

	if len(added) == 0 {
		return 0
	}
	for _, d := range added {
		if d.Status() != StatusQueued {
			q.SetStatus(d, StatusQueued)
		}
	}
	q.persist()
	return len(added)
}

// Remove takes a download out of the queue. Its status is left untouched.
func (q *Queue) Remove(d *Download) {
	id := d.Identity()
	q.mu.Lock()
	for i, item := range q.items {
		if item.Identity() == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	q.mu.Unlock()
	q.persist()
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
	q.persist()
}

// Find returns the first download matching pred, in queue order.
func (q *Queue) Find(pred func(*Download) bool) *Download {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, d := range q.items {
		if pred(d) {
			return d
		}
	}
	return nil
}

// Items returns a snapshot of the queue in order.
func (q *Queue) Items() []*Download {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*Download, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of queued downloads.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Contains reports whether a download with the given identity is queued.
func (q *Queue) Contains(id Identity) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.containsLocked(id)
}

func (q *Queue) containsLocked(id Identity) bool {
	for _, d := range q.items {
		if d.Identity() == id {
			return true
		}
	}
	return false
}

// Identities returns the persistable identity list in queue order.
func (q *Queue) Identities() []Identity {
	q.mu.RLock()
	defer q.mu.RUnlock()
	ids := make([]Identity, len(q.items))
	for i, d := range q.items {
		ids[i] = d.Identity()
	}
	return ids
}

// SetStatus updates a download's status in place and broadcasts the
// transition. The download is never replaced, so external holders of the
// pointer observe the change.
func (q *Queue) SetStatus(d *Download, s Status) {
	d.setStatus(s)
	q.status.publish(StatusEvent{Download: d, Status: s})
}

// PublishProgress broadcasts a page progress update.
func (q *Queue) PublishProgress(d *Download, p Page) {
	q.progress.publish(ProgressEvent{Download: d, Page: p})
}

// StatusEvents subscribes to status transitions. Every event is delivered;
// call the returned func to unsubscribe.
func (q *Queue) StatusEvents() (<-chan StatusEvent, func()) {
	return q.status.subscribe()
}

// ProgressEvents subscribes to page progress with latest-only delivery.
func (q *Queue) ProgressEvents() (<-chan ProgressEvent, func()) {
	return q.progress.subscribe()
}

// persist fires an asynchronous save of the current identity list.
func (q *Queue) persist() {
	if q.store == nil {
		return
	}
	ids := q.Identities()
	go func() {
		if err := q.store.Save(ids); err != nil {
			q.log.Warn("failed to persist queue", "error", err)
		}
	}()
}
