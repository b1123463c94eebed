package download

import (
	"testing"
	"time"
)

func TestStatusHub_DeliversEveryEvent(t *testing.T) {
	h := newStatusHub()
	ch, cancel := h.subscribe()
	defer cancel()

	d := New(1, Manga{ID: 1, Title: "m"}, Chapter{ID: 1, Name: "c"})
	for _, s := range []Status{StatusQueued, StatusActive, StatusDone} {
		h.publish(StatusEvent{Download: d, Status: s})
	}

	want := []Status{StatusQueued, StatusActive, StatusDone}
	for i, w := range want {
		select {
		case ev := <-ch:
			if ev.Status != w {
				t.Errorf("event %d = %s, want %s", i, ev.Status, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestStatusHub_IndependentSubscribers(t *testing.T) {
	h := newStatusHub()
	a, cancelA := h.subscribe()
	defer cancelA()
	b, cancelB := h.subscribe()
	defer cancelB()

	d := New(1, Manga{}, Chapter{})
	h.publish(StatusEvent{Download: d, Status: StatusQueued})

	for name, ch := range map[string]<-chan StatusEvent{"a": a, "b": b} {
		select {
		case ev := <-ch:
			if ev.Status != StatusQueued {
				t.Errorf("subscriber %s got %s", name, ev.Status)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s got nothing", name)
		}
	}
}

func TestStatusHub_CancelStopsDelivery(t *testing.T) {
	h := newStatusHub()
	ch, cancel := h.subscribe()
	cancel()

	h.publish(StatusEvent{Download: New(1, Manga{}, Chapter{}), Status: StatusQueued})

	select {
	case <-ch:
		t.Error("received event after cancel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProgressHub_KeepsOnlyLatest(t *testing.T) {
	h := newProgressHub()
	ch, cancel := h.subscribe()
	defer cancel()

	d := New(1, Manga{}, Chapter{})
	// Nobody is reading: intermediate events must be replaced, not queued.
	for i := 0; i < 10; i++ {
		h.publish(ProgressEvent{Download: d, Page: Page{Index: i}})
	}

	select {
	case ev := <-ch:
		if ev.Page.Index != 9 {
			t.Errorf("got page index %d, want the latest (9)", ev.Page.Index)
		}
	case <-time.After(time.Second):
		t.Fatal("no progress event delivered")
	}

	select {
	case ev := <-ch:
		t.Errorf("unexpected second event for page %d", ev.Page.Index)
	case <-time.After(50 * time.Millisecond):
	}
}
