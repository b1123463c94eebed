package download_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vaginadesolator/tachiyomi/internal/download"
)

// pngData carries a real PNG signature so extension sniffing resolves it.
var pngData = []byte("\x89PNG\r\n\x1a\n" + strings.Repeat("x", 64))

// failForever marks a page ref that never succeeds.
const failForever = -1

// mockSource is a scriptable content provider for downloader tests.
type mockSource struct {
	id    int64
	name  string
	ctype string
	data  []byte

	pageCount int
	listErr   error

	mu         sync.Mutex
	listCalls  int
	imageCalls map[string]int
	failRefs   map[string]int

	// hook runs inside FetchImage before bytes are returned; tests use it
	// to block workers or inject failures.
	hook func(ctx context.Context, p *download.Page) error
}

func newMockSource(id int64, name string) *mockSource {
	return &mockSource{
		id:         id,
		name:       name,
		ctype:      "image/png",
		data:       pngData,
		pageCount:  3,
		imageCalls: make(map[string]int),
		failRefs:   make(map[string]int),
	}
}

func (s *mockSource) ID() int64 {
	return s.id
}

func (s *mockSource) Name() string {
	return s.name
}

// ref is deterministic so resume tests can target specific pages.
func (s *mockSource) ref(chapterID int64, index int) string {
	return fmt.Sprintf("https://mock.example/%d/%d/%03d.png", s.id, chapterID, index+1)
}

func (s *mockSource) failPage(chapterID int64, index, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefs[s.ref(chapterID, index)] = times
}

func (s *mockSource) FetchPageList(ctx context.Context, chapter download.Chapter) ([]*download.Page, error) {
	s.mu.Lock()
	s.listCalls++
	s.mu.Unlock()

	if s.listErr != nil {
		return nil, s.listErr
	}
	pages := make([]*download.Page, s.pageCount)
	for i := range pages {
		pages[i] = &download.Page{
			Index:     i,
			RemoteRef: s.ref(chapter.ID, i),
			Status:    download.PagePending,
		}
	}
	return pages, nil
}

func (s *mockSource) FetchImage(ctx context.Context, p *download.Page) (io.ReadCloser, string, error) {
	s.mu.Lock()
	s.imageCalls[p.RemoteRef]++
	remaining := s.failRefs[p.RemoteRef]
	if remaining != 0 {
		if remaining > 0 {
			s.failRefs[p.RemoteRef] = remaining - 1
		}
		s.mu.Unlock()
		return nil, "", errors.New("simulated network failure")
	}
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, p); err != nil {
			return nil, "", err
		}
	}
	return io.NopCloser(bytes.NewReader(s.data)), s.ctype, nil
}

func (s *mockSource) imageCallCount(ref string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imageCalls[ref]
}

func (s *mockSource) totalImageCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.imageCalls {
		total += n
	}
	return total
}

func (s *mockSource) pageListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out after %v waiting for %s", timeout, msg)
}

// statusRecorder drains a status subscription into memory so publishers
// never block on a full channel.
type statusRecorder struct {
	mu     sync.Mutex
	events []download.StatusEvent
	cancel func()
}

func recordStatuses(q *download.Queue) *statusRecorder {
	ch, cancel := q.StatusEvents()
	r := &statusRecorder{cancel: cancel}
	go func() {
		for ev := range ch {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *statusRecorder) statuses(id download.Identity) []download.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []download.Status
	for _, ev := range r.events {
		if ev.Download.Identity() == id {
			out = append(out, ev.Status)
		}
	}
	return out
}
