package download

import (
	"fmt"
	"sync"
)

// Status represents the lifecycle state of a queued chapter download.
type Status string

const (
	// StatusNotStarted means the download has been created but never dispatched.
	StatusNotStarted Status = "NotStarted"

	// StatusQueued means the download is waiting for its source worker.
	StatusQueued Status = "Queued"

	// StatusActive means the download's pages are being fetched.
	StatusActive Status = "Active"

	// StatusDone means every page was staged and the chapter was committed.
	StatusDone Status = "Done"

	// StatusFailed means the download gave up (it stays in the queue so the
	// caller can retry by re-dispatching).
	StatusFailed Status = "Failed"
)

// String returns the string representation of Status.
func (s Status) String() string {
	return string(s)
}

// PageStatus represents the state of a single page within a chapter.
type PageStatus string

const (
	PagePending  PageStatus = "Pending"
	PageFetching PageStatus = "Fetching"
	PageReady    PageStatus = "Ready"
	PageFailed   PageStatus = "Failed"
)

// Page is one image within a chapter.
type Page struct {
	// Index is the page's position within the chapter, fixed at creation.
	// Filenames are derived from it, so it must never change.
	Index int

	// RemoteRef is an opaque locator for the image bytes. Empty means there
	// is nothing to fetch for this page.
	RemoteRef string

	Status   PageStatus
	Progress int // 0-100, coarse UI hint

	// LocalRef is the staged file path, set once bytes are on disk.
	LocalRef string
}

// Manga identifies the collection a chapter belongs to.
type Manga struct {
	ID    int64
	Title string
}

// Chapter identifies one downloadable chapter of a manga.
type Chapter struct {
	ID        int64
	Name      string
	Scanlator string

	// URL locates the chapter's page list for sources that resolve page
	// lists over HTTP. Sources with their own addressing may ignore it.
	URL string
}

// Identity is the unique key of a download: the queue never holds two
// downloads with the same identity. It is also the unit of persistence.
type Identity struct {
	SourceID  int64 `json:"source_id"`
	MangaID   int64 `json:"manga_id"`
	ChapterID int64 `json:"chapter_id"`
}

func (id Identity) String() string {
	return fmt.Sprintf("%d/%d/%d", id.SourceID, id.MangaID, id.ChapterID)
}

// Download is one chapter's download job. The orchestrator owns it while it
// is queued; status and page mutations go through the queue so observers see
// every transition. Reads from other goroutines may be stale.
type Download struct {
	SourceID int64
	Manga    Manga
	Chapter  Chapter

	mu        sync.Mutex
	status    Status
	pages     []*Page
	completed int
}

// New creates a download in the NotStarted state.
func New(sourceID int64, manga Manga, chapter Chapter) *Download {
	return &Download{
		SourceID: sourceID,
		Manga:    manga,
		Chapter:  chapter,
		status:   StatusNotStarted,
	}
}

// Identity returns the download's unique (source, manga, chapter) key.
func (d *Download) Identity() Identity {
	return Identity{SourceID: d.SourceID, MangaID: d.Manga.ID, ChapterID: d.Chapter.ID}
}

// Status returns the current lifecycle state.
func (d *Download) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Download) setStatus(s Status) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

// Pages returns the resolved page list, or nil if it has not been fetched.
func (d *Download) Pages() []*Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pages
}

func (d *Download) setPages(pages []*Page) {
	d.mu.Lock()
	d.pages = pages
	d.mu.Unlock()
}

// Completed returns the number of pages staged so far. It is monotonically
// non-decreasing while the download is active.
func (d *Download) Completed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completed
}

func (d *Download) setCompleted(n int) {
	d.mu.Lock()
	d.completed = n
	d.mu.Unlock()
}

func (d *Download) incCompleted() {
	d.mu.Lock()
	d.completed++
	d.mu.Unlock()
}

// updatePage applies mutate to p under the download's lock and returns a
// copy safe to hand to observers.
func (d *Download) updatePage(p *Page, mutate func(*Page)) Page {
	d.mu.Lock()
	mutate(p)
	cp := *p
	d.mu.Unlock()
	return cp
}
