package download

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultMaxConcurrentSources caps how many sources download at once.
	DefaultMaxConcurrentSources = 5

	// DefaultPageConcurrency caps in-flight pages within one chapter.
	DefaultPageConcurrency = 5

	// DefaultRetryCount is the number of retries after the initial attempt.
	DefaultRetryCount = 3

	// DefaultRetryDelay is the first retry delay; it doubles per retry.
	DefaultRetryDelay = 2 * time.Second

	// DefaultMinFreeSpace is the free-space floor below which downloads
	// fail before any staging directory is created.
	DefaultMinFreeSpace = 50 * 1024 * 1024
)

// Config tunes the downloader. Zero values fall back to defaults.
type Config struct {
	MaxConcurrentSources int
	PageConcurrency      int
	RetryCount           int
	RetryDelay           time.Duration
	MinFreeSpace         uint64
}

// DefaultConfig returns the downloader defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentSources: DefaultMaxConcurrentSources,
		PageConcurrency:      DefaultPageConcurrency,
		RetryCount:           DefaultRetryCount,
		RetryDelay:           DefaultRetryDelay,
		MinFreeSpace:         DefaultMinFreeSpace,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentSources <= 0 {
		c.MaxConcurrentSources = DefaultMaxConcurrentSources
	}
	if c.PageConcurrency <= 0 {
		c.PageConcurrency = DefaultPageConcurrency
	}
	if c.RetryCount < 0 {
		c.RetryCount = DefaultRetryCount
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MinFreeSpace == 0 {
		c.MinFreeSpace = DefaultMinFreeSpace
	}
	return c
}

// Downloader owns the download lifecycle. One worker goroutine runs per
// distinct source, processing that source's chapters sequentially; at most
// MaxConcurrentSources workers run at once. Structural queue mutation and
// lifecycle transitions are confined to callers of the exported methods and
// the workers' completion paths, both serialized through d.mu.
type Downloader struct {
	queue   *Queue
	sources SourceLookup
	layout  Layout
	cache   Cache
	stager  *stager
	log     *slog.Logger

	mu         sync.Mutex
	cfg        Config
	running    bool
	paused     bool
	gen        int
	ctx        context.Context
	cancel     context.CancelFunc
	active     map[int64]struct{}
	runningCbs []func(bool)
}

// NewDownloader wires the orchestrator. cache may be nil to disable the
// shared image cache.
func NewDownloader(cfg Config, queue *Queue, sources SourceLookup, layout Layout, cache Cache, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		queue:   queue,
		sources: sources,
		layout:  layout,
		cache:   cache,
		stager:  newStager(logger),
		log:     logger.With("component", "downloader"),
		cfg:     cfg.withDefaults(),
		active:  make(map[int64]struct{}),
	}
}

// Queue exposes the underlying queue for observers.
func (d *Downloader) Queue() *Queue {
	return d.queue
}

// Running reports whether the worker topology is up.
func (d *Downloader) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Paused reports whether the last teardown was a pause.
func (d *Downloader) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// OnRunningChange registers a callback invoked (on its own goroutine) when
// the running state flips.
func (d *Downloader) OnRunningChange(fn func(bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runningCbs = append(d.runningCbs, fn)
}

// UpdateConfig swaps the tunables. Items dispatched after the call use the
// new values.
func (d *Downloader) UpdateConfig(cfg Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg.withDefaults()
}

// Start brings up the worker topology and dispatches pending downloads.
// It is a no-op when already running or when the queue is empty; the return
// value reports whether any work was dispatched.
func (d *Downloader) Start() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return false
	}
	if d.queue.Len() == 0 {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.ctx = ctx
	d.cancel = cancel
	d.gen++
	d.running = true
	d.paused = false

	// Nothing is running yet, so any Active status is stale; requeue
	// everything that is not Done.
	for _, dl := range d.queue.Items() {
		if s := dl.Status(); s != StatusDone && s != StatusQueued {
			d.queue.SetStatus(dl, StatusQueued)
		}
	}

	pending := d.dispatchLocked()
	d.log.Info("downloader started", "pending", pending)
	d.notifyRunningLocked(true)
	return pending > 0
}

// Stop tears down the worker topology immediately. In-flight work is
// abandoned, not awaited; active downloads revert to Failed so the caller
// can re-dispatch them. A non-empty reason is surfaced as a warning.
func (d *Downloader) Stop(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked(reason, StatusFailed)
	d.paused = false
}

// Pause tears down the worker topology; active downloads revert to Queued
// so a later Start resumes them from their partial files.
func (d *Downloader) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
	d.stopLocked("", StatusQueued)
}

// ClearQueue tears everything down and empties the queue. With resetStatus,
// queued downloads rewind to NotStarted first so callers observing them see
// a deliberate cancel rather than a pending item.
func (d *Downloader) ClearQueue(resetStatus bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked("", StatusQueued)
	if resetStatus {
		for _, dl := range d.queue.Items() {
			if dl.Status() == StatusQueued {
				d.queue.SetStatus(dl, StatusNotStarted)
			}
		}
	}
	d.queue.Clear()
	d.paused = false
}

// Enqueue wraps chapters already filtered into Downloads, skips those whose
// committed directory exists on disk and those already queued, and adds the
// rest. When running, new work is dispatched immediately; otherwise, with
// autoStart set and the queue previously empty, the downloader starts
// itself. Returns how many downloads were enqueued.
func (d *Downloader) Enqueue(downloads []*Download, autoStart bool) int {
	keep := make([]*Download, 0, len(downloads))
	seen := make(map[Identity]struct{}, len(downloads))
	for _, dl := range downloads {
		id := dl.Identity()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if d.queue.Contains(id) {
			continue
		}
		if src, ok := d.sources.Source(dl.SourceID); ok {
			if _, exists := d.layout.ExistingDir(src.Name(), dl.Manga, dl.Chapter); exists {
				d.log.Debug("skipping already downloaded chapter",
					"manga", dl.Manga.Title, "chapter", dl.Chapter.Name)
				continue
			}
		}
		keep = append(keep, dl)
	}

	wasEmpty := d.queue.Len() == 0
	added := d.queue.Add(keep...)
	if added == 0 {
		return 0
	}

	d.mu.Lock()
	if d.running {
		d.dispatchLocked()
		d.mu.Unlock()
		return added
	}
	d.mu.Unlock()

	if autoStart && wasEmpty {
		d.Start()
	}
	return added
}

// dispatchLocked spawns a worker for each source that has queued downloads
// and no worker yet, up to the source cap. Returns the number of queued
// downloads observed.
func (d *Downloader) dispatchLocked() int {
	if !d.running || d.ctx == nil {
		return 0
	}
	pending := 0
	for _, dl := range d.queue.Items() {
		if dl.Status() != StatusQueued {
			continue
		}
		pending++
		src := dl.SourceID
		if _, up := d.active[src]; up {
			continue
		}
		if len(d.active) >= d.cfg.MaxConcurrentSources {
			continue
		}
		d.active[src] = struct{}{}
		go d.runSource(d.ctx, d.gen, src)
	}
	return pending
}

// runSource is the sequential worker for one source: it drains that
// source's queued downloads one chapter at a time. A panic escaping the
// pipeline tears the whole downloader down rather than silently resuming.
func (d *Downloader) runSource(ctx context.Context, gen int, sourceID int64) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("source worker panic", "source_id", sourceID, "panic", r)
			d.Stop(fmt.Sprintf("internal error: %v", r))
			return
		}
		d.sourceDone(gen, sourceID)
	}()

	for ctx.Err() == nil {
		dl := d.queue.Find(func(dl *Download) bool {
			return dl.SourceID == sourceID && dl.Status() == StatusQueued
		})
		if dl == nil {
			return
		}

		d.mu.Lock()
		cfg := d.cfg
		d.mu.Unlock()

		d.queue.SetStatus(dl, StatusActive)
		err := d.downloadChapter(ctx, cfg, dl)
		if ctx.Err() != nil {
			// Teardown already reassigned the active statuses.
			return
		}
		if err != nil {
			d.queue.SetStatus(dl, StatusFailed)
			d.log.Warn("chapter download failed",
				"manga", dl.Manga.Title,
				"chapter", dl.Chapter.Name,
				"error", err,
			)
			continue
		}

		d.queue.SetStatus(dl, StatusDone)
		d.queue.Remove(dl)
		d.log.Info("chapter downloaded",
			"manga", dl.Manga.Title,
			"chapter", dl.Chapter.Name,
			"pages", len(dl.Pages()),
		)
	}
}

// sourceDone releases the worker's slot, hands it to any waiting source,
// and stops the downloader once nothing is queued or active.
func (d *Downloader) sourceDone(gen int, sourceID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.gen || !d.running {
		return
	}
	delete(d.active, sourceID)
	d.dispatchLocked()

	if len(d.active) == 0 && !d.hasPendingLocked() {
		d.log.Info("download queue drained")
		d.stopLocked("", StatusFailed)
	}
}

func (d *Downloader) hasPendingLocked() bool {
	return d.queue.Find(func(dl *Download) bool {
		s := dl.Status()
		return s == StatusQueued || s == StatusActive
	}) != nil
}

// stopLocked cancels the worker context, reverts active downloads to the
// given status, and flips the running signal.
func (d *Downloader) stopLocked(reason string, revert Status) {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
		d.ctx = nil
	}
	d.gen++
	d.active = make(map[int64]struct{})

	for _, dl := range d.queue.Items() {
		if dl.Status() == StatusActive {
			d.queue.SetStatus(dl, revert)
		}
	}

	if !d.running {
		return
	}
	d.running = false

	switch {
	case reason != "":
		d.log.Warn("downloader stopped", "reason", reason)
	case d.paused:
		d.log.Info("downloader paused")
	default:
		d.log.Info("downloader stopped")
	}
	d.notifyRunningLocked(false)
}

func (d *Downloader) notifyRunningLocked(running bool) {
	for _, fn := range d.runningCbs {
		go fn(running)
	}
}
