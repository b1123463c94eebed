package download

import (
	"context"
	"io"
)

// Source fetches chapter content from a remote site. Implementations live
// per-site; the downloader only ever sees this interface. FetchImage must be
// idempotent: it is retried on failure.
type Source interface {
	// ID is the stable source identifier used for grouping and persistence.
	ID() int64

	// Name is the human-readable source name, used in paths and logs.
	Name() string

	// FetchPageList resolves a chapter into its ordered pages.
	FetchPageList(ctx context.Context, chapter Chapter) ([]*Page, error)

	// FetchImage streams one page's bytes. The second return is the
	// response content type, which may be empty.
	FetchImage(ctx context.Context, page *Page) (io.ReadCloser, string, error)
}

// SourceLookup resolves a source id to its implementation.
type SourceLookup interface {
	Source(id int64) (Source, bool)
}

// Layout decides where chapters live on disk. The downloader depends on it
// for the duplicate-skip check, the staging location, and the committed
// directory name.
type Layout interface {
	// RootDir returns (creating if necessary) the directory holding a
	// manga's chapters for a source.
	RootDir(sourceName string, manga Manga) (string, error)

	// ExistingDir returns the committed directory for a chapter if the
	// chapter is already fully downloaded.
	ExistingDir(sourceName string, manga Manga, chapter Chapter) (string, bool)

	// ChapterDirName returns the final directory name for a chapter.
	ChapterDirName(chapter Chapter) string
}

// Cache is the shared image cache consulted before hitting the network.
// Has and Get may be called concurrently; Remove is called by the consuming
// pipeline after a successful copy.
type Cache interface {
	Has(ref string) bool

	// Get returns the local path of a cached image.
	Get(ref string) (string, bool)

	Remove(ref string) error

	// RegisterFinished records a committed chapter directory in the
	// downloaded-chapter index.
	RegisterFinished(dirName, rootDir string)
}
