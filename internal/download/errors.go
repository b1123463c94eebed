package download

import "errors"

var (
	// ErrInsufficientSpace is returned when the library volume is below the
	// free-space floor. No staging directory is created in that case.
	ErrInsufficientSpace = errors.New("not enough free disk space")

	// ErrEmptyPageList is returned when a source resolves a chapter to zero
	// pages. The whole download fails.
	ErrEmptyPageList = errors.New("page list is empty")

	// ErrIncompleteCommit is returned when the staged file count does not
	// match the page count at commit time. The staging directory is kept
	// for a later resume and is never renamed.
	ErrIncompleteCommit = errors.New("not all pages were downloaded")

	// ErrUnknownSource is returned when a download references a source id
	// that is not registered.
	ErrUnknownSource = errors.New("unknown source")
)
