// Package layout implements the default on-disk naming policy for
// downloaded chapters: <root>/<source>/<manga>/<chapter>.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vaginadesolator/tachiyomi/internal/download"
)

// Dir maps sources, manga, and chapters to library paths.
type Dir struct {
	root string
}

var _ download.Layout = (*Dir)(nil)

// New creates a layout rooted at the library directory.
func New(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the library root path.
func (d *Dir) Root() string {
	return d.root
}

// RootDir returns the directory holding a manga's chapters for a source,
// creating it if needed.
func (d *Dir) RootDir(sourceName string, manga download.Manga) (string, error) {
	p := filepath.Join(d.root, Sanitize(sourceName), Sanitize(manga.Title))
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("create manga directory: %w", err)
	}
	return p, nil
}

// ChapterDirName returns the committed directory name for a chapter,
// prefixed with the scanlator when one is known.
func (d *Dir) ChapterDirName(chapter download.Chapter) string {
	name := chapter.Name
	if chapter.Scanlator != "" {
		name = chapter.Scanlator + "_" + name
	}
	return Sanitize(name)
}

// ExistingDir returns the committed directory for a chapter if it already
// exists on disk, meaning the chapter is fully downloaded.
func (d *Dir) ExistingDir(sourceName string, manga download.Manga, chapter download.Chapter) (string, bool) {
	p := filepath.Join(d.root, Sanitize(sourceName), Sanitize(manga.Title), d.ChapterDirName(chapter))
	info, err := os.Stat(p)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return p, true
}

// Sanitize strips characters that are unsafe in directory names.
func Sanitize(name string) string {
	s := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	s = strings.Trim(s, " .")
	if s == "" {
		return "_"
	}
	return s
}
