package download

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	// tmpDirSuffix marks a chapter directory that has not been committed.
	tmpDirSuffix = "_tmp"

	// tmpExt marks a page file whose download was interrupted. Such files
	// are deleted on the next dispatch and the page refetched from scratch.
	tmpExt = ".tmp"

	// nomediaFile keeps media scanners out of committed chapter directories.
	nomediaFile = ".nomedia"
)

// stager owns the staging directory protocol: creation, cleanup of
// interrupted page files, completeness counting, and the atomic rename that
// makes a chapter visible. The rename is the single commit point and never
// happens on a partial chapter.
type stager struct {
	log *slog.Logger
}

func newStager(logger *slog.Logger) *stager {
	if logger == nil {
		logger = slog.Default()
	}
	return &stager{log: logger.With("component", "stager")}
}

// stagingDir returns the temporary directory for a chapter inside root.
func (s *stager) stagingDir(root, chapterDir string) string {
	return filepath.Join(root, chapterDir+tmpDirSuffix)
}

// finalDir returns the committed directory for a chapter inside root.
func (s *stager) finalDir(root, chapterDir string) string {
	return filepath.Join(root, chapterDir)
}

// prepare creates the staging directory if needed, deletes leftover .tmp
// files from an interrupted run, and returns the number of finished page
// files already present, enabling resume.
func (s *stager) prepare(dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create staging directory: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read staging directory: %w", err)
	}

	finished := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, tmpExt) {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return 0, fmt.Errorf("remove interrupted page file: %w", err)
			}
			s.log.Debug("removed interrupted page file", "file", name)
			continue
		}
		if name == nomediaFile {
			continue
		}
		finished++
	}
	return finished, nil
}

// finishedCount counts complete page files in dir. A missing directory
// counts as zero.
func (s *stager) finishedCount(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read staging directory: %w", err)
	}
	finished := 0
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == nomediaFile {
			continue
		}
		if strings.HasSuffix(entry.Name(), tmpExt) {
			continue
		}
		finished++
	}
	return finished, nil
}

// finishedFile returns the finished file for a page prefix (e.g. "003"),
// if one exists. Interrupted .tmp files do not count.
func (s *stager) finishedFile(dir, prefix string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+".*"))
	if err != nil {
		return "", false
	}
	for _, m := range matches {
		if strings.HasSuffix(m, tmpExt) {
			continue
		}
		return m, true
	}
	return "", false
}

// commit renames the staging directory to its final name and drops the
// media-scanner marker inside. It must only be called once completeness has
// been verified; after the rename the chapter is visible to every other
// reader of the filesystem.
func (s *stager) commit(staging, final string) error {
	if err := os.Rename(staging, final); err != nil {
		return fmt.Errorf("commit chapter directory: %w", err)
	}
	marker := filepath.Join(final, nomediaFile)
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		s.log.Warn("failed to write media marker", "path", marker, "error", err)
	}
	return nil
}
