package download

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}

func TestStager_PrepareCleansInterruptedFiles(t *testing.T) {
	s := newStager(nil)
	dir := filepath.Join(t.TempDir(), "chapter_1_tmp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(dir, "001.png"), []byte("a"))
	writeFile(t, filepath.Join(dir, "002.jpg"), []byte("b"))
	writeFile(t, filepath.Join(dir, "003.tmp"), []byte("partial"))

	finished, err := s.prepare(dir)
	if err != nil {
		t.Fatalf("prepare() error = %v", err)
	}
	if finished != 2 {
		t.Errorf("finished = %d, want 2", finished)
	}
	if _, err := os.Stat(filepath.Join(dir, "003.tmp")); !os.IsNotExist(err) {
		t.Error("interrupted .tmp file was not removed")
	}
}

func TestStager_PrepareCreatesMissingDirectory(t *testing.T) {
	s := newStager(nil)
	dir := filepath.Join(t.TempDir(), "fresh_tmp")

	finished, err := s.prepare(dir)
	if err != nil {
		t.Fatalf("prepare() error = %v", err)
	}
	if finished != 0 {
		t.Errorf("finished = %d, want 0", finished)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Error("staging directory was not created")
	}
}

func TestStager_FinishedCount(t *testing.T) {
	s := newStager(nil)
	dir := t.TempDir()

	if n, err := s.finishedCount(filepath.Join(dir, "missing")); err != nil || n != 0 {
		t.Errorf("finishedCount(missing) = %d, %v, want 0, nil", n, err)
	}

	writeFile(t, filepath.Join(dir, "001.png"), []byte("a"))
	writeFile(t, filepath.Join(dir, "002.tmp"), []byte("partial"))
	writeFile(t, filepath.Join(dir, nomediaFile), nil)

	n, err := s.finishedCount(dir)
	if err != nil {
		t.Fatalf("finishedCount() error = %v", err)
	}
	if n != 1 {
		t.Errorf("finishedCount() = %d, want 1 (tmp and marker excluded)", n)
	}
}

func TestStager_FinishedFile(t *testing.T) {
	s := newStager(nil)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "001.png"), []byte("a"))
	writeFile(t, filepath.Join(dir, "002.tmp"), []byte("partial"))

	if got, ok := s.finishedFile(dir, "001"); !ok || got != filepath.Join(dir, "001.png") {
		t.Errorf("finishedFile(001) = %q, %v", got, ok)
	}
	if _, ok := s.finishedFile(dir, "002"); ok {
		t.Error("finishedFile(002) matched a .tmp file")
	}
	if _, ok := s.finishedFile(dir, "003"); ok {
		t.Error("finishedFile(003) matched a missing file")
	}
}

func TestStager_CommitRenamesAndWritesMarker(t *testing.T) {
	s := newStager(nil)
	root := t.TempDir()
	staging := filepath.Join(root, "chapter_1"+tmpDirSuffix)
	final := filepath.Join(root, "chapter_1")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(staging, "001.png"), []byte("a"))

	if err := s.commit(staging, final); err != nil {
		t.Fatalf("commit() error = %v", err)
	}

	if _, err := os.Stat(staging); !os.IsNotExist(err) {
		t.Error("staging directory still exists after commit")
	}
	if _, err := os.Stat(filepath.Join(final, "001.png")); err != nil {
		t.Errorf("page file missing after commit: %v", err)
	}
	if _, err := os.Stat(filepath.Join(final, nomediaFile)); err != nil {
		t.Errorf("media marker missing after commit: %v", err)
	}
}
