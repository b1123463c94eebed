package download_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vaginadesolator/tachiyomi/internal/download"
)

func storeResolver() download.Resolver {
	return download.ResolverFunc(func(ctx context.Context, id download.Identity) (*download.Download, error) {
		if id.MangaID == 0 {
			return nil, errors.New("manga deleted")
		}
		return download.New(id.SourceID,
			download.Manga{ID: id.MangaID, Title: "Restored"},
			download.Chapter{ID: id.ChapterID, Name: "Restored Chapter"},
		), nil
	})
}

func TestStore_SaveRestoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	store := download.NewStore(path, testLogger())

	ids := []download.Identity{
		{SourceID: 1, MangaID: 10, ChapterID: 100},
		{SourceID: 2, MangaID: 20, ChapterID: 200},
	}
	if err := store.Save(ids); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	restored := store.Restore(t.Context(), storeResolver())
	if len(restored) != 2 {
		t.Fatalf("Restore() returned %d downloads, want 2", len(restored))
	}
	for i, d := range restored {
		if d.Identity() != ids[i] {
			t.Errorf("restored[%d] identity = %v, want %v", i, d.Identity(), ids[i])
		}
	}
}

func TestStore_RestoreMissingFile(t *testing.T) {
	store := download.NewStore(filepath.Join(t.TempDir(), "absent.json"), testLogger())
	if got := store.Restore(t.Context(), storeResolver()); len(got) != 0 {
		t.Errorf("Restore(missing) returned %d downloads, want 0", len(got))
	}
}

func TestStore_RestoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := download.NewStore(path, testLogger())
	if got := store.Restore(t.Context(), storeResolver()); len(got) != 0 {
		t.Errorf("Restore(corrupt) returned %d downloads, want 0", len(got))
	}
}

func TestStore_RestoreDropsUnresolvable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	store := download.NewStore(path, testLogger())

	if err := store.Save([]download.Identity{
		{SourceID: 1, MangaID: 10, ChapterID: 100},
		{SourceID: 1, MangaID: 0, ChapterID: 101}, // resolver rejects MangaID 0
	}); err != nil {
		t.Fatal(err)
	}

	restored := store.Restore(t.Context(), storeResolver())
	if len(restored) != 1 {
		t.Fatalf("Restore() returned %d downloads, want 1", len(restored))
	}
	if restored[0].Chapter.ID != 100 {
		t.Errorf("kept chapter id = %d, want 100", restored[0].Chapter.ID)
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	store := download.NewStore(path, testLogger())

	if err := store.Save([]download.Identity{{SourceID: 1, MangaID: 10, ChapterID: 100}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(nil); err != nil {
		t.Fatal(err)
	}
	if got := store.Restore(t.Context(), storeResolver()); len(got) != 0 {
		t.Errorf("Restore() after empty Save returned %d downloads, want 0", len(got))
	}
}
