package source

import "testing"

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(NewHTTP(7, "seven", nil))

	src, ok := r.Source(7)
	if !ok {
		t.Fatal("Source(7) not found")
	}
	if src.Name() != "seven" {
		t.Errorf("Name() = %s, want seven", src.Name())
	}

	if _, ok := r.Source(8); ok {
		t.Error("Source(8) found, want miss")
	}
}

func TestRegistryRegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	r.Register(NewHTTP(1, "old", nil))
	r.Register(NewHTTP(1, "new", nil))

	src, ok := r.Source(1)
	if !ok {
		t.Fatal("Source(1) not found")
	}
	if src.Name() != "new" {
		t.Errorf("Name() = %s, want new", src.Name())
	}
}
