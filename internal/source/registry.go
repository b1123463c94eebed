// Package source holds concrete content providers. The downloader depends
// only on the download.Source interface; implementations register here.
package source

import (
	"sync"

	"github.com/vaginadesolator/tachiyomi/internal/download"
)

// Registry resolves source ids to their implementations.
type Registry struct {
	mu      sync.RWMutex
	sources map[int64]download.Source
}

var _ download.SourceLookup = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[int64]download.Source)}
}

// Register adds a source, replacing any previous one with the same id.
func (r *Registry) Register(s download.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.ID()] = s
}

// Source returns the source registered under id.
func (r *Registry) Source(id int64) (download.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[id]
	return s, ok
}
