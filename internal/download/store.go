package download

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Resolver turns a persisted identity back into a Download, typically by
// looking the manga and chapter up in the library database. Returning an
// error drops the identity: deleted content simply vanishes from the queue.
type Resolver interface {
	Resolve(ctx context.Context, id Identity) (*Download, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, id Identity) (*Download, error)

func (f ResolverFunc) Resolve(ctx context.Context, id Identity) (*Download, error) {
	return f(ctx, id)
}

// Store persists the queue's identity list across restarts. Only identities
// are recorded; page-level progress is reconstructed from the files that
// survive on disk.
type Store struct {
	path string
	log  *slog.Logger

	// Serializes writers so a slow save cannot interleave with a newer one.
	mu sync.Mutex
}

// NewStore creates a store writing to the given file path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, log: logger.With("component", "queue_store")}
}

// Save overwrites the persisted identity list. The write is atomic: data
// goes to a scratch file first and is renamed into place.
func (s *Store) Save(ids []Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ids == nil {
		ids = []Identity{}
	}
	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create queue store directory: %w", err)
	}

	tempPath := fmt.Sprintf("%s.%s.tmp", s.path, uuid.NewString())
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("write queue temp file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename queue file: %w", err)
	}
	return nil
}

// Restore loads persisted identities and resolves each into a Download.
// A missing or corrupt file yields an empty result rather than an error;
// identities that no longer resolve are silently dropped.
func (s *Store) Restore(ctx context.Context, r Resolver) []*Download {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("failed to read queue file", "error", err)
		}
		return nil
	}

	var ids []Identity
	if err := json.Unmarshal(data, &ids); err != nil {
		s.log.Warn("queue file is corrupt, starting empty", "error", err)
		return nil
	}

	downloads := make([]*Download, 0, len(ids))
	for _, id := range ids {
		d, err := r.Resolve(ctx, id)
		if err != nil || d == nil {
			s.log.Debug("dropping unresolvable download", "identity", id.String(), "error", err)
			continue
		}
		downloads = append(downloads, d)
	}
	return downloads
}
