// Package replay implements a content-addressed, on-disk fixture
// store used by the Cache Core's Test strategy to replay recorded
// responses instead of hitting a live provider.
package replay

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// Store persists one JSON fixture file per key under Dir, named by
// the key itself (already a SHA-256 hex digest from cachecore.KeyFor,
// so no further escaping is needed).
type Store struct {
	dir string
	mu  sync.Mutex
}

// New builds a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Load reads key's fixture, if present.
func (s *Store) Load(_ context.Context, key string) (value any, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(buf, &v); err != nil {
		return nil, false
	}
	return v, true
}

// Save writes key's fixture. Writes go to a temp file first and are
// renamed into place so a concurrent Load never observes a partial
// file.
func (s *Store) Save(_ context.Context, key string, value any) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(key))
}
