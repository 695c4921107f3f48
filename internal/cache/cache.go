// Package cache keeps runner state between sessions.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// bump when failedPayload changes
const schemaVersion uint16 = 1

const failedFile = "failed_tests.mp"

// Store is an on-disk cache directory. Safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	dir string
}

type failedPayload struct {
	Schema uint16
	Tests  []string
}

// Open returns a store rooted at dir, creating it if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

// SaveFailed records the names of the tests that failed in the last session.
func (s *Store) SaveFailed(names []string) (err error) {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	f, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err = msgpack.NewEncoder(f).Encode(&failedPayload{Schema: schemaVersion, Tests: sorted}); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), filepath.Join(s.dir, failedFile))
}

// LoadFailed returns the tests that failed in the last session. A missing or
// outdated cache yields an empty set.
func (s *Store) LoadFailed() (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if s == nil {
		return out, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(filepath.Join(s.dir, failedFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return nil, err
	}
	defer f.Close()

	var payload failedPayload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode failed tests cache: %w", err)
	}
	if payload.Schema != schemaVersion {
		return out, nil
	}
	for _, name := range payload.Tests {
		out[name] = struct{}{}
	}
	return out, nil
}

// Clean removes the cache directory.
func (s *Store) Clean() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.RemoveAll(s.dir)
}
