// Package promptcache implements PromptCacheStore: a
// durable, per-extension, per-capability permission decision memo backed
// by a JSON file on disk. The atomic-write discipline (temp sibling,
// fsync, rename, restrictive file mode) is grounded on the
// internal/plugin/manager.go savePolicy persistence path.
package promptcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pi-cli/pi/internal/capability"
)

// Store is a thread-safe, lazily-loaded, atomically-written permission
// record store. The zero value is not usable; construct with New.
type Store struct {
	path string

	mu     sync.Mutex
	loaded bool
	data   map[string]map[string]bool // extension_id -> capability -> allow
}

// New returns a Store backed by path. Nothing is read from disk until the
// first operation.
func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	s.data = map[string]map[string]bool{}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("promptcache: read %s: %w", s.path, err)
	}
	if len(raw) == 0 {
		s.loaded = true
		return nil
	}

	var parsed map[string]map[string]bool
	if err := json.Unmarshal(raw, &parsed); err != nil {
		// Corrupt files are never silently overwritten.
		return fmt.Errorf("promptcache: corrupt permission file %s: %w", s.path, err)
	}
	s.data = parsed
	s.loaded = true
	return nil
}

// Lookup returns the cached allow/deny decision for (extensionID, cap), if
// any was recorded.
func (s *Store) Lookup(extensionID string, cap capability.Capability) (allow bool, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return false, false
	}
	caps, ok := s.data[extensionID]
	if !ok {
		return false, false
	}
	allow, found = caps[string(cap)]
	return allow, found
}

// Record persists an allow/deny decision for (extensionID, cap).
func (s *Store) Record(extensionID string, cap capability.Capability, allow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return
	}
	if s.data[extensionID] == nil {
		s.data[extensionID] = map[string]bool{}
	}
	s.data[extensionID][string(cap)] = allow
	_ = s.saveLocked()
}

// Revoke removes every recorded capability decision for extensionID and
// prunes the now-empty record.
func (s *Store) Revoke(extensionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return err
	}
	delete(s.data, extensionID)
	return s.saveLocked()
}

// ResetAll clears every recorded decision for every extension.
func (s *Store) ResetAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = map[string]map[string]bool{}
	s.loaded = true
	return s.saveLocked()
}

// ToCacheMap returns a defensive copy of the full on-disk map, suitable
// for seeding an in-memory prompt cache.
func (s *Store) ToCacheMap() map[string]map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return map[string]map[string]bool{}
	}
	out := make(map[string]map[string]bool, len(s.data))
	for ext, caps := range s.data {
		inner := make(map[string]bool, len(caps))
		for k, v := range caps {
			inner[k] = v
		}
		out[ext] = inner
	}
	return out
}

// saveLocked writes the store's in-memory state to disk atomically:
// write to a temp sibling, fsync, then rename over the destination.
// Caller must hold s.mu. Empty extension records are pruned before save.
func (s *Store) saveLocked() error {
	pruned := make(map[string]map[string]bool, len(s.data))
	for ext, caps := range s.data {
		if len(caps) == 0 {
			continue
		}
		pruned[ext] = caps
	}

	raw, err := json.MarshalIndent(pruned, "", "  ")
	if err != nil {
		return fmt.Errorf("promptcache: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("promptcache: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".promptcache-*.tmp")
	if err != nil {
		return fmt.Errorf("promptcache: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("promptcache: chmod temp: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("promptcache: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("promptcache: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("promptcache: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("promptcache: rename: %w", err)
	}
	return nil
}
