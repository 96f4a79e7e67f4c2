package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store holds the set of message IDs that have already been classified
// (delivered, ignored, or suppressed). IDs are kept in memory and
// written back to disk as a single JSON snapshot; entries older than
// the retention window are evicted so the file cannot grow without
// bound.
type Store struct {
	mu        sync.Mutex
	ids       map[string]int64 // id -> first-seen unix milli
	file      string
	retention time.Duration
}

type snapshot struct {
	IDs map[string]int64 `json:"ids"`
}

// Open loads (or creates) a store backed by filePath. A missing file
// yields an empty store.
func Open(filePath string, retention time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	s := &Store{
		ids:       make(map[string]int64),
		file:      filePath,
		retention: retention,
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	if snap.IDs != nil {
		s.ids = snap.IDs
	}
	s.prune(time.Now())
	return s, nil
}

// Has reports whether id has already been classified.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Add records id as classified. Adding an existing id is a no-op.
func (s *Store) Add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return
	}
	s.ids[id] = time.Now().UnixMilli()
}

// Len returns the number of tracked IDs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Flush writes the snapshot to disk atomically (temp file in the same
// directory, then rename), evicting expired entries first.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(time.Now())

	data, err := json.Marshal(snapshot{IDs: s.ids})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.file), filepath.Base(s.file)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.file); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// prune drops entries older than the retention window.
// Safe: eviction only affects IDs far outside the poll lookback, so an
// evicted message can no longer become a notification candidate.
// Caller must hold s.mu.
func (s *Store) prune(now time.Time) {
	if s.retention <= 0 {
		return
	}
	cutoff := now.Add(-s.retention).UnixMilli()
	for id, seen := range s.ids {
		if seen < cutoff {
			delete(s.ids, id)
		}
	}
}

// Exists reports whether a state file is already present, which the
// runner uses to detect the first run.
func Exists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}

// Clear removes the state file. Removing an absent file is a no-op.
func Clear(filePath string) error {
	err := os.Remove(filePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
}
