// Package state persists the small piece of mutable bot state that must
// survive restarts: which pool is managed and which position id the bot owns.
// Everything else is re-read from chain on every cycle.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// State is the persisted record. PositionID zero means no managed position.
type State struct {
	PoolID     uint64 `json:"pool_id"`
	PositionID uint64 `json:"position_id"`
}

// Store reads and writes State as JSON at a fixed path. Saves are atomic
// (temp file + rename) and happen immediately after any id-changing chain
// operation, so a crash between operations is recoverable by re-reading chain
// state on the next run.
type Store struct {
	path string

	mu sync.Mutex
}

// NewStore creates a Store persisting at path. The parent directory must
// exist.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted state. A missing file yields the zero State.
// CLBOT_STATE_POOL_ID and CLBOT_STATE_POSITION_ID environment variables take
// precedence over file contents when set.
func (s *Store) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st State
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run.
	case err != nil:
		return State{}, fmt.Errorf("state: read %s: %w", s.path, err)
	default:
		if err := json.Unmarshal(data, &st); err != nil {
			return State{}, fmt.Errorf("state: parse %s: %w", s.path, err)
		}
	}

	if v := os.Getenv("CLBOT_STATE_POOL_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return State{}, fmt.Errorf("state: CLBOT_STATE_POOL_ID: %w", err)
		}
		st.PoolID = id
	}
	if v := os.Getenv("CLBOT_STATE_POSITION_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return State{}, fmt.Errorf("state: CLBOT_STATE_POSITION_ID: %w", err)
		}
		st.PositionID = id
	}
	return st, nil
}

// Save writes the state atomically.
func (s *Store) Save(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("state: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("state: rename %s: %w", s.path, err)
	}
	return nil
}

// Path returns the store's file path.
func (s *Store) Path() string {
	return filepath.Clean(s.path)
}
