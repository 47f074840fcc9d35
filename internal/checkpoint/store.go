// Package checkpoint persists the highest fully-processed block height.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCorrupt means the checkpoint file exists but cannot be trusted.
// Callers must treat this as fatal at startup; silently resetting to zero
// would re-process or skip an unbounded range.
var ErrCorrupt = errors.New("checkpoint file is corrupt")

type state struct {
	LastScannedBlock *uint64 `json:"last_scanned_block"`
}

// Store is a durable single-value store for the scan checkpoint.
type Store struct {
	path string
}

// NewStore builds a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load returns the persisted checkpoint. ok is false when no prior state
// exists (first run). An unreadable or unparsable file is reported as
// ErrCorrupt, never as a fresh start.
func (s *Store) Load() (height uint64, ok bool, err error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}

	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return 0, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if st.LastScannedBlock == nil {
		return 0, false, fmt.Errorf("%w: %s: missing last_scanned_block", ErrCorrupt, s.path)
	}
	return *st.LastScannedBlock, true, nil
}

// Save atomically replaces the persisted checkpoint. The value is written
// to a temp file in the same directory, fsynced, then renamed over the
// target, so a crash mid-write leaves either the old or the new height.
func (s *Store) Save(height uint64) error {
	raw, err := json.Marshal(state{LastScannedBlock: &height})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}
