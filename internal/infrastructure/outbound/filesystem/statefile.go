package filesystem

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// StoredState is the persisted state of one scenario.
type StoredState struct {
	State   string `json:"state"`
	Version uint64 `json:"version"`
}

// StateFile persists scenario states as one JSON object keyed by scenario
// ID. Writes older than the stored version are ignored.
type StateFile struct {
	path string

	mu     sync.Mutex
	loaded bool
	states map[string]StoredState
}

// NewStateFile binds a StateFile to path. The file is created on the first
// write.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Snapshot returns a copy of every stored state.
func (f *StateFile) Snapshot() (map[string]StoredState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return nil, err
	}
	out := make(map[string]StoredState, len(f.states))
	for k, v := range f.states {
		out[k] = v
	}
	return out, nil
}

// Put stores state for id unless a newer version is already stored.
func (f *StateFile) Put(id, state string, version uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	if cur, ok := f.states[id]; ok && cur.Version > version {
		return nil
	}
	f.states[id] = StoredState{State: state, Version: version}

	data, err := json.MarshalIndent(f.states, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode scenario states: %w", err)
	}
	return atomicWriteFile(f.path, data)
}

func (f *StateFile) load() error {
	if f.loaded {
		return nil
	}
	states := make(map[string]StoredState)
	data, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("failed to read scenario states: %w", err)
	default:
		if err := json.Unmarshal(data, &states); err != nil {
			return fmt.Errorf("failed to decode %s: %w", filepath.Base(f.path), err)
		}
	}
	f.states = states
	f.loaded = true
	return nil
}

// atomicWriteFile writes content next to target and renames it into place.
// The temporary name starts with a dot so the watcher and the scanner skip
// it.
func atomicWriteFile(target string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".mimicry-*"+filepath.Ext(target))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(name, target); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
