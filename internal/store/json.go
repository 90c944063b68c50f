package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// stateFile is the on-disk shape of the state file.
type stateFile struct {
	Version int      `json:"version"`
	Streams []Record `json:"streams"`
}

// jsonStore implements Store using a single JSON file, written
// atomically via a temp file and rename.
type jsonStore struct {
	path string

	mu      sync.RWMutex
	records []Record
	index   map[string]int // id -> position in records
}

// NewJSON creates a JSON-file-backed store.
func NewJSON(path string) Store {
	if path == "" {
		path = "state.json"
	}
	return &jsonStore{
		path:  path,
		index: make(map[string]int),
	}
}

func (s *jsonStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.index = make(map[string]int)

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var state stateFile
	if unmarshalErr := json.Unmarshal(data, &state); unmarshalErr != nil {
		return fmt.Errorf("failed to parse state file: %w", unmarshalErr)
	}

	for _, rec := range state.Streams {
		if rec.ID == "" {
			continue
		}
		// Process identity does not survive a restart.
		rec.Status = StatusStopped
		rec.RestartCount = 0
		s.index[rec.ID] = len(s.records)
		s.records = append(s.records, rec)
	}

	return nil
}

func (s *jsonStore) Upsert(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos, exists := s.index[rec.ID]; exists {
		s.records[pos] = rec
	} else {
		s.index[rec.ID] = len(s.records)
		s.records = append(s.records, rec)
	}

	return s.save()
}

func (s *jsonStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, exists := s.index[id]
	if !exists {
		return nil
	}

	s.records = append(s.records[:pos], s.records[pos+1:]...)
	delete(s.index, id)
	for i := pos; i < len(s.records); i++ {
		s.index[s.records[i].ID] = i
	}

	return s.save()
}

func (s *jsonStore) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, exists := s.index[id]
	if !exists {
		return Record{}, false
	}
	return s.records[pos], true
}

func (s *jsonStore) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// save writes the state file atomically (must hold lock). A crash
// mid-write leaves the previous file intact.
func (s *jsonStore) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(stateFile{Version: 1, Streams: s.records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}
