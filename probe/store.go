package probe

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// DefaultHistorySize is the number of sweeps a store keeps.
const DefaultHistorySize = 100

// Store manages the history of completed sweeps.
type Store interface {
	// History returns the stored sweeps, most recent first.
	History() []SweepRecord
	// Save records a completed sweep.
	Save(SweepRecord) error
}

// MemoryStore keeps sweep history in memory only (no persistence).
type MemoryStore struct {
	maxCount int
	records  []SweepRecord
	mu       sync.Mutex
}

// NewMemoryStore creates a new in-memory store keeping up to maxCount sweeps.
func NewMemoryStore(maxCount int) *MemoryStore {
	if maxCount <= 0 {
		maxCount = DefaultHistorySize
	}
	return &MemoryStore{
		maxCount: maxCount,
		records:  make([]SweepRecord, 0),
	}
}

// History returns all sweeps, most recent first.
func (s *MemoryStore) History() []SweepRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]SweepRecord, len(s.records))
	copy(result, s.records)
	return result
}

// Save stores a sweep in memory.
func (s *MemoryStore) Save(record SweepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Prepend to keep most recent first
	s.records = append([]SweepRecord{record}, s.records...)
	if len(s.records) > s.maxCount {
		s.records = s.records[:s.maxCount]
	}
	return nil
}

// DiskStore persists sweep history to disk as JSON files.
type DiskStore struct {
	dir      string
	logger   *slog.Logger
	maxCount int
	records  []SweepRecord // protected by mu
	mu       sync.Mutex
}

// NewDiskStore creates a new disk-backed store.
// The directory is created if it doesn't exist, and existing sweeps are loaded.
func NewDiskStore(dir string, maxCount int, logger *slog.Logger) (*DiskStore, error) {
	if maxCount <= 0 {
		maxCount = DefaultHistorySize
	}
	s := &DiskStore{
		dir:      dir,
		logger:   logger,
		maxCount: maxCount,
		records:  make([]SweepRecord, 0),
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	records, err := s.load()
	if err != nil {
		logger.Warn("failed to load existing sweeps", "error", err)
		// Continue without existing data
	} else {
		s.records = records
	}

	return s, nil
}

// History returns all sweeps, most recent first.
func (s *DiskStore) History() []SweepRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]SweepRecord, len(s.records))
	copy(result, s.records)
	return result
}

// Save persists a sweep to disk and updates the in-memory representation.
// Files beyond the history limit are removed.
func (s *DiskStore) Save(record SweepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.StartedAt.IsZero() {
		return fmt.Errorf("cannot save sweep without start time")
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sweep: %w", err)
	}

	path := filepath.Join(s.dir, fileName(record))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write sweep file: %w", err)
	}

	s.records = append([]SweepRecord{record}, s.records...)
	for len(s.records) > s.maxCount {
		oldest := s.records[len(s.records)-1]
		if err := os.Remove(filepath.Join(s.dir, fileName(oldest))); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove old sweep file", "id", oldest.ID, "error", err)
		}
		s.records = s.records[:len(s.records)-1]
	}

	s.logger.Debug("saved sweep to disk", "path", path)
	return nil
}

// fileName uses the start time so a directory listing sorts chronologically:
// 2006-01-02T15-04-05.000000000-<id>.json
func fileName(record SweepRecord) string {
	return record.StartedAt.UTC().Format("2006-01-02T15-04-05.000000000") + "-" + record.ID + ".json"
}

// load loads all sweeps from disk.
func (s *DiskStore) load() ([]SweepRecord, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	records := make([]SweepRecord, 0, len(files))
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.dir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to read sweep file", "file", path, "error", err)
			continue
		}

		var record SweepRecord
		if err := json.Unmarshal(data, &record); err != nil {
			s.logger.Warn("failed to parse sweep file", "file", path, "error", err)
			continue
		}
		records = append(records, record)
	}

	// Sort by start time descending (most recent first)
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})

	if len(records) > s.maxCount {
		records = records[:s.maxCount]
	}

	s.logger.Info("loaded sweep history from disk", "count", len(records))
	return records, nil
}
