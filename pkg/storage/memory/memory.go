package memory

import (
	"context"
	"sync"

	"github.com/nicktill/dirview/pkg/storage"
)

// recordOverhead is a rough per-record size estimate for Stats.
const recordOverhead = 64

// Storage keeps size records in a map. Data is lost on restart.
type Storage struct {
	records map[string]storage.SizeRecord
	mu      sync.RWMutex
}

// New creates an in-memory store
func New() *Storage {
	return &Storage{
		records: make(map[string]storage.SizeRecord),
	}
}

// Put stores rec, replacing any previous value for its path
func (s *Storage) Put(ctx context.Context, rec storage.SizeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.Path] = rec
	return nil
}

// Get returns the record for path
func (s *Storage) Get(ctx context.Context, path string) (storage.SizeRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SizeRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[path]
	if !ok {
		return storage.SizeRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

// Delete forgets path
func (s *Storage) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, path)
	return nil
}

// Close is a no-op for memory storage
func (s *Storage) Close() error {
	return nil
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.Stats{
		Records: uint64(len(s.records)),
	}
	for path, rec := range s.records {
		stats.SizeBytes += uint64(len(path) + recordOverhead)
		if rec.ComputedAt.After(stats.NewestRecord) {
			stats.NewestRecord = rec.ComputedAt
		}
	}
	return stats, nil
}
