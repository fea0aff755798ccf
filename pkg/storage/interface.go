package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no value was ever shown for a path.
var ErrNotFound = errors.New("size record not found")

// SizeRecord is the last size shown in one directory row's size cell.
type SizeRecord struct {
	Path         string    `json:"path"`
	TotalBytes   int64     `json:"total_bytes"`
	Partial      bool      `json:"partial,omitempty"`
	Unknown      bool      `json:"unknown,omitempty"`
	SkippedCount int64     `json:"skipped_count,omitempty"`
	ComputedAt   time.Time `json:"computed_at"`
}

// Store holds at most one SizeRecord per path. Put overwrites.
// Implementations: memory (tests, default), badger (in-memory LSM).
// Neither persists across restarts.
type Store interface {
	// Put stores rec, replacing any previous record for rec.Path
	Put(ctx context.Context, rec SizeRecord) error

	// Get returns the record for path or ErrNotFound
	Get(ctx context.Context, path string) (SizeRecord, error)

	// Delete forgets path. Deleting an unknown path is not an error.
	Delete(ctx context.Context, path string) error

	// Stats returns store statistics
	Stats(ctx context.Context) (*Stats, error)

	// Close cleanly shuts down the store
	Close() error
}

// Stats provides store usage info
type Stats struct {
	// Records currently held
	Records uint64 `json:"records"`

	// Approximate size in bytes
	SizeBytes uint64 `json:"size_bytes"`

	// Most recent ComputedAt
	NewestRecord time.Time `json:"newest_record,omitempty"`
}
