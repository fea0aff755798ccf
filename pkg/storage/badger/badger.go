package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/nicktill/dirview/pkg/storage"
)

// keyPrefix namespaces size records inside the database.
const keyPrefix byte = 's'

// Storage implements storage.Store on an in-memory BadgerDB.
type Storage struct {
	db *badger.DB
}

// Config holds BadgerDB configuration
type Config struct {
	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = 16 MB memtable)
	MaxMemoryMB int64
}

// New opens an in-memory BadgerDB. Records never touch disk.
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3 // ~33% for memtable
	}

	// BadgerDB defaults reserve hundreds of MB; a size cell store holds a
	// few thousand tiny records at most.
	opts = opts.
		WithCompression(options.None).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(2).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithNumCompactors(2)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Storage{db: db}, nil
}

// Put stores rec, replacing any previous record for its path
func (s *Storage) Put(ctx context.Context, rec storage.SizeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(makeKey(rec.Path), value); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		return nil
	})
}

// Get returns the record for path
func (s *Storage) Get(ctx context.Context, path string) (storage.SizeRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SizeRecord{}, err
	}

	var rec storage.SizeRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(makeKey(path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storage.SizeRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.SizeRecord{}, fmt.Errorf("failed to read record: %w", err)
	}

	// Keys are hashes; a collision must not show another directory's size.
	if rec.Path != path {
		return storage.SizeRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

// Delete forgets path
func (s *Storage) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(makeKey(path))
	})
}

// Close shuts down BadgerDB cleanly
func (s *Storage) Close() error {
	return s.db.Close()
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &storage.Stats{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{keyPrefix}

		it := txn.NewIterator(opts)
		defer it.Close()

		var iterCount int
		for it.Rewind(); it.Valid(); it.Next() {
			iterCount++
			if iterCount%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			item := it.Item()
			stats.Records++
			stats.SizeBytes += uint64(item.EstimatedSize())

			if err := item.Value(func(val []byte) error {
				var rec storage.SizeRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				if rec.ComputedAt.After(stats.NewestRecord) {
					stats.NewestRecord = rec.ComputedAt
				}
				return nil
			}); err != nil {
				return fmt.Errorf("failed to decode record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// makeKey builds a fixed-size key: [prefix (1 byte)][xxhash(path) (8 bytes)]
func makeKey(path string) []byte {
	key := make([]byte, 9)
	key[0] = keyPrefix
	binary.BigEndian.PutUint64(key[1:], xxhash.Sum64String(path))
	return key
}
