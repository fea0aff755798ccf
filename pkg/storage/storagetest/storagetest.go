// Package storagetest holds the behaviour every storage.Store must share.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/dirview/pkg/storage"
)

// Run exercises a Store implementation. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), "/nope")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("PutGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)

		rec := storage.SizeRecord{Path: "/data/photos", TotalBytes: 1 << 40, Partial: true, SkippedCount: 2, ComputedAt: now}
		require.NoError(t, store.Put(ctx, rec))

		got, err := store.Get(ctx, "/data/photos")
		require.NoError(t, err)
		require.Equal(t, rec.TotalBytes, got.TotalBytes)
		require.True(t, got.Partial)
		require.EqualValues(t, 2, got.SkippedCount)
		require.True(t, got.ComputedAt.Equal(now))
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Put(ctx, storage.SizeRecord{Path: "/a", TotalBytes: 10}))
		require.NoError(t, store.Put(ctx, storage.SizeRecord{Path: "/a", TotalBytes: 15}))

		got, err := store.Get(ctx, "/a")
		require.NoError(t, err)
		require.EqualValues(t, 15, got.TotalBytes)

		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 1, stats.Records)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Put(ctx, storage.SizeRecord{Path: "/a", TotalBytes: 1}))
		require.NoError(t, store.Put(ctx, storage.SizeRecord{Path: "/b", TotalBytes: 2}))
		require.NoError(t, store.Delete(ctx, "/a"))
		require.NoError(t, store.Delete(ctx, "/never-stored"))

		_, err := store.Get(ctx, "/a")
		require.ErrorIs(t, err, storage.ErrNotFound)
		got, err := store.Get(ctx, "/b")
		require.NoError(t, err)
		require.EqualValues(t, 2, got.TotalBytes)
	})

	t.Run("Stats", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		older := time.Now().Add(-time.Hour).UTC()
		newer := time.Now().UTC()

		require.NoError(t, store.Put(ctx, storage.SizeRecord{Path: "/x", ComputedAt: older}))
		require.NoError(t, store.Put(ctx, storage.SizeRecord{Path: "/y", ComputedAt: newer}))

		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 2, stats.Records)
		require.Greater(t, stats.SizeBytes, uint64(0))
		require.True(t, stats.NewestRecord.Equal(newer))
	})

	t.Run("CancelledContext", func(t *testing.T) {
		store := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.ErrorIs(t, store.Put(ctx, storage.SizeRecord{Path: "/a"}), context.Canceled)
		_, err := store.Get(ctx, "/a")
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("ConcurrentPuts", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				path := fmt.Sprintf("/dir/%d", id)
				require.NoError(t, store.Put(ctx, storage.SizeRecord{Path: path, TotalBytes: int64(id)}))
			}(i)
		}
		wg.Wait()

		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 10, stats.Records)
	})
}
