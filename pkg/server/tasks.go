package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nicktill/dirview/pkg/browse"
	"github.com/nicktill/dirview/pkg/logging"
	"github.com/nicktill/dirview/pkg/metrics"
	"github.com/nicktill/dirview/pkg/presenter"
	"github.com/nicktill/dirview/pkg/storage"
)

// RunPresenter runs the presenter's completion loop until ctx is done.
func RunPresenter(ctx context.Context, p *presenter.Presenter, wg *sync.WaitGroup) {
	defer wg.Done()

	logging.L().Info("presenter loop started", zap.String("mode", p.Mode()))
	p.Run(ctx)
	logging.L().Info("presenter loop stopped")
}

// RunHub runs the WebSocket hub until ctx is done.
func RunHub(ctx context.Context, hub *browse.Hub, wg *sync.WaitGroup) {
	defer wg.Done()

	logging.L().Info("websocket hub started")
	hub.Run(ctx)
	logging.L().Info("websocket hub stopped")
}

// RunStoreStats periodically publishes store statistics as metrics.
// Uses exponential backoff on errors to prevent log spam.
func RunStoreStats(ctx context.Context, store storage.Store, interval time.Duration, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var consecutiveErrors int
	var lastErrorTime time.Time
	const maxBackoff = 5 * time.Minute

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := store.Stats(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				consecutiveErrors++
				now := time.Now()

				backoff := time.Duration(1<<uint(min(consecutiveErrors-1, 8))) * time.Second
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				if lastErrorTime.IsZero() || now.Sub(lastErrorTime) >= backoff {
					logging.L().Warn("failed to read store stats",
						zap.Int("consecutive_errors", consecutiveErrors),
						zap.Duration("backoff", backoff),
						zap.Error(err))
					lastErrorTime = now
				}
				continue
			}

			if consecutiveErrors > 0 {
				logging.L().Info("store stats recovered", zap.Int("after_errors", consecutiveErrors))
				consecutiveErrors = 0
			}
			metrics.SetStoreStats(stats.Records, stats.SizeBytes)
		}
	}
}
