package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/riddle-backend/internal/config"
	"github.com/riddle-backend/internal/domain"
	"github.com/riddle-backend/internal/metrics"
)

// Boards is the live leaderboard the worker reads from and restores into
type Boards interface {
	Snapshot(ctx context.Context, period domain.Period, n int) ([]domain.LeaderboardEntry, error)
	Restore(ctx context.Context, period domain.Period, n int) (int, error)
}

// SnapshotStore persists flushed leaderboard rows
type SnapshotStore interface {
	UpsertLeaderboardEntries(ctx context.Context, period domain.Period, entries []domain.LeaderboardEntry) error
}

// SyncWorker periodically flushes the top of every period from Redis to
// PostgreSQL
type SyncWorker struct {
	boards  Boards
	store   SnapshotStore
	config  *config.SyncConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(boards Boards, store SnapshotStore, cfg *config.SyncConfig, logger *slog.Logger) *SyncWorker {
	return &SyncWorker{
		boards: boards,
		store:  store,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background flush loop
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop flushes once more and stops the loop
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			w.FlushAll(flushCtx)
			cancel()
			return
		case <-ticker.C:
			w.FlushAll(ctx)
		}
	}
}

// FlushAll writes every period's top entries to the store. A failing period
// is logged and does not stop the others.
func (w *SyncWorker) FlushAll(ctx context.Context) {
	start := time.Now()
	flushed, failed := 0, 0

	for _, period := range domain.Periods {
		if err := w.Flush(ctx, period); err != nil {
			w.logger.Error("failed to flush leaderboard", "period", period, "error", err)
			failed++
			continue
		}
		flushed++
	}

	w.logger.Info("leaderboard flush completed",
		"duration", time.Since(start),
		"flushed", flushed,
		"errors", failed,
	)
}

// Flush persists one period
func (w *SyncWorker) Flush(ctx context.Context, period domain.Period) error {
	entries, err := w.boards.Snapshot(ctx, period, w.config.MaxEntries)
	if err != nil {
		return fmt.Errorf("reading %s leaderboard: %w", period, err)
	}
	if len(entries) == 0 {
		return nil
	}
	if err := w.store.UpsertLeaderboardEntries(ctx, period, entries); err != nil {
		return fmt.Errorf("writing %s leaderboard: %w", period, err)
	}
	metrics.LeaderboardFlushed.WithLabelValues(string(period)).Add(float64(len(entries)))
	return nil
}

// RestoreAll refills empty sorted sets from the last flushed snapshot
func (w *SyncWorker) RestoreAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, period := range domain.Periods {
		g.Go(func() error {
			n, err := w.boards.Restore(ctx, period, w.config.MaxEntries)
			if err != nil {
				return err
			}
			if n > 0 {
				w.logger.Info("leaderboard restored from database", "period", period, "entries", n)
			}
			return nil
		})
	}
	return g.Wait()
}

// IsRunning reports whether the loop is active
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
