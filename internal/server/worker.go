package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cicconee/silam-pollen/internal/forecast"
	"github.com/cicconee/silam-pollen/internal/metrics"
	"github.com/cicconee/silam-pollen/internal/pool"
)

// worker loads stored entries and queues a refresh for every device whose
// update interval has passed, on each tick.
type worker struct {
	devices *forecast.Service
	pool    *pool.Pool
	d       time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]bool
}

func newWorker(devices *forecast.Service, p *pool.Pool, d time.Duration, logger *slog.Logger) *worker {
	return &worker{
		devices:  devices,
		pool:     p,
		d:        d,
		logger:   logger,
		now:      time.Now,
		inflight: map[string]bool{},
	}
}

// start ticks until ctx is done. The first tick runs immediately.
func (w *worker) start(ctx context.Context) {
	ticker := time.NewTicker(w.d)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *worker) tick(ctx context.Context) {
	n, err := w.devices.Sync(ctx)
	if err != nil {
		w.logger.Error("failed syncing entries", "error", err)
		return
	}
	metrics.Entries.Set(float64(n))

	queued := 0
	for _, id := range w.devices.Due(w.now()) {
		if w.queue(ctx, id) {
			queued++
		}
	}
	metrics.RefreshQueue.Set(float64(w.pool.Pending()))

	if queued > 0 {
		w.logger.Debug("queued refreshes", "count", queued, "entries", n)
	}
}

// queue adds a refresh job for entryID unless one is already pending.
func (w *worker) queue(ctx context.Context, entryID string) bool {
	w.mu.Lock()
	if w.inflight[entryID] {
		w.mu.Unlock()
		return false
	}
	w.inflight[entryID] = true
	w.mu.Unlock()

	ok := w.pool.TryAdd(func() {
		defer w.done(entryID)
		if ctx.Err() != nil {
			return
		}
		// Failures are logged by the coordinator.
		_ = w.devices.Refresh(ctx, entryID)
	})
	if !ok {
		w.done(entryID)
		w.logger.Warn("refresh queue full", "entry_id", entryID)
	}
	return ok
}

func (w *worker) done(entryID string) {
	w.mu.Lock()
	delete(w.inflight, entryID)
	w.mu.Unlock()
}
