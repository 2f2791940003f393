package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cicconee/silam-pollen/internal/entry"
	"github.com/cicconee/silam-pollen/internal/geometry"
	"github.com/cicconee/silam-pollen/internal/metrics"
	"github.com/cicconee/silam-pollen/internal/silam"
)

// Window is the forecast length fetched for entries with the forecast
// flag set.
const Window = 48 * time.Hour

// Fetcher reads samples from the SILAM point service.
type Fetcher interface {
	Fetch(ctx context.Context, baseURL string, point geometry.Point, q silam.Query) ([]silam.Sample, error)
}

// Coordinator fetches the data of one entry and keeps the last merged
// result. Listeners are called after every successful refresh.
type Coordinator struct {
	entry    entry.Entry
	settings entry.Settings
	fetcher  Fetcher
	logger   *slog.Logger
	now      func() time.Time

	refreshMu sync.Mutex

	mu          sync.RWMutex
	merged      *MergedData
	lastAttempt time.Time
	lastSuccess time.Time
	lastErr     error
	listeners   map[int]func(context.Context)
	nextID      int
}

// NewCoordinator returns a Coordinator for e.
func NewCoordinator(e entry.Entry, fetcher Fetcher, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		entry:     e,
		settings:  e.Settings(),
		fetcher:   fetcher,
		logger:    logger.With("entry_id", e.ID),
		now:       time.Now,
		listeners: map[int]func(context.Context){},
	}
}

// AddListener registers fn and returns a function that removes it.
func (c *Coordinator) AddListener(fn func(context.Context)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// MergedData returns the last merged data, or nil before the first
// successful refresh.
func (c *Coordinator) MergedData() *MergedData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.merged
}

// Due reports whether the update interval has passed since the last
// refresh attempt.
func (c *Coordinator) Due(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastAttempt.IsZero() || !now.Before(c.lastAttempt.Add(c.settings.UpdateInterval))
}

// Status is the refresh bookkeeping of a coordinator.
type Status struct {
	LastAttempt time.Time `json:"last_attempt"`
	LastSuccess time.Time `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`
}

func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Status{LastAttempt: c.lastAttempt, LastSuccess: c.lastSuccess}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

func (c *Coordinator) query() silam.Query {
	q := silam.Query{Vars: Vars(c.settings.Variants)}
	if c.settings.Forecast || c.settings.ForecastHourly || c.settings.ForecastDaily {
		q.Window = Window
	}
	return q
}

// Refresh fetches and merges new data and notifies the listeners. On
// failure the previous merged data is kept and listeners are still
// notified. Concurrent calls are serialized.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := c.now()
	c.mu.Lock()
	c.lastAttempt = start
	c.mu.Unlock()

	err := c.refresh(ctx, start)

	metrics.RefreshTotal.WithLabelValues(metrics.Result(err)).Inc()
	metrics.RefreshDuration.Observe(c.now().Sub(start).Seconds())

	c.mu.Lock()
	c.lastErr = err
	if err == nil {
		c.lastSuccess = start
	}
	listeners := make([]func(context.Context), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("failed refreshing pollen data", "error", err)
	}

	for _, fn := range listeners {
		fn(ctx)
	}

	return err
}

func (c *Coordinator) refresh(ctx context.Context, now time.Time) error {
	if c.settings.BaseURL == "" || c.settings.BaseURL == string(silam.Unknown) {
		return fmt.Errorf("entry has no usable base url (base_url=%q)", c.settings.BaseURL)
	}

	samples, err := c.fetcher.Fetch(ctx, c.settings.BaseURL, c.entry.Point(), c.query())
	if err != nil {
		return fmt.Errorf("fetching samples: %w", err)
	}

	merged := Merge(samples, c.settings.Variants, now)
	if merged == nil {
		return fmt.Errorf("no samples returned")
	}

	c.mu.Lock()
	c.merged = merged
	c.mu.Unlock()

	c.logger.Debug("refreshed pollen data",
		"samples", len(samples),
		"hourly", len(merged.Hourly),
		"twice_daily", len(merged.TwiceDaily))

	return nil
}
