package forecast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cicconee/silam-pollen/internal/entry"
)

// ErrNotLoaded is returned for an entry without a running device.
var ErrNotLoaded = errors.New("entry not loaded")

// EntryReader reads entries from storage.
type EntryReader interface {
	Get(ctx context.Context, id string) (entry.Entry, error)
	List(ctx context.Context) ([]entry.Entry, error)
}

// device is the running coordinator and entity of one entry.
type device struct {
	coordinator *Coordinator
	entity      *Entity
	unlisten    func()
}

// Service runs a device per configured entry.
type Service struct {
	Entries EntryReader
	Fetcher Fetcher
	Writer  StateWriter
	Logger  *slog.Logger

	mu      sync.RWMutex
	devices map[string]*device
}

// NewService creates and returns a Service.
func NewService(entries EntryReader, fetcher Fetcher, writer StateWriter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		Entries: entries,
		Fetcher: fetcher,
		Writer:  writer,
		Logger:  logger,
		devices: map[string]*device{},
	}
}

func (s *Service) load(e entry.Entry) *device {
	c := NewCoordinator(e, s.Fetcher, s.Logger)
	ent := NewEntity(e.ID, e.Title, c, s.Writer, s.Logger)
	return &device{
		coordinator: c,
		entity:      ent,
		unlisten:    c.AddListener(ent.HandleCoordinatorUpdate),
	}
}

func (s *Service) put(id string, d *device) {
	s.mu.Lock()
	old := s.devices[id]
	if d == nil {
		delete(s.devices, id)
	} else {
		s.devices[id] = d
	}
	s.mu.Unlock()

	if old != nil {
		old.unlisten()
	}
}

// Reload drops the running device of entryID and starts a new one from
// the stored entry. A deleted entry is only dropped. The new device is
// refreshed on the next worker tick.
func (s *Service) Reload(ctx context.Context, entryID string) {
	e, err := s.Entries.Get(ctx, entryID)
	if errors.Is(err, entry.ErrNotFound) {
		s.Remove(entryID)
		return
	}
	if err != nil {
		s.Logger.Error("failed reloading entry", "entry_id", entryID, "error", err)
		return
	}

	s.put(entryID, s.load(e))
	s.Logger.Info("loaded entry", "entry_id", entryID, "title", e.Title)
}

// Remove stops the device of entryID.
func (s *Service) Remove(entryID string) {
	s.put(entryID, nil)
}

// Sync loads every stored entry that has no device and drops devices of
// entries that no longer exist. It returns the number of devices.
func (s *Service) Sync(ctx context.Context) (int, error) {
	entries, err := s.Entries.List(ctx)
	if err != nil {
		return 0, err
	}

	stored := make(map[string]bool, len(entries))
	for _, e := range entries {
		stored[e.ID] = true

		s.mu.RLock()
		_, ok := s.devices[e.ID]
		s.mu.RUnlock()
		if !ok {
			s.put(e.ID, s.load(e))
		}
	}

	s.mu.RLock()
	var gone []string
	for id := range s.devices {
		if !stored[id] {
			gone = append(gone, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range gone {
		s.Remove(id)
	}

	return len(entries), nil
}

// Due returns the ids of devices whose update interval has passed.
func (s *Service) Due(now time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []string{}
	for id, d := range s.devices {
		if d.coordinator.Due(now) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Service) device(entryID string) (*device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[entryID]
	return d, ok
}

// Refresh runs a coordinator tick for entryID.
func (s *Service) Refresh(ctx context.Context, entryID string) error {
	d, ok := s.device(entryID)
	if !ok {
		return ErrNotLoaded
	}
	return d.coordinator.Refresh(ctx)
}

// View is the read model of a running device.
type View struct {
	State
	Status Status `json:"status"`
}

// View returns the entity state and refresh status of entryID.
func (s *Service) View(entryID string) (View, error) {
	d, ok := s.device(entryID)
	if !ok {
		return View{}, ErrNotLoaded
	}
	return View{State: d.entity.Snapshot(), Status: d.coordinator.Status()}, nil
}
