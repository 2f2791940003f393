package forecast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cicconee/silam-pollen/internal/pollen"
)

// Domain identifies devices of this service.
const Domain = "silam_pollen"

// Supported forecast types, as a bit set.
const (
	SupportForecastHourly     = 2
	SupportForecastTwiceDaily = 4
)

// TemperatureUnit is the unit of Item.NativeTemperature.
const TemperatureUnit = "°C"

// translationKey names the entity for frontends.
const translationKey = "index_polen_weather"

// AttrResponsible is the attribute naming the pollen type behind an
// elevated index.
const AttrResponsible = "responsible_elevated"

// MergedSource provides merged data, usually a Coordinator.
type MergedSource interface {
	MergedData() *MergedData
}

// StateWriter receives the entity state every time it changes.
type StateWriter interface {
	WriteState(ctx context.Context, s State) error
}

// DeviceInfo ties an entity to the device of its entry.
type DeviceInfo struct {
	Identifiers [][2]string `json:"identifiers"`
	Name        string      `json:"name"`
}

// State is the published form of an Entity.
type State struct {
	EntityID           string            `json:"entity_id"`
	UniqueID           string            `json:"unique_id"`
	ConfigEntryID      string            `json:"config_entry_id"`
	State              *string           `json:"state"`
	Attributes         map[string]string `json:"attributes"`
	ForecastHourly     []Item            `json:"forecast_hourly"`
	ForecastTwiceDaily []Item            `json:"forecast_twice_daily"`
	SupportedFeatures  int               `json:"supported_features"`
	TemperatureUnit    string            `json:"temperature_unit"`
	TranslationKey     string            `json:"translation_key"`
	Device             DeviceInfo        `json:"device"`
	LastUpdated        time.Time         `json:"last_updated"`
}

// Entity is the pollen forecast display of one entry. It holds the
// forecast lists copied from the last merged data; missing merged data
// leaves them as they were.
type Entity struct {
	entryID    string
	deviceName string
	source     MergedSource
	writer     StateWriter
	logger     *slog.Logger
	now        func() time.Time

	mu          sync.RWMutex
	hourly      []Item
	twiceDaily  []Item
	attributes  map[string]string
	lastUpdated time.Time
}

// NewEntity returns the entity of entryID reading from source. writer may
// be nil.
func NewEntity(entryID, deviceName string, source MergedSource, writer StateWriter, logger *slog.Logger) *Entity {
	if logger == nil {
		logger = slog.Default()
	}

	return &Entity{
		entryID:    entryID,
		deviceName: deviceName,
		source:     source,
		writer:     writer,
		logger:     logger.With("entity", entryID+"_pollen_forecast"),
		now:        time.Now,
		hourly:     []Item{},
		twiceDaily: []Item{},
		attributes: map[string]string{},
	}
}

// UniqueID returns the unique identifier of this entity.
func (e *Entity) UniqueID() string {
	return e.entryID + "_pollen_forecast"
}

// Device returns the device this entity belongs to.
func (e *Entity) Device() DeviceInfo {
	return DeviceInfo{
		Identifiers: [][2]string{{Domain, e.entryID}},
		Name:        e.deviceName,
	}
}

// HandleCoordinatorUpdate copies the forecasts out of the current merged
// data and writes the new state.
func (e *Entity) HandleCoordinatorUpdate(ctx context.Context) {
	merged := e.source.MergedData()
	if merged == nil {
		e.logger.Error("merged data is missing for forming forecasts")
		return
	}

	e.logger.Debug("merged data content",
		"now", merged.Now != nil,
		"hourly_forecast", len(merged.Hourly),
		"twice_daily_forecast", len(merged.TwiceDaily))

	e.mu.Lock()
	e.hourly = orEmpty(merged.Hourly)
	e.twiceDaily = orEmpty(merged.TwiceDaily)
	if merged.Now != nil {
		e.attributes[AttrResponsible] = responsibleOf(merged)
	}
	e.lastUpdated = e.now()
	e.mu.Unlock()

	e.writeState(ctx)
}

func responsibleOf(merged *MergedData) string {
	v, ok := merged.Now.Data[VarResponsible]
	if !ok {
		return pollen.Unknown
	}

	code, ok := pollen.ParseCode(v.Value)
	if !ok {
		return pollen.Unknown
	}

	return pollen.Responsible(code)
}

func orEmpty(items []Item) []Item {
	if items == nil {
		return []Item{}
	}
	return items
}

func (e *Entity) writeState(ctx context.Context) {
	if e.writer == nil {
		return
	}

	if err := e.writer.WriteState(ctx, e.Snapshot()); err != nil {
		e.logger.Warn("failed writing entity state", "error", err)
	}
}

// State returns the condition of the first hourly item, or nil.
func (e *Entity) State() *string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state()
}

func (e *Entity) state() *string {
	if len(e.hourly) == 0 {
		return nil
	}
	c := e.hourly[0].Condition
	return &c
}

// ForecastHourly returns the hourly forecast.
func (e *Entity) ForecastHourly() []Item {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hourly
}

// ForecastTwiceDaily returns the twice-daily forecast.
func (e *Entity) ForecastTwiceDaily() []Item {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.twiceDaily
}

// Attributes returns a copy of the extra state attributes.
func (e *Entity) Attributes() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.copyAttributes()
}

func (e *Entity) copyAttributes() map[string]string {
	attrs := make(map[string]string, len(e.attributes))
	for k, v := range e.attributes {
		attrs[k] = v
	}
	return attrs
}

// Snapshot returns the full state of the entity.
func (e *Entity) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return State{
		EntityID:           "weather." + e.UniqueID(),
		UniqueID:           e.UniqueID(),
		ConfigEntryID:      e.entryID,
		State:              e.state(),
		Attributes:         e.copyAttributes(),
		ForecastHourly:     e.hourly,
		ForecastTwiceDaily: e.twiceDaily,
		SupportedFeatures:  SupportForecastHourly | SupportForecastTwiceDaily,
		TemperatureUnit:    TemperatureUnit,
		TranslationKey:     translationKey,
		Device:             e.Device(),
		LastUpdated:        e.lastUpdated,
	}
}
