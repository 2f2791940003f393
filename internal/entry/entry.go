package entry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cicconee/silam-pollen/internal/geometry"
	"github.com/cicconee/silam-pollen/internal/pollen"
	"github.com/cicconee/silam-pollen/internal/silam"
)

const (
	// DefaultUpdateInterval is the refresh period in minutes.
	DefaultUpdateInterval = 60

	// MinUpdateInterval is the smallest accepted refresh period in minutes.
	MinUpdateInterval = 30

	// MaxUpdateInterval is the largest accepted refresh period in minutes,
	// one year.
	MaxUpdateInterval = 525600

	// DefaultAltitude is used when no elevation is known, in metres.
	DefaultAltitude = 0.0

	// TitlePrefix starts every entry title.
	TitlePrefix = "SILAM Pollen - "
)

// Title returns the entry title for zoneName.
func Title(zoneName string) string {
	return TitlePrefix + zoneName
}

// Data is what the setup wizard collected. It only changes through the
// options flow, which rewrites Version and BaseURL.
type Data struct {
	ZoneID            string   `json:"zone_id"`
	ZoneName          string   `json:"zone_name"`
	Latitude          float64  `json:"latitude"`
	Longitude         float64  `json:"longitude"`
	Altitude          float64  `json:"altitude"`
	Var               []string `json:"var"`
	UpdateInterval    int      `json:"update_interval"`
	Forecast          bool     `json:"forecast"`
	BaseURL           string   `json:"base_url"`
	Version           string   `json:"version,omitempty"`
	ManualCoordinates bool     `json:"manual_coordinates"`
	Title             string   `json:"title"`
}

// Options override Data. A nil field is unset.
type Options struct {
	Var            *[]string `json:"var,omitempty"`
	UpdateInterval *int      `json:"update_interval,omitempty"`
	Version        *string   `json:"version,omitempty"`
	Forecast       *bool     `json:"forecast,omitempty"`
	ForecastHourly *bool     `json:"forecast_hourly,omitempty"`
	ForecastDaily  *bool     `json:"forecast_daily,omitempty"`
}

// Merge returns o with every field set in next overriding it.
func (o Options) Merge(next Options) Options {
	if next.Var != nil {
		o.Var = next.Var
	}
	if next.UpdateInterval != nil {
		o.UpdateInterval = next.UpdateInterval
	}
	if next.Version != nil {
		o.Version = next.Version
	}
	if next.Forecast != nil {
		o.Forecast = next.Forecast
	}
	if next.ForecastHourly != nil {
		o.ForecastHourly = next.ForecastHourly
	}
	if next.ForecastDaily != nil {
		o.ForecastDaily = next.ForecastDaily
	}
	return o
}

// Entry is a configured pollen device. Each entry has a unique UniqueID
// derived from its coordinates, and is identified by ID.
type Entry struct {
	ID        string    `json:"entry_id"`
	UniqueID  string    `json:"unique_id"`
	Title     string    `json:"title"`
	Data      Data      `json:"data"`
	Options   Options   `json:"options"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Point returns the configured location.
func (e *Entry) Point() geometry.Point {
	return geometry.NewPoint(e.Data.Longitude, e.Data.Latitude)
}

// Settings is the effective configuration of an entry: Options over Data
// over defaults.
type Settings struct {
	Variants       []pollen.Variant
	UpdateInterval time.Duration
	Forecast       bool
	ForecastHourly bool
	ForecastDaily  bool
	Version        silam.Version
	BaseURL        string
}

// Settings resolves the effective configuration. Unknown variants stored
// in an old entry are skipped.
func (e *Entry) Settings() Settings {
	vars := e.Data.Var
	if e.Options.Var != nil {
		vars = *e.Options.Var
	}
	variants := make([]pollen.Variant, 0, len(vars))
	for _, v := range vars {
		if pv := pollen.Variant(v); pv.Valid() {
			variants = append(variants, pv)
		}
	}

	interval := e.Data.UpdateInterval
	if e.Options.UpdateInterval != nil {
		interval = *e.Options.UpdateInterval
	}
	if interval < MinUpdateInterval {
		interval = DefaultUpdateInterval
	}
	if interval > MaxUpdateInterval {
		interval = MaxUpdateInterval
	}

	forecast := e.Data.Forecast
	if e.Options.Forecast != nil {
		forecast = *e.Options.Forecast
	}

	version := silam.Version(e.Data.Version)
	if version == "" {
		version = silam.VersionFromURL(e.Data.BaseURL)
	}

	s := Settings{
		Variants:       variants,
		UpdateInterval: time.Duration(interval) * time.Minute,
		Forecast:       forecast,
		Version:        version,
		BaseURL:        e.Data.BaseURL,
	}
	if e.Options.ForecastHourly != nil {
		s.ForecastHourly = *e.Options.ForecastHourly
	}
	if e.Options.ForecastDaily != nil {
		s.ForecastDaily = *e.Options.ForecastDaily
	}

	return s
}

// Scan will scan the query result in scanner into this Entry.
func (e *Entry) Scan(scanner Scanner) error {
	var data, options string
	if err := scanner.Scan(&e.ID, &e.UniqueID, &e.Title, &data, &options, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
		return fmt.Errorf("decoding entry data (id=%s): %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(options), &e.Options); err != nil {
		return fmt.Errorf("decoding entry options (id=%s): %w", e.ID, err)
	}

	return nil
}

func (e *Entry) encode() (string, string, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return "", "", fmt.Errorf("encoding entry data: %w", err)
	}
	options, err := json.Marshal(e.Options)
	if err != nil {
		return "", "", fmt.Errorf("encoding entry options: %w", err)
	}
	return string(data), string(options), nil
}

// Insert writes this Entry into the database. ID, UniqueID, CreatedAt and
// UpdatedAt must be set before calling this method.
func (e *Entry) Insert(ctx context.Context, db Execer) error {
	data, options, err := e.encode()
	if err != nil {
		return err
	}

	query := `INSERT INTO entries(entry_id, unique_id, title, data, options, created_at, updated_at)
			  VALUES($1, $2, $3, $4, $5, $6, $7)`

	_, err = db.ExecContext(ctx, query,
		e.ID,
		e.UniqueID,
		e.Title,
		data,
		options,
		e.CreatedAt,
		e.UpdatedAt)

	return err
}

// Update writes this Entry to the database as an update. The UniqueID
// and CreatedAt cannot be updated.
func (e *Entry) Update(ctx context.Context, db Execer) (int64, error) {
	data, options, err := e.encode()
	if err != nil {
		return 0, err
	}

	query := `UPDATE entries SET title = $1, data = $2, options = $3, updated_at = $4
			  WHERE entry_id = $5`

	res, err := db.ExecContext(ctx, query, e.Title, data, options, e.UpdatedAt, e.ID)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
