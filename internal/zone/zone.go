// Package zone is the registry of named places an entry can be set up
// for. zone.home always exists; it follows the configured home location
// unless it has been stored explicitly.
package zone

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cicconee/silam-pollen/internal/geometry"
)

// HomeID is the id of the home zone.
const HomeID = "zone.home"

// HomeName is the friendly name of the home zone when none is stored.
const HomeName = "Home"

// idPrefix is required on every zone id.
const idPrefix = "zone."

// Zone is a named place.
type Zone struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"`
}

// Point returns the zone center.
func (z Zone) Point() geometry.Point {
	return geometry.NewPoint(z.Longitude, z.Latitude)
}

// Validate checks the id prefix, the name and the coordinates.
func (z Zone) Validate() error {
	if !strings.HasPrefix(z.ID, idPrefix) || len(z.ID) == len(idPrefix) {
		return fmt.Errorf("zone id %q must start with %q", z.ID, idPrefix)
	}
	if strings.TrimSpace(z.Name) == "" {
		return errors.New("zone name is required")
	}
	if !z.Point().Valid() {
		return fmt.Errorf("zone coordinates %v are out of range", z.Point())
	}
	if z.Radius < 0 {
		return errors.New("zone radius must not be negative")
	}

	return nil
}

// Home is the location of the installation.
type Home struct {
	Latitude  float64
	Longitude float64
	Elevation float64
}

// Zone returns the home zone built from h.
func (h Home) Zone() Zone {
	return Zone{
		ID:        HomeID,
		Name:      HomeName,
		Latitude:  h.Latitude,
		Longitude: h.Longitude,
	}
}

// Registry resolves zones from the Store, falling back to Home.
type Registry struct {
	Store *Store
	Home  Home
}

// New returns a Registry over db.
func New(db *sql.DB, home Home) *Registry {
	return &Registry{
		Store: NewStore(db),
		Home:  home,
	}
}

// All returns every stored zone ordered by id. When nothing is stored it
// returns only the home zone.
func (r *Registry) All(ctx context.Context) ([]Zone, error) {
	zones, err := r.Store.SelectAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("selecting zones: %w", err)
	}

	if len(zones) == 0 {
		return []Zone{r.Home.Zone()}, nil
	}

	return zones, nil
}

// Get returns the zone id. The second return value is false if it does
// not exist. zone.home always exists.
func (r *Registry) Get(ctx context.Context, id string) (Zone, bool, error) {
	z, err := r.Store.Select(ctx, id)
	switch {
	case err == nil:
		return z, true, nil
	case errors.Is(err, sql.ErrNoRows):
		if id == HomeID {
			return r.Home.Zone(), true, nil
		}
		return Zone{}, false, nil
	default:
		return Zone{}, false, fmt.Errorf("selecting zone (id=%s): %w", id, err)
	}
}

// Put validates and stores z, replacing any zone with the same id.
func (r *Registry) Put(ctx context.Context, z Zone) error {
	if err := z.Validate(); err != nil {
		return err
	}

	if err := r.Store.Upsert(ctx, z); err != nil {
		return fmt.Errorf("storing zone (id=%s): %w", z.ID, err)
	}

	return nil
}
