package zone

import (
	"context"
	"database/sql"
)

// Store is the database storage of zones.
type Store struct {
	DB *sql.DB
}

// NewStore creates and returns a Store with the database connection db.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

type scanner interface {
	Scan(...any) error
}

func scanZone(s scanner) (Zone, error) {
	var z Zone
	err := s.Scan(&z.ID, &z.Name, &z.Latitude, &z.Longitude, &z.Radius)
	return z, err
}

// Select reads the zone id. If no rows are found a sql.ErrNoRows error
// is returned.
func (s *Store) Select(ctx context.Context, id string) (Zone, error) {
	query := `SELECT id, name, latitude, longitude, radius FROM zones WHERE id = $1`

	return scanZone(s.DB.QueryRowContext(ctx, query, id))
}

// SelectAll reads every zone ordered by id.
func (s *Store) SelectAll(ctx context.Context) ([]Zone, error) {
	query := `SELECT id, name, latitude, longitude, radius FROM zones ORDER BY id`

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	zones := []Zone{}
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}

	return zones, rows.Err()
}

// Upsert writes z, replacing an existing zone with the same id.
func (s *Store) Upsert(ctx context.Context, z Zone) error {
	query := `INSERT INTO zones(id, name, latitude, longitude, radius) VALUES($1, $2, $3, $4, $5)
			  ON CONFLICT (id) DO UPDATE SET name = excluded.name, latitude = excluded.latitude,
			  longitude = excluded.longitude, radius = excluded.radius`

	_, err := s.DB.ExecContext(ctx, query, z.ID, z.Name, z.Latitude, z.Longitude, z.Radius)
	return err
}
