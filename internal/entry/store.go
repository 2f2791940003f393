package entry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an entry does not exist.
	ErrNotFound = errors.New("entry not found")

	// ErrAlreadyConfigured is returned when another entry has the same
	// unique id.
	ErrAlreadyConfigured = errors.New("already configured")
)

const selectColumns = `SELECT entry_id, unique_id, title, data, options, created_at, updated_at FROM entries`

// Store is the database storage of entries.
type Store struct {
	// The database connection.
	DB *sql.DB

	now func() time.Time
}

// NewStore creates and returns a Store with the database connection db.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) timeNow() time.Time {
	if s.now == nil {
		return time.Now().UTC().Truncate(time.Microsecond)
	}
	return s.now()
}

func selectOne(ctx context.Context, db QueryRower, where string, arg any) (Entry, error) {
	var e Entry
	err := e.Scan(db.QueryRowContext(ctx, selectColumns+" WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// Get reads the entry id.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	return selectOne(ctx, s.DB, "entry_id = $1", id)
}

// GetByUniqueID reads the entry with uniqueID.
func (s *Store) GetByUniqueID(ctx context.Context, uniqueID string) (Entry, error) {
	return selectOne(ctx, s.DB, "unique_id = $1", uniqueID)
}

// Exists reports whether an entry with uniqueID is configured.
func (s *Store) Exists(ctx context.Context, uniqueID string) (bool, error) {
	_, err := s.GetByUniqueID(ctx, uniqueID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// List reads every entry ordered by creation time.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.DB.QueryContext(ctx, selectColumns+" ORDER BY created_at, entry_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := e.Scan(rows); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Create assigns a new id and timestamps to e and writes it. If an entry
// with the same UniqueID exists ErrAlreadyConfigured is returned.
func (s *Store) Create(ctx context.Context, e Entry) (Entry, error) {
	exists, err := s.Exists(ctx, e.UniqueID)
	if err != nil {
		return Entry{}, fmt.Errorf("checking unique id (uniqueID=%s): %w", e.UniqueID, err)
	}
	if exists {
		return Entry{}, ErrAlreadyConfigured
	}

	e.ID = uuid.NewString()
	e.CreatedAt = s.timeNow()
	e.UpdatedAt = e.CreatedAt

	if err := e.Insert(ctx, s.DB); err != nil {
		// Lost a race against another flow for the same coordinates.
		if exists, _ := s.Exists(ctx, e.UniqueID); exists {
			return Entry{}, ErrAlreadyConfigured
		}
		return Entry{}, fmt.Errorf("inserting entry: %w", err)
	}

	return e, nil
}

// Save writes the title, data and options of e and bumps UpdatedAt.
func (s *Store) Save(ctx context.Context, e Entry) (Entry, error) {
	e.UpdatedAt = s.timeNow()

	n, err := e.Update(ctx, s.DB)
	if err != nil {
		return Entry{}, fmt.Errorf("updating entry (id=%s): %w", e.ID, err)
	}
	if n == 0 {
		return Entry{}, ErrNotFound
	}

	return e, nil
}

// Delete removes the entry id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM entries WHERE entry_id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting entry (id=%s): %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}
