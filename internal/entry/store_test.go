package entry

import (
	"context"
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cicconee/silam-pollen/internal/db"
	"github.com/cicconee/silam-pollen/internal/pollen"
	"github.com/cicconee/silam-pollen/internal/silam"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testEntry() Entry {
	return Entry{
		UniqueID: "60.1699_24.9384",
		Title:    Title("Home"),
		Data: Data{
			ZoneID:            "zone.home",
			ZoneName:          "Home",
			Latitude:          60.1699,
			Longitude:         24.9384,
			Altitude:          17,
			Var:               []string{"birch_m22", "grass_m32"},
			UpdateInterval:    60,
			BaseURL:           silam.BaseURLV60,
			ManualCoordinates: true,
			Title:             Title("Home"),
		},
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))

	created, err := s.Create(ctx, testEntry())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.UniqueID, got.UniqueID)
	assert.Equal(t, created.Data, got.Data)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))

	byUnique, err := s.GetByUniqueID(ctx, "60.1699_24.9384")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byUnique.ID)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreCreate_UniqueID(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))

	_, err := s.Create(ctx, testEntry())
	require.NoError(t, err)

	_, err = s.Create(ctx, testEntry())
	assert.ErrorIs(t, err, ErrAlreadyConfigured)

	entries, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStoreSaveAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))

	e, err := s.Create(ctx, testEntry())
	require.NoError(t, err)

	interval := 90
	e.Options = e.Options.Merge(Options{UpdateInterval: &interval})
	e.Data.Version = string(silam.V591)
	e.Data.BaseURL = silam.BaseURLV591
	s.now = func() time.Time { return e.CreatedAt.Add(time.Hour) }

	saved, err := s.Save(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, e.CreatedAt.Add(time.Hour), saved.UpdatedAt)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Options.UpdateInterval)
	assert.Equal(t, 90, *got.Options.UpdateInterval)
	assert.Equal(t, silam.BaseURLV591, got.Data.BaseURL)

	require.NoError(t, s.Delete(ctx, e.ID))
	assert.ErrorIs(t, s.Delete(ctx, e.ID), ErrNotFound)

	_, err = s.Save(ctx, e)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEntrySettings(t *testing.T) {
	e := testEntry()

	s := e.Settings()
	assert.Equal(t, []pollen.Variant{pollen.Birch, pollen.Grass}, s.Variants)
	assert.Equal(t, time.Hour, s.UpdateInterval)
	assert.False(t, s.Forecast)
	assert.Equal(t, silam.V60, s.Version)

	vars := []string{"olive_m28", "pine_m01"}
	interval := 45
	forecast := true
	daily := true
	e.Options = e.Options.Merge(Options{Var: &vars, UpdateInterval: &interval})
	e.Options = e.Options.Merge(Options{Forecast: &forecast, ForecastDaily: &daily})

	s = e.Settings()
	assert.Equal(t, []pollen.Variant{pollen.Olive}, s.Variants)
	assert.Equal(t, 45*time.Minute, s.UpdateInterval)
	assert.True(t, s.Forecast)
	assert.True(t, s.ForecastDaily)
	assert.False(t, s.ForecastHourly)

	empty := []string{}
	e.Options = e.Options.Merge(Options{Var: &empty})
	assert.Empty(t, e.Settings().Variants)
}

func TestEntrySettings_IntervalBounds(t *testing.T) {
	tests := []struct {
		name     string
		interval int
		want     time.Duration
	}{
		{name: "below minimum", interval: 10, want: time.Hour},
		{name: "negative", interval: -5, want: time.Hour},
		{name: "maximum", interval: MaxUpdateInterval, want: MaxUpdateInterval * time.Minute},
		{name: "above maximum", interval: 200000000, want: MaxUpdateInterval * time.Minute},
		{name: "huge", interval: math.MaxInt, want: MaxUpdateInterval * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEntry()
			interval := tt.interval
			e.Options = e.Options.Merge(Options{UpdateInterval: &interval})

			got := e.Settings().UpdateInterval
			assert.Equal(t, tt.want, got)
			assert.Positive(t, got)
		})
	}
}
