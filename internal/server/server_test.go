package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cicconee/silam-pollen/internal/admin"
	"github.com/cicconee/silam-pollen/internal/db"
	"github.com/cicconee/silam-pollen/internal/entry"
	"github.com/cicconee/silam-pollen/internal/flow"
	"github.com/cicconee/silam-pollen/internal/forecast"
	"github.com/cicconee/silam-pollen/internal/silam"
	"github.com/cicconee/silam-pollen/internal/zone"
)

const pointXML = `<?xml version="1.0" encoding="UTF-8"?>
<stationFeatureCollection>
  <stationFeature date="2024-04-10T12:00:00Z">
    <station name="p" latitude="60.17" longitude="24.94" altitude="NaN"/>
    <data name="POLI" units="">3.0</data>
    <data name="POLISRC" units="">2.0</data>
    <data name="temp_2m" units="K">283.15</data>
  </stationFeature>
</stationFeatureCollection>`

// handlerDoer answers every request with an in-process handler, whatever
// the host.
type handlerDoer struct {
	h http.Handler
}

func (d handlerDoer) Do(r *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	d.h.ServeHTTP(rec, r)
	return rec.Result(), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const (
	testAdmin    = "admin"
	testPassword = "correct horse"
)

func newTestServer(t *testing.T, silamHandler http.HandlerFunc) *httptest.Server {
	t.Helper()

	conn, err := db.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	logger := discardLogger()
	home := zone.Home{Latitude: 60.1699, Longitude: 24.9384, Elevation: 17}
	client := &silam.Client{HTTP: handlerDoer{silamHandler}, Logger: logger}

	admins := admin.New([]byte("test-secret"), conn)
	admins.Cost = bcrypt.MinCost
	require.NoError(t, admins.Ensure(context.Background(), testAdmin, testPassword))

	zones := zone.New(conn, home)
	entries := entry.NewStore(conn)
	devices := forecast.NewService(entries, client, nil, logger)

	s := &Server{
		Router:  chi.NewRouter(),
		Logger:  logger,
		Admins:  admins,
		Zones:   zones,
		Entries: entries,
		Flows: &flow.Manager{
			Zones:    zones,
			Entries:  entries,
			Prober:   client,
			Home:     home,
			Reloader: devices,
			Logger:   logger,
		},
		Devices: devices,
	}

	h, err := s.Handler()
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func silamOK(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(pointXML))
}

func do(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	return doAs(t, "", method, url, body)
}

// doAs sends the request with token as bearer token when set.
func doAs(t *testing.T, token, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return res, out
}

func login(t *testing.T, srv *httptest.Server) string {
	t.Helper()

	res, body := do(t, http.MethodPost, srv.URL+"/admins/login", map[string]any{
		"username": testAdmin,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	var cookie *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == adminTokenCookieKey {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, body["token"], cookie.Value)

	return body["token"].(string)
}

func TestAdminAuth(t *testing.T) {
	srv := newTestServer(t, silamOK)

	res, body := do(t, http.MethodPost, srv.URL+"/admins/login", map[string]any{
		"username": testAdmin,
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "Invalid credentials", body["error_msg"])

	res, _ = do(t, http.MethodPost, srv.URL+"/admins/signup", map[string]any{
		"username": "newbie",
		"password": "pw",
	})
	assert.Equal(t, http.StatusCreated, res.StatusCode)

	res, body = do(t, http.MethodPost, srv.URL+"/admins/login", map[string]any{
		"username": "newbie",
		"password": "pw",
	})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "Your admin rights are under review", body["error_msg"])

	zoneBody := map[string]any{"name": "Work", "latitude": 60.2, "longitude": 24.8}

	res, body = do(t, http.MethodPut, srv.URL+"/zones/zone.work", zoneBody)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "Please login", body["error_msg"])

	res, _ = doAs(t, "garbage", http.MethodPut, srv.URL+"/zones/zone.work", zoneBody)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = doAs(t, login(t, srv), http.MethodPut, srv.URL+"/zones/zone.work", zoneBody)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestHelloWorld(t *testing.T) {
	srv := newTestServer(t, silamOK)

	res, body := do(t, http.MethodGet, srv.URL+"/", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	assert.NotEmpty(t, body["message"])
}

func TestZones(t *testing.T) {
	srv := newTestServer(t, silamOK)

	res, body := do(t, http.MethodGet, srv.URL+"/zones", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	zones := body["zones"].([]any)
	require.Len(t, zones, 1)
	assert.Equal(t, zone.HomeID, zones[0].(map[string]any)["id"])

	token := login(t, srv)
	res, _ = doAs(t, token, http.MethodPut, srv.URL+"/zones/zone.work", map[string]any{
		"name": "Work", "latitude": 60.2, "longitude": 24.8, "radius": 100,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, body = do(t, http.MethodGet, srv.URL+"/zones", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	zones = body["zones"].([]any)
	require.Len(t, zones, 1)
	assert.Equal(t, "zone.work", zones[0].(map[string]any)["id"])

	res, body = doAs(t, token, http.MethodPut, srv.URL+"/zones/work", map[string]any{"name": "Work"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.NotEmpty(t, body["error_msg"])
}

func TestBadJSON(t *testing.T) {
	srv := newTestServer(t, silamOK)

	res, err := http.Post(srv.URL+"/flows/abc", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestUnknownFlow(t *testing.T) {
	srv := newTestServer(t, silamOK)

	res, body := do(t, http.MethodPost, srv.URL+"/flows/missing", map[string]any{})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "Flow not found or expired", body["error_msg"])
}

func TestFlowRoutesKeepKinds(t *testing.T) {
	srv := newTestServer(t, silamOK)
	entryID := createEntry(t, srv)

	res, body := do(t, http.MethodPost, srv.URL+"/flows", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	configID := body["flow_id"].(string)

	res, body = do(t, http.MethodPost, srv.URL+"/options/"+configID, map[string]any{})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "Flow not found or expired", body["error_msg"])

	// The config flow is still usable on its own route.
	res, body = do(t, http.MethodPost, srv.URL+"/flows/"+configID, map[string]any{"zone_id": "zone.home"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, flow.StepManualCoords, body["step_id"])

	res, body = do(t, http.MethodPost, srv.URL+"/entries/"+entryID+"/options", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	optionsID := body["flow_id"].(string)

	res, _ = do(t, http.MethodPost, srv.URL+"/flows/"+optionsID, map[string]any{})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, body = do(t, http.MethodPost, srv.URL+"/options/"+optionsID, map[string]any{"version": "v6_0"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "create_entry", body["type"])
}

func createEntry(t *testing.T, srv *httptest.Server) string {
	t.Helper()

	res, body := do(t, http.MethodPost, srv.URL+"/flows", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "form", body["type"])
	assert.Equal(t, flow.StepUser, body["step_id"])
	flowID := body["flow_id"].(string)

	res, body = do(t, http.MethodPost, srv.URL+"/flows/"+flowID, map[string]any{
		"zone_id":         "zone.home",
		"var":             []string{"birch_m22"},
		"update_interval": 60,
		"forecast":        false,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, flow.StepManualCoords, body["step_id"])

	res, body = do(t, http.MethodPost, srv.URL+"/flows/"+flowID, map[string]any{
		"zone_name": "Helsinki",
		"altitude":  20,
		"location":  map[string]any{"latitude": 60.17, "longitude": 24.94, "radius": 5000},
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "create_entry", body["type"], body)
	assert.Equal(t, "SILAM Pollen - Helsinki", body["title"])

	return body["entry"].(map[string]any)["entry_id"].(string)
}

func TestEntryLifecycle(t *testing.T) {
	srv := newTestServer(t, silamOK)
	entryID := createEntry(t, srv)

	res, body := do(t, http.MethodGet, srv.URL+"/entries", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, body["entries"], 1)

	res, body = do(t, http.MethodGet, srv.URL+"/entries/"+entryID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "60.17_24.94", body["unique_id"])
	assert.Equal(t, silam.BaseURLV591, body["data"].(map[string]any)["base_url"])

	res, body = do(t, http.MethodGet, srv.URL+"/entries/"+entryID+"/forecast", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, entryID+"_pollen_forecast", body["unique_id"])
	assert.Nil(t, body["state"])

	res, body = do(t, http.MethodPost, srv.URL+"/entries/"+entryID+"/refresh", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "moderate", body["state"])
	assert.Equal(t, "birch", body["attributes"].(map[string]any)[forecast.AttrResponsible])
	assert.EqualValues(t, forecast.SupportForecastHourly|forecast.SupportForecastTwiceDaily, body["supported_features"])

	res, body = do(t, http.MethodPost, srv.URL+"/entries/"+entryID+"/options", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, flow.StepInit, body["step_id"])
	flowID := body["flow_id"].(string)

	res, body = do(t, http.MethodPost, srv.URL+"/options/"+flowID, map[string]any{
		"var":             []string{"grass_m32"},
		"update_interval": 90,
		"version":         "v6_0",
		"forecast":        true,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "create_entry", body["type"])

	res, body = do(t, http.MethodGet, srv.URL+"/entries/"+entryID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, silam.BaseURLV60, body["data"].(map[string]any)["base_url"])

	res, _ = do(t, http.MethodDelete, srv.URL+"/entries/"+entryID, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = doAs(t, login(t, srv), http.MethodDelete, srv.URL+"/entries/"+entryID, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res, _ = do(t, http.MethodGet, srv.URL+"/entries/"+entryID, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = do(t, http.MethodGet, srv.URL+"/entries/"+entryID+"/forecast", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestCreateEntryProbeFailure(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("point outside domain"))
	})

	_, body := do(t, http.MethodPost, srv.URL+"/flows", nil)
	flowID := body["flow_id"].(string)

	_, _ = do(t, http.MethodPost, srv.URL+"/flows/"+flowID, map[string]any{
		"zone_id":         "zone.home",
		"update_interval": 60,
	})

	res, body := do(t, http.MethodPost, srv.URL+"/flows/"+flowID, map[string]any{
		"altitude": 20,
		"location": map[string]any{"latitude": 10.0, "longitude": 10.0},
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "form", body["type"])
	assert.Equal(t, flow.StepManualCoords, body["step_id"])
	assert.Equal(t, map[string]any{"base": "point outside domain"}, body["errors"])
}

func TestRefreshUpstreamFailure(t *testing.T) {
	var failing atomic.Bool
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		silamOK(w, r)
	})
	entryID := createEntry(t, srv)

	failing.Store(true)
	res, body := do(t, http.MethodPost, srv.URL+"/entries/"+entryID+"/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
	assert.Equal(t, "Failed refreshing pollen data", body["error_msg"])
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t, silamOK)

	res, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(raw), "silam_pollen_entries")
}

func TestFlowRateLimit(t *testing.T) {
	srv := newTestServer(t, silamOK)

	var last *http.Response
	var body map[string]any
	for i := 0; i <= flowRateLimit; i++ {
		last, body = do(t, http.MethodPost, srv.URL+"/flows/missing", map[string]any{})
	}

	assert.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	assert.NotEmpty(t, last.Header.Get("Retry-After"))
	assert.Equal(t, "Too many requests, try again later", body["error_msg"])
}
