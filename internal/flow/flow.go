// Package flow runs the multi-step setup wizard that creates entries and
// the options flow that edits them. A flow is a small state machine kept
// in memory between HTTP requests and addressed by its flow id.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cicconee/silam-pollen/internal/entry"
	"github.com/cicconee/silam-pollen/internal/form"
	"github.com/cicconee/silam-pollen/internal/geometry"
	"github.com/cicconee/silam-pollen/internal/metrics"
	"github.com/cicconee/silam-pollen/internal/zone"
)

// DefaultTTL is how long an idle flow is kept.
const DefaultTTL = 30 * time.Minute

// ErrUnknownFlow is returned for a flow id that does not exist or expired.
var ErrUnknownFlow = errors.New("unknown flow")

// Prober checks SILAM availability.
type Prober interface {
	Probe(ctx context.Context, baseURL string, point geometry.Point) error
	ProbeFirst(ctx context.Context, point geometry.Point) (string, error)
}

// Zones resolves named zones.
type Zones interface {
	All(ctx context.Context) ([]zone.Zone, error)
	Get(ctx context.Context, id string) (zone.Zone, bool, error)
}

// Entries stores configured entries.
type Entries interface {
	Exists(ctx context.Context, uniqueID string) (bool, error)
	Create(ctx context.Context, e entry.Entry) (entry.Entry, error)
	Get(ctx context.Context, id string) (entry.Entry, error)
	Save(ctx context.Context, e entry.Entry) (entry.Entry, error)
}

// Reloader restarts whatever runs an entry after its configuration
// changed.
type Reloader interface {
	Reload(ctx context.Context, entryID string)
}

type ResultType string

const (
	ResultForm        ResultType = "form"
	ResultCreateEntry ResultType = "create_entry"
	ResultAbort       ResultType = "abort"
)

// Result is the outcome of starting a flow or submitting a step.
type Result struct {
	FlowID string     `json:"flow_id"`
	Type   ResultType `json:"type"`

	// Set when Type is ResultForm.
	*form.Form

	// Set when Type is ResultCreateEntry.
	Title string       `json:"title,omitempty"`
	Entry *entry.Entry `json:"entry,omitempty"`
	Data  any          `json:"data,omitempty"`

	// Set when Type is ResultAbort.
	Reason string `json:"reason,omitempty"`
}

// Done reports whether the flow finished with this result.
func (r Result) Done() bool {
	return r.Type != ResultForm
}

// stepper is one running flow.
type stepper interface {
	submit(ctx context.Context, input map[string]any) (Result, error)
}

type session struct {
	mu       sync.Mutex
	kind     string
	flow     stepper
	lastUsed time.Time
}

// Manager keeps running flows.
type Manager struct {
	Zones   Zones
	Entries Entries
	Prober  Prober
	Home    zone.Home

	// Reloader is optional.
	Reloader Reloader
	Logger   *slog.Logger

	// TTL is DefaultTTL when zero.
	TTL time.Duration

	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m *Manager) ttl() time.Duration {
	if m.TTL <= 0 {
		return DefaultTTL
	}
	return m.TTL
}

func (m *Manager) timeNow() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}

// add registers a new session and drops expired ones.
func (m *Manager) add(kind string, f stepper) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessions == nil {
		m.sessions = map[string]*session{}
	}

	now := m.timeNow()
	for id, s := range m.sessions {
		if now.Sub(s.lastUsed) > m.ttl() {
			delete(m.sessions, id)
		}
	}

	id := uuid.NewString()
	m.sessions[id] = &session{kind: kind, flow: f, lastUsed: now}
	return id
}

// get returns the live session id of the given kind.
func (m *Manager) get(kind, id string) (*session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || s.kind != kind {
		return nil, false
	}
	if m.timeNow().Sub(s.lastUsed) > m.ttl() {
		delete(m.sessions, id)
		return nil, false
	}
	s.lastUsed = m.timeNow()
	return s, true
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of running flows.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Submit feeds input to the current step of config flow id. A finished
// flow is forgotten. ErrUnknownFlow is returned when id is not a running
// config flow.
func (m *Manager) Submit(ctx context.Context, id string, input map[string]any) (Result, error) {
	return m.submit(ctx, kindConfig, id, input)
}

// SubmitOptions is Submit for options flows.
func (m *Manager) SubmitOptions(ctx context.Context, id string, input map[string]any) (Result, error) {
	return m.submit(ctx, kindOptions, id, input)
}

func (m *Manager) submit(ctx context.Context, kind, id string, input map[string]any) (Result, error) {
	s, ok := m.get(kind, id)
	if !ok {
		return Result{}, ErrUnknownFlow
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.flow.submit(ctx, input)
	if err != nil {
		return Result{}, err
	}

	res.FlowID = id
	if res.Done() {
		m.remove(id)
		metrics.FlowTotal.WithLabelValues(s.kind, string(res.Type)).Inc()
		m.logger().Info("flow finished",
			"flow_id", id,
			"kind", s.kind,
			"type", res.Type,
			"reason", res.Reason)
	}

	return res, nil
}

// formResult wraps f as a form Result.
func formResult(f *form.Form) Result {
	return Result{Type: ResultForm, Form: f}
}

// fieldErrors turns a validation error into form errors, or returns
// nil when err is not one.
func fieldErrors(err error) map[string]string {
	var vErr *form.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Fields
	}
	return nil
}
