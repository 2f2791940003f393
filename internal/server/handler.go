package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cicconee/silam-pollen/internal/admin"
	"github.com/cicconee/silam-pollen/internal/app"
	"github.com/cicconee/silam-pollen/internal/entry"
	"github.com/cicconee/silam-pollen/internal/flow"
	"github.com/cicconee/silam-pollen/internal/forecast"
	"github.com/cicconee/silam-pollen/internal/zone"
)

type Handler struct {
	logger  *slog.Logger
	admins  *admin.Service
	zones   *zone.Registry
	entries *entry.Store
	flows   *flow.Manager
	devices *forecast.Service
}

func NewHandler(l *slog.Logger) *Handler {
	return &Handler{
		logger: l,
	}
}

func (h *Handler) NewLogWriter(w http.ResponseWriter, r *http.Request) *LogWriter {
	return NewLogWriter(h.logger, w, r)
}

func (h *Handler) HelloWorld() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type res struct {
			Message string `json:"message"`
		}

		h.NewLogWriter(w, r).Write(Response{
			Status: http.StatusOK,
			Body:   res{Message: "SILAM Pollen is running"},
		})
	}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) HandlePostSignup() http.HandlerFunc {
	type res struct {
		Message string `json:"message"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		writer := h.NewLogWriter(w, r)

		var c credentials
		if err := DecodeJSON(r, &c); err != nil {
			writer.WriteError(err)
			return
		}

		if err := h.admins.Signup(r.Context(), c.Username, c.Password); err != nil {
			writer.WriteError(err)
			return
		}

		writer.Write(Response{
			Status: http.StatusCreated,
			Body:   res{Message: "Signed up, waiting for approval"},
		})
	}
}

func (h *Handler) HandlePostLogin() http.HandlerFunc {
	type res struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		writer := h.NewLogWriter(w, r)

		var c credentials
		if err := DecodeJSON(r, &c); err != nil {
			writer.WriteError(err)
			return
		}

		token, err := h.admins.Login(r.Context(), c.Username, c.Password)
		if err != nil {
			writer.WriteError(err)
			return
		}

		expires := time.Now().Add(admin.TokenTTL)
		http.SetCookie(w, &http.Cookie{
			Name:     adminTokenCookieKey,
			Value:    token,
			Path:     "/",
			Expires:  expires,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})

		writer.Write(Response{
			Status: http.StatusOK,
			Body:   res{Token: token, ExpiresAt: expires},
		})
	}
}

func (h *Handler) HandleGetZones() http.HandlerFunc {
	type res struct {
		Zones []zone.Zone `json:"zones"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		writer := h.NewLogWriter(w, r)

		zones, err := h.zones.All(r.Context())
		if err != nil {
			writer.WriteError(fmt.Errorf("listing zones: %w", err))
			return
		}

		writer.Write(Response{Status: http.StatusOK, Body: res{Zones: zones}})
	}
}

func (h *Handler) HandlePutZone() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writer := h.NewLogWriter(w, r)

		var z zone.Zone
		if err := DecodeJSON(r, &z); err != nil {
			writer.WriteError(err)
			return
		}
		z.ID = chi.URLParam(r, "id")

		if err := z.Validate(); err != nil {
			writer.WriteError(app.BadRequest(err, err.Error()))
			return
		}

		if err := h.zones.Put(r.Context(), z); err != nil {
			writer.WriteError(fmt.Errorf("storing zone (id=%s): %w", z.ID, err))
			return
		}

		writer.Write(Response{Status: http.StatusOK, Body: z})
	}
}

func (h *Handler) HandleStartFlow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writer := h.NewLogWriter(w, r)

		res, err := h.flows.Start(r.Context())
		if err != nil {
			writer.WriteError(fmt.Errorf("starting config flow: %w", err))
			return
		}

		writer.Write(Response{Status: http.StatusOK, Body: res})
	}
}

// HandleSubmitFlow feeds the body to the current step of a config flow.
func (h *Handler) HandleSubmitFlow() http.HandlerFunc {
	return h.submitFlow(h.flows.Submit)
}

// HandleSubmitOptions feeds the body to the current step of an options
// flow.
func (h *Handler) HandleSubmitOptions() http.HandlerFunc {
	return h.submitFlow(h.flows.SubmitOptions)
}

type submitFunc func(ctx context.Context, id string, input map[string]any) (flow.Result, error)

func (h *Handler) submitFlow(submit submitFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowID := chi.URLParam(r, "flowID")
		writer := h.NewLogWriter(w, r)

		input := map[string]any{}
		if err := DecodeJSON(r, &input); err != nil {
			writer.WriteError(err)
			return
		}

		res, err := submit(r.Context(), flowID, input)
		if errors.Is(err, flow.ErrUnknownFlow) {
			writer.WriteError(app.NotFound(err, "Flow not found or expired"))
			return
		}
		if err != nil {
			writer.WriteError(fmt.Errorf("submitting flow (id=%s): %w", flowID, err))
			return
		}

		writer.Write(Response{Status: http.StatusOK, Body: res})
	}
}

func (h *Handler) HandleGetEntries() http.HandlerFunc {
	type res struct {
		Entries []entry.Entry `json:"entries"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		writer := h.NewLogWriter(w, r)

		entries, err := h.entries.List(r.Context())
		if err != nil {
			writer.WriteError(fmt.Errorf("listing entries: %w", err))
			return
		}

		writer.Write(Response{Status: http.StatusOK, Body: res{Entries: entries}})
	}
}

func entryError(err error, entryID string) error {
	if errors.Is(err, entry.ErrNotFound) {
		return app.NotFound(err, "Entry not found")
	}
	return fmt.Errorf("entry (id=%s): %w", entryID, err)
}

func (h *Handler) HandleGetEntry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entryID := chi.URLParam(r, "entryID")
		writer := h.NewLogWriter(w, r)

		e, err := h.entries.Get(r.Context(), entryID)
		if err != nil {
			writer.WriteError(entryError(err, entryID))
			return
		}

		writer.Write(Response{Status: http.StatusOK, Body: e})
	}
}

func (h *Handler) HandleDeleteEntry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entryID := chi.URLParam(r, "entryID")
		writer := h.NewLogWriter(w, r)

		if err := h.entries.Delete(r.Context(), entryID); err != nil {
			writer.WriteError(entryError(err, entryID))
			return
		}
		h.devices.Remove(entryID)

		h.logger.Info("removed entry", "entry_id", entryID, "admin_id", r.Context().Value(adminIDKey))
		writer.Write(Response{Status: http.StatusNoContent})
	}
}

func (h *Handler) HandleStartOptions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entryID := chi.URLParam(r, "entryID")
		writer := h.NewLogWriter(w, r)

		res, err := h.flows.StartOptions(r.Context(), entryID)
		if err != nil {
			writer.WriteError(err)
			return
		}

		writer.Write(Response{Status: http.StatusOK, Body: res})
	}
}

// view returns the device view of entryID, loading the device when the
// worker has not picked the entry up yet.
func (h *Handler) view(r *http.Request, entryID string) (forecast.View, error) {
	v, err := h.devices.View(entryID)
	if !errors.Is(err, forecast.ErrNotLoaded) {
		return v, err
	}

	h.devices.Reload(r.Context(), entryID)
	v, err = h.devices.View(entryID)
	if errors.Is(err, forecast.ErrNotLoaded) {
		return v, app.NotFound(err, "Entry not found")
	}
	return v, err
}

func (h *Handler) HandleGetForecast() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entryID := chi.URLParam(r, "entryID")
		writer := h.NewLogWriter(w, r)

		v, err := h.view(r, entryID)
		if err != nil {
			writer.WriteError(err)
			return
		}

		writer.Write(Response{Status: http.StatusOK, Body: v})
	}
}

func (h *Handler) HandleRefresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entryID := chi.URLParam(r, "entryID")
		writer := h.NewLogWriter(w, r)

		if _, err := h.view(r, entryID); err != nil {
			writer.WriteError(err)
			return
		}

		if err := h.devices.Refresh(r.Context(), entryID); err != nil {
			writer.WriteError(app.NewServerResponseError(err,
				"Failed refreshing pollen data",
				http.StatusBadGateway))
			return
		}

		v, err := h.devices.View(entryID)
		if err != nil {
			writer.WriteError(err)
			return
		}

		writer.Write(Response{Status: http.StatusOK, Body: v})
	}
}
