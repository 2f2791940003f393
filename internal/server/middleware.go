package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/cicconee/silam-pollen/internal/admin"
	"github.com/cicconee/silam-pollen/internal/app"
)

// RequestLogger logs every request once it has been served.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

// RateLimit limits requests per client IP to limit per window.
func RateLimit(logger *slog.Logger, limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			NewLogWriter(logger, w, r).Write(
				NewErrorResponse(http.StatusTooManyRequests, "Too many requests, try again later").AsResponse())
		}),
	)
}

const adminTokenCookieKey = "admin_token"

type ctxKey string

// adminIDKey holds the id of the validated admin in the request context.
const adminIDKey ctxKey = "admin_id"

// AdminValidater is a middleware that is wrapped around admin paths.
type AdminValidater struct {
	admins *admin.Service
	logger *slog.Logger
}

// adminToken reads the token from the admin cookie, or from a bearer
// Authorization header.
func adminToken(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(adminTokenCookieKey); err == nil {
		return cookie.Value, nil
	}

	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer "), nil
	}

	return "", fmt.Errorf("missing %s cookie or bearer token", adminTokenCookieKey)
}

// Validate will verify that the caller is an approved admin. The request
// context passed to next holds the admin id.
func (v *AdminValidater) Validate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lw := NewLogWriter(v.logger, w, r)

		token, err := adminToken(r)
		if err != nil {
			lw.WriteError(app.NewServerResponseError(err, "Please login", http.StatusUnauthorized))
			return
		}

		account, err := v.admins.Validate(r.Context(), token)
		if err != nil {
			lw.WriteError(fmt.Errorf("validating token: %w", err))
			return
		}

		if !account.IsApproved() {
			lw.WriteError(app.NewServerResponseError(
				fmt.Errorf("admin not approved (id=%s)", account.ID),
				"Your admin rights are under review",
				http.StatusUnauthorized))
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), adminIDKey, account.ID)))
	}
}
