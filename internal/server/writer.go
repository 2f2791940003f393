package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

type LogWriter struct {
	logger *slog.Logger
	rw     http.ResponseWriter
	r      *http.Request
}

func NewLogWriter(l *slog.Logger, rw http.ResponseWriter, r *http.Request) *LogWriter {
	return &LogWriter{l, rw, r}
}

func (l *LogWriter) Write(r Response) {
	l.rw.Header().Set("Content-Type", "application/json")
	l.rw.WriteHeader(r.Status)
	if r.Body == nil {
		return
	}
	if err := json.NewEncoder(l.rw).Encode(r.Body); err != nil {
		l.logger.Error("failed writing json response",
			"method", l.r.Method,
			"path", l.r.URL.Path,
			"error", err)
	}
}

type ServerErrorResponser interface {
	ServerErrorResponse() (int, string)
}

// WriteError writes err as an ErrorResponse. Only errors implementing
// ServerErrorResponser expose their message; anything else is a 500.
func (l *LogWriter) WriteError(err error) {
	errResp := NewErrorResponse(http.StatusInternalServerError, "Something went wrong")

	var apiError ServerErrorResponser
	if errors.As(err, &apiError) {
		errResp.Status, errResp.ErrorMsg = apiError.ServerErrorResponse()
	}

	if errResp.Status >= http.StatusInternalServerError {
		l.logger.Error("request failed",
			"method", l.r.Method,
			"path", l.r.URL.Path,
			"status", errResp.Status,
			"error", err)
	} else {
		l.logger.Debug("request rejected",
			"method", l.r.Method,
			"path", l.r.URL.Path,
			"status", errResp.Status,
			"error", err)
	}

	l.Write(errResp.AsResponse())
}
