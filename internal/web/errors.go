package web

// errors.go provides unified error response handling for the web layer.
// Technical errors are logged server-side with the request ID; clients get
// a JSON body with a plain message and the matching HTTP status.

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sheetmerge/sheetmerge/internal/core"
	"github.com/sheetmerge/sheetmerge/internal/logging"
	"github.com/sheetmerge/sheetmerge/internal/merge"
)

// errorResponse is the JSON structure for API error responses.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError logs the error server-side and writes a JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", message,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// writeJSON encodes v as JSON. Encoding errors are only logged since the
// headers are already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}

// respondServiceError maps service errors onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrJobNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrTooManyMerges):
		w.Header().Set("Retry-After", "30")
		writeError(w, r, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, merge.ErrSourceUnreadable), errors.Is(err, merge.ErrNoSources):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, err.Error())
	}
}
