package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/KaramelBytes/sheetqa/internal/assistant"
	"github.com/KaramelBytes/sheetqa/internal/parser"
	"github.com/KaramelBytes/sheetqa/internal/sqlexec"
)

// writeJSONResponse writes data as JSON with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeErrorResponse writes {"error": message, "status": "error"}.
func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, map[string]any{
		"error":  message,
		"status": "error",
	})
}

// writeError maps known errors to a status code.
func writeError(w http.ResponseWriter, err error) {
	writeErrorResponse(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, assistant.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, assistant.ErrNoDataLoaded),
		errors.Is(err, assistant.ErrEmptyQuestion),
		errors.Is(err, sqlexec.ErrNotReadOnly):
		return http.StatusBadRequest
	case errors.Is(err, parser.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// parseIntParam reads a positive integer query parameter, returning def
// when absent or invalid.
func parseIntParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
