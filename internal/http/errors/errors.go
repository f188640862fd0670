// Package errors writes the JSON error and data envelopes used by the API.
package errors

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Data writes a success payload inside the {"data": ...} envelope.
func Data(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, map[string]any{"data": v})
}

// Error writes a client-facing error message.
func Error(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// Validation writes field-keyed validation messages with a 422 status.
func Validation(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error":  "validation failed",
		"fields": fields,
	})
}

// Internal logs the real error with the request ID and returns a generic
// message to the client.
func Internal(w http.ResponseWriter, r *http.Request, err error, message string) {
	slog.Error(message, "error", err, "request_id", middleware.GetReqID(r.Context()))
	Error(w, http.StatusInternalServerError, "internal server error")
}

// BadRequest logs the rejected input and returns the client message.
func BadRequest(w http.ResponseWriter, r *http.Request, err error, clientMessage string) {
	slog.Warn("bad request", "error", err, "request_id", middleware.GetReqID(r.Context()))
	Error(w, http.StatusBadRequest, clientMessage)
}

// NotFound writes the standard not-found error.
func NotFound(w http.ResponseWriter) {
	Error(w, http.StatusNotFound, "not found")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
