package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse represents a standardized error response format.
type ErrorResponse struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// WriteError writes a standardized JSON error response to the HTTP response writer.
// It sets the appropriate Content-Type header, status code, and encodes the error response.
func WriteError(w http.ResponseWriter, statusCode int, message string, errors []string, log *slog.Logger) {
	response := ErrorResponse{
		Message: message,
		Errors:  errors,
	}

	WriteJSON(w, statusCode, response, log)
}

// WriteJSON writes v as a JSON response with the given status code. Encoding
// failures after the status line has been written can only be logged.
func WriteJSON(w http.ResponseWriter, statusCode int, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		if log != nil {
			log.Error("failed to encode response", "error", err)
		}
	}
}
