package httputil

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

// maxBodyBytes bounds the size of decoded JSON request bodies.
const maxBodyBytes = 64 << 10

// ErrorResponse is the standard error envelope for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// AckResponse is the in-band result envelope of the telemetry endpoints.
type AckResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("httputil: JSON encode failed", "error", err)
	}
}

// OK writes a 200 response with the given data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// Ack writes a 200 telemetry acknowledgement. Failures are reported through
// success=false and a reason code, never through the status line, so that
// fire-and-forget callers do not retry.
func Ack(w http.ResponseWriter, success bool, reason string) {
	JSON(w, http.StatusOK, AckResponse{Success: success, Reason: reason})
}

// Reject writes a 400 telemetry acknowledgement for malformed payloads.
func Reject(w http.ResponseWriter, reason string) {
	JSON(w, http.StatusBadRequest, AckResponse{Success: false, Reason: reason})
}

// Decode reads a bounded JSON body into dst. Empty bodies are rejected.
// Beacons sent with text/plain are accepted; the content type is not checked.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(dst)
}
