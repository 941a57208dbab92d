package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/reframe-labs/coach/internal/engine"
	"github.com/reframe-labs/coach/internal/log"
	"github.com/reframe-labs/coach/internal/session"
	"github.com/reframe-labs/coach/internal/voice"
)

// errorBody is the JSON error envelope used by every non-stream failure.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response. Buffer-first so headers are only sent
// after successful encoding and a proper 500 can still go out on failure.
func writeJSON(w http.ResponseWriter, status int, data any, logger log.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("failed to write response body", "error", err)
	}
}

// writeError writes the error envelope with the given status and code.
func writeError(w http.ResponseWriter, status int, code, message string, logger log.Logger) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}}, logger)
}

// classifyError maps domain errors to HTTP status and machine-readable code.
// Used for pre-stream failures and voice turns; mid-stream failures reuse
// the code inside an error event instead.
func classifyError(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, engine.ErrEmptyMessage),
		errors.Is(err, engine.ErrMessageTooLong),
		errors.Is(err, engine.ErrLowSignal):
		return http.StatusBadRequest, "validation_error", err.Error()
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "not_found", "session not found"
	case errors.Is(err, session.ErrCredentialLimit),
		errors.Is(err, session.ErrStoreFull):
		return http.StatusForbidden, "capacity_exceeded", "session capacity reached, try again later"
	case errors.Is(err, voice.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "validation_error", "unsupported audio format"
	case errors.Is(err, engine.ErrUpstream):
		return http.StatusBadGateway, "upstream_error", "reply generation failed"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}
