package api

import (
	"encoding/json"
	"net/http"

	"github.com/reframe-labs/coach/internal/coach"
	"github.com/reframe-labs/coach/internal/engine"
)

type messageRequest struct {
	Text string `json:"text"`
}

// streamEvent is one NDJSON line of the message stream.
type streamEvent struct {
	Type  string       `json:"type"`
	Text  string       `json:"text,omitempty"`
	State *coach.State `json:"state,omitempty"`
	Error *errorDetail `json:"error,omitempty"`
}

// handleMessage runs one chat turn and streams the reply as NDJSON:
// zero or more token events, then exactly one done or error event.
// Failures before the first byte go out as a plain JSON error with a
// proper status; after streaming starts they become an error event.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	credential := CredentialFromContext(r.Context())
	sessionID := r.PathValue("id")

	if ok, retryAfter := s.limiter.Allow(credential, categoryMessage); !ok {
		writeRateLimited(w, retryAfter, s.logger)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body", s.logger)
		return
	}

	events, err := s.engine.Converse(r.Context(), sessionID, credential, req.Text)
	if err != nil {
		status, code, message := classifyError(err)
		writeError(w, status, code, message, s.logger)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for ev := range events {
		line := streamEvent{}
		switch ev.Type {
		case engine.EventToken:
			line.Type = "token"
			line.Text = ev.Text
		case engine.EventDone:
			st := ev.State
			line.Type = "done"
			line.State = &st
		case engine.EventError:
			_, code, message := classifyError(ev.Err)
			line.Type = "error"
			line.Error = &errorDetail{Code: code, Message: message}
		default:
			continue
		}

		if err := enc.Encode(line); err != nil {
			// Client went away; drain so the producer can finish.
			s.logger.Debug("client disconnected mid-stream",
				"session_id", sessionID,
				"error", err,
			)
			for range events {
			}
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
