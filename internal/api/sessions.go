package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/reframe-labs/coach/internal/log"
)

// handleCreateSession starts a new coaching session for the caller.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	credential := CredentialFromContext(r.Context())

	if ok, retryAfter := s.limiter.Allow(credential, categorySession); !ok {
		writeRateLimited(w, retryAfter, s.logger)
		return
	}

	sess, err := s.store.Create(credential)
	if err != nil {
		status, code, message := classifyError(err)
		writeError(w, status, code, message, s.logger)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"session_id": sess.ID}, s.logger)
}

// handleDeleteSession ends a session. Always 204: a missing or foreign
// session is indistinguishable from a deleted one.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	credential := CredentialFromContext(r.Context())
	s.store.Delete(r.PathValue("id"), credential)
	w.WriteHeader(http.StatusNoContent)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration, logger log.Logger) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "rate limit exceeded, try again later", logger)
}
