package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/reframe-labs/coach/internal/coach"
	"github.com/reframe-labs/coach/internal/engine"
	"github.com/reframe-labs/coach/internal/log"
	"github.com/reframe-labs/coach/internal/session"
	"github.com/reframe-labs/coach/internal/voice"
)

// Conversing is the slice of engine behavior the handlers need.
type Conversing interface {
	Converse(ctx context.Context, sessionID, credential, text string) (<-chan engine.Event, error)
	Reply(ctx context.Context, sessionID, credential, text string) (string, coach.State, error)
}

// SessionStore is the slice of session store behavior the handlers need.
type SessionStore interface {
	Create(credential string) (*session.Session, error)
	Delete(id, credential string)
}

// ServerConfig holds everything the HTTP server needs.
type ServerConfig struct {
	Logger log.Logger
	Store  SessionStore
	Engine Conversing

	// Voice dependencies; both nil disables the voice endpoint.
	Transcriber voice.Transcriber
	Synthesizer voice.Synthesizer

	APIKeys     []string
	CORSOrigins []string

	SessionsPerHour int
	MessagesPerHour int
	VoiceConcurrent int
	AudioMaxBytes   int64
}

// Server is the HTTP surface over the coaching engine.
type Server struct {
	logger        log.Logger
	store         SessionStore
	engine        Conversing
	transcriber   voice.Transcriber
	synthesizer   voice.Synthesizer
	limiter       *rateLimiter
	audioMaxBytes int64
	handler       http.Handler
}

// NewServer builds the server and its routing table.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if len(cfg.APIKeys) == 0 {
		return nil, errors.New("at least one API key is required")
	}

	s := &Server{
		logger:        cfg.Logger,
		store:         cfg.Store,
		engine:        cfg.Engine,
		transcriber:   cfg.Transcriber,
		synthesizer:   cfg.Synthesizer,
		limiter:       newRateLimiter(cfg.SessionsPerHour, cfg.MessagesPerHour, cfg.VoiceConcurrent),
		audioMaxBytes: cfg.AudioMaxBytes,
	}
	if s.audioMaxBytes <= 0 {
		s.audioMaxBytes = 10 << 20
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/messages", s.handleMessage)
	mux.HandleFunc("POST /sessions/{id}/voice-chat", s.handleVoiceChat)

	var handler http.Handler = mux
	handler = authMiddleware(cfg.APIKeys, cfg.Logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(cfg.Logger)(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(cfg.Logger)(handler)

	// Health stays outside auth and request logging.
	top := http.NewServeMux()
	top.HandleFunc("GET /healthz", s.handleHealth)
	top.Handle("/", handler)
	s.handler = top

	return s, nil
}

// Handler returns the fully assembled HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}
