// Package engine runs conversation turns: validate, infer state, retrieve
// grounding, call the model, stream the reply, and record the result. The
// whole turn executes under the session's lock, so turns on one session
// never interleave and every merge sees the previous turn's state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/reframe-labs/coach/internal/coach"
	"github.com/reframe-labs/coach/internal/log"
	"github.com/reframe-labs/coach/internal/retrieval"
	"github.com/reframe-labs/coach/internal/session"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultHistoryWindow = 12
	DefaultTurnTimeout   = 60 * time.Second

	// eventBuffer decouples the producer from a slow client without
	// letting an abandoned stream pile up unbounded.
	eventBuffer = 16
)

// SessionStore is the subset of the session store the engine needs. Update
// must hold the session's lock for the whole of fn and hand fn the live
// session, so state merges build on each other.
type SessionStore interface {
	Get(id, credential string) (*session.Session, error)
	Update(id, credential string, fn func(*session.Session) error) error
}

// PassageFetcher supplies grounding passages for a routing decision.
// Implementations never fail; see retrieval.Retriever.
type PassageFetcher interface {
	Fetch(ctx context.Context, dec retrieval.Decision) []retrieval.Passage
}

// Config configures an Engine.
type Config struct {
	Store     SessionStore
	Retriever PassageFetcher
	Provider  Provider

	// HistoryWindow is the number of trailing messages sent upstream.
	HistoryWindow int

	// TurnTimeout bounds one model call including streaming.
	TurnTimeout time.Duration

	// UpstreamLimiter proactively paces model calls across all sessions,
	// separate from the per-credential HTTP limiter. Nil uses a default.
	UpstreamLimiter *rate.Limiter

	Logger log.Logger
}

// Engine executes conversation turns. Safe for concurrent use.
type Engine struct {
	store         SessionStore
	retriever     PassageFetcher
	provider      Provider
	historyWindow int
	turnTimeout   time.Duration
	limiter       *rate.Limiter
	logger        log.Logger
}

// New creates an Engine. Store and Provider are required; Retriever may be
// nil when retrieval is disabled.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}
	if cfg.UpstreamLimiter == nil {
		cfg.UpstreamLimiter = rate.NewLimiter(10, 30)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Engine{
		store:         cfg.Store,
		retriever:     cfg.Retriever,
		provider:      cfg.Provider,
		historyWindow: cfg.HistoryWindow,
		turnTimeout:   cfg.TurnTimeout,
		limiter:       cfg.UpstreamLimiter,
		logger:        cfg.Logger,
	}, nil
}

// Converse runs one streaming turn. Validation and session lookup failures
// return synchronously, before any event; afterwards all outcomes arrive on
// the returned channel as token events followed by exactly one done or error
// event. The channel closes after the terminal event. Canceling ctx stops
// the turn and releases the producer goroutine.
func (e *Engine) Converse(ctx context.Context, sessionID, credential, text string) (<-chan Event, error) {
	text, err := ValidateMessage(text)
	if err != nil {
		return nil, err
	}
	if _, err := e.store.Get(sessionID, credential); err != nil {
		return nil, err
	}

	events := make(chan Event, eventBuffer)
	go func() {
		defer close(events)
		e.run(ctx, sessionID, credential, text, events)
	}()
	return events, nil
}

// Reply runs one non-streaming turn, used by the voice endpoint. Same
// pipeline as Converse with the events collapsed into the final text.
func (e *Engine) Reply(ctx context.Context, sessionID, credential, text string) (string, coach.State, error) {
	text, err := ValidateMessage(text)
	if err != nil {
		return "", coach.State{}, err
	}

	var (
		reply    string
		newState coach.State
	)
	err = e.store.Update(sessionID, credential, func(live *session.Session) error {
		st, r, genErr := e.generate(ctx, live, text, nil)
		if genErr != nil {
			return genErr
		}
		e.record(live, text, r, st)
		reply, newState = r, st
		return nil
	})
	if err != nil {
		return "", coach.State{}, err
	}
	return reply, newState, nil
}

// run produces the event stream for one turn. The whole turn, generation
// included, executes inside store.Update so the session lock serializes
// turns and the merge reads the live state, not a stale snapshot.
func (e *Engine) run(ctx context.Context, sessionID, credential, text string, events chan<- Event) {
	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var newState coach.State
	streamed := false
	err := e.store.Update(sessionID, credential, func(live *session.Session) error {
		st, reply, genErr := e.generate(ctx, live, text, func(chunk string) error {
			streamed = true
			if !emit(Event{Type: EventToken, Text: chunk}) {
				return context.Cause(ctx)
			}
			return nil
		})
		if genErr != nil {
			return genErr
		}
		e.record(live, text, reply, st)
		newState = st
		return nil
	})
	if err != nil {
		e.logger.Warn("turn failed", "session_id", sessionID, "streamed", streamed, "error", err)
		emit(Event{Type: EventError, Err: err})
		return
	}

	emit(Event{Type: EventDone, State: newState})
}

// record appends the turn to the live session and stores the merged state.
// Caller is inside store.Update, so the session lock is held.
func (e *Engine) record(live *session.Session, text, reply string, st coach.State) {
	now := time.Now()
	live.Append(session.RoleUser, text, now)
	live.Append(session.RoleAssistant, reply, now)
	live.State = st
}

// generate performs the fallible middle of a turn: state merge, retrieval,
// and the bounded model call. It does not touch the store.
func (e *Engine) generate(ctx context.Context, sess *session.Session, text string, onChunk func(string) error) (coach.State, string, error) {
	newState := coach.Merge(sess.State, text)

	dec := retrieval.Route(text, newState)
	var passages []retrieval.Passage
	if e.retriever != nil {
		passages = e.retriever.Fetch(ctx, dec)
	}

	req := Request{
		System:   buildSystem(newState, dec, passages),
		Messages: buildMessages(sess.LastMessages(e.historyWindow), text),
	}

	turnCtx, cancel := context.WithTimeout(ctx, e.turnTimeout)
	defer cancel()

	reply, err := e.callUpstream(turnCtx, req, onChunk)
	if err != nil {
		if ctx.Err() != nil {
			return coach.State{}, "", fmt.Errorf("%w: %w", ErrUpstream, context.Cause(ctx))
		}
		return coach.State{}, "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if reply == "" {
		return coach.State{}, "", fmt.Errorf("%w: empty reply", ErrUpstream)
	}
	return newState, reply, nil
}

// callUpstream paces and invokes the provider, retrying once on a transient
// failure if nothing was streamed yet. After the first chunk a retry would
// duplicate visible output, so the error stands.
func (e *Engine) callUpstream(ctx context.Context, req Request, onChunk func(string) error) (string, error) {
	chunks := 0
	wrapped := onChunk
	if onChunk != nil {
		wrapped = func(chunk string) error {
			chunks++
			return onChunk(chunk)
		}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("upstream limiter: %w", err)
	}
	reply, err := e.provider.StreamReply(ctx, req, wrapped)
	if err == nil {
		return reply, nil
	}
	if chunks > 0 || !transientError(err) || ctx.Err() != nil {
		return "", err
	}

	e.logger.Debug("retrying transient upstream failure", "error", err)
	if err := e.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("upstream limiter: %w", err)
	}
	return e.provider.StreamReply(ctx, req, wrapped)
}

// transientError reports whether an upstream failure is worth one retry.
func transientError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"rate limit", "quota exceeded", "429",
		"500", "502", "503", "504", "unavailable",
		"connection reset", "timeout", "temporary",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
