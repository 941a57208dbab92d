package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reframe-labs/coach/internal/log"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultTTL           = 90 * time.Minute
	DefaultMaxTotal      = 1000
	DefaultMaxPerKey     = 50
	DefaultMaxHistory    = 100
	DefaultSweepInterval = 5 * time.Minute
)

// Config configures a Store.
type Config struct {
	// TTL is the idle lifetime of a session; activity resets it.
	TTL time.Duration

	// MaxTotal caps sessions across all credentials.
	MaxTotal int

	// MaxPerKey caps sessions per credential.
	MaxPerKey int

	// MaxHistory caps stored messages per session; Update drops the oldest
	// messages past the cap.
	MaxHistory int

	Logger log.Logger
}

// entry pairs a session with its own mutex. The entry lock is held for the
// whole of a conversation turn (Update's fn runs under it); holding it keeps
// eviction and sweeping away. LastActivityAt is read and written under the
// store mutex so capacity scans never race a turn.
type entry struct {
	mu   sync.Mutex
	sess *Session
}

// Store is an in-memory session store. See the package documentation for
// the locking and capacity model.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	ttl        time.Duration
	maxTotal   int
	maxPerKey  int
	maxHistory int
	logger     log.Logger
}

// New creates a Store, filling unset Config fields with defaults.
func New(cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxTotal <= 0 {
		cfg.MaxTotal = DefaultMaxTotal
	}
	if cfg.MaxPerKey <= 0 {
		cfg.MaxPerKey = DefaultMaxPerKey
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Store{
		entries:    make(map[string]*entry),
		ttl:        cfg.TTL,
		maxTotal:   cfg.MaxTotal,
		maxPerKey:  cfg.MaxPerKey,
		maxHistory: cfg.MaxHistory,
		logger:     cfg.Logger,
	}
}

// Create allocates a new session owned by credential and returns a snapshot.
// Returns ErrCredentialLimit at the per-credential cap. At the global cap it
// evicts the idle session with the oldest activity, or fails with
// ErrStoreFull when every candidate is mid-turn.
func (s *Store) Create(credential string) (*Session, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeExpiredLocked(now)

	perKey := 0
	for _, e := range s.entries {
		if e.sess.Credential == credential {
			perKey++
		}
	}
	if perKey >= s.maxPerKey {
		return nil, ErrCredentialLimit
	}

	if len(s.entries) >= s.maxTotal {
		if !s.evictOldestLocked() {
			return nil, ErrStoreFull
		}
	}

	sess := &Session{
		ID:             uuid.NewString(),
		Credential:     credential,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	s.entries[sess.ID] = &entry{sess: sess}
	s.logger.Debug("session created", "session_id", sess.ID, "total", len(s.entries))
	return sess.clone(), nil
}

// Get returns a snapshot of the session. Expired sessions are removed on
// access and reported as ErrNotFound, as are sessions owned by another
// credential. Get waits for an in-flight turn on the session to finish
// before taking the snapshot.
func (s *Store) Get(id, credential string) (*Session, error) {
	e, err := s.acquire(id, credential)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return e.sess.clone(), nil
}

// Update runs fn on the live session while holding the session's own lock,
// so concurrent turns on the same session serialize and fn sees every prior
// turn's result. The lock stays held for as long as fn runs; eviction and
// the sweeper skip the session meanwhile. On success the history is capped
// at the configured maximum, oldest messages first, and the session's
// activity time is bumped. The store map lock is not held while fn runs.
func (s *Store) Update(id, credential string, fn func(*Session) error) error {
	e, err := s.acquire(id, credential)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	if err := fn(e.sess); err != nil {
		return err
	}

	if n := len(e.sess.Messages); n > s.maxHistory {
		e.sess.Messages = append([]Message(nil), e.sess.Messages[n-s.maxHistory:]...)
	}

	s.mu.Lock()
	e.sess.LastActivityAt = time.Now()
	s.mu.Unlock()
	return nil
}

// acquire returns the entry with its lock held, after verifying the session
// is live, owned by credential, and still in the map once the lock arrives.
func (s *Store) acquire(id, credential string) (*entry, error) {
	s.mu.Lock()
	e, err := s.lookupLocked(id, credential, time.Now())
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()

	// The session may have been deleted or evicted between the lookup and
	// the lock.
	s.mu.Lock()
	cur, ok := s.entries[id]
	s.mu.Unlock()
	if !ok || cur != e {
		e.mu.Unlock()
		return nil, ErrNotFound
	}
	return e, nil
}

// Touch bumps the session's activity time, extending its TTL.
func (s *Store) Touch(id, credential string) error {
	return s.Update(id, credential, func(*Session) error { return nil })
}

// Delete removes the session. Idempotent: deleting a missing, expired, or
// foreign session is not an error.
func (s *Store) Delete(id, credential string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.sess.Credential != credential {
		return
	}
	delete(s.entries, id)
	s.logger.Debug("session deleted", "session_id", id)
}

// Len reports the number of stored sessions, including not-yet-swept
// expired ones.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// CountByCredential reports the number of live sessions for a credential.
func (s *Store) CountByCredential(credential string) int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.sess.Credential == credential && !e.sess.expired(now, s.ttl) {
			n++
		}
	}
	return n
}

// SweepExpired removes expired sessions and returns how many were removed.
// Sessions mid-turn are skipped; the next sweep gets them.
func (s *Store) SweepExpired() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeExpiredLocked(now)
}

// RunSweeper periodically removes expired sessions until ctx is done.
// Run it in its own goroutine.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SweepExpired(); n > 0 {
				s.logger.Info("swept expired sessions", "removed", n, "remaining", s.Len())
			}
		}
	}
}

// lookupLocked finds a live session owned by credential. Caller holds s.mu.
// Expired sessions are removed here, which is what makes expiry visible
// before the sweeper runs.
func (s *Store) lookupLocked(id, credential string, now time.Time) (*entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if e.sess.expired(now, s.ttl) {
		if e.mu.TryLock() {
			e.mu.Unlock()
			delete(s.entries, id)
		}
		return nil, ErrNotFound
	}
	if e.sess.Credential != credential {
		return nil, ErrNotFound
	}
	return e, nil
}

// removeExpiredLocked drops expired sessions that are not mid-turn.
// Caller holds s.mu.
func (s *Store) removeExpiredLocked(now time.Time) int {
	removed := 0
	for id, e := range s.entries {
		if !e.sess.expired(now, s.ttl) {
			continue
		}
		if !e.mu.TryLock() {
			continue
		}
		e.mu.Unlock()
		delete(s.entries, id)
		removed++
	}
	return removed
}

// evictOldestLocked removes the idle session with the oldest activity time.
// Caller holds s.mu. Returns false when every session is mid-turn.
func (s *Store) evictOldestLocked() bool {
	var (
		oldestID string
		oldest   *entry
	)
	for id, e := range s.entries {
		if oldest != nil && !e.sess.LastActivityAt.Before(oldest.sess.LastActivityAt) {
			continue
		}
		if !e.mu.TryLock() {
			continue
		}
		e.mu.Unlock()
		oldestID, oldest = id, e
	}
	if oldest == nil {
		return false
	}
	delete(s.entries, oldestID)
	s.logger.Warn("evicted session at capacity",
		"session_id", oldestID, "idle_since", oldest.sess.LastActivityAt)
	return true
}
