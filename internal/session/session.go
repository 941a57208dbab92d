package session

import (
	"slices"
	"time"

	"github.com/reframe-labs/coach/internal/coach"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn half.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a conversation context: ordered history plus inferred state.
// Values handed out by the Store are snapshots; mutation goes through
// [Store.Update].
type Session struct {
	ID             string      `json:"id"`
	Credential     string      `json:"-"`
	CreatedAt      time.Time   `json:"created_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	Messages       []Message   `json:"messages"`
	State          coach.State `json:"state"`
}

// Append adds a message to the history. Messages are never reordered;
// [Store.Update] drops the oldest past the configured history cap.
func (s *Session) Append(role Role, content string, at time.Time) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, CreatedAt: at})
}

// LastMessages returns up to n trailing messages without copying content.
func (s *Session) LastMessages(n int) []Message {
	return s.Messages[max(0, len(s.Messages)-n):]
}

// clone returns a deep copy safe to hand outside the store's locks.
func (s *Session) clone() *Session {
	out := *s
	out.Messages = slices.Clone(s.Messages)
	out.State = s.State.Clone()
	return &out
}

func (s *Session) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastActivityAt) > ttl
}
