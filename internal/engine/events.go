package engine

import "github.com/reframe-labs/coach/internal/coach"

// EventType discriminates stream events.
type EventType string

const (
	// EventToken carries one chunk of generated text.
	EventToken EventType = "token"
	// EventDone is the successful terminal event carrying the merged state.
	EventDone EventType = "done"
	// EventError is the failing terminal event. Nothing follows it.
	EventError EventType = "error"
)

// Event is one element of a conversation turn's output stream. A stream is
// zero or more token events followed by exactly one done or error event;
// the channel closes after the terminal event.
type Event struct {
	Type  EventType
	Text  string      // token events
	State coach.State // done events
	Err   error       // error events
}
