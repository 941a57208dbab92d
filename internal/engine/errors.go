package engine

import "errors"

// Sentinel errors for conversation turns. Check with errors.Is(); the API
// layer maps them to HTTP statuses and machine-readable codes.
var (
	// ErrEmptyMessage indicates the message is empty after trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong indicates the message exceeds MaxMessageChars.
	ErrMessageTooLong = errors.New("message too long")

	// ErrLowSignal indicates the message is dominated by one repeated
	// character, a cheap way to burn upstream tokens.
	ErrLowSignal = errors.New("message has no usable content")

	// ErrUpstream indicates the model call failed or timed out.
	ErrUpstream = errors.New("upstream model failure")
)
