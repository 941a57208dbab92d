package session

import "errors"

// Sentinel errors for store operations. Part of the Store's public API;
// check with errors.Is().
var (
	// ErrNotFound indicates the session does not exist, has expired, or
	// belongs to a different credential. The three cases are deliberately
	// indistinguishable to callers.
	ErrNotFound = errors.New("session not found")

	// ErrCredentialLimit indicates the credential reached its session cap.
	ErrCredentialLimit = errors.New("session limit reached for credential")

	// ErrStoreFull indicates the global cap is reached and no idle session
	// could be evicted.
	ErrStoreFull = errors.New("session store full")
)
