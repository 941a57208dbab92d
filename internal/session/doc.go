// Package session provides in-memory conversation session storage.
//
// A session holds the ordered message history and inferred coaching state
// for one conversation. Sessions are owned by the credential that created
// them; other credentials cannot observe their existence.
//
// Key operations:
//
//   - Lifecycle: [Store.Create], [Store.Get], [Store.Delete]
//   - Turns: [Store.Update] (holds the session's own lock while fn runs,
//     for however long the turn takes)
//   - Expiry: lazy expiry on access plus [Store.RunSweeper] in the background
//
// # Concurrency
//
// Store is safe for concurrent use. The store mutex guards the session map
// and the activity timestamps it scans (expiry, eviction); each session
// additionally carries its own mutex guarding its history and state, held
// across the whole of Update's fn, so concurrent turns on one session
// serialize while turns on different sessions proceed in parallel. Capacity
// eviction and the sweeper skip sessions whose lock is held, so a session
// executing a turn is never removed from under it.
//
// # History
//
// Update caps the message history at the configured maximum, dropping the
// oldest messages first, so a long-lived session holds a bounded window.
//
// # Capacity
//
// Create enforces a per-credential cap and a global cap. At the global cap
// the store evicts the idle session with the oldest activity time; if every
// candidate is mid-turn, Create fails with [ErrStoreFull].
package session
