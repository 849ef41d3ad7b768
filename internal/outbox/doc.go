// Package outbox queues publishes that failed while the session was down
// and replays them after the next successful connect.
//
// A Publisher wraps the session's direct publisher. When a publish fails
// the message is stored and the caller gets an error wrapping ErrQueued.
// Flush replays stored entries oldest first and stops at the first failure,
// so delivery order is preserved across reconnects.
//
// Two stores are provided: SQLiteStore survives restarts, MemoryStore does
// not. Both hold at most a fixed number of entries and evict the oldest.
package outbox
