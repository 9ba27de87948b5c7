// Package state holds the server's shared in-memory state: the character slot
// table (Arbiter) and the per-connection sessions (SessionStore).
//
// Both are safe for concurrent use. The game loop is their only writer in
// practice, but the status endpoint reads them from HTTP goroutines.
package state
