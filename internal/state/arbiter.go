package state

import (
	"errors"
	"sync"

	"github.com/u1974754/p-final-multi/internal/transport"
)

var (
	ErrInvalidIndex   = errors.New("invalid character index")
	ErrAlreadyTaken   = errors.New("character already taken")
	ErrAlreadyHolding = errors.New("connection already holds a character")
)

// Arbiter is the only owner of the character slot table. A slot is either
// free or owned by exactly one connection, and a connection owns at most one
// slot.
//
// Request is a single critical section (check and claim under one lock), so
// callers may race from any number of goroutines: the first to take the lock
// wins and the rest see ErrAlreadyTaken.
type Arbiter struct {
	mu     sync.Mutex
	owners []transport.ConnID // index -> owner, 0 when free
	held   map[transport.ConnID]int
}

// SlotState is a read-only view of one slot.
type SlotState struct {
	Index int
	Owner transport.ConnID
	Taken bool
}

func NewArbiter(count int) *Arbiter {
	if count < 0 {
		count = 0
	}
	return &Arbiter{
		owners: make([]transport.ConnID, count),
		held:   map[transport.ConnID]int{},
	}
}

// Request claims slot index for conn.
func (a *Arbiter) Request(conn transport.ConnID, index int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if index < 0 || index >= len(a.owners) {
		return ErrInvalidIndex
	}
	if a.owners[index] != 0 {
		// Also covers conn asking again for the slot it already owns.
		return ErrAlreadyTaken
	}
	if _, ok := a.held[conn]; ok {
		return ErrAlreadyHolding
	}
	a.owners[index] = conn
	a.held[conn] = index
	return nil
}

// Release frees the slot held by conn, if any, and returns its index.
func (a *Arbiter) Release(conn transport.ConnID) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	index, ok := a.held[conn]
	if !ok {
		return -1, false
	}
	delete(a.held, conn)
	a.owners[index] = 0
	return index, true
}

// Owner returns the connection holding index.
func (a *Arbiter) Owner(index int) (transport.ConnID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if index < 0 || index >= len(a.owners) || a.owners[index] == 0 {
		return 0, false
	}
	return a.owners[index], true
}

// Held returns the slot index conn owns.
func (a *Arbiter) Held(conn transport.ConnID) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	index, ok := a.held[conn]
	return index, ok
}

func (a *Arbiter) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.owners)
}

func (a *Arbiter) Taken() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.held)
}

func (a *Arbiter) Snapshot() []SlotState {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]SlotState, len(a.owners))
	for i, owner := range a.owners {
		out[i] = SlotState{Index: i, Owner: owner, Taken: owner != 0}
	}
	return out
}
