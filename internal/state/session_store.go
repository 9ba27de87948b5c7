package state

import (
	"sync"
	"time"

	"github.com/u1974754/p-final-multi/internal/transport"
	"github.com/u1974754/p-final-multi/internal/wire"
)

// Phase is a server-side session's progress through the protocol.
type Phase uint8

const (
	PhaseConnected Phase = iota
	PhaseHandshaken
	PhaseSlotAssigned
	PhasePositionVerified
)

func (p Phase) String() string {
	switch p {
	case PhaseConnected:
		return "connected"
	case PhaseHandshaken:
		return "handshaken"
	case PhaseSlotAssigned:
		return "slot-assigned"
	case PhasePositionVerified:
		return "position-verified"
	default:
		return "unknown"
	}
}

// Session is the per-connection record. Slot is only a back-reference; the
// Arbiter decides ownership.
type Session struct {
	Conn       transport.ConnID
	ClientName string
	Phase      Phase
	Slot       int // -1 until a slot is assigned

	LastPosition wire.Vec3
	HasPosition  bool
	Lives        int32
	HasLives     bool

	ConnectedAt time.Time
	LastSeen    time.Time
	EvictedAt   time.Time
}

// HasSlot reports whether the session recorded a slot assignment.
func (s Session) HasSlot() bool { return s.Slot >= 0 }

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[transport.ConnID]Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: map[transport.ConnID]Session{}}
}

// Create starts a session in PhaseConnected, replacing any stale record for
// the same connection.
func (s *SessionStore) Create(conn transport.ConnID, clientName string, now time.Time) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	sess := Session{
		Conn:        conn,
		ClientName:  clientName,
		Phase:       PhaseConnected,
		Slot:        -1,
		ConnectedAt: now,
		LastSeen:    now,
	}
	s.sessions[conn] = sess
	return sess
}

func (s *SessionStore) Get(conn transport.ConnID) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[conn]
	return sess, ok
}

// Update applies fn to the stored session and returns the result.
func (s *SessionStore) Update(conn transport.ConnID, fn func(*Session)) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[conn]
	if !ok {
		return Session{}, false
	}
	fn(&sess)
	s.sessions[conn] = sess
	return sess, true
}

// Touch records inbound activity.
func (s *SessionStore) Touch(conn transport.ConnID, now time.Time) {
	s.Update(conn, func(sess *Session) { sess.LastSeen = now })
}

func (s *SessionStore) Remove(conn transport.ConnID) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[conn]
	delete(s.sessions, conn)
	return sess, ok
}

// Count returns the sessions that have not been evicted.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.EvictedAt.IsZero() {
			n++
		}
	}
	return n
}

func (s *SessionStore) CountByPhase() map[Phase]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[Phase]int{}
	for _, sess := range s.sessions {
		out[sess.Phase]++
	}
	return out
}

func (s *SessionStore) IsEvicted(conn transport.ConnID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[conn]
	return ok && !sess.EvictedAt.IsZero()
}

// SweepEvict marks sessions that overstayed their phase:
//   - no slot selected within selectTimeout of connecting
//   - no inbound traffic within idleTimeout
//
// A zero timeout disables that rule. Returns the connections newly evicted in
// this sweep; the caller closes them, and the resulting disconnect removes the
// session and releases its slot.
func (s *SessionStore) SweepEvict(now time.Time, selectTimeout, idleTimeout time.Duration) []transport.ConnID {
	if selectTimeout <= 0 && idleTimeout <= 0 {
		return nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []transport.ConnID
	for conn, sess := range s.sessions {
		if !sess.EvictedAt.IsZero() {
			continue
		}
		stale := false
		if selectTimeout > 0 && !sess.HasSlot() && now.Sub(sess.ConnectedAt) >= selectTimeout {
			stale = true
		}
		if idleTimeout > 0 && now.Sub(sess.LastSeen) >= idleTimeout {
			stale = true
		}
		if stale {
			sess.EvictedAt = now
			s.sessions[conn] = sess
			evicted = append(evicted, conn)
		}
	}
	return evicted
}
