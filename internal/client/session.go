package client

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/u1974754/p-final-multi/internal/dispatch"
	"github.com/u1974754/p-final-multi/internal/engine"
	"github.com/u1974754/p-final-multi/internal/transport"
	"github.com/u1974754/p-final-multi/internal/wire"
)

type Phase uint8

const (
	PhaseConnecting Phase = iota
	PhaseSelecting
	PhasePlaying
	PhaseVerified
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseSelecting:
		return "selecting"
	case PhasePlaying:
		return "playing"
	case PhaseVerified:
		return "verified"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var ErrIndexOutOfRange = errors.New("client: character index out of range")

// Avatar is the locally controlled character.
type Avatar interface {
	Position() wire.Vec3
	Lives() int32
	// Place moves the character to a server-assigned spawn point.
	Place(slot int, pos wire.Vec3)
}

// Hooks are called from the game loop goroutine. Any of them may be nil, and
// they may call back into the Session.
type Hooks struct {
	CharacterSelection func(hs wire.Handshake)
	EnterGameplay      func(slot int)
	Spawn              func(slot int, pos wire.Vec3)
	SelectionFailed    func(reason string)
	PositionVerified   func(slot int)
	Flagged            func(slot int)
	Disconnected       func()
}

type Config struct {
	// AutoSelect is sent as soon as the handshake arrives; -1 waits for Select.
	AutoSelect int

	// ReportInterval paces position re-reports after each acceptance.
	// Zero or less reports once.
	ReportInterval time.Duration
}

// Session is the client side of the protocol.
type Session struct {
	cfg    Config
	avatar Avatar
	hooks  Hooks

	mu         sync.Mutex
	conn       transport.ConnID
	phase      Phase
	hs         wire.Handshake
	slot       int
	lastErr    string
	pending    int
	nextReport time.Time
	flagged    bool

	done     chan struct{}
	doneOnce sync.Once
}

func New(avatar Avatar, hooks Hooks, cfg Config) *Session {
	return &Session{
		cfg:     cfg,
		avatar:  avatar,
		hooks:   hooks,
		slot:    -1,
		pending: -1,
		done:    make(chan struct{}),
	}
}

// Register installs the client's handlers on d, which must decode
// wire.ToClient messages.
func (s *Session) Register(d *dispatch.Dispatcher) {
	d.OnConnect(s.onConnect)
	d.OnDisconnect(s.onDisconnect)
	d.Handle(wire.TagHandshake, s.onHandshake)
	d.Handle(wire.TagSelect, s.onSelectAck)
	d.Handle(wire.TagSpawnPosition, s.onSpawn)
	d.Handle(wire.TagSelectError, s.onSelectError)
	d.Handle(wire.TagPositionAccepted, s.onAccepted)
	d.Handle(wire.TagHackerFlag, s.onFlagged)
}

// Select queues a character request; it goes out on the next tick while the
// session is choosing.
func (s *Session) Select(index int) error {
	if index < 0 || index > 255 {
		return ErrIndexOutOfRange
	}
	s.mu.Lock()
	s.pending = index
	s.mu.Unlock()
	return nil
}

// Tick sends queued selections and due position reports. Register it with
// engine.OnTick.
func (s *Session) Tick(now time.Time, out engine.Sender) {
	s.mu.Lock()
	conn := s.conn
	var msgs []wire.Message
	if conn != 0 && s.pending >= 0 && s.phase == PhaseSelecting {
		msgs = append(msgs, wire.SelectCharacter{CharacterIndex: uint8(s.pending)})
		s.pending = -1
	}
	if s.phase == PhaseVerified && !s.nextReport.IsZero() && !now.Before(s.nextReport) {
		msgs = append(msgs, wire.SpawnPosition{CharacterIndex: uint8(s.slot), Position: s.avatar.Position()})
		s.nextReport = time.Time{}
	}
	s.mu.Unlock()

	for _, m := range msgs {
		if err := out.Send(conn, m); err != nil {
			return
		}
	}
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Slot returns the character this client holds.
func (s *Session) Slot() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slot, s.slot >= 0
}

func (s *Session) Handshake() wire.Handshake {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hs
}

// LastError is the most recent SelectError reason, cleared by a successful
// selection.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) Flagged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flagged
}

// Done is closed once the connection is gone.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) onConnect(_ time.Time, conn transport.ConnID) []wire.Message {
	s.mu.Lock()
	s.conn = conn
	s.phase = PhaseConnecting
	s.mu.Unlock()
	slog.Info("connected to server", "conn", conn)
	return nil
}

func (s *Session) onDisconnect(_ time.Time, conn transport.ConnID) {
	s.mu.Lock()
	s.phase = PhaseClosed
	s.conn = 0
	s.mu.Unlock()
	slog.Info("disconnected from server", "conn", conn)
	if s.hooks.Disconnected != nil {
		s.hooks.Disconnected()
	}
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) onHandshake(_ time.Time, conn transport.ConnID, msg wire.Message) []wire.Message {
	hs := msg.(wire.Handshake)
	s.mu.Lock()
	s.hs = hs
	s.phase = PhaseSelecting
	s.mu.Unlock()

	slog.Info("handshake received", "server", hs.ServerName, "client", hs.ClientName, "previous", hs.PreviousClientName, "server_time", hs.ServerTime)
	if s.hooks.CharacterSelection != nil {
		s.hooks.CharacterSelection(hs)
	}
	if s.cfg.AutoSelect >= 0 && s.cfg.AutoSelect <= 255 {
		return []wire.Message{wire.SelectCharacter{CharacterIndex: uint8(s.cfg.AutoSelect)}}
	}
	return nil
}

func (s *Session) onSelectAck(_ time.Time, conn transport.ConnID, msg wire.Message) []wire.Message {
	ack := msg.(wire.SelectAck)
	slot := int(ack.CharacterIndex)
	s.mu.Lock()
	s.slot = slot
	s.phase = PhasePlaying
	s.lastErr = ""
	s.pending = -1
	s.mu.Unlock()

	slog.Info("character selected", "slot", slot)
	if s.hooks.EnterGameplay != nil {
		s.hooks.EnterGameplay(slot)
	}
	return []wire.Message{wire.SpawnPosition{CharacterIndex: ack.CharacterIndex, Position: s.avatar.Position()}}
}

func (s *Session) onSpawn(_ time.Time, conn transport.ConnID, msg wire.Message) []wire.Message {
	sp := msg.(wire.SpawnPosition)
	slot := int(sp.CharacterIndex)
	s.avatar.Place(slot, sp.Position)
	slog.Debug("spawn position", "slot", slot, "x", sp.Position.X, "y", sp.Position.Y, "z", sp.Position.Z)
	if s.hooks.Spawn != nil {
		s.hooks.Spawn(slot, sp.Position)
	}
	return nil
}

func (s *Session) onSelectError(_ time.Time, conn transport.ConnID, msg wire.Message) []wire.Message {
	reason := msg.(wire.SelectError).Message
	s.mu.Lock()
	s.lastErr = reason
	s.mu.Unlock()

	slog.Warn("character selection failed", "reason", reason)
	if s.hooks.SelectionFailed != nil {
		s.hooks.SelectionFailed(reason)
	}
	return nil
}

func (s *Session) onAccepted(now time.Time, conn transport.ConnID, msg wire.Message) []wire.Message {
	idx := msg.(wire.PositionAccepted).CharacterIndex
	s.mu.Lock()
	s.phase = PhaseVerified
	if s.cfg.ReportInterval > 0 {
		s.nextReport = now.Add(s.cfg.ReportInterval)
	}
	s.mu.Unlock()

	slog.Debug("position verified", "slot", idx)
	if s.hooks.PositionVerified != nil {
		s.hooks.PositionVerified(int(idx))
	}
	return []wire.Message{wire.LifeUpdate{CharacterIndex: idx, Lives: s.avatar.Lives()}}
}

func (s *Session) onFlagged(_ time.Time, conn transport.ConnID, msg wire.Message) []wire.Message {
	idx := msg.(wire.HackerFlag).CharacterIndex
	s.mu.Lock()
	s.flagged = true
	s.mu.Unlock()

	slog.Warn("server flagged this client", "slot", idx)
	if s.hooks.Flagged != nil {
		s.hooks.Flagged(int(idx))
	}
	return nil
}
