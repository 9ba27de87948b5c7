package game

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/u1974754/p-final-multi/internal/dispatch"
	"github.com/u1974754/p-final-multi/internal/ident"
	"github.com/u1974754/p-final-multi/internal/metrics"
	"github.com/u1974754/p-final-multi/internal/state"
	"github.com/u1974754/p-final-multi/internal/transport"
	"github.com/u1974754/p-final-multi/internal/wire"
)

// Reasons sent in SelectError. Each fits the fixed 32-byte field.
const (
	ReasonAlreadyTaken    = "already taken"
	ReasonInvalidIndex    = "invalid index"
	ReasonAlreadySelected = "already selected"
)

// NoPreviousClient is sent as the previous client name to the first client.
const NoPreviousClient = "None"

// SpawnArea is where newly assigned characters appear.
type SpawnArea struct {
	XMin float32
	XMax float32
	Y    float32
	Z    float32
}

func DefaultSpawnArea() SpawnArea {
	return SpawnArea{XMin: -10, XMax: 9, Y: -2, Z: 0}
}

type Config struct {
	ServerName string
	Spawn      SpawnArea
	MaxLives   int32

	// SelectTimeout closes sessions that have not claimed a slot in time;
	// IdleTimeout closes sessions that stopped sending. Zero disables.
	SelectTimeout time.Duration
	IdleTimeout   time.Duration
}

type Option func(*Coordinator)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithRand fixes the spawn randomness, for tests.
func WithRand(r *rand.Rand) Option {
	return func(c *Coordinator) { c.rng = r }
}

// WithStartTime sets the instant Handshake.ServerTime counts from.
func WithStartTime(t time.Time) Option {
	return func(c *Coordinator) { c.started = t }
}

func WithNameGenerator(fn func() string) Option {
	return func(c *Coordinator) { c.newName = fn }
}

// Coordinator is the server side of the protocol: it owns the session
// transitions and delegates slot ownership to the Arbiter and position checks
// to the Validator.
//
// It is driven by a single game loop and is not safe for concurrent use; the
// Arbiter and SessionStore it shares are.
type Coordinator struct {
	cfg       Config
	slots     *state.Arbiter
	sessions  *state.SessionStore
	validator *Validator
	metrics   *metrics.Metrics

	rng        *rand.Rand
	newName    func() string
	started    time.Time
	lastClient string
}

func NewCoordinator(cfg Config, slots *state.Arbiter, sessions *state.SessionStore, validator *Validator, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		slots:     slots,
		sessions:  sessions,
		validator: validator,
		newName:   ident.NewClientName,
		started:   time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register installs the server's handlers on d.
func (c *Coordinator) Register(d *dispatch.Dispatcher) {
	d.OnConnect(c.Connect)
	d.OnDisconnect(c.Disconnect)
	d.Handle(wire.TagSelect, c.touch(c.handleSelect))
	d.Handle(wire.TagSpawnPosition, c.touch(c.handlePosition))
	d.Handle(wire.TagLifeUpdate, c.touch(c.handleLives))
}

func (c *Coordinator) touch(h dispatch.Handler) dispatch.Handler {
	return func(now time.Time, conn transport.ConnID, msg wire.Message) []wire.Message {
		c.sessions.Touch(conn, now)
		return h(now, conn, msg)
	}
}

// Connect creates the session and greets the client.
func (c *Coordinator) Connect(now time.Time, conn transport.ConnID) []wire.Message {
	name := c.newName()
	prev := c.lastClient
	if prev == "" {
		prev = NoPreviousClient
	}
	c.lastClient = name

	c.sessions.Create(conn, name, now)
	hs := wire.Handshake{
		ServerName:         c.cfg.ServerName,
		ClientName:         name,
		PreviousClientName: prev,
		ServerTime:         float32(now.Sub(c.started).Seconds()),
	}
	c.sessions.Update(conn, func(s *state.Session) { s.Phase = state.PhaseHandshaken })
	c.metrics.ConnectionOpened()

	slog.Info("session handshaken", "conn", conn, "client", name, "previous", prev, "server_time", hs.ServerTime)
	return []wire.Message{hs}
}

// Disconnect ends the session and frees its slot in the same call.
func (c *Coordinator) Disconnect(now time.Time, conn transport.ConnID) {
	sess, ok := c.sessions.Remove(conn)
	if idx, released := c.slots.Release(conn); released {
		slog.Info("slot released", "conn", conn, "slot", idx)
	}
	c.metrics.SlotsTaken(c.slots.Taken())
	if !ok {
		slog.Warn("disconnect for unknown session", "conn", conn)
		return
	}
	c.metrics.ConnectionClosed()
	slog.Info("session closed", "conn", conn, "client", sess.ClientName, "phase", sess.Phase, "age", now.Sub(sess.ConnectedAt).Round(time.Millisecond))
}

func (c *Coordinator) handleSelect(now time.Time, conn transport.ConnID, msg wire.Message) []wire.Message {
	req := msg.(wire.SelectCharacter)
	if _, ok := c.sessions.Get(conn); !ok {
		slog.Warn("select from unknown session", "conn", conn)
		return nil
	}

	idx := int(req.CharacterIndex)
	if err := c.slots.Request(conn, idx); err != nil {
		reason, result := rejection(err)
		c.metrics.SlotRequest(result)
		slog.Info("slot request rejected", "conn", conn, "slot", idx, "reason", reason)
		return []wire.Message{wire.SelectError{Message: reason}}
	}

	spawn := c.spawnPoint()
	c.sessions.Update(conn, func(s *state.Session) {
		s.Slot = idx
		s.Phase = state.PhaseSlotAssigned
	})
	c.metrics.SlotRequest("granted")
	c.metrics.SlotsTaken(c.slots.Taken())
	slog.Info("slot granted", "conn", conn, "slot", idx, "spawn_x", spawn.X, "spawn_y", spawn.Y)

	return []wire.Message{
		wire.SelectAck{CharacterIndex: req.CharacterIndex},
		wire.SpawnPosition{CharacterIndex: req.CharacterIndex, Position: spawn},
	}
}

func rejection(err error) (reason, result string) {
	switch {
	case errors.Is(err, state.ErrInvalidIndex):
		return ReasonInvalidIndex, "invalid"
	case errors.Is(err, state.ErrAlreadyHolding):
		return ReasonAlreadySelected, "holding"
	default:
		return ReasonAlreadyTaken, "taken"
	}
}

func (c *Coordinator) handlePosition(now time.Time, conn transport.ConnID, msg wire.Message) []wire.Message {
	rep := msg.(wire.SpawnPosition)
	sess, ok := c.sessions.Get(conn)
	if !ok {
		return nil
	}
	if !sess.HasSlot() {
		c.metrics.PositionReport("ignored")
		slog.Warn("position report before slot assignment", "conn", conn, "slot", rep.CharacterIndex)
		return nil
	}
	if int(rep.CharacterIndex) != sess.Slot {
		c.metrics.PositionReport("ignored")
		slog.Warn("position report for foreign slot", "conn", conn, "slot", sess.Slot, "reported_slot", rep.CharacterIndex)
		return nil
	}
	if !c.validator.Validate(rep.Position) {
		// No reply: the client is not told why.
		c.metrics.PositionReport("rejected")
		slog.Warn("position rejected", "conn", conn, "slot", sess.Slot, "x", rep.Position.X, "y", rep.Position.Y, "z", rep.Position.Z)
		return nil
	}

	c.sessions.Update(conn, func(s *state.Session) {
		s.LastPosition = rep.Position
		s.HasPosition = true
		s.Phase = state.PhasePositionVerified
	})
	c.metrics.PositionReport("accepted")
	slog.Debug("position accepted", "conn", conn, "slot", sess.Slot, "x", rep.Position.X, "y", rep.Position.Y)
	return []wire.Message{wire.PositionAccepted{CharacterIndex: rep.CharacterIndex}}
}

func (c *Coordinator) handleLives(now time.Time, conn transport.ConnID, msg wire.Message) []wire.Message {
	up := msg.(wire.LifeUpdate)
	sess, ok := c.sessions.Get(conn)
	if !ok {
		return nil
	}
	if !sess.HasSlot() {
		slog.Warn("lives report before slot assignment", "conn", conn, "slot", up.CharacterIndex)
		return nil
	}
	if int(up.CharacterIndex) != sess.Slot || up.Lives < 0 || up.Lives > c.cfg.MaxLives {
		c.metrics.HackerFlag()
		slog.Warn("lives report flagged", "conn", conn, "slot", sess.Slot, "reported_slot", up.CharacterIndex, "lives", up.Lives, "max_lives", c.cfg.MaxLives)
		return []wire.Message{wire.HackerFlag{CharacterIndex: uint8(sess.Slot)}}
	}
	c.sessions.Update(conn, func(s *state.Session) {
		s.Lives = up.Lives
		s.HasLives = true
	})
	return nil
}

// Sweep returns the connections that overstayed a timeout. The caller closes
// them; their disconnect releases the slot.
func (c *Coordinator) Sweep(now time.Time) []transport.ConnID {
	evicted := c.sessions.SweepEvict(now, c.cfg.SelectTimeout, c.cfg.IdleTimeout)
	for _, conn := range evicted {
		sess, _ := c.sessions.Get(conn)
		slog.Warn("session evicted", "conn", conn, "client", sess.ClientName, "phase", sess.Phase)
	}
	c.metrics.Evicted(len(evicted))
	return evicted
}

func (c *Coordinator) spawnPoint() wire.Vec3 {
	var f float32
	if c.rng != nil {
		f = c.rng.Float32()
	} else {
		f = rand.Float32()
	}
	area := c.cfg.Spawn
	return wire.Vec3{X: area.XMin + f*(area.XMax-area.XMin), Y: area.Y, Z: area.Z}
}
