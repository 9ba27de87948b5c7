package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/u1974754/p-final-multi/internal/dispatch"
	"github.com/u1974754/p-final-multi/internal/metrics"
	"github.com/u1974754/p-final-multi/internal/packetlog"
	"github.com/u1974754/p-final-multi/internal/transport"
	"github.com/u1974754/p-final-multi/internal/wire"
)

// Sender is what tick hooks and handlers' callers use to talk back.
type Sender interface {
	Send(conn transport.ConnID, msg wire.Message) error
	Close(conn transport.ConnID) error
}

// TickFunc runs once per tick after the event queue is drained.
type TickFunc func(now time.Time, out Sender)

type Config struct {
	// Tick is the loop interval (default: 20ms).
	Tick time.Duration

	// Role names this endpoint in logs and the packet log ("server", "client").
	Role string

	RunID string
}

type Option func(*Engine)

func WithPacketLog(l *packetlog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

type hook struct {
	every time.Duration
	last  time.Time
	fn    TickFunc
}

// Engine is the game loop. All dispatching, replying and hook work happens on
// the goroutine calling Run (or Step), so handlers never need locks of their
// own.
type Engine struct {
	cfg     Config
	driver  transport.Driver
	disp    *dispatch.Dispatcher
	log     *packetlog.Logger
	metrics *metrics.Metrics

	hooks   []*hook
	remotes map[transport.ConnID]string
}

var _ Sender = (*Engine)(nil)

func New(cfg Config, driver transport.Driver, disp *dispatch.Dispatcher, opts ...Option) *Engine {
	if cfg.Tick <= 0 {
		cfg.Tick = 20 * time.Millisecond
	}
	if cfg.Role == "" {
		cfg.Role = "server"
	}
	e := &Engine{
		cfg:     cfg,
		driver:  driver,
		disp:    disp,
		remotes: map[transport.ConnID]string{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnTick runs fn on every tick.
func (e *Engine) OnTick(fn TickFunc) {
	e.hooks = append(e.hooks, &hook{fn: fn})
}

// Every runs fn at most once per interval, checked on tick boundaries.
func (e *Engine) Every(interval time.Duration, fn TickFunc) {
	e.hooks = append(e.hooks, &hook{every: interval, fn: fn})
}

func (e *Engine) Run(ctx context.Context) error {
	e.log.Log(packetlog.Record{
		RunID:   e.cfg.RunID,
		Type:    "startup",
		Message: fmt.Sprintf("%s engine start tick=%s queue_depth=%d", e.cfg.Role, e.cfg.Tick, e.driver.QueueDepth()),
	})

	t := time.NewTicker(e.cfg.Tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			e.Step(now.UTC())
		}
	}
}

// Step drains every queued event, then runs the tick hooks. It returns the
// number of events handled.
func (e *Engine) Step(now time.Time) int {
	start := time.Now()
	n := 0
	for {
		ev, ok := e.driver.PopEvent()
		if !ok {
			break
		}
		n++
		e.handleEvent(now, ev)
	}
	for _, h := range e.hooks {
		if h.every > 0 && !h.last.IsZero() && now.Sub(h.last) < h.every {
			continue
		}
		h.last = now
		h.fn(now, e)
	}
	e.metrics.Tick(time.Since(start), n)
	return n
}

// Send encodes msg and queues it for conn. A connection whose send queue is
// full is closed; its Disconnect arrives through the normal event path.
func (e *Engine) Send(conn transport.ConnID, msg wire.Message) error {
	b := wire.Encode(msg)
	err := e.driver.SendTo(conn, b)

	rec := packetlog.Record{
		RunID:     e.cfg.RunID,
		Type:      "msg",
		Direction: "out",
		Conn:      conn.String(),
		Remote:    e.remotes[conn],
		Length:    len(b),
		Tag:       msg.Tag().String(),
		Hex:       packetlog.ToHex(b),
	}
	if err != nil {
		rec.Result = "send_error"
		rec.Message = err.Error()
	}
	e.log.Log(rec)

	if err != nil {
		e.metrics.SendFailure()
		if errors.Is(err, transport.ErrSendQueueFull) {
			slog.Warn("send queue full; closing connection", "conn", conn, "tag", msg.Tag())
			_ = e.driver.Close(conn)
		} else {
			slog.Warn("send failed", "conn", conn, "tag", msg.Tag(), "err", err)
		}
		return err
	}
	e.metrics.Message("out", msg.Tag())
	return nil
}

func (e *Engine) Close(conn transport.ConnID) error {
	return e.driver.Close(conn)
}

func (e *Engine) handleEvent(now time.Time, ev transport.Event) {
	rec := packetlog.Record{
		RunID:     e.cfg.RunID,
		Type:      "event",
		Direction: "in",
		Conn:      ev.Conn.String(),
		Message:   ev.Kind.String(),
	}

	switch ev.Kind {
	case transport.EventConnect:
		e.remotes[ev.Conn] = ev.Remote
		rec.Remote = ev.Remote
		slog.Info("connection opened", "role", e.cfg.Role, "conn", ev.Conn, "remote", ev.Remote)
	case transport.EventDisconnect:
		rec.Remote = e.remotes[ev.Conn]
		slog.Info("connection closed", "role", e.cfg.Role, "conn", ev.Conn, "remote", rec.Remote)
	case transport.EventData:
		rec.Type = "msg"
		rec.Message = ""
		rec.Remote = e.remotes[ev.Conn]
		rec.Length = len(ev.Payload)
		rec.Hex = packetlog.ToHex(ev.Payload)
		if len(ev.Payload) > 0 {
			tag := wire.Tag(ev.Payload[0])
			rec.Tag = tag.String()
			if _, known := wire.PayloadSize(tag); known {
				e.metrics.Message("in", tag)
			}
		}
	}

	replies, err := e.disp.Dispatch(now, ev)
	if err != nil {
		rec.Result = "error"
		rec.Message = err.Error()
		e.logDispatchError(ev, err)
	}
	e.log.Log(rec)

	if ev.Kind == transport.EventDisconnect {
		delete(e.remotes, ev.Conn)
	}
	for _, msg := range replies {
		if err := e.Send(ev.Conn, msg); err != nil {
			break
		}
	}
}

func (e *Engine) logDispatchError(ev transport.Event, err error) {
	var de *wire.DecodeError
	switch {
	case errors.Is(err, dispatch.ErrTrailingBytes):
		slog.Warn("trailing bytes discarded", "role", e.cfg.Role, "conn", ev.Conn, "len", len(ev.Payload), "err", err)
	case errors.As(err, &de):
		e.metrics.DecodeError()
		slog.Warn("message decode failed", "role", e.cfg.Role, "conn", ev.Conn, "tag", de.Tag, "len", len(ev.Payload), "err", de.Err)
	default:
		slog.Error("dispatch failed", "role", e.cfg.Role, "conn", ev.Conn, "kind", ev.Kind, "err", err)
	}
}
