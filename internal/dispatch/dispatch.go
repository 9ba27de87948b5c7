// Package dispatch routes transport events to per-tag handlers.
//
// A Dispatcher is built once per endpoint role. The server's decodes
// wire.ToServer messages and the client's decodes wire.ToClient messages, so
// the shared 'S' tag reaches the right handler on each side.
package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/u1974754/p-final-multi/internal/transport"
	"github.com/u1974754/p-final-multi/internal/wire"
)

// Handler processes one decoded message and returns the replies for the
// same connection.
type Handler func(now time.Time, conn transport.ConnID, msg wire.Message) []wire.Message

type ConnectFunc func(now time.Time, conn transport.ConnID) []wire.Message

type DisconnectFunc func(now time.Time, conn transport.ConnID)

// ErrTrailingBytes is returned alongside the replies when a data payload
// holds more than one message; the extra bytes are discarded.
var ErrTrailingBytes = errors.New("dispatch: trailing bytes after message")

type Dispatcher struct {
	dir          wire.Direction
	handlers     map[wire.Tag]Handler
	onConnect    ConnectFunc
	onDisconnect DisconnectFunc
}

func New(dir wire.Direction) *Dispatcher {
	return &Dispatcher{dir: dir, handlers: map[wire.Tag]Handler{}}
}

func (d *Dispatcher) Direction() wire.Direction { return d.dir }

// Handle registers h for tag, replacing any previous handler.
func (d *Dispatcher) Handle(tag wire.Tag, h Handler) {
	d.handlers[tag] = h
}

func (d *Dispatcher) OnConnect(fn ConnectFunc)       { d.onConnect = fn }
func (d *Dispatcher) OnDisconnect(fn DisconnectFunc) { d.onDisconnect = fn }

// Dispatch handles one transport event. Decode failures come back as a
// *wire.DecodeError and never close the connection.
func (d *Dispatcher) Dispatch(now time.Time, ev transport.Event) ([]wire.Message, error) {
	switch ev.Kind {
	case transport.EventConnect:
		if d.onConnect == nil {
			return nil, nil
		}
		return d.onConnect(now, ev.Conn), nil
	case transport.EventDisconnect:
		if d.onDisconnect != nil {
			d.onDisconnect(now, ev.Conn)
		}
		return nil, nil
	case transport.EventData:
		return d.dispatchData(now, ev.Conn, ev.Payload)
	default:
		return nil, fmt.Errorf("dispatch: unexpected event kind %d", ev.Kind)
	}
}

func (d *Dispatcher) dispatchData(now time.Time, conn transport.ConnID, payload []byte) ([]wire.Message, error) {
	dec := wire.NewDecoder(payload)
	raw, err := dec.ReadUint8()
	if err != nil {
		return nil, &wire.DecodeError{Err: wire.ErrEmptyFrame}
	}
	tag := wire.Tag(raw)
	h, ok := d.handlers[tag]
	if !ok {
		return nil, &wire.DecodeError{Tag: tag, Err: wire.ErrUnknownTag}
	}
	msg, err := wire.Decode(d.dir, tag, dec)
	if err != nil {
		return nil, err
	}
	out := h(now, conn, msg)
	if n := dec.Remaining(); n > 0 {
		return out, fmt.Errorf("%w: %d bytes after %s", ErrTrailingBytes, n, tag)
	}
	return out, nil
}
