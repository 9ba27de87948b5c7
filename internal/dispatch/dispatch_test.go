package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/u1974754/p-final-multi/internal/transport"
	"github.com/u1974754/p-final-multi/internal/wire"
)

func data(conn transport.ConnID, m wire.Message) transport.Event {
	return transport.Event{Kind: transport.EventData, Conn: conn, Payload: wire.Encode(m)}
}

func TestDispatch_RoutesByTag(t *testing.T) {
	d := New(wire.ToServer)
	var got []wire.Message
	d.Handle(wire.TagSelect, func(_ time.Time, conn transport.ConnID, msg wire.Message) []wire.Message {
		got = append(got, msg)
		return []wire.Message{wire.SelectAck{CharacterIndex: msg.(wire.SelectCharacter).CharacterIndex}}
	})
	d.Handle(wire.TagLifeUpdate, func(_ time.Time, _ transport.ConnID, msg wire.Message) []wire.Message {
		got = append(got, msg)
		return nil
	})

	out, err := d.Dispatch(time.Now(), data(1, wire.SelectCharacter{CharacterIndex: 2}))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(out) != 1 || out[0] != (wire.SelectAck{CharacterIndex: 2}) {
		t.Fatalf("out=%v", out)
	}
	if _, err := d.Dispatch(time.Now(), data(1, wire.LifeUpdate{CharacterIndex: 2, Lives: 3})); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("handled=%v", got)
	}
	if _, ok := got[0].(wire.SelectCharacter); !ok {
		t.Fatalf("first handled=%T", got[0])
	}
}

func TestDispatch_UnknownAndUnhandledTags(t *testing.T) {
	d := New(wire.ToServer)
	d.Handle(wire.TagSelect, func(time.Time, transport.ConnID, wire.Message) []wire.Message { return nil })

	_, err := d.Dispatch(time.Now(), transport.Event{Kind: transport.EventData, Conn: 1, Payload: []byte{'A', 0}})
	if !errors.Is(err, wire.ErrUnknownTag) {
		t.Fatalf("unknown err=%v", err)
	}
	// Valid tag, but nothing registered for it on this side.
	_, err = d.Dispatch(time.Now(), data(1, wire.HackerFlag{}))
	if !errors.Is(err, wire.ErrUnknownTag) {
		t.Fatalf("unhandled err=%v", err)
	}
	_, err = d.Dispatch(time.Now(), transport.Event{Kind: transport.EventData, Conn: 1, Payload: []byte{'S'}})
	if !errors.Is(err, wire.ErrTruncatedMessage) {
		t.Fatalf("truncated err=%v", err)
	}
	_, err = d.Dispatch(time.Now(), transport.Event{Kind: transport.EventData, Conn: 1})
	if !errors.Is(err, wire.ErrEmptyFrame) {
		t.Fatalf("empty err=%v", err)
	}
}

func TestDispatch_TrailingBytesStillHandled(t *testing.T) {
	d := New(wire.ToServer)
	calls := 0
	d.Handle(wire.TagSelect, func(time.Time, transport.ConnID, wire.Message) []wire.Message {
		calls++
		return nil
	})
	_, err := d.Dispatch(time.Now(), transport.Event{Kind: transport.EventData, Conn: 1, Payload: []byte{'S', 0, 'S', 1}})
	if !errors.Is(err, ErrTrailingBytes) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestDispatch_ConnectAndDisconnectHooks(t *testing.T) {
	d := New(wire.ToServer)
	var gone []transport.ConnID
	d.OnConnect(func(_ time.Time, conn transport.ConnID) []wire.Message {
		return []wire.Message{wire.Handshake{ClientName: conn.String()}}
	})
	d.OnDisconnect(func(_ time.Time, conn transport.ConnID) { gone = append(gone, conn) })

	out, err := d.Dispatch(time.Now(), transport.Event{Kind: transport.EventConnect, Conn: 9})
	if err != nil || len(out) != 1 {
		t.Fatalf("connect out=%v err=%v", out, err)
	}
	if _, err := d.Dispatch(time.Now(), transport.Event{Kind: transport.EventDisconnect, Conn: 9}); err != nil {
		t.Fatalf("disconnect err=%v", err)
	}
	if len(gone) != 1 || gone[0] != 9 {
		t.Fatalf("gone=%v", gone)
	}
}
