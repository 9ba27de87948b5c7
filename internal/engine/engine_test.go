package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/u1974754/p-final-multi/internal/dispatch"
	"github.com/u1974754/p-final-multi/internal/game"
	"github.com/u1974754/p-final-multi/internal/packetlog"
	"github.com/u1974754/p-final-multi/internal/state"
	"github.com/u1974754/p-final-multi/internal/transport"
	"github.com/u1974754/p-final-multi/internal/wire"
)

type sent struct {
	conn transport.ConnID
	b    []byte
}

type fakeDriver struct {
	events []transport.Event
	sent   []sent
	closed []transport.ConnID
	full   map[transport.ConnID]bool
}

func (d *fakeDriver) PopEvent() (transport.Event, bool) {
	if len(d.events) == 0 {
		return transport.Event{}, false
	}
	ev := d.events[0]
	d.events = d.events[1:]
	return ev, true
}

func (d *fakeDriver) SendTo(conn transport.ConnID, b []byte) error {
	if d.full[conn] {
		return transport.ErrSendQueueFull
	}
	d.sent = append(d.sent, sent{conn: conn, b: b})
	return nil
}

func (d *fakeDriver) Close(conn transport.ConnID) error {
	d.closed = append(d.closed, conn)
	return nil
}

func (d *fakeDriver) QueueDepth() int { return len(d.events) }

func (d *fakeDriver) push(conn transport.ConnID, m wire.Message) {
	d.events = append(d.events, transport.Event{Kind: transport.EventData, Conn: conn, Payload: wire.Encode(m)})
}

func echoDispatcher(seen *[]transport.ConnID) *dispatch.Dispatcher {
	d := dispatch.New(wire.ToServer)
	d.Handle(wire.TagSelect, func(_ time.Time, conn transport.ConnID, msg wire.Message) []wire.Message {
		*seen = append(*seen, conn)
		return []wire.Message{wire.SelectAck{CharacterIndex: msg.(wire.SelectCharacter).CharacterIndex}}
	})
	return d
}

func TestStep_DrainsInOrderAcrossConnections(t *testing.T) {
	var seen []transport.ConnID
	drv := &fakeDriver{}
	for i := 0; i < 4; i++ {
		drv.push(1, wire.SelectCharacter{CharacterIndex: uint8(i)})
		drv.push(2, wire.SelectCharacter{CharacterIndex: uint8(10 + i)})
	}
	e := New(Config{}, drv, echoDispatcher(&seen))

	if n := e.Step(time.Now()); n != 8 {
		t.Fatalf("handled=%d", n)
	}
	if drv.QueueDepth() != 0 {
		t.Fatalf("queue not drained: %d", drv.QueueDepth())
	}
	var got1, got2 []byte
	for _, s := range drv.sent {
		switch s.conn {
		case 1:
			got1 = append(got1, s.b[1])
		case 2:
			got2 = append(got2, s.b[1])
		}
	}
	if !bytes.Equal(got1, []byte{0, 1, 2, 3}) || !bytes.Equal(got2, []byte{10, 11, 12, 13}) {
		t.Fatalf("conn1=%v conn2=%v", got1, got2)
	}
	if len(seen) != 8 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("seen=%v", seen)
	}
}

func TestStep_DecodeErrorKeepsGoing(t *testing.T) {
	var seen []transport.ConnID
	drv := &fakeDriver{}
	drv.events = append(drv.events,
		transport.Event{Kind: transport.EventData, Conn: 1, Payload: []byte{'Z'}},
		transport.Event{Kind: transport.EventData, Conn: 1, Payload: []byte{'S'}},
	)
	drv.push(1, wire.SelectCharacter{CharacterIndex: 2})

	var logBuf bytes.Buffer
	e := New(Config{RunID: "run-test"}, drv, echoDispatcher(&seen), WithPacketLog(packetlog.NewWriter(&logBuf)))
	e.Step(time.Now())

	if len(drv.sent) != 1 || !bytes.Equal(drv.sent[0].b, []byte{'S', 2}) {
		t.Fatalf("sent=%v", drv.sent)
	}
	if len(drv.closed) != 0 {
		t.Fatalf("closed=%v", drv.closed)
	}
	if !bytes.Contains(logBuf.Bytes(), []byte(`"result":"error"`)) || !bytes.Contains(logBuf.Bytes(), []byte(`"hex":"53 02"`)) {
		t.Fatalf("packet log=%s", logBuf.String())
	}
}

func TestSend_QueueFullClosesConnection(t *testing.T) {
	var seen []transport.ConnID
	drv := &fakeDriver{full: map[transport.ConnID]bool{7: true}}
	drv.push(7, wire.SelectCharacter{CharacterIndex: 0})
	e := New(Config{}, drv, echoDispatcher(&seen))
	e.Step(time.Now())

	if len(drv.closed) != 1 || drv.closed[0] != 7 {
		t.Fatalf("closed=%v", drv.closed)
	}
	if err := e.Send(7, wire.HackerFlag{}); !errors.Is(err, transport.ErrSendQueueFull) {
		t.Fatalf("send err=%v", err)
	}
}

func TestHooks_EveryIsPaced(t *testing.T) {
	drv := &fakeDriver{}
	e := New(Config{}, drv, dispatch.New(wire.ToServer))
	ticks, paced := 0, 0
	e.OnTick(func(time.Time, Sender) { ticks++ })
	e.Every(time.Second, func(time.Time, Sender) { paced++ })

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		e.Step(start.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	if ticks != 25 {
		t.Fatalf("ticks=%d", ticks)
	}
	// t=0, 1s, 2s
	if paced != 3 {
		t.Fatalf("paced=%d", paced)
	}
}

// Two raw TCP clients against a real server loop.
func TestEndToEnd_TwoClientsOverTCP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := transport.NewHub(transport.HubConfig{})
	defer hub.Shutdown()
	addr, err := transport.ListenTCP(ctx, "127.0.0.1:0", hub)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	slots := state.NewArbiter(3)
	coord := game.NewCoordinator(game.Config{
		ServerName: "MyServer",
		Spawn:      game.DefaultSpawnArea(),
		MaxLives:   3,
	}, slots, state.NewSessionStore(), game.NewValidator(game.DefaultBounds()))
	disp := dispatch.New(wire.ToServer)
	coord.Register(disp)
	eng := New(Config{Tick: 2 * time.Millisecond}, hub, disp)
	go func() { _ = eng.Run(ctx) }()

	a := dial(t, addr.String())
	hsA := expect(t, a, 101).(wire.Handshake)
	if hsA.ServerName != "MyServer" || hsA.PreviousClientName != game.NoPreviousClient || len(hsA.ClientName) != 32 {
		t.Fatalf("handshake A=%+v", hsA)
	}
	b := dial(t, addr.String())
	hsB := expect(t, b, 101).(wire.Handshake)
	if hsB.PreviousClientName != hsA.ClientName {
		t.Fatalf("handshake B previous=%q want %q", hsB.PreviousClientName, hsA.ClientName)
	}

	write(t, a, wire.SelectCharacter{CharacterIndex: 0})
	if m := expect(t, a, 2); m != (wire.SelectAck{CharacterIndex: 0}) {
		t.Fatalf("A ack=%+v", m)
	}
	spawn := expect(t, a, 14).(wire.SpawnPosition)
	if spawn.CharacterIndex != 0 || spawn.Position.Y != -2 {
		t.Fatalf("A spawn=%+v", spawn)
	}

	write(t, b, wire.SelectCharacter{CharacterIndex: 0})
	if m := expect(t, b, 33); m != (wire.SelectError{Message: game.ReasonAlreadyTaken}) {
		t.Fatalf("B error=%+v", m)
	}
	write(t, b, wire.SelectCharacter{CharacterIndex: 1})
	if m := expect(t, b, 2); m != (wire.SelectAck{CharacterIndex: 1}) {
		t.Fatalf("B ack=%+v", m)
	}
	expect(t, b, 14)

	write(t, a, wire.SpawnPosition{CharacterIndex: 0, Position: spawn.Position})
	if m := expect(t, a, 2); m != (wire.PositionAccepted{CharacterIndex: 0}) {
		t.Fatalf("A accepted=%+v", m)
	}

	// A leaves; its slot frees up for a newcomer.
	_ = a.Close()
	c := dial(t, addr.String())
	expect(t, c, 101)
	deadline := time.Now().Add(2 * time.Second)
	for slots.Taken() != 1 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	write(t, c, wire.SelectCharacter{CharacterIndex: 0})
	if m := expect(t, c, 2); m != (wire.SelectAck{CharacterIndex: 0}) {
		t.Fatalf("C ack=%+v", m)
	}
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func write(t *testing.T, c net.Conn, m wire.Message) {
	t.Helper()
	if _, err := c.Write(wire.Encode(m)); err != nil {
		t.Fatalf("write %T: %v", m, err)
	}
}

func expect(t *testing.T, c net.Conn, size int) wire.Message {
	t.Helper()
	buf := make([]byte, size)
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(c, buf); err != nil {
		t.Fatalf("read %d bytes: %v", size, err)
	}
	m, n, err := wire.DecodeFrame(wire.ToClient, buf)
	if err != nil || n != size {
		t.Fatalf("decode %v: n=%d err=%v", buf, n, err)
	}
	return m
}
