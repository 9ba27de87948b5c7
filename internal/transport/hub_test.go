package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitEvent(t *testing.T, h *Hub) Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ev, ok := h.PopEvent(); ok {
			return ev
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no event within deadline")
	return Event{}
}

func listen(t *testing.T, h *Hub) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	addr, err := ListenTCP(ctx, "127.0.0.1:0", h)
	if err != nil {
		t.Fatalf("listen err=%v", err)
	}
	return addr.String()
}

func TestTCP_EventsInOrder(t *testing.T) {
	h := NewHub(HubConfig{})
	addr := listen(t, h)

	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial err=%v", err)
	}
	defer c.Close()

	ev := waitEvent(t, h)
	if ev.Kind != EventConnect || ev.Conn == 0 {
		t.Fatalf("first event=%+v", ev)
	}
	id := ev.Conn

	// Split one message across writes and pack two into one write.
	_, _ = c.Write([]byte{'S'})
	time.Sleep(10 * time.Millisecond)
	_, _ = c.Write([]byte{2, 'V', 1, 3, 0, 0, 0, 'S', 1})

	want := [][]byte{{'S', 2}, {'V', 1, 3, 0, 0, 0}, {'S', 1}}
	for i, w := range want {
		ev := waitEvent(t, h)
		if ev.Kind != EventData || ev.Conn != id {
			t.Fatalf("event %d=%+v", i, ev)
		}
		if !bytes.Equal(ev.Payload, w) {
			t.Fatalf("event %d payload=%v want=%v", i, ev.Payload, w)
		}
	}

	if err := h.SendTo(id, []byte{'B', 2}); err != nil {
		t.Fatalf("send err=%v", err)
	}
	buf := make([]byte, 2)
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(c, buf); err != nil {
		t.Fatalf("read err=%v", err)
	}
	if !bytes.Equal(buf, []byte{'B', 2}) {
		t.Fatalf("read=%v", buf)
	}

	_ = c.Close()
	ev = waitEvent(t, h)
	if ev.Kind != EventDisconnect || ev.Conn != id {
		t.Fatalf("last event=%+v", ev)
	}
	if err := h.SendTo(id, []byte{'B', 2}); !errors.Is(err, ErrUnknownConn) {
		t.Fatalf("send after disconnect err=%v", err)
	}
	if h.Count() != 0 {
		t.Fatalf("count=%d", h.Count())
	}
}

func TestTCP_CloseFromServerDisconnectsOnce(t *testing.T) {
	h := NewHub(HubConfig{})
	addr := listen(t, h)

	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial err=%v", err)
	}
	defer c.Close()
	id := waitEvent(t, h).Conn

	if err := h.Close(id); err != nil {
		t.Fatalf("close err=%v", err)
	}
	_ = h.Close(id)
	ev := waitEvent(t, h)
	if ev.Kind != EventDisconnect || ev.Conn != id {
		t.Fatalf("event=%+v", ev)
	}
	time.Sleep(20 * time.Millisecond)
	if ev, ok := h.PopEvent(); ok {
		t.Fatalf("unexpected extra event=%+v", ev)
	}
}

func TestListenTCP_BindFailure(t *testing.T) {
	h := NewHub(HubConfig{})
	addr := listen(t, h)
	if _, err := ListenTCP(context.Background(), addr, NewHub(HubConfig{})); err == nil {
		t.Fatalf("expected bind failure on %s", addr)
	}
}

func TestDialTCP_PairOfHubs(t *testing.T) {
	server := NewHub(HubConfig{})
	addr := listen(t, server)
	client := NewHub(HubConfig{})

	cid, err := DialTCP(context.Background(), addr, client)
	if err != nil {
		t.Fatalf("dial err=%v", err)
	}
	if ev := waitEvent(t, client); ev.Kind != EventConnect || ev.Conn != cid {
		t.Fatalf("client event=%+v", ev)
	}
	sid := waitEvent(t, server).Conn

	if err := server.SendTo(sid, []byte{'M', 0}); err != nil {
		t.Fatalf("send err=%v", err)
	}
	if ev := waitEvent(t, client); ev.Kind != EventData || !bytes.Equal(ev.Payload, []byte{'M', 0}) {
		t.Fatalf("client data=%+v", ev)
	}
	client.Shutdown()
	if ev := waitEvent(t, server); ev.Kind != EventDisconnect || ev.Conn != sid {
		t.Fatalf("server event=%+v", ev)
	}
}

func TestWS_BinaryFramesAreMessages(t *testing.T) {
	h := NewHub(HubConfig{})
	srv := httptest.NewServer(h.WSHandler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err=%v", err)
	}
	defer ws.Close()

	id := waitEvent(t, h).Conn
	_ = ws.WriteMessage(websocket.TextMessage, []byte("ignored"))
	_ = ws.WriteMessage(websocket.BinaryMessage, []byte{'S', 1})
	ev := waitEvent(t, h)
	if ev.Kind != EventData || ev.Conn != id || !bytes.Equal(ev.Payload, []byte{'S', 1}) {
		t.Fatalf("event=%+v", ev)
	}

	if err := h.SendTo(id, []byte{'S', 1}); err != nil {
		t.Fatalf("send err=%v", err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, b, err := ws.ReadMessage()
	if err != nil || mt != websocket.BinaryMessage || !bytes.Equal(b, []byte{'S', 1}) {
		t.Fatalf("read mt=%d b=%v err=%v", mt, b, err)
	}
}

func TestDialWS_AttachesToHub(t *testing.T) {
	server := NewHub(HubConfig{})
	srv := httptest.NewServer(server.WSHandler())
	defer srv.Close()

	client := NewHub(HubConfig{})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	cid, err := DialWS(context.Background(), url, client)
	if err != nil {
		t.Fatalf("dial err=%v", err)
	}
	if ev := waitEvent(t, client); ev.Kind != EventConnect || ev.Conn != cid {
		t.Fatalf("client event=%+v", ev)
	}
	if err := client.SendTo(cid, []byte{'S', 0}); err != nil {
		t.Fatalf("send err=%v", err)
	}
	if ev := waitEvent(t, server); ev.Kind != EventConnect {
		t.Fatalf("server first event=%+v", ev)
	}
	if ev := waitEvent(t, server); ev.Kind != EventData || !bytes.Equal(ev.Payload, []byte{'S', 0}) {
		t.Fatalf("server data=%+v", ev)
	}
}

func TestSendTo_Errors(t *testing.T) {
	h := NewHub(HubConfig{})
	if err := h.SendTo(42, []byte{'B', 0}); !errors.Is(err, ErrUnknownConn) {
		t.Fatalf("unknown err=%v", err)
	}
	if err := h.SendTo(42, nil); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("empty err=%v", err)
	}
}
