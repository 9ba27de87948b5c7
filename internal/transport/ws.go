package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Largest message is a Handshake (101 bytes); anything far beyond that is
// not ours.
const wsReadLimit = 4096

type wsLink struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

func newWSLink(ws *websocket.Conn, writeTimeout time.Duration) *wsLink {
	ws.SetReadLimit(wsReadLimit)
	return &wsLink{ws: ws, writeTimeout: writeTimeout}
}

func (l *wsLink) ReadMessage() ([]byte, error) {
	for {
		mt, b, err := l.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		return b, nil
	}
}

func (l *wsLink) WriteMessage(b []byte) error {
	_ = l.ws.SetWriteDeadline(time.Now().Add(l.writeTimeout))
	return l.ws.WriteMessage(websocket.BinaryMessage, b)
}

func (l *wsLink) Close() error { return l.ws.Close() }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Game clients are not browsers; there is no origin to enforce.
		return true
	},
}

// WSHandler upgrades requests to WebSocket and attaches them to h.
func (h *Hub) WSHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		h.attach(newWSLink(ws, h.cfg.WriteTimeout), r.RemoteAddr)
	})
}

// DialWS connects to a ws:// or wss:// URL and attaches the connection to h.
func DialWS(ctx context.Context, url string, h *Hub) (ConnID, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return 0, fmt.Errorf("dial ws %s: %w", url, err)
	}
	return h.attach(newWSLink(ws, h.cfg.WriteTimeout), ws.RemoteAddr().String()), nil
}
