package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/u1974754/p-final-multi/internal/wire"
)

// streamLink cuts a TCP byte stream into messages by tag.
type streamLink struct {
	conn         net.Conn
	sc           *bufio.Scanner
	writeTimeout time.Duration
}

func newStreamLink(c net.Conn, writeTimeout time.Duration) *streamLink {
	sc := bufio.NewScanner(c)
	sc.Split(wire.SplitMessages)
	return &streamLink{conn: c, sc: sc, writeTimeout: writeTimeout}
}

func (l *streamLink) ReadMessage() ([]byte, error) {
	if l.sc.Scan() {
		// Scanner reuses its buffer.
		return append([]byte(nil), l.sc.Bytes()...), nil
	}
	if err := l.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (l *streamLink) WriteMessage(b []byte) error {
	_ = l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout))
	_, err := l.conn.Write(b)
	return err
}

func (l *streamLink) Close() error { return l.conn.Close() }

// AttachConn hands an already established stream connection to the hub.
func (h *Hub) AttachConn(c net.Conn) ConnID {
	return h.attach(newStreamLink(c, h.cfg.WriteTimeout), c.RemoteAddr().String())
}

// ListenTCP binds addr and accepts connections into h until ctx is done.
// A bind failure is returned immediately.
func ListenTCP(ctx context.Context, addr string, h *Hub) (net.Addr, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
					return
				}
				slog.Warn("tcp accept failed", "addr", addr, "err", err)
				time.Sleep(50 * time.Millisecond)
				continue
			}
			h.AttachConn(c)
		}
	}()

	return ln.Addr(), nil
}

// DialTCP connects to addr and attaches the connection to h.
func DialTCP(ctx context.Context, addr string, h *Hub) (ConnID, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("dial tcp %s: %w", addr, err)
	}
	return h.AttachConn(c), nil
}
