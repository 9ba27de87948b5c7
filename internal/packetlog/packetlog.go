// Package packetlog writes one JSON record per line for every message the
// game loop receives or sends. It is a debugging aid and is off by default.
package packetlog

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Record struct {
	RunID     string `json:"run_id"`
	Timestamp string `json:"ts"`
	Type      string `json:"type"`
	Direction string `json:"direction,omitempty"`
	Conn      string `json:"conn,omitempty"`
	Remote    string `json:"remote,omitempty"`
	Length    int    `json:"len,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Result    string `json:"result,omitempty"`
	Message   string `json:"message,omitempty"`
	Hex       string `json:"hex,omitempty"`
}

type Logger struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// New opens a size-rotated log at path. maxSizeMB <= 0 uses 10.
func New(path string, maxSizeMB int) (*Logger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("packetlog: empty path")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 3,
		MaxAge:     7,
	}
	return &Logger{w: lj, c: lj}, nil
}

// NewWriter logs to w; Close leaves w open.
func NewWriter(w io.Writer) *Logger {
	return &Logger{w: w}
}

func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w = nil
	if l.c != nil {
		return l.c.Close()
	}
	return nil
}

// Log is a no-op on a nil or closed Logger.
func (l *Logger) Log(rec Record) {
	if l == nil {
		return
	}
	if rec.Timestamp == "" {
		rec.Timestamp = NowTS()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return
	}
	_, _ = l.w.Write(append(line, '\n'))
}

func NowTS() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// ToHex renders b as space-separated upper-case byte pairs ("48 00 1F").
func ToHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	const digits = "0123456789ABCDEF"
	var sb strings.Builder
	sb.Grow(len(b) * 3)
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte(digits[v>>4])
		sb.WriteByte(digits[v&0x0f])
	}
	return sb.String()
}
