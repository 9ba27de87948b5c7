package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ConnID identifies one connection for its whole lifetime. IDs are never
// reused within a Hub and start at 1, so the zero value means "no connection".
type ConnID uint32

func (id ConnID) String() string { return fmt.Sprintf("0x%08x", uint32(id)) }

type EventKind uint8

const (
	EventConnect EventKind = iota + 1
	EventData
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "CONNECT"
	case EventData:
		return "DATA"
	case EventDisconnect:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

type Event struct {
	Kind    EventKind
	Conn    ConnID
	Payload []byte // one message for EventData, nil otherwise
	Remote  string
	At      time.Time
}

// Driver is the channel contract the game loop consumes.
type Driver interface {
	// PopEvent returns the oldest pending event, or false when none is queued.
	PopEvent() (Event, bool)
	SendTo(conn ConnID, payload []byte) error
	Close(conn ConnID) error
	QueueDepth() int
}

var (
	ErrUnknownConn   = errors.New("transport: unknown connection")
	ErrSendQueueFull = errors.New("transport: send queue full")
	ErrEmptyPayload  = errors.New("transport: empty payload")
)

// link is one connected socket that reads and writes whole messages.
type link interface {
	ReadMessage() ([]byte, error)
	WriteMessage(b []byte) error
	Close() error
}

type HubConfig struct {
	EventQueue   int           // pending events across all connections (default 1024)
	SendQueue    int           // pending outbound messages per connection (default 64)
	WriteTimeout time.Duration // per write (default 5s)
}

type Hub struct {
	cfg HubConfig

	mu     sync.Mutex
	peers  map[ConnID]*peer
	nextID ConnID

	events   chan Event
	quit     chan struct{}
	quitOnce sync.Once
}

type peer struct {
	id     ConnID
	link   link
	remote string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

var _ Driver = (*Hub)(nil)

func NewHub(cfg HubConfig) *Hub {
	if cfg.EventQueue <= 0 {
		cfg.EventQueue = 1024
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Hub{
		cfg:    cfg,
		peers:  make(map[ConnID]*peer),
		events: make(chan Event, cfg.EventQueue),
		quit:   make(chan struct{}),
	}
}

func (h *Hub) PopEvent() (Event, bool) {
	select {
	case ev := <-h.events:
		return ev, true
	default:
		return Event{}, false
	}
}

// SendTo queues payload for conn without blocking.
func (h *Hub) SendTo(conn ConnID, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	p := h.lookup(conn)
	if p == nil {
		return ErrUnknownConn
	}
	select {
	case <-p.done:
		return ErrUnknownConn
	default:
	}
	select {
	case p.send <- payload:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close shuts the socket down. The Disconnect event follows asynchronously.
func (h *Hub) Close(conn ConnID) error {
	p := h.lookup(conn)
	if p == nil {
		return ErrUnknownConn
	}
	return p.link.Close()
}

func (h *Hub) QueueDepth() int { return len(h.events) }

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Shutdown closes every connection and stops queueing events.
func (h *Hub) Shutdown() {
	h.quitOnce.Do(func() { close(h.quit) })
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		_ = p.link.Close()
	}
}

func (h *Hub) lookup(conn ConnID) *peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peers[conn]
}

// attach registers l, queues its Connect event and starts its pumps.
func (h *Hub) attach(l link, remote string) ConnID {
	h.mu.Lock()
	h.nextID++
	p := &peer{
		id:     h.nextID,
		link:   l,
		remote: remote,
		send:   make(chan []byte, h.cfg.SendQueue),
		done:   make(chan struct{}),
	}
	h.peers[p.id] = p
	h.mu.Unlock()

	// Connect is queued before the read pump starts so it always precedes
	// the connection's first Data event.
	h.push(Event{Kind: EventConnect, Conn: p.id, Remote: remote, At: time.Now().UTC()})
	go h.writePump(p)
	go h.readPump(p)
	return p.id
}

func (h *Hub) push(ev Event) {
	select {
	case h.events <- ev:
	case <-h.quit:
	}
}

func (h *Hub) readPump(p *peer) {
	defer h.drop(p)
	for {
		b, err := p.link.ReadMessage()
		if err != nil {
			return
		}
		h.push(Event{Kind: EventData, Conn: p.id, Payload: b, Remote: p.remote, At: time.Now().UTC()})
	}
}

func (h *Hub) writePump(p *peer) {
	for {
		select {
		case <-p.done:
			return
		case b := <-p.send:
			if err := p.link.WriteMessage(b); err != nil {
				// The read pump sees the closed socket and drops the peer.
				_ = p.link.Close()
				return
			}
		}
	}
}

// drop forgets p and queues its Disconnect event, once.
func (h *Hub) drop(p *peer) {
	p.closeOnce.Do(func() {
		h.mu.Lock()
		delete(h.peers, p.id)
		h.mu.Unlock()
		close(p.done)
		_ = p.link.Close()
		h.push(Event{Kind: EventDisconnect, Conn: p.id, Remote: p.remote, At: time.Now().UTC()})
	})
}
