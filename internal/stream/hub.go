package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/airvpn-bridge/internal/sensor"
)

const (
	defaultSendBuffer   = 16
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
)

// ErrClosed is returned by ServeHTTP once the hub is closed.
var ErrClosed = errors.New("hub closed")

// Option configures a Hub.
type Option func(*Hub)

// WithClientGauge reports the number of connected clients after every change.
func WithClientGauge(fn func(n int)) Option {
	return func(h *Hub) {
		if fn != nil {
			h.gauge = fn
		}
	}
}

// WithPingInterval overrides the keepalive ping interval.
func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithSendBuffer sets how many events may queue per client before it is
// dropped.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// Hub fans state events out to WebSocket clients. It implements sensor.Sink
// and http.Handler.
type Hub struct {
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	gauge        func(int)
	pingInterval time.Duration
	writeTimeout time.Duration
	sendBuffer   int

	mu        sync.Mutex
	clients   map[*client]struct{}
	order     []string
	last      map[string]StateView
	available *bool
	closed    bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	addr string
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger:       logger.With("component", "stream"),
		gauge:        func(int) {},
		pingInterval: defaultPingInterval,
		writeTimeout: defaultWriteTimeout,
		sendBuffer:   defaultSendBuffer,
		clients:      make(map[*client]struct{}),
		last:         make(map[string]StateView),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name identifies the sink in logs and metrics.
func (h *Hub) Name() string {
	return "websocket"
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, ErrClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, max(h.sendBuffer, 2)),
		addr: r.RemoteAddr,
	}
	if !h.register(c) {
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// PublishStates sends a state_changed event holding the states whose value
// differs from the previous publish, plus the IDs of entities that vanished.
func (h *Hub) PublishStates(ctx context.Context, states []sensor.State) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := make(map[string]StateView, len(states))
	order := make([]string, 0, len(states))
	ev := newEvent(EventStateChanged)

	for _, st := range states {
		v := ViewOf(st)
		next[v.EntityID] = v
		order = append(order, v.EntityID)
		if prev, ok := h.last[v.EntityID]; !ok || !sameValue(prev, v) {
			ev.States = append(ev.States, v)
		}
	}
	for _, id := range h.order {
		if _, ok := next[id]; !ok {
			ev.Removed = append(ev.Removed, id)
		}
	}

	h.last = next
	h.order = order

	if len(ev.States) == 0 && len(ev.Removed) == 0 {
		return nil
	}
	return h.broadcastLocked(ev)
}

// PublishAvailability sends an availability event when the value changes.
func (h *Hub) PublishAvailability(ctx context.Context, available bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.available != nil && *h.available == available {
		return nil
	}
	h.available = &available

	ev := newEvent(EventAvailability)
	ev.Available = &available
	return h.broadcastLocked(ev)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
	return nil
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	// Queue the current view before the client becomes visible to broadcasts
	// so it never sees a change ahead of the state it changes.
	initial := newEvent(EventStates)
	initial.States = make([]StateView, 0, len(h.order))
	for _, id := range h.order {
		initial.States = append(initial.States, h.last[id])
	}
	if data, err := json.Marshal(initial); err == nil {
		c.send <- data
	}
	if h.available != nil {
		ev := newEvent(EventAvailability)
		ev.Available = h.available
		if data, err := json.Marshal(ev); err == nil {
			c.send <- data
		}
	}

	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.gauge(n)
	h.logger.Debug("client connected", "remote", c.addr, "clients", n)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.gauge(n)
	h.logger.Debug("client disconnected", "remote", c.addr, "clients", n)
}

func (h *Hub) broadcastLocked(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("client too slow, disconnecting", "remote", c.addr)
			h.dropLocked(c)
		}
	}
	return nil
}

// writePump owns all writes to the connection.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(h.writeTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				h.logger.Debug("failed to send ping", "remote", c.addr, "error", err)
				h.unregister(c)
				return
			}
		}
	}
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
