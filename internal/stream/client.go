package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client errors.
var (
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// ClientConfig configures a Client.
type ClientConfig struct {
	URL          string        // ws://host:port/api/websocket
	BufferSize   int           // Event channel capacity
	PingInterval time.Duration // How often to ping the hub
	PingTimeout  time.Duration // Max time without a pong before the connection is stale
	WriteTimeout time.Duration
}

func (c *ClientConfig) applyDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 64
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 2 * c.PingInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
}

// Client consumes a hub's event stream.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	events chan Event
	errors chan error
	done   chan struct{}

	mu         sync.RWMutex
	lastPongAt time.Time
	connected  bool
	closed     bool
}

// NewClient creates a client. Call Connect to dial.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		events: make(chan Event, cfg.BufferSize),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// Connect dials the hub and starts reading.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastPongAt = time.Now()
	c.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPongAt = time.Now()
		c.mu.Unlock()
		return nil
	})

	go c.readLoop()
	go c.heartbeatLoop()

	c.logger.Debug("stream connected", "url", c.cfg.URL)
	return nil
}

// Events returns decoded hub events. The channel is closed when the
// connection ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Errors reports the error that ended the connection, if any.
func (c *Client) Errors() <-chan error {
	return c.errors
}

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)

	if conn == nil {
		return nil
	}
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return conn.Close()
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		close(c.events)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.report(err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warn("dropping undecodable event", "error", err)
			continue
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		default:
			c.logger.Warn("event buffer full, dropping event", "type", ev.Type)
		}
	}
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.RLock()
			lastPong := c.lastPongAt
			c.mu.RUnlock()

			if time.Since(lastPong) > c.cfg.PingTimeout {
				c.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", c.cfg.PingTimeout,
				)
				c.report(ErrStaleConnection)
				c.conn.Close()
				return
			}
		}
	}
}

func (c *Client) report(err error) {
	select {
	case c.errors <- err:
	default:
	}
}
