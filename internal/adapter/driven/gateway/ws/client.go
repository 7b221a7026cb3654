package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errNotConnected = errors.New("not connected")

const (
	writeTimeout      = 10 * time.Second
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

type Config struct {
	// ServerURL is the signaling server base, http(s) or ws(s).
	ServerURL  string
	UserID     domain.UserID
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// frame is the wire envelope shared with the signaling server.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is the socket to the signaling server. It implements
// port.SignalingTransport and keeps reconnecting until closed.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu       sync.RWMutex
	conn     *websocket.Conn
	handlers map[string]func(json.RawMessage)
	started  bool
	closed   bool

	writeMu sync.Mutex

	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

func NewClient(cfg Config) *Client {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return &Client{
		cfg:      cfg,
		dialer:   websocket.DefaultDialer,
		log:      log.With().Str("component", "signaling").Str("user_id", cfg.UserID.String()).Logger(),
		handlers: make(map[string]func(json.RawMessage)),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.ServerURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("userId", c.cfg.UserID.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run keeps a connection open until ctx is done or Close is called. It
// returns at once if Close came first, and must not be called twice.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("signaling client already running")
	}
	c.started = true
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil
	}
	defer close(c.done)

	endpoint, err := c.endpoint()
	if err != nil {
		return fmt.Errorf("signaling url: %w", err)
	}

	backoff := c.cfg.MinBackoff
	for {
		conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
		if err == nil {
			c.log.Info().Str("url", endpoint).Msg("Connected to signaling server")
			backoff = c.cfg.MinBackoff
			c.serve(conn)
			c.log.Warn().Msg("Disconnected from signaling server")
		} else {
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("Failed to reach signaling server")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.quit:
			return nil
		case <-time.After(backoff):
		}
		if conn == nil {
			backoff = min(backoff*2, c.cfg.MaxBackoff)
		}
	}
}

// serve reads frames until the connection breaks or the client is closed.
func (c *Client) serve(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-c.quit:
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.writeMu.Unlock()
			conn.Close()
		case <-stop:
		}
	}()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn().Err(err).Msg("Dropping malformed frame")
			continue
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f frame) {
	switch f.Event {
	case domain.EventOnlineUsers, domain.EventDisconnectedUsers:
		c.log.Debug().Str("event", f.Event).RawJSON("users", nonEmpty(f.Data)).Msg("Presence update")
		return
	}

	c.mu.RLock()
	h := c.handlers[f.Event]
	c.mu.RUnlock()
	if h == nil {
		c.log.Debug().Str("event", f.Event).Msg("No handler for event")
		return
	}
	h(f.Data)
}

func nonEmpty(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("null")
	}
	return data
}

func (c *Client) Emit(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	msg, err := json.Marshal(frame{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return domain.ErrSignalingDelivery
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignalingDelivery, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignalingDelivery, err)
	}
	c.log.Debug().Str("event", event).Msg("Frame sent")
	return nil
}

func (c *Client) On(event string, handler func(json.RawMessage)) {
	c.mu.Lock()
	c.handlers[event] = handler
	c.mu.Unlock()
}

func (c *Client) Off(event string) {
	c.mu.Lock()
	delete(c.handlers, event)
	c.mu.Unlock()
}

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Close stops reconnecting and closes the live connection, if any.
func (c *Client) Close() error {
	c.quitOnce.Do(func() {
		close(c.quit)

		c.mu.Lock()
		c.closed = true
		started := c.started
		c.mu.Unlock()
		if !started {
			close(c.done)
		}
	})
	return nil
}

// Done is closed once Run has returned, or by Close when Run never started.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// WaitConnected blocks until the first connection is up.
func (c *Client) WaitConnected(ctx context.Context) error {
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for {
		if c.Connected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", errNotConnected, ctx.Err())
		case <-c.done:
			return errNotConnected
		case <-t.C:
		}
	}
}
