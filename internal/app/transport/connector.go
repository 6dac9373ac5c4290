/*
Package transport owns the single real-time connection of a chat session.

This file defines the Connector. It dials the websocket endpoint with the session token,
runs the read and write pumps of the open connection, fans decoded events and status
changes out to subscribers, and redials after a fixed delay whenever the connection
closes, until Disconnect is called.
*/
package transport

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatsync/internal/pkg/errs"
	"chatsync/internal/pkg/eventbus"
	"chatsync/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time to wait for a Pong before the connection is considered dead.
	pongWait = 60 * time.Second

	// frequency at which the connector sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of an inbound frame.
	maxMessageSize = 64 << 10

	// capacity of the outbound buffer of one connection.
	sendBufferSize = 64

	// DefaultReconnectDelay is the fixed pause between a close and the next dial.
	DefaultReconnectDelay = 5 * time.Second
)

// Status is the observable state of the connection.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Options tunes a Connector. Zero values select the defaults.
type Options struct {
	// ReconnectDelay is the pause before redialing after a close or failed dial.
	ReconnectDelay time.Duration

	// Dialer replaces the default gorilla dialer.
	Dialer Dialer
}

// Connector maintains one reconnecting websocket connection.
type Connector struct {
	endpoint       string
	dialer         Dialer
	reconnectDelay time.Duration

	events   *eventbus.Bus[Event]
	statuses *eventbus.Bus[Status]

	// mu protects every field below.
	mu sync.Mutex

	// gen identifies the current run loop; transitions of older loops are ignored.
	gen uint64

	status Status
	live   *link
	cancel context.CancelFunc

	logger zerolog.Logger
}

// link is one open connection and its outbound buffer.
type link struct {
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newLink(conn *websocket.Conn) *link {
	return &link{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
}

// close sends a normal close frame and closes the socket. Safe to call repeatedly.
func (l *link) close() {
	l.once.Do(func() {
		close(l.closed)
		_ = l.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		_ = l.conn.Close()
	})
}

// NewConnector creates a disconnected Connector for the websocket endpoint
// (e.g. ws://localhost:8000/ws). The token is added as a query parameter on Connect.
func NewConnector(endpoint string, opts Options) *Connector {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}

	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: writeWait,
		}
	}

	return &Connector{
		endpoint:       endpoint,
		dialer:         opts.Dialer,
		reconnectDelay: opts.ReconnectDelay,
		events:         eventbus.New[Event]("transport.events"),
		statuses:       eventbus.New[Status]("transport.status"),
		status:         StatusDisconnected,
		logger:         logx.Component("transport"),
	}
}

// Connect opens a connection authenticated by token, replacing any existing one.
// It returns immediately; progress is reported through the status listeners.
func (c *Connector) Connect(token string) {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.live = nil
	c.mu.Unlock()

	go c.run(ctx, gen, c.dialURL(token))
}

// Disconnect closes the connection and cancels any scheduled reconnect.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	gen := c.gen
	c.live = nil
	c.mu.Unlock()

	c.transition(gen, StatusDisconnected)
}

// Status returns the current connection status.
func (c *Connector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SubscribeEvents registers fn for every decoded inbound event.
// Events are delivered one at a time on the connection's read goroutine.
func (c *Connector) SubscribeEvents(fn func(Event)) *eventbus.Subscription {
	return c.events.Subscribe(fn)
}

// SubscribeStatus registers fn for every status change.
func (c *Connector) SubscribeStatus(fn func(Status)) *eventbus.Subscription {
	return c.statuses.Subscribe(fn)
}

// Publish sends ev on the open connection. When no connection is open the event
// is dropped and ErrNotConnected is returned; nothing is queued for later.
func (c *Connector) Publish(ev Event) error {
	data, err := Encode(ev)
	if err != nil {
		return errs.Wrap(errs.ErrInvalidEnvelope, err)
	}

	c.mu.Lock()
	l := c.live
	connected := c.status == StatusConnected
	c.mu.Unlock()

	if l == nil || !connected {
		err := errs.NewError(errs.ErrNotConnected)
		c.logger.Error().Err(err).Str("event_kind", string(ev.Kind())).Msg("Dropping outbound event, connection not open.")
		return err
	}

	select {
	case <-l.closed:
		err := errs.NewError(errs.ErrNotConnected)
		c.logger.Error().Err(err).Str("event_kind", string(ev.Kind())).Msg("Dropping outbound event, connection closing.")
		return err
	case l.send <- data:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(l.send)).Msg("Send buffer full, dropping outbound event.")
		return errs.NewError(errs.ErrSendQueueFull)
	}
}

func (c *Connector) dialURL(token string) string {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", c.endpoint).Msg("Invalid websocket endpoint")
		return c.endpoint
	}

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// current reports whether gen still owns the connector.
func (c *Connector) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// transition moves to s on behalf of run loop gen and notifies listeners of a change.
func (c *Connector) transition(gen uint64, s Status) {
	c.mu.Lock()
	if c.gen != gen || c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	c.mu.Unlock()

	c.logger.Debug().Str("status", string(s)).Msg("Connection status changed")
	c.statuses.Publish(s)
}

// run dials, serves and redials until ctx is cancelled.
func (c *Connector) run(ctx context.Context, gen uint64, dialURL string) {
	for {
		c.transition(gen, StatusConnecting)

		conn, _, err := c.dialer.DialContext(ctx, dialURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Msg("Websocket dial failed")
		} else {
			c.serve(ctx, gen, conn)
		}

		if ctx.Err() != nil {
			return
		}

		c.transition(gen, StatusDisconnected)

		c.logger.Info().Dur("delay", c.reconnectDelay).Msg("Scheduling reconnect.")

		timer := time.NewTimer(c.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// serve runs one open connection until it closes or ctx is cancelled.
func (c *Connector) serve(ctx context.Context, gen uint64, conn *websocket.Conn) {
	l := newLink(conn)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		l.close()
		return
	}
	c.live = l
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, l.close)
	defer stop()

	c.transition(gen, StatusConnected)
	c.logger.Info().Msg("Websocket connected")

	go c.writePump(l)
	c.readPump(gen, l)

	l.close()

	c.mu.Lock()
	if c.live == l {
		c.live = nil
	}
	c.mu.Unlock()
}

// readPump reads frames until the connection fails, publishing every decoded event.
func (c *Connector) readPump(gen uint64, l *link) {
	l.conn.SetReadLimit(maxMessageSize)

	if err := l.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Websocket closed unexpectedly")
			}
			return
		}

		ev, err := Decode(frame)
		if err != nil {
			c.logger.Warn().Err(err).Bytes("frame", frame).Msg("Dropping inbound frame")
			continue
		}

		if !c.current(gen) {
			return
		}

		c.events.Publish(ev)
	}
}

// writePump drains the outbound buffer and keeps the heartbeat going.
func (c *Connector) writePump(l *link) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-l.closed:
			return

		case frame := <-l.send:
			if !c.write(l, websocket.TextMessage, frame) {
				l.close()
				return
			}

		case <-ticker.C:
			if !c.write(l, websocket.PingMessage, nil) {
				l.close()
				return
			}
		}
	}
}

func (c *Connector) write(l *link, messageType int, data []byte) bool {
	if err := l.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := l.conn.WriteMessage(messageType, data); err != nil {
		c.logger.Error().Err(err).Msg("Error writing to websocket")
		return false
	}

	return true
}
