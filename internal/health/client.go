package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/postprober/dashboard-core/internal/metrics"
	"github.com/sirupsen/logrus"
)

// State of the stream connection
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	writeTimeout    = 5 * time.Second
	maxFrameBytes   = 1 << 20
	defaultPongWait = 45 * time.Second
	defaultPingTick = 15 * time.Second
)

type handlerEntry struct {
	id uint64
	fn Handler
}

// StreamClient keeps a websocket to the health monitor open and fans decoded
// events out to handlers.
//
// All handlers run on the client's own goroutine, one event at a time, in
// arrival order. Handlers must not call DisconnectAll, which waits for that
// goroutine to exit.
type StreamClient struct {
	url     string
	header  http.Header
	dialer  *websocket.Dialer
	initial time.Duration
	max     time.Duration
	metrics *metrics.Metrics

	// a connection with no inbound traffic for pongWait is treated as dead
	readLimit int64
	pongWait  time.Duration
	pingTick  time.Duration

	now     func() time.Time

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	conn   *websocket.Conn

	handlersMu    sync.Mutex
	handlers      map[EventType][]handlerEntry
	nextHandlerID uint64
}

// StreamOption configures a StreamClient
type StreamOption func(*StreamClient)

// WithBackoff sets the first reconnect delay and the cap
func WithBackoff(initial, max time.Duration) StreamOption {
	return func(c *StreamClient) {
		c.initial = initial
		c.max = max
	}
}

// WithDialer replaces the default websocket dialer
func WithDialer(d *websocket.Dialer) StreamOption {
	return func(c *StreamClient) { c.dialer = d }
}

// WithHeader adds headers to the handshake request
func WithHeader(h http.Header) StreamOption {
	return func(c *StreamClient) { c.header = h }
}

// WithKeepAlive sets how often the client pings and how long it waits for any
// inbound traffic, pongs included, before dropping the connection
func WithKeepAlive(pingTick, pongWait time.Duration) StreamOption {
	return func(c *StreamClient) {
		c.pingTick = pingTick
		c.pongWait = pongWait
	}
}

// WithReadLimit caps the size of a single inbound frame
func WithReadLimit(n int64) StreamOption {
	return func(c *StreamClient) { c.readLimit = n }
}

// WithStreamMetrics records state and event counts on m
func WithStreamMetrics(m *metrics.Metrics) StreamOption {
	return func(c *StreamClient) { c.metrics = m }
}

// NewStreamClient creates an idle client for the given ws:// or wss:// URL
func NewStreamClient(url string, opts ...StreamOption) *StreamClient {
	c := &StreamClient{
		url:      url,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		initial:  time.Second,
		max:      30 * time.Second,
		now:       time.Now,
		readLimit: maxFrameBytes,
		pongWait:  defaultPongWait,
		pingTick:  defaultPingTick,
		handlers:  make(map[EventType][]handlerEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.NewMetrics(nil)
	}
	if c.pingTick <= 0 || c.pongWait <= c.pingTick {
		c.pingTick, c.pongWait = defaultPingTick, defaultPongWait
	}
	if c.readLimit <= 0 {
		c.readLimit = maxFrameBytes
	}
	return c
}

// Connect starts the background connection loop. It returns immediately and
// does nothing while the client is already connecting or open.
func (c *StreamClient) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateConnecting || c.state == StateOpen {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.setStateLocked(StateConnecting)

	logrus.Infof("Connecting to health stream at %s", c.url)
	go c.run(ctx, c.done)
}

// DisconnectAll stops the connection loop, closes the socket, waits for the
// loop to exit and drops every handler. Connect may be called again later.
func (c *StreamClient) DisconnectAll() {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel, c.done, c.conn = nil, nil, nil
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	if done != nil {
		<-done
	}

	c.handlersMu.Lock()
	c.handlers = make(map[EventType][]handlerEntry)
	c.handlersMu.Unlock()

	logrus.Info("Health stream closed")
}

// State returns the current connection state
func (c *StreamClient) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the socket is open
func (c *StreamClient) IsConnected() bool {
	return c.State() == StateOpen
}

// On registers handler for events of type t. The returned function removes
// exactly this registration; calling it again is a no-op. Removal takes effect
// at the next lookup, so an event already being delivered to the handler may
// still reach it once.
func (c *StreamClient) On(t EventType, handler Handler) func() {
	c.handlersMu.Lock()
	c.nextHandlerID++
	id := c.nextHandlerID
	c.handlers[t] = append(c.handlers[t], handlerEntry{id: id, fn: handler})
	c.handlersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.handlersMu.Lock()
			defer c.handlersMu.Unlock()
			entries := c.handlers[t]
			for i, entry := range entries {
				if entry.id == id {
					c.handlers[t] = append(entries[:i:i], entries[i+1:]...)
					return
				}
			}
		})
	}
}

func (c *StreamClient) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	backoff := NewBackoff(c.initial, c.max)

	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := backoff.Next()
			logrus.Warnf("Health stream dial failed, retrying in %s: %v", delay, err)
			if !c.sleep(ctx, delay) {
				return
			}
			c.metrics.StreamReconnects.Inc()
			continue
		}

		if !c.attach(ctx, conn) {
			conn.Close()
			return
		}

		backoff.Reset()
		logrus.Info("Health stream connected")
		c.dispatch(ctx, Event{Type: EventConnection, At: c.now()})

		err = c.readLoop(ctx, conn)
		conn.Close()

		if !c.detach(ctx, conn) {
			return
		}

		delay := backoff.Next()
		logrus.Warnf("Health stream dropped, reconnecting in %s: %v", delay, err)
		c.dispatch(ctx, Event{Type: EventDisconnect, Err: err, At: c.now()})

		if !c.sleep(ctx, delay) {
			return
		}
		c.metrics.StreamReconnects.Inc()
	}
}

// attach publishes conn and moves to Open unless teardown already began
func (c *StreamClient) attach(ctx context.Context, conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	c.conn = conn
	c.setStateLocked(StateOpen)
	return true
}

// detach forgets conn and moves back to Connecting unless teardown began
func (c *StreamClient) detach(ctx context.Context, conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	if c.conn == conn {
		c.conn = nil
	}
	c.setStateLocked(StateConnecting)
	return true
}

func (c *StreamClient) readLoop(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(c.readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go c.keepAlive(conn, stop)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
		if messageType != websocket.TextMessage {
			continue
		}

		out, err := decodeFrame(data, c.now().UTC())
		if err != nil {
			c.metrics.StreamDecodeErrors.Inc()
			logrus.Warnf("Dropping health stream frame: %v", err)
			continue
		}
		for _, dropErr := range out.dropped {
			c.metrics.StreamDecodeErrors.Inc()
			logrus.Warnf("Dropping health stream entry: %v", dropErr)
		}

		if out.reply != nil {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, out.reply); err != nil {
				return fmt.Errorf("failed to answer ping: %w", err)
			}
		}

		for _, event := range out.events {
			c.dispatch(ctx, event)
		}
	}
}

// keepAlive pings the monitor so a half-open connection hits the read deadline
func (c *StreamClient) keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.pingTick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				logrus.Debugf("Health stream ping failed: %v", err)
				return
			}
		}
	}
}

// dispatch calls the handlers for event.Type in registration order. Each
// handler is looked up again right before its call so one removed by an
// earlier handler is skipped.
func (c *StreamClient) dispatch(ctx context.Context, event Event) {
	if ctx.Err() != nil {
		return
	}
	c.metrics.StreamEvents.WithLabelValues(string(event.Type)).Inc()

	c.handlersMu.Lock()
	entries := c.handlers[event.Type]
	ids := make([]uint64, len(entries))
	for i, entry := range entries {
		ids[i] = entry.id
	}
	c.handlersMu.Unlock()

	for _, id := range ids {
		fn, ok := c.handler(event.Type, id)
		if !ok {
			continue
		}
		fn(event)
	}
}

func (c *StreamClient) handler(t EventType, id uint64) (Handler, bool) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	for _, entry := range c.handlers[t] {
		if entry.id == id {
			return entry.fn, true
		}
	}
	return nil, false
}

func (c *StreamClient) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *StreamClient) setStateLocked(s State) {
	c.state = s
	c.metrics.StreamState.Set(float64(s))
}
