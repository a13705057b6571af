// Package channel owns the single logical connection to the telemetry
// backend's live feed. It reconnects forever with a fixed delay, no backoff
// and no retry cap, since the server is assumed to sit on a stable local
// network. The pending reconnection timer dies with Close.
package channel

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/iotdash/dashboard-engine/internal/domain"
	"github.com/iotdash/dashboard-engine/internal/metrics"
)

// DefaultReconnectDelay matches the feed contract: one attempt every 3 s.
const DefaultReconnectDelay = 3 * time.Second

// Handler receives every successfully decoded inbound message along with the
// raw frame (for re-broadcast). Malformed frames are logged and dropped
// before ever reaching it.
type Handler func(env *domain.Envelope, raw []byte)

// StateFunc observes connected-flag transitions: true exactly once per
// successful handshake, false on every close.
type StateFunc func(connected bool)

type Channel struct {
	url     string
	delay   time.Duration
	handler Handler
	onState StateFunc
	log     zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	timer     *time.Timer
	gen       uint64
	closed    bool
	connected bool
	last      *domain.Envelope
}

func New(url string, delay time.Duration, log zerolog.Logger, handler Handler, onState StateFunc) *Channel {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &Channel{
		url:     url,
		delay:   delay,
		handler: handler,
		onState: onState,
		log:     log.With().Str("component", "channel").Str("url", url).Logger(),
	}
}

// Open establishes the connection, tearing down any previous one first.
// Dialing happens off the caller's goroutine; failures feed the same
// reconnection loop as a mid-session drop. Each Open starts a new connection
// generation; the old pump and any pending reconnect timer become stale and
// may not dial again, so there is never more than one live connection.
func (c *Channel) Open() {
	c.mu.Lock()
	c.gen++
	g := c.gen
	conn := c.conn
	c.conn = nil
	was := c.connected
	c.connected = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.closed = false
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if was {
		metrics.FeedConnected.Set(0)
		c.log.Info().Msg("disconnected")
		if c.onState != nil {
			c.onState(false)
		}
	}
	go c.dial(g)
}

func (c *Channel) dial(g uint64) {
	c.mu.Lock()
	stale := c.closed || g != c.gen
	c.mu.Unlock()
	if stale {
		return
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("dial failed")
		c.scheduleReconnect(g)
		return
	}

	c.mu.Lock()
	if c.closed || g != c.gen {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	metrics.FeedConnected.Set(1)
	c.log.Info().Msg("connected")
	if c.onState != nil {
		c.onState(true)
	}
	c.readPump(conn, g)
}

func (c *Channel) readPump(conn *websocket.Conn, g uint64) {
	defer conn.Close()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("read error")
			}
			break
		}
		env, err := domain.DecodeEnvelope(raw)
		if err != nil {
			metrics.DecodeFailures.Inc()
			c.log.Warn().Err(err).Msg("dropping malformed message")
			continue
		}
		metrics.MessagesReceived.WithLabelValues(env.Type).Inc()
		c.mu.Lock()
		c.last = env
		c.mu.Unlock()
		if c.handler != nil {
			c.handler(env, raw)
		}
	}
	c.markDisconnected(g)
	c.scheduleReconnect(g)
}

func (c *Channel) markDisconnected(g uint64) {
	c.mu.Lock()
	if g != c.gen {
		c.mu.Unlock()
		return
	}
	was := c.connected
	c.connected = false
	c.conn = nil
	c.mu.Unlock()

	if was {
		metrics.FeedConnected.Set(0)
		c.log.Info().Msg("disconnected")
		if c.onState != nil {
			c.onState(false)
		}
	}
}

func (c *Channel) scheduleReconnect(g uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || g != c.gen {
		return
	}
	metrics.Reconnects.Inc()
	c.timer = time.AfterFunc(c.delay, func() { c.dial(g) })
}

// Connected reports the current connection flag.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Last returns the most recently decoded message, nil before the first.
func (c *Channel) Last() *domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Close tears down the active connection and cancels any pending
// reconnection timer. The channel stays closed until the next Open.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
