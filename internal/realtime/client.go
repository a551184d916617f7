package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"frameworks/lookout/internal/metrics"
	"frameworks/lookout/pkg/api/lookout"
	"frameworks/lookout/pkg/clock"
	"frameworks/lookout/pkg/logging"
)

const (
	maxMessageSize          = 512 * 1024
	defaultReadTimeout      = 60 * time.Second
	defaultPingInterval     = 54 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	controlWriteWait        = 5 * time.Second
)

// State is the connection state of a Client.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateReconnectScheduled
	StateDestroyed
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
	case StateReconnectScheduled:
		return "reconnect_scheduled"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

var stateNames = []string{
	StateIdle.String(),
	StateConnecting.String(),
	StateOpen.String(),
	StateClosed.String(),
	StateReconnectScheduled.String(),
	StateDestroyed.String(),
}

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Config configures a Client.
type Config struct {
	URL     string
	Dialer  Dialer
	Clock   clock.Clock
	Logger  logging.Logger
	Metrics *metrics.Metrics

	BackoffFloor     time.Duration
	BackoffCeiling   time.Duration
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration

	// OnStateChange is called on every transition, with the client locked.
	// It must return quickly and must not call back into the Client.
	OnStateChange func(State)
}

// Client keeps one live websocket session to the realtime endpoint,
// reconnecting with exponential backoff whenever it closes. Decoded messages
// are delivered in wire order; anything that fails to decode is dropped.
type Client struct {
	url              string
	dialer           Dialer
	clock            clock.Clock
	logger           logging.Logger
	metrics          *metrics.Metrics
	handshakeTimeout time.Duration
	pingInterval     time.Duration
	readTimeout      time.Duration
	onStateChange    func(State)

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	started   bool
	destroyed bool
	onMessage func(lookout.Message)
	conn      *websocket.Conn
	backoff   *Backoff
	reconnect clock.Timer
	// attempt identifies the current connection attempt and its session.
	// Timer callbacks and read loops carrying an older value are stale.
	attempt uint64

	// deliverMu is held for the whole of each onMessage call so that Stop
	// can wait out an in-flight delivery.
	deliverMu sync.Mutex
}

func NewClient(cfg Config) *Client {
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.BackoffFloor <= 0 {
		cfg.BackoffFloor = DefaultBackoffFloor
	}
	if cfg.BackoffCeiling <= 0 {
		cfg.BackoffCeiling = DefaultBackoffCeiling
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:              cfg.URL,
		dialer:           cfg.Dialer,
		clock:            cfg.Clock,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		handshakeTimeout: cfg.HandshakeTimeout,
		pingInterval:     cfg.PingInterval,
		readTimeout:      cfg.ReadTimeout,
		onStateChange:    cfg.OnStateChange,
		ctx:              ctx,
		cancel:           cancel,
		backoff:          NewBackoff(cfg.BackoffFloor, cfg.BackoffCeiling),
	}
}

// Start begins connecting and delivers every decoded message to onMessage.
// Only the first call has any effect, and none after Stop.
func (c *Client) Start(onMessage func(lookout.Message)) {
	c.mu.Lock()
	if c.started || c.destroyed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.onMessage = onMessage
	c.attempt++
	attempt := c.attempt
	c.mu.Unlock()

	go c.connect(attempt)
}

// Stop permanently shuts the client down: the pending reconnect is
// cancelled, the live session closed, and no connection attempt or
// onMessage call happens after it returns. onMessage must not call Stop.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	conn := c.conn
	c.conn = nil
	c.cancel()
	c.setStateLocked(StateDestroyed)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(controlWriteWait))
		_ = conn.Close()
	}

	c.deliverMu.Lock()
	c.deliverMu.Unlock() //nolint:staticcheck // barrier for an in-flight delivery

	c.logger.WithField("url", c.url).Info("Realtime client stopped")
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether a session is currently open.
func (c *Client) Connected() bool {
	return c.State() == StateOpen
}

// NextDelay is the delay the next reconnect would wait.
func (c *Client) NextDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backoff.Peek()
}

// URL returns the endpoint the client dials.
func (c *Client) URL() string {
	return c.url
}

func (c *Client) connect(attempt uint64) {
	c.mu.Lock()
	if c.destroyed || attempt != c.attempt {
		c.mu.Unlock()
		return
	}
	c.reconnect = nil
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(c.ctx, c.handshakeTimeout)
	conn, resp, err := c.dialer.DialContext(dialCtx, c.url, nil)
	cancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.logger.WithError(err).WithField("url", c.url).Debug("Realtime dial failed")
		c.scheduleReconnect(attempt)
		return
	}

	c.mu.Lock()
	if c.destroyed || attempt != c.attempt {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.backoff.Reset()
	c.setStateLocked(StateOpen)
	c.mu.Unlock()

	c.logger.WithField("url", c.url).Info("Realtime connection open")

	done := make(chan struct{})
	go c.pingLoop(conn, done)
	go c.readLoop(conn, attempt, done)
}

// scheduleReconnect arms the single reconnect timer for the session or
// attempt that just ended.
func (c *Client) scheduleReconnect(attempt uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed || attempt != c.attempt {
		return
	}

	c.conn = nil
	c.setStateLocked(StateClosed)

	if c.reconnect != nil {
		c.reconnect.Stop()
	}
	delay := c.backoff.Next()
	c.attempt++
	next := c.attempt
	c.reconnect = c.clock.AfterFunc(delay, func() { c.connect(next) })
	c.setStateLocked(StateReconnectScheduled)
	c.metrics.Reconnect()

	c.logger.WithFields(logging.Fields{
		"url":   c.url,
		"delay": delay.String(),
	}).Info("Realtime reconnect scheduled")
}

func (c *Client) readLoop(conn *websocket.Conn, attempt uint64, done chan struct{}) {
	defer func() {
		close(done)
		_ = conn.Close()
		c.scheduleReconnect(attempt)
	}()

	conn.SetReadLimit(maxMessageSize)
	// Socket deadlines are absolute wall-clock times, so they come from
	// time.Now rather than c.clock.
	_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && c.ctx.Err() == nil {
				c.logger.WithError(err).WithField("url", c.url).Warn("Realtime connection lost")
			}
			return
		}

		msg, err := lookout.Decode(data)
		if err != nil {
			continue
		}
		c.deliver(attempt, msg)
	}
}

func (c *Client) deliver(attempt uint64, msg lookout.Message) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	live := !c.destroyed && attempt == c.attempt
	handler := c.onMessage
	c.mu.Unlock()

	if !live || handler == nil {
		return
	}
	c.metrics.Message(msg.MessageType())
	handler(msg)
}

// pingLoop keeps the session alive. A failed ping closes the connection,
// which ends readLoop and takes the normal reconnect path.
func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.metrics.State(s.String(), stateNames)
	if c.onStateChange != nil {
		c.onStateChange(s)
	}
}
