package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gigsmartpay/client/internal/backoff"
	"github.com/gigsmartpay/client/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MB

	// A connection attempt that has not reached Open within this window is
	// treated as a failure and feeds the backoff path.
	connectTimeout = 30 * time.Second
)

// State is the connection automaton state. It is owned exclusively by the
// Client; transitions are the only way it changes.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnectWaiting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnectWaiting:
		return "reconnect_waiting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handler receives connection lifecycle callbacks and inbound push events.
// OnDisconnected fires once per transport loss, whether an established
// transport closed or a connection attempt never reached Open.
type Handler interface {
	OnPushEvent(ctx context.Context, event *model.PushEvent)
	OnConnected()
	OnDisconnected()
	OnGiveUp()
}

// Client owns exactly one WebSocket transport for the active identity. It
// reconnects with capped exponential backoff on unintentional closes and
// stops permanently after backoff.MaxAttempts consecutive failures. Only an
// identity change (a new Open call) restarts a Failed client.
type Client struct {
	apiBase   string
	handler   Handler
	logger    *zap.Logger
	parentCtx context.Context
	dialer    *websocket.Dialer

	// Overridable in tests.
	delay       func(attempt int) time.Duration
	maxAttempts int

	mu            sync.Mutex
	state         State
	identity      model.Identity
	conn          *websocket.Conn
	connCancel    context.CancelFunc
	stopReconnect context.CancelFunc // cancels the pending reconnect wait
	attempts      int
	intentional   bool // set before a deliberate close so the close handler skips reconnect
}

// NewClient creates a client dialing ws(s)://{apiBase host}/ws/{address}.
// The provided ctx controls the client lifetime; cancelling it stops all
// reconnection.
func NewClient(ctx context.Context, apiBase string, handler Handler, logger *zap.Logger) *Client {
	return &Client{
		apiBase:     apiBase,
		handler:     handler,
		logger:      logger.Named("ws"),
		parentCtx:   ctx,
		dialer:      &websocket.Dialer{HandshakeTimeout: connectTimeout},
		delay:       backoff.Delay,
		maxAttempts: backoff.MaxAttempts,
	}
}

// State returns the current automaton state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns the identity the transport is keyed by.
func (c *Client) Identity() model.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Open switches the client to the given identity and connects. Any prior
// transport is torn down intentionally first, so its close handler cannot
// schedule a reconnect for a connection nobody wants anymore. A dial
// failure starts the backoff path; the returned error is informational.
func (c *Client) Open(identity model.Identity) error {
	if !identity.Valid() {
		return fmt.Errorf("invalid identity: role=%q address=%q", identity.Role, identity.Address)
	}

	c.mu.Lock()
	c.teardownLocked()
	c.identity = identity
	c.attempts = 0
	c.intentional = false
	c.state = StateConnecting
	c.mu.Unlock()

	c.logger.Info("opening channel",
		zap.String("role", string(identity.Role)), zap.String("address", identity.Address))

	if err := c.dial(); err != nil {
		// A failed attempt feeds the same path as a network-initiated
		// close, including the handler callback.
		c.handler.OnDisconnected()
		c.scheduleReconnect()
		return err
	}
	return nil
}

// Close tears down the transport intentionally. No reconnect is attempted;
// the automaton returns to Idle.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	return nil
}

// teardownLocked is the single atomic teardown request: flag first, then
// close, then clear the pending reconnect wait. Callers hold c.mu.
func (c *Client) teardownLocked() {
	c.intentional = true
	if c.stopReconnect != nil {
		c.stopReconnect()
		c.stopReconnect = nil
	}
	if c.connCancel != nil {
		c.connCancel()
		c.connCancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateIdle
}

func (c *Client) dial() error {
	c.mu.Lock()
	if c.intentional || c.parentCtx.Err() != nil {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	identity := c.identity
	c.mu.Unlock()

	endpoint, err := endpointURL(c.apiBase, identity.Address)
	if err != nil {
		return fmt.Errorf("bad endpoint: %w", err)
	}

	conn, _, err := c.dialer.Dial(endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	connCtx, connCancel := context.WithCancel(c.parentCtx)

	c.mu.Lock()
	if c.intentional {
		// Torn down while the handshake was in flight; this transport is
		// unwanted.
		c.mu.Unlock()
		connCancel()
		conn.Close()
		return nil
	}
	if c.stopReconnect != nil {
		c.stopReconnect()
		c.stopReconnect = nil
	}
	c.conn = conn
	c.connCancel = connCancel
	c.state = StateOpen
	c.attempts = 0
	c.mu.Unlock()

	c.logger.Info("channel open", zap.String("address", identity.Address))
	c.handler.OnConnected()

	// Each transport gets its own disconnect handler, fired at most once.
	var once sync.Once
	onDisconnect := func() {
		once.Do(func() {
			connCancel()
			conn.Close()

			c.mu.Lock()
			isCurrent := c.conn == conn
			if isCurrent {
				c.conn = nil
				c.connCancel = nil
			}
			unintentional := isCurrent && !c.intentional && c.parentCtx.Err() == nil
			if isCurrent && !unintentional {
				// Torn down on purpose; back to rest.
				c.state = StateIdle
			}
			c.mu.Unlock()

			if !isCurrent {
				return
			}
			c.logger.Warn("channel closed", zap.Bool("unintentional", unintentional))
			c.handler.OnDisconnected()
			if unintentional {
				c.scheduleReconnect()
			}
		})
	}

	go c.readPump(connCtx, conn, onDisconnect)
	go c.pingPump(connCtx, conn, onDisconnect)

	return nil
}

// scheduleReconnect advances the attempt counter and either arms a single
// backoff timer or, once the counter reaches the limit, enters Failed and
// gives up for good.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.intentional || c.parentCtx.Err() != nil {
		c.mu.Unlock()
		return
	}

	c.attempts++
	attempt := c.attempts
	if attempt >= c.maxAttempts {
		c.state = StateFailed
		if c.stopReconnect != nil {
			c.stopReconnect()
			c.stopReconnect = nil
		}
		c.mu.Unlock()
		c.logger.Error("reconnect attempts exhausted", zap.Int("attempts", attempt))
		c.handler.OnGiveUp()
		return
	}

	c.state = StateReconnectWaiting
	// Clear any previous timer before rescheduling; a single reference owns
	// the wait.
	if c.stopReconnect != nil {
		c.stopReconnect()
	}
	reconnectCtx, cancel := context.WithCancel(c.parentCtx)
	c.stopReconnect = cancel
	c.mu.Unlock()

	wait := c.delay(attempt)
	c.logger.Info("reconnecting", zap.Duration("wait", wait), zap.Int("attempt", attempt))

	go func() {
		select {
		case <-time.After(wait):
		case <-reconnectCtx.Done():
			return
		}
		if err := c.dial(); err != nil {
			c.logger.Warn("reconnect failed", zap.Error(err))
			c.handler.OnDisconnected()
			c.scheduleReconnect()
		}
	}()
}

func (c *Client) readPump(ctx context.Context, conn *websocket.Conn, onDisconnect func()) {
	defer onDisconnect()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("read error", zap.Error(err))
			}
			return
		}
		c.handleMessage(ctx, message)
	}
}

func (c *Client) pingPump(ctx context.Context, conn *websocket.Conn, onDisconnect func()) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		onDisconnect()
	}()

	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleMessage decodes one inbound frame. Malformed JSON is logged and
// dropped; it never affects the automaton.
func (c *Client) handleMessage(ctx context.Context, data []byte) {
	var event model.PushEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.logger.Warn("invalid message", zap.Error(err))
		return
	}
	if event.Type == "" {
		c.logger.Warn("message without type", zap.ByteString("data", data))
		return
	}
	c.handler.OnPushEvent(ctx, &event)
}

// endpointURL maps the REST base URL to the push endpoint for an address:
// http becomes ws, https becomes wss.
func endpointURL(apiBase, address string) (string, error) {
	u, err := url.Parse(apiBase)
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
	u.Path = path.Join(u.Path, "ws", address)
	return u.String(), nil
}
