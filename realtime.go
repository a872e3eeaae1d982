package chatterhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures the real-time connection.
type RealtimeConfig struct {
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
	Logger               zerolog.Logger
}

func (c *RealtimeConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
}

// ConnState represents the connection state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
	StateFailed       ConnState = "failed"
)

// Sender is the narrow send surface the session and the sync coordinator
// depend on.
type Sender interface {
	Send(ctx context.Context, event string, payload any) error
	State() ConnState
}

// ============================================================================
// Transport
// ============================================================================

// serverClosedError marks a close frame received from the server. The
// connection manager treats it as terminal and does not retry.
type serverClosedError struct {
	Code   int
	Reason string
}

func (e *serverClosedError) Error() string {
	return fmt.Sprintf("server closed connection (%d): %s", e.Code, e.Reason)
}

type transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		if status := websocket.CloseStatus(err); status != -1 {
			return nil, &serverClosedError{Code: int(status), Reason: err.Error()}
		}
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Ping(ctx context.Context) error {
	return t.conn.Ping(ctx)
}

func (t *wsTransport) Close(code websocket.StatusCode, reason string) error {
	return t.conn.Close(code, reason)
}

// ============================================================================
// Event Dispatcher
// ============================================================================

// EventHandler is the callback type for server-pushed events.
type EventHandler func(payload json.RawMessage)

// dispatcher fans events out to registered handlers. Handlers run
// synchronously on the read-loop goroutine, in registration order; a
// panicking handler does not take the loop down.
type dispatcher struct {
	mu             sync.RWMutex
	handlers       map[string][]EventHandler
	onConnect      []func()
	onDisconnect   []func(reason string, serverInitiated bool)
	onReconnecting []func(attempt int, delay time.Duration)
	onFailed       []func()
}

func newDispatcher() *dispatcher {
	return &dispatcher{handlers: make(map[string][]EventHandler)}
}

func (d *dispatcher) dispatch(env Envelope) {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.handlers[env.Type]...)
	d.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { _ = recover() }()
			h(env.Payload)
		}()
	}
}

func (d *dispatcher) emitConnect() {
	d.mu.RLock()
	handlers := append([]func(){}, d.onConnect...)
	d.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { _ = recover() }()
			h()
		}()
	}
}

func (d *dispatcher) emitDisconnect(reason string, serverInitiated bool) {
	d.mu.RLock()
	handlers := append([]func(string, bool){}, d.onDisconnect...)
	d.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { _ = recover() }()
			h(reason, serverInitiated)
		}()
	}
}

func (d *dispatcher) emitReconnecting(attempt int, delay time.Duration) {
	d.mu.RLock()
	handlers := append([]func(int, time.Duration){}, d.onReconnecting...)
	d.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { _ = recover() }()
			h(attempt, delay)
		}()
	}
}

func (d *dispatcher) emitFailed() {
	d.mu.RLock()
	handlers := append([]func(){}, d.onFailed...)
	d.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { _ = recover() }()
			h()
		}()
	}
}

// ============================================================================
// Reconnector
// ============================================================================

// reconnector produces the backoff schedule min(base*2^attempt, max).
// For the defaults that is 1s, 2s, 4s, 8s, 16s, then 30s capped.
type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
}

func newReconnector(config *RealtimeConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts < 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) nextDelay() time.Duration {
	delay := r.baseDelay << uint(r.attempt)
	if delay > r.maxDelay || delay <= 0 {
		delay = r.maxDelay
	}
	r.attempt++
	return delay
}

func (r *reconnector) reset() {
	r.attempt = 0
}

// ============================================================================
// Realtime
// ============================================================================

// Realtime owns the single logical connection to the chat server. It hides
// transport-level reconnection behind a small event/command surface: Send
// fails synchronously with ErrNotConnected while offline and never queues
// on its own; queuing is the caller's responsibility.
type Realtime struct {
	url  string
	cfg  *RealtimeConfig
	log  zerolog.Logger
	dial func(ctx context.Context) (transport, error)

	mu               sync.Mutex
	conn             transport
	state            ConnState
	intentionalClose bool
	reconnectTimer   *time.Timer
	cancelFn         context.CancelFunc

	recon *reconnector
	disp  *dispatcher
}

// NewRealtime creates a connection manager for the given HTTP base URL.
// Call Connect to establish the connection.
func NewRealtime(baseURL string, config *RealtimeConfig) *Realtime {
	cfg := RealtimeConfig{}
	if config != nil {
		cfg = *config
	}
	cfg.defaults()

	wsURL := strings.Replace(baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.TrimRight(wsURL, "/") + "/ws"

	rt := &Realtime{
		url:   wsURL,
		cfg:   &cfg,
		log:   cfg.Logger,
		state: StateDisconnected,
		recon: newReconnector(&cfg),
		disp:  newDispatcher(),
	}
	rt.dial = func(ctx context.Context) (transport, error) {
		conn, _, err := websocket.Dial(ctx, rt.url, nil)
		if err != nil {
			return nil, err
		}
		return &wsTransport{conn: conn}, nil
	}
	return rt
}

// On registers a handler for a named server-pushed event. Multiple handlers
// per event are allowed; they are invoked in registration order.
func (rt *Realtime) On(eventType string, h EventHandler) {
	rt.disp.mu.Lock()
	rt.disp.handlers[eventType] = append(rt.disp.handlers[eventType], h)
	rt.disp.mu.Unlock()
}

// OnConnect registers a handler for the connected meta-event.
func (rt *Realtime) OnConnect(h func()) {
	rt.disp.mu.Lock()
	rt.disp.onConnect = append(rt.disp.onConnect, h)
	rt.disp.mu.Unlock()
}

// OnDisconnect registers a handler for the disconnected meta-event.
// serverInitiated is true when the server sent the close frame; no
// automatic reconnect happens in that case.
func (rt *Realtime) OnDisconnect(h func(reason string, serverInitiated bool)) {
	rt.disp.mu.Lock()
	rt.disp.onDisconnect = append(rt.disp.onDisconnect, h)
	rt.disp.mu.Unlock()
}

// OnReconnecting registers a handler fired before each reconnect attempt.
func (rt *Realtime) OnReconnecting(h func(attempt int, delay time.Duration)) {
	rt.disp.mu.Lock()
	rt.disp.onReconnecting = append(rt.disp.onReconnecting, h)
	rt.disp.mu.Unlock()
}

// OnFailed registers a handler fired once the reconnect budget is
// exhausted. The connection stays in StateFailed until Connect is called
// again explicitly.
func (rt *Realtime) OnFailed(h func()) {
	rt.disp.mu.Lock()
	rt.disp.onFailed = append(rt.disp.onFailed, h)
	rt.disp.mu.Unlock()
}

// State returns the current connection state.
func (rt *Realtime) State() ConnState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// Connect establishes the connection. The first server frame must be the
// connection_established event; anything else fails the attempt.
func (rt *Realtime) Connect(ctx context.Context) error {
	rt.mu.Lock()
	if rt.state == StateConnected || rt.state == StateConnecting {
		rt.mu.Unlock()
		return nil
	}
	if rt.state == StateFailed {
		// Manual reconnect after exhaustion starts a fresh budget.
		rt.recon.reset()
	}
	rt.state = StateConnecting
	rt.intentionalClose = false
	rt.mu.Unlock()

	conn, err := rt.dial(ctx)
	if err != nil {
		rt.log.Warn().Err(err).Msg("dial failed")
		rt.mu.Lock()
		rt.state = StateDisconnected
		rt.mu.Unlock()
		if rt.cfg.AutoReconnect {
			rt.scheduleReconnect()
		}
		return fmt.Errorf("websocket dial: %w", err)
	}

	data, err := conn.Read(ctx)
	if err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		rt.mu.Lock()
		rt.state = StateDisconnected
		rt.mu.Unlock()
		if rt.cfg.AutoReconnect {
			rt.scheduleReconnect()
		}
		return fmt.Errorf("read handshake: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != EventConnectionEstablished {
		conn.Close(websocket.StatusNormalClosure, "")
		rt.mu.Lock()
		rt.state = StateDisconnected
		rt.mu.Unlock()
		return fmt.Errorf("expected %q, got %q", EventConnectionEstablished, env.Type)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	rt.mu.Lock()
	if rt.intentionalClose {
		// Disconnect won the race while the handshake was in flight.
		rt.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
		return nil
	}
	rt.conn = conn
	rt.state = StateConnected
	rt.cancelFn = cancel
	rt.recon.reset()
	rt.mu.Unlock()

	rt.log.Info().Str("url", rt.url).Msg("connected")
	rt.disp.dispatch(env)
	rt.disp.emitConnect()

	go rt.readLoop(connCtx, conn)
	go rt.heartbeatLoop(connCtx, conn)

	return nil
}

// Disconnect closes the connection and cancels any pending reconnect
// timer. It is the one transition allowed from every state.
func (rt *Realtime) Disconnect() error {
	rt.mu.Lock()
	rt.intentionalClose = true
	if rt.reconnectTimer != nil {
		rt.reconnectTimer.Stop()
		rt.reconnectTimer = nil
	}
	if rt.cancelFn != nil {
		rt.cancelFn()
		rt.cancelFn = nil
	}
	conn := rt.conn
	rt.conn = nil
	rt.state = StateDisconnected
	rt.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	rt.disp.emitDisconnect("client disconnect", false)
	return nil
}

// Send marshals and forwards a command. It returns immediately: if the
// connection is not in StateConnected it fails synchronously with
// ErrNotConnected and the message is never buffered here.
func (rt *Realtime) Send(ctx context.Context, event string, payload any) error {
	rt.mu.Lock()
	conn, state := rt.conn, rt.state
	rt.mu.Unlock()

	if state == StateFailed {
		return ErrMaxAttemptsExceeded
	}
	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(&Command{Type: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	return conn.Write(ctx, data)
}

func (rt *Realtime) readLoop(ctx context.Context, conn transport) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			rt.handleReadError(err)
			return
		}

		var env Envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		rt.disp.dispatch(env)
	}
}

func (rt *Realtime) handleReadError(err error) {
	rt.mu.Lock()
	if rt.intentionalClose {
		rt.mu.Unlock()
		return
	}
	rt.state = StateDisconnected
	rt.conn = nil
	if rt.cancelFn != nil {
		rt.cancelFn()
		rt.cancelFn = nil
	}
	rt.mu.Unlock()

	var closed *serverClosedError
	if errors.As(err, &closed) {
		// Server-initiated close: terminal, a refresh is required.
		rt.log.Warn().Int("code", closed.Code).Msg("disconnected by server")
		rt.disp.emitDisconnect(closed.Reason, true)
		return
	}

	rt.log.Warn().Err(err).Msg("connection lost")
	rt.disp.emitDisconnect(err.Error(), false)

	if rt.cfg.AutoReconnect {
		rt.scheduleReconnect()
	}
}

func (rt *Realtime) heartbeatLoop(ctx context.Context, conn transport) {
	ticker := time.NewTicker(rt.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rt.State() != StateConnected {
				return
			}
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				// Force close; the read loop picks up the error.
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}

// scheduleReconnect arms the backoff timer for the next attempt. Arming
// cancels any prior pending timer so the same logical timer never fires
// twice.
func (rt *Realtime) scheduleReconnect() {
	rt.mu.Lock()
	if rt.intentionalClose {
		rt.mu.Unlock()
		return
	}
	if !rt.recon.shouldReconnect() {
		rt.state = StateFailed
		rt.mu.Unlock()
		rt.log.Error().Msg("reconnect attempts exhausted")
		rt.disp.emitFailed()
		return
	}

	delay := rt.recon.nextDelay()
	attempt := rt.recon.attempt
	rt.state = StateReconnecting
	if rt.reconnectTimer != nil {
		rt.reconnectTimer.Stop()
	}
	rt.reconnectTimer = time.AfterFunc(delay, func() {
		rt.mu.Lock()
		skip := rt.intentionalClose
		if rt.state == StateReconnecting {
			// Allow Connect's entry guard to pass.
			rt.state = StateDisconnected
		}
		rt.mu.Unlock()
		if skip {
			return
		}
		// Connect schedules the next attempt itself when this one fails.
		_ = rt.Connect(context.Background())
	})
	rt.mu.Unlock()

	rt.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting")
	rt.disp.emitReconnecting(attempt, delay)
}
