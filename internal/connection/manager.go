package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/agentlink/internal/eventbus"
)

// FrameHandler receives every inbound text frame, in arrival order, on the
// socket's reader goroutine.
type FrameHandler func(TimestampedMessage)

// Manager owns the only socket to the agent and decides when to (re)connect.
//
// State transitions:
//
//	Idle -> Connecting -> Connected -> Disconnected -> Reconnecting -> Connecting ...
//	any  -> Idle (Disconnect)
//
// After MaxReconnectAttempts consecutive failures the manager stays
// Disconnected until Reconnect is called.
type Manager struct {
	cfg     ManagerConfig
	bus     *eventbus.Bus
	onFrame FrameHandler
	logger  *slog.Logger

	mu              sync.Mutex
	state           State
	client          Client
	sessionID       string
	gen             uint64 // Bumped per dial and on Disconnect; stale callbacks compare against it
	attempts        int
	delay           time.Duration
	shouldReconnect bool
	subscribed      bool
	created         bool // A socket has been created at least once
	closing         bool
	timer           *time.Timer
	dialCancel      context.CancelFunc
}

// NewManager creates a Connection Manager. Lifecycle events are emitted on
// bus; inbound frames are passed to onFrame.
func NewManager(cfg ManagerConfig, bus *eventbus.Bus, onFrame FrameHandler, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if bus == nil {
		bus = eventbus.New(logger)
	}
	if onFrame == nil {
		onFrame = func(TimestampedMessage) {}
	}

	return &Manager{
		cfg:     cfg,
		bus:     bus,
		onFrame: onFrame,
		logger:  logger.With("endpoint", cfg.Endpoint),
		delay:   cfg.ReconnectBaseDelay,
	}
}

// Backoff returns the reconnect delay for the given 1-based attempt:
// min(base * 2^(attempt-1), max).
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Connect opens the socket. It is a no-op while a connection is open or
// being opened. A failed attempt is returned as a *ConnectError, reported as
// a connectionError event, and feeds the reconnect policy.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		state := m.state
		m.mu.Unlock()
		m.logger.Debug("connect ignored", "state", state)
		return nil
	}
	m.stopTimerLocked()
	m.shouldReconnect = true
	gen, dctx, cancel := m.beginDialLocked(ctx)
	attempt := m.attempts
	m.mu.Unlock()

	return m.dial(dctx, cancel, gen, attempt)
}

// Disconnect closes the socket with a normal closure and stops any pending
// reconnect. It is a no-op when idle.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.shouldReconnect = false
	m.stopTimerLocked()
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	prev := m.state
	client := m.client
	m.client = nil
	m.sessionID = ""
	m.subscribed = false
	m.gen++
	m.state = StateIdle
	m.closing = client != nil
	m.mu.Unlock()

	if prev == StateIdle {
		return
	}

	if client != nil {
		if err := client.Close(); err != nil {
			m.logger.Debug("close socket", "error", err)
		}
		m.mu.Lock()
		m.closing = false
		m.mu.Unlock()
	}

	m.logger.Info("disconnected by consumer", "previous_state", prev)

	if prev == StateConnected {
		m.bus.Emit(eventbus.EventDisconnected, eventbus.Disconnected{WillReconnect: false})
	}
}

// Reconnect disconnects, resets the attempt counter and connects again
// immediately, bypassing backoff.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.Disconnect()

	m.mu.Lock()
	m.attempts = 0
	m.delay = m.cfg.ReconnectBaseDelay
	m.mu.Unlock()

	m.logger.Info("manual reconnect")
	return m.Connect(ctx)
}

// Send writes a frame on the open socket.
func (m *Manager) Send(data []byte) error {
	m.mu.Lock()
	client := m.client
	open := m.state == StateConnected
	m.mu.Unlock()

	if !open || client == nil {
		return ErrNotConnected
	}
	return client.Send(data)
}

// IsConnected reports whether the socket is open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected
}

// IsSubscribed reports whether continuous updates were requested on the
// current socket.
func (m *Manager) IsSubscribed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribed
}

// SetSubscribed updates the local subscription flag. Marking subscribed only
// succeeds while connected; it reports whether the flag now equals v.
func (m *Manager) SetSubscribed(v bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v && m.state != StateConnected {
		return false
	}
	m.subscribed = v
	return true
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ReadyState returns the socket's ready state.
func (m *Manager) ReadyState() ReadyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readyStateLocked()
}

func (m *Manager) readyStateLocked() ReadyState {
	switch {
	case m.closing:
		return ReadyStateClosing
	case m.state == StateConnecting:
		return ReadyStateConnecting
	case m.state == StateConnected:
		return ReadyStateOpen
	case !m.created:
		return ReadyStateUninitialized
	default:
		return ReadyStateClosed
	}
}

// Status returns a read-only snapshot of the connection.
func (m *Manager) Status() ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return ConnectionStatus{
		Endpoint:             m.cfg.Endpoint,
		State:                m.state.String(),
		ReadyState:           m.readyStateLocked().String(),
		Connected:            m.state == StateConnected,
		Subscribed:           m.subscribed,
		ReconnectAttempts:    m.attempts,
		MaxReconnectAttempts: m.cfg.MaxReconnectAttempts,
		ReconnectDelay:       m.delay,
		SessionID:            m.sessionID,
	}
}

// beginDialLocked moves to Connecting and returns the dial's generation and
// timeout-bound context. Caller holds m.mu.
func (m *Manager) beginDialLocked(ctx context.Context) (uint64, context.Context, context.CancelFunc) {
	m.gen++
	m.state = StateConnecting
	m.created = true

	dctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	m.dialCancel = cancel
	return m.gen, dctx, cancel
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) clientConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.URL = m.cfg.Endpoint
	cfg.AuthToken = m.cfg.AuthToken
	cfg.PingInterval = m.cfg.PingInterval
	if m.cfg.ConnectTimeout > 0 {
		cfg.HandshakeTimeout = m.cfg.ConnectTimeout
	}
	if m.cfg.PingTimeout > 0 {
		cfg.PingTimeout = m.cfg.PingTimeout
	}
	if m.cfg.WriteTimeout > 0 {
		cfg.WriteTimeout = m.cfg.WriteTimeout
	}
	if m.cfg.MessageBufferSize > 0 {
		cfg.BufferSize = m.cfg.MessageBufferSize
	}
	return cfg
}

// dial opens a new socket for generation gen and applies the outcome.
func (m *Manager) dial(ctx context.Context, cancel context.CancelFunc, gen uint64, attempt int) error {
	defer cancel()

	client := NewClient(m.clientConfig(), m.logger)
	err := client.Connect(ctx)

	m.mu.Lock()
	if gen != m.gen {
		// Disconnect or a newer dial superseded this attempt.
		m.mu.Unlock()
		client.Close()
		if err != nil {
			return &ConnectError{Endpoint: m.cfg.Endpoint, Attempt: attempt, Err: err}
		}
		return ErrSuperseded
	}
	m.dialCancel = nil

	if err != nil {
		m.state = StateDisconnected
		m.mu.Unlock()

		cerr := &ConnectError{Endpoint: m.cfg.Endpoint, Attempt: attempt, Err: err}
		m.logger.Warn("connection failed", "attempt", attempt, "error", err)
		m.bus.Emit(eventbus.EventConnectionError, eventbus.ConnectionError{Err: cerr, Attempt: attempt})

		m.scheduleReconnect()
		return cerr
	}

	sessionID := uuid.NewString()
	m.client = client
	m.sessionID = sessionID
	m.state = StateConnected
	m.attempts = 0
	m.delay = m.cfg.ReconnectBaseDelay
	m.subscribed = false
	m.mu.Unlock()

	m.logger.Info("connected", "session_id", sessionID, "after_attempts", attempt)
	m.bus.Emit(eventbus.EventConnected, eventbus.Connected{Endpoint: m.cfg.Endpoint, SessionID: sessionID})

	go m.readLoop(client, gen)

	return nil
}

// readLoop forwards frames from one socket until it ends.
func (m *Manager) readLoop(client Client, gen uint64) {
	for {
		select {
		case <-client.Done():
			return
		case msg := <-client.Messages():
			m.onFrame(msg)
		case err := <-client.Errors():
			m.drain(client)
			m.handleClose(client, gen, err)
			return
		}
	}
}

// drain delivers frames that arrived before the socket ended.
func (m *Manager) drain(client Client) {
	for {
		select {
		case msg := <-client.Messages():
			m.onFrame(msg)
		default:
			return
		}
	}
}

// handleClose processes an unexpected end of the socket for generation gen.
func (m *Manager) handleClose(client Client, gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateConnected {
		m.mu.Unlock()
		client.Close()
		return
	}
	m.client = nil
	m.sessionID = ""
	m.subscribed = false
	m.state = StateDisconnected
	willReconnect := m.shouldReconnect && m.attempts < m.cfg.MaxReconnectAttempts
	m.mu.Unlock()

	client.Close()

	m.logger.Warn("connection lost", "error", cause, "will_reconnect", willReconnect)
	m.bus.Emit(eventbus.EventDisconnected, eventbus.Disconnected{WillReconnect: willReconnect, Err: cause})

	if willReconnect {
		m.scheduleReconnect()
	}
}

// scheduleReconnect arms the backoff timer, or gives up once attempts are
// exhausted.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if !m.shouldReconnect || m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}

	if m.attempts >= m.cfg.MaxReconnectAttempts {
		attempts := m.attempts
		m.mu.Unlock()

		m.logger.Error("reconnect attempts exhausted", "attempts", attempts)
		m.bus.Emit(eventbus.EventConnectionError, eventbus.ConnectionError{
			Err:       ErrReconnectExhausted,
			Attempt:   attempts,
			Exhausted: true,
		})
		return
	}

	m.attempts++
	m.delay = Backoff(m.attempts, m.cfg.ReconnectBaseDelay, m.cfg.ReconnectMaxDelay)
	m.state = StateReconnecting
	attempt, delay := m.attempts, m.delay
	m.timer = time.AfterFunc(delay, m.reconnectFired)
	m.mu.Unlock()

	m.logger.Info("scheduling reconnect",
		"attempt", attempt,
		"max_attempts", m.cfg.MaxReconnectAttempts,
		"delay", delay,
	)
}

func (m *Manager) reconnectFired() {
	m.mu.Lock()
	if m.state != StateReconnecting || !m.shouldReconnect {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	gen, ctx, cancel := m.beginDialLocked(context.Background())
	attempt := m.attempts
	m.mu.Unlock()

	m.logger.Info("attempting reconnection", "attempt", attempt)
	_ = m.dial(ctx, cancel, gen, attempt)
}
