package connection

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrStaleConnection    = errors.New("connection stale (no ping)")
	ErrAlreadyClosed      = errors.New("already closed")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted; manual reconnect required")
	ErrSuperseded         = errors.New("connection attempt superseded")
)

// ConnectError reports a failed attempt to open the socket.
type ConnectError struct {
	Endpoint string
	Attempt  int // 0 for the initial connect, 1..max for reconnects
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s (attempt %d): %v", e.Endpoint, e.Attempt, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://agent.example.org/ws)
	AuthToken        string        // Sent as "Authorization: Bearer <token>" when set
	HandshakeTimeout time.Duration // Upper bound on the opening handshake
	PingInterval     time.Duration // Keepalive ping interval (0 disables keepalive)
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Endpoint             string        // Agent WebSocket URL
	AuthToken            string        // Optional bearer token
	ConnectTimeout       time.Duration // Abort a connection attempt after this long
	WriteTimeout         time.Duration // Write deadline for commands
	PingInterval         time.Duration // Keepalive ping interval (0 disables)
	PingTimeout          time.Duration // Stale connection threshold
	ReconnectBaseDelay   time.Duration // First reconnect delay
	ReconnectMaxDelay    time.Duration // Backoff ceiling
	MaxReconnectAttempts int           // Consecutive failures before giving up (0 disables reconnect)
	MessageBufferSize    int           // Inbound frame buffer per socket
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ConnectTimeout:       10 * time.Second,
		WriteTimeout:         5 * time.Second,
		PingInterval:         30 * time.Second,
		PingTimeout:          90 * time.Second,
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 10,
		MessageBufferSize:    256,
	}
}

// State is the connection lifecycle state.
type State int

const (
	StateIdle         State = iota // Never connected, or disconnected by the consumer
	StateConnecting                // Dial in progress
	StateConnected                 // Socket open
	StateReconnecting              // Reconnect timer pending
	StateDisconnected              // Closed; waiting for a timer that will not come (exhausted) or a manual reconnect
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ReadyState mirrors the WebSocket readyState values.
type ReadyState int

const (
	ReadyStateUninitialized ReadyState = iota // No socket has been created yet
	ReadyStateConnecting
	ReadyStateOpen
	ReadyStateClosing
	ReadyStateClosed
)

func (r ReadyState) String() string {
	switch r {
	case ReadyStateConnecting:
		return "CONNECTING"
	case ReadyStateOpen:
		return "OPEN"
	case ReadyStateClosing:
		return "CLOSING"
	case ReadyStateClosed:
		return "CLOSED"
	default:
		return "NOT_INITIALIZED"
	}
}

// ConnectionStatus is a read-only snapshot of the connection.
type ConnectionStatus struct {
	Endpoint             string        `json:"endpoint"`
	State                string        `json:"state"`
	ReadyState           string        `json:"ready_state"`
	Connected            bool          `json:"connected"`
	Subscribed           bool          `json:"subscribed"`
	ReconnectAttempts    int           `json:"reconnect_attempts"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `json:"reconnect_delay"`
	SessionID            string        `json:"session_id,omitempty"`
}
