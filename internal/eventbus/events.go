package eventbus

import "github.com/rickgao/agentlink/internal/protocol"

// Event names emitted by the control link.
const (
	EventConnected       = "connected"
	EventDisconnected    = "disconnected"
	EventStatus          = "status"
	EventTargetUpdated   = "targetUpdated"
	EventError           = "error"
	EventConnectionError = "connectionError"
)

// Error types carried by EventError payloads.
const (
	ErrorTypeParse  = "parse_error"
	ErrorTypeServer = "server_error"
)

// Connected is the payload of EventConnected.
type Connected struct {
	Endpoint  string
	SessionID string // Identifies the socket; changes on every connection
}

// Disconnected is the payload of EventDisconnected.
type Disconnected struct {
	WillReconnect bool
	Err           error // nil for a clean, consumer-initiated close
}

// ConnectionError is the payload of EventConnectionError.
type ConnectionError struct {
	Err       error
	Attempt   int  // Reconnect attempt that failed (0 for the initial connect)
	Exhausted bool // No further automatic attempts will be made
}

// Status is the payload of EventStatus. Each handler receives its own copy.
type Status struct {
	Status protocol.Status
}

// CloneData implements Cloner.
func (s Status) CloneData() any {
	return Status{Status: s.Status.Clone()}
}

// TargetUpdated is the payload of EventTargetUpdated.
type TargetUpdated struct {
	Target protocol.Position
}

// Error is the payload of EventError.
type Error struct {
	Type    string // ErrorTypeParse or ErrorTypeServer
	Message string
	Raw     string // Offending frame (parse errors only)
	Err     error  // *protocol.DecodeError or the agent's typed rejection; use errors.As
}
