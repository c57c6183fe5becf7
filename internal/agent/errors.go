package agent

import (
	"strings"

	"github.com/rickgao/agentlink/internal/connection"
)

// ErrNotConnected is returned by commands issued while the socket is not open.
var ErrNotConnected = connection.ErrNotConnected

// ValidationError lists every problem found in a command's arguments. No
// frame is sent when it is returned.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid target: " + strings.Join(e.Problems, "; ")
}

// ServerError is the agent's rejection of a command ({"ok":false}). It is
// delivered asynchronously on the error event; nothing is retried.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "agent rejected command: " + e.Message
}
