package agent

import (
	"fmt"
	"log/slog"

	"github.com/rickgao/agentlink/internal/geo"
	"github.com/rickgao/agentlink/internal/protocol"
)

// Link is the part of the connection the dispatcher needs.
type Link interface {
	Send(data []byte) error
	IsConnected() bool
	IsSubscribed() bool
	SetSubscribed(v bool) bool
}

// Dispatcher validates and sends outbound commands. Commands are
// fire-and-forget: success means the frame was written, not that the agent
// acted on it.
type Dispatcher struct {
	link   Link
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher sending on link.
func NewDispatcher(link Link, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{link: link, logger: logger}
}

// ValidateTarget returns a *ValidationError listing every invalid field of
// target, or nil.
func ValidateTarget(target protocol.Position) error {
	v := geo.ValidateCoordinates(target.Lat, target.Lon, target.Depth)
	problems := v.Errors

	if target.Time != "" {
		if err := geo.ValidateTime(target.Time); err != nil {
			problems = append(problems, fmt.Sprintf("Time %q is invalid: %v", target.Time, err))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// SetTarget instructs the agent to move toward target.
func (d *Dispatcher) SetTarget(target protocol.Position) error {
	if err := ValidateTarget(target); err != nil {
		d.logger.Warn("set_target rejected", "error", err)
		return err
	}

	data, err := protocol.EncodeSetTarget(target)
	if err != nil {
		return fmt.Errorf("encode set_target: %w", err)
	}

	if err := d.send(protocol.CmdSetTarget, data); err != nil {
		return err
	}

	d.logger.Info("target sent",
		"lat", target.Lat,
		"lon", target.Lon,
		"depth", target.Depth,
		"time", target.Time,
	)
	return nil
}

// GetStatus requests a single status frame, independent of subscription.
func (d *Dispatcher) GetStatus() error {
	data, err := protocol.EncodeGetStatus()
	if err != nil {
		return fmt.Errorf("encode get_status: %w", err)
	}
	if err := d.send(protocol.CmdGetStatus, data); err != nil {
		return err
	}
	d.logger.Debug("status requested")
	return nil
}

// Subscribe requests continuous status updates for the life of the socket.
// It is a no-op when already subscribed.
func (d *Dispatcher) Subscribe() error {
	if d.link.IsSubscribed() {
		d.logger.Info("already subscribed")
		return nil
	}

	data, err := protocol.EncodeSubscribe()
	if err != nil {
		return fmt.Errorf("encode subscribe: %w", err)
	}
	if err := d.send(protocol.CmdSubscribe, data); err != nil {
		return err
	}

	if !d.link.SetSubscribed(true) {
		// The socket closed between the send and now.
		return ErrNotConnected
	}
	d.logger.Info("subscribed to status updates")
	return nil
}

// Unsubscribe clears the local subscription flag. The protocol has no
// unsubscribe command, so the agent keeps pushing status frames until the
// socket closes.
func (d *Dispatcher) Unsubscribe() {
	if !d.link.IsSubscribed() {
		return
	}
	d.link.SetSubscribed(false)
	d.logger.Info("unsubscribed locally; agent pushes continue until disconnect")
}

func (d *Dispatcher) send(cmd string, data []byte) error {
	if !d.link.IsConnected() {
		d.logger.Warn("command dropped, not connected", "command", cmd)
		return ErrNotConnected
	}
	if err := d.link.Send(data); err != nil {
		d.logger.Warn("command send failed", "command", cmd, "error", err)
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return nil
}
