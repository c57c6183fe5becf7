package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/rickgao/agentlink/internal/connection"
	"github.com/rickgao/agentlink/internal/eventbus"
	"github.com/rickgao/agentlink/internal/geo"
	"github.com/rickgao/agentlink/internal/protocol"
	"github.com/rickgao/agentlink/internal/status"
)

// Config configures a Client.
type Config struct {
	Connection connection.ManagerConfig

	// AutoSubscribe re-issues subscribe on every connected event.
	// Subscriptions do not survive a reconnect on the agent side.
	AutoSubscribe bool
}

// Stats counts inbound traffic.
type Stats struct {
	FramesReceived int64
	StatusFrames   int64
	ParseErrors    int64
	ServerErrors   int64
}

// Client is the control link to one agent. It is the single object the rest
// of the application depends on.
type Client struct {
	cfg    Config
	logger *slog.Logger

	bus      *eventbus.Bus
	conn     *connection.Manager
	dispatch *Dispatcher
	cache    *status.Cache

	framesReceived atomic.Int64
	statusFrames   atomic.Int64
	parseErrors    atomic.Int64
	serverErrors   atomic.Int64
}

// New creates a Client. Nothing is dialed until Connect.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
		bus:    eventbus.New(logger.With("component", "eventbus")),
		cache:  status.NewCache(),
	}
	c.conn = connection.NewManager(cfg.Connection, c.bus, c.handleFrame, logger.With("component", "connection"))
	c.dispatch = NewDispatcher(c.conn, logger.With("component", "dispatcher"))

	if cfg.AutoSubscribe {
		c.bus.On(eventbus.EventConnected, func(eventbus.Event) {
			if err := c.dispatch.Subscribe(); err != nil {
				c.logger.Warn("auto-subscribe failed", "error", err)
			}
		})
	}

	return c
}

// Connect opens the control link. It is a no-op when already connected or
// connecting.
func (c *Client) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx)
}

// Disconnect closes the link and disables automatic reconnection.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
}

// Reconnect drops the current link and connects again immediately with a
// fresh attempt counter.
func (c *Client) Reconnect(ctx context.Context) error {
	return c.conn.Reconnect(ctx)
}

// SetTarget validates target and sends it to the agent.
func (c *Client) SetTarget(target protocol.Position) error {
	return c.dispatch.SetTarget(target)
}

// GetStatus asks the agent for one status frame.
func (c *Client) GetStatus() error {
	return c.dispatch.GetStatus()
}

// Subscribe asks the agent to push status frames continuously.
func (c *Client) Subscribe() error {
	return c.dispatch.Subscribe()
}

// Unsubscribe clears the local subscription flag only.
func (c *Client) Unsubscribe() {
	c.dispatch.Unsubscribe()
}

// On registers a handler for an event name (see eventbus.Event* constants).
func (c *Client) On(event string, h eventbus.Handler) eventbus.Subscription {
	return c.bus.On(event, h)
}

// Off removes a handler registered with On.
func (c *Client) Off(sub eventbus.Subscription) bool {
	return c.bus.Off(sub)
}

// Events exposes the underlying bus, e.g. for channel-based consumers.
func (c *Client) Events() *eventbus.Bus {
	return c.bus
}

// ConnectionStatus returns a read-only snapshot of the link.
func (c *Client) ConnectionStatus() connection.ConnectionStatus {
	return c.conn.Status()
}

// IsConnected reports whether the socket is open.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// IsSubscribed reports whether continuous updates were requested on the
// current socket.
func (c *Client) IsSubscribed() bool {
	return c.conn.IsSubscribed()
}

// ReadyStateString returns the socket ready state as a string.
func (c *Client) ReadyStateString() string {
	return c.conn.ReadyState().String()
}

// LatestStatus returns the last status received, or status.Empty.
func (c *Client) LatestStatus() status.Snapshot {
	return c.cache.Read()
}

// Stats returns inbound traffic counters.
func (c *Client) Stats() Stats {
	return Stats{
		FramesReceived: c.framesReceived.Load(),
		StatusFrames:   c.statusFrames.Load(),
		ParseErrors:    c.parseErrors.Load(),
		ServerErrors:   c.serverErrors.Load(),
	}
}

// ValidateCoordinates checks a coordinate triple.
func (c *Client) ValidateCoordinates(lat, lon, depth float64) geo.Validation {
	return geo.ValidateCoordinates(lat, lon, depth)
}

// FormatCoordinates renders a coordinate triple for display.
func (c *Client) FormatCoordinates(lat, lon, depth float64) string {
	return geo.FormatCoordinates(lat, lon, depth)
}

// CalculateDistance returns the great-circle distance in meters.
func (c *Client) CalculateDistance(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.Distance(lat1, lon1, lat2, lon2)
}

// handleFrame classifies one inbound frame and fans it out.
func (c *Client) handleFrame(msg connection.TimestampedMessage) {
	c.framesReceived.Add(1)

	frame, err := protocol.Decode(msg.Data)
	if err != nil {
		c.parseErrors.Add(1)
		c.logger.Warn("failed to parse frame", "error", err)

		raw := string(msg.Data)
		var decodeErr *protocol.DecodeError
		if errors.As(err, &decodeErr) {
			raw = decodeErr.Raw
		}
		c.bus.Emit(eventbus.EventError, eventbus.Error{
			Type:    eventbus.ErrorTypeParse,
			Message: err.Error(),
			Raw:     raw,
			Err:     err,
		})
		return
	}

	switch frame.Kind {
	case protocol.KindStatus:
		c.statusFrames.Add(1)
		c.cache.Record(*frame.Status)
		c.bus.Emit(eventbus.EventStatus, eventbus.Status{Status: *frame.Status})

	case protocol.KindTargetUpdated:
		c.logger.Info("target updated",
			"lat", frame.Target.Lat,
			"lon", frame.Target.Lon,
			"depth", frame.Target.Depth,
		)
		c.bus.Emit(eventbus.EventTargetUpdated, eventbus.TargetUpdated{Target: *frame.Target})

	case protocol.KindServerError:
		c.serverErrors.Add(1)
		serverErr := &ServerError{Message: frame.Message}
		c.logger.Warn("agent error", "error", serverErr)
		c.bus.Emit(eventbus.EventError, eventbus.Error{
			Type:    eventbus.ErrorTypeServer,
			Message: frame.Message,
			Err:     serverErr,
		})

	case protocol.KindAck:
		c.logger.Debug("command acknowledged")
	}
}
