// Package agent is the consumer-facing control link to a simulated
// underwater vehicle.
//
// A Client composes the connection manager, command dispatcher, status cache
// and event bus. Construct one per agent endpoint and inject it where needed:
//
//	c := agent.New(agent.Config{Connection: cfg, AutoSubscribe: true}, logger)
//	c.On(eventbus.EventStatus, func(ev eventbus.Event) { ... })
//	if err := c.Connect(ctx); err != nil { ... }
//	defer c.Disconnect()
//
// The wire protocol has no request/response correlation. Commands return once
// the frame is written; results arrive later as status, targetUpdated or
// error events.
package agent
