// Package connection implements the agent control-link Connection Manager.
//
// The Connection Manager:
//   - Owns the single WebSocket to the agent (gorilla/websocket)
//   - Emits connected/disconnected/connectionError on the event bus
//   - Reconnects after unexpected closes with capped exponential backoff
//   - Stops after MaxReconnectAttempts consecutive failures until a manual Reconnect
//   - Hands inbound frames, in order, to a FrameHandler
package connection
