// Package protocol implements the agent control-link wire format.
//
// Frames are JSON objects, one per WebSocket text message.
//
// Outbound:
//   - {"type":"set_target","lat":..,"lon":..,"depth":..,"time"?:..}
//   - {"type":"get_status"}
//   - {"type":"subscribe"}
//
// Inbound frames come either as events ({"event":"status",...},
// {"event":"target_updated",...}) or as replies ({"ok":true,...},
// {"ok":false,"error":...}). The protocol carries no correlation IDs, so a
// reply cannot be matched to the command that caused it.
package protocol
