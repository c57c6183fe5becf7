package protocol

import "encoding/json"

// Command types sent to the agent.
const (
	CmdSetTarget = "set_target"
	CmdGetStatus = "get_status"
	CmdSubscribe = "subscribe"
)

// Event names used by the agent on inbound frames.
const (
	EventStatus        = "status"
	EventTargetUpdated = "target_updated"
)

// Position is a geographic point with depth. Time is an optional ISO-8601
// timestamp; empty means unset.
type Position struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Depth float64 `json:"depth"`
	Time  string  `json:"time,omitempty"`
}

// RunState is the agent's simulation run state ("holoocean" on the wire).
type RunState struct {
	Running   bool    `json:"running"`
	TickCount int64   `json:"tick_count"`
	LastError *string `json:"last_error"` // nil when the agent reports no error
}

// Status is the payload of a status frame.
type Status struct {
	Target    *Position `json:"target"`
	Current   *Position `json:"current"`
	HoloOcean RunState  `json:"holoocean"`
	UpdatedAt string    `json:"updated_at"`
}

// Clone returns a deep copy of s that shares no pointers with it.
func (s Status) Clone() Status {
	out := s
	if s.Target != nil {
		t := *s.Target
		out.Target = &t
	}
	if s.Current != nil {
		c := *s.Current
		out.Current = &c
	}
	if s.HoloOcean.LastError != nil {
		e := *s.HoloOcean.LastError
		out.HoloOcean.LastError = &e
	}
	return out
}

// Kind classifies an inbound frame.
type Kind int

const (
	KindUnknown Kind = iota
	KindStatus
	KindTargetUpdated
	KindServerError
	KindAck
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindTargetUpdated:
		return "target_updated"
	case KindServerError:
		return "server_error"
	case KindAck:
		return "ack"
	default:
		return "unknown"
	}
}

// Frame is a classified inbound frame. Only the field matching Kind is set.
type Frame struct {
	Kind    Kind
	Status  *Status
	Target  *Position
	Message string // Server error message (KindServerError)
}

// Wire types for JSON encoding

// commandWire is the wire format for payload-less commands.
type commandWire struct {
	Type string `json:"type"`
}

// setTargetWire is the wire format for set_target.
type setTargetWire struct {
	Type  string  `json:"type"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Depth float64 `json:"depth"`
	Time  string  `json:"time,omitempty"`
}

// frameEnvelope is used for classification of inbound frames.
type frameEnvelope struct {
	Event  json.RawMessage `json:"event"`
	OK     *bool           `json:"ok"`
	Error  json.RawMessage `json:"error"`
	Status json.RawMessage `json:"status"`
	Target json.RawMessage `json:"target"`
}
