package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeError reports an inbound frame that could not be classified.
// The connection is not affected; callers surface it as a parse_error event.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode frame: %v", e.Err)
	}
	return "decode frame: unrecognized shape"
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var errMissingPayload = errors.New("missing payload")

// Decode parses a raw text frame and classifies it.
//
// Classification order:
//  1. event == "target_updated"
//  2. event == "status"
//  3. ok == true: target, then status, else a bare acknowledgement;
//     ok == false: server error
//  4. anything else is a *DecodeError
func Decode(raw []byte) (Frame, error) {
	var env frameEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Frame{}, &DecodeError{Raw: string(raw), Err: err}
	}

	switch eventName(env.Event) {
	case EventTargetUpdated:
		return decodeTarget(raw, env.Target)
	case EventStatus:
		return decodeStatus(raw, env.Status)
	}

	if env.OK == nil {
		return Frame{}, &DecodeError{Raw: string(raw)}
	}

	if !*env.OK {
		return Frame{Kind: KindServerError, Message: errorText(env.Error)}, nil
	}

	switch {
	case present(env.Target):
		return decodeTarget(raw, env.Target)
	case present(env.Status):
		return decodeStatus(raw, env.Status)
	default:
		return Frame{Kind: KindAck}, nil
	}
}

func decodeTarget(raw []byte, field json.RawMessage) (Frame, error) {
	if !present(field) {
		return Frame{}, &DecodeError{Raw: string(raw), Err: fmt.Errorf("target: %w", errMissingPayload)}
	}
	var target Position
	if err := json.Unmarshal(field, &target); err != nil {
		return Frame{}, &DecodeError{Raw: string(raw), Err: fmt.Errorf("target: %w", err)}
	}
	return Frame{Kind: KindTargetUpdated, Target: &target}, nil
}

func decodeStatus(raw []byte, field json.RawMessage) (Frame, error) {
	if !present(field) {
		return Frame{}, &DecodeError{Raw: string(raw), Err: fmt.Errorf("status: %w", errMissingPayload)}
	}
	var status Status
	if err := json.Unmarshal(field, &status); err != nil {
		return Frame{}, &DecodeError{Raw: string(raw), Err: fmt.Errorf("status: %w", err)}
	}
	return Frame{Kind: KindStatus, Status: &status}, nil
}

// eventName returns the event field when it is a JSON string, else "".
func eventName(field json.RawMessage) string {
	if !present(field) {
		return ""
	}
	var name string
	if err := json.Unmarshal(field, &name); err != nil {
		return ""
	}
	return name
}

// present reports whether a raw field was set to something other than null.
func present(field json.RawMessage) bool {
	trimmed := bytes.TrimSpace(field)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// errorText extracts the server's error message. Non-string errors are
// returned as their raw JSON.
func errorText(field json.RawMessage) string {
	if !present(field) {
		return "unknown server error"
	}
	var s string
	if err := json.Unmarshal(field, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(field))
}

// EncodeSetTarget serializes a set_target command. Time is omitted when empty.
func EncodeSetTarget(p Position) ([]byte, error) {
	return json.Marshal(setTargetWire{
		Type:  CmdSetTarget,
		Lat:   p.Lat,
		Lon:   p.Lon,
		Depth: p.Depth,
		Time:  p.Time,
	})
}

// EncodeGetStatus serializes a get_status command.
func EncodeGetStatus() ([]byte, error) {
	return json.Marshal(commandWire{Type: CmdGetStatus})
}

// EncodeSubscribe serializes a subscribe command.
func EncodeSubscribe() ([]byte, error) {
	return json.Marshal(commandWire{Type: CmdSubscribe})
}
