package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	ErrNotObject      = errors.New("message is not a JSON object")
	ErrMissingType    = errors.New("message has no type")
	ErrUnknownType    = errors.New("message type is not event, method or response")
	ErrMissingName    = errors.New("message has no name")
	ErrMissingPayload = errors.New("message has no payload")
	ErrMissingReqID   = errors.New("response has no req_id")
)

// RejectError explains why raw inbound data was not accepted as a Message.
type RejectError struct {
	Reason error
	Detail string
}

func (e *RejectError) Error() string {
	if e.Detail == "" {
		return "reject message: " + e.Reason.Error()
	}
	return fmt.Sprintf("reject message: %s (%s)", e.Reason, e.Detail)
}

func (e *RejectError) Unwrap() error { return e.Reason }

func reject(reason error, detail string) *RejectError {
	return &RejectError{Reason: reason, Detail: detail}
}

// Parse validates the structural shape of raw JSON and returns the Message.
// Nothing beyond type, name and payload presence is assumed.
func Parse(raw []byte) (Message, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return Message{}, reject(ErrNotObject, "")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Message{}, reject(ErrNotObject, err.Error())
	}

	var msg Message

	typeRaw, ok := fields["type"]
	if !ok {
		return Message{}, reject(ErrMissingType, "")
	}
	var typ string
	if err := json.Unmarshal(typeRaw, &typ); err != nil {
		return Message{}, reject(ErrUnknownType, "type is not a string")
	}
	msg.Type = Type(typ)
	if !msg.Type.Valid() {
		return Message{}, reject(ErrUnknownType, typ)
	}

	nameRaw, ok := fields["name"]
	if !ok {
		return Message{}, reject(ErrMissingName, "")
	}
	if err := json.Unmarshal(nameRaw, &msg.Name); err != nil || msg.Name == "" {
		return Message{}, reject(ErrMissingName, "name is not a non-empty string")
	}

	payload, ok := fields["payload"]
	if !ok {
		return Message{}, reject(ErrMissingPayload, "")
	}
	msg.Payload = payload

	if v, ok := fields["req_id"]; ok {
		_ = json.Unmarshal(v, &msg.ReqID)
	}
	if v, ok := fields["error"]; ok {
		_ = json.Unmarshal(v, &msg.Error)
	}

	return msg, nil
}

// ParseResponse is Parse restricted to response messages carrying a req_id.
func ParseResponse(raw []byte) (Message, error) {
	msg, err := Parse(raw)
	if err != nil {
		return Message{}, err
	}
	if msg.Type != TypeResponse {
		return Message{}, reject(ErrUnknownType, "expected response, got "+string(msg.Type))
	}
	if msg.ReqID == "" {
		return Message{}, reject(ErrMissingReqID, "")
	}
	return msg, nil
}

// Normalize turns whatever a messaging primitive delivered into JSON bytes.
// Structured values are re-encoded; text is passed through unchanged.
func Normalize(data any) ([]byte, bool) {
	switch v := data.(type) {
	case nil:
		return nil, false
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	case json.RawMessage:
		return v, true
	case Message:
		b, err := json.Marshal(v)
		return b, err == nil
	case *Message:
		if v == nil {
			return nil, false
		}
		b, err := json.Marshal(v)
		return b, err == nil
	case map[string]any:
		b, err := json.Marshal(v)
		return b, err == nil
	}
	return nil, false
}

// ReqID extracts the correlation id echoed in an event payload. Hosts have
// used both reqId and req_id spellings.
func ReqID(payload json.RawMessage) string {
	if id := gjson.GetBytes(payload, "reqId"); id.Type == gjson.String && id.Str != "" {
		return id.Str
	}
	if id := gjson.GetBytes(payload, "req_id"); id.Type == gjson.String {
		return id.Str
	}
	return ""
}

// WithReqID returns params encoded as a JSON object with reqId set.
func WithReqID(params any, reqID string) (json.RawMessage, error) {
	raw, err := encodePayload(params)
	if err != nil {
		return nil, err
	}
	if !gjson.ParseBytes(raw).IsObject() {
		return nil, errors.New("params must encode to a JSON object")
	}
	out, err := sjson.SetBytes(append([]byte(nil), raw...), "reqId", reqID)
	if err != nil {
		return nil, fmt.Errorf("set reqId: %w", err)
	}
	return out, nil
}
