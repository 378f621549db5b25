package protocol

import (
	"encoding/json"
	"fmt"
)

type Type string

const (
	TypeEvent    Type = "event"
	TypeMethod   Type = "method"
	TypeResponse Type = "response"
)

func (t Type) Valid() bool {
	switch t {
	case TypeEvent, TypeMethod, TypeResponse:
		return true
	}
	return false
}

// Message is the single wire shape exchanged with the host. Which fields are
// meaningful depends on Type: ReqID and Error only travel on responses.
type Message struct {
	Type    Type            `json:"type"`
	Name    string          `json:"name"`
	ReqID   string          `json:"req_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error,omitempty"`
}

func BuildEvent(name string, payload any) (Message, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode event %s payload: %w", name, err)
	}
	return Message{Type: TypeEvent, Name: name, Payload: raw}, nil
}

// BuildRequest builds a method message. reqID may be empty for fire-and-forget
// methods; correlated calls carry it both here and inside the payload.
func BuildRequest(name string, payload any, reqID string) (Message, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode method %s payload: %w", name, err)
	}
	return Message{Type: TypeMethod, Name: name, ReqID: reqID, Payload: raw}, nil
}

func BuildResponse(name, reqID string, payload any, errMsg string) (Message, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode response %s payload: %w", name, err)
	}
	return Message{Type: TypeResponse, Name: name, ReqID: reqID, Payload: raw, Error: errMsg}, nil
}

func (m Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if len(p) == 0 {
			return json.RawMessage(`{}`), nil
		}
		return p, nil
	case []byte:
		if len(p) == 0 {
			return json.RawMessage(`{}`), nil
		}
		if !json.Valid(p) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		return json.RawMessage(p), nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return b, nil
}
