package live

import "encoding/json"

type MessageType string

const (
	// client -> server
	MessageTypeSetAnswer MessageType = "set_answer"
	MessageTypeUseHint   MessageType = "use_hint"
	MessageTypeNext      MessageType = "next"
	MessageTypePrev      MessageType = "prev"
	MessageTypeGoTo      MessageType = "goto"
	MessageTypeSubmit    MessageType = "submit"

	// server -> client
	MessageTypeState   MessageType = "state"
	MessageTypeResults MessageType = "results"
	MessageTypeError   MessageType = "error"
)

// Inbound is a message from the client. Payload is decoded per type.
type Inbound struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is a message to the client.
type Outbound struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

type UseHintPayload struct {
	HintID string `json:"hintId"`
}

type GoToPayload struct {
	Index int `json:"index"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
