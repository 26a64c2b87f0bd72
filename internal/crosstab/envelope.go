// Package crosstab propagates transcript and mode changes between console
// sessions of the same room. Delivery is best effort: at most once, never
// back to the sender, no acknowledgements.
package crosstab

import (
	"encoding/json"
	"fmt"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/chat"
)

// Kind tags a broadcast envelope.
type Kind string

const (
	KindNewMessage    Kind = "NEW_MESSAGE"
	KindUpdateMessage Kind = "UPDATE_MESSAGE"
	KindModeChange    Kind = "MODE_CHANGE"
)

// Envelope is the wire shape of one broadcast.
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event is a decoded and validated envelope.
type Event struct {
	Kind    Kind
	Message chat.Message
	Mode    chat.Mode
}

// NewMessageEnvelope announces a message appended locally.
func NewMessageEnvelope(m chat.Message) (Envelope, error) {
	return messageEnvelope(KindNewMessage, m)
}

// UpdateMessageEnvelope announces a wholesale replacement of a message.
func UpdateMessageEnvelope(m chat.Message) (Envelope, error) {
	return messageEnvelope(KindUpdateMessage, m)
}

// ModeChangeEnvelope announces a new room mode.
func ModeChangeEnvelope(mode chat.Mode) (Envelope, error) {
	if _, err := chat.ParseMode(string(mode)); err != nil {
		return Envelope{}, fmt.Errorf("crosstab: %w", err)
	}
	data, err := json.Marshal(mode)
	if err != nil {
		return Envelope{}, fmt.Errorf("crosstab: encode mode: %w", err)
	}
	return Envelope{Type: KindModeChange, Payload: data}, nil
}

func messageEnvelope(kind Kind, m chat.Message) (Envelope, error) {
	if err := m.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("crosstab: %w", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return Envelope{}, fmt.Errorf("crosstab: encode message: %w", err)
	}
	return Envelope{Type: kind, Payload: data}, nil
}

// Decode validates the envelope and its payload.
func (e Envelope) Decode() (Event, error) {
	switch e.Type {
	case KindNewMessage, KindUpdateMessage:
		var m chat.Message
		if err := json.Unmarshal(e.Payload, &m); err != nil {
			return Event{}, fmt.Errorf("crosstab: decode %s: %w", e.Type, err)
		}
		if err := m.Validate(); err != nil {
			return Event{}, fmt.Errorf("crosstab: decode %s: %w", e.Type, err)
		}
		return Event{Kind: e.Type, Message: m}, nil
	case KindModeChange:
		var s string
		if err := json.Unmarshal(e.Payload, &s); err != nil {
			return Event{}, fmt.Errorf("crosstab: decode %s: %w", e.Type, err)
		}
		mode, err := chat.ParseMode(s)
		if err != nil {
			return Event{}, fmt.Errorf("crosstab: decode %s: %w", e.Type, err)
		}
		return Event{Kind: e.Type, Mode: mode}, nil
	}
	return Event{}, fmt.Errorf("crosstab: unknown envelope type %q", e.Type)
}
