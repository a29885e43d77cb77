package wire

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrEmptyEvent = errors.New("wire: empty event name")

// Envelope is one JSON text frame: {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope. A nil payload yields an event without data.
func NewEnvelope(event string, payload any) (Envelope, error) {
	event = strings.TrimSpace(event)
	if event == "" {
		return Envelope{}, ErrEmptyEvent
	}
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = raw
	return env, nil
}

// MustEnvelope is NewEnvelope for payload types that always marshal.
func MustEnvelope(event string, payload any) Envelope {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Decode unmarshals the envelope data into out. Missing data leaves out untouched.
func (e Envelope) Decode(out any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	return json.Unmarshal(e.Data, out)
}
