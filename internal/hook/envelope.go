package hook

import (
	"encoding/json"
	"time"
)

// Envelope is the JSON wrapper sent as the request body of every delivery:
// {"event": ..., "timestamp": ..., "data": ...}. Data stays opaque raw JSON
// so the bytes the signer sees are the bytes the receiver gets.
type Envelope struct {
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEnvelope wraps an event payload with the event type and the moment of
// fan-out. One envelope is shared by every endpoint matched by a fan-out.
func NewEnvelope(eventType string, data json.RawMessage, now time.Time) Envelope {
	return Envelope{
		Event:     eventType,
		Timestamp: now.UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// Encode serializes the envelope exactly once. Callers must reuse the
// returned bytes for both the signature and the request body; re-serializing
// could reorder keys and break the signature.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
