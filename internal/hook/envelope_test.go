package hook

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestNewEnvelope(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.FixedZone("PST", -8*3600))
	data := json.RawMessage(`{"order_id":"ord_123","total":4200}`)

	env := NewEnvelope("order.created", data, now)

	if env.Event != "order.created" {
		t.Errorf("Event = %q, want %q", env.Event, "order.created")
	}
	// Timestamps normalize to UTC RFC3339.
	if env.Timestamp != "2026-03-14T17:26:53Z" {
		t.Errorf("Timestamp = %q, want %q", env.Timestamp, "2026-03-14T17:26:53Z")
	}
	if !bytes.Equal(env.Data, data) {
		t.Errorf("Data = %s, want %s", env.Data, data)
	}
}

func TestEnvelopeEncodePreservesData(t *testing.T) {
	// Key order and whitespace of the caller's payload must survive encoding
	// byte for byte, otherwise stored payloads would not re-verify.
	data := json.RawMessage(`{"z":1,"a":2,"nested":{"y":true,"b":null}}`)
	env := NewEnvelope("order.created", data, time.Unix(1767225600, 0).UTC())

	body, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	want := `{"event":"order.created","timestamp":"2026-01-01T00:00:00Z","data":{"z":1,"a":2,"nested":{"y":true,"b":null}}}`
	if string(body) != want {
		t.Errorf("Encode() = %s, want %s", body, want)
	}

	again, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if !bytes.Equal(body, again) {
		t.Error("Encode() not stable across calls")
	}
}
