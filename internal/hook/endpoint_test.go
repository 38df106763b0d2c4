package hook

import (
	"testing"
	"time"
)

func TestEndpointDeliverable(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name string
		ep   Endpoint
		want bool
	}{
		{"active", Endpoint{Status: EndpointActive}, true},
		{"disabled", Endpoint{Status: EndpointDisabled}, false},
		{"failing", Endpoint{Status: EndpointFailing}, false},
		{"active but deleted", Endpoint{Status: EndpointActive, DeletedAt: &now}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ep.Deliverable(); got != tt.want {
				t.Errorf("Deliverable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEndpointSubscribedTo(t *testing.T) {
	ep := Endpoint{Events: []string{"order.created", "order.shipped"}}

	if !ep.SubscribedTo("order.created") {
		t.Error("SubscribedTo(order.created) = false, want true")
	}
	if ep.SubscribedTo("order.cancelled") {
		t.Error("SubscribedTo(order.cancelled) = true, want false")
	}
	// Exact match only, no prefix matching.
	if ep.SubscribedTo("order") {
		t.Error("SubscribedTo(order) = true, want false")
	}
}

func TestEndpointRedact(t *testing.T) {
	ep := &Endpoint{ID: "ep_1", Secret: "whsec_sensitive"}
	got := ep.Redact()
	if got.Secret != "" {
		t.Errorf("Redact() Secret = %q, want empty", got.Secret)
	}
	if got != ep {
		t.Error("Redact() should return the same endpoint")
	}
}

func TestDeliveryRecordTerminal(t *testing.T) {
	tests := []struct {
		status DeliveryStatus
		want   bool
	}{
		{DeliveryPending, false},
		{DeliveryRetried, false},
		{DeliveryDelivered, true},
		{DeliveryFailed, true},
	}

	for _, tt := range tests {
		rec := DeliveryRecord{Status: tt.status}
		if got := rec.Terminal(); got != tt.want {
			t.Errorf("Terminal() with status %q = %v, want %v", tt.status, got, tt.want)
		}
	}
}
