package hook

import (
	"slices"
	"time"
)

// EndpointStatus is the lifecycle state of a registered endpoint.
type EndpointStatus string

const (
	// EndpointActive endpoints receive new fan-out deliveries.
	EndpointActive EndpointStatus = "active"
	// EndpointDisabled is an owner-initiated stop; no new deliveries.
	EndpointDisabled EndpointStatus = "disabled"
	// EndpointFailing is the system-initiated quarantine for endpoints whose
	// consecutive-failure counter crossed the threshold.
	EndpointFailing EndpointStatus = "failing"
)

// Endpoint is a registered external HTTP destination subscribed to one or
// more event types. The secret is the HMAC key for outbound signatures and
// is only surfaced once, in the create response.
type Endpoint struct {
	ID                  string         `json:"id"`
	OwnerID             string         `json:"owner_id"`
	URL                 string         `json:"url"`
	Secret              string         `json:"secret,omitempty"`
	Events              []string       `json:"events"`
	Status              EndpointStatus `json:"status"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	LastDeliveryAt      *time.Time     `json:"last_delivery_at,omitempty"`
	LastSuccessAt       *time.Time     `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time     `json:"last_failure_at,omitempty"`
	LastFailureReason   string         `json:"last_failure_reason,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           *time.Time     `json:"-"`
}

// SubscribedTo reports whether the endpoint subscribes to the event type.
func (e *Endpoint) SubscribedTo(eventType string) bool {
	return slices.Contains(e.Events, eventType)
}

// Deliverable reports whether the endpoint may receive new fan-out
// deliveries.
func (e *Endpoint) Deliverable() bool {
	return e.Status == EndpointActive && e.DeletedAt == nil
}

// Redact clears the secret before the endpoint leaves the management layer.
func (e *Endpoint) Redact() *Endpoint {
	e.Secret = ""
	return e
}
