package hook

import (
	"encoding/json"
	"time"
)

// DeliveryStatus is the delivery record state machine.
//
// pending -> delivered | retried | failed
// retried -> retried | delivered | failed
//
// delivered and failed are terminal.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRetried   DeliveryStatus = "retried"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DeliveryRecord is the durable log entry for one logical webhook. It is
// created on the first dispatch attempt and mutated in place on every
// subsequent attempt; it is never deleted. The record ID doubles as the
// idempotency token sent to the receiver in X-Webhook-ID.
type DeliveryRecord struct {
	ID             string            `json:"id"`
	EndpointID     string            `json:"endpoint_id"`
	Event          string            `json:"event"`
	Payload        json.RawMessage   `json:"payload"`
	RequestHeaders map[string]string `json:"request_headers,omitempty"`
	ResponseStatus *int              `json:"response_status,omitempty"`
	ResponseBody   *string           `json:"response_body,omitempty"`
	DurationMs     *int64            `json:"duration_ms,omitempty"`
	Status         DeliveryStatus    `json:"status"`
	Attempts       int               `json:"attempts"`
	NextRetryAt    *time.Time        `json:"next_retry_at,omitempty"`
	DeliveredAt    *time.Time        `json:"delivered_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Terminal reports whether the record can take no further attempts.
func (r *DeliveryRecord) Terminal() bool {
	return r.Status == DeliveryDelivered || r.Status == DeliveryFailed
}

// DeliveryFilter narrows ListDeliveries. Zero values are ignored.
type DeliveryFilter struct {
	EndpointID string
	Event      string
	Status     DeliveryStatus
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}
