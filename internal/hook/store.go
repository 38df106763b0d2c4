package hook

import (
	"context"
	"time"
)

// EndpointStore is the durable registry of subscriber endpoints.
//
// Owner-scoped reads (ownerID != "") must return ErrNotFound for endpoints
// belonging to another owner. Internal callers (dispatcher, schedulers) pass
// ownerID == "" to read any endpoint.
type EndpointStore interface {
	CreateEndpoint(ctx context.Context, ep *Endpoint) error
	GetEndpoint(ctx context.Context, id, ownerID string) (*Endpoint, error)
	ListEndpoints(ctx context.Context, ownerID string) ([]*Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep *Endpoint) error
	// SoftDeleteEndpoint hides the endpoint from new fan-outs while keeping
	// deliveries that reference it for audit.
	SoftDeleteEndpoint(ctx context.Context, id, ownerID string) error

	// ListActiveSubscribers returns every active, non-deleted endpoint
	// subscribed to the event type.
	ListActiveSubscribers(ctx context.Context, eventType string) ([]*Endpoint, error)

	// RecordSuccess resets the consecutive-failure counter and stamps
	// last_delivery_at/last_success_at.
	RecordSuccess(ctx context.Context, id string, at time.Time) error
	// RecordFailure increments the consecutive-failure counter and stamps
	// last_delivery_at/last_failure_at with the classified reason.
	RecordFailure(ctx context.Context, id string, at time.Time, reason string) error

	// Quarantine moves every active endpoint whose consecutive-failure
	// counter has reached threshold to the failing status and returns the
	// affected IDs.
	Quarantine(ctx context.Context, threshold int) ([]string, error)
}

// DeliveryStore is the durable log of delivery attempts.
type DeliveryStore interface {
	CreateDelivery(ctx context.Context, rec *DeliveryRecord) error
	GetDelivery(ctx context.Context, id string) (*DeliveryRecord, error)
	UpdateDelivery(ctx context.Context, rec *DeliveryRecord) error
	ListDeliveries(ctx context.Context, f DeliveryFilter) ([]*DeliveryRecord, error)

	// ListDueRetries returns at most limit non-delivered records whose
	// next_retry_at has passed, oldest first.
	ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*DeliveryRecord, error)

	// ClaimForRetry conditionally flips the record to the retried status and
	// consumes its next_retry_at, guarded on the status and next_retry_at the
	// caller last observed. It reports false when another sweep or a manual
	// retry claimed the record first.
	ClaimForRetry(ctx context.Context, id string, prev DeliveryStatus, prevNextRetryAt *time.Time) (bool, error)
}
