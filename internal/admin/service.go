// Package admin implements the management operations consumed by the HTTP
// API and the hookctl CLI: endpoint registration and lifecycle, synthetic
// test events, delivery listing, and manual retries.
package admin

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/driftmarket/hookline/internal/delivery"
	"github.com/driftmarket/hookline/internal/hook"
	"github.com/driftmarket/hookline/internal/logging"
)

const (
	maxURLLength  = 2048
	secretBytes   = 32 // 256-bit HMAC key
	testEventType = "endpoint.test"
)

type Service struct {
	endpoints  hook.EndpointStore
	deliveries hook.DeliveryStore
	dispatcher *delivery.Dispatcher
	log        *logging.Logger
	now        func() time.Time
}

func NewService(endpoints hook.EndpointStore, deliveries hook.DeliveryStore, dispatcher *delivery.Dispatcher, log *logging.Logger) *Service {
	return &Service{
		endpoints:  endpoints,
		deliveries: deliveries,
		dispatcher: dispatcher,
		log:        log,
		now:        time.Now,
	}
}

// generateSecret returns a random base64-encoded key of n bytes.
func generateSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func validateURL(raw string) error {
	if raw == "" {
		return hook.Validationf("url is required")
	}
	if len(raw) > maxURLLength {
		return hook.Validationf("url exceeds %d characters", maxURLLength)
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return hook.Validationf("invalid url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return hook.Validationf("url scheme must be http or https")
	}
	return nil
}

func validateEvents(events []string) error {
	if len(events) == 0 {
		return hook.Validationf("at least one event type is required")
	}
	for _, ev := range events {
		if ev == "" {
			return hook.Validationf("event types must be non-empty")
		}
	}
	return nil
}

// CreateEndpoint registers a new endpoint with a fresh server-generated
// secret. The secret is present on the returned endpoint this one time only.
func (s *Service) CreateEndpoint(ctx context.Context, ownerID, rawURL string, events []string) (*hook.Endpoint, error) {
	if ownerID == "" {
		return nil, hook.Validationf("owner is required")
	}
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if err := validateEvents(events); err != nil {
		return nil, err
	}

	secret, err := generateSecret(secretBytes)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ep := &hook.Endpoint{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		URL:       rawURL,
		Secret:    secret,
		Events:    events,
		Status:    hook.EndpointActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.endpoints.CreateEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	s.log.WithContext(ctx).WithOwner(ownerID).WithEndpoint(ep.ID).Info("endpoint created")
	return ep, nil
}

func (s *Service) GetEndpoint(ctx context.Context, ownerID, id string) (*hook.Endpoint, error) {
	ep, err := s.endpoints.GetEndpoint(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	return ep.Redact(), nil
}

func (s *Service) ListEndpoints(ctx context.Context, ownerID string) ([]*hook.Endpoint, error) {
	eps, err := s.endpoints.ListEndpoints(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, ep := range eps {
		ep.Redact()
	}
	return eps, nil
}

// EndpointPatch carries the owner-updatable endpoint fields. Nil means
// leave unchanged.
type EndpointPatch struct {
	URL    *string              `json:"url,omitempty"`
	Events []string             `json:"events,omitempty"`
	Status *hook.EndpointStatus `json:"status,omitempty"`
}

// UpdateEndpoint applies a patch. Setting status back to active is a fresh
// start: the consecutive-failure counter and last failure reason reset.
func (s *Service) UpdateEndpoint(ctx context.Context, ownerID, id string, patch EndpointPatch) (*hook.Endpoint, error) {
	ep, err := s.endpoints.GetEndpoint(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	if patch.URL != nil {
		if err := validateURL(*patch.URL); err != nil {
			return nil, err
		}
		ep.URL = *patch.URL
	}
	if patch.Events != nil {
		if err := validateEvents(patch.Events); err != nil {
			return nil, err
		}
		ep.Events = patch.Events
	}
	if patch.Status != nil {
		switch *patch.Status {
		case hook.EndpointActive, hook.EndpointDisabled:
		default:
			return nil, hook.Validationf("status must be %q or %q", hook.EndpointActive, hook.EndpointDisabled)
		}
		if *patch.Status == hook.EndpointActive && ep.Status != hook.EndpointActive {
			ep.ConsecutiveFailures = 0
			ep.LastFailureReason = ""
		}
		ep.Status = *patch.Status
	}
	ep.UpdatedAt = s.now().UTC()

	if err := s.endpoints.UpdateEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	return ep.Redact(), nil
}

// DeleteEndpoint soft-deletes: deliveries that reference the endpoint stay
// for audit, new deliveries stop.
func (s *Service) DeleteEndpoint(ctx context.Context, ownerID, id string) error {
	return s.endpoints.SoftDeleteEndpoint(ctx, id, ownerID)
}

// TestEndpoint sends a synthetic event through the full dispatch path and
// returns the resulting delivery record.
func (s *Service) TestEndpoint(ctx context.Context, ownerID, id string) (*hook.DeliveryRecord, error) {
	ep, err := s.endpoints.GetEndpoint(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	data, _ := json.Marshal(map[string]any{
		"test":        true,
		"endpoint_id": ep.ID,
	})
	body, err := hook.NewEnvelope(testEventType, data, s.now()).Encode()
	if err != nil {
		return nil, err
	}
	return s.dispatcher.Dispatch(ctx, ep, testEventType, body, nil)
}

func (s *Service) GetDelivery(ctx context.Context, id string) (*hook.DeliveryRecord, error) {
	return s.deliveries.GetDelivery(ctx, id)
}

func (s *Service) ListDeliveries(ctx context.Context, f hook.DeliveryFilter) ([]*hook.DeliveryRecord, error) {
	return s.deliveries.ListDeliveries(ctx, f)
}

// RetryDelivery re-attempts a non-delivered record immediately, bypassing
// its next_retry_at. Delivered and attempt-exhausted records are conflicts,
// as are records whose endpoint is no longer active.
func (s *Service) RetryDelivery(ctx context.Context, id string) (*hook.DeliveryRecord, error) {
	rec, err := s.deliveries.GetDelivery(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == hook.DeliveryDelivered {
		return nil, hook.Conflictf("delivery %s already delivered", id)
	}
	if rec.Attempts >= s.dispatcher.MaxAttempts() {
		return nil, hook.Conflictf("delivery %s has exhausted its attempts", id)
	}

	ep, err := s.endpoints.GetEndpoint(ctx, rec.EndpointID, "")
	if err != nil {
		return nil, err
	}
	if !ep.Deliverable() {
		return nil, hook.Conflictf("endpoint %s is %s, reactivate it before retrying", ep.ID, ep.Status)
	}

	claimed, err := s.deliveries.ClaimForRetry(ctx, id, rec.Status, rec.NextRetryAt)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, hook.Conflictf("delivery %s is already being retried", id)
	}
	rec.Status = hook.DeliveryRetried
	rec.NextRetryAt = nil

	return s.dispatcher.Dispatch(ctx, ep, rec.Event, rec.Payload, rec)
}
