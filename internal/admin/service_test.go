package admin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/driftmarket/hookline/internal/delivery"
	"github.com/driftmarket/hookline/internal/hook"
	"github.com/driftmarket/hookline/internal/logging"
	"github.com/driftmarket/hookline/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	m := store.NewMemory()
	log := logging.New("hookline-test")
	d := delivery.NewDispatcher(m, m, delivery.Config{MaxAttempts: 3}, log)
	return NewService(m, m, d, log), m
}

func TestCreateEndpointValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		owner  string
		url    string
		events []string
	}{
		{"missing owner", "", "https://example.com/hook", []string{"order.created"}},
		{"missing url", "acct_a", "", []string{"order.created"}},
		{"relative url", "acct_a", "/hooks", []string{"order.created"}},
		{"bad scheme", "acct_a", "ftp://example.com/hook", []string{"order.created"}},
		{"url too long", "acct_a", "https://example.com/" + strings.Repeat("x", 2048), []string{"order.created"}},
		{"no events", "acct_a", "https://example.com/hook", nil},
		{"empty event type", "acct_a", "https://example.com/hook", []string{"order.created", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateEndpoint(ctx, tt.owner, tt.url, tt.events)
			if !errors.Is(err, hook.ErrValidation) {
				t.Errorf("CreateEndpoint() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreateEndpointReturnsSecretOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ep, err := svc.CreateEndpoint(ctx, "acct_a", "https://example.com/hook", []string{"order.created"})
	if err != nil {
		t.Fatalf("CreateEndpoint() error: %v", err)
	}
	if ep.Secret == "" {
		t.Error("create response Secret is empty, want generated secret")
	}
	if ep.Status != hook.EndpointActive {
		t.Errorf("Status = %q, want %q", ep.Status, hook.EndpointActive)
	}

	got, err := svc.GetEndpoint(ctx, "acct_a", ep.ID)
	if err != nil {
		t.Fatalf("GetEndpoint() error: %v", err)
	}
	if got.Secret != "" {
		t.Errorf("GetEndpoint() Secret = %q, want redacted", got.Secret)
	}

	eps, err := svc.ListEndpoints(ctx, "acct_a")
	if err != nil {
		t.Fatalf("ListEndpoints() error: %v", err)
	}
	for _, e := range eps {
		if e.Secret != "" {
			t.Errorf("ListEndpoints() leaked secret for %s", e.ID)
		}
	}
}

func TestUpdateEndpoint(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	ep, err := svc.CreateEndpoint(ctx, "acct_a", "https://example.com/hook", []string{"order.created"})
	if err != nil {
		t.Fatalf("CreateEndpoint() error: %v", err)
	}

	newURL := "https://example.com/hook/v2"
	disabled := hook.EndpointDisabled
	got, err := svc.UpdateEndpoint(ctx, "acct_a", ep.ID, EndpointPatch{URL: &newURL, Status: &disabled})
	if err != nil {
		t.Fatalf("UpdateEndpoint() error: %v", err)
	}
	if got.URL != newURL {
		t.Errorf("URL = %q, want %q", got.URL, newURL)
	}
	if got.Status != hook.EndpointDisabled {
		t.Errorf("Status = %q, want %q", got.Status, hook.EndpointDisabled)
	}

	// Owners may not set the quarantine status directly.
	failing := hook.EndpointFailing
	if _, err := svc.UpdateEndpoint(ctx, "acct_a", ep.ID, EndpointPatch{Status: &failing}); !errors.Is(err, hook.ErrValidation) {
		t.Errorf("UpdateEndpoint(failing) error = %v, want ErrValidation", err)
	}

	// Cross-owner update looks like a missing endpoint.
	if _, err := svc.UpdateEndpoint(ctx, "acct_b", ep.ID, EndpointPatch{URL: &newURL}); !errors.Is(err, hook.ErrNotFound) {
		t.Errorf("UpdateEndpoint() cross-owner error = %v, want ErrNotFound", err)
	}

	// Reactivation wipes the failure streak.
	for i := 0; i < 4; i++ {
		_ = m.RecordFailure(ctx, ep.ID, time.Now().UTC(), "timeout")
	}
	active := hook.EndpointActive
	got, err = svc.UpdateEndpoint(ctx, "acct_a", ep.ID, EndpointPatch{Status: &active})
	if err != nil {
		t.Fatalf("UpdateEndpoint(active) error: %v", err)
	}
	if got.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures after reactivation = %d, want 0", got.ConsecutiveFailures)
	}
	if got.LastFailureReason != "" {
		t.Errorf("LastFailureReason after reactivation = %q, want empty", got.LastFailureReason)
	}
}

func TestDeleteEndpoint(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ep, _ := svc.CreateEndpoint(ctx, "acct_a", "https://example.com/hook", []string{"order.created"})

	if err := svc.DeleteEndpoint(ctx, "acct_b", ep.ID); !errors.Is(err, hook.ErrNotFound) {
		t.Errorf("DeleteEndpoint() cross-owner error = %v, want ErrNotFound", err)
	}
	if err := svc.DeleteEndpoint(ctx, "acct_a", ep.ID); err != nil {
		t.Fatalf("DeleteEndpoint() error: %v", err)
	}
	if _, err := svc.GetEndpoint(ctx, "acct_a", ep.ID); !errors.Is(err, hook.ErrNotFound) {
		t.Errorf("GetEndpoint() after delete error = %v, want ErrNotFound", err)
	}
}

func TestTestEndpoint(t *testing.T) {
	var gotEvent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEvent = r.Header.Get("X-Webhook-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc, _ := newTestService(t)
	ctx := context.Background()

	ep, _ := svc.CreateEndpoint(ctx, "acct_a", srv.URL, []string{"order.created"})

	rec, err := svc.TestEndpoint(ctx, "acct_a", ep.ID)
	if err != nil {
		t.Fatalf("TestEndpoint() error: %v", err)
	}
	if rec.Status != hook.DeliveryDelivered {
		t.Errorf("Status = %q, want %q", rec.Status, hook.DeliveryDelivered)
	}
	if rec.Event != "endpoint.test" {
		t.Errorf("Event = %q, want %q", rec.Event, "endpoint.test")
	}
	if gotEvent != "endpoint.test" {
		t.Errorf("receiver saw event %q, want %q", gotEvent, "endpoint.test")
	}
}

func TestRetryDeliveryConflicts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc, m := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ep, _ := svc.CreateEndpoint(ctx, "acct_a", srv.URL, []string{"order.created"})

	mk := func(id string, status hook.DeliveryStatus, attempts int) {
		_ = m.CreateDelivery(ctx, &hook.DeliveryRecord{
			ID:         id,
			EndpointID: ep.ID,
			Event:      "order.created",
			Payload:    []byte(`{"event":"order.created","timestamp":"2026-01-02T15:04:05Z","data":{}}`),
			Status:     status,
			Attempts:   attempts,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	mk("d_done", hook.DeliveryDelivered, 1)
	if _, err := svc.RetryDelivery(ctx, "d_done"); !errors.Is(err, hook.ErrConflict) {
		t.Errorf("RetryDelivery(delivered) error = %v, want ErrConflict", err)
	}

	mk("d_spent", hook.DeliveryFailed, 3)
	if _, err := svc.RetryDelivery(ctx, "d_spent"); !errors.Is(err, hook.ErrConflict) {
		t.Errorf("RetryDelivery(exhausted) error = %v, want ErrConflict", err)
	}

	if _, err := svc.RetryDelivery(ctx, "d_missing"); !errors.Is(err, hook.ErrNotFound) {
		t.Errorf("RetryDelivery(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRetryDeliveryRejectsInactiveEndpoint(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc, m := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()
	next := now.Add(-time.Minute)

	ep, _ := svc.CreateEndpoint(ctx, "acct_a", srv.URL, []string{"order.created"})

	seed := func(id string, status hook.EndpointStatus) {
		stored, err := m.GetEndpoint(ctx, ep.ID, "")
		if err != nil {
			t.Fatalf("GetEndpoint() error: %v", err)
		}
		stored.Status = status
		if err := m.UpdateEndpoint(ctx, stored); err != nil {
			t.Fatalf("UpdateEndpoint() error: %v", err)
		}
		_ = m.CreateDelivery(ctx, &hook.DeliveryRecord{
			ID:          id,
			EndpointID:  ep.ID,
			Event:       "order.created",
			Payload:     []byte(`{"event":"order.created","timestamp":"2026-01-02T15:04:05Z","data":{}}`),
			Status:      hook.DeliveryRetried,
			Attempts:    1,
			NextRetryAt: &next,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	seed("d_disabled", hook.EndpointDisabled)
	if _, err := svc.RetryDelivery(ctx, "d_disabled"); !errors.Is(err, hook.ErrConflict) {
		t.Errorf("RetryDelivery(disabled endpoint) error = %v, want ErrConflict", err)
	}

	seed("d_quarantined", hook.EndpointFailing)
	if _, err := svc.RetryDelivery(ctx, "d_quarantined"); !errors.Is(err, hook.ErrConflict) {
		t.Errorf("RetryDelivery(quarantined endpoint) error = %v, want ErrConflict", err)
	}

	if hits.Load() != 0 {
		t.Errorf("receiver hit %d times, want 0", hits.Load())
	}

	// The rejected records keep their state for a later retry after
	// reactivation.
	rec, _ := m.GetDelivery(ctx, "d_disabled")
	if rec.Status != hook.DeliveryRetried || rec.NextRetryAt == nil {
		t.Errorf("rejected record mutated: status=%q next=%v", rec.Status, rec.NextRetryAt)
	}

	// Reactivating the endpoint makes the retry go through.
	seed("d_after", hook.EndpointActive)
	got, err := svc.RetryDelivery(ctx, "d_after")
	if err != nil {
		t.Fatalf("RetryDelivery() after reactivation error: %v", err)
	}
	if got.Status != hook.DeliveryDelivered {
		t.Errorf("Status = %q, want %q", got.Status, hook.DeliveryDelivered)
	}
}

func TestRetryDeliverySucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc, m := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()
	next := now.Add(30 * time.Minute)

	ep, _ := svc.CreateEndpoint(ctx, "acct_a", srv.URL, []string{"order.created"})

	_ = m.CreateDelivery(ctx, &hook.DeliveryRecord{
		ID:          "d_waiting",
		EndpointID:  ep.ID,
		Event:       "order.created",
		Payload:     []byte(`{"event":"order.created","timestamp":"2026-01-02T15:04:05Z","data":{}}`),
		Status:      hook.DeliveryRetried,
		Attempts:    1,
		NextRetryAt: &next,
		CreatedAt:   now,
		UpdatedAt:   now,
	})

	// Manual retry jumps the scheduled wait.
	rec, err := svc.RetryDelivery(ctx, "d_waiting")
	if err != nil {
		t.Fatalf("RetryDelivery() error: %v", err)
	}
	if rec.Status != hook.DeliveryDelivered {
		t.Errorf("Status = %q, want %q", rec.Status, hook.DeliveryDelivered)
	}
	if rec.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", rec.Attempts)
	}
}
