package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/driftmarket/hookline/internal/hook"
	"github.com/driftmarket/hookline/internal/store"
)

func seedSubscriber(t *testing.T, m *store.Memory, id, url string, status hook.EndpointStatus, events ...string) {
	t.Helper()
	now := time.Now().UTC()
	err := m.CreateEndpoint(context.Background(), &hook.Endpoint{
		ID:        id,
		OwnerID:   "acct_test",
		URL:       url,
		Secret:    "whsec_" + id,
		Events:    events,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateEndpoint() error: %v", err)
	}
}

func TestDeliverNoSubscribers(t *testing.T) {
	m := store.NewMemory()
	r := NewRouter(m, NewDispatcher(m, m, Config{}, testLogger()), testLogger())

	matched := r.Deliver(context.Background(), "order.created", json.RawMessage(`{"id":1}`))
	if matched != 0 {
		t.Errorf("Deliver() with no subscribers = %d, want 0", matched)
	}

	recs, _ := m.ListDeliveries(context.Background(), hook.DeliveryFilter{})
	if len(recs) != 0 {
		t.Errorf("Deliver() created %d records for zero subscribers, want 0", len(recs))
	}
}

func TestDeliverFansOutToActiveSubscribers(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := store.NewMemory()
	seedSubscriber(t, m, "ep_1", srv.URL, hook.EndpointActive, "order.created")
	seedSubscriber(t, m, "ep_2", srv.URL, hook.EndpointActive, "order.created", "order.shipped")
	seedSubscriber(t, m, "ep_disabled", srv.URL, hook.EndpointDisabled, "order.created")
	seedSubscriber(t, m, "ep_quarantined", srv.URL, hook.EndpointFailing, "order.created")
	seedSubscriber(t, m, "ep_other", srv.URL, hook.EndpointActive, "invoice.paid")

	r := NewRouter(m, NewDispatcher(m, m, Config{}, testLogger()), testLogger())

	matched := r.Deliver(context.Background(), "order.created", json.RawMessage(`{"id":1}`))
	if matched != 2 {
		t.Errorf("Deliver() = %d, want 2", matched)
	}
	if hits.Load() != 2 {
		t.Errorf("receiver hit %d times, want 2", hits.Load())
	}

	recs, _ := m.ListDeliveries(context.Background(), hook.DeliveryFilter{})
	if len(recs) != 2 {
		t.Fatalf("created %d delivery records, want 2", len(recs))
	}
	for _, rec := range recs {
		if rec.Status != hook.DeliveryDelivered {
			t.Errorf("record %s Status = %q, want %q", rec.ID, rec.Status, hook.DeliveryDelivered)
		}
	}
}

func TestDeliverIsolatesEndpointFailures(t *testing.T) {
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okSrv.Close()
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer badSrv.Close()

	m := store.NewMemory()
	seedSubscriber(t, m, "ep_ok", okSrv.URL, hook.EndpointActive, "order.created")
	seedSubscriber(t, m, "ep_bad", badSrv.URL, hook.EndpointActive, "order.created")

	r := NewRouter(m, NewDispatcher(m, m, Config{}, testLogger()), testLogger())

	matched := r.Deliver(context.Background(), "order.created", json.RawMessage(`{"id":1}`))
	if matched != 2 {
		t.Errorf("Deliver() = %d, want 2", matched)
	}

	okRecs, _ := m.ListDeliveries(context.Background(), hook.DeliveryFilter{EndpointID: "ep_ok"})
	if len(okRecs) != 1 || okRecs[0].Status != hook.DeliveryDelivered {
		t.Errorf("ep_ok record = %+v, want one delivered record", okRecs)
	}
	badRecs, _ := m.ListDeliveries(context.Background(), hook.DeliveryFilter{EndpointID: "ep_bad"})
	if len(badRecs) != 1 || badRecs[0].Status != hook.DeliveryRetried {
		t.Errorf("ep_bad record = %+v, want one retried record", badRecs)
	}
}

func TestDeliverSharesEnvelopeBytes(t *testing.T) {
	bodies := make(chan []byte, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- b
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := store.NewMemory()
	seedSubscriber(t, m, "ep_1", srv.URL, hook.EndpointActive, "order.created")
	seedSubscriber(t, m, "ep_2", srv.URL, hook.EndpointActive, "order.created")

	r := NewRouter(m, NewDispatcher(m, m, Config{}, testLogger()), testLogger())
	r.Deliver(context.Background(), "order.created", json.RawMessage(`{"id":1}`))

	first, second := <-bodies, <-bodies
	if string(first) != string(second) {
		t.Errorf("endpoints received different bytes:\n%s\n%s", first, second)
	}

	var env hook.Envelope
	if err := json.Unmarshal(first, &env); err != nil {
		t.Fatalf("body is not an envelope: %v", err)
	}
	if env.Event != "order.created" {
		t.Errorf("envelope event = %q, want %q", env.Event, "order.created")
	}
	if string(env.Data) != `{"id":1}` {
		t.Errorf("envelope data = %s, want %s", env.Data, `{"id":1}`)
	}
}
