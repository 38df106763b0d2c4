package intake

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/driftmarket/hookline/internal/delivery"
	"github.com/driftmarket/hookline/internal/hook"
	"github.com/driftmarket/hookline/internal/logging"
	"github.com/driftmarket/hookline/internal/store"
)

// finishDelegate records whether the message was finished or requeued.
type finishDelegate struct {
	finished atomic.Int64
	requeued atomic.Int64
}

func (d *finishDelegate) OnFinish(*nsq.Message)                       { d.finished.Add(1) }
func (d *finishDelegate) OnRequeue(*nsq.Message, time.Duration, bool) { d.requeued.Add(1) }
func (d *finishDelegate) OnTouch(*nsq.Message)                        {}

func newTestConsumer(t *testing.T, url string) (*Consumer, *store.Memory) {
	t.Helper()
	m := store.NewMemory()
	log := logging.New("hookline-test")
	now := time.Now().UTC()
	err := m.CreateEndpoint(context.Background(), &hook.Endpoint{
		ID:        "ep_1",
		OwnerID:   "acct_test",
		URL:       url,
		Secret:    "whsec_test",
		Events:    []string{"order.created"},
		Status:    hook.EndpointActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateEndpoint() error: %v", err)
	}
	d := delivery.NewDispatcher(m, m, delivery.Config{}, log)
	router := delivery.NewRouter(m, d, log)
	return &Consumer{router: router, log: log}, m
}

func message(t *testing.T, body []byte) (*nsq.Message, *finishDelegate) {
	t.Helper()
	var id nsq.MessageID
	copy(id[:], "0123456789abcdef")
	m := nsq.NewMessage(id, body)
	dg := &finishDelegate{}
	m.Delegate = dg
	return m, dg
}

func TestHandleDeliversEvent(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, m := newTestConsumer(t, srv.URL)
	body, _ := json.Marshal(Event{EventType: "order.created", Data: json.RawMessage(`{"id":1}`)})
	msg, dg := message(t, body)

	if err := c.handle(msg); err != nil {
		t.Fatalf("handle() error: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("receiver hit %d times, want 1", hits.Load())
	}
	if dg.finished.Load() != 1 {
		t.Errorf("message finished %d times, want 1", dg.finished.Load())
	}

	recs, _ := m.ListDeliveries(context.Background(), hook.DeliveryFilter{})
	if len(recs) != 1 || recs[0].Status != hook.DeliveryDelivered {
		t.Errorf("delivery records = %+v, want one delivered record", recs)
	}
}

func TestHandleFinishesBadPayloads(t *testing.T) {
	c, m := newTestConsumer(t, "https://example.com/hook")

	tests := []struct {
		name string
		body []byte
	}{
		{"malformed json", []byte(`{"event_type":`)},
		{"missing event type", []byte(`{"data":{"id":1}}`)},
		{"missing data", []byte(`{"event_type":"order.created"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, dg := message(t, tt.body)
			if err := c.handle(msg); err != nil {
				t.Fatalf("handle() error: %v", err)
			}
			// Bad payloads are dropped, never requeued.
			if dg.finished.Load() != 1 {
				t.Errorf("message finished %d times, want 1", dg.finished.Load())
			}
			if dg.requeued.Load() != 0 {
				t.Errorf("message requeued %d times, want 0", dg.requeued.Load())
			}
		})
	}

	recs, _ := m.ListDeliveries(context.Background(), hook.DeliveryFilter{})
	if len(recs) != 0 {
		t.Errorf("bad payloads created %d delivery records, want 0", len(recs))
	}
}
