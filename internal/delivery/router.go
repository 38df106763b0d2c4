package delivery

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/driftmarket/hookline/internal/hook"
	"github.com/driftmarket/hookline/internal/logging"
	"github.com/driftmarket/hookline/internal/metrics"
	"github.com/driftmarket/hookline/internal/tracing"
)

// Router fans an application event out to every active subscribed endpoint.
// It is the single producer-facing entry point: business modules call
// Deliver and never see per-endpoint outcomes.
type Router struct {
	endpoints  hook.EndpointStore
	dispatcher *Dispatcher
	log        *logging.Logger
	now        func() time.Time
}

func NewRouter(endpoints hook.EndpointStore, dispatcher *Dispatcher, log *logging.Logger) *Router {
	return &Router{
		endpoints:  endpoints,
		dispatcher: dispatcher,
		log:        log,
		now:        time.Now,
	}
}

// Deliver looks up every active endpoint subscribed to eventType, builds one
// shared envelope, and dispatches to all of them concurrently. Endpoint
// outcomes are isolated: a failure (or panic) on one endpoint never affects
// delivery to the others, and nothing propagates back to the producer.
// Returns the number of endpoints matched; zero subscribers is a no-op.
func (r *Router) Deliver(ctx context.Context, eventType string, data json.RawMessage) int {
	ctx, span := tracing.StartSpan(ctx, "router.deliver",
		attribute.String("event_type", eventType),
	)
	defer span.End()

	subs, err := r.endpoints.ListActiveSubscribers(ctx, eventType)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		r.log.WithContext(ctx).WithEventType(eventType).WithError(err).Error("subscriber lookup failed")
		return 0
	}
	if len(subs) == 0 {
		return 0
	}

	// One envelope, encoded once: every endpoint receives and signs over the
	// same bytes.
	body, err := hook.NewEnvelope(eventType, data, r.now()).Encode()
	if err != nil {
		tracing.SetSpanError(ctx, err)
		r.log.WithContext(ctx).WithEventType(eventType).WithError(err).Error("envelope encode failed")
		return 0
	}

	span.SetAttributes(attribute.Int("subscribers_count", len(subs)))

	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
	)
	for _, ep := range subs {
		wg.Add(1)
		go func(ep *hook.Endpoint) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					r.log.WithContext(ctx).WithEndpoint(ep.ID).WithField("panic", p).Error("dispatch panicked")
				}
			}()
			rec, err := r.dispatcher.Dispatch(ctx, ep, eventType, body, nil)
			if err != nil {
				r.log.WithContext(ctx).WithEndpoint(ep.ID).WithEventType(eventType).WithError(err).Error("dispatch persistence failed")
				return
			}
			if rec.Status == hook.DeliveryDelivered {
				delivered.Add(1)
			}
		}(ep)
	}
	wg.Wait()

	metrics.RecordFanout(len(subs))
	r.log.WithContext(ctx).WithEventType(eventType).WithFields(map[string]any{
		"matched":   len(subs),
		"delivered": delivered.Load(),
	}).Info("fanout settled")
	return len(subs)
}
