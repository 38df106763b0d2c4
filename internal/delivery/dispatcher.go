// Package delivery implements the delivery engine: the dispatcher that
// performs one signed HTTP attempt, the fan-out router, and the periodic
// retry and endpoint-health sweeps.
package delivery

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/driftmarket/hookline/internal/hook"
	"github.com/driftmarket/hookline/internal/logging"
	"github.com/driftmarket/hookline/internal/metrics"
	"github.com/driftmarket/hookline/internal/signature"
	"github.com/driftmarket/hookline/internal/tracing"
)

// Outbound request headers.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderID        = "X-Webhook-ID"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// Config tunes a Dispatcher.
type Config struct {
	Timeout          time.Duration   // per-attempt HTTP timeout
	UserAgent        string          // fixed User-Agent header
	MaxAttempts      int             // total attempts before terminal failure
	Backoff          []time.Duration // attempt-indexed delays, clamped at the end
	MaxResponseBytes int             // stored response body cap
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "hookline-webhooks/1.0"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if len(c.Backoff) == 0 {
		c.Backoff = []time.Duration{
			1 * time.Minute, 5 * time.Minute, 30 * time.Minute,
			2 * time.Hour, 12 * time.Hour,
		}
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = 4096
	}
	return c
}

// Dispatcher executes single delivery attempts: build the signed request,
// POST it with a bounded timeout, classify the outcome, and persist the
// delivery record and endpoint health.
type Dispatcher struct {
	endpoints  hook.EndpointStore
	deliveries hook.DeliveryStore
	client     *http.Client
	cfg        Config
	log        *logging.Logger
	now        func() time.Time
}

func NewDispatcher(endpoints hook.EndpointStore, deliveries hook.DeliveryStore, cfg Config, log *logging.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		endpoints:  endpoints,
		deliveries: deliveries,
		client:     &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// MaxAttempts exposes the configured attempt ceiling to the retry sweep.
func (d *Dispatcher) MaxAttempts() int {
	return d.cfg.MaxAttempts
}

// Dispatch performs one HTTP delivery attempt of body to the endpoint.
//
// When rec is nil this is a first attempt: a pending record is created
// before the HTTP call so a crash mid-attempt still leaves an audit row.
// When rec is non-nil (retry), the same record accumulates the attempt.
//
// The body must be the exact envelope bytes; they are signed as-is and
// stored as the record payload. The attempt outcome lives on the returned
// record; the error return is reserved for persistence failures of the
// record itself. Endpoint health writes are best-effort and only logged.
func (d *Dispatcher) Dispatch(ctx context.Context, ep *hook.Endpoint, event string, body []byte, rec *hook.DeliveryRecord) (*hook.DeliveryRecord, error) {
	now := d.now().UTC()

	if rec == nil {
		rec = &hook.DeliveryRecord{
			ID:         uuid.NewString(),
			EndpointID: ep.ID,
			Event:      event,
			Payload:    body,
			Status:     hook.DeliveryPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := d.deliveries.CreateDelivery(ctx, rec); err != nil {
			return nil, err
		}
	}

	ctx, span := tracing.StartSpan(ctx, "delivery.dispatch",
		attribute.String("delivery_id", rec.ID),
		attribute.String("endpoint_id", ep.ID),
		attribute.String("event_type", event),
		attribute.Int("attempt", rec.Attempts+1),
	)
	defer span.End()

	headers := map[string]string{
		"Content-Type":  "application/json",
		"User-Agent":    d.cfg.UserAgent,
		HeaderSignature: signature.Sign(ep.Secret, body),
		HeaderEvent:     event,
		HeaderID:        rec.ID,
		HeaderTimestamp: now.Format(time.RFC3339),
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		// Unbuildable request (bad URL); treat like a network failure.
		return d.recordFailure(ctx, ep, rec, headers, nil, nil, nil, err.Error())
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, doErr := d.client.Do(req)
	latency := time.Since(start)

	if doErr != nil {
		tracing.SetSpanError(ctx, doErr)
		return d.recordFailure(ctx, ep, rec, headers, nil, nil, nil, classifyReason(doErr, 0))
	}

	status := resp.StatusCode
	limited, _ := io.ReadAll(io.LimitReader(resp.Body, int64(d.cfg.MaxResponseBytes)))
	_ = resp.Body.Close()
	respBody := string(limited)
	durationMs := latency.Milliseconds()

	span.SetAttributes(
		attribute.Int("http.status_code", status),
		attribute.Int64("http.latency_ms", durationMs),
	)

	if status >= 200 && status < 300 {
		return d.recordSuccess(ctx, ep, rec, headers, status, respBody, durationMs, latency)
	}
	return d.recordFailure(ctx, ep, rec, headers, &status, &respBody, &durationMs, classifyReason(nil, status))
}

func (d *Dispatcher) recordSuccess(ctx context.Context, ep *hook.Endpoint, rec *hook.DeliveryRecord, headers map[string]string, status int, respBody string, durationMs int64, latency time.Duration) (*hook.DeliveryRecord, error) {
	now := d.now().UTC()
	rec.Attempts++
	rec.RequestHeaders = headers
	rec.ResponseStatus = &status
	rec.ResponseBody = &respBody
	rec.DurationMs = &durationMs
	rec.Status = hook.DeliveryDelivered
	rec.DeliveredAt = &now
	rec.NextRetryAt = nil
	rec.UpdatedAt = now

	if err := d.endpoints.RecordSuccess(ctx, ep.ID, now); err != nil {
		// Eventually consistent: never blocks or reverses the record write.
		d.log.WithContext(ctx).WithEndpoint(ep.ID).WithError(err).Error("endpoint success update failed")
	}
	metrics.RecordDelivery(string(hook.DeliveryDelivered), latency)

	if err := d.deliveries.UpdateDelivery(ctx, rec); err != nil {
		d.log.WithContext(ctx).WithDelivery(rec.ID).WithError(err).Error("delivery record update failed")
		return rec, err
	}
	return rec, nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, ep *hook.Endpoint, rec *hook.DeliveryRecord, headers map[string]string, status *int, respBody *string, durationMs *int64, reason string) (*hook.DeliveryRecord, error) {
	now := d.now().UTC()
	rec.Attempts++
	rec.RequestHeaders = headers
	rec.ResponseStatus = status
	rec.ResponseBody = respBody
	rec.DurationMs = durationMs
	rec.DeliveredAt = nil
	rec.UpdatedAt = now

	if rec.Attempts < d.cfg.MaxAttempts {
		next := now.Add(d.backoffDelay(rec.Attempts))
		rec.Status = hook.DeliveryRetried
		rec.NextRetryAt = &next
		metrics.RecordRetry(reason)
	} else {
		rec.Status = hook.DeliveryFailed
		rec.NextRetryAt = nil
	}
	var lat time.Duration
	if durationMs != nil {
		lat = time.Duration(*durationMs) * time.Millisecond
	}
	metrics.RecordDelivery(string(rec.Status), lat)

	if err := d.endpoints.RecordFailure(ctx, ep.ID, now, reason); err != nil {
		d.log.WithContext(ctx).WithEndpoint(ep.ID).WithError(err).Error("endpoint failure update failed")
	}

	if err := d.deliveries.UpdateDelivery(ctx, rec); err != nil {
		d.log.WithContext(ctx).WithDelivery(rec.ID).WithError(err).Error("delivery record update failed")
		return rec, err
	}
	return rec, nil
}

// backoffDelay maps a 1-based attempt count to the schedule, clamped to the
// last entry for attempts beyond the table.
func (d *Dispatcher) backoffDelay(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(d.cfg.Backoff) {
		idx = len(d.cfg.Backoff) - 1
	}
	return d.cfg.Backoff[idx]
}

// classifyReason buckets a failed attempt for metrics and the endpoint's
// last_failure_reason field.
func classifyReason(doErr error, status int) string {
	if doErr != nil {
		errLower := strings.ToLower(doErr.Error())
		switch {
		case strings.Contains(errLower, "timeout"), strings.Contains(errLower, "deadline exceeded"):
			return "timeout"
		case strings.Contains(errLower, "connection refused"):
			return "connection_refused"
		case strings.Contains(errLower, "no such host"), strings.Contains(errLower, "dns"):
			return "dns_error"
		default:
			return "network"
		}
	}
	switch {
	case status >= 500:
		return "http_5xx"
	case status == 429:
		return "http_429"
	case status >= 400:
		return "http_4xx"
	default:
		return "other"
	}
}
