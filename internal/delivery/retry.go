package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/driftmarket/hookline/internal/hook"
	"github.com/driftmarket/hookline/internal/logging"
	"github.com/driftmarket/hookline/internal/metrics"
)

// RetryScheduler periodically sweeps delivery records whose next_retry_at
// has passed and resubmits them through the Dispatcher. Each sweep is
// bounded by a batch size and an in-flight cap so a tick can never do
// unbounded work or overwhelm downstream hosts.
type RetryScheduler struct {
	endpoints  hook.EndpointStore
	deliveries hook.DeliveryStore
	dispatcher *Dispatcher
	interval   time.Duration
	batchSize  int
	inFlight   int
	log        *logging.Logger
	now        func() time.Time
}

func NewRetryScheduler(endpoints hook.EndpointStore, deliveries hook.DeliveryStore, dispatcher *Dispatcher, interval time.Duration, batchSize, inFlight int, log *logging.Logger) *RetryScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	if inFlight <= 0 {
		inFlight = 50
	}
	return &RetryScheduler{
		endpoints:  endpoints,
		deliveries: deliveries,
		dispatcher: dispatcher,
		interval:   interval,
		batchSize:  batchSize,
		inFlight:   inFlight,
		log:        log,
		now:        time.Now,
	}
}

// Run blocks, sweeping on every tick until the context is cancelled.
func (s *RetryScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Plain().Info("retry scheduler exiting")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep processes one batch of due records. A tick failure is logged, never
// fatal to the loop.
func (s *RetryScheduler) Sweep(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Plain().WithField("panic", p).Error("retry sweep panicked")
		}
	}()

	due, err := s.deliveries.ListDueRetries(ctx, s.now().UTC(), s.batchSize)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("due retry query failed")
		return
	}
	if len(due) == 0 {
		return
	}
	metrics.RecordRetrySweep(len(due))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.inFlight)
	for _, rec := range due {
		if rec.Attempts >= s.dispatcher.MaxAttempts() {
			s.terminate(ctx, rec, "attempts exhausted")
			continue
		}

		ep, err := s.endpoints.GetEndpoint(ctx, rec.EndpointID, "")
		if err != nil || !ep.Deliverable() {
			// Disabled, quarantined, or deleted since the record was
			// scheduled: the record terminates here rather than re-attempting.
			s.terminate(ctx, rec, "endpoint no longer active")
			continue
		}

		claimed, err := s.deliveries.ClaimForRetry(ctx, rec.ID, rec.Status, rec.NextRetryAt)
		if err != nil {
			s.log.WithContext(ctx).WithDelivery(rec.ID).WithError(err).Error("retry claim failed")
			continue
		}
		if !claimed {
			// Lost the race to another sweep or a manual retry.
			continue
		}
		rec.Status = hook.DeliveryRetried
		rec.NextRetryAt = nil

		wg.Add(1)
		sem <- struct{}{}
		go func(ep *hook.Endpoint, rec *hook.DeliveryRecord) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := s.dispatcher.Dispatch(ctx, ep, rec.Event, rec.Payload, rec); err != nil {
				s.log.WithContext(ctx).WithDelivery(rec.ID).WithError(err).Error("retry dispatch failed")
			}
		}(ep, rec)
	}
	wg.Wait()
}

// terminate moves a due record to the failed status. The write goes through
// the same claim guard as a dispatch: if the record moved on since the due
// query, a manual retry or another sweep owns it and the stale snapshot must
// not clobber their outcome.
func (s *RetryScheduler) terminate(ctx context.Context, rec *hook.DeliveryRecord, why string) {
	claimed, err := s.deliveries.ClaimForRetry(ctx, rec.ID, rec.Status, rec.NextRetryAt)
	if err != nil {
		s.log.WithContext(ctx).WithDelivery(rec.ID).WithError(err).Error("terminate claim failed")
		return
	}
	if !claimed {
		return
	}
	rec.Status = hook.DeliveryFailed
	rec.NextRetryAt = nil
	rec.UpdatedAt = s.now().UTC()
	if err := s.deliveries.UpdateDelivery(ctx, rec); err != nil {
		s.log.WithContext(ctx).WithDelivery(rec.ID).WithError(err).Error("terminate update failed")
		return
	}
	s.log.WithContext(ctx).WithDelivery(rec.ID).WithField("reason", why).Info("delivery terminated")
}
