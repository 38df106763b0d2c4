package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	FanoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookline_fanouts_total",
			Help: "Total number of events fanned out.",
		},
	)

	FanoutEndpointsMatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookline_fanout_endpoints_matched_total",
			Help: "Total number of endpoints matched across all fan-outs.",
		},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_deliveries_total",
			Help: "Total number of delivery attempts by outcome status.",
		},
		[]string{"status"}, // delivered, retried, failed
	)

	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hookline_delivery_duration_seconds",
			Help:    "Wall-clock duration of delivery HTTP round trips.",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_retries_total",
			Help: "Total number of delivery retries by failure reason.",
		},
		[]string{"reason"}, // e.g. http_5xx, timeout, network
	)

	QuarantinedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookline_endpoints_quarantined_total",
			Help: "Total number of endpoints moved to the failing status.",
		},
	)

	RetrySweepDue = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookline_retry_sweep_due_total",
			Help: "Total number of due delivery records seen by retry sweeps.",
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		FanoutsTotal,
		FanoutEndpointsMatched,
		DeliveriesTotal,
		DeliveryDuration,
		RetriesTotal,
		QuarantinedTotal,
		RetrySweepDue,
	)
}

// RecordFanout counts one fan-out and the endpoints it matched.
func RecordFanout(matched int) {
	FanoutsTotal.Inc()
	FanoutEndpointsMatched.Add(float64(matched))
}

// RecordDelivery counts one attempt outcome and its round-trip duration.
func RecordDelivery(status string, d time.Duration) {
	DeliveriesTotal.WithLabelValues(status).Inc()
	if d > 0 {
		DeliveryDuration.Observe(d.Seconds())
	}
}

// RecordRetry counts a scheduled retry by classified failure reason.
func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

// RecordQuarantine counts endpoints demoted by a health sweep.
func RecordQuarantine(n int) {
	QuarantinedTotal.Add(float64(n))
}

// RecordRetrySweep counts records picked up by a retry sweep.
func RecordRetrySweep(due int) {
	RetrySweepDue.Add(float64(due))
}
