package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks per-coupon outcomes across all runs.
	CouponOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_coupon_outcomes_total",
			Help: "Coupon outcomes per provider (activated, skipped, errored).",
		},
		[]string{"provider", "outcome"},
	)

	// Tracks completed and failed account runs.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_account_runs_total",
			Help: "Account runs per provider and result (ok, failed).",
		},
		[]string{"provider", "result"},
	)

	// Tracks whole-run failures by phase (authenticate, catalog, balance).
	RunFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_run_failures_total",
			Help: "Whole-run failures per provider and phase.",
		},
		[]string{"provider", "phase"},
	)

	// Tracks NATS messages published by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages published.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_errors_total",
			Help: "Count of component-level errors by component and reason.",
		},
		[]string{"component", "reason"},
	)

	// Gauges the last successful activation cycle per provider (seconds since epoch).
	LastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "loyalty_last_run_timestamp",
			Help: "Timestamp (unix seconds) of the last completed account run.",
		},
		[]string{"provider"},
	)
)

// ObserveDuration records the time taken for a function and updates the given histogram.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// counters are not meant for duration tracking
	}
}

func IncCouponOutcome(provider, outcome string) {
	CouponOutcomes.WithLabelValues(provider, outcome).Inc()
}

func IncRun(provider, result string) {
	RunsTotal.WithLabelValues(provider, result).Inc()
}

func IncRunFailure(provider, phase string) {
	RunFailures.WithLabelValues(provider, phase).Inc()
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func SetLastRun(provider string, t time.Time) {
	LastRunTimestamp.WithLabelValues(provider).Set(float64(t.Unix()))
}
