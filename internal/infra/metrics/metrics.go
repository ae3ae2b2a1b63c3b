// Package metrics provides Prometheus metrics for the award daemon.
// Counters and gauges for batch flushes, per-actor evaluation outcomes,
// verdicts and skipped awards.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Batch Manager ──────────────────────────────────────────────────────────

// DirtyActors tracks actors waiting for the next flush.
var DirtyActors = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "awards",
	Name:      "dirty_actors",
	Help:      "Number of actors marked dirty and waiting for a flush.",
})

// Flushes counts completed flushes by trigger (timer, manual).
var Flushes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "awards",
	Name:      "flushes_total",
	Help:      "Total batch flushes.",
}, []string{"trigger"})

// FlushDuration tracks wall time of one flush.
var FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "awards",
	Name:      "flush_duration_seconds",
	Help:      "Duration of one batch flush in seconds.",
	Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
})

// ─── Evaluation ─────────────────────────────────────────────────────────────

// ActorEvaluations counts per-actor outcomes within a flush
// (ok, snapshot_failed, apply_failed, dropped).
var ActorEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "awards",
	Name:      "actor_evaluations_total",
	Help:      "Per-actor evaluation outcomes.",
}, []string{"outcome"})

// Verdicts counts verdicts that produced a notification, by award class and reason.
var Verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "awards",
	Name:      "verdicts_total",
	Help:      "Notifying verdicts by award class and reason.",
}, []string{"class", "reason"})

// SkippedAwards counts awards skipped during evaluation, by cause.
var SkippedAwards = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "awards",
	Name:      "skipped_awards_total",
	Help:      "Awards skipped during evaluation.",
}, []string{"reason"})

// ApplyFailures counts verdict sets that could not be persisted.
var ApplyFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "awards",
	Name:      "apply_failures_total",
	Help:      "Total failed verdict applications.",
})

// ─── Intake ─────────────────────────────────────────────────────────────────

// EventsReceived counts change events by source (http, redis) and kind.
var EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "awards",
	Name:      "events_received_total",
	Help:      "Change events received.",
}, []string{"source", "kind"})

// RateLimited counts HTTP requests rejected by the rate limiter.
var RateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "awards",
	Name:      "rate_limited_total",
	Help:      "HTTP requests rejected by the rate limiter.",
})
