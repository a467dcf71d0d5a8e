// Package metrics defines the Prometheus collectors exposed on the
// /metrics endpoint: Grapher work/commit counters and latency histograms,
// plus Director apply/reload counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Grapher holds every collector the Grapher updates.
type Grapher struct {
	WorksTotal          *prometheus.CounterVec
	GraphingLatency     prometheus.Histogram
	WorkTotalTime       prometheus.Histogram
	ReprocessTotal      prometheus.Counter
	ApplyNotifyFailures prometheus.Counter
}

// NewGrapher registers and returns the Grapher collector set against reg.
func NewGrapher(reg prometheus.Registerer) *Grapher {
	factory := promauto.With(reg)
	return &Grapher{
		WorksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "grapher_works_total",
			Help: "Results processed by the grapher, labeled by outcome.",
		}, []string{"outcome"}),
		GraphingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "grapher_graphing_latency_seconds",
			Help:    "Wall-clock duration of the graph-insert transaction.",
			Buckets: prometheus.DefBuckets,
		}),
		WorkTotalTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "grapher_work_total_time_seconds",
			Help:    "End-to-end latency from a work's entry ctime to its commit.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		ReprocessTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "grapher_reprocess_total",
			Help: "Encryption-retry republishes issued instead of a commit.",
		}),
		ApplyNotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "grapher_apply_notify_failures_total",
			Help: "Non-fatal failures publishing the apply-rules notification.",
		}),
	}
}

// Outcome labels for WorksTotal.
const (
	OutcomeCommitted = "committed"
	OutcomeReprocess = "reprocess"
	OutcomeRejected  = "rejected"
)

// Director holds every collector the Director updates.
type Director struct {
	AppliesTotal *prometheus.CounterVec
	ReloadsTotal prometheus.Counter
}

// NewDirector registers and returns the Director collector set against reg.
func NewDirector(reg prometheus.Registerer) *Director {
	factory := promauto.With(reg)
	return &Director{
		AppliesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "director_applies_total",
			Help: "Scenario-apply invocations, labeled by outcome.",
		}, []string{"outcome"}),
		ReloadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "director_reloads_total",
			Help: "Scenario set reloads actually performed (post-debounce).",
		}),
	}
}

// Outcome labels for AppliesTotal.
const (
	ApplyOutcomeOK       = "ok"
	ApplyOutcomeRejected = "rejected"
)
