package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the engine. Pass to services
// that record them; a nil *Metrics disables recording.
type Metrics struct {
	// Decisions counts resolved decisions by resource, effect, and
	// whether a rule or the default table decided.
	Decisions *prometheus.CounterVec
	// DecisionCacheHits counts resolver cache hits when the optional
	// decision cache is enabled.
	DecisionCacheHits prometheus.Counter
	// AuditWriteFailures counts mutations that failed because their
	// audit entry could not be recorded.
	AuditWriteFailures prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "accessctl",
				Name:      "decisions_total",
				Help:      "Total authorization decisions resolved",
			},
			[]string{"resource", "effect", "source"}, // effect=allow/deny, source=rule/default
		),
		DecisionCacheHits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "accessctl",
				Name:      "decision_cache_hits_total",
				Help:      "Total decision cache hits",
			},
		),
		AuditWriteFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "accessctl",
				Name:      "audit_write_failures_total",
				Help:      "Total mutations rejected because the audit write failed",
			},
		),
	}
}

// recordDecision increments the decisions counter, tolerating a nil
// receiver.
func (m *Metrics) recordDecision(resource string, allowed bool, source string) {
	if m == nil {
		return
	}
	effect := "deny"
	if allowed {
		effect = "allow"
	}
	m.Decisions.WithLabelValues(resource, effect, source).Inc()
}

// recordCacheHit increments the cache-hit counter, tolerating nil.
func (m *Metrics) recordCacheHit() {
	if m == nil {
		return
	}
	m.DecisionCacheHits.Inc()
}

// recordAuditFailure increments the audit-failure counter, tolerating nil.
func (m *Metrics) recordAuditFailure() {
	if m == nil {
		return
	}
	m.AuditWriteFailures.Inc()
}
