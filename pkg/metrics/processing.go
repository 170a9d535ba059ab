package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProcessingMetrics records event processing outcomes. It satisfies the
// observer interfaces the engine and orchestrator accept, so the core never
// holds process-wide mutable counters of its own.
type ProcessingMetrics struct {
	eventOutcomes       *prometheus.CounterVec
	eventDuration       *prometheus.HistogramVec
	legFailures         *prometheus.CounterVec
	optimisticConflicts *prometheus.CounterVec
	lockFailures        *prometheus.CounterVec
	duplicateEvents     prometheus.Counter
}

// NewProcessingMetrics registers the processing metrics on the provided
// registerer. A nil registerer yields a no-op instance, which keeps tests
// and partial wiring cheap.
func NewProcessingMetrics(reg prometheus.Registerer) *ProcessingMetrics {
	if reg == nil {
		return &ProcessingMetrics{}
	}
	eventOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cbmm_events_total",
		Help: "Processed movement events by final status.",
	}, []string{"status"})
	eventDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cbmm_event_duration_seconds",
		Help:    "End-to-end duration of event processing.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
	legFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cbmm_leg_failures_total",
		Help: "Failed debit/credit legs by error code.",
	}, []string{"leg", "code"})
	optimisticConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cbmm_optimistic_conflicts_total",
		Help: "Version conflicts observed while saving accounts.",
	}, []string{"operation"})
	lockFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cbmm_lock_failures_total",
		Help: "Distributed lock acquisitions that did not succeed.",
	}, []string{"reason"})
	duplicateEvents := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cbmm_duplicate_events_total",
		Help: "Events rejected by the idempotency guard.",
	})
	reg.MustRegister(eventOutcomes, eventDuration, legFailures, optimisticConflicts, lockFailures, duplicateEvents)
	return &ProcessingMetrics{
		eventOutcomes:       eventOutcomes,
		eventDuration:       eventDuration,
		legFailures:         legFailures,
		optimisticConflicts: optimisticConflicts,
		lockFailures:        lockFailures,
		duplicateEvents:     duplicateEvents,
	}
}

// ObserveEvent records the final status and duration of one event.
func (m *ProcessingMetrics) ObserveEvent(status string, duration time.Duration) {
	if m == nil || m.eventOutcomes == nil {
		return
	}
	label := normalizeLabel(status)
	m.eventOutcomes.WithLabelValues(label).Inc()
	m.eventDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveLegFailure records a failed leg with its error code.
func (m *ProcessingMetrics) ObserveLegFailure(leg, code string) {
	if m == nil || m.legFailures == nil {
		return
	}
	m.legFailures.WithLabelValues(normalizeLabel(leg), normalizeLabel(code)).Inc()
}

// ObserveOptimisticConflict records a rejected conditional account write.
func (m *ProcessingMetrics) ObserveOptimisticConflict(operation string) {
	if m == nil || m.optimisticConflicts == nil {
		return
	}
	m.optimisticConflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

// ObserveLockFailure records a lock wait timeout or cancellation.
func (m *ProcessingMetrics) ObserveLockFailure(reason string) {
	if m == nil || m.lockFailures == nil {
		return
	}
	m.lockFailures.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveDuplicateEvent records an idempotency rejection.
func (m *ProcessingMetrics) ObserveDuplicateEvent() {
	if m == nil || m.duplicateEvents == nil {
		return
	}
	m.duplicateEvents.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
