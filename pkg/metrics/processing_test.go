package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilRegistererIsNoop(t *testing.T) {
	m := NewProcessingMetrics(nil)
	// None of these should panic.
	m.ObserveEvent("COMPLETED", time.Second)
	m.ObserveLegFailure("origin", "INSUFFICIENT_BALANCE")
	m.ObserveOptimisticConflict("debit")
	m.ObserveLockFailure("timeout")
	m.ObserveDuplicateEvent()

	var nilMetrics *ProcessingMetrics
	nilMetrics.ObserveEvent("COMPLETED", time.Second)
	nilMetrics.ObserveDuplicateEvent()
}

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewProcessingMetrics(reg)

	m.ObserveEvent("COMPLETED", 250*time.Millisecond)
	m.ObserveEvent("COMPLETED", 100*time.Millisecond)
	m.ObserveEvent("FAILED", time.Second)
	m.ObserveLegFailure("origin", "INSUFFICIENT_BALANCE")
	m.ObserveOptimisticConflict("debit")
	m.ObserveLockFailure("")
	m.ObserveDuplicateEvent()

	if got := testutil.ToFloat64(m.eventOutcomes.WithLabelValues("COMPLETED")); got != 2 {
		t.Fatalf("expected 2 completed events, got %v", got)
	}
	if got := testutil.ToFloat64(m.eventOutcomes.WithLabelValues("FAILED")); got != 1 {
		t.Fatalf("expected 1 failed event, got %v", got)
	}
	if got := testutil.ToFloat64(m.legFailures.WithLabelValues("origin", "INSUFFICIENT_BALANCE")); got != 1 {
		t.Fatalf("expected 1 leg failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.lockFailures.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("expected empty reason to normalize to unknown, got %v", got)
	}
	if got := testutil.ToFloat64(m.duplicateEvents); got != 1 {
		t.Fatalf("expected 1 duplicate, got %v", got)
	}
}
