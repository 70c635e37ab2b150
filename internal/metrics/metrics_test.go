package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Violation("anti_spam", "rate_limit")
	m.Violation("anti_spam", "rate_limit")
	m.Action("delete", nil)
	m.Action("delete", errors.New("missing access"))

	if got := testutil.ToFloat64(m.violations.WithLabelValues("anti_spam", "rate_limit")); got != 2 {
		t.Fatalf("expected 2 violations, got %v", got)
	}
	if got := testutil.ToFloat64(m.actions.WithLabelValues("delete", "error")); got != 1 {
		t.Fatalf("expected 1 failed action, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Evaluated("link_protection", "allow")
	m.Purged("manual")
	m.TrackedUsers(3)
	if m.Handler() == nil {
		t.Fatalf("expected a handler")
	}
}
