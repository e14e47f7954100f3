package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveWrite(t *testing.T) {
	m := NewMetricsWith("test", prometheus.NewRegistry())

	m.ObserveWrite("message", true)
	m.ObserveWrite("message", true)
	m.ObserveWrite("cost", false)

	if got := testutil.ToFloat64(m.RecordWrites.WithLabelValues("message", "ok")); got != 2 {
		t.Fatalf("message ok writes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RecordWrites.WithLabelValues("cost", "failed")); got != 1 {
		t.Fatalf("cost failed writes = %v, want 1", got)
	}
}

func TestPendingGaugeAndDrops(t *testing.T) {
	m := NewMetricsWith("test", prometheus.NewRegistry())

	m.SetPending(3)
	if got := testutil.ToFloat64(m.PendingRequests); got != 3 {
		t.Fatalf("pending = %v, want 3", got)
	}
	m.SetPending(0)
	if got := testutil.ToFloat64(m.PendingRequests); got != 0 {
		t.Fatalf("pending = %v, want 0", got)
	}

	m.ObserveDrop("token_usage")
	if got := testutil.ToFloat64(m.QueueDrops.WithLabelValues("token_usage")); got != 1 {
		t.Fatalf("drops = %v, want 1", got)
	}
}

func TestTokenAndCostCounters(t *testing.T) {
	m := NewMetricsWith("test", prometheus.NewRegistry())

	m.AddTokens("openai", 15, 25)
	m.AddCost("openai", "gpt-4", 0.04)

	if got := testutil.ToFloat64(m.Tokens.WithLabelValues("openai", "prompt")); got != 15 {
		t.Fatalf("prompt tokens = %v, want 15", got)
	}
	if got := testutil.ToFloat64(m.Tokens.WithLabelValues("openai", "completion")); got != 25 {
		t.Fatalf("completion tokens = %v, want 25", got)
	}
	if got := testutil.ToFloat64(m.Cost.WithLabelValues("openai", "gpt-4")); got < 0.039 || got > 0.041 {
		t.Fatalf("cost = %v, want 0.04", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveWrite("message", true)
	m.ObserveDrop("message")
	m.SetPending(1)
	m.ObserveCall("openai", false, 0.5)
	m.AddTokens("openai", 1, 1)
	m.AddCost("openai", "gpt-4", 0.01)
}
