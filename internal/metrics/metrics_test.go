package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	m := New()
	m.TrialStarted()
	m.TrialStarted()
	m.TrialFinished("passed")
	m.TrialFinished("failed")
	m.EarlyStop()
	m.Verdict("fuzzing", "failed")

	if got := testutil.ToFloat64(m.trials.WithLabelValues("passed")); got != 1 {
		t.Fatalf("passed trials = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("in flight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.earlyStops); got != 1 {
		t.Fatalf("early stops = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.verdicts.WithLabelValues("fuzzing", "failed")); got != 1 {
		t.Fatalf("verdicts = %v, want 1", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.TrialStarted()
	m.TrialFinished("passed")
	m.EarlyStop()
	m.Verdict("single", "passed")
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")); err != nil {
		t.Fatalf("nil WriteTextfile: %v", err)
	}
}

func TestReuseRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewWithRegisterer(reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := NewWithRegisterer(reg)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	a.EarlyStop()
	if got := testutil.ToFloat64(b.earlyStops); got != 1 {
		t.Fatalf("collectors not shared: %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.Verdict("single", "passed")
	path := filepath.Join(t.TempDir(), "forgerun.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `forgerun_test_verdicts_total{kind="single",status="passed"} 1`) {
		t.Fatalf("unexpected textfile:\n%s", data)
	}
}
