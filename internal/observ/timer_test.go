package observ

import (
	"errors"
	"strings"
	"testing"
)

func TestTimerReport(t *testing.T) {
	tm := NewTimer()
	idx := tm.Begin("load")
	tm.End(idx, "3 tests")
	if err := tm.Time("run", func() error { return errors.New("boom") }); err == nil {
		t.Fatal("Time must return the phase error")
	}
	tm.End(42, "ignored")

	r := tm.Report()
	if len(r.Phases) != 2 {
		t.Fatalf("phases = %d, want 2", len(r.Phases))
	}
	if r.Phases[0].Note != "3 tests" || r.Phases[1].Note != "failed" {
		t.Fatalf("notes = %+v", r.Phases)
	}
	s := tm.Summary()
	for _, want := range []string{"timings:", "load", "run", "// failed", "total"} {
		if !strings.Contains(s, want) {
			t.Fatalf("summary missing %q:\n%s", want, s)
		}
	}
}

func TestNilTimer(t *testing.T) {
	var tm *Timer
	tm.End(tm.Begin("x"), "")
	if r := tm.Report(); len(r.Phases) != 0 {
		t.Fatalf("nil timer report = %+v", r)
	}
}
