package summary

import (
	"fmt"
	"math"

	"fortio.org/safecast"
)

// CountCompleted returns how many trials reached Passed or Failed.
func CountCompleted(trials []TestCaseSummary) (uint32, error) {
	n := 0
	for i := range trials {
		if trials[i].Status.Completed() {
			n++
		}
	}
	completed, err := safecast.Conv[uint32](n)
	if err != nil {
		return 0, fmt.Errorf("completed runs overflow: %w", err)
	}
	return completed, nil
}

// FromTrials folds trial outcomes into the verdict of a fuzz test.
//
// The first Failed trial decides the verdict and supplies its details.
// Otherwise any Interrupted trial makes the sweep Interrupted. Otherwise the
// sweep passes if at least one trial passed; Skipped trials are left for the
// caller's completeness check. A sequence with no decided trial is
// Interrupted.
func FromTrials(name string, seed uint64, trials []TestCaseSummary) (FuzzingSummary, error) {
	out := FuzzingSummary{Name: name, Seed: seed}

	interrupted := false
	var passed []TestCaseSummary
	for i := range trials {
		t := &trials[i]
		switch t.Status {
		case StatusFailed:
			out.Status = StatusFailed
			out.Msg = t.Msg
			out.Arguments = t.Arguments
			return out, nil
		case StatusInterrupted:
			interrupted = true
		case StatusPassed:
			passed = append(passed, *t)
		}
	}

	if interrupted || len(passed) == 0 {
		out.Status = StatusInterrupted
		return out, nil
	}

	runs, err := safecast.Conv[uint32](len(passed))
	if err != nil {
		return FuzzingSummary{}, fmt.Errorf("fuzz runs overflow: %w", err)
	}
	out.Status = StatusPassed
	out.Runs = runs
	out.Gas = gasStats(passed)
	return out, nil
}

func gasStats(trials []TestCaseSummary) GasStats {
	if len(trials) == 0 {
		return GasStats{}
	}
	st := GasStats{Min: math.MaxUint64}
	var sum float64
	for _, t := range trials {
		st.Min = min(st.Min, t.GasUsed)
		st.Max = max(st.Max, t.GasUsed)
		sum += float64(t.GasUsed)
	}
	n := float64(len(trials))
	st.Mean = sum / n
	var sq float64
	for _, t := range trials {
		d := float64(t.GasUsed) - st.Mean
		sq += d * d
	}
	st.StdDev = math.Sqrt(sq / n)
	return st
}
