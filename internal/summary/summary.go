package summary

import "fmt"

// Status is the terminal state of a test, trial or fuzz sweep.
type Status uint8

const (
	StatusPassed Status = iota + 1
	StatusFailed
	StatusIgnored
	StatusInterrupted
	StatusSkipped
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusIgnored:
		return "ignored"
	case StatusInterrupted:
		return "interrupted"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Completed reports whether a trial with this status reached a decision.
func (s Status) Completed() bool {
	return s == StatusPassed || s == StatusFailed
}

// TraceData is the recorded execution trail of one run. The payload is
// opaque to the runner.
type TraceData struct {
	TestName string `msgpack:"test_name"`
	Seed     uint64 `msgpack:"seed,omitempty"`
	Payload  []byte `msgpack:"payload"`
}

// TestCaseSummary is the outcome of a single run: either a whole non-fuzz
// test or one trial of a fuzz test.
type TestCaseSummary struct {
	Status    Status
	Name      string
	Msg       string
	Arguments []string
	GasUsed   uint64
	// Seed is the random draw the trial ran with; zero for non-fuzz tests.
	Seed uint64
	// TraceData is only kept for passed runs.
	TraceData *TraceData
}

// GasStats summarises gas usage across the passed trials of a fuzz test.
type GasStats struct {
	Min    uint64
	Max    uint64
	Mean   float64
	StdDev float64
}

// FuzzingSummary is the verdict of a whole fuzz test. Status is one of
// Passed, Failed or Interrupted.
type FuzzingSummary struct {
	Status Status
	Name   string
	Msg    string
	// Arguments of the failing trial.
	Arguments []string
	Runs      uint32
	Gas       GasStats
	Seed      uint64
}

// Kind tells which variant an AnyTestSummary holds.
type Kind uint8

const (
	KindSingle Kind = iota + 1
	KindFuzzing
)

// AnyTestSummary is the uniform result of running a test case, whichever
// path ran it. Exactly one of Single or Fuzzing is set, matching Kind.
type AnyTestSummary struct {
	Kind    Kind
	Single  *TestCaseSummary
	Fuzzing *FuzzingSummary
}

// Single wraps a non-fuzz result.
func Single(s TestCaseSummary) AnyTestSummary {
	return AnyTestSummary{Kind: KindSingle, Single: &s}
}

// Fuzzing wraps a fuzz verdict.
func Fuzzing(s FuzzingSummary) AnyTestSummary {
	return AnyTestSummary{Kind: KindFuzzing, Fuzzing: &s}
}

// Name returns the test name.
func (a AnyTestSummary) Name() string {
	switch a.Kind {
	case KindSingle:
		return a.Single.Name
	case KindFuzzing:
		return a.Fuzzing.Name
	default:
		return ""
	}
}

// Status returns the verdict.
func (a AnyTestSummary) Status() Status {
	switch a.Kind {
	case KindSingle:
		return a.Single.Status
	case KindFuzzing:
		return a.Fuzzing.Status
	default:
		return 0
	}
}

// Msg returns the failure message, if any.
func (a AnyTestSummary) Msg() string {
	switch a.Kind {
	case KindSingle:
		return a.Single.Msg
	case KindFuzzing:
		return a.Fuzzing.Msg
	default:
		return ""
	}
}

// String formats the summary as a one-line report.
func (a AnyTestSummary) String() string {
	status := fmt.Sprintf("[%s]", a.Status())
	switch a.Kind {
	case KindFuzzing:
		f := a.Fuzzing
		if f.Status == StatusPassed {
			return fmt.Sprintf("%s %s (runs: %d, gas: ~%.0f)", status, f.Name, f.Runs, f.Gas.Mean)
		}
		if f.Status == StatusFailed {
			return fmt.Sprintf("%s %s (seed: %d)", status, f.Name, f.Seed)
		}
		return fmt.Sprintf("%s %s", status, f.Name)
	case KindSingle:
		s := a.Single
		if s.Status == StatusPassed {
			return fmt.Sprintf("%s %s (gas: ~%d)", status, s.Name, s.GasUsed)
		}
		return fmt.Sprintf("%s %s", status, s.Name)
	default:
		return status
	}
}
