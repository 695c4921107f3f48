package summary

import (
	"math"
	"testing"
)

func trial(status Status, msg string) TestCaseSummary {
	return TestCaseSummary{Status: status, Name: "t::fuzz", Msg: msg}
}

func TestFromTrialsPrecedence(t *testing.T) {
	cases := []struct {
		name    string
		trials  []TestCaseSummary
		want    Status
		wantMsg string
	}{
		{"all passed", []TestCaseSummary{trial(StatusPassed, ""), trial(StatusPassed, "")}, StatusPassed, ""},
		{"failure wins", []TestCaseSummary{trial(StatusPassed, ""), trial(StatusInterrupted, ""), trial(StatusFailed, "boom")}, StatusFailed, "boom"},
		{"first failure reported", []TestCaseSummary{trial(StatusFailed, "first"), trial(StatusFailed, "second")}, StatusFailed, "first"},
		{"interrupted over passed", []TestCaseSummary{trial(StatusPassed, ""), trial(StatusInterrupted, "")}, StatusInterrupted, ""},
		{"passed after skipped", []TestCaseSummary{trial(StatusSkipped, ""), trial(StatusPassed, "")}, StatusPassed, ""},
		{"only skipped", []TestCaseSummary{trial(StatusSkipped, ""), trial(StatusSkipped, "")}, StatusInterrupted, ""},
		{"empty", nil, StatusInterrupted, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FromTrials("t::fuzz", 42, tc.trials)
			if err != nil {
				t.Fatalf("FromTrials: %v", err)
			}
			if got.Status != tc.want {
				t.Fatalf("Status = %v, want %v", got.Status, tc.want)
			}
			if got.Msg != tc.wantMsg {
				t.Fatalf("Msg = %q, want %q", got.Msg, tc.wantMsg)
			}
			if got.Name != "t::fuzz" || got.Seed != 42 {
				t.Fatalf("identity lost: %+v", got)
			}
		})
	}
}

func TestFromTrialsCarriesCounterexample(t *testing.T) {
	trials := []TestCaseSummary{
		{Status: StatusPassed, GasUsed: 10},
		{Status: StatusFailed, Msg: "assert failed", Arguments: []string{"0x1", "7"}},
	}
	got, err := FromTrials("t::fuzz", 1, trials)
	if err != nil {
		t.Fatalf("FromTrials: %v", err)
	}
	if len(got.Arguments) != 2 || got.Arguments[1] != "7" {
		t.Fatalf("Arguments = %v", got.Arguments)
	}
}

func TestFromTrialsGasStats(t *testing.T) {
	trials := []TestCaseSummary{
		{Status: StatusPassed, GasUsed: 10},
		{Status: StatusPassed, GasUsed: 20},
		{Status: StatusPassed, GasUsed: 30},
		{Status: StatusSkipped},
	}
	got, err := FromTrials("t::fuzz", 1, trials)
	if err != nil {
		t.Fatalf("FromTrials: %v", err)
	}
	if got.Runs != 3 {
		t.Fatalf("Runs = %d, want 3", got.Runs)
	}
	if got.Gas.Min != 10 || got.Gas.Max != 30 || got.Gas.Mean != 20 {
		t.Fatalf("Gas = %+v", got.Gas)
	}
	if want := math.Sqrt(200.0 / 3.0); math.Abs(got.Gas.StdDev-want) > 1e-9 {
		t.Fatalf("StdDev = %v, want %v", got.Gas.StdDev, want)
	}
}

func TestCountCompleted(t *testing.T) {
	trials := []TestCaseSummary{
		trial(StatusPassed, ""),
		trial(StatusFailed, ""),
		trial(StatusSkipped, ""),
		trial(StatusInterrupted, ""),
		trial(StatusPassed, ""),
	}
	n, err := CountCompleted(trials)
	if err != nil {
		t.Fatalf("CountCompleted: %v", err)
	}
	if n != 3 {
		t.Fatalf("CountCompleted = %d, want 3", n)
	}
}

func TestAnyTestSummary(t *testing.T) {
	single := Single(TestCaseSummary{Status: StatusPassed, Name: "t::a", GasUsed: 5})
	if single.Kind != KindSingle || single.Name() != "t::a" || single.Status() != StatusPassed {
		t.Fatalf("single = %+v", single)
	}
	if single.String() != "[passed] t::a (gas: ~5)" {
		t.Fatalf("String = %q", single.String())
	}

	fuzz := Fuzzing(FuzzingSummary{Status: StatusFailed, Name: "t::b", Msg: "bad", Seed: 3})
	if fuzz.Kind != KindFuzzing || fuzz.Name() != "t::b" || fuzz.Status() != StatusFailed || fuzz.Msg() != "bad" {
		t.Fatalf("fuzz = %+v", fuzz)
	}
	if fuzz.String() != "[failed] t::b (seed: 3)" {
		t.Fatalf("String = %q", fuzz.String())
	}
}
