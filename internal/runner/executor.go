package runner

import (
	"context"

	"forgerun/internal/config"
	"forgerun/internal/fuzzing"
	"forgerun/internal/program"
	"forgerun/internal/summary"
	"forgerun/internal/testcase"
	"forgerun/internal/ui"
)

// TestRequest carries everything an executor needs to run a test case.
// All pointers are shared read-only between concurrent runs.
type TestRequest struct {
	Case           *testcase.TestCase
	Program        *program.Program
	Config         *config.RunnerConfig
	ProgramPath    string
	TraceVerbosity *config.TraceVerbosity
	UI             *ui.UI
}

// TrialRequest is one randomized trial of a fuzz test.
type TrialRequest struct {
	TestRequest
	// Index is the spawn index of the trial, not its completion order.
	Index int
	// Seed is this trial's random draw. The executor derives all of the
	// trial's inputs from it.
	Seed uint64
	// Stop is closed once a sibling trial failed. Executors check it at
	// their own checkpoints and report Skipped when it is set.
	Stop *fuzzing.StopSignal
}

// Executor runs tests against the compiled program. Implementations report
// cancellation of ctx as an Interrupted outcome rather than an error.
type Executor interface {
	RunTest(ctx context.Context, req *TestRequest) (summary.TestCaseSummary, error)
	RunTrial(ctx context.Context, req *TrialRequest) (summary.TestCaseSummary, error)
}
