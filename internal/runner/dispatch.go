package runner

import (
	"context"
	"fmt"

	"forgerun/internal/config"
	"forgerun/internal/metrics"
	"forgerun/internal/program"
	"forgerun/internal/summary"
	"forgerun/internal/testcase"
	"forgerun/internal/trace"
	"forgerun/internal/ui"
)

// Runner runs test cases through an Executor.
type Runner struct {
	Executor Executor
	Config   *config.RunnerConfig
	UI       *ui.UI
	Metrics  *metrics.Metrics
	Progress ui.ProgressSink
}

// RunForTestCase starts one test case in its own goroutine. Tests without
// fuzzer configuration or fuzz intent run once through the executor; the
// rest go through RunWithFuzzing. ctx is the session's cancellation signal.
func (r *Runner) RunForTestCase(
	ctx context.Context,
	tc *testcase.TestCase,
	prog *program.Program,
	programPath string,
	verbosity *config.TraceVerbosity,
) *Task {
	req := &TestRequest{
		Case:           tc,
		Program:        prog,
		Config:         r.Config,
		ProgramPath:    programPath,
		TraceVerbosity: verbosity,
		UI:             r.UI,
	}

	if !tc.IsFuzz() {
		return spawn(ctx, tc.Name, func(ctx context.Context) (summary.AnyTestSummary, error) {
			span := trace.Begin(trace.FromContext(ctx), trace.ScopeTest, "test:"+tc.Name, trace.CurrentSpan(ctx))
			r.emit(ui.Event{Test: tc.Name, Stage: ui.StageRun})

			res, err := r.Executor.RunTest(trace.WithSpan(ctx, span), req)
			if err != nil {
				span.End("error")
				return summary.AnyTestSummary{}, fmt.Errorf("run %q: %w", tc.Name, err)
			}
			span.End(res.Status.String())
			r.Metrics.Verdict("single", res.Status.String())
			return summary.Single(res), nil
		})
	}

	return spawn(ctx, tc.Name, func(ctx context.Context) (summary.AnyTestSummary, error) {
		res, err := r.RunWithFuzzing(ctx, req)
		if err != nil {
			return summary.AnyTestSummary{}, fmt.Errorf("fuzz %q: %w", tc.Name, err)
		}
		r.Metrics.Verdict("fuzzing", res.Status.String())
		return summary.Fuzzing(res), nil
	})
}

func (r *Runner) emit(ev ui.Event) {
	if r.Progress == nil {
		return
	}
	r.Progress.OnEvent(ev)
}
