package runner

import (
	"context"
	"fmt"
	"strconv"

	"forgerun/internal/config"
	"forgerun/internal/fuzzing"
	"forgerun/internal/summary"
	"forgerun/internal/trace"
	"forgerun/internal/ui"
)

type trialResult struct {
	index   int
	outcome summary.TestCaseSummary
	err     error
}

// RunWithFuzzing runs the trials of one fuzz test and folds them into a
// verdict.
//
// If ctx is already done no trial is started and the verdict is Interrupted.
// Otherwise every trial runs in its own goroutine and results are consumed
// in completion order. The first failing trial closes the stop signal and
// ends the sweep; trials still running are not waited for. An executor
// error or panic in any trial fails the whole fuzz test.
//
// A Passed verdict requires that exactly Runs trials completed; a sweep that
// passed with fewer completed trials is reported as Interrupted.
func (r *Runner) RunWithFuzzing(ctx context.Context, req *TestRequest) (summary.FuzzingSummary, error) {
	name := req.Case.Name
	if ctx.Err() != nil {
		return summary.FuzzingSummary{Status: summary.StatusInterrupted, Name: name}, nil
	}

	params := config.Resolve(req.Case.Config.Fuzzer, req.Config)
	pinned := req.Config != nil && req.Config.PinTrialSeeds

	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeTest, "fuzz:"+name, trace.CurrentSpan(ctx))
	span.WithExtra("runs", strconv.FormatUint(uint64(params.Runs), 10)).
		WithExtra("seed", strconv.FormatUint(params.Seed, 10))
	ctx = trace.WithSpan(ctx, span)

	rng := fuzzing.NewSharedRNG(params.Seed)
	stop := fuzzing.NewStopSignal()

	// Buffered so abandoned trials can always deliver and exit.
	results := make(chan trialResult, params.Runs)
	for i := range int(params.Runs) {
		r.Metrics.TrialStarted()
		go r.runTrial(ctx, req, i, func() uint64 {
			if pinned {
				return fuzzing.DeriveSeed(params.Seed, i)
			}
			return rng.Draw()
		}, stop, results)
	}
	r.emit(ui.Event{Test: name, Stage: ui.StageFuzz, Total: params.Runs})

	trials := make([]summary.TestCaseSummary, 0, params.Runs)
	for range params.Runs {
		res := <-results
		if res.err != nil {
			stop.Stop()
			span.End("error")
			return summary.FuzzingSummary{}, fmt.Errorf("trial #%d: %w", res.index, res.err)
		}
		trials = append(trials, res.outcome)
		r.emit(ui.Event{Test: name, Stage: ui.StageFuzz, Trials: uint32(len(trials)), Total: params.Runs})

		if res.outcome.Status == summary.StatusFailed {
			stop.Stop()
			if uint32(len(trials)) < params.Runs {
				r.Metrics.EarlyStop()
			}
			break
		}
	}

	completed, err := summary.CountCompleted(trials)
	if err != nil {
		span.End("error")
		return summary.FuzzingSummary{}, err
	}
	verdict, err := summary.FromTrials(name, params.Seed, trials)
	if err != nil {
		span.End("error")
		return summary.FuzzingSummary{}, err
	}

	// Trials run concurrently, so a Passed fold may still hide Skipped or
	// missing trials. Only a full sweep can pass.
	if verdict.Status == summary.StatusPassed && completed != params.Runs {
		verdict = summary.FuzzingSummary{Status: summary.StatusInterrupted, Name: name, Seed: params.Seed}
	}

	span.WithExtra("completed", strconv.FormatUint(uint64(completed), 10)).End(verdict.Status.String())
	return verdict, nil
}

func (r *Runner) runTrial(
	ctx context.Context,
	req *TestRequest,
	index int,
	draw func() uint64,
	stop *fuzzing.StopSignal,
	out chan<- trialResult,
) {
	taskName := fmt.Sprintf("%s trial #%d", req.Case.Name, index)
	outcome, err := guard(taskName, func() (summary.TestCaseSummary, error) {
		seed := draw()
		span := trace.Begin(trace.FromContext(ctx), trace.ScopeTrial, "trial#"+strconv.Itoa(index), trace.CurrentSpan(ctx))
		span.WithExtra("seed", strconv.FormatUint(seed, 10))

		res, err := r.Executor.RunTrial(ctx, &TrialRequest{
			TestRequest: *req,
			Index:       index,
			Seed:        seed,
			Stop:        stop,
		})
		if err != nil {
			span.End("error")
			return res, err
		}
		span.End(res.Status.String())
		return res, nil
	})

	label := outcome.Status.String()
	if err != nil {
		label = "error"
	}
	r.Metrics.TrialFinished(label)
	out <- trialResult{index: index, outcome: outcome, err: err}
}
