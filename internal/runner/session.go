package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"forgerun/internal/artifacts"
	"forgerun/internal/cache"
	"forgerun/internal/config"
	"forgerun/internal/program"
	"forgerun/internal/summary"
	"forgerun/internal/testcase"
	"forgerun/internal/trace"
	"forgerun/internal/ui"
)

// Session runs a set of test cases and the post-run artifact steps.
type Session struct {
	Runner   *Runner
	Pipeline *artifacts.Pipeline
	// Cache receives the names of failed tests. Optional.
	Cache *cache.Store
	// Filter defaults to a NameFilter that matches everything and skips
	// ignored tests.
	Filter TestCaseFilter
}

// TargetSummary is the outcome of a session. Results are in input order
// and hold only the tests that were run or reported as ignored.
type TargetSummary struct {
	Results    []summary.AnyTestSummary
	TracePaths []string
	// Filtered counts tests dropped by the filter.
	Filtered int
	Elapsed  time.Duration
}

// Count returns how many results have status s.
func (t *TargetSummary) Count(s summary.Status) int {
	n := 0
	for i := range t.Results {
		if t.Results[i].Status() == s {
			n++
		}
	}
	return n
}

// Failed returns the names of failed tests in result order.
func (t *TargetSummary) Failed() []string {
	var names []string
	for i := range t.Results {
		if t.Results[i].Status() == summary.StatusFailed {
			names = append(names, t.Results[i].Name())
		}
	}
	return names
}

// Line renders the closing tally.
func (t *TargetSummary) Line() string {
	return fmt.Sprintf("Tests: %d passed, %d failed, %d ignored, %d interrupted, %d filtered out",
		t.Count(summary.StatusPassed),
		t.Count(summary.StatusFailed),
		t.Count(summary.StatusIgnored),
		t.Count(summary.StatusInterrupted),
		t.Filtered,
	)
}

// Run executes cases concurrently, prints each result as it finishes, then
// saves traces, profiles and coverage in test order. With ExitFirst, the
// first failure cancels every test not yet finished; those report
// Interrupted. An executor error aborts the session.
func (s *Session) Run(
	ctx context.Context,
	cases []*testcase.TestCase,
	prog *program.Program,
	programPath string,
	verbosity *config.TraceVerbosity,
) (*TargetSummary, error) {
	if s.Runner == nil {
		return nil, errors.New("session has no runner")
	}
	started := time.Now()
	cfg := s.Runner.Config
	if cfg == nil {
		cfg = config.Default(0)
	}
	u := s.Runner.UI

	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeSession, "session", trace.CurrentSpan(ctx))
	span.WithExtra("tests", strconv.Itoa(len(cases)))
	ctx = trace.WithSpan(ctx, span)

	out := &TargetSummary{}
	slots := make([]*summary.AnyTestSummary, len(cases))

	g, gctx := errgroup.WithContext(ctx)
	jobs := cfg.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(jobs)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	filter := s.Filter
	if filter == nil {
		filter = &NameFilter{}
	}

	for i, tc := range cases {
		if rep, ok := filter.(IgnoreReporter); ok && rep.ShouldBeIgnored(tc) {
			res := summary.Single(summary.TestCaseSummary{Status: summary.StatusIgnored, Name: tc.Name})
			slots[i] = &res
			s.Runner.Metrics.Verdict("single", res.Status().String())
			s.Runner.emit(ui.Event{Test: tc.Name, Stage: ui.StageDone, Status: res.Status().String()})
			u.Println(ui.TestResultMessage{Summary: res})
			continue
		}
		if !filter.ShouldBeRun(tc) {
			out.Filtered++
			s.Runner.emit(ui.Event{Test: tc.Name, Stage: ui.StageDone, Status: "filtered"})
			continue
		}

		s.Runner.emit(ui.Event{Test: tc.Name, Stage: ui.StageQueued})
		g.Go(func() error {
			testStarted := time.Now()
			res, err := s.Runner.RunForTestCase(runCtx, tc, prog, programPath, verbosity).Wait()
			if err != nil {
				return err
			}
			slots[i] = &res
			s.Runner.emit(ui.Event{
				Test:    tc.Name,
				Stage:   ui.StageDone,
				Status:  res.Status().String(),
				Elapsed: time.Since(testStarted),
			})
			u.Println(ui.TestResultMessage{Summary: res})
			if cfg.ExitFirst && res.Status() == summary.StatusFailed {
				cancelRun()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.End("error")
		return nil, err
	}

	for _, res := range slots {
		if res == nil {
			continue
		}
		out.Results = append(out.Results, *res)
	}

	// ctx, not runCtx: ExitFirst does not cancel artifacts.
	for i := range out.Results {
		res := out.Results[i]
		if s.Pipeline == nil {
			continue
		}
		s.Runner.emit(ui.Event{Test: res.Name(), Stage: ui.StageArtifacts})
		path, saved, err := s.Pipeline.MaybeSaveTraceAndProfile(ctx, res, cfg.Execution)
		if err != nil {
			span.End("error")
			return nil, err
		}
		if saved {
			out.TracePaths = append(out.TracePaths, path)
		}
		s.Runner.emit(ui.Event{Test: res.Name(), Stage: ui.StageDone, Status: res.Status().String()})
	}
	if s.Pipeline != nil {
		if err := s.Pipeline.MaybeGenerateCoverage(ctx, cfg.Execution, out.TracePaths); err != nil {
			span.End("error")
			return nil, err
		}
	}

	if err := s.Cache.SaveFailed(out.Failed()); err != nil {
		u.Warn(fmt.Sprintf("could not update failed test cache: %v", err))
	}

	out.Elapsed = time.Since(started)
	span.WithExtra("failed", strconv.Itoa(out.Count(summary.StatusFailed))).End("")
	return out, nil
}
