package runner

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"forgerun/internal/config"
	"forgerun/internal/fuzzing"
	"forgerun/internal/metrics"
	"forgerun/internal/summary"
	"forgerun/internal/testcase"
	"forgerun/internal/ui"
)

type fakeExecutor struct {
	test  func(ctx context.Context, req *TestRequest) (summary.TestCaseSummary, error)
	trial func(ctx context.Context, req *TrialRequest) (summary.TestCaseSummary, error)

	testCalls  atomic.Int32
	trialCalls atomic.Int32

	mu    sync.Mutex
	seeds map[int]uint64
	stops []*fuzzing.StopSignal
}

func (f *fakeExecutor) RunTest(ctx context.Context, req *TestRequest) (summary.TestCaseSummary, error) {
	f.testCalls.Add(1)
	if f.test == nil {
		return summary.TestCaseSummary{Status: summary.StatusPassed, Name: req.Case.Name, GasUsed: 10}, nil
	}
	return f.test(ctx, req)
}

func (f *fakeExecutor) RunTrial(ctx context.Context, req *TrialRequest) (summary.TestCaseSummary, error) {
	f.trialCalls.Add(1)
	f.mu.Lock()
	if f.seeds == nil {
		f.seeds = make(map[int]uint64)
	}
	f.seeds[req.Index] = req.Seed
	f.stops = append(f.stops, req.Stop)
	f.mu.Unlock()
	if f.trial == nil {
		return passed(req), nil
	}
	return f.trial(ctx, req)
}

func (f *fakeExecutor) firstStop() *fuzzing.StopSignal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops[0]
}

func passed(req *TrialRequest) summary.TestCaseSummary {
	return summary.TestCaseSummary{
		Status:  summary.StatusPassed,
		Name:    req.Case.Name,
		GasUsed: 100 + uint64(req.Index),
		Seed:    req.Seed,
	}
}

func fuzzCase(name string) *testcase.TestCase {
	return &testcase.TestCase{Name: name, Entry: name, Config: testcase.Config{Fuzz: true}}
}

func newRunner(exec Executor, runs uint32, seed uint64) *Runner {
	cfg := config.Default(seed)
	cfg.FuzzerRuns = runs
	return &Runner{Executor: exec, Config: cfg, UI: ui.Discard()}
}

func request(r *Runner, tc *testcase.TestCase) *TestRequest {
	return &TestRequest{Case: tc, Config: r.Config, UI: r.UI}
}

func TestRunWithFuzzingAllPassed(t *testing.T) {
	exec := &fakeExecutor{}
	r := newRunner(exec, 5, 7)

	got, err := r.RunWithFuzzing(context.Background(), request(r, fuzzCase("t::fuzz")))
	if err != nil {
		t.Fatalf("RunWithFuzzing: %v", err)
	}
	if got.Status != summary.StatusPassed || got.Runs != 5 || got.Seed != 7 {
		t.Fatalf("verdict = %+v, want passed with 5 runs and seed 7", got)
	}
	if got.Gas.Min != 100 || got.Gas.Max != 104 {
		t.Fatalf("gas = %+v", got.Gas)
	}
	if n := exec.trialCalls.Load(); n != 5 {
		t.Fatalf("trials = %d, want 5", n)
	}
	if len(exec.stops) != 5 || exec.stops[0] != exec.stops[4] {
		t.Fatal("trials must share one stop signal")
	}
	if exec.stops[0].Stopped() {
		t.Fatal("stop signal closed without a failure")
	}
}

func TestRunWithFuzzingStopsAtFirstFailure(t *testing.T) {
	finished := make(chan struct{}, 8)
	exec := &fakeExecutor{}
	exec.trial = func(ctx context.Context, req *TrialRequest) (summary.TestCaseSummary, error) {
		if req.Index == 2 {
			return summary.TestCaseSummary{
				Status:    summary.StatusFailed,
				Name:      req.Case.Name,
				Msg:       "assertion failed",
				Arguments: []string{"3"},
			}, nil
		}
		defer func() { finished <- struct{}{} }()
		select {
		case <-req.Stop.Done():
			return summary.TestCaseSummary{Status: summary.StatusSkipped, Name: req.Case.Name}, nil
		case <-time.After(10 * time.Second):
			return passed(req), nil
		}
	}
	reg := prometheus.NewRegistry()
	m, err := metrics.NewWithRegisterer(reg)
	if err != nil {
		t.Fatal(err)
	}
	r := newRunner(exec, 8, 1)
	r.Metrics = m

	start := time.Now()
	got, err := r.RunWithFuzzing(context.Background(), request(r, fuzzCase("t::fuzz")))
	if err != nil {
		t.Fatalf("RunWithFuzzing: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("orchestrator waited for abandoned trials")
	}
	if got.Status != summary.StatusFailed || got.Msg != "assertion failed" || !slices.Equal(got.Arguments, []string{"3"}) {
		t.Fatalf("verdict = %+v", got)
	}
	if !exec.firstStop().Stopped() {
		t.Fatal("stop signal not closed after failure")
	}
	for range 7 {
		select {
		case <-finished:
		case <-time.After(5 * time.Second):
			t.Fatal("abandoned trial did not observe the stop signal")
		}
	}

	const want = `
# HELP forgerun_fuzz_early_stops_total Fuzz tests whose sweep stopped at the first failing trial.
# TYPE forgerun_fuzz_early_stops_total counter
forgerun_fuzz_early_stops_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "forgerun_fuzz_early_stops_total"); err != nil {
		t.Fatal(err)
	}
}

func TestRunWithFuzzingCancelledBeforeStart(t *testing.T) {
	exec := &fakeExecutor{}
	r := newRunner(exec, 5, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := r.RunWithFuzzing(ctx, request(r, fuzzCase("t::fuzz")))
	if err != nil {
		t.Fatalf("RunWithFuzzing: %v", err)
	}
	if got.Status != summary.StatusInterrupted || got.Name != "t::fuzz" {
		t.Fatalf("verdict = %+v, want interrupted", got)
	}
	if n := exec.trialCalls.Load(); n != 0 {
		t.Fatalf("trials = %d, want 0", n)
	}
}

func TestRunWithFuzzingIncompleteSweepIsInterrupted(t *testing.T) {
	exec := &fakeExecutor{}
	exec.trial = func(_ context.Context, req *TrialRequest) (summary.TestCaseSummary, error) {
		if req.Index == 0 {
			return summary.TestCaseSummary{Status: summary.StatusSkipped, Name: req.Case.Name}, nil
		}
		return passed(req), nil
	}
	r := newRunner(exec, 4, 1)

	got, err := r.RunWithFuzzing(context.Background(), request(r, fuzzCase("t::fuzz")))
	if err != nil {
		t.Fatalf("RunWithFuzzing: %v", err)
	}
	if got.Status != summary.StatusInterrupted {
		t.Fatalf("status = %v, want interrupted", got.Status)
	}
}

func TestRunWithFuzzingPerTestOverride(t *testing.T) {
	exec := &fakeExecutor{}
	r := newRunner(exec, 50, 1)
	runs, seed := uint32(3), uint64(99)
	tc := fuzzCase("t::fuzz")
	tc.Config.Fuzzer = &config.FuzzerOverride{Runs: &runs, Seed: &seed}

	got, err := r.RunWithFuzzing(context.Background(), request(r, tc))
	if err != nil {
		t.Fatal(err)
	}
	if got.Runs != 3 || got.Seed != 99 {
		t.Fatalf("verdict = %+v, want 3 runs with seed 99", got)
	}
}

func TestRunWithFuzzingTaskFailures(t *testing.T) {
	boom := errors.New("executor crashed")
	cases := []struct {
		name  string
		trial func(context.Context, *TrialRequest) (summary.TestCaseSummary, error)
		check func(t *testing.T, err error)
	}{
		{
			name: "error",
			trial: func(_ context.Context, req *TrialRequest) (summary.TestCaseSummary, error) {
				if req.Index == 1 {
					return summary.TestCaseSummary{}, boom
				}
				return passed(req), nil
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, boom) {
					t.Fatalf("err = %v, want %v", err, boom)
				}
			},
		},
		{
			name: "panic",
			trial: func(_ context.Context, req *TrialRequest) (summary.TestCaseSummary, error) {
				if req.Index == 1 {
					panic("index out of range")
				}
				return passed(req), nil
			},
			check: func(t *testing.T, err error) {
				var pe *TaskPanicError
				if !errors.As(err, &pe) || pe.Value != "index out of range" {
					t.Fatalf("err = %v, want TaskPanicError", err)
				}
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			exec := &fakeExecutor{trial: c.trial}
			r := newRunner(exec, 4, 1)
			_, err := r.RunWithFuzzing(context.Background(), request(r, fuzzCase("t::fuzz")))
			if err == nil {
				t.Fatal("expected an error")
			}
			c.check(t, err)
			if !exec.firstStop().Stopped() {
				t.Fatal("stop signal not closed after task failure")
			}
		})
	}
}

func TestRunWithFuzzingSeedsAreReproducible(t *testing.T) {
	collect := func(pinned bool) map[int]uint64 {
		exec := &fakeExecutor{}
		r := newRunner(exec, 16, 42)
		r.Config.PinTrialSeeds = pinned
		if _, err := r.RunWithFuzzing(context.Background(), request(r, fuzzCase("t::fuzz"))); err != nil {
			t.Fatal(err)
		}
		return exec.seeds
	}
	sorted := func(m map[int]uint64) []uint64 {
		out := make([]uint64, 0, len(m))
		for _, v := range m {
			out = append(out, v)
		}
		slices.Sort(out)
		return out
	}

	// Shared draws: the same multiset in any assignment order.
	if a, b := sorted(collect(false)), sorted(collect(false)); !slices.Equal(a, b) {
		t.Fatalf("shared seeds differ between runs:\n%v\n%v", a, b)
	}

	pinned := collect(true)
	for i := range 16 {
		if want := fuzzing.DeriveSeed(42, i); pinned[i] != want {
			t.Fatalf("trial %d seed = %d, want %d", i, pinned[i], want)
		}
	}
}

func TestRunForTestCaseDispatch(t *testing.T) {
	exec := &fakeExecutor{}
	r := newRunner(exec, 3, 1)

	single, err := r.RunForTestCase(context.Background(), &testcase.TestCase{Name: "t::plain"}, nil, "", nil).Wait()
	if err != nil {
		t.Fatal(err)
	}
	if single.Kind != summary.KindSingle || single.Status() != summary.StatusPassed {
		t.Fatalf("single = %+v", single)
	}
	if exec.testCalls.Load() != 1 || exec.trialCalls.Load() != 0 {
		t.Fatalf("calls: test=%d trial=%d", exec.testCalls.Load(), exec.trialCalls.Load())
	}

	task := r.RunForTestCase(context.Background(), fuzzCase("t::fuzz"), nil, "", nil)
	if task.Name() != "t::fuzz" {
		t.Fatalf("task name = %q", task.Name())
	}
	fuzz, err := task.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if fuzz.Kind != summary.KindFuzzing || fuzz.Fuzzing.Runs != 3 {
		t.Fatalf("fuzz = %+v", fuzz)
	}
	select {
	case <-task.Done():
	default:
		t.Fatal("Done not closed after Wait")
	}
}

func TestRunForTestCasePanicIsReported(t *testing.T) {
	exec := &fakeExecutor{test: func(context.Context, *TestRequest) (summary.TestCaseSummary, error) {
		panic(errors.New("nil program"))
	}}
	r := newRunner(exec, 1, 1)

	_, err := r.RunForTestCase(context.Background(), &testcase.TestCase{Name: "t::plain"}, nil, "", nil).Wait()
	var pe *TaskPanicError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want TaskPanicError", err)
	}
	if pe.Unwrap() == nil || pe.Unwrap().Error() != "nil program" {
		t.Fatalf("unwrap = %v", pe.Unwrap())
	}
}

func TestTaskCancel(t *testing.T) {
	exec := &fakeExecutor{test: func(ctx context.Context, req *TestRequest) (summary.TestCaseSummary, error) {
		<-ctx.Done()
		return summary.TestCaseSummary{Status: summary.StatusInterrupted, Name: req.Case.Name}, nil
	}}
	r := newRunner(exec, 1, 1)

	task := r.RunForTestCase(context.Background(), &testcase.TestCase{Name: "t::slow"}, nil, "", nil)
	task.Cancel()
	res, err := task.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if res.Status() != summary.StatusInterrupted {
		t.Fatalf("status = %v, want interrupted", res.Status())
	}
}
