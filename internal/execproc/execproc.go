// Package execproc runs tests by spawning the configured executor command,
// one process per test or fuzz trial.
//
// The child learns what to run from FORGE_* environment variables and
// reports back through its exit code, its standard error and a few
// key=value lines on standard output:
//
//	gas_used=<n>     gas consumed by the run
//	arg=<value>      one line per generated fuzz argument, in order
//
// When execution traces are requested the child writes its trace to the
// file named by FORGE_TRACE_OUT.
package execproc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"forgerun/internal/config"
	"forgerun/internal/program"
	"forgerun/internal/runner"
	"forgerun/internal/summary"
)

// Environment variables passed to the executor command.
const (
	EnvTestName        = "FORGE_TEST_NAME"
	EnvTestEntry       = "FORGE_TEST_ENTRY"
	EnvProgram         = "FORGE_PROGRAM"
	EnvTrialIndex      = "FORGE_TRIAL_INDEX"
	EnvFuzzSeed        = "FORGE_FUZZ_SEED"
	EnvFuzzArgs        = "FORGE_FUZZ_ARGS"
	EnvTraceVerbosity  = "FORGE_TRACE_VERBOSITY"
	EnvTraceOut        = "FORGE_TRACE_OUT"
	EnvExpectedFailure = "FORGE_EXPECTED_FAILURE"
)

const defaultTailBytes = 4 << 10

// Executor implements runner.Executor on top of an external command.
type Executor struct {
	// Command is the argv of the executor; Command[0] is resolved on PATH.
	Command []string
	// Dir is the working directory of the child. Empty means the current one.
	Dir string
	// TailBytes bounds how much of stderr ends up in a failure message.
	TailBytes int
	// WaitDelay is how long a cancelled child gets before it is killed.
	WaitDelay time.Duration
}

var _ runner.Executor = (*Executor)(nil)

// New returns an executor for argv.
func New(argv []string, dir string) (*Executor, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("executor command is empty")
	}
	return &Executor{Command: argv, Dir: dir}, nil
}

// RunTest implements runner.Executor.
func (e *Executor) RunTest(ctx context.Context, req *runner.TestRequest) (summary.TestCaseSummary, error) {
	return e.run(ctx, ctx, req, nil)
}

// RunTrial implements runner.Executor. A trial whose stop signal is already
// closed is not started; one stopped while running is killed. Both report
// Skipped.
func (e *Executor) RunTrial(ctx context.Context, req *runner.TrialRequest) (summary.TestCaseSummary, error) {
	if ctx.Err() != nil {
		return summary.TestCaseSummary{Status: summary.StatusInterrupted, Name: req.Case.Name, Seed: req.Seed}, nil
	}
	if req.Stop.Stopped() {
		return summary.TestCaseSummary{Status: summary.StatusSkipped, Name: req.Case.Name, Seed: req.Seed}, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if req.Stop != nil {
		go func() {
			select {
			case <-req.Stop.Done():
				cancel()
			case <-runCtx.Done():
			}
		}()
	}
	return e.run(ctx, runCtx, &req.TestRequest, req)
}

// run executes one child process. parent is the cancellation signal of the
// session, runCtx additionally ends when a trial is stopped.
func (e *Executor) run(parent, runCtx context.Context, req *runner.TestRequest, trial *runner.TrialRequest) (summary.TestCaseSummary, error) {
	tc := req.Case
	res := summary.TestCaseSummary{Name: tc.Name}
	if trial != nil {
		res.Seed = trial.Seed
	}
	if parent.Err() != nil {
		res.Status = summary.StatusInterrupted
		return res, nil
	}

	bin, err := exec.LookPath(e.Command[0])
	if err != nil {
		return res, fmt.Errorf("executor %q: %w", e.Command[0], err)
	}

	env := os.Environ()
	env = append(env,
		EnvTestName+"="+tc.Name,
		EnvTestEntry+"="+tc.Entry,
		EnvProgram+"="+req.ProgramPath,
	)
	if trial != nil {
		env = append(env,
			EnvTrialIndex+"="+strconv.Itoa(trial.Index),
			EnvFuzzSeed+"="+strconv.FormatUint(trial.Seed, 10),
			EnvFuzzArgs+"="+joinTypes(tc.Args),
		)
	}
	if req.TraceVerbosity != nil {
		env = append(env, EnvTraceVerbosity+"="+req.TraceVerbosity.String())
	}
	if tc.Config.ExpectedFailure != "" {
		env = append(env, EnvExpectedFailure+"="+tc.Config.ExpectedFailure)
	}

	var traceOut string
	if wantsTrace(req.Config) {
		dir, err := os.MkdirTemp("", "forgerun-trace-*")
		if err != nil {
			return res, fmt.Errorf("trace scratch dir: %w", err)
		}
		defer os.RemoveAll(dir)
		traceOut = filepath.Join(dir, "trace.bin")
		env = append(env, EnvTraceOut+"="+traceOut)
	}

	// #nosec G204 -- command comes from the manifest
	cmd := exec.CommandContext(runCtx, bin, e.Command[1:]...)
	cmd.Dir = e.Dir
	cmd.Env = env
	cmd.WaitDelay = e.waitDelay()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	out := parseOutput(stdout.Bytes())
	res.GasUsed = out.gas
	res.Arguments = out.args

	switch {
	case parent.Err() != nil:
		res.Status = summary.StatusInterrupted
		return res, nil
	case runCtx.Err() != nil:
		res.Status = summary.StatusSkipped
		return res, nil
	}

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return res, fmt.Errorf("run executor for %q: %w", tc.Name, runErr)
	}
	failed := runErr != nil
	msg := tail(stderr.String(), e.tailBytes())

	res.Status, res.Msg = verdict(failed, msg, tc.Config.ExpectedFailure, exitErr)
	if res.Status == summary.StatusPassed && traceOut != "" {
		data, err := readTrace(traceOut)
		if err != nil {
			return res, fmt.Errorf("read trace of %q: %w", tc.Name, err)
		}
		if data != nil {
			res.TraceData = &summary.TraceData{TestName: tc.Name, Seed: res.Seed, Payload: data}
		}
	}
	return res, nil
}

func verdict(failed bool, msg, expected string, exitErr *exec.ExitError) (summary.Status, string) {
	if expected == "" {
		if !failed {
			return summary.StatusPassed, ""
		}
		if msg == "" {
			msg = fmt.Sprintf("executor exited with status %d", exitErr.ExitCode())
		}
		return summary.StatusFailed, msg
	}

	if !failed {
		return summary.StatusFailed, fmt.Sprintf("Expected failure with %q, but the test passed", expected)
	}
	if strings.Contains(msg, expected) {
		return summary.StatusPassed, ""
	}
	return summary.StatusFailed, fmt.Sprintf("Incorrect failure data\nExpected: %q\nActual:\n%s", expected, msg)
}

type output struct {
	gas  uint64
	args []string
}

func parseOutput(b []byte) output {
	var out output
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "gas_used":
			if n, err := strconv.ParseUint(value, 10, 64); err == nil {
				out.gas = n
			}
		case "arg":
			out.args = append(out.args, value)
		}
	}
	return out
}

func readTrace(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func wantsTrace(cfg *config.RunnerConfig) bool {
	return cfg != nil && cfg.Execution.NeedsRawTrace()
}

func joinTypes(args []program.ConcreteTypeLongID) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, ",")
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	s = s[len(s)-n:]
	if i := strings.IndexByte(s, '\n'); i >= 0 && i < len(s)-1 {
		s = s[i+1:]
	}
	return "..." + "\n" + s
}

func (e *Executor) tailBytes() int {
	if e.TailBytes > 0 {
		return e.TailBytes
	}
	return defaultTailBytes
}

func (e *Executor) waitDelay() time.Duration {
	if e.WaitDelay > 0 {
		return e.WaitDelay
	}
	return 2 * time.Second
}
