package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"forgerun/internal/artifacts"
	"forgerun/internal/cache"
	"forgerun/internal/config"
	"forgerun/internal/execproc"
	"forgerun/internal/metrics"
	"forgerun/internal/observ"
	"forgerun/internal/program"
	"forgerun/internal/runner"
	"forgerun/internal/testcase"
	"forgerun/internal/tools"
	"forgerun/internal/ui"
)

func newTestCmd() *cobra.Command {
	testCmd := &cobra.Command{
		Use:   "test [filter]",
		Short: "Run the tests of the current project",
		Long: `Run every test listed in forgerun.toml, or the ones whose name contains filter.
Tests taking arguments are fuzzed with randomized inputs.`,
		Args: validateTestArgs,
		RunE: runTest,
	}

	f := testCmd.Flags()
	f.String("manifest", "", "path to forgerun.toml (default: search upwards from the working directory)")
	f.Bool("exact", false, "match the filter against full test names")
	f.Uint32("fuzzer-runs", config.DefaultFuzzerRuns, "number of trials per fuzz test")
	f.Uint64("fuzzer-seed", 0, "seed of the fuzzer (default: random)")
	f.BoolP("exit-first", "x", false, "stop after the first failing test")
	f.Int("jobs", 0, "tests run concurrently (0 = GOMAXPROCS)")
	f.Bool("pin-trial-seeds", false, "derive each trial seed from its index instead of draw order")
	f.Bool("ignored", false, "run only ignored tests")
	f.Bool("include-ignored", false, "run ignored tests too")
	f.Bool("rerun-failed", false, "run only the tests that failed in the previous session")
	f.Bool("save-trace-data", false, "save execution traces of passed tests")
	f.Bool("build-profile", false, "build profiles from saved traces")
	f.Bool("coverage", false, "generate a coverage report from saved traces")
	f.String("trace-verbosity", "", "execution trace printed for failing trials (minimal|standard|detailed)")
	f.String("ui", "auto", "progress view (auto|on|off)")
	f.String("metrics-out", "", "write a Prometheus textfile with run metrics")
	return testCmd
}

// validateTestArgs allows one filter, plus any tool arguments after "--".
func validateTestArgs(cmd *cobra.Command, args []string) error {
	positional := args
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		positional = args[:dash]
	}
	if len(positional) > 1 {
		return fmt.Errorf("accepts at most 1 filter, received %d", len(positional))
	}
	return nil
}

type testOptions struct {
	filter         string
	exact          bool
	manifest       string
	ignored        runner.IgnoredMode
	rerunFailed    bool
	verbosity      *config.TraceVerbosity
	ui             uiMode
	metricsOut     string
	timings        bool
	quiet          bool
	color          string
	additionalArgs []string
}

func readTestOptions(cmd *cobra.Command, args []string) (testOptions, error) {
	var opts testOptions
	positional := args
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		positional = args[:dash]
		opts.additionalArgs = args[dash:]
	}
	if len(positional) > 0 {
		opts.filter = positional[0]
	}
	flags := cmd.Flags()
	var err error
	if opts.exact, err = flags.GetBool("exact"); err != nil {
		return opts, err
	}
	if opts.exact && opts.filter == "" {
		return opts, errors.New("--exact requires a test name filter")
	}
	if opts.manifest, err = flags.GetString("manifest"); err != nil {
		return opts, err
	}
	onlyIgnored, err := flags.GetBool("ignored")
	if err != nil {
		return opts, err
	}
	includeIgnored, err := flags.GetBool("include-ignored")
	if err != nil {
		return opts, err
	}
	switch {
	case onlyIgnored && includeIgnored:
		return opts, errors.New("--ignored and --include-ignored are mutually exclusive")
	case onlyIgnored:
		opts.ignored = runner.OnlyIgnored
	case includeIgnored:
		opts.ignored = runner.IncludeIgnored
	}
	if opts.rerunFailed, err = flags.GetBool("rerun-failed"); err != nil {
		return opts, err
	}
	verbosity, err := flags.GetString("trace-verbosity")
	if err != nil {
		return opts, err
	}
	if opts.verbosity, err = config.ParseTraceVerbosity(verbosity); err != nil {
		return opts, err
	}
	uiValue, err := flags.GetString("ui")
	if err != nil {
		return opts, err
	}
	if opts.ui, err = readUIMode(uiValue); err != nil {
		return opts, err
	}
	if opts.metricsOut, err = flags.GetString("metrics-out"); err != nil {
		return opts, err
	}
	root := cmd.Root().PersistentFlags()
	if opts.timings, err = root.GetBool("timings"); err != nil {
		return opts, err
	}
	if opts.quiet, err = root.GetBool("quiet"); err != nil {
		return opts, err
	}
	if opts.color, err = root.GetString("color"); err != nil {
		return opts, err
	}
	return opts, nil
}

// applyFlagOverrides copies explicitly set flags over manifest values.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.RunnerConfig) error {
	flags := cmd.Flags()
	if flags.Changed("fuzzer-runs") {
		runs, err := flags.GetUint32("fuzzer-runs")
		if err != nil {
			return err
		}
		cfg.FuzzerRuns = runs
	}
	if flags.Changed("fuzzer-seed") {
		seed, err := flags.GetUint64("fuzzer-seed")
		if err != nil {
			return err
		}
		cfg.FuzzerSeed = seed
	}
	if flags.Changed("jobs") {
		jobs, err := flags.GetInt("jobs")
		if err != nil {
			return err
		}
		cfg.Jobs = jobs
	}
	for name, dst := range map[string]*bool{
		"exit-first":      &cfg.ExitFirst,
		"pin-trial-seeds": &cfg.PinTrialSeeds,
		"save-trace-data": &cfg.Execution.SaveTrace,
		"build-profile":   &cfg.Execution.Profile,
		"coverage":        &cfg.Execution.Coverage,
	} {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetBool(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}

func runTest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	cleanupTrace, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanupTrace()
	cleanupProf, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer cleanupProf()
	ctx = cmd.Context()

	opts, err := readTestOptions(cmd, args)
	if err != nil {
		return err
	}
	out := ui.New(ui.Options{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr(), Color: opts.color, Quiet: opts.quiet})
	timer := observ.NewTimer()

	var manifest *config.Manifest
	if err := timer.Time("manifest", func() error {
		manifest, err = loadManifest(opts.manifest)
		return err
	}); err != nil {
		return err
	}
	cfg := manifest.Config
	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return err
	}
	if !manifest.SeedSet && !cmd.Flags().Changed("fuzzer-seed") {
		cfg.FuzzerSeed = rand.Uint64()
	}
	if len(opts.additionalArgs) > 0 {
		cfg.Execution.AdditionalArgs = append(cfg.Execution.AdditionalArgs, opts.additionalArgs...)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	programPath := manifest.Program
	if programPath != "" && !filepath.IsAbs(programPath) {
		programPath = filepath.Join(manifest.Root, programPath)
	}
	var prog *program.Program
	var cases []*testcase.TestCase
	if err := timer.Time("resolve", func() error {
		if programPath == "" {
			return errors.New("manifest does not name a program ([executor] program)")
		}
		if prog, err = program.Load(programPath); err != nil {
			return err
		}
		cases = testcase.FromManifest(manifest.Tests)
		return testcase.Resolve(cases, prog)
	}); err != nil {
		return err
	}

	exec, err := execproc.New(manifest.Executor, manifest.Root)
	if err != nil {
		return err
	}
	store, err := cache.Open(underRoot(manifest.Root, cfg.CacheDir))
	if err != nil {
		return err
	}
	filter := &runner.NameFilter{Pattern: opts.filter, Exact: opts.exact, Ignored: opts.ignored}
	if opts.rerunFailed {
		failed, err := store.LoadFailed()
		if err != nil {
			return err
		}
		if len(failed) > 0 {
			filter.Only = failed
		}
	}

	useTUI := shouldUseTUI(opts.ui) && !opts.quiet
	sessionUI := out
	if useTUI {
		sessionUI = ui.New(ui.Options{Out: io.Discard, Err: cmd.ErrOrStderr(), Color: opts.color})
	}
	m := metrics.New()
	session := &runner.Session{
		Runner: &runner.Runner{
			Executor: exec,
			Config:   cfg,
			UI:       sessionUI,
			Metrics:  m,
		},
		Pipeline: &artifacts.Pipeline{
			TraceDir: underRoot(manifest.Root, cfg.TraceDir),
			Profiler: tools.ExecProfiler{Binary: cfg.Tools.Profiler, OutputDir: underRoot(manifest.Root, "profile"), Stdout: cmd.OutOrStdout()},
			Coverage: tools.ExecCoverage{Binary: cfg.Tools.Coverage, Stdout: cmd.OutOrStdout()},
			UI:       sessionUI,
		},
		Cache:  store,
		Filter: filter,
	}

	out.Println(ui.PlainMessage(fmt.Sprintf("Collected %d test(s) from %s", len(cases), filepath.Base(programPath))))
	out.Println(ui.PlainMessage(fmt.Sprintf("Running tests with fuzzer seed %d", cfg.FuzzerSeed)))

	var result *runner.TargetSummary
	if err := timer.Time("run", func() error {
		if useTUI {
			result, err = runSessionWithUI(ctx, "forgerun test", session, cases, prog, programPath, opts.verbosity)
		} else {
			result, err = session.Run(ctx, cases, prog, programPath, opts.verbosity)
		}
		return err
	}); err != nil {
		return err
	}

	if useTUI {
		for _, res := range result.Results {
			out.Println(ui.TestResultMessage{Summary: res})
		}
	}
	printTally(out, result)
	if opts.timings {
		out.Println(ui.PlainMessage(strings.TrimRight(timer.Summary(), "\n")))
	}
	if opts.metricsOut != "" {
		if err := m.WriteTextfile(opts.metricsOut); err != nil {
			return err
		}
	}
	if failed := result.Failed(); len(failed) > 0 {
		return errTestsFailed
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

func printTally(out *ui.UI, result *runner.TargetSummary) {
	out.Println(ui.PlainMessage(""))
	out.Println(ui.PlainMessage(result.Line()))
	failed := result.Failed()
	if len(failed) == 0 {
		return
	}
	lines := []string{"", "Failures:"}
	for _, name := range failed {
		lines = append(lines, "    "+name)
	}
	out.Println(ui.PlainMessage(strings.Join(lines, "\n")))
}

func loadManifest(path string) (*config.Manifest, error) {
	if path != "" {
		return config.DecodeManifest(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.LoadManifest(wd)
}

func underRoot(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
