package config

import (
	"fmt"
	"strings"
)

const (
	// DefaultFuzzerRuns is the number of trials a fuzz test runs when neither
	// the test nor the manifest says otherwise.
	DefaultFuzzerRuns uint32 = 256
	// DefaultCacheDir holds runner state between sessions.
	DefaultCacheDir = ".forgerun_cache"
	// DefaultTraceDir receives saved trace data.
	DefaultTraceDir = "forgerun_trace"
	// DefaultProfiler is the external profiler binary.
	DefaultProfiler = "cairo-profiler"
	// DefaultCoverage is the external coverage binary.
	DefaultCoverage = "cairo-coverage"
)

// ExecutionData selects which execution artifacts are kept after a test.
type ExecutionData struct {
	SaveTrace      bool
	Profile        bool
	Coverage       bool
	AdditionalArgs []string
}

// NeedsRawTrace reports whether trials must record raw VM traces.
// Profiling and coverage both consume saved traces.
func (e ExecutionData) NeedsRawTrace() bool {
	return e.SaveTrace || e.Profile || e.Coverage
}

// ToolsConfig names the external tool binaries.
type ToolsConfig struct {
	Profiler string
	Coverage string
}

// RunnerConfig is the resolved, process-wide runner configuration.
// It is built once and shared read-only.
type RunnerConfig struct {
	FuzzerRuns    uint32
	FuzzerSeed    uint64
	ExitFirst     bool
	Jobs          int
	PinTrialSeeds bool
	CacheDir      string
	TraceDir      string
	Execution     ExecutionData
	Tools         ToolsConfig
}

// Default returns a RunnerConfig with built-in defaults and the given seed.
func Default(seed uint64) *RunnerConfig {
	return &RunnerConfig{
		FuzzerRuns: DefaultFuzzerRuns,
		FuzzerSeed: seed,
		CacheDir:   DefaultCacheDir,
		TraceDir:   DefaultTraceDir,
		Tools: ToolsConfig{
			Profiler: DefaultProfiler,
			Coverage: DefaultCoverage,
		},
	}
}

// Validate checks the invariants the runner depends on.
func (c *RunnerConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("missing runner config")
	}
	if c.FuzzerRuns == 0 {
		return fmt.Errorf("fuzzer runs must be at least 1")
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative, got %d", c.Jobs)
	}
	return nil
}

// FuzzerOverride is a per-test fuzzer configuration. Nil fields fall back to
// the runner defaults.
type FuzzerOverride struct {
	Runs *uint32
	Seed *uint64
}

// FuzzParams are the effective parameters of one fuzz test.
type FuzzParams struct {
	Runs uint32
	Seed uint64
}

// Resolve merges a per-test override with runner defaults field by field.
func Resolve(override *FuzzerOverride, defaults *RunnerConfig) FuzzParams {
	params := FuzzParams{Runs: DefaultFuzzerRuns}
	if defaults != nil {
		params.Runs = defaults.FuzzerRuns
		params.Seed = defaults.FuzzerSeed
	}
	if override != nil {
		if override.Runs != nil {
			params.Runs = *override.Runs
		}
		if override.Seed != nil {
			params.Seed = *override.Seed
		}
	}
	if params.Runs == 0 {
		params.Runs = 1
	}
	return params
}

// TraceVerbosity controls how much of a failing trial's execution trace the
// executor prints.
type TraceVerbosity uint8

const (
	TraceMinimal TraceVerbosity = iota + 1
	TraceStandard
	TraceDetailed
)

// String returns the string representation of TraceVerbosity.
func (v TraceVerbosity) String() string {
	switch v {
	case TraceMinimal:
		return "minimal"
	case TraceStandard:
		return "standard"
	case TraceDetailed:
		return "detailed"
	default:
		return "unknown"
	}
}

// ParseTraceVerbosity converts a flag value to a TraceVerbosity.
// An empty value means no trace output and yields nil.
func ParseTraceVerbosity(s string) (*TraceVerbosity, error) {
	var v TraceVerbosity
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return nil, nil
	case "minimal":
		v = TraceMinimal
	case "standard":
		v = TraceStandard
	case "detailed":
		v = TraceDetailed
	default:
		return nil, fmt.Errorf("invalid trace verbosity: %q (expected: minimal|standard|detailed)", s)
	}
	return &v, nil
}
