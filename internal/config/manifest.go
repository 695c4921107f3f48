package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ManifestName is the file the runner looks for.
const ManifestName = "forgerun.toml"

// ErrNoManifest is returned when no manifest exists in the directory tree.
var ErrNoManifest = errors.New("no " + ManifestName + " found")

// Manifest is a decoded forgerun.toml.
type Manifest struct {
	Path   string
	Root   string
	Config *RunnerConfig
	// SeedSet is false when the manifest leaves the seed to the runner.
	SeedSet  bool
	Program  string
	Executor []string
	Tests    []TestEntry
}

// TestEntry describes one test case in the manifest.
type TestEntry struct {
	Name            string
	Entry           string
	Fuzz            bool
	Runs            *uint32
	Seed            *uint64
	Ignored         bool
	ExpectedFailure string
}

type manifestFile struct {
	Runner    runnerSection    `toml:"runner"`
	Execution executionSection `toml:"execution"`
	Tools     toolsSection     `toml:"tools"`
	Executor  executorSection  `toml:"executor"`
	Tests     []testSection    `toml:"test"`
}

type runnerSection struct {
	FuzzerRuns    int64  `toml:"fuzzer_runs"`
	FuzzerSeed    uint64 `toml:"fuzzer_seed"`
	ExitFirst     bool   `toml:"exit_first"`
	Jobs          int    `toml:"jobs"`
	PinTrialSeeds bool   `toml:"pin_trial_seeds"`
	CacheDir      string `toml:"cache_dir"`
	TraceDir      string `toml:"trace_dir"`
}

type executionSection struct {
	SaveTraceData  bool     `toml:"save_trace_data"`
	BuildProfile   bool     `toml:"build_profile"`
	Coverage       bool     `toml:"coverage"`
	AdditionalArgs []string `toml:"additional_args"`
}

type toolsSection struct {
	Profiler string `toml:"profiler"`
	Coverage string `toml:"coverage"`
}

type executorSection struct {
	Command []string `toml:"command"`
	Program string   `toml:"program"`
}

type testSection struct {
	Name            string  `toml:"name"`
	Entry           string  `toml:"entry"`
	Fuzz            bool    `toml:"fuzz"`
	Runs            *int64  `toml:"runs"`
	Seed            *uint64 `toml:"seed"`
	Ignored         bool    `toml:"ignored"`
	ExpectedFailure string  `toml:"expected_failure"`
}

// FindManifest walks up from startDir looking for forgerun.toml.
func FindManifest(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// LoadManifest finds and decodes the manifest above startDir.
func LoadManifest(startDir string) (*Manifest, error) {
	path, ok, err := FindManifest(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoManifest
	}
	return DecodeManifest(path)
}

// DecodeManifest decodes the manifest at path.
func DecodeManifest(path string) (*Manifest, error) {
	var raw manifestFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}

	cfg := Default(0)
	m := &Manifest{
		Path:   path,
		Root:   filepath.Dir(path),
		Config: cfg,
	}

	if meta.IsDefined("runner", "fuzzer_runs") {
		runs, err := positiveRuns(raw.Runner.FuzzerRuns)
		if err != nil {
			return nil, fmt.Errorf("%s: [runner].fuzzer_runs: %w", path, err)
		}
		cfg.FuzzerRuns = runs
	}
	if meta.IsDefined("runner", "fuzzer_seed") {
		cfg.FuzzerSeed = raw.Runner.FuzzerSeed
		m.SeedSet = true
	}
	cfg.ExitFirst = raw.Runner.ExitFirst
	cfg.Jobs = raw.Runner.Jobs
	cfg.PinTrialSeeds = raw.Runner.PinTrialSeeds
	if dir := strings.TrimSpace(raw.Runner.CacheDir); dir != "" {
		cfg.CacheDir = dir
	}
	if dir := strings.TrimSpace(raw.Runner.TraceDir); dir != "" {
		cfg.TraceDir = dir
	}

	cfg.Execution = ExecutionData{
		SaveTrace:      raw.Execution.SaveTraceData,
		Profile:        raw.Execution.BuildProfile,
		Coverage:       raw.Execution.Coverage,
		AdditionalArgs: raw.Execution.AdditionalArgs,
	}
	if bin := strings.TrimSpace(raw.Tools.Profiler); bin != "" {
		cfg.Tools.Profiler = bin
	}
	if bin := strings.TrimSpace(raw.Tools.Coverage); bin != "" {
		cfg.Tools.Coverage = bin
	}

	m.Executor = raw.Executor.Command
	m.Program = raw.Executor.Program

	seen := make(map[string]struct{}, len(raw.Tests))
	for i, t := range raw.Tests {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("%s: [[test]] #%d: missing name", path, i+1)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%s: duplicate test %q", path, name)
		}
		seen[name] = struct{}{}

		entry := TestEntry{
			Name:            name,
			Entry:           strings.TrimSpace(t.Entry),
			Fuzz:            t.Fuzz,
			Ignored:         t.Ignored,
			ExpectedFailure: t.ExpectedFailure,
		}
		if entry.Entry == "" {
			entry.Entry = name
		}
		if t.Runs != nil {
			runs, err := positiveRuns(*t.Runs)
			if err != nil {
				return nil, fmt.Errorf("%s: test %q: runs: %w", path, name, err)
			}
			entry.Runs = &runs
		}
		entry.Seed = t.Seed
		m.Tests = append(m.Tests, entry)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func positiveRuns(v int64) (uint32, error) {
	if v < 1 {
		return 0, fmt.Errorf("must be at least 1, got %d", v)
	}
	if v > int64(^uint32(0)) {
		return 0, fmt.Errorf("too large: %d", v)
	}
	return uint32(v), nil
}
