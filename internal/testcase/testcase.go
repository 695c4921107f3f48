package testcase

import (
	"fmt"

	"forgerun/internal/config"
	"forgerun/internal/program"
)

// Config is the per-test configuration after resolution.
type Config struct {
	// Fuzzer is set when the test overrides fuzzer runs or seed.
	Fuzzer *config.FuzzerOverride
	// Fuzz marks a test that takes randomized arguments.
	Fuzz            bool
	Ignored         bool
	ExpectedFailure string
}

// TestCase is a single test with its resolved configuration.
// It is immutable once resolved and shared read-only by all of its trials.
type TestCase struct {
	Name   string
	Entry  string
	Config Config
	// Args are the user-meaningful parameter types of the entry point.
	Args []program.ConcreteTypeLongID
}

// IsFuzz reports whether the test runs through the fuzzer.
func (c *TestCase) IsFuzz() bool {
	if c == nil {
		return false
	}
	return c.Config.Fuzzer != nil || c.Config.Fuzz
}

// FromManifest builds test cases from manifest entries.
func FromManifest(entries []config.TestEntry) []*TestCase {
	cases := make([]*TestCase, 0, len(entries))
	for _, e := range entries {
		tc := &TestCase{
			Name:  e.Name,
			Entry: e.Entry,
			Config: Config{
				Fuzz:            e.Fuzz,
				Ignored:         e.Ignored,
				ExpectedFailure: e.ExpectedFailure,
			},
		}
		if e.Runs != nil || e.Seed != nil {
			tc.Config.Fuzzer = &config.FuzzerOverride{Runs: e.Runs, Seed: e.Seed}
		}
		cases = append(cases, tc)
	}
	return cases
}

// Resolve attaches entry point argument types from prog. A test whose entry
// point takes non-builtin parameters is a fuzz test.
func Resolve(cases []*TestCase, prog *program.Program) error {
	if prog == nil {
		return nil
	}
	types := prog.TypeIndex()
	for _, tc := range cases {
		fn, ok := prog.Function(tc.Entry)
		if !ok {
			return fmt.Errorf("test %q: entry point %q not found in program", tc.Name, tc.Entry)
		}
		tc.Args = program.FunctionArgs(fn, types)
		if len(tc.Args) > 0 {
			tc.Config.Fuzz = true
		}
	}
	return nil
}
