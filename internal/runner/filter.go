package runner

import (
	"strings"

	"forgerun/internal/testcase"
)

// TestCaseFilter selects the test cases a session runs.
type TestCaseFilter interface {
	ShouldBeRun(tc *testcase.TestCase) bool
}

// IgnoreReporter is implemented by filters that want selected but ignored
// tests reported as Ignored instead of silently dropped.
type IgnoreReporter interface {
	ShouldBeIgnored(tc *testcase.TestCase) bool
}

// IgnoredMode controls how tests marked ignored are treated.
type IgnoredMode uint8

const (
	// SkipIgnored reports ignored tests without running them.
	SkipIgnored IgnoredMode = iota
	// OnlyIgnored runs ignored tests and drops the rest.
	OnlyIgnored
	// IncludeIgnored runs every test.
	IncludeIgnored
)

// NameFilter matches test names against a pattern. An empty pattern
// matches everything; otherwise the pattern is a substring unless Exact.
type NameFilter struct {
	Pattern string
	Exact   bool
	Ignored IgnoredMode
	// Only restricts the run to these names when non-nil, e.g. the tests
	// that failed last time.
	Only map[string]struct{}
}

func (f *NameFilter) selects(tc *testcase.TestCase) bool {
	if f == nil {
		return true
	}
	if f.Only != nil {
		if _, ok := f.Only[tc.Name]; !ok {
			return false
		}
	}
	switch {
	case f.Pattern == "":
		return true
	case f.Exact:
		return tc.Name == f.Pattern
	default:
		return strings.Contains(tc.Name, f.Pattern)
	}
}

// ShouldBeRun reports whether tc is executed.
func (f *NameFilter) ShouldBeRun(tc *testcase.TestCase) bool {
	if !f.selects(tc) {
		return false
	}
	mode := SkipIgnored
	if f != nil {
		mode = f.Ignored
	}
	switch mode {
	case OnlyIgnored:
		return tc.Config.Ignored
	case IncludeIgnored:
		return true
	default:
		return !tc.Config.Ignored
	}
}

// ShouldBeIgnored reports whether tc is selected but skipped as ignored.
func (f *NameFilter) ShouldBeIgnored(tc *testcase.TestCase) bool {
	if !tc.Config.Ignored || !f.selects(tc) {
		return false
	}
	return f == nil || f.Ignored == SkipIgnored
}
