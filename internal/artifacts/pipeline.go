package artifacts

import (
	"context"
	"fmt"
	"strconv"

	"forgerun/internal/config"
	"forgerun/internal/summary"
	"forgerun/internal/tools"
	"forgerun/internal/trace"
	"forgerun/internal/ui"
)

// Pipeline persists traces of passed tests and hands them to the external
// profiler and coverage tools.
type Pipeline struct {
	TraceDir string
	Profiler tools.Profiler
	Coverage tools.CoverageGenerator
	UI       *ui.UI
}

// MaybeSaveTraceAndProfile saves the trace of a passed non-fuzz test when
// execution data is requested, then profiles it if profiling is on.
// It returns the saved path and whether anything was saved. A profiler
// failure fails the call.
func (p *Pipeline) MaybeSaveTraceAndProfile(ctx context.Context, res summary.AnyTestSummary, exec config.ExecutionData) (string, bool, error) {
	if res.Kind != summary.KindSingle || res.Single == nil {
		return "", false, nil
	}
	single := res.Single
	if single.Status != summary.StatusPassed || single.TraceData == nil {
		return "", false, nil
	}
	if !exec.NeedsRawTrace() {
		return "", false, nil
	}

	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeSession, "save-trace:"+single.Name, trace.CurrentSpan(ctx))
	defer span.End("")

	stem := SanitizeName(single.Name)
	path, err := SaveTraceData(p.traceDir(), stem, single.TraceData)
	if err != nil {
		return "", false, fmt.Errorf("save trace of %q: %w", single.Name, err)
	}
	span.WithExtra("path", path)

	if exec.Profile {
		if p.Profiler == nil {
			return "", false, fmt.Errorf("profile of %q requested but no profiler configured", single.Name)
		}
		trace.Point(tracer, trace.ScopeSession, "profiler", stem, span.ID())
		if err := p.Profiler.Profile(ctx, stem, path, exec.AdditionalArgs); err != nil {
			return "", false, fmt.Errorf("profile %q: %w", single.Name, err)
		}
	}
	return path, true, nil
}

// MaybeGenerateCoverage runs the coverage tool once over every saved trace.
// An empty batch only produces a warning.
func (p *Pipeline) MaybeGenerateCoverage(ctx context.Context, exec config.ExecutionData, tracePaths []string) error {
	if !exec.Coverage {
		return nil
	}
	tracer := trace.FromContext(ctx)
	if len(tracePaths) == 0 {
		trace.Point(tracer, trace.ScopeSession, "coverage", "no trace data", trace.CurrentSpan(ctx))
		p.UI.Warn("No trace data to generate coverage from")
		return nil
	}
	if p.Coverage == nil {
		return fmt.Errorf("coverage requested but no coverage tool configured")
	}

	span := trace.Begin(tracer, trace.ScopeSession, "coverage", trace.CurrentSpan(ctx))
	span.WithExtra("traces", strconv.Itoa(len(tracePaths)))
	defer span.End("")

	if err := p.Coverage.Generate(ctx, tracePaths, exec.AdditionalArgs); err != nil {
		return fmt.Errorf("generate coverage: %w", err)
	}
	return nil
}

func (p *Pipeline) traceDir() string {
	if p.TraceDir == "" {
		return config.DefaultTraceDir
	}
	return p.TraceDir
}
