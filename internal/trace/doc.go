// Package trace records what the test runner is doing as a stream of
// structured events.
//
// Tracing is enabled from the command line:
//
//	forgerun test --trace=- --trace-level=test
//
// # Tracers
//
//   - Nop: zero-overhead tracer used when tracing is off
//   - StreamTracer: writes every event immediately (file or stderr)
//   - RingTracer: keeps the most recent events in memory for post-mortem dumps
//   - MultiTracer: fans events out to several tracers
//
// # Levels and scopes
//
// Events carry a Scope. The Level decides which scopes are emitted:
//
//   - LevelSession: session and artifact-pipeline boundaries
//   - LevelTest: additionally one span per test case
//   - LevelTrial: additionally one span per fuzz trial
//
// # Context propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeTest, name, parent)
//	defer span.End("")
package trace
