package artifacts

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"forgerun/internal/config"
	"forgerun/internal/summary"
	"forgerun/internal/ui"
)

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"mod::test_name", "mod_test_name"},
		{"pkg::tests::nested::t", "pkg_tests_nested_t"},
		{"a::::b", "a_b"},
		{"dir/../escape", "dir..escape"},
		{`we<ird>:"na|me?*`, "weirdname"},
		{"tab\tand\nnewline", "tabandnewline"},
		{"..", "_"},
		{"", "_"},
		{"trailing. ", "trailing"},
		{"CON", "_CON"},
		{"nul.txt", "_nul.txt"},
	}
	for _, tc := range cases {
		if got := SanitizeName(tc.in); got != tc.want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	long := SanitizeName(strings.Repeat("é", 300))
	if len(long) > maxStemBytes || !strings.HasPrefix(long, "é") {
		t.Fatalf("long name not truncated on rune boundary: %d bytes", len(long))
	}
}

func TestSaveAndLoadTraceData(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "trace")
	data := &summary.TraceData{TestName: "mod::t", Seed: 5, Payload: []byte{1, 2, 3}}
	path, err := SaveTraceData(dir, "mod_t", data)
	if err != nil {
		t.Fatalf("SaveTraceData: %v", err)
	}
	if path != filepath.Join(dir, "mod_t.mp") {
		t.Fatalf("path = %q", path)
	}
	got, err := LoadTraceData(path)
	if err != nil {
		t.Fatalf("LoadTraceData: %v", err)
	}
	if got.TestName != "mod::t" || got.Seed != 5 || !bytes.Equal(got.Payload, data.Payload) {
		t.Fatalf("round trip = %+v", got)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
	if _, err := SaveTraceData(dir, "x", nil); err == nil {
		t.Fatal("expected error for nil trace data")
	}
}

type fakeProfiler struct {
	calls []string
	err   error
}

func (f *fakeProfiler) Profile(_ context.Context, name, tracePath string, args []string) error {
	f.calls = append(f.calls, name+"|"+tracePath+"|"+strings.Join(args, ","))
	return f.err
}

type fakeCoverage struct {
	batches [][]string
	err     error
}

func (f *fakeCoverage) Generate(_ context.Context, tracePaths []string, _ []string) error {
	f.batches = append(f.batches, append([]string(nil), tracePaths...))
	return f.err
}

func passed(name string) summary.AnyTestSummary {
	return summary.Single(summary.TestCaseSummary{
		Status:    summary.StatusPassed,
		Name:      name,
		TraceData: &summary.TraceData{TestName: name, Payload: []byte("trace")},
	})
}

func TestMaybeSaveTraceAndProfile(t *testing.T) {
	dir := t.TempDir()
	prof := &fakeProfiler{}
	p := &Pipeline{TraceDir: dir, Profiler: prof, UI: ui.Discard()}
	exec := config.ExecutionData{Profile: true, AdditionalArgs: []string{"--hide", "std"}}

	path, ok, err := p.MaybeSaveTraceAndProfile(context.Background(), passed("mod::test_name"), exec)
	if err != nil || !ok {
		t.Fatalf("MaybeSaveTraceAndProfile = %q, %v, %v", path, ok, err)
	}
	if path != filepath.Join(dir, "mod_test_name.mp") {
		t.Fatalf("path = %q", path)
	}
	if len(prof.calls) != 1 || prof.calls[0] != "mod_test_name|"+path+"|--hide,std" {
		t.Fatalf("profiler calls = %v", prof.calls)
	}
}

func TestMaybeSaveTraceAndProfileSkips(t *testing.T) {
	p := &Pipeline{TraceDir: t.TempDir(), Profiler: &fakeProfiler{}}
	on := config.ExecutionData{SaveTrace: true}
	noTrace := summary.Single(summary.TestCaseSummary{Status: summary.StatusPassed, Name: "t"})
	failed := summary.Single(summary.TestCaseSummary{Status: summary.StatusFailed, Name: "t", TraceData: &summary.TraceData{}})
	fuzz := summary.Fuzzing(summary.FuzzingSummary{Status: summary.StatusPassed, Name: "t"})

	cases := []struct {
		name string
		res  summary.AnyTestSummary
		exec config.ExecutionData
	}{
		{"disabled", passed("t"), config.ExecutionData{}},
		{"no trace data", noTrace, on},
		{"failed", failed, on},
		{"fuzzing", fuzz, on},
	}
	for _, tc := range cases {
		_, ok, err := p.MaybeSaveTraceAndProfile(context.Background(), tc.res, tc.exec)
		if err != nil || ok {
			t.Fatalf("%s: ok=%v err=%v, want skip", tc.name, ok, err)
		}
	}
}

func TestProfilerFailureIsFatal(t *testing.T) {
	boom := errors.New("profiler crashed")
	p := &Pipeline{TraceDir: t.TempDir(), Profiler: &fakeProfiler{err: boom}}
	_, _, err := p.MaybeSaveTraceAndProfile(context.Background(), passed("t"), config.ExecutionData{Profile: true})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestMaybeGenerateCoverage(t *testing.T) {
	var stderr bytes.Buffer
	cov := &fakeCoverage{}
	p := &Pipeline{Coverage: cov, UI: ui.New(ui.Options{Out: &bytes.Buffer{}, Err: &stderr, Color: "off"})}
	ctx := context.Background()

	if err := p.MaybeGenerateCoverage(ctx, config.ExecutionData{}, []string{"a.mp"}); err != nil || len(cov.batches) != 0 {
		t.Fatalf("disabled coverage ran: %v %v", err, cov.batches)
	}

	on := config.ExecutionData{Coverage: true}
	if err := p.MaybeGenerateCoverage(ctx, on, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if len(cov.batches) != 0 {
		t.Fatalf("tool invoked for empty batch: %v", cov.batches)
	}
	if !strings.Contains(stderr.String(), "No trace data to generate coverage from") {
		t.Fatalf("missing warning, stderr = %q", stderr.String())
	}

	paths := []string{"a.mp", "b.mp", "c.mp"}
	if err := p.MaybeGenerateCoverage(ctx, on, paths); err != nil {
		t.Fatalf("coverage: %v", err)
	}
	if len(cov.batches) != 1 || strings.Join(cov.batches[0], ",") != "a.mp,b.mp,c.mp" {
		t.Fatalf("batches = %v, want one full batch", cov.batches)
	}

	cov.err = errors.New("bad traces")
	if err := p.MaybeGenerateCoverage(ctx, on, paths); err == nil {
		t.Fatal("coverage tool failure must be fatal")
	}
}
