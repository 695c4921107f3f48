// Package tools invokes the external profiler and coverage binaries.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrToolNotFound is returned when a tool binary is not on PATH.
var ErrToolNotFound = errors.New("tool not found")

// Profiler turns one saved trace into a profile.
type Profiler interface {
	Profile(ctx context.Context, name, tracePath string, args []string) error
}

// CoverageGenerator builds one coverage report from a batch of traces.
type CoverageGenerator interface {
	Generate(ctx context.Context, tracePaths []string, args []string) error
}

// ExecProfiler runs the profiler binary:
//
//	<binary> build-profile <trace> --output-path <dir>/<name>.pb.gz <args...>
type ExecProfiler struct {
	Binary    string
	OutputDir string
	Stdout    io.Writer
}

// Profile implements Profiler.
func (p ExecProfiler) Profile(ctx context.Context, name, tracePath string, args []string) error {
	dir := p.OutputDir
	if dir == "" {
		dir = "profile"
	}
	out := filepath.Join(dir, name+".pb.gz")
	argv := append([]string{"build-profile", tracePath, "--output-path", out}, args...)
	return run(ctx, p.Binary, argv, p.Stdout)
}

// ExecCoverage runs the coverage binary:
//
//	<binary> run <trace>... <args...>
type ExecCoverage struct {
	Binary string
	Stdout io.Writer
}

// Generate implements CoverageGenerator.
func (c ExecCoverage) Generate(ctx context.Context, tracePaths []string, args []string) error {
	argv := make([]string, 0, 1+len(tracePaths)+len(args))
	argv = append(argv, "run")
	argv = append(argv, tracePaths...)
	argv = append(argv, args...)
	return run(ctx, c.Binary, argv, c.Stdout)
}

func run(ctx context.Context, binary string, argv []string, stdout io.Writer) error {
	path, err := exec.LookPath(binary)
	if err != nil {
		return fmt.Errorf("%s: %w; make sure it is installed and on PATH", binary, ErrToolNotFound)
	}
	// #nosec G204 -- binary comes from runner configuration
	cmd := exec.CommandContext(ctx, path, argv...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if stdout != nil {
		cmd.Stdout = stdout
	}
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s failed: %w", binary, err)
		}
		return fmt.Errorf("%s failed: %w\n%s", binary, err, msg)
	}
	return nil
}
