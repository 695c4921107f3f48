package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"forgerun/internal/config"
	"forgerun/internal/program"
	"forgerun/internal/runner"
	"forgerun/internal/testcase"
	"forgerun/internal/ui"
)

type sessionOutcome struct {
	result *runner.TargetSummary
	err    error
}

// runSessionWithUI runs s while a progress view renders its events. The
// session's own printer should be quiet; results are printed afterwards.
func runSessionWithUI(
	ctx context.Context,
	title string,
	s *runner.Session,
	cases []*testcase.TestCase,
	prog *program.Program,
	programPath string,
	verbosity *config.TraceVerbosity,
) (*runner.TargetSummary, error) {
	names := make([]string, 0, len(cases))
	for _, tc := range cases {
		names = append(names, tc.Name)
	}
	events := make(chan ui.Event, 256)
	outcomeCh := make(chan sessionOutcome, 1)

	go func() {
		s.Runner.Progress = ui.ChannelSink{Ch: events}
		res, err := s.Run(ctx, cases, prog, programPath, verbosity)
		outcomeCh <- sessionOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, names, events)
	p := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := p.Run()
	if uiErr != nil {
		// keep the session unblocked once nobody renders
		go func() {
			for range events {
			}
		}()
	}
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
