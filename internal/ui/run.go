package ui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"mapgen/internal/generation"
	"mapgen/internal/model"
)

// Result is what the TUI leaves behind for the caller's exit status.
type Result struct {
	State       generation.State
	SavedPath   string
	StartErr    error
	DownloadErr error
}

// Run launches the TUI, submits req and tracks the job until the user quits.
func Run(ctx context.Context, svc generation.Service, req model.GenerateRequest, opts model.CLIOptions, logger zerolog.Logger) (Result, error) {
	c, cancel := context.WithCancel(ctx)
	defer cancel()

	eventCh := make(chan tea.Msg, 256)
	ctrl := generation.New(svc,
		generation.WithReporter(teaReporter{ch: eventCh, done: c.Done()}),
		generation.WithLogger(logger),
		generation.WithPollInterval(opts.PollInterval),
	)
	defer ctrl.Close()

	m := newModel(c, cancel, ctrl, eventCh, req, opts)
	prog := tea.NewProgram(m, tea.WithContext(c))
	final, err := prog.Run()

	res := Result{State: ctrl.Snapshot()}
	if fm, ok := final.(Model); ok {
		res.SavedPath = fm.job.savedPath
		res.StartErr = fm.job.startErr
		res.DownloadErr = fm.job.downloadErr
	}
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return res, ctx.Err()
		}
		if errors.Is(err, tea.ErrProgramKilled) {
			return res, nil
		}
		return res, err
	}
	return res, nil
}
