package ui

import (
	bubblesprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"

	"mapgen/internal/model"
	"mapgen/internal/progress"
)

// jobView is what the TUI knows about the tracked job.
type jobView struct {
	update   progress.Update
	previews []model.PreviewArtifact

	startErr    error
	downloading bool
	savedPath   string
	downloadErr error

	spinner spinner.Model
	bar     bubblesprogress.Model
}

func newJobView(styles Styles) jobView {
	sp := spinner.New()
	sp.Style = styles.Spinner
	bar := bubblesprogress.New(
		bubblesprogress.WithDefaultGradient(),
		bubblesprogress.WithWidth(40),
	)
	return jobView{
		update:  progress.Update{Phase: progress.PhaseIdle, Message: progress.PhaseIdle.Label()},
		spinner: sp,
		bar:     bar,
	}
}

func (j jobView) phase() progress.Phase {
	return j.update.Phase
}
