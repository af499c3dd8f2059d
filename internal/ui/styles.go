package ui

import (
	"github.com/charmbracelet/lipgloss"

	"mapgen/internal/progress"
)

type Styles struct {
	Title      lipgloss.Style
	Subtitle   lipgloss.Style
	JobTitle   lipgloss.Style
	JobInfo    lipgloss.Style
	Success    lipgloss.Style
	Error      lipgloss.Style
	Warning    lipgloss.Style
	Faint      lipgloss.Style
	Box        lipgloss.Style
	Spinner    lipgloss.Style
	Queued     lipgloss.Style
	Processing lipgloss.Style
}

func defaultStyles() Styles {
	base := lipgloss.NewStyle()
	return Styles{
		Title:      base.Bold(true).Foreground(lipgloss.Color("#7D56F4")),
		Subtitle:   base.Faint(true),
		JobTitle:   base.Foreground(lipgloss.Color("#A3A3A3")),
		JobInfo:    base.Foreground(lipgloss.Color("#D1D5DB")),
		Success:    base.Foreground(lipgloss.Color("#22C55E")),
		Error:      base.Foreground(lipgloss.Color("#EF4444")),
		Warning:    base.Foreground(lipgloss.Color("#F59E0B")),
		Faint:      base.Faint(true),
		Box:        base.Padding(0, 1),
		Spinner:    base.Foreground(lipgloss.Color("#22D3EE")),
		Queued:     base.Foreground(lipgloss.Color("#60A5FA")),
		Processing: base.Foreground(lipgloss.Color("#D946EF")),
	}
}

func (s Styles) phase(p progress.Phase) lipgloss.Style {
	switch p {
	case progress.PhaseStarting, progress.PhaseQueued:
		return s.Queued
	case progress.PhaseProcessing:
		return s.Processing
	case progress.PhaseCompleted:
		return s.Success
	case progress.PhaseFailed:
		return s.Error
	default:
		return s.JobInfo
	}
}
