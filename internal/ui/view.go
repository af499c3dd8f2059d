package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"mapgen/internal/progress"
	"mapgen/internal/util/format"
)

func (m Model) viewHeader() string {
	title := m.styles.Title.Render("mapgen · terrain generation")
	server := m.opts.ServerURL
	if server == "" {
		server = "no server"
	}
	sub := m.styles.Subtitle.Render(truncate(server, 60))
	return title + "\n" + sub
}

func (m Model) viewJob() string {
	j := m.job
	u := j.update
	phase := m.styles.phase(u.Phase).Render(u.Phase.Label())

	id := u.JobID
	switch {
	case id != "":
		id = "task " + id
	case u.Silent:
		id = "task id not issued"
	default:
		id = "no task"
	}
	line1 := fmt.Sprintf("%s  %s", m.styles.JobTitle.Render(id), phase)

	bar := fmt.Sprintf("%s %5.1f%%", j.bar.ViewAs(clampPercent(u.Progress.Current)/100.0), u.Progress.Current)
	if u.Phase.Active() {
		bar = m.styles.Spinner.Render(j.spinner.View()) + " " + bar
	}

	status := m.styles.JobInfo.Render(u.Message)
	if u.Phase == progress.PhaseFailed || u.Error != "" {
		status = m.styles.Error.Render(u.Message)
	}

	lines := []string{line1, bar, status}
	if u.Silent && u.Phase == progress.PhaseProcessing {
		lines = append(lines, m.styles.Warning.Render("The service accepted the job without a task id; completion cannot be tracked."))
	}
	if j.startErr != nil && u.Error == "" {
		lines = append(lines, m.styles.Error.Render(j.startErr.Error()))
	}
	if u.PreviewError != "" {
		lines = append(lines, m.styles.Warning.Render("Previews unavailable: "+u.PreviewError))
	}
	if len(j.previews) > 0 {
		lines = append(lines, m.styles.Subtitle.Render("Previews:"))
		for _, p := range j.previews {
			lines = append(lines, m.styles.JobInfo.Render(fmt.Sprintf("  • %s (%s, %s)", p.Filename, p.Kind, format.HumanizeBytes(p.Size))))
		}
	}
	switch {
	case j.downloading:
		lines = append(lines, m.styles.Spinner.Render(j.spinner.View())+" Downloading…")
	case j.savedPath != "":
		lines = append(lines, m.styles.Success.Render("✓ Saved: "+filepath.Clean(j.savedPath)))
	}
	return m.styles.Box.Render(strings.Join(lines, "\n"))
}

func (m Model) viewFooter() string {
	keys := []string{}
	if m.job.phase() == progress.PhaseCompleted && !m.job.update.Silent && !m.job.downloading {
		keys = append(keys, "d: download")
	}
	if !m.job.phase().Active() {
		keys = append(keys, "g: generate")
	}
	keys = append(keys, "r: reset", "q: quit")
	return m.styles.Faint.Render(strings.Join(keys, " • "))
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if n <= 0 || len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
