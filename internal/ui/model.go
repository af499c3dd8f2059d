package ui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"mapgen/internal/generation"
	"mapgen/internal/model"
	"mapgen/internal/progress"
)

// controller is the part of generation.Controller the TUI drives.
type controller interface {
	Start(ctx context.Context, req model.GenerateRequest) error
	Download(ctx context.Context, dir string) (string, error)
	Reset()
	Close()
	Snapshot() generation.State
}

type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	ctrl controller
	req  model.GenerateRequest
	opts model.CLIOptions

	job            jobView
	autoDownloaded bool

	width  int
	styles Styles

	// Internal event channel fed by the controller's reporter
	eventCh chan tea.Msg
}

func newModel(ctx context.Context, cancel context.CancelFunc, ctrl controller, eventCh chan tea.Msg, req model.GenerateRequest, opts model.CLIOptions) Model {
	sty := defaultStyles()
	return Model{
		ctx:     ctx,
		cancel:  cancel,
		ctrl:    ctrl,
		req:     req,
		opts:    opts,
		job:     newJobView(sty),
		styles:  sty,
		eventCh: eventCh,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.job.spinner.Tick, m.listenEventsCmd(), m.startCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - 16; w > 10 && w < 60 {
			m.job.bar.Width = w
		}
		return m, nil

	case stateMsg:
		m.job.update = msg.U
		switch msg.U.Phase {
		case progress.PhaseCompleted:
			m.job.previews = m.ctrl.Snapshot().Previews
		case progress.PhaseIdle, progress.PhaseStarting:
			m.job.previews = nil
		}
		cmds := []tea.Cmd{m.listenEventsCmd()}
		if m.opts.Download && !m.autoDownloaded && msg.U.Phase == progress.PhaseCompleted && !msg.U.Silent {
			m.autoDownloaded = true
			m.job.downloading = true
			cmds = append(cmds, m.downloadCmd())
		}
		return m, tea.Batch(cmds...)

	case startedMsg:
		m.job.startErr = msg.Err
		return m, nil

	case downloadedMsg:
		m.job.downloading = false
		m.job.savedPath, m.job.downloadErr = msg.Path, msg.Err
		if msg.Err == nil && m.opts.Download {
			return m, m.quit()
		}
		return m, nil

	case quitMsg:
		return m, m.quit()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.job.spinner, cmd = m.job.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, m.quit()
	case "d":
		if m.job.phase() != progress.PhaseCompleted || m.job.update.Silent || m.job.downloading {
			return m, nil
		}
		m.job.downloading = true
		m.job.downloadErr = nil
		return m, m.downloadCmd()
	case "r":
		m.ctrl.Reset()
		m.job.previews = nil
		m.job.savedPath = ""
		m.job.downloadErr = nil
		m.job.startErr = nil
		return m, nil
	case "g":
		if m.job.phase().Active() {
			return m, nil
		}
		m.job.savedPath = ""
		m.job.downloadErr = nil
		m.job.startErr = nil
		m.autoDownloaded = false
		return m, m.startCmd()
	}
	return m, nil
}

func (m Model) View() string {
	return m.viewHeader() + "\n\n" + m.viewJob() + "\n" + m.viewFooter()
}

func (m Model) quit() tea.Cmd {
	m.ctrl.Close()
	m.cancel()
	return tea.Quit
}

func (m Model) listenEventsCmd() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return quitMsg{}
		case msg := <-m.eventCh:
			return msg
		}
	}
}

func (m Model) startCmd() tea.Cmd {
	ctrl, req, ctx := m.ctrl, m.req, m.ctx
	return func() tea.Msg {
		return startedMsg{Err: ctrl.Start(ctx, req)}
	}
}

func (m Model) downloadCmd() tea.Cmd {
	ctrl, dir, ctx := m.ctrl, m.opts.OutDir, m.ctx
	return func() tea.Msg {
		path, err := ctrl.Download(ctx, dir)
		return downloadedMsg{Path: path, Err: err}
	}
}

// teaReporter turns controller updates into tea messages. Animation frames
// are dropped when the program lags; terminal phases and the return to Idle
// are always delivered unless the program has gone away.
type teaReporter struct {
	ch   chan tea.Msg
	done <-chan struct{}
}

func (r teaReporter) Update(u progress.Update) {
	switch u.Phase {
	case progress.PhaseCompleted, progress.PhaseFailed, progress.PhaseIdle:
		select {
		case r.ch <- stateMsg{U: u}:
		case <-r.done:
		}
		return
	}
	select {
	case r.ch <- stateMsg{U: u}:
	default:
	}
}
