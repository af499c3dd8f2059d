package ui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapgen/internal/generation"
	"mapgen/internal/model"
	"mapgen/internal/progress"
)

type fakeController struct {
	state     generation.State
	starts    int
	downloads int
	resets    int
	closed    bool
	path      string
	err       error
}

func (f *fakeController) Start(context.Context, model.GenerateRequest) error {
	f.starts++
	return f.err
}

func (f *fakeController) Download(context.Context, string) (string, error) {
	f.downloads++
	return f.path, f.err
}

func (f *fakeController) Reset()                     { f.resets++ }
func (f *fakeController) Close()                      { f.closed = true }
func (f *fakeController) Snapshot() generation.State { return f.state }

func newTestModel(ctrl *fakeController, opts model.CLIOptions) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return newModel(ctx, cancel, ctrl, make(chan tea.Msg, 4), model.GenerateRequest{}, opts)
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_StateUpdatesView(t *testing.T) {
	m := newTestModel(&fakeController{}, model.CLIOptions{ServerURL: "http://gen.local"})
	next, _ := m.Update(stateMsg{U: progress.Update{
		Phase:    progress.PhaseQueued,
		JobID:    "abc123",
		Progress: progress.Progress{Current: 10, Target: 10.5},
		Message:  "Queued (3s)",
	}})
	view := next.View()
	assert.Contains(t, view, "task abc123")
	assert.Contains(t, view, "Queued (3s)")
	assert.Contains(t, view, "http://gen.local")
	assert.NotContains(t, view, "d: download")
}

func TestModel_CompletedShowsPreviewsAndDownloads(t *testing.T) {
	ctrl := &fakeController{
		state: generation.State{Phase: progress.PhaseCompleted, Previews: []model.PreviewArtifact{
			{Filename: "heightmap.png", Kind: "image", Size: 2048},
		}},
		path: "/tmp/map-abc.zip",
	}
	m := newTestModel(ctrl, model.CLIOptions{OutDir: "/tmp"})

	next, _ := m.Update(stateMsg{U: progress.Update{Phase: progress.PhaseCompleted, JobID: "abc123", Message: "Completed"}})
	view := next.View()
	assert.Contains(t, view, "heightmap.png")
	assert.Contains(t, view, "2.0 KB")
	assert.Contains(t, view, "d: download")

	next, cmd := next.Update(key("d"))
	require.NotNil(t, cmd)
	assert.True(t, next.(Model).job.downloading)

	// a second press while downloading is ignored
	_, again := next.Update(key("d"))
	assert.Nil(t, again)

	msg := cmd()
	assert.Equal(t, downloadedMsg{Path: "/tmp/map-abc.zip"}, msg)
	next, _ = next.Update(msg)
	assert.Contains(t, next.View(), "Saved: /tmp/map-abc.zip")
	assert.Equal(t, 1, ctrl.downloads)
}

func TestModel_DownloadIgnoredBeforeCompletion(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl, model.CLIOptions{})
	next, _ := m.Update(stateMsg{U: progress.Update{Phase: progress.PhaseProcessing}})
	_, cmd := next.Update(key("d"))
	assert.Nil(t, cmd)
	assert.Zero(t, ctrl.downloads)
}

func TestModel_SilentJobCannotDownload(t *testing.T) {
	m := newTestModel(&fakeController{}, model.CLIOptions{})
	next, _ := m.Update(stateMsg{U: progress.Update{Phase: progress.PhaseProcessing, Silent: true, Message: "Processing…"}})
	assert.Contains(t, next.View(), "completion cannot be tracked")
}

func TestModel_ResetAndQuit(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl, model.CLIOptions{})

	next, _ := m.Update(key("r"))
	assert.Equal(t, 1, ctrl.resets)

	_, cmd := next.Update(key("q"))
	require.NotNil(t, cmd)
	assert.True(t, ctrl.closed)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_GenerateAgainOnlyWhenIdle(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl, model.CLIOptions{})

	next, _ := m.Update(stateMsg{U: progress.Update{Phase: progress.PhaseQueued}})
	_, cmd := next.Update(key("g"))
	assert.Nil(t, cmd)

	next, _ = next.Update(stateMsg{U: progress.Update{Phase: progress.PhaseFailed, Error: "boom", Message: "Failed: boom"}})
	_, cmd = next.Update(key("g"))
	require.NotNil(t, cmd)
	assert.Equal(t, startedMsg{}, cmd())
	assert.Equal(t, 1, ctrl.starts)
}

func TestModel_AutoDownloadQuits(t *testing.T) {
	ctrl := &fakeController{state: generation.State{Phase: progress.PhaseCompleted}, path: "out.zip"}
	m := newTestModel(ctrl, model.CLIOptions{Download: true})

	next, cmd := m.Update(stateMsg{U: progress.Update{Phase: progress.PhaseCompleted, JobID: "abc"}})
	require.NotNil(t, cmd)
	assert.True(t, next.(Model).autoDownloaded)

	_, cmd = next.Update(downloadedMsg{Path: "out.zip"})
	require.NotNil(t, cmd)
	assert.True(t, ctrl.closed)
}

func TestModel_StartError(t *testing.T) {
	m := newTestModel(&fakeController{}, model.CLIOptions{})
	next, _ := m.Update(startedMsg{Err: errors.New("a generation job is already running")})
	assert.Contains(t, next.View(), "already running")
}

func TestTeaReporter_DropsFramesWhenFull(t *testing.T) {
	ch := make(chan tea.Msg, 1)
	done := make(chan struct{})
	r := teaReporter{ch: ch, done: done}

	r.Update(progress.Update{Phase: progress.PhaseQueued})
	r.Update(progress.Update{Phase: progress.PhaseQueued}) // dropped
	assert.Len(t, ch, 1)

	close(done)
	r.Update(progress.Update{Phase: progress.PhaseCompleted}) // returns once the program is gone
	assert.Len(t, ch, 1)
}

func TestTeaReporter_IdleWaitsForRoom(t *testing.T) {
	ch := make(chan tea.Msg, 1)
	r := teaReporter{ch: ch, done: make(chan struct{})}
	r.Update(progress.Update{Phase: progress.PhaseCompleted})

	sent := make(chan struct{})
	go func() {
		r.Update(progress.Update{Phase: progress.PhaseIdle})
		close(sent)
	}()

	first := <-ch
	assert.Equal(t, progress.PhaseCompleted, first.(stateMsg).U.Phase)
	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("idle update was not delivered")
	}
	require.Len(t, ch, 1)
	assert.Equal(t, progress.PhaseIdle, (<-ch).(stateMsg).U.Phase)
}
