package generation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mapgen/internal/genapi"
	"mapgen/internal/progress"
)

const tick = 3 * time.Second

func queuedJob() State {
	var s State
	s.begin(1)
	s.submitted("abc123")
	return s
}

// Walks the documented scenario: queued for a minute, then processing for
// ninety seconds, then completion.
func TestObserve_Scenario(t *testing.T) {
	s := queuedJob()
	assert.Equal(t, progress.PhaseQueued, s.Phase)
	assert.Equal(t, "abc123", s.JobID)
	assert.Equal(t, progress.SubmittedTarget, s.Progress.Target)

	// First poll at t=3.
	assert.Equal(t, pollContinue, s.observe(genapi.StatusResult{Status: genapi.StatusQueued}, tick))
	assert.Equal(t, 3.0, s.QueueTime)
	assert.InDelta(t, 10.5, s.Progress.Target, 1e-9)

	// Queued until t=60.
	for i := 0; i < 19; i++ {
		s.observe(genapi.StatusResult{Status: genapi.StatusQueued}, tick)
	}
	assert.Equal(t, 60.0, s.QueueTime)
	assert.Equal(t, 20.0, s.Progress.Target)

	// First processing observation jumps to the baseline.
	s.observe(genapi.StatusResult{Status: genapi.StatusProcessing}, tick)
	assert.Equal(t, progress.PhaseProcessing, s.Phase)
	assert.Equal(t, 25.0, s.Progress.Target)
	assert.Equal(t, 0.0, s.ProcessingTime)

	// Ninety more seconds of processing.
	for i := 0; i < 30; i++ {
		s.observe(genapi.StatusResult{Status: genapi.StatusProcessing}, tick)
	}
	assert.Equal(t, 90.0, s.ProcessingTime)
	assert.Equal(t, 85.0, s.Progress.Target)

	assert.Equal(t, pollCompleted, s.observe(genapi.StatusResult{Status: genapi.StatusCompleted}, tick))
	assert.Equal(t, progress.PhaseCompleted, s.Phase)
	assert.Equal(t, 100.0, s.Progress.Target)
}

func TestObserve_ProcessingBaselineIgnoresQueuedTarget(t *testing.T) {
	s := queuedJob()
	s.observe(genapi.StatusResult{Status: genapi.StatusProcessing}, tick)
	assert.Equal(t, progress.ProcessingBase, s.Progress.Target)

	s.observe(genapi.StatusResult{Status: genapi.StatusProcessing}, tick)
	assert.Equal(t, 3.0, s.ProcessingTime)
	assert.InDelta(t, 27.0, s.Progress.Target, 1e-9)
}

func TestObserve_Failed(t *testing.T) {
	s := queuedJob()
	s.observe(genapi.StatusResult{Status: genapi.StatusProcessing}, tick)

	assert.Equal(t, pollFailed, s.observe(genapi.StatusResult{Status: genapi.StatusFailed, Error: "out of memory"}, tick))
	assert.Equal(t, progress.PhaseFailed, s.Phase)
	assert.Equal(t, 0.0, s.Progress.Target)
	assert.Equal(t, "out of memory", s.Error)
	assert.Equal(t, "Failed: out of memory", s.StatusText())

	s2 := queuedJob()
	s2.observe(genapi.StatusResult{Status: genapi.StatusFailed}, tick)
	assert.Equal(t, "generation failed", s2.Error)
}

func TestObserve_QueuedAfterProcessingIsIgnored(t *testing.T) {
	s := queuedJob()
	s.observe(genapi.StatusResult{Status: genapi.StatusProcessing}, tick)
	s.observe(genapi.StatusResult{Status: genapi.StatusProcessing}, tick)
	before := s

	assert.Equal(t, pollContinue, s.observe(genapi.StatusResult{Status: genapi.StatusQueued}, tick))
	assert.Equal(t, before, s)
}

func TestObserve_UnknownStatus(t *testing.T) {
	s := queuedJob()
	before := s
	assert.Equal(t, pollUnknown, s.observe(genapi.StatusResult{Status: "paused"}, tick))
	assert.Equal(t, before, s)
}

func TestSubmittedSilently(t *testing.T) {
	var s State
	s.begin(4)
	s.submittedSilently()
	assert.Equal(t, progress.PhaseProcessing, s.Phase)
	assert.Equal(t, progress.SilentTarget, s.Progress.Target)
	assert.True(t, s.Silent)
	assert.Empty(t, s.JobID)
	assert.Equal(t, "Processing…", s.StatusText())
}

func TestFrame_ConvergesToTarget(t *testing.T) {
	s := queuedJob()
	s.observe(genapi.StatusResult{Status: genapi.StatusCompleted}, tick)

	frames := 0
	for !s.frame() {
		frames++
		assert.Equal(t, 100.0, s.Progress.Target, "frames never write the target")
		if frames > 200 {
			t.Fatalf("no convergence after %d frames", frames)
		}
	}
	assert.Equal(t, 100.0, s.Progress.Current)
}

func TestReset(t *testing.T) {
	s := queuedJob()
	s.observe(genapi.StatusResult{Status: genapi.StatusCompleted}, tick)
	s.PreviewError = "renderer busy"
	s.Progress.Current = 64

	s.reset(s.Epoch + 1)
	assert.Equal(t, State{Epoch: 2, Phase: progress.PhaseIdle}, s)
	assert.Nil(t, s.Previews)
	assert.False(t, s.IsGenerating())
}

func TestStatusText(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  string
	}{
		{name: "idle", state: State{Phase: progress.PhaseIdle}, want: "Idle"},
		{name: "starting", state: State{Phase: progress.PhaseStarting}, want: "Starting…"},
		{name: "queued", state: State{Phase: progress.PhaseQueued, QueueTime: 12}, want: "Queued (12s)"},
		{name: "processing", state: State{Phase: progress.PhaseProcessing, ProcessingTime: 90}, want: "Processing… (1m30s)"},
		{name: "completed", state: State{Phase: progress.PhaseCompleted}, want: "Completed"},
		{name: "download error", state: State{Phase: progress.PhaseCompleted, Error: "download failed: boom"}, want: "download failed: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.StatusText())
		})
	}
}
