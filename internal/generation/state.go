package generation

import (
	"fmt"
	"strings"
	"time"

	"mapgen/internal/genapi"
	"mapgen/internal/model"
	"mapgen/internal/progress"
)

// State is the lifecycle store for one generation job. Each field has a single
// writer: the poller owns Phase, Progress.Target and the timers; the animator
// owns Progress.Current; the submitter owns JobID and the initial phase; the
// preview fetcher and download coordinator own Previews and the error slots.
type State struct {
	Epoch          uint64
	Phase          progress.Phase
	Progress       progress.Progress
	QueueTime      float64 // seconds, poll-interval increments
	ProcessingTime float64 // seconds, poll-interval increments
	JobID          string
	Silent         bool // accepted without a task id
	Error          string
	PreviewError   string
	Previews       []model.PreviewArtifact
}

// IsGenerating reports whether a job is still in flight.
func (s State) IsGenerating() bool {
	return s.Phase.Active()
}

// StatusText is the one-line status shown to the user.
func (s State) StatusText() string {
	switch {
	case s.Phase == progress.PhaseFailed:
		if s.Error == "" {
			return "Failed"
		}
		return "Failed: " + s.Error
	case s.Error != "":
		return s.Error
	case s.Phase == progress.PhaseQueued:
		return fmt.Sprintf("Queued (%s)", seconds(s.QueueTime))
	case s.Phase == progress.PhaseProcessing && !s.Silent:
		return fmt.Sprintf("Processing… (%s)", seconds(s.ProcessingTime))
	default:
		return s.Phase.Label()
	}
}

func seconds(v float64) string {
	return (time.Duration(v * float64(time.Second))).Round(time.Second).String()
}

func (s State) clone() State {
	if s.Previews != nil {
		s.Previews = append([]model.PreviewArtifact(nil), s.Previews...)
	}
	return s
}

type pollOutcome int

const (
	pollContinue pollOutcome = iota
	pollFailed
	pollCompleted
	pollUnknown
)

// begin starts a clean slate for a new job.
func (s *State) begin(epoch uint64) {
	*s = State{Epoch: epoch, Phase: progress.PhaseStarting}
}

// submitted records a successful submission that issued a task id.
func (s *State) submitted(taskID string) {
	s.JobID = taskID
	s.Phase = progress.PhaseQueued
	s.QueueTime = 0
	s.ProcessingTime = 0
	s.Progress.Target = progress.SubmittedTarget
}

// submittedSilently records a submission accepted without a task id. The job
// stays in processing bookkeeping; there is nothing to poll.
func (s *State) submittedSilently() {
	s.Silent = true
	s.Phase = progress.PhaseProcessing
	s.Progress.Target = progress.SilentTarget
}

// submissionFailed records a fatal submission error.
func (s *State) submissionFailed(msg string) {
	s.Phase = progress.PhaseFailed
	s.Error = msg
	s.Progress.Target = progress.FailedTarget
}

// observe applies one poll result. interval is the fixed poll delay that
// elapsed since the previous observation.
func (s *State) observe(res genapi.StatusResult, interval time.Duration) pollOutcome {
	step := interval.Seconds()
	switch res.Status {
	case genapi.StatusFailed:
		msg := strings.TrimSpace(res.Error)
		if msg == "" {
			msg = "generation failed"
		}
		s.Phase = progress.PhaseFailed
		s.Error = msg
		s.Progress.Target = progress.FailedTarget
		return pollFailed
	case genapi.StatusQueued:
		if s.Phase == progress.PhaseProcessing {
			// phases never move backwards
			return pollContinue
		}
		s.Phase = progress.PhaseQueued
		s.QueueTime += step
		s.Progress.Target = progress.QueuedTarget(s.QueueTime)
		return pollContinue
	case genapi.StatusProcessing:
		if s.Phase != progress.PhaseProcessing {
			s.Phase = progress.PhaseProcessing
			s.Progress.Target = progress.ProcessingBase
			return pollContinue
		}
		s.ProcessingTime += step
		s.Progress.Target = progress.ProcessingTarget(s.ProcessingTime)
		return pollContinue
	case genapi.StatusCompleted:
		s.Phase = progress.PhaseCompleted
		s.Progress.Target = progress.CompletedTarget
		return pollCompleted
	default:
		return pollUnknown
	}
}

// frame advances the displayed progress one animation step.
func (s *State) frame() (done bool) {
	s.Progress.Current, done = progress.Ease(s.Progress.Current, s.Progress.Target)
	return done
}

// reset returns the store to Idle under a new epoch.
func (s *State) reset(epoch uint64) {
	*s = State{Epoch: epoch, Phase: progress.PhaseIdle}
}
