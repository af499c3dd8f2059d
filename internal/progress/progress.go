package progress

import "math"

// Phase identifies where a generation job is in its lifecycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseStarting   Phase = "starting"
	PhaseQueued     Phase = "queued"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// Active reports whether a job in this phase is still owned by the controller's loops.
func (p Phase) Active() bool {
	return p == PhaseStarting || p == PhaseQueued || p == PhaseProcessing
}

// Label is the short human status shown next to the bar.
func (p Phase) Label() string {
	switch p {
	case PhaseStarting:
		return "Starting…"
	case PhaseQueued:
		return "Queued"
	case PhaseProcessing:
		return "Processing…"
	case PhaseCompleted:
		return "Completed"
	case PhaseFailed:
		return "Failed"
	default:
		return "Idle"
	}
}

// Target percentages pinned to lifecycle events.
const (
	SubmittedTarget = 10.0
	ProcessingBase  = 25.0
	SilentTarget    = 50.0
	CompletedTarget = 100.0
	FailedTarget    = 0.0

	queuedCeiling     = 20.0
	processingCeiling = 85.0
)

// QueuedTarget maps seconds spent queued to a target in [10,20].
func QueuedTarget(queueSeconds float64) float64 {
	if queueSeconds < 0 {
		queueSeconds = 0
	}
	return math.Min(SubmittedTarget+queueSeconds/6, queuedCeiling)
}

// ProcessingTarget maps seconds spent processing to a target in [25,85].
// Processing advances roughly four times faster than queueing, but never
// crosses into the band reserved for confirmed completion.
func ProcessingTarget(processingSeconds float64) float64 {
	if processingSeconds < 0 {
		processingSeconds = 0
	}
	return math.Min(ProcessingBase+processingSeconds/1.5, processingCeiling)
}

// Animation constants for Ease.
const (
	EaseFactor   = 0.04
	SnapDistance = 0.2
)

// Ease advances current one animation frame toward target. done is true once
// the two are within SnapDistance, in which case next equals target.
func Ease(current, target float64) (next float64, done bool) {
	if math.Abs(target-current) < SnapDistance {
		return target, true
	}
	next = current + (target-current)*EaseFactor
	if math.Abs(target-next) < SnapDistance {
		return target, true
	}
	return next, false
}

// Progress pairs the displayed value with the authoritative target, both 0..100.
type Progress struct {
	Current float64
	Target  float64
}

// Update conveys a controller state change to observers.
type Update struct {
	Epoch        uint64
	Phase        Phase
	Progress     Progress
	JobID        string
	Silent       bool
	Message      string // short human-friendly status line
	Error        string
	PreviewError string
}

// Reporter is implemented by the UI or any observer interested in job progress.
type Reporter interface {
	Update(u Update)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Update)

func (f ReporterFunc) Update(u Update) { f(u) }
