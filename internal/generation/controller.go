// Package generation drives one remote map generation job at a time: submit,
// poll, animate progress, fetch previews, download, reset.
package generation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mapgen/internal/genapi"
	"mapgen/internal/model"
	"mapgen/internal/progress"
)

// Default timings.
const (
	DefaultPollInterval  = 3 * time.Second
	DefaultFrameInterval = 16 * time.Millisecond
	DefaultResetDelay    = time.Second
)

// Service is the remote generation contract the controller consumes.
type Service interface {
	Submit(ctx context.Context, req model.GenerateRequest) (genapi.SubmitResult, error)
	Status(ctx context.Context, taskID string) (genapi.StatusResult, error)
	Previews(ctx context.Context, taskID string) (genapi.PreviewsResult, error)
	Download(ctx context.Context, taskID string) (*genapi.Archive, error)
}

// Controller owns the lifecycle store and the two timing loops that write to
// it: a fixed-delay status poller and a per-frame progress animator. Every
// asynchronous callback carries the epoch it was started under and drops its
// result if a reset or a newer job has moved the epoch on.
type Controller struct {
	svc      Service
	reporter progress.Reporter
	logger   zerolog.Logger

	pollInterval  time.Duration
	frameInterval time.Duration
	resetDelay    time.Duration

	mu          sync.Mutex
	state       State
	closed      bool
	animating   bool
	downloading bool
	jobCtx    context.Context
	cancelJob context.CancelFunc
	settled   chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithReporter attaches a progress observer (used by the TUI).
func WithReporter(r progress.Reporter) Option {
	return func(c *Controller) {
		c.reporter = r
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithPollInterval overrides the status poll delay.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithFrameInterval overrides the animation frame period.
func WithFrameInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.frameInterval = d
		}
	}
}

// WithResetDelay overrides the pause between a finished download and the reset.
func WithResetDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.resetDelay = d
		}
	}
}

// New constructs an idle Controller.
func New(svc Service, opts ...Option) *Controller {
	c := &Controller{
		svc:           svc,
		logger:        zerolog.Nop(),
		pollInterval:  DefaultPollInterval,
		frameInterval: DefaultFrameInterval,
		resetDelay:    DefaultResetDelay,
		state:         State{Phase: progress.PhaseIdle},
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With().Str("component", "generation").Logger()
	return c
}

// PollInterval returns the configured poll delay.
func (c *Controller) PollInterval() time.Duration {
	return c.pollInterval
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// IsGenerating reports whether a job is in flight.
func (c *Controller) IsGenerating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.IsGenerating()
}

// Start submits a new job. It blocks for the submission call only; polling
// and animation continue in the background. While a job is in flight Start
// returns ErrJobActive and changes nothing.
func (c *Controller) Start(ctx context.Context, req model.GenerateRequest) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.IsGenerating() {
		c.mu.Unlock()
		return ErrJobActive
	}
	c.stopJobLocked()
	epoch := c.state.Epoch + 1
	c.state.begin(epoch)
	c.jobCtx, c.cancelJob = context.WithCancel(context.Background())
	c.settled = make(chan struct{})
	snap := c.state.clone()
	c.mu.Unlock()
	c.emit(snap)

	res, err := c.svc.Submit(ctx, req)

	c.mu.Lock()
	if c.state.Epoch != epoch {
		c.mu.Unlock()
		return ErrSuperseded
	}
	switch {
	case err != nil:
		c.state.submissionFailed(err.Error())
		c.closeSettledLocked()
		snap = c.state.clone()
		c.mu.Unlock()
		c.logger.Error().Err(err).Uint64("epoch", epoch).Msg("submission failed")
		c.emit(snap)
		return &Error{Kind: KindSubmission, Op: "submit", Err: err}
	case res.Silent:
		c.state.submittedSilently()
		c.kickAnimatorLocked()
		c.closeSettledLocked()
		snap = c.state.clone()
		c.mu.Unlock()
		c.logger.Info().Uint64("epoch", epoch).Msg("submission accepted without a task id; nothing to poll")
		c.emit(snap)
		return nil
	default:
		c.state.submitted(res.TaskID)
		c.kickAnimatorLocked()
		go c.poll(c.jobCtx, epoch, res.TaskID)
		snap = c.state.clone()
		c.mu.Unlock()
		c.logger.Info().Uint64("epoch", epoch).Str("task_id", res.TaskID).Msg("job queued")
		c.emit(snap)
		return nil
	}
}

// Wait blocks until the current job settles (failed, completed with previews
// resolved, silently accepted, reset, or closed) and returns the state.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	c.mu.Lock()
	ch := c.settled
	c.mu.Unlock()
	if ch == nil {
		return c.Snapshot(), nil
	}
	select {
	case <-ch:
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

// poll queries the job status at a fixed delay. The next timer is armed only
// after the previous response has been applied, so responses never overlap.
func (c *Controller) poll(ctx context.Context, epoch uint64, taskID string) {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()
	log := c.logger.With().Str("task_id", taskID).Uint64("epoch", epoch).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		res, err := c.svc.Status(ctx, taskID)

		c.mu.Lock()
		if c.state.Epoch != epoch || ctx.Err() != nil {
			c.mu.Unlock()
			return
		}
		if err != nil {
			c.mu.Unlock()
			log.Warn().Err(&Error{Kind: KindTransientPoll, Op: "status", Err: err}).Msg("status poll failed; retrying")
			timer.Reset(c.pollInterval)
			continue
		}
		prev := c.state.Phase
		outcome := c.state.observe(res, c.pollInterval)
		c.kickAnimatorLocked()
		snap := c.state.clone()
		if outcome == pollFailed {
			c.closeSettledLocked()
		}
		c.mu.Unlock()

		if snap.Phase != prev {
			log.Info().Str("from", string(prev)).Str("to", string(snap.Phase)).Msg("phase changed")
		}
		switch outcome {
		case pollUnknown:
			log.Warn().Str("status", res.Status).Msg("unrecognised job status; retrying")
			timer.Reset(c.pollInterval)
		case pollFailed:
			log.Error().Err(&Error{Kind: KindJobFailed, Op: "generation", Err: errors.New(snap.Error)}).Msg("job failed")
			c.emit(snap)
			return
		case pollCompleted:
			c.emit(snap)
			go c.fetchPreviews(ctx, epoch, taskID)
			return
		default:
			c.emit(snap)
			timer.Reset(c.pollInterval)
		}
	}
}

// fetchPreviews runs once per completed job. Failure only fills PreviewError.
func (c *Controller) fetchPreviews(ctx context.Context, epoch uint64, taskID string) {
	res, err := c.svc.Previews(ctx, taskID)

	c.mu.Lock()
	if c.state.Epoch != epoch || ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.state.PreviewError = err.Error()
	} else {
		c.state.Previews = append([]model.PreviewArtifact{}, res.Previews...)
	}
	c.closeSettledLocked()
	snap := c.state.clone()
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(&Error{Kind: KindPreviewFetch, Op: "previews", Err: err}).Str("task_id", taskID).Msg("previews unavailable")
	} else {
		c.logger.Info().Str("task_id", taskID).Int("count", len(snap.Previews)).Msg("previews fetched")
	}
	c.emit(snap)
}

// kickAnimatorLocked starts the animation loop unless it is already running
// or there is nothing to animate. Callers hold c.mu.
func (c *Controller) kickAnimatorLocked() {
	if c.animating || c.jobCtx == nil || c.state.Progress.Current == c.state.Progress.Target {
		return
	}
	c.animating = true
	go c.animate(c.jobCtx, c.state.Epoch)
}

// animate eases Progress.Current toward Progress.Target once per frame and
// exits when they meet. It never writes Target.
func (c *Controller) animate(ctx context.Context, epoch uint64) {
	ticker := time.NewTicker(c.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		c.mu.Lock()
		if c.state.Epoch != epoch {
			c.mu.Unlock()
			return
		}
		done := c.state.frame()
		if done {
			c.animating = false
		}
		snap := c.state.clone()
		c.mu.Unlock()

		c.emit(snap)
		if done {
			return
		}
	}
}

// Download streams the finished job's archive into dir and returns the file
// path. On success the controller resets itself after the reset delay; on
// failure the job stays in place so the download can be retried. Only one
// download runs at a time; a second call returns ErrDownloadInProgress.
func (c *Controller) Download(ctx context.Context, dir string) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if c.state.Phase != progress.PhaseCompleted || c.state.JobID == "" {
		c.mu.Unlock()
		return "", ErrNotCompleted
	}
	if c.downloading {
		c.mu.Unlock()
		return "", ErrDownloadInProgress
	}
	c.downloading = true
	epoch, taskID := c.state.Epoch, c.state.JobID
	c.mu.Unlock()

	path, err := SaveArchive(ctx, c.svc, taskID, dir)

	c.mu.Lock()
	c.downloading = false
	if c.state.Epoch != epoch {
		c.mu.Unlock()
		if err != nil {
			return "", ErrSuperseded
		}
		return path, nil
	}
	if err != nil {
		c.state.Error = "download failed: " + err.Error()
		snap := c.state.clone()
		c.mu.Unlock()
		c.logger.Error().Err(err).Str("task_id", taskID).Msg("download failed")
		c.emit(snap)
		return "", &Error{Kind: KindDownload, Op: "download", Err: err}
	}
	c.state.Error = ""
	snap := c.state.clone()
	jobCtx := c.jobCtx
	c.mu.Unlock()

	c.logger.Info().Str("task_id", taskID).Str("path", path).Msg("archive saved")
	c.emit(snap)
	go c.resetAfter(jobCtx, epoch)
	return path, nil
}

func (c *Controller) resetAfter(ctx context.Context, epoch uint64) {
	t := time.NewTimer(c.resetDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return
	case <-t.C:
	}
	c.mu.Lock()
	if c.closed || c.state.Epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.resetLocked()
	snap := c.state.clone()
	c.mu.Unlock()
	c.emit(snap)
}

// Reset cancels every timer and returns the controller to Idle. It is safe to
// call at any time, any number of times.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.resetLocked()
	snap := c.state.clone()
	c.mu.Unlock()
	c.logger.Debug().Uint64("epoch", snap.Epoch).Msg("controller reset")
	c.emit(snap)
}

func (c *Controller) resetLocked() {
	c.stopJobLocked()
	c.closeSettledLocked()
	c.state.reset(c.state.Epoch + 1)
}

// Close stops both loops for good. The state is left as it was; nothing
// mutates it afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.stopJobLocked()
	c.closeSettledLocked()
	c.state.Epoch++
}

func (c *Controller) stopJobLocked() {
	if c.cancelJob != nil {
		c.cancelJob()
		c.cancelJob = nil
	}
	c.animating = false
}

func (c *Controller) closeSettledLocked() {
	if c.settled == nil {
		return
	}
	select {
	case <-c.settled:
	default:
		close(c.settled)
	}
}

func (c *Controller) emit(s State) {
	if c.reporter == nil {
		return
	}
	c.reporter.Update(progress.Update{
		Epoch:        s.Epoch,
		Phase:        s.Phase,
		Progress:     s.Progress,
		JobID:        s.JobID,
		Silent:       s.Silent,
		Message:      s.StatusText(),
		Error:        s.Error,
		PreviewError: s.PreviewError,
	})
}
