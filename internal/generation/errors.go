package generation

import (
	"errors"
	"fmt"
)

// Kind classifies controller failures by how far they propagate.
type Kind string

const (
	// KindSubmission is fatal for the job and user-visible.
	KindSubmission Kind = "submission"
	// KindTransientPoll is logged only; polling continues.
	KindTransientPoll Kind = "transient_poll"
	// KindJobFailed is reported by the service; terminal and user-visible.
	KindJobFailed Kind = "job_failed"
	// KindPreviewFetch is isolated to the preview slot.
	KindPreviewFetch Kind = "preview_fetch"
	// KindDownload is user-visible and leaves the job in place for a retry.
	KindDownload Kind = "download"
)

var (
	// ErrJobActive is returned by Start while a job is still being tracked.
	ErrJobActive = errors.New("a generation job is already running")
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("generation controller is closed")
	// ErrNotCompleted is returned by Download before the job has completed.
	ErrNotCompleted = errors.New("no completed job to download")
	// ErrDownloadInProgress is returned by Download while another download
	// of the same job is still streaming.
	ErrDownloadInProgress = errors.New("a download is already in progress")
	// ErrSuperseded is returned when a reset overtook an in-flight call.
	ErrSuperseded = errors.New("generation was reset while the request was in flight")
)

// Error wraps a failure with its Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed", e.Op)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a controller Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}
