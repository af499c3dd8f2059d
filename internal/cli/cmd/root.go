package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"mapgen/internal/config"
	"mapgen/internal/genapi"
	"mapgen/internal/generation"
	"mapgen/internal/logging"
)

const (
	ExitOK            = 0
	ExitCLIError      = 1
	ExitSubmitError   = 2
	ExitJobFailed     = 3
	ExitDownloadError = 4
	ExitUnreachable   = 5
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mapgen",
		Short:         "Drive remote terrain generation jobs from the terminal",
		Long:          "mapgen submits map generation settings to a remote generation service, tracks the job through queueing and processing with an estimated progress bar, lists the previews it produced, and downloads the finished archive.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Init(cmd.Root()); err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			return nil
		},
	}

	bindPersistentFlags(root.PersistentFlags())

	root.AddCommand(newGenerateCmd())
	root.AddCommand(newTuiCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newPreviewsCmd())
	root.AddCommand(newDownloadCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newMockServerCmd())
	root.AddCommand(newCompletionCmd())

	return root
}

func bindPersistentFlags(fs *pflag.FlagSet) {
	fs.String("server", "", "Generation service URL (env MAPGEN_SERVER_URL)")
	fs.String("backend-version", "", "Backend version sent as X-Backend-Version")
	fs.StringP("out-dir", "o", ".", "Directory for downloaded archives")
	fs.Duration("poll-interval", generation.DefaultPollInterval, "Delay between status polls")
	fs.Duration("request-timeout", 30*time.Second, "Timeout for a single HTTP request")
	fs.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	fs.String("log-format", "console", "Log format: console, json")
	fs.BoolP("verbose", "v", false, "Log HTTP calls and state transitions (debug level)")
}

// Execute runs the CLI with the provided context.
func Execute(ctx context.Context) error {
	root := newRootCmd()
	return root.ExecuteContext(ctx)
}

// Helpers

// serverSettings resolves configuration for commands that talk to the service.
func serverSettings() (config.Settings, error) {
	s := config.Current()
	if err := s.Validate(); err != nil {
		return s, &ExitError{Code: ExitCLIError, Err: err}
	}
	return s, nil
}

func newLogger(s config.Settings, w io.Writer) zerolog.Logger {
	return logging.New(s.LogLevel, s.LogFormat, w)
}

func newClient(s config.Settings, logger zerolog.Logger) (*genapi.Client, error) {
	c, err := genapi.NewClient(genapi.Options{
		BaseURL:        s.ServerURL,
		BackendVersion: s.BackendVersion,
		Logger:         &logger,
		RequestTimeout: s.RequestTimeout,
	})
	if err != nil {
		return nil, &ExitError{Code: ExitCLIError, Err: err}
	}
	return c, nil
}

// exitFor maps a failure to its process exit code.
func exitFor(err error) error {
	if err == nil {
		return nil
	}
	var ee *ExitError
	switch {
	case errors.As(err, &ee):
		return ee
	case errors.Is(err, genapi.ErrUnreachable):
		return &ExitError{Code: ExitUnreachable, Err: err}
	case generation.IsKind(err, generation.KindSubmission):
		return &ExitError{Code: ExitSubmitError, Err: err}
	case generation.IsKind(err, generation.KindDownload):
		return &ExitError{Code: ExitDownloadError, Err: err}
	case errors.Is(err, context.Canceled):
		return &ExitError{Code: ExitCLIError, Err: errors.New("interrupted")}
	default:
		return &ExitError{Code: ExitCLIError, Err: err}
	}
}

func jobFailed(s generation.State) error {
	msg := s.Error
	if msg == "" {
		msg = "generation failed"
	}
	return &ExitError{Code: ExitJobFailed, Err: fmt.Errorf("job %s failed: %s", s.JobID, msg)}
}
