package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"mapgen/internal/config"
	"mapgen/internal/dirs"
	"mapgen/internal/generation"
	"mapgen/internal/logging"
	"mapgen/internal/model"
	"mapgen/internal/progress"
	"mapgen/internal/ui"
	"mapgen/internal/util/format"
)

type runMode struct {
	ForceTUI bool
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "generate",
		Short:         "Submit a generation job and track it to completion",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, runMode{})
		},
	}
	bindGenerateFlags(cmd.Flags())
	return cmd
}

func bindGenerateFlags(fs *pflag.FlagSet) {
	fs.String("settings", "", "Settings document (YAML or JSON)")
	fs.String("aux", "", "Optional auxiliary data document")
	fs.String("template", "", "Optional template document")
	fs.Bool("no-ui", false, "Disable TUI; use plain textual output")
	fs.Bool("download", false, "Download the archive as soon as the job completes")
	fs.Bool("wait", true, "Track the job after submission")
	fs.BoolP("yes", "y", false, "Do not ask before downloading")
}

type generateInputs struct {
	Settings config.Settings
	Request  model.GenerateRequest
	Options  model.CLIOptions
	Yes      bool
}

func assembleGenerateInputs(cmd *cobra.Command) (generateInputs, error) {
	s, err := serverSettings()
	if err != nil {
		return generateInputs{}, err
	}
	settingsPath, _ := cmd.Flags().GetString("settings")
	auxPath, _ := cmd.Flags().GetString("aux")
	templatePath, _ := cmd.Flags().GetString("template")
	noUI, _ := cmd.Flags().GetBool("no-ui")
	download, _ := cmd.Flags().GetBool("download")
	wait, _ := cmd.Flags().GetBool("wait")
	yes, _ := cmd.Flags().GetBool("yes")

	if settingsPath == "" {
		return generateInputs{}, &ExitError{Code: ExitCLIError, Err: errors.New("--settings is required")}
	}
	var req model.GenerateRequest
	for _, doc := range []struct {
		path string
		dst  *model.Document
	}{
		{settingsPath, &req.Settings},
		{auxPath, &req.AuxiliaryData},
		{templatePath, &req.Template},
	} {
		d, err := model.LoadDocument(doc.path)
		if err != nil {
			return generateInputs{}, &ExitError{Code: ExitCLIError, Err: err}
		}
		*doc.dst = d
	}

	return generateInputs{
		Settings: s,
		Request:  req,
		Yes:      yes,
		Options: model.CLIOptions{
			ServerURL:      s.ServerURL,
			BackendVersion: s.BackendVersion,
			OutDir:         filepath.Clean(s.OutDir),
			PollInterval:   s.PollInterval,
			RequestTimeout: s.RequestTimeout,
			Verbose:        s.Verbose,
			NoUI:           noUI,
			Download:       download,
			Wait:           wait,
		},
	}, nil
}

func runGenerate(cmd *cobra.Command, mode runMode) error {
	in, err := assembleGenerateInputs(cmd)
	if err != nil {
		return err
	}

	// TUI path (forced or auto if TTY and not disabled)
	useTUI := mode.ForceTUI || (!in.Options.NoUI && in.Options.Wait && isTerminal())
	if useTUI {
		return runGenerateTUI(cmd.Context(), in)
	}
	return runGeneratePlain(cmd, in)
}

func runGenerateTUI(ctx context.Context, in generateInputs) error {
	if !isTerminal() {
		return &ExitError{Code: ExitCLIError, Err: errors.New("the TUI needs an interactive terminal; use --no-ui")}
	}
	logger := logging.Discard()
	if path, err := dirs.LogFile(); err == nil {
		if err := dirs.Ensure(filepath.Dir(path)); err == nil {
			if f, err := logging.OpenFile(path); err == nil {
				defer f.Close()
				logger = newLogger(in.Settings, f)
			}
		}
	}
	client, err := newClient(in.Settings, logger)
	if err != nil {
		return err
	}

	res, err := ui.Run(ctx, client, in.Request, in.Options, logger)
	if err != nil {
		return exitFor(err)
	}
	if res.SavedPath != "" {
		fmt.Printf("Saved: %s\n", res.SavedPath)
	}
	switch {
	case res.StartErr != nil && !errors.Is(res.StartErr, generation.ErrSuperseded):
		return exitFor(res.StartErr)
	case res.DownloadErr != nil:
		return exitFor(res.DownloadErr)
	case res.State.Phase == progress.PhaseFailed:
		return jobFailed(res.State)
	}
	return nil
}

func runGeneratePlain(cmd *cobra.Command, in generateInputs) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	logger := newLogger(in.Settings, cmd.ErrOrStderr())
	client, err := newClient(in.Settings, logger)
	if err != nil {
		return err
	}

	ctrl := generation.New(client,
		generation.WithLogger(logger),
		generation.WithPollInterval(in.Options.PollInterval),
		generation.WithReporter(&plainReporter{w: out}),
	)
	defer ctrl.Close()

	if err := ctrl.Start(ctx, in.Request); err != nil {
		return exitFor(err)
	}
	snap := ctrl.Snapshot()
	if !in.Options.Wait {
		if snap.JobID != "" {
			fmt.Fprintf(out, "Submitted: task %s\n", snap.JobID)
		} else {
			fmt.Fprintln(out, "Submitted: the service did not issue a task id")
		}
		return nil
	}

	final, err := ctrl.Wait(ctx)
	if err != nil {
		return exitFor(err)
	}
	switch final.Phase {
	case progress.PhaseFailed:
		return jobFailed(final)
	case progress.PhaseProcessing:
		if final.Silent {
			fmt.Fprintln(out, "The service accepted the job without a task id; completion cannot be tracked.")
			return nil
		}
	case progress.PhaseCompleted:
	default:
		return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("job ended in unexpected phase %q", final.Phase)}
	}

	printPreviews(out, final)

	download := in.Options.Download
	if !download && !in.Yes && isInteractive() {
		download, err = confirmDownload(in.Options.OutDir)
		if err != nil {
			return &ExitError{Code: ExitCLIError, Err: err}
		}
	} else if in.Yes {
		download = true
	}
	if !download {
		fmt.Fprintf(out, "Download later with: mapgen download %s\n", final.JobID)
		return nil
	}

	path, err := ctrl.Download(ctx, in.Options.OutDir)
	if err != nil {
		return exitFor(err)
	}
	fmt.Fprintf(out, "Saved: %s (%s)\n", path, fileSize(path))
	return nil
}

func printPreviews(w io.Writer, s generation.State) {
	if s.PreviewError != "" {
		fmt.Fprintf(w, "Previews unavailable: %s\n", s.PreviewError)
		return
	}
	if len(s.Previews) == 0 {
		return
	}
	fmt.Fprintln(w, "Previews:")
	for _, p := range s.Previews {
		fmt.Fprintf(w, "  - %s (%s, %s) %s\n", p.Filename, p.Kind, format.HumanizeBytes(p.Size), p.URL)
	}
}

func confirmDownload(dir string) (bool, error) {
	ok := true
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Download the archive to %s?", dir)).
				Affirmative("Download").
				Negative("Skip").
				Value(&ok),
		),
	).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func fileSize(path string) string {
	fi, err := os.Stat(path)
	if err != nil {
		return "unknown size"
	}
	return format.HumanizeBytes(fi.Size())
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func isInteractive() bool {
	return isTerminal() && term.IsTerminal(int(os.Stdin.Fd()))
}

// plainReporter prints one line per status change; animation frames that
// only move the displayed percentage are skipped.
type plainReporter struct {
	mu   sync.Mutex
	w    io.Writer
	last string
}

func (r *plainReporter) Update(u progress.Update) {
	line := fmt.Sprintf("[%s] %s (%d%%)", u.Phase, u.Message, int(math.Round(u.Progress.Target)))
	if u.Phase == progress.PhaseIdle {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if line == r.last {
		return
	}
	r.last = line
	fmt.Fprintln(r.w, line)
}

var _ progress.Reporter = (*plainReporter)(nil)
