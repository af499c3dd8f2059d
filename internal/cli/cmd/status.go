package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mapgen/internal/genapi"
	"mapgen/internal/progress"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "status TASK_ID",
		Short:         "Query the status of a generation task once",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := serverSettings()
			if err != nil {
				return err
			}
			client, err := newClient(s, newLogger(s, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			taskID := strings.TrimSpace(args[0])
			res, err := client.Status(cmd.Context(), taskID)
			if err != nil {
				return exitFor(err)
			}

			out := cmd.OutOrStdout()
			label := res.Status
			switch res.Status {
			case genapi.StatusQueued:
				label = progress.PhaseQueued.Label()
			case genapi.StatusProcessing:
				label = progress.PhaseProcessing.Label()
			case genapi.StatusCompleted:
				label = progress.PhaseCompleted.Label()
			case genapi.StatusFailed:
				label = progress.PhaseFailed.Label()
			}
			fmt.Fprintf(out, "Task:   %s\nStatus: %s\n", taskID, label)
			if res.Status == genapi.StatusFailed {
				msg := res.Error
				if msg == "" {
					msg = "generation failed"
				}
				fmt.Fprintf(out, "Error:  %s\n", msg)
				return &ExitError{Code: ExitJobFailed, Err: errors.New(msg)}
			}
			return nil
		},
	}
}
