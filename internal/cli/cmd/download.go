package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mapgen/internal/generation"
)

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "download TASK_ID",
		Short:         "Download the archive of a completed task",
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
			path, err := generation.SaveArchive(cmd.Context(), client, strings.TrimSpace(args[0]), s.OutDir)
			if err != nil {
				return exitFor(&generation.Error{Kind: generation.KindDownload, Op: "download", Err: err})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved: %s (%s)\n", path, fileSize(path))
			return nil
		},
	}
}
