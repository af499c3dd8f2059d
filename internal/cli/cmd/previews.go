package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mapgen/internal/util/format"
)

func newPreviewsCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "previews TASK_ID",
		Short:         "List the preview artifacts of a completed task",
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
			res, err := client.Previews(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return exitFor(err)
			}

			out := cmd.OutOrStdout()
			if len(res.Previews) == 0 {
				fmt.Fprintln(out, "No previews.")
				return nil
			}
			for _, p := range res.Previews {
				fmt.Fprintf(out, "%-24s %-8s %10s  %s\n", p.Filename, p.Kind, format.HumanizeBytes(p.Size), p.URL)
			}
			return nil
		},
	}
}
