package cmd

import (
	"github.com/spf13/cobra"
)

func newTuiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tui",
		Short:         "Force TUI mode for an interactive generation",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Force TUI; if stdout is not a terminal, runGenerateTUI errors out.
			return runGenerate(cmd, runMode{ForceTUI: true})
		},
	}
	bindGenerateFlags(cmd.Flags())
	// In TUI mode, '--no-ui' and '--wait' make no sense.
	for _, name := range []string{"no-ui", "wait"} {
		if f := cmd.Flags().Lookup(name); f != nil {
			f.Hidden = true
		}
	}
	return cmd
}
