package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"mapgen/internal/genapi"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "plan",
		Short:         "Show the submission request without sending it",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := assembleGenerateInputs(cmd)
			if err != nil {
				return err
			}
			body, err := genapi.EncodeSubmit(in.Request)
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, body, "", "  "); err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Dry-run plan:")
			fmt.Fprintf(out, "- Request:        POST %s/api/generate\n", in.Options.ServerURL)
			if in.Options.BackendVersion != "" {
				fmt.Fprintf(out, "- Backend:        %s\n", in.Options.BackendVersion)
			}
			fmt.Fprintf(out, "- Poll interval:  %s\n", in.Options.PollInterval)
			fmt.Fprintf(out, "- Output dir:     %s\n", in.Options.OutDir)
			fmt.Fprintf(out, "- Auto download:  %v\n", in.Options.Download)
			fmt.Fprintf(out, "- Body:\n%s\n", pretty.String())
			return nil
		},
	}
	// Reuse generate flags; plan never submits
	bindGenerateFlags(cmd.Flags())
	return cmd
}
