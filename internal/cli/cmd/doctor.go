package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mapgen/internal/dirs"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "doctor",
		Short:         "Check configuration and that the generation service is reachable",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if used := viper.ConfigFileUsed(); used != "" {
				fmt.Fprintf(out, "Config:   %s\n", used)
			} else if dir, err := dirs.ConfigDir(); err == nil {
				fmt.Fprintf(out, "Config:   none (looked in %s)\n", dir)
			}

			s, err := serverSettings()
			if err != nil {
				return err
			}
			client, err := newClient(s, newLogger(s, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			if err := client.Ping(cmd.Context()); err != nil {
				return exitFor(err)
			}
			fmt.Fprintf(out, "Server:   %s (reachable)\n", client.BaseURL())
			if s.BackendVersion != "" {
				fmt.Fprintf(out, "Backend:  %s\n", s.BackendVersion)
			}
			fmt.Fprintf(out, "Poll:     every %s\n", s.PollInterval)
			return nil
		},
	}
}
