package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"mapgen/internal/config"
	"mapgen/internal/mockserver"
)

func newMockServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mock-server",
		Short:         "Run an in-memory generation service for local development",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			queueFor, _ := cmd.Flags().GetDuration("queue")
			processFor, _ := cmd.Flags().GetDuration("process")

			s := config.Current()
			logger := newLogger(s, cmd.ErrOrStderr())
			srv := mockserver.New(mockserver.Options{
				QueueFor:   queueFor,
				ProcessFor: processFor,
				Logger:     &logger,
			})

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("listen %s: %w", addr, err)}
			}
			httpSrv := &http.Server{
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Mock generation service listening on http://%s\n", ln.Addr())
			return serveUntilDone(cmd.Context(), httpSrv, ln)
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().Duration("queue", 6*time.Second, "How long new tasks report queued")
	cmd.Flags().Duration("process", 12*time.Second, "How long tasks then report processing")
	return cmd
}

func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return &ExitError{Code: ExitCLIError, Err: err}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return &ExitError{Code: ExitCLIError, Err: err}
		}
		return nil
	}
}
