package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/torkjacobs/tork-guardian/internal/server"
	"github.com/torkjacobs/tork-guardian/internal/store"
)

var (
	serveAddr         string
	serveStartupPorts []int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local decision server",
	Long: `Run a loopback HTTP server that keeps one Guardian alive so port owners,
rate windows and shell history persist across checks. Decisions are also
written to the SQLite activity store.

Endpoints:
  POST   /v1/decide     decide one event (same JSON as "torkguard hook")
  POST   /v1/llm        govern an LLM request
  GET    /v1/activity   activity log (?source=store&skill=&action=&denied=true&limit=)
  DELETE /v1/activity   clear the activity log
  GET    /v1/report     network monitor report
  GET    /healthz       liveness`,
	Args: cobra.NoArgs,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "listen", "127.0.0.1:7878", "Address to listen on")
	serveCmd.Flags().IntSliceVar(&serveStartupPorts, "startup-ports", nil, "Ports already open before any skill ran")
	rootCmd.AddCommand(serveCmd)
}

func serveCommand(cmd *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return fmt.Errorf("failed to resolve paths: %w", err)
	}
	st, err := store.Open(paths.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open activity store: %w", err)
	}
	defer func() { _ = st.Close() }()

	s, err := openSession(st)
	if err != nil {
		return err
	}
	defer s.Close()
	if len(serveStartupPorts) > 0 {
		s.guardian.SnapshotStartupPorts(serveStartupPorts)
	}

	srv := server.New(server.Config{
		ListenAddr: serveAddr,
		Guardian:   s.guardian,
		Store:      st,
		Logger:     s.logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	fmt.Fprintf(cmd.ErrOrStderr(), "%s on %s\n", paint(cmd.ErrOrStderr(), headerStyle, "Tork Guardian listening"), serveAddr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down decision server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
