package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hebbzhu/baton/internal/config"
	"github.com/hebbzhu/baton/internal/dashboard"
	"github.com/hebbzhu/baton/internal/logging"
	"github.com/hebbzhu/baton/internal/printer"
)

var (
	serveExportDir string
	serveHost      string
	servePort      int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve exported run artifacts over HTTP",
	Long: `Serve the metrics, recordings, and results exported by 'baton run
--export-dir' as a read-only JSON API.

Endpoints:
  GET /api/health
  GET /api/tasks
  GET /api/tasks/{id}/metrics
  GET /api/tasks/{id}/recording
  GET /api/tasks/{id}/timeline

Examples:
  # Serve the default export directory
  baton serve

  # Serve a specific directory on another port
  baton serve --export-dir ./exports --port 9000`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveExportDir, "export-dir", "exports", "Directory of exported run artifacts")
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind")
	serveCmd.Flags().IntVar(&servePort, "port", 8484, "Port to bind")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{"Run 'baton init' to scaffold a fresh baton.yml"},
		)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	server := dashboard.NewServer(serveExportDir, serveHost, servePort)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
