package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"k8s-hpa-analyzer/internal/results/archive"
	"k8s-hpa-analyzer/internal/web"

	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API over the sweep archive",
	Long: `Start an HTTP server exposing the archived sweeps for dashboards and scripts.

Authentication:
  Set K8S_HPA_ANALYZER_WEB_TOKEN environment variable to define your access token.
  If not set, a default token 'poc-token-123' will be used.

  All API requests must include the header:
    Authorization: Bearer <your-token>

  CSV downloads also accept ?token=<your-token> in the URL.

API Endpoints:
  GET  /health                  - Health check (no auth)
  GET  /metrics                 - Prometheus metrics (no auth)
  GET  /api/v1/sweeps           - List archived sweeps
  GET  /api/v1/sweeps/latest    - Latest sweep table
  GET  /api/v1/sweeps/:id       - Sweep table by id
  GET  /api/v1/sweeps/:id/csv   - Download sweep as CSV
  GET  /api/v1/runs/history     - Metric history of one run across sweeps
  GET  /api/v1/stats            - Archive statistics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		arch, err := archive.NewArchive(archive.DefaultArchiveConfig())
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}

		server, err := web.NewServer(arch, servePort, debug)
		if err != nil {
			return fmt.Errorf("failed to create web server: %w", err)
		}

		// Ctrl+C fecha o archive antes de sair
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		errCh := make(chan error, 1)
		go func() { errCh <- server.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-sigCh:
			return server.Shutdown()
		}
	},
}

func init() {
	// Adicionar comando ao root
	rootCmd.AddCommand(serveCmd)

	// Flags específicas do serve
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port for web server")
}
