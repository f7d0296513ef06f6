package cmd

import (
	"fmt"

	"k8s-hpa-analyzer/internal/logs"
	"k8s-hpa-analyzer/internal/updater"

	"github.com/spf13/cobra"
)

var (
	debug        bool
	checkUpdates bool
)

var rootCmd = &cobra.Command{
	Use:   "k8s-hpa-analyzer",
	Short: "Derived-metrics engine for Kubernetes HPA autoscaling experiments",
	Long: `A terminal-based analysis engine for Kubernetes HPA autoscaling experiments.

Analysis Pipeline:
- Ingest the raw CSVs of each run (hpa_log, pod_cpu, podcount, phases)
- Align every series onto a uniform time grid
- Segment the run into load phases (baseline, high, cooldown)
- Extract derived metrics (time to scale up, stabilization, overshoot area)
- Aggregate all runs into the comparative sweep table

Outputs:
- Rendered table in the terminal + summary_table.csv
- SQLite archive of every sweep (~/.k8s-hpa-analyzer/sweeps.db)
- HTTP query API via 'k8s-hpa-analyzer serve'

Example usage:
  k8s-hpa-analyzer analyze --results ./results
  k8s-hpa-analyzer analyze -c sweep.json --workers 8
  k8s-hpa-analyzer serve --port 8080`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logs.Setup(debug)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// checkForUpdatesAsync verifica updates em background
func checkForUpdatesAsync() {
	info, err := updater.CheckForUpdates()
	if err != nil {
		// Ignorar erros silenciosamente (não atrapalhar UX)
		return
	}

	// Marcar verificação feita
	_ = updater.MarkUpdateChecked()

	if info.Available {
		// Notificar usuário
		fmt.Printf("\n🆕 Nova versão disponível: %s → %s\n", info.CurrentVersion, info.LatestVersion)
		fmt.Printf("📦 Download: %s\n", info.ReleaseURL)
		fmt.Printf("💡 Execute 'k8s-hpa-analyzer version' para mais detalhes\n\n")
	}
}

func init() {
	// Define flags
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&checkUpdates, "check-updates", true,
		"Check for updates on startup (default: true)")
}
