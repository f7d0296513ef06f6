package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"k8s-hpa-analyzer/internal/analysis/engine"
	"k8s-hpa-analyzer/internal/config"
	"k8s-hpa-analyzer/internal/logs"
	"k8s-hpa-analyzer/internal/results/archive"
	"k8s-hpa-analyzer/internal/updater"
)

var (
	configPath string
	resultsDir string
	outputDir  string
	gridSecs   int
	stabWindow int
	workers    int
	noArchive  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze sweep runs and build the comparative metrics table",
	Long: `Analyze every run of an autoscaling sweep and build the comparative metrics table.

Runs are discovered under the results directory (any directory containing
hpa_log.csv, one level of scenario nesting supported) or listed explicitly
in a JSON config file.

Per run the pipeline derives:
- time_to_scale_up_s / time_to_stabilize_s
- max_replicas, overshoot_area, pod_seconds
- avg_cpu_stabilized_pct, pod_cpu_std_dev_m
- divergence_s, avg/peak_http_rps, tracking_score

Example usage:
  # Discover runs under ./results
  k8s-hpa-analyzer analyze --results ./results

  # Explicit config with flag overrides
  k8s-hpa-analyzer analyze -c sweep.json --grid 10 --workers 8

  # Skip the SQLite archive
  k8s-hpa-analyzer analyze --results ./results --no-archive`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Verificar updates em background (não-bloqueante)
		if checkUpdates && updater.ShouldCheckForUpdates() {
			go checkForUpdatesAsync()
		}

		// Logs da análise vão para arquivo também
		if home, err := os.UserHomeDir(); err == nil {
			if closer, err := logs.SetupWithFile(debug, filepath.Join(home, ".k8s-hpa-analyzer", "logs")); err == nil {
				defer closer.Close()
			}
		}

		// Carregar configuração (flags têm precedência sobre o arquivo)
		cfg := config.DefaultSweepConfig()
		if configPath != "" {
			loaded, err := config.LoadSweepConfig(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}
		if cmd.Flags().Changed("results") {
			cfg.ResultsDir = resultsDir
		}
		if cmd.Flags().Changed("output") {
			cfg.OutputDir = outputDir
		}
		if cmd.Flags().Changed("grid") {
			cfg.GridSeconds = gridSecs
		}
		if cmd.Flags().Changed("stabilization-window") {
			cfg.StabilizationWindowSeconds = stabWindow
		}
		if cmd.Flags().Changed("workers") {
			cfg.Workers = workers
		}

		eng, err := engine.New(cfg)
		if err != nil {
			return err
		}

		runs, err := cfg.ResolveRuns()
		if err != nil {
			return err
		}

		// Ctrl+C interrompe o sweep mas ainda entrega os runs já analisados
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		table, err := eng.RunSweep(ctx, runs)
		if err != nil {
			return err
		}

		fmt.Println(table.Render())
		log.Info().Msg(table.Summary())

		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return fmt.Errorf("erro ao criar diretório de saída: %w", err)
		}
		csvPath := filepath.Join(cfg.OutputDir, "summary_table.csv")
		if err := table.SaveCSV(csvPath); err != nil {
			return err
		}
		fmt.Printf("📄 Tabela salva em: %s\n", csvPath)

		if noArchive {
			return nil
		}

		// Arquivar o sweep; falha aqui não invalida a análise
		arch, err := archive.NewArchive(archive.DefaultArchiveConfig())
		if err != nil {
			fmt.Printf("⚠️  Archive indisponível: %v\n", err)
			return nil
		}
		defer arch.Close()

		sweepID, err := arch.SaveSweep(table, cfg)
		if err != nil {
			fmt.Printf("⚠️  Erro ao arquivar sweep: %v\n", err)
			return nil
		}
		fmt.Printf("🗄️  Sweep arquivado: %s\n", sweepID)

		return nil
	},
}

func init() {
	// Adicionar comando ao root
	rootCmd.AddCommand(analyzeCmd)

	// Flags específicas do analyze
	analyzeCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to sweep config JSON")
	analyzeCmd.Flags().StringVar(&resultsDir, "results", "results", "Directory with run results")
	analyzeCmd.Flags().StringVar(&outputDir, "output", "analysis-output", "Directory for generated artifacts")
	analyzeCmd.Flags().IntVar(&gridSecs, "grid", 5, "Grid spacing in seconds")
	analyzeCmd.Flags().IntVar(&stabWindow, "stabilization-window", 60, "Stabilization window in seconds")
	analyzeCmd.Flags().IntVar(&workers, "workers", 4, "Concurrent run analyzers")
	analyzeCmd.Flags().BoolVar(&noArchive, "no-archive", false, "Skip archiving the sweep to SQLite")
}
