package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"k8s-hpa-analyzer/internal/analysis/ingest"
	"k8s-hpa-analyzer/internal/analysis/models"
)

// RunSpec aponta um diretório de run configurado explicitamente
type RunSpec struct {
	Scenario string `json:"scenario"`
	Label    string `json:"label"`
	Dir      string `json:"dir"`
}

// SweepConfig configuração de um sweep de análise
type SweepConfig struct {
	// Diretório raiz dos resultados, usado na descoberta automática
	ResultsDir string `json:"results_dir"`

	// Runs explícitos; vazio = descoberta automática em ResultsDir
	Runs []RunSpec `json:"runs,omitempty"`

	// Grade temporal
	GridSeconds         int     `json:"grid_seconds"`          // Espaçamento dos ticks (default: 5)
	RateToleranceFactor float64 `json:"rate_tolerance_factor"` // Tolerância de streams de taxa em múltiplos da grade (default: 2)

	// Extração
	StabilizationWindowSeconds int     `json:"stabilization_window_seconds"` // Janela de réplicas constantes (default: 60)
	TargetCPUUtilPercent       float64 `json:"target_cpu_util_percent"`      // Alvo do HPA em % (default: 60)
	TargetCustomRate           float64 `json:"target_custom_rate"`           // Alvo da métrica customizada em rps (default: 100)

	// Qualidade
	MaxMalformedFraction float64 `json:"max_malformed_fraction"` // Fração de linhas malformadas tolerada (default: 0.05)

	// Execução
	Workers   int    `json:"workers"`    // Runs analisados em paralelo (default: 4)
	OutputDir string `json:"output_dir"` // Destino do summary_table.csv e do archive
}

// DefaultSweepConfig retorna configuração padrão
func DefaultSweepConfig() *SweepConfig {
	return &SweepConfig{
		ResultsDir:                 "results",
		GridSeconds:                5,
		RateToleranceFactor:        2.0,
		StabilizationWindowSeconds: 60,
		TargetCPUUtilPercent:       60.0,
		TargetCustomRate:           100.0,
		MaxMalformedFraction:       0.05,
		Workers:                    4,
		OutputDir:                  "analysis-output",
	}
}

// LoadSweepConfig lê um sweep de um arquivo JSON. Campos ausentes
// mantêm os valores padrão.
func LoadSweepConfig(path string) (*SweepConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler config %s: %w", path, err)
	}

	cfg := DefaultSweepConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("erro ao fazer parse de %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StabilizationWindow retorna a janela de estabilização como Duration
func (c *SweepConfig) StabilizationWindow() time.Duration {
	return time.Duration(c.StabilizationWindowSeconds) * time.Second
}

// Validate valida a configuração
func (c *SweepConfig) Validate() error {
	if c.GridSeconds <= 0 {
		return fmt.Errorf("grid_seconds deve ser positivo, recebido: %d", c.GridSeconds)
	}
	if c.RateToleranceFactor <= 0 {
		return fmt.Errorf("rate_tolerance_factor deve ser positivo, recebido: %f", c.RateToleranceFactor)
	}
	if c.StabilizationWindowSeconds <= 0 {
		return fmt.Errorf("stabilization_window_seconds deve ser positivo, recebido: %d", c.StabilizationWindowSeconds)
	}
	if c.TargetCPUUtilPercent <= 0 || c.TargetCPUUtilPercent > 100 {
		return fmt.Errorf("target_cpu_util_percent deve estar em (0,100], recebido: %f", c.TargetCPUUtilPercent)
	}
	if c.MaxMalformedFraction < 0 || c.MaxMalformedFraction >= 1 {
		return fmt.Errorf("max_malformed_fraction deve estar em [0,1), recebido: %f", c.MaxMalformedFraction)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers não pode ser negativo, recebido: %d", c.Workers)
	}
	for i, r := range c.Runs {
		if r.Dir == "" {
			return fmt.Errorf("run %d: dir é obrigatório", i)
		}
	}
	return nil
}

// Summary retorna resumo da configuração para exibição
func (c *SweepConfig) Summary() string {
	var summary string

	if len(c.Runs) > 0 {
		summary += fmt.Sprintf("Runs: %d configurado(s) explicitamente\n", len(c.Runs))
	} else {
		summary += fmt.Sprintf("Runs: descoberta automática em %s\n", c.ResultsDir)
	}

	summary += fmt.Sprintf("Grade: %ds (tolerância de taxa: %.1fx)\n", c.GridSeconds, c.RateToleranceFactor)
	summary += fmt.Sprintf("Estabilização: %ds | Alvo CPU: %.0f%%\n", c.StabilizationWindowSeconds, c.TargetCPUUtilPercent)
	summary += fmt.Sprintf("Workers: %d | Saída: %s\n", c.Workers, c.OutputDir)

	return summary
}

// ResolveRuns retorna as identidades dos runs do sweep: as configuradas
// explicitamente ou as descobertas sob ResultsDir
func (c *SweepConfig) ResolveRuns() ([]models.RunIdentity, error) {
	if len(c.Runs) == 0 {
		return DiscoverRuns(c.ResultsDir)
	}

	ids := make([]models.RunIdentity, 0, len(c.Runs))
	for _, r := range c.Runs {
		label := r.Label
		if label == "" {
			label = filepath.Base(r.Dir)
		}
		scenario := r.Scenario
		if scenario == "" {
			scenario = filepath.Base(filepath.Dir(r.Dir))
		}
		ids = append(ids, models.RunIdentity{
			Scenario: scenario,
			Label:    label,
			Dir:      r.Dir,
			Interval: ParseIntervalLabel(label),
		})
	}
	return ids, nil
}

// DiscoverRuns localiza diretórios de run sob root pela presença de
// hpa_log.csv. Filhos diretos viram cenário e label ao mesmo tempo;
// netos viram cenário=pai e label=filho (layout pcm-cpu/60s).
func DiscoverRuns(root string) ([]models.RunIdentity, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler diretório de resultados %s: %w", root, err)
	}

	var runs []models.RunIdentity
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())

		if isRunDir(dir) {
			runs = append(runs, models.RunIdentity{
				Scenario: entry.Name(),
				Label:    entry.Name(),
				Dir:      dir,
				Interval: ParseIntervalLabel(entry.Name()),
			})
			continue
		}

		children, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, child := range children {
			if !child.IsDir() {
				continue
			}
			childDir := filepath.Join(dir, child.Name())
			if isRunDir(childDir) {
				runs = append(runs, models.RunIdentity{
					Scenario: entry.Name(),
					Label:    child.Name(),
					Dir:      childDir,
					Interval: ParseIntervalLabel(child.Name()),
				})
			}
		}
	}

	if len(runs) == 0 {
		return nil, fmt.Errorf("nenhum run encontrado em %s (hpa_log.csv ausente)", root)
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].Scenario != runs[j].Scenario {
			return runs[i].Scenario < runs[j].Scenario
		}
		return runs[i].Label < runs[j].Label
	})

	log.Info().
		Int("runs", len(runs)).
		Str("root", root).
		Msg("Runs descobertos")

	return runs, nil
}

// isRunDir verifica se o diretório contém o arquivo obrigatório de HPA
func isRunDir(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ingest.FileHPALog))
	return err == nil
}

// ParseIntervalLabel extrai o intervalo de scrape de um rótulo de run
// ("15s", "1m", "60"). Rótulos sem intervalo reconhecível retornam 0 e
// o run é ordenado depois dos demais do cenário.
func ParseIntervalLabel(label string) time.Duration {
	s := strings.TrimSpace(label)
	if s == "" {
		return 0
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return 0
}
