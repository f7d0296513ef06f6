package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"k8s-hpa-analyzer/internal/analysis/aggregate"
	"k8s-hpa-analyzer/internal/analysis/align"
	"k8s-hpa-analyzer/internal/analysis/extract"
	"k8s-hpa-analyzer/internal/analysis/ingest"
	"k8s-hpa-analyzer/internal/analysis/models"
	"k8s-hpa-analyzer/internal/analysis/segment"
	"k8s-hpa-analyzer/internal/config"
)

// AnalysisEngine encadeia ingestão, alinhamento, segmentação e extração
// para cada run e agrega os resultados do sweep. Todo o pipeline é
// offline e determinístico: mesma entrada produz a mesma tabela,
// independente do número de workers.
type AnalysisEngine struct {
	config *config.SweepConfig

	ingestor  *ingest.Ingestor
	aligner   *align.Aligner
	extractor *extract.Extractor
}

// New cria o engine de análise (config nil usa o padrão)
func New(cfg *config.SweepConfig) (*AnalysisEngine, error) {
	if cfg == nil {
		cfg = config.DefaultSweepConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuração de sweep inválida: %w", err)
	}

	return &AnalysisEngine{
		config: cfg,
		ingestor: ingest.NewIngestor(&ingest.IngestorConfig{
			MaxMalformedFraction: cfg.MaxMalformedFraction,
		}),
		aligner: align.NewAligner(&align.AlignerConfig{
			GridSeconds:         cfg.GridSeconds,
			RateToleranceFactor: cfg.RateToleranceFactor,
		}),
		extractor: extract.NewExtractor(&extract.ExtractorConfig{
			StabilizationWindow:  cfg.StabilizationWindow(),
			TargetCPUUtilPercent: cfg.TargetCPUUtilPercent,
			TargetCustomRate:     cfg.TargetCustomRate,
		}),
	}, nil
}

// AnalyzeRun executa o pipeline completo para um único run. Erros
// fatais viram um RunResult de falha; o sweep nunca aborta por run.
func (e *AnalysisEngine) AnalyzeRun(ctx context.Context, id models.RunIdentity) models.RunResult {
	start := time.Now()

	data, err := e.ingestor.IngestRun(id.Dir)
	if err != nil {
		return e.failed(id, err)
	}
	if err := ctx.Err(); err != nil {
		return e.failed(id, err)
	}

	grid, err := e.aligner.Align(data.Samples)
	if err != nil {
		return e.failed(id, err)
	}

	phases := segment.Segment(data.Markers, grid.Start, grid.TickTime(grid.Ticks))
	metrics := e.extractor.Extract(grid, phases)

	// Contadores de qualidade vêm da ingestão, não da grade
	metrics.TotalRows = data.TotalRows
	metrics.MalformedRows = data.MalformedRows
	metrics.MalformedByFile = data.MalformedByFile
	metrics.LowQuality = data.LowQuality
	metrics.CustomMetricSource = data.CustomMetricSource

	log.Info().
		Str("run", id.Name()).
		Int("ticks", grid.Ticks).
		Int("phases", len(phases)).
		Dur("elapsed", time.Since(start)).
		Msg("Run analisado")

	return models.RunResult{
		Identity: id,
		Status:   models.RunStatusOK,
		Metrics:  metrics,
	}
}

// failed registra e devolve um resultado de falha para o run
func (e *AnalysisEngine) failed(id models.RunIdentity, err error) models.RunResult {
	log.Warn().
		Err(err).
		Str("run", id.Name()).
		Msg("⚠️ Run descartado do sweep")

	return models.RunResult{
		Identity: id,
		Status:   models.RunStatusFailed,
		Failure:  err.Error(),
	}
}

// RunSweep analisa todos os runs com um pool de workers e devolve a
// tabela agregada. Cancelamento do contexto interrompe a fila; runs
// ainda não enfileirados ficam de fora da tabela.
func (e *AnalysisEngine) RunSweep(ctx context.Context, runs []models.RunIdentity) (*aggregate.Table, error) {
	if len(runs) == 0 {
		return nil, fmt.Errorf("nenhum run para analisar")
	}

	workers := e.config.Workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(runs) {
		workers = len(runs)
	}

	log.Info().
		Int("runs", len(runs)).
		Int("workers", workers).
		Msg("Iniciando sweep de análise")

	agg := aggregate.NewAggregator()
	jobs := make(chan models.RunIdentity)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				agg.Add(e.AnalyzeRun(ctx, id))
			}
		}()
	}

enqueue:
	for _, id := range runs {
		select {
		case <-ctx.Done():
			log.Warn().
				Err(ctx.Err()).
				Msg("⚠️ Sweep interrompido, runs restantes não serão analisados")
			break enqueue
		case jobs <- id:
		}
	}
	close(jobs)
	wg.Wait()

	table := agg.BuildTable()

	log.Info().
		Int("ok", len(table.Rows)).
		Int("failed", len(table.Failures)).
		Msg("Sweep concluído")

	return table, nil
}
