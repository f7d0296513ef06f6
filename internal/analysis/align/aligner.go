package align

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"k8s-hpa-analyzer/internal/analysis/models"
)

// AlignerConfig controla a grade uniforme
type AlignerConfig struct {
	// Espaçamento da grade em segundos (cadência mais fina dos coletores)
	GridSeconds int
	// Tolerância para séries de taxa = espaçamento × fator
	RateToleranceFactor float64
}

// DefaultAlignerConfig retorna a configuração padrão (grade de 5s)
func DefaultAlignerConfig() *AlignerConfig {
	return &AlignerConfig{
		GridSeconds:         5,
		RateToleranceFactor: 2.0,
	}
}

// Validate verifica a consistência da configuração
func (c *AlignerConfig) Validate() error {
	if c.GridSeconds <= 0 {
		return fmt.Errorf("grid_seconds deve ser positivo, recebido %d", c.GridSeconds)
	}
	if c.RateToleranceFactor <= 0 {
		return fmt.Errorf("rate_tolerance_factor deve ser positivo, recebido %f", c.RateToleranceFactor)
	}
	return nil
}

// Spacing retorna o espaçamento da grade como Duration
func (c *AlignerConfig) Spacing() time.Duration {
	return time.Duration(c.GridSeconds) * time.Second
}

// Aligner projeta amostras brutas de cadências heterogêneas numa grade
// uniforme por run. Séries em degrau usam LOCF; séries de taxa usam a
// amostra mais próxima dentro da tolerância. Nunca interpola.
type Aligner struct {
	config *AlignerConfig
}

// NewAligner cria o aligner (config nil usa o padrão)
func NewAligner(config *AlignerConfig) *Aligner {
	if config == nil {
		config = DefaultAlignerConfig()
	}
	return &Aligner{config: config}
}

// streamKey agrupa amostras por série individual
type streamKey struct {
	kind   models.StreamKind
	entity string
}

// Align constrói a grade do run. As amostras devem estar ordenadas por
// timestamp (garantido pelo ingestor). Menos de 3 ticks é rejeitado com
// models.ErrInsufficientData.
func (al *Aligner) Align(samples []models.RawSample) (*models.AlignedSeries, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: nenhuma amostra no run", models.ErrInsufficientData)
	}

	// A grade cobre [min, max] de todos os streams do run
	start := samples[0].Timestamp
	end := samples[0].Timestamp
	for _, s := range samples[1:] {
		if s.Timestamp.Before(start) {
			start = s.Timestamp
		}
		if s.Timestamp.After(end) {
			end = s.Timestamp
		}
	}

	spacing := al.config.Spacing()
	ticks := int(end.Sub(start)/spacing) + 1
	if ticks < 3 {
		return nil, fmt.Errorf("%w: apenas %d ticks na grade (mínimo 3)", models.ErrInsufficientData, ticks)
	}

	grid := models.NewAlignedSeries(start, spacing, ticks)

	groups := make(map[streamKey][]models.RawSample)
	for _, s := range samples {
		key := streamKey{kind: s.Kind, entity: s.Entity}
		groups[key] = append(groups[key], s)
	}

	// Ordem estável de processamento (mapas não têm ordem)
	keys := make([]streamKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].kind != keys[j].kind {
			return keys[i].kind < keys[j].kind
		}
		return keys[i].entity < keys[j].entity
	})

	tolerance := time.Duration(float64(spacing) * al.config.RateToleranceFactor)
	for _, key := range keys {
		var series *models.Series
		if key.kind.IsStep() {
			series = alignStep(groups[key], grid)
		} else {
			series = alignRate(groups[key], grid, tolerance)
		}
		if key.entity == "" {
			grid.SetScalar(key.kind, series)
		} else {
			grid.SetEntity(key.kind, key.entity, series)
		}
	}

	log.Debug().
		Time("start", start).
		Time("end", end).
		Int("ticks", ticks).
		Int("streams", len(groups)).
		Msg("Grade alinhada")

	return grid, nil
}

// alignStep aplica LOCF: o valor observado vale até a próxima amostra.
// Ticks antes da primeira amostra ficam nulos.
func alignStep(samples []models.RawSample, grid *models.AlignedSeries) *models.Series {
	out := models.NewSeries(grid.Ticks)
	j := 0
	var current float64
	var have bool
	for i := 0; i < grid.Ticks; i++ {
		tickTime := grid.TickTime(i)
		for j < len(samples) && !samples[j].Timestamp.After(tickTime) {
			current = samples[j].Value
			have = true
			j++
		}
		if have {
			out.Set(i, current)
		}
	}
	return out
}

// alignRate usa a amostra mais próxima do tick dentro da tolerância;
// fora dela o tick fica nulo (gap real, não interpolado). Empate entre
// amostras equidistantes prefere a posterior.
func alignRate(samples []models.RawSample, grid *models.AlignedSeries, tolerance time.Duration) *models.Series {
	out := models.NewSeries(grid.Ticks)
	j := 0
	for i := 0; i < grid.Ticks; i++ {
		tickTime := grid.TickTime(i)
		for j < len(samples) && samples[j].Timestamp.Before(tickTime) {
			j++
		}

		best := -1
		var bestDist time.Duration
		if j < len(samples) {
			best = j
			bestDist = samples[j].Timestamp.Sub(tickTime)
		}
		if j > 0 {
			if d := tickTime.Sub(samples[j-1].Timestamp); best == -1 || d < bestDist {
				best = j - 1
				bestDist = d
			}
		}
		if best >= 0 && bestDist <= tolerance {
			out.Set(i, samples[best].Value)
		}
	}
	return out
}
