package segment

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"k8s-hpa-analyzer/internal/analysis/models"
)

// pairKey identifica a fase aberta: start casa com o próximo end do
// mesmo ciclo e kind
type pairKey struct {
	cycle int
	kind  models.PhaseKind
}

// Segment converte markers ordenados por timestamp em fases semiabertas
// [start, end) sem sobreposição. runStart/runEnd delimitam a observação
// (runEnd exclusivo, o primeiro instante após o último tick da grade).
//
// Sem markers o run é contínuo: uma única fase sintética cobre tudo.
// Start sem end é fechado em runEnd com a flag truncated. End sem start
// é descartado com warning.
func Segment(markers []models.PhaseMarker, runStart, runEnd time.Time) []models.Phase {
	if len(markers) == 0 {
		return syntheticPhase(runStart, runEnd)
	}

	open := make(map[pairKey]time.Time)
	var phases []models.Phase

	for _, m := range markers {
		k := pairKey{cycle: m.Cycle, kind: m.Kind}
		switch m.Action {
		case models.MarkerStart:
			if prev, exists := open[k]; exists {
				// start duplicado sem end: fecha a fase anterior aqui
				log.Warn().
					Str("phase", string(m.Kind)).
					Int("cycle", m.Cycle).
					Time("previous_start", prev).
					Msg("⚠️ Start duplicado sem end; fase anterior fechada no novo start")
				phases = append(phases, models.Phase{
					Cycle: m.Cycle,
					Kind:  m.Kind,
					Start: prev,
					End:   m.Timestamp,
				})
			}
			open[k] = m.Timestamp
		case models.MarkerEnd:
			start, exists := open[k]
			if !exists {
				log.Warn().
					Str("phase", string(m.Kind)).
					Int("cycle", m.Cycle).
					Time("timestamp", m.Timestamp).
					Msg("⚠️ End sem start correspondente; marker descartado")
				continue
			}
			phases = append(phases, models.Phase{
				Cycle: m.Cycle,
				Kind:  m.Kind,
				Start: start,
				End:   m.Timestamp,
			})
			delete(open, k)
		}
	}

	// Starts sem end são fechados no fim do run
	for k, start := range open {
		log.Warn().
			Str("phase", string(k.kind)).
			Int("cycle", k.cycle).
			Msg("⚠️ Start sem end; fase truncada no fim do run")
		phases = append(phases, models.Phase{
			Cycle:     k.cycle,
			Kind:      k.kind,
			Start:     start,
			End:       runEnd,
			Truncated: true,
		})
	}

	sort.Slice(phases, func(i, j int) bool {
		if !phases[i].Start.Equal(phases[j].Start) {
			return phases[i].Start.Before(phases[j].Start)
		}
		if phases[i].Cycle != phases[j].Cycle {
			return phases[i].Cycle < phases[j].Cycle
		}
		return phases[i].Kind < phases[j].Kind
	})

	result := enforceInvariants(phases)
	if len(result) == 0 {
		// Markers existiam mas nenhum formou fase utilizável
		log.Warn().Msg("⚠️ Nenhuma fase utilizável nos markers; tratando run como contínuo")
		return syntheticPhase(runStart, runEnd)
	}
	return result
}

func syntheticPhase(runStart, runEnd time.Time) []models.Phase {
	return []models.Phase{{
		Cycle:     0,
		Kind:      models.PhaseUnlabeled,
		Start:     runStart,
		End:       runEnd,
		Synthetic: true,
	}}
}

// enforceInvariants garante fases não sobrepostas e loga gaps entre
// fases adjacentes do mesmo ciclo (gaps são válidos, só informativos).
func enforceInvariants(phases []models.Phase) []models.Phase {
	out := phases[:0]
	var prev *models.Phase

	for i := range phases {
		p := phases[i]
		if prev != nil && p.Start.Before(prev.End) {
			log.Warn().
				Str("phase", p.Label()).
				Str("overlaps", prev.Label()).
				Msg("⚠️ Fases sobrepostas; início recortado")
			p.Start = prev.End
			if !p.Start.Before(p.End) {
				// Completamente sombreada pela anterior
				continue
			}
		}
		if prev != nil && prev.Cycle == p.Cycle && p.Start.After(prev.End) {
			log.Debug().
				Str("from", prev.Label()).
				Str("to", p.Label()).
				Dur("gap", p.Start.Sub(prev.End)).
				Msg("Gap entre fases do mesmo ciclo")
		}
		out = append(out, p)
		prev = &out[len(out)-1]
	}
	return out
}
