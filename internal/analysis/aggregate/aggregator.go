package aggregate

import (
	"sort"
	"sync"

	"k8s-hpa-analyzer/internal/analysis/models"
)

// Row é uma linha estruturada da tabela: um run bem-sucedido com suas
// métricas e o índice derivado de rastreamento do alvo
type Row struct {
	Identity      models.RunIdentity     `json:"identity"`
	Metrics       *models.DerivedMetrics `json:"metrics"`
	TrackingScore models.MetricValue     `json:"tracking_score"`
}

// Failure registra um run que não produziu métricas
type Failure struct {
	Identity models.RunIdentity `json:"identity"`
	Reason   string             `json:"reason"`
}

// Aggregator coleta os resultados dos runs de um sweep. Add é seguro
// para chamadas concorrentes dos workers; BuildTable só deve ser chamado
// depois que todos os resultados chegaram.
type Aggregator struct {
	mu      sync.Mutex
	results []models.RunResult
}

// NewAggregator cria um agregador vazio
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add registra o resultado de um run
func (ag *Aggregator) Add(result models.RunResult) {
	ag.mu.Lock()
	defer ag.mu.Unlock()
	ag.results = append(ag.results, result)
}

// Len retorna quantos resultados já foram registrados
func (ag *Aggregator) Len() int {
	ag.mu.Lock()
	defer ag.mu.Unlock()
	return len(ag.results)
}

// BuildTable ordena os resultados pelo eixo de comparação e monta a
// tabela terminal do sweep. Runs com falha nunca viram linha de métrica;
// ficam registrados à parte com o motivo.
func (ag *Aggregator) BuildTable() *Table {
	ag.mu.Lock()
	results := make([]models.RunResult, len(ag.results))
	copy(results, ag.results)
	ag.mu.Unlock()

	t := &Table{}
	for _, r := range results {
		if r.Failed() {
			t.Failures = append(t.Failures, Failure{Identity: r.Identity, Reason: r.Failure})
			continue
		}
		t.Rows = append(t.Rows, Row{
			Identity:      r.Identity,
			Metrics:       r.Metrics,
			TrackingScore: trackingScore(r.Metrics),
		})
	}

	sort.SliceStable(t.Rows, func(i, j int) bool {
		return lessIdentity(t.Rows[i].Identity, t.Rows[j].Identity)
	})
	sort.SliceStable(t.Failures, func(i, j int) bool {
		return lessIdentity(t.Failures[i].Identity, t.Failures[j].Identity)
	})

	return t
}

// lessIdentity ordena por cenário e depois pelo intervalo de scrape
// crescente; runs sem intervalo conhecido vão para o fim do cenário.
func lessIdentity(a, b models.RunIdentity) bool {
	if a.Scenario != b.Scenario {
		return a.Scenario < b.Scenario
	}
	switch {
	case a.Interval > 0 && b.Interval > 0 && a.Interval != b.Interval:
		return a.Interval < b.Interval
	case a.Interval > 0 && b.Interval == 0:
		return true
	case a.Interval == 0 && b.Interval > 0:
		return false
	}
	return a.Label < b.Label
}

// trackingScore condensa a área de overshoot num índice (0,1]: 1 é
// rastreamento perfeito do alvo; quanto maior o desvio médio em relação
// ao alvo, menor o índice. Função pura das métricas já extraídas.
func trackingScore(m *models.DerivedMetrics) models.MetricValue {
	switch m.OvershootArea.State {
	case models.MetricNotApplicable:
		return models.NotApplicable(m.OvershootArea.Reason)
	case models.MetricUndefined:
		return models.Undefined(m.OvershootArea.Reason)
	}

	duration := m.Duration().Seconds()
	if duration <= 0 || m.TargetUtilization <= 0 {
		return models.Undefined("degenerate run window")
	}
	return models.Defined(m.TargetUtilization / (m.TargetUtilization + m.OvershootArea.Value/duration))
}
