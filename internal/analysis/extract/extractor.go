package extract

import (
	"fmt"
	"math"
	"time"

	"k8s-hpa-analyzer/internal/analysis/models"
)

// ExtractorConfig configuração do extrator de métricas
type ExtractorConfig struct {
	// Janela em que current_replicas precisa permanecer constante
	// para a fase ser considerada estabilizada (default: 60s)
	StabilizationWindow time.Duration

	// Alvo de utilização de CPU do HPA em percentual (default: 60)
	TargetCPUUtilPercent float64

	// Alvo da taxa da métrica customizada, usado para normalizar a área
	// de overshoot quando o run não tem stream de CPU (default: 100 rps)
	TargetCustomRate float64
}

// DefaultExtractorConfig retorna configuração padrão
func DefaultExtractorConfig() *ExtractorConfig {
	return &ExtractorConfig{
		StabilizationWindow:  60 * time.Second,
		TargetCPUUtilPercent: 60.0,
		TargetCustomRate:     100.0,
	}
}

// Validate verifica a consistência da configuração
func (c *ExtractorConfig) Validate() error {
	if c.StabilizationWindow <= 0 {
		return fmt.Errorf("stabilization_window deve ser positiva, recebido %v", c.StabilizationWindow)
	}
	if c.TargetCPUUtilPercent <= 0 {
		return fmt.Errorf("target_cpu_util deve ser positivo, recebido %f", c.TargetCPUUtilPercent)
	}
	return nil
}

// Extractor computa as métricas derivadas de um run a partir das séries
// alinhadas e das fases segmentadas. Puramente funcional: entradas
// idênticas produzem métricas idênticas.
type Extractor struct {
	config *ExtractorConfig
}

// NewExtractor cria novo extrator
func NewExtractor(config *ExtractorConfig) *Extractor {
	if config == nil {
		config = DefaultExtractorConfig()
	}
	return &Extractor{config: config}
}

// allStreamKinds fixa a ordem de AvailableStreams nas saídas
var allStreamKinds = []models.StreamKind{
	models.StreamReplicaCount,
	models.StreamDesiredReplicas,
	models.StreamCurrentReplicas,
	models.StreamPodCPUPercent,
	models.StreamPodMemory,
	models.StreamCustomRate,
	models.StreamPodCount,
}

// Extract computa o registro completo de métricas de um run.
// A decisão defined/undefined/not_applicable é centralizada aqui:
// stream ausente vira not_applicable, condição nunca observada vira
// undefined com o motivo registrado.
func (ex *Extractor) Extract(grid *models.AlignedSeries, phases []models.Phase) *models.DerivedMetrics {
	m := &models.DerivedMetrics{
		RunStart: grid.Start,
		RunEnd:   grid.TickTime(grid.Ticks),
		Spacing:  grid.Spacing,
		Ticks:    grid.Ticks,
	}

	for _, kind := range allStreamKinds {
		if grid.Has(kind) {
			m.AvailableStreams = append(m.AvailableStreams, kind)
		}
	}

	cur := grid.Scalar(models.StreamCurrentReplicas)

	// === Métricas por fase ===
	// stabTicks[i] = tick em que a fase i estabilizou (-1 = nunca)
	stabTicks := make([]int, len(phases))
	for i, p := range phases {
		pm := models.PhaseMetrics{Phase: p}

		if p.Kind == models.PhaseHigh {
			pm.TimeToScaleUp = ex.detectScaleUp(grid, cur, phases, i)
		} else {
			pm.TimeToScaleUp = models.Undefined("not a high-load phase")
		}

		tick, mv, pre := ex.detectStabilization(grid, cur, p)
		stabTicks[i] = tick
		pm.TimeToStabilize = mv
		pm.PreStable = pre

		pm.AvgCPUUtil = ex.phaseAvgCPU(grid, p, tick)

		m.Phases = append(m.Phases, pm)
	}

	ex.fillRepresentative(m, grid, cur, phases)

	// === Métricas de run inteiro ===
	m.MaxReplicas = ex.maxReplicas(cur)
	m.PodSeconds = ex.podSeconds(grid, cur)
	m.OvershootArea = ex.overshootArea(m, grid)
	m.AvgCPUStabilized = ex.avgCPUStabilized(m, grid)
	m.PodCPUStdDev = ex.podCPUStdDev(grid, phases, stabTicks)
	m.DivergenceDuration = ex.divergence(grid)
	m.AvgHTTPRps, m.PeakHTTPRps = ex.httpRates(grid)

	return m
}

// fillRepresentative escolhe a fase representativa do run (primeira fase
// high; primeira fase quando não há high) e promove seus valores para o
// nível do run, que é o grão das tabelas comparativas.
func (ex *Extractor) fillRepresentative(m *models.DerivedMetrics, grid *models.AlignedSeries, cur *models.Series, phases []models.Phase) {
	if len(phases) == 0 {
		m.TimeToScaleUp = models.Undefined("no phases")
		m.TimeToStabilize = models.Undefined("no phases")
		return
	}

	rep := -1
	for i, p := range phases {
		if p.Kind == models.PhaseHigh {
			rep = i
			break
		}
	}

	switch {
	case rep >= 0:
		m.TimeToScaleUp = m.Phases[rep].TimeToScaleUp
	case phases[0].Synthetic:
		m.TimeToScaleUp = models.Undefined("no phase markers")
		rep = 0
	default:
		m.TimeToScaleUp = models.Undefined("no high-load phase")
		rep = 0
	}

	m.TimeToStabilize = m.Phases[rep].TimeToStabilize
	m.PreStable = m.Phases[rep].PreStable

	// Falsa estabilização: a fase já estava estável e nenhum evento de
	// scale-up ocorreu nela. Distingue "o controlador nunca reagiu" de
	// "reagiu rápido demais para a grade perceber".
	if m.PreStable {
		scaleUp := m.Phases[rep].TimeToScaleUp
		if phases[rep].Kind != models.PhaseHigh {
			scaleUp = ex.detectScaleUp(grid, cur, phases, rep)
		}
		m.FalseStabilization = !scaleUp.IsDefined()
	}
}

// detectScaleUp procura o primeiro tick em que current_replicas supera
// estritamente o valor do início da fase. A janela de busca vai do início
// da fase até o início da próxima fase do mesmo ciclo, ou o fim do run.
func (ex *Extractor) detectScaleUp(grid *models.AlignedSeries, cur *models.Series, phases []models.Phase, idx int) models.MetricValue {
	if cur.ValidCount() == 0 {
		return models.NotApplicable("replica stream absent")
	}

	p := phases[idx]
	windowEnd := grid.Ticks
	for _, next := range phases[idx+1:] {
		if next.Cycle == p.Cycle {
			windowEnd = grid.TickAtOrAfter(next.Start)
			break
		}
	}

	// Baseline: primeiro tick não-nulo dentro da janela
	baseTick := -1
	baseline := 0.0
	for t := grid.TickAtOrAfter(p.Start); t < windowEnd; t++ {
		if v, ok := cur.At(t); ok {
			baseTick, baseline = t, v
			break
		}
	}
	if baseTick < 0 {
		return models.Undefined("no replica data in window")
	}

	for t := baseTick + 1; t < windowEnd; t++ {
		if v, ok := cur.At(t); ok && v > baseline {
			return models.Defined(grid.TickTime(t).Sub(p.Start).Seconds())
		}
	}
	return models.Undefined("no scale-up observed")
}

// detectStabilization encontra o primeiro tick T da fase a partir do qual
// current_replicas permanece constante pela janela configurada (ou até o
// fim da fase, o que vier antes). Janela de menos de dois ticks não
// atesta estabilidade. Retorna o tick (-1 quando não estabilizou), a
// métrica e a flag pre-stable.
func (ex *Extractor) detectStabilization(grid *models.AlignedSeries, cur *models.Series, p models.Phase) (int, models.MetricValue, bool) {
	if cur.ValidCount() == 0 {
		return -1, models.NotApplicable("replica stream absent"), false
	}

	start := grid.TickAtOrAfter(p.Start)
	end := grid.TickAtOrAfter(p.End)

	for t := start; t < end; t++ {
		wEndTime := grid.TickTime(t).Add(ex.config.StabilizationWindow)
		if wEndTime.After(p.End) {
			wEndTime = p.End
		}
		wEnd := grid.TickAtOrAfter(wEndTime)
		if wEnd-t < 2 {
			// A janela restante só encolhe daqui em diante
			break
		}
		if constantOver(cur, t, wEnd) {
			if t == start {
				// Já estava estável no primeiro tick da fase
				return t, models.Defined(0), true
			}
			return t, models.Defined(grid.TickTime(t).Sub(p.Start).Seconds()), false
		}
	}
	return -1, models.Undefined("never stabilized"), false
}

// constantOver verifica se a série é não-nula e constante em [from, to)
func constantOver(s *models.Series, from, to int) bool {
	first, ok := s.At(from)
	if !ok {
		return false
	}
	for t := from + 1; t < to; t++ {
		v, ok := s.At(t)
		if !ok || v != first {
			return false
		}
	}
	return true
}

// phaseAvgCPU calcula a média da utilização de CPU reportada pelo HPA na
// porção estabilizada da fase [stabTick, fim da fase)
func (ex *Extractor) phaseAvgCPU(grid *models.AlignedSeries, p models.Phase, stabTick int) models.MetricValue {
	cpu := grid.Scalar(models.StreamPodCPUPercent)
	if cpu.ValidCount() == 0 {
		return models.NotApplicable("cpu stream absent")
	}
	if stabTick < 0 {
		return models.Undefined("never stabilized")
	}

	sum, n := 0.0, 0
	for t, end := stabTick, grid.TickAtOrAfter(p.End); t < end; t++ {
		if v, ok := cpu.At(t); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return models.Undefined("no cpu samples in stabilized window")
	}
	return models.Defined(sum / float64(n))
}

// avgCPUStabilized agrega as médias de CPU das fases qualificadas
func (ex *Extractor) avgCPUStabilized(m *models.DerivedMetrics, grid *models.AlignedSeries) models.MetricValue {
	if grid.Scalar(models.StreamPodCPUPercent).ValidCount() == 0 {
		return models.NotApplicable("cpu stream absent")
	}

	sum, n := 0.0, 0
	for _, pm := range m.Phases {
		if pm.AvgCPUUtil.IsDefined() {
			sum += pm.AvgCPUUtil.Value
			n++
		}
	}
	if n == 0 {
		return models.Undefined("no stabilized window")
	}
	return models.Defined(sum / float64(n))
}

// podCPUStdDev mede a dispersão de CPU entre pods (millicores) nas porções
// estabilizadas do run. Captura qualidade de balanceamento de carga, não
// apenas a utilização média.
func (ex *Extractor) podCPUStdDev(grid *models.AlignedSeries, phases []models.Phase, stabTicks []int) models.MetricValue {
	if len(grid.EntityNames(models.StreamPodCPUPercent)) == 0 {
		return models.NotApplicable("per-pod cpu stream absent")
	}
	std := grid.EntityStdDev(models.StreamPodCPUPercent)

	sum, n := 0.0, 0
	windows := 0
	for i, p := range phases {
		if stabTicks[i] < 0 {
			continue
		}
		windows++
		for t, end := stabTicks[i], grid.TickAtOrAfter(p.End); t < end; t++ {
			if v, ok := std.At(t); ok {
				sum += v
				n++
			}
		}
	}
	if windows == 0 {
		return models.Undefined("no stabilized window")
	}
	if n == 0 {
		// Desvio padrão exige pelo menos dois pods por tick
		return models.Undefined("fewer than two pods")
	}
	return models.Defined(sum / float64(n))
}

// maxReplicas retorna o máximo de current_replicas observado no run
func (ex *Extractor) maxReplicas(cur *models.Series) models.MetricValue {
	if cur.ValidCount() == 0 {
		return models.NotApplicable("replica stream absent")
	}
	max := math.Inf(-1)
	for t := 0; t < cur.Len(); t++ {
		if v, ok := cur.At(t); ok && v > max {
			max = v
		}
	}
	return models.Defined(max)
}

// podSeconds integra current_replicas pela regra do retângulo à esquerda:
// o valor de cada tick vale até o tick seguinte. Réplicas são uma função
// degrau genuína; o trapézio deturparia as transições.
func (ex *Extractor) podSeconds(grid *models.AlignedSeries, cur *models.Series) models.MetricValue {
	if cur.ValidCount() == 0 {
		return models.NotApplicable("replica stream absent")
	}

	spacing := grid.Spacing.Seconds()
	total := 0.0
	for t := 0; t < grid.Ticks; t++ {
		if v, ok := cur.At(t); ok {
			total += v * spacing
		}
	}
	return models.Defined(total)
}

// overshootArea integra |utilização − alvo| pela regra do trapézio sobre
// pares de ticks consecutivos não-nulos. Lacunas são excluídas da
// integral, nunca interpoladas. Base: CPU% do HPA quando existe; senão a
// métrica customizada normalizada pelo alvo (100 = exatamente no alvo).
func (ex *Extractor) overshootArea(m *models.DerivedMetrics, grid *models.AlignedSeries) models.MetricValue {
	var util *models.Series
	var target float64

	cpu := grid.Scalar(models.StreamPodCPUPercent)
	custom := grid.Scalar(models.StreamCustomRate)

	switch {
	case cpu.ValidCount() > 0:
		util, target = cpu, ex.config.TargetCPUUtilPercent
		m.UtilizationBasis = "cpu"
	case custom.ValidCount() > 0:
		m.UtilizationBasis = "custom"
		if ex.config.TargetCustomRate <= 0 {
			return models.Undefined("custom-metric target not configured")
		}
		norm := models.NewSeries(grid.Ticks)
		for t := 0; t < grid.Ticks; t++ {
			if v, ok := custom.At(t); ok {
				norm.Set(t, v/ex.config.TargetCustomRate*100)
			}
		}
		util, target = norm, 100.0
	default:
		return models.NotApplicable("no utilization stream")
	}
	m.TargetUtilization = target

	spacing := grid.Spacing.Seconds()
	area := 0.0
	pairs := 0
	for t := 0; t+1 < grid.Ticks; t++ {
		a, okA := util.At(t)
		b, okB := util.At(t + 1)
		if !okA || !okB {
			continue
		}
		area += (math.Abs(a-target) + math.Abs(b-target)) / 2 * spacing
		pairs++
	}
	if pairs == 0 {
		return models.Undefined("insufficient utilization samples")
	}
	return models.Defined(area)
}

// divergence soma o tempo em que desired e current divergem. Proxy direto
// de atraso de atuação do controlador, independente de fase.
func (ex *Extractor) divergence(grid *models.AlignedSeries) models.MetricValue {
	desired := grid.Scalar(models.StreamDesiredReplicas)
	cur := grid.Scalar(models.StreamCurrentReplicas)
	if desired.ValidCount() == 0 || cur.ValidCount() == 0 {
		return models.NotApplicable("desired/current stream absent")
	}

	spacing := grid.Spacing.Seconds()
	total := 0.0
	for t := 0; t < grid.Ticks; t++ {
		d, okD := desired.At(t)
		c, okC := cur.At(t)
		if okD && okC && d != c {
			total += spacing
		}
	}
	return models.Defined(total)
}

// httpRates calcula média e pico da taxa de requisições vista pelo cluster
func (ex *Extractor) httpRates(grid *models.AlignedSeries) (models.MetricValue, models.MetricValue) {
	custom := grid.Scalar(models.StreamCustomRate)
	if custom.ValidCount() == 0 {
		na := models.NotApplicable("no custom-metric source")
		return na, na
	}

	sum, n := 0.0, 0
	peak := math.Inf(-1)
	for t := 0; t < grid.Ticks; t++ {
		if v, ok := custom.At(t); ok {
			sum += v
			n++
			if v > peak {
				peak = v
			}
		}
	}
	return models.Defined(sum / float64(n)), models.Defined(peak)
}
