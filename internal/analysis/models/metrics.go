package models

import (
	"strconv"
	"time"
)

// MetricState distingue os três desfechos possíveis de uma métrica.
// undefined = streams presentes mas a condição nunca ocorreu no run;
// not_applicable = o stream de entrada necessário não existe no run.
type MetricState string

const (
	MetricDefined       MetricState = "defined"
	MetricUndefined     MetricState = "undefined"
	MetricNotApplicable MetricState = "not_applicable"
)

// MetricValue é o resultado tri-state de uma métrica derivada
type MetricValue struct {
	State  MetricState `json:"state"`
	Value  float64     `json:"value,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// Defined cria uma métrica com valor
func Defined(v float64) MetricValue {
	return MetricValue{State: MetricDefined, Value: v}
}

// Undefined cria uma métrica sem valor com o motivo registrado
func Undefined(reason string) MetricValue {
	return MetricValue{State: MetricUndefined, Reason: reason}
}

// NotApplicable cria uma métrica inaplicável ao run (stream ausente)
func NotApplicable(reason string) MetricValue {
	return MetricValue{State: MetricNotApplicable, Reason: reason}
}

// IsDefined reporta se a métrica tem valor
func (m MetricValue) IsDefined() bool {
	return m.State == MetricDefined
}

// Format renderiza para tabela: número arredondado, "undefined" ou "n/a"
func (m MetricValue) Format(decimals int) string {
	switch m.State {
	case MetricDefined:
		return strconv.FormatFloat(m.Value, 'f', decimals, 64)
	case MetricUndefined:
		return "undefined"
	case MetricNotApplicable:
		return "n/a"
	default:
		return "?"
	}
}

// PhaseMetrics é o detalhamento de uma fase individual
type PhaseMetrics struct {
	Phase           Phase       `json:"phase"`
	TimeToScaleUp   MetricValue `json:"time_to_scale_up_s"`
	TimeToStabilize MetricValue `json:"time_to_stabilize_s"`
	AvgCPUUtil      MetricValue `json:"avg_cpu_util"`

	// PreStable: réplicas já estáveis no primeiro tick da fase (valor 0)
	PreStable bool `json:"pre_stable,omitempty"`
}

// DerivedMetrics é o registro completo de um run analisado
type DerivedMetrics struct {
	// === Janela temporal ===
	RunStart time.Time     `json:"run_start"`
	RunEnd   time.Time     `json:"run_end"`
	Spacing  time.Duration `json:"spacing_ns"`
	Ticks    int           `json:"ticks"`

	// === Métricas principais ===
	TimeToScaleUp      MetricValue `json:"time_to_scale_up_s"`
	TimeToStabilize    MetricValue `json:"time_to_stabilize_s"`
	MaxReplicas        MetricValue `json:"max_replicas"`
	OvershootArea      MetricValue `json:"overshoot_undershoot_area"`
	PodSeconds         MetricValue `json:"pod_seconds"`
	AvgCPUStabilized   MetricValue `json:"avg_cpu_util_stabilized"`
	PodCPUStdDev       MetricValue `json:"pod_cpu_std_dev"`
	DivergenceDuration MetricValue `json:"desired_current_divergence_s"`

	// === Métricas de carga HTTP (quando há fonte de métrica customizada) ===
	AvgHTTPRps  MetricValue `json:"avg_http_rps"`
	PeakHTTPRps MetricValue `json:"peak_http_rps"`

	// PreStable: fase representativa já estável no início
	PreStable bool `json:"pre_stable,omitempty"`
	// FalseStabilization: pré-estável sem nenhum evento de scale-up na fase.
	// Distingue "nunca reagiu" de "reagiu rápido demais para a grade".
	FalseStabilization bool `json:"false_stabilization,omitempty"`

	// === Base da área de overshoot ===
	UtilizationBasis  string  `json:"utilization_basis,omitempty"` // "cpu" ou "custom"
	TargetUtilization float64 `json:"target_utilization,omitempty"`

	// === Qualidade dos dados ===
	TotalRows          int            `json:"total_rows"`
	MalformedRows      int            `json:"malformed_rows"`
	MalformedByFile    map[string]int `json:"malformed_by_file,omitempty"`
	LowQuality         bool           `json:"low_quality,omitempty"`
	CustomMetricSource string         `json:"custom_metric_source,omitempty"`
	AvailableStreams   []StreamKind   `json:"available_streams"`

	// === Detalhe por fase ===
	Phases []PhaseMetrics `json:"phases,omitempty"`
}

// Duration retorna a extensão temporal do run na grade
func (d *DerivedMetrics) Duration() time.Duration {
	return d.RunEnd.Sub(d.RunStart)
}

// HasStream verifica disponibilidade de um stream no run
func (d *DerivedMetrics) HasStream(kind StreamKind) bool {
	for _, k := range d.AvailableStreams {
		if k == kind {
			return true
		}
	}
	return false
}
