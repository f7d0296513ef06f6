package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Erros fatais por run. O engine converte em RunResult com falha;
// nunca abortam o sweep inteiro.
var (
	ErrIncompleteRun    = errors.New("run incompleto")
	ErrInsufficientData = errors.New("dados insuficientes")
)

// StreamKind identifica o tipo de série temporal extraída dos arquivos de log
type StreamKind string

const (
	StreamReplicaCount    StreamKind = "replica_count"
	StreamDesiredReplicas StreamKind = "desired_replicas"
	StreamCurrentReplicas StreamKind = "current_replicas"
	StreamPodCPUPercent   StreamKind = "pod_cpu_percent"
	StreamPodMemory       StreamKind = "pod_memory"
	StreamCustomRate      StreamKind = "custom_metric_rate"
	StreamPodCount        StreamKind = "pod_count"
)

// IsStep indica séries de valor em degrau (contagens de réplicas/pods).
// Degrau = o valor vale até a próxima amostra; alinhamento usa LOCF.
func (k StreamKind) IsStep() bool {
	switch k {
	case StreamReplicaCount, StreamDesiredReplicas, StreamCurrentReplicas, StreamPodCount:
		return true
	}
	return false
}

// IsRate indica séries de taxa/gauge (CPU, memória, métrica customizada).
// Alinhamento usa amostra mais próxima dentro da tolerância, sem interpolação.
func (k StreamKind) IsRate() bool {
	return !k.IsStep()
}

func (k StreamKind) String() string {
	return string(k)
}

// RawSample é uma observação bruta com timestamp, antes do alinhamento
type RawSample struct {
	Kind      StreamKind `json:"kind"`
	Entity    string     `json:"entity,omitempty"` // nome do pod; vazio = série do cluster
	Timestamp time.Time  `json:"timestamp"`
	Value     float64    `json:"value"`
}

// PhaseKind rotula a carga de uma fase do experimento
type PhaseKind string

const (
	PhaseHigh      PhaseKind = "high"
	PhaseLow       PhaseKind = "low"
	PhaseUnlabeled PhaseKind = "unlabeled" // run contínuo, sem phases.log
)

// ParsePhaseKind normaliza o valor da coluna phase do phases.log.
// Valores desconhecidos são preservados como estão (rótulos livres são válidos).
func ParsePhaseKind(raw string) PhaseKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high", "high_load", "high-load":
		return PhaseHigh
	case "low", "low_load", "low-load":
		return PhaseLow
	case "":
		return PhaseUnlabeled
	}
	return PhaseKind(strings.ToLower(strings.TrimSpace(raw)))
}

// MarkerAction indica início ou fim de fase
type MarkerAction int

const (
	MarkerStart MarkerAction = iota
	MarkerEnd
)

func (a MarkerAction) String() string {
	switch a {
	case MarkerStart:
		return "start"
	case MarkerEnd:
		return "end"
	default:
		return "unknown"
	}
}

// ParseMarkerAction interpreta a coluna action do phases.log
func ParseMarkerAction(raw string) (MarkerAction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "start", "begin":
		return MarkerStart, nil
	case "end", "stop":
		return MarkerEnd, nil
	}
	return 0, fmt.Errorf("action desconhecida: %q", raw)
}

// PhaseMarker é um evento de transição de fase lido do phases.log.
// Cycle é atribuído pelo ingestor: o arquivo não carrega essa coluna.
type PhaseMarker struct {
	Timestamp time.Time    `json:"timestamp"`
	Cycle     int          `json:"cycle"`
	Kind      PhaseKind    `json:"kind"`
	Action    MarkerAction `json:"action"`
}

// Phase é um intervalo semiaberto [Start, End) derivado dos markers
type Phase struct {
	Cycle int       `json:"cycle"`
	Kind  PhaseKind `json:"kind"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// Truncated: start sem end correspondente, fechada no fim do run
	Truncated bool `json:"truncated,omitempty"`
	// Synthetic: fase única criada para runs sem phases.log
	Synthetic bool `json:"synthetic,omitempty"`
}

// Duration retorna a duração da fase
func (p Phase) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// Contains verifica se t está dentro de [Start, End)
func (p Phase) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Label retorna identificação curta para logs e tabelas (ex: "cycle1/high")
func (p Phase) Label() string {
	if p.Synthetic {
		return "run"
	}
	return fmt.Sprintf("cycle%d/%s", p.Cycle, p.Kind)
}

// RunIdentity identifica um run dentro do sweep. Interval é o eixo de
// ordenação das tabelas comparativas (ex: 15s vs 30s vs 60s de scrape).
type RunIdentity struct {
	Scenario string        `json:"scenario"`    // ex: "pcm-cpu", "krm"
	Label    string        `json:"label"`       // ex: "60s", "pcm-h"
	Dir      string        `json:"dir"`         // diretório dos arquivos do run
	Interval time.Duration `json:"interval_ns"` // 0 = desconhecido
}

// Name retorna o identificador legível do run
func (id RunIdentity) Name() string {
	if id.Scenario == "" {
		return id.Label
	}
	return id.Scenario + "/" + id.Label
}

// RunStatus indica o desfecho da análise de um run
type RunStatus int

const (
	RunStatusOK RunStatus = iota
	RunStatusFailed
)

func (s RunStatus) String() string {
	switch s {
	case RunStatusOK:
		return "ok"
	case RunStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RunResult é o resultado final de um run: métricas ou falha com motivo.
// Runs com falha nunca viram linha de métrica na tabela comparativa.
type RunResult struct {
	Identity RunIdentity     `json:"identity"`
	Status   RunStatus       `json:"status"`
	Metrics  *DerivedMetrics `json:"metrics,omitempty"`
	Failure  string          `json:"failure,omitempty"`
}

// Failed reporta se o run terminou em erro fatal
func (r RunResult) Failed() bool {
	return r.Status == RunStatusFailed
}
