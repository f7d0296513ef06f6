package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"k8s.io/apimachinery/pkg/api/resource"

	"k8s-hpa-analyzer/internal/analysis/models"
)

// Arquivos conhecidos de um diretório de run. Os coletores gravam esses
// nomes fixos. pod_cpu, hpa_log e podcount são obrigatórios; phases.log
// e as fontes de req/s variam por cenário.
const (
	FilePodCPU     = "pod_cpu.csv"            // timestamp,pod,cpu,memory
	FileHPALog     = "hpa_log.csv"            // timestamp,currentReplicas,desiredReplicas,currentCPUUtilizationPercent[,httpRequestsPerSecond]
	FilePodCount   = "podcount.csv"           // timestamp,pod_count
	FilePhases     = "phases.log"             // timestamp,phase,action
	FileHTTPRps    = "http_rps.csv"           // timestamp,total_rps,per_pod_avg_rps
	FilePrometheus = "prometheus_metrics.csv" // timestamp,metric,pod,value
)

// Métrica exportada pelo coletor Prometheus que vira custom_metric_rate
const prometheusRateMetric = "http_requests_rate"

// IngestorConfig controla tolerâncias de parsing
type IngestorConfig struct {
	// Fração de linhas malformadas tolerada por arquivo obrigatório
	// antes de marcar o run como low-quality (ainda processado)
	MaxMalformedFraction float64
}

// DefaultIngestorConfig retorna a configuração padrão
func DefaultIngestorConfig() *IngestorConfig {
	return &IngestorConfig{
		MaxMalformedFraction: 0.05,
	}
}

// Ingestor lê os arquivos brutos de um run e produz amostras e markers
// normalizados, ordenados por timestamp. Puramente funcional: só leitura.
type Ingestor struct {
	config *IngestorConfig
}

// NewIngestor cria o ingestor (config nil usa o padrão)
func NewIngestor(config *IngestorConfig) *Ingestor {
	if config == nil {
		config = DefaultIngestorConfig()
	}
	return &Ingestor{config: config}
}

// RunData é a saída normalizada de um run
type RunData struct {
	Samples []models.RawSample
	Markers []models.PhaseMarker

	// Contadores de qualidade
	TotalRows       int
	MalformedRows   int
	MalformedByFile map[string]int
	LowQuality      bool

	// Fonte escolhida para custom_metric_rate ("" = nenhuma disponível)
	CustomMetricSource string
}

// fileStats acumula contagem de linhas por arquivo durante o parsing
type fileStats struct {
	rows      int
	malformed int
}

// IngestRun lê todos os arquivos de um diretório de run.
// Arquivo obrigatório ausente retorna models.ErrIncompleteRun.
func (in *Ingestor) IngestRun(dir string) (*RunData, error) {
	data := &RunData{
		MalformedByFile: make(map[string]int),
	}
	stats := make(map[string]*fileStats)

	// Obrigatórios primeiro: a ausência de qualquer um invalida o run
	hpaRps, err := in.parseHPALog(dir, data, stats)
	if err != nil {
		return nil, err
	}
	if err := in.parsePodCPU(dir, data, stats); err != nil {
		return nil, err
	}
	if err := in.parsePodCount(dir, data, stats); err != nil {
		return nil, err
	}

	// phases.log é opcional: run contínuo fica sem markers
	if err := in.parsePhases(dir, data, stats); err != nil {
		return nil, err
	}

	// Fontes de custom_metric_rate em ordem de preferência:
	// http_rps.csv (coletor dedicado) > hpa_log.csv > prometheus_metrics.csv
	httpRps, err := in.parseHTTPRps(dir, stats)
	if err != nil {
		return nil, err
	}
	promPerPod, promScalar, err := in.parsePrometheus(dir, stats)
	if err != nil {
		return nil, err
	}

	switch {
	case len(httpRps) > 0:
		data.CustomMetricSource = FileHTTPRps
		data.Samples = append(data.Samples, httpRps...)
	case len(hpaRps) > 0:
		data.CustomMetricSource = FileHPALog
		data.Samples = append(data.Samples, hpaRps...)
	case len(promScalar) > 0:
		data.CustomMetricSource = FilePrometheus
		data.Samples = append(data.Samples, promScalar...)
		data.Samples = append(data.Samples, promPerPod...)
	}

	// Consolida contadores e aplica o limiar de qualidade por arquivo
	for name, st := range stats {
		data.TotalRows += st.rows
		data.MalformedRows += st.malformed
		if st.malformed > 0 {
			data.MalformedByFile[name] = st.malformed
		}
		required := name == FilePodCPU || name == FileHPALog || name == FilePodCount
		if required && st.rows > 0 &&
			float64(st.malformed)/float64(st.rows) > in.config.MaxMalformedFraction {
			data.LowQuality = true
			log.Warn().
				Str("file", name).
				Int("malformed", st.malformed).
				Int("rows", st.rows).
				Msg("⚠️ Run marcado como low-quality: linhas malformadas acima do limiar")
		}
	}

	in.sortSamples(data)
	assignCycles(data.Markers)

	log.Debug().
		Str("dir", dir).
		Int("samples", len(data.Samples)).
		Int("markers", len(data.Markers)).
		Int("malformed", data.MalformedRows).
		Str("custom_source", data.CustomMetricSource).
		Msg("Run ingerido")

	return data, nil
}

// sortSamples garante ordenação total por (timestamp, kind, entity).
// Coletores independentes podem gravar fora de ordem (clock skew);
// isso é corrigido com warning, nunca fatal.
func (in *Ingestor) sortSamples(data *RunData) {
	sorted := sort.SliceIsSorted(data.Samples, func(i, j int) bool {
		return data.Samples[i].Timestamp.Before(data.Samples[j].Timestamp)
	})
	if !sorted {
		log.Warn().Msg("⚠️ Timestamps fora de ordem detectados; reordenando (clock skew)")
	}
	sort.SliceStable(data.Samples, func(i, j int) bool {
		a, b := data.Samples[i], data.Samples[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Entity < b.Entity
	})
	sort.SliceStable(data.Markers, func(i, j int) bool {
		return data.Markers[i].Timestamp.Before(data.Markers[j].Timestamp)
	})
}

// assignCycles numera os ciclos dos markers. O phases.log não carrega
// coluna de ciclo: um novo start de uma fase já iniciada no ciclo
// corrente abre o ciclo seguinte. Ends herdam o ciclo do start aberto.
func assignCycles(markers []models.PhaseMarker) {
	cycle := 0
	startedInCycle := make(map[models.PhaseKind]bool)
	openStart := make(map[models.PhaseKind]int)

	for i := range markers {
		m := &markers[i]
		switch m.Action {
		case models.MarkerStart:
			if startedInCycle[m.Kind] {
				cycle++
				startedInCycle = make(map[models.PhaseKind]bool)
			}
			startedInCycle[m.Kind] = true
			openStart[m.Kind] = cycle
			m.Cycle = cycle
		case models.MarkerEnd:
			if c, ok := openStart[m.Kind]; ok {
				m.Cycle = c
				delete(openStart, m.Kind)
			} else {
				m.Cycle = cycle
			}
		}
	}
}

// table é um CSV já carregado com índice de colunas por nome
type table struct {
	width int // número de colunas do header
	cols  map[string]int
	rows  [][]string
}

func (t *table) col(row []string, name string) (string, bool) {
	idx, ok := t.cols[name]
	if !ok || idx >= len(row) {
		return "", false
	}
	return strings.TrimSpace(row[idx]), true
}

// readTable carrega um CSV com header. required=false e arquivo ausente
// retorna (nil, nil); required=true e ausente retorna ErrIncompleteRun.
func readTable(dir, name string, required bool) (*table, error) {
	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s (%v)", models.ErrIncompleteRun, name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // linhas com contagem errada viram malformed, não erro global
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: falha ao ler %s: %v", models.ErrIncompleteRun, name, err)
	}
	if len(records) == 0 {
		if required {
			return nil, fmt.Errorf("%w: %s vazio", models.ErrIncompleteRun, name)
		}
		return nil, nil
	}

	header := records[0]
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	if _, ok := cols["timestamp"]; !ok {
		return nil, fmt.Errorf("%w: %s sem coluna timestamp", models.ErrIncompleteRun, name)
	}

	return &table{width: len(header), cols: cols, rows: records[1:]}, nil
}

// begin delimita o processamento de uma linha: conta a linha e rejeita
// contagem de colunas errada ou timestamp inválido (ambos malformed).
func (t *table) begin(row []string, st *fileStats) (time.Time, bool) {
	st.rows++
	if len(row) != t.width {
		st.malformed++
		return time.Time{}, false
	}
	cell, ok := t.col(row, "timestamp")
	if !ok || absent(cell) {
		st.malformed++
		return time.Time{}, false
	}
	ts, err := parseTimestamp(cell)
	if err != nil {
		st.malformed++
		return time.Time{}, false
	}
	return ts, true
}

// Layouts de timestamp aceitos. Os coletores gravam ISO-8601 com ou sem
// zona e com ou sem fração de segundo; timestamps sem zona valem como UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp inválido: %q", raw)
}

// absent reconhece células sem valor. O kubectl grava "<unknown>" quando
// a métrica ainda não existe; isso é ausência, não linha malformada.
func absent(cell string) bool {
	return cell == "" || cell == "<unknown>" || cell == "<none>"
}

// parseHPALog extrai current/desired replicas, o percentual de CPU
// reportado pelo HPA (série escalar do cluster) e, quando presente, a
// coluna httpRequestsPerSecond (candidata a custom_metric_rate).
func (in *Ingestor) parseHPALog(dir string, data *RunData, stats map[string]*fileStats) ([]models.RawSample, error) {
	t, err := readTable(dir, FileHPALog, true)
	if err != nil {
		return nil, err
	}
	st := &fileStats{}
	stats[FileHPALog] = st

	var rps []models.RawSample
	for _, row := range t.rows {
		ts, ok := t.begin(row, st)
		if !ok {
			continue
		}

		numeric := func(column string, kind models.StreamKind) *models.RawSample {
			cell, ok := t.col(row, column)
			if !ok || absent(cell) {
				return nil
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				st.malformed++
				return nil
			}
			return &models.RawSample{Kind: kind, Timestamp: ts, Value: v}
		}

		if s := numeric("currentReplicas", models.StreamCurrentReplicas); s != nil {
			data.Samples = append(data.Samples, *s)
		}
		if s := numeric("desiredReplicas", models.StreamDesiredReplicas); s != nil {
			data.Samples = append(data.Samples, *s)
		}
		if s := numeric("currentCPUUtilizationPercent", models.StreamPodCPUPercent); s != nil {
			data.Samples = append(data.Samples, *s)
		}
		if s := numeric("httpRequestsPerSecond", models.StreamCustomRate); s != nil {
			rps = append(rps, *s)
		}
	}
	return rps, nil
}

// parsePodCPU extrai CPU (millicores) e memória (bytes) por pod.
// Os valores vêm no formato de quantity do kubectl top ("250m", "52Mi").
func (in *Ingestor) parsePodCPU(dir string, data *RunData, stats map[string]*fileStats) error {
	t, err := readTable(dir, FilePodCPU, true)
	if err != nil {
		return err
	}
	st := &fileStats{}
	stats[FilePodCPU] = st

	for _, row := range t.rows {
		ts, ok := t.begin(row, st)
		if !ok {
			continue
		}
		pod, ok := t.col(row, "pod")
		if !ok || pod == "" {
			st.malformed++
			continue
		}

		if cell, ok := t.col(row, "cpu"); ok && !absent(cell) {
			q, err := resource.ParseQuantity(cell)
			if err != nil {
				st.malformed++
			} else {
				data.Samples = append(data.Samples, models.RawSample{
					Kind:      models.StreamPodCPUPercent,
					Entity:    pod,
					Timestamp: ts,
					Value:     float64(q.MilliValue()),
				})
			}
		}
		if cell, ok := t.col(row, "memory"); ok && !absent(cell) {
			q, err := resource.ParseQuantity(cell)
			if err != nil {
				st.malformed++
			} else {
				data.Samples = append(data.Samples, models.RawSample{
					Kind:      models.StreamPodMemory,
					Entity:    pod,
					Timestamp: ts,
					Value:     float64(q.Value()),
				})
			}
		}
	}
	return nil
}

func (in *Ingestor) parsePodCount(dir string, data *RunData, stats map[string]*fileStats) error {
	t, err := readTable(dir, FilePodCount, true)
	if err != nil {
		return err
	}
	st := &fileStats{}
	stats[FilePodCount] = st

	for _, row := range t.rows {
		ts, ok := t.begin(row, st)
		if !ok {
			continue
		}
		cell, ok := t.col(row, "pod_count")
		if !ok || absent(cell) {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			st.malformed++
			continue
		}
		data.Samples = append(data.Samples, models.RawSample{
			Kind:      models.StreamPodCount,
			Timestamp: ts,
			Value:     v,
		})
	}
	return nil
}

func (in *Ingestor) parsePhases(dir string, data *RunData, stats map[string]*fileStats) error {
	t, err := readTable(dir, FilePhases, false)
	if err != nil {
		return err
	}
	if t == nil {
		log.Debug().Str("dir", dir).Msg("Sem phases.log: run contínuo, fase sintética será usada")
		return nil
	}
	st := &fileStats{}
	stats[FilePhases] = st

	for _, row := range t.rows {
		ts, ok := t.begin(row, st)
		if !ok {
			continue
		}
		phaseCell, _ := t.col(row, "phase")
		actionCell, ok := t.col(row, "action")
		if !ok {
			st.malformed++
			continue
		}
		action, err := models.ParseMarkerAction(actionCell)
		if err != nil {
			st.malformed++
			continue
		}
		data.Markers = append(data.Markers, models.PhaseMarker{
			Timestamp: ts,
			Kind:      models.ParsePhaseKind(phaseCell),
			Action:    action,
		})
	}
	return nil
}

// parseHTTPRps lê o coletor dedicado de req/s (total do cluster)
func (in *Ingestor) parseHTTPRps(dir string, stats map[string]*fileStats) ([]models.RawSample, error) {
	t, err := readTable(dir, FileHTTPRps, false)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, nil
	}
	st := &fileStats{}
	stats[FileHTTPRps] = st

	var samples []models.RawSample
	for _, row := range t.rows {
		ts, ok := t.begin(row, st)
		if !ok {
			continue
		}
		cell, ok := t.col(row, "total_rps")
		if !ok || absent(cell) {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			st.malformed++
			continue
		}
		samples = append(samples, models.RawSample{
			Kind:      models.StreamCustomRate,
			Timestamp: ts,
			Value:     v,
		})
	}
	return samples, nil
}

// parsePrometheus extrai as linhas http_requests_rate: uma série por pod
// mais a série escalar do cluster (soma por timestamp), último fallback
// para custom_metric_rate.
func (in *Ingestor) parsePrometheus(dir string, stats map[string]*fileStats) (perPod, scalar []models.RawSample, err error) {
	t, err := readTable(dir, FilePrometheus, false)
	if err != nil {
		return nil, nil, err
	}
	if t == nil {
		return nil, nil, nil
	}
	st := &fileStats{}
	stats[FilePrometheus] = st

	sums := make(map[time.Time]float64)
	for _, row := range t.rows {
		ts, ok := t.begin(row, st)
		if !ok {
			continue
		}
		metric, _ := t.col(row, "metric")
		if metric != prometheusRateMetric {
			continue
		}
		cell, ok := t.col(row, "value")
		if !ok || absent(cell) {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			st.malformed++
			continue
		}
		// Linha sem pod contribui só para a soma do cluster
		if pod, _ := t.col(row, "pod"); pod != "" {
			perPod = append(perPod, models.RawSample{
				Kind:      models.StreamCustomRate,
				Entity:    pod,
				Timestamp: ts,
				Value:     v,
			})
		}
		sums[ts] += v
	}

	for ts, v := range sums {
		scalar = append(scalar, models.RawSample{
			Kind:      models.StreamCustomRate,
			Timestamp: ts,
			Value:     v,
		})
	}
	sort.Slice(scalar, func(i, j int) bool {
		return scalar[i].Timestamp.Before(scalar[j].Timestamp)
	})
	return perPod, scalar, nil
}
