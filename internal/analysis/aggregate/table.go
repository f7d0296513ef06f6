package aggregate

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
)

// Table é o artefato terminal do sweep: uma linha por run, ordenada pelo
// eixo de configuração, com as falhas registradas à parte
type Table struct {
	Rows     []Row     `json:"rows"`
	Failures []Failure `json:"failures,omitempty"`
}

// csvHeader fixa o contrato de colunas do summary_table.csv
var csvHeader = []string{
	"scenario", "run", "interval_s",
	"time_to_scale_up_s", "time_to_stabilize_s", "max_replicas",
	"overshoot_area", "pod_seconds", "avg_cpu_stabilized_pct",
	"pod_cpu_std_dev_m", "divergence_s", "avg_http_rps", "peak_http_rps",
	"tracking_score", "utilization_basis",
	"pre_stable", "false_stabilization", "low_quality",
}

// WriteCSVTo serializa a tabela em CSV para arquivamento e hand-off
// ao renderizador externo
func (t *Table) WriteCSVTo(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("erro ao escrever cabeçalho: %w", err)
	}
	for _, row := range t.Rows {
		if err := cw.Write(row.record()); err != nil {
			return fmt.Errorf("erro ao escrever linha %s: %w", row.Identity.Name(), err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV grava a tabela comparativa em disco
func (t *Table) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("erro ao criar %s: %w", path, err)
	}
	defer f.Close()
	return t.WriteCSVTo(f)
}

// Summary resume o sweep numa linha para logs
func (t *Table) Summary() string {
	return fmt.Sprintf("Runs: %d | OK: %d | Falhas: %d",
		len(t.Rows)+len(t.Failures), len(t.Rows), len(t.Failures))
}

// record monta a linha CSV de um run
func (r Row) record() []string {
	m := r.Metrics
	interval := ""
	if r.Identity.Interval > 0 {
		interval = strconv.Itoa(int(r.Identity.Interval.Seconds()))
	}
	return []string{
		r.Identity.Scenario,
		r.Identity.Label,
		interval,
		m.TimeToScaleUp.Format(1),
		m.TimeToStabilize.Format(1),
		m.MaxReplicas.Format(0),
		m.OvershootArea.Format(1),
		m.PodSeconds.Format(0),
		m.AvgCPUStabilized.Format(1),
		m.PodCPUStdDev.Format(1),
		m.DivergenceDuration.Format(1),
		m.AvgHTTPRps.Format(2),
		m.PeakHTTPRps.Format(2),
		r.TrackingScore.Format(3),
		m.UtilizationBasis,
		strconv.FormatBool(m.PreStable),
		strconv.FormatBool(m.FalseStabilization),
		strconv.FormatBool(m.LowQuality),
	}
}

// === Renderização para o terminal ===

var (
	tableHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	scenarioStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("87")).Padding(0, 1)
	borderStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	warnStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// Render desenha a tabela comparativa para o terminal
func (t *Table) Render() string {
	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case col == 0:
				return scenarioStyle
			}
			return tableCellStyle
		}).
		Headers("SCENARIO", "RUN", "INT", "SCALE-UP", "STABILIZE", "MAX",
			"AREA", "POD-S", "CPU%", "STD", "DIV", "RPS", "SCORE", "FLAGS")

	for _, row := range t.Rows {
		tbl.Row(row.display()...)
	}

	var b strings.Builder
	b.WriteString(tbl.Render())
	b.WriteString("\n")

	for _, f := range t.Failures {
		line := fmt.Sprintf("⚠️ %s: %s", f.Identity.Name(), f.Reason)
		b.WriteString(warnStyle.Render(runewidth.Truncate(line, 110, "…")))
		b.WriteString("\n")
	}

	return b.String()
}

// display monta a linha compacta do terminal
func (r Row) display() []string {
	m := r.Metrics
	interval := "-"
	if r.Identity.Interval > 0 {
		interval = fmt.Sprintf("%ds", int(r.Identity.Interval.Seconds()))
	}
	return []string{
		r.Identity.Scenario,
		r.Identity.Label,
		interval,
		m.TimeToScaleUp.Format(1),
		m.TimeToStabilize.Format(1),
		m.MaxReplicas.Format(0),
		m.OvershootArea.Format(1),
		m.PodSeconds.Format(0),
		m.AvgCPUStabilized.Format(1),
		m.PodCPUStdDev.Format(1),
		m.DivergenceDuration.Format(1),
		m.AvgHTTPRps.Format(2),
		r.TrackingScore.Format(3),
		r.flags(),
	}
}

// flags resume os sinalizadores do run numa célula
func (r Row) flags() string {
	var flags []string
	if r.Metrics.PreStable {
		flags = append(flags, "pre-stable")
	}
	if r.Metrics.FalseStabilization {
		flags = append(flags, "false-stab")
	}
	if r.Metrics.LowQuality {
		flags = append(flags, "low-quality")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}
