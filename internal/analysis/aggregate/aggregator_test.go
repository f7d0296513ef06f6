package aggregate

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"k8s-hpa-analyzer/internal/analysis/models"
)

var t0 = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func okResult(scenario, label string, interval time.Duration) models.RunResult {
	m := &models.DerivedMetrics{
		RunStart:           t0,
		RunEnd:             t0.Add(10 * time.Minute),
		Spacing:            5 * time.Second,
		Ticks:              120,
		TimeToScaleUp:      models.Defined(15),
		TimeToStabilize:    models.Defined(45),
		MaxReplicas:        models.Defined(8),
		OvershootArea:      models.Defined(600),
		PodSeconds:         models.Defined(2400),
		AvgCPUStabilized:   models.Defined(61.3),
		PodCPUStdDev:       models.Defined(24.5),
		DivergenceDuration: models.Defined(35),
		AvgHTTPRps:         models.NotApplicable("no custom-metric source"),
		PeakHTTPRps:        models.NotApplicable("no custom-metric source"),
		UtilizationBasis:   "cpu",
		TargetUtilization:  60,
	}
	return models.RunResult{
		Identity: models.RunIdentity{Scenario: scenario, Label: label, Interval: interval},
		Status:   models.RunStatusOK,
		Metrics:  m,
	}
}

func TestBuildTable_Ordering(t *testing.T) {
	ag := NewAggregator()
	ag.Add(okResult("pcm-cpu", "60s", 60*time.Second))
	ag.Add(okResult("pcm-cpu", "15s", 15*time.Second))
	ag.Add(okResult("pcm-cpu", "batch", 0)) // intervalo desconhecido vai para o fim
	ag.Add(okResult("krm", "30s", 30*time.Second))

	tbl := ag.BuildTable()
	if len(tbl.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(tbl.Rows))
	}

	got := make([]string, 0, 4)
	for _, row := range tbl.Rows {
		got = append(got, row.Identity.Name())
	}
	want := []string{"krm/30s", "pcm-cpu/15s", "pcm-cpu/60s", "pcm-cpu/batch"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestBuildTable_FailuresSeparate(t *testing.T) {
	ag := NewAggregator()
	ag.Add(okResult("pcm-cpu", "30s", 30*time.Second))
	ag.Add(models.RunResult{
		Identity: models.RunIdentity{Scenario: "pcm-cpu", Label: "60s", Interval: 60 * time.Second},
		Status:   models.RunStatusFailed,
		Failure:  "run incompleto: hpa_log.csv ausente",
	})

	tbl := ag.BuildTable()
	if len(tbl.Rows) != 1 {
		t.Errorf("failed run must not become a metric row, got %d rows", len(tbl.Rows))
	}
	if len(tbl.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(tbl.Failures))
	}
	if tbl.Failures[0].Reason == "" {
		t.Error("failure must carry its reason")
	}

	if !strings.Contains(tbl.Summary(), "Falhas: 1") {
		t.Errorf("unexpected summary: %s", tbl.Summary())
	}
}

func TestTrackingScore(t *testing.T) {
	// Área zero: rastreamento perfeito
	perfect := okResult("pcm-cpu", "15s", 15*time.Second).Metrics
	perfect.OvershootArea = models.Defined(0)
	if score := trackingScore(perfect); !score.IsDefined() || score.Value != 1 {
		t.Errorf("expected score 1.0 for zero area, got %+v", score)
	}

	// Desvio médio igual ao alvo: score 0.5
	half := okResult("pcm-cpu", "15s", 15*time.Second).Metrics
	half.OvershootArea = models.Defined(60 * 600) // 600s de run
	if score := trackingScore(half); !score.IsDefined() || score.Value != 0.5 {
		t.Errorf("expected score 0.5, got %+v", score)
	}

	// Área inaplicável propaga o estado
	na := okResult("pcm-cpu", "15s", 15*time.Second).Metrics
	na.OvershootArea = models.NotApplicable("no utilization stream")
	if score := trackingScore(na); score.State != models.MetricNotApplicable {
		t.Errorf("expected n/a score, got %+v", score)
	}

	undef := okResult("pcm-cpu", "15s", 15*time.Second).Metrics
	undef.OvershootArea = models.Undefined("insufficient utilization samples")
	if score := trackingScore(undef); score.State != models.MetricUndefined {
		t.Errorf("expected undefined score, got %+v", score)
	}
}

func TestWriteCSV(t *testing.T) {
	ag := NewAggregator()

	r := okResult("pcm-cpu", "30s", 30*time.Second)
	r.Metrics.TimeToScaleUp = models.Undefined("no scale-up observed")
	ag.Add(r)

	var buf bytes.Buffer
	if err := ag.BuildTable().WriteCSVTo(&buf); err != nil {
		t.Fatalf("WriteCSVTo failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("generated CSV must parse back: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header + 1 row, got %d records", len(records))
	}

	header := records[0]
	if header[0] != "scenario" || header[len(header)-1] != "low_quality" {
		t.Errorf("unexpected header layout: %v", header)
	}

	row := records[1]
	if len(row) != len(header) {
		t.Fatalf("row width %d != header width %d", len(row), len(header))
	}
	if row[0] != "pcm-cpu" || row[1] != "30s" || row[2] != "30" {
		t.Errorf("unexpected identity cells: %v", row[:3])
	}
	if row[3] != "undefined" {
		t.Errorf("expected undefined scale-up cell, got %q", row[3])
	}
	if row[11] != "n/a" {
		t.Errorf("expected n/a rps cell, got %q", row[11])
	}
	if row[4] != "45.0" {
		t.Errorf("expected stabilize 45.0, got %q", row[4])
	}
	if row[13] == "" {
		t.Errorf("tracking score cell must not be empty")
	}
	if row[15] != "false" || row[17] != "false" {
		t.Errorf("unexpected flag cells: %v", row[15:])
	}
}

func TestRender(t *testing.T) {
	ag := NewAggregator()
	ag.Add(okResult("pcm-cpu", "30s", 30*time.Second))
	ag.Add(models.RunResult{
		Identity: models.RunIdentity{Scenario: "pcm-cpu", Label: "60s"},
		Status:   models.RunStatusFailed,
		Failure:  "dados insuficientes",
	})

	out := ag.BuildTable().Render()
	if !strings.Contains(out, "SCENARIO") {
		t.Error("render must include the header row")
	}
	if !strings.Contains(out, "pcm-cpu") {
		t.Error("render must include the scenario")
	}
	if !strings.Contains(out, "⚠️") {
		t.Error("render must list the failed run")
	}
}
