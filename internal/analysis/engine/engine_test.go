package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"k8s-hpa-analyzer/internal/analysis/models"
	"k8s-hpa-analyzer/internal/config"
)

var fixtureT0 = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

// writeRun grava um run completo de 4 ticks (grade de 5s): scale-up de
// 2 para 3 réplicas no segundo tick, CPU acima do alvo no meio do run e
// dois pods com millicores constantes (120m e 180m).
func writeRun(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}

	ts := func(offset time.Duration) string {
		return fixtureT0.Add(offset).Format(time.RFC3339)
	}
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	write("hpa_log.csv", "timestamp,currentReplicas,desiredReplicas,currentCPUUtilizationPercent\n"+
		ts(0)+",2,2,60\n"+
		ts(5*time.Second)+",3,3,75\n"+
		ts(10*time.Second)+",3,3,62\n"+
		ts(15*time.Second)+",3,3,60\n")

	podCPU := "timestamp,pod,cpu,memory\n"
	for _, offset := range []time.Duration{0, 5 * time.Second, 10 * time.Second, 15 * time.Second} {
		podCPU += ts(offset) + ",web-1,120m,52Mi\n"
		podCPU += ts(offset) + ",web-2,180m,54Mi\n"
	}
	write("pod_cpu.csv", podCPU)

	write("podcount.csv", "timestamp,pod_count\n"+
		ts(0)+",2\n"+
		ts(5*time.Second)+",3\n"+
		ts(10*time.Second)+",3\n"+
		ts(15*time.Second)+",3\n")

	write("phases.log", "timestamp,phase,action\n"+
		ts(0)+",high,start\n"+
		ts(20*time.Second)+",high,end\n")
}

func testConfig() *config.SweepConfig {
	cfg := config.DefaultSweepConfig()
	cfg.GridSeconds = 5
	cfg.StabilizationWindowSeconds = 10
	cfg.Workers = 2
	return cfg
}

func TestNew_NilConfig(t *testing.T) {
	eng, err := New(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eng == nil {
		t.Fatal("expected engine with default config")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultSweepConfig()
	cfg.GridSeconds = 0
	if _, err := New(cfg); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestAnalyzeRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pcm-cpu", "15s")
	writeRun(t, dir)

	eng, err := New(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id := models.RunIdentity{Scenario: "pcm-cpu", Label: "15s", Dir: dir, Interval: 15 * time.Second}
	res := eng.AnalyzeRun(context.Background(), id)
	if res.Failed() {
		t.Fatalf("unexpected failure: %s", res.Failure)
	}
	m := res.Metrics

	// Janela temporal da grade
	if m.Ticks != 4 {
		t.Fatalf("expected 4 ticks, got %d", m.Ticks)
	}
	if !m.RunEnd.Equal(fixtureT0.Add(20 * time.Second)) {
		t.Errorf("expected run end at +20s, got %v", m.RunEnd)
	}

	// Reação e estabilização: baseline 2, salto para 3 no tick 1,
	// constante dali em diante
	if !m.TimeToScaleUp.IsDefined() || !approx(m.TimeToScaleUp.Value, 5.0) {
		t.Errorf("expected scale-up of 5s, got %+v", m.TimeToScaleUp)
	}
	if !m.TimeToStabilize.IsDefined() || !approx(m.TimeToStabilize.Value, 5.0) {
		t.Errorf("expected stabilization of 5s, got %+v", m.TimeToStabilize)
	}
	if m.PreStable || m.FalseStabilization {
		t.Errorf("expected no pre-stable flags, got pre=%v false=%v", m.PreStable, m.FalseStabilization)
	}

	if !m.MaxReplicas.IsDefined() || m.MaxReplicas.Value != 3 {
		t.Errorf("expected max of 3 replicas, got %+v", m.MaxReplicas)
	}
	if !m.PodSeconds.IsDefined() || !approx(m.PodSeconds.Value, 55.0) {
		t.Errorf("expected 55 pod-seconds, got %+v", m.PodSeconds)
	}

	// Área: desvios |60,75,62,60 - 60| = 0,15,2,0 via trapézio na grade de 5s
	if !m.OvershootArea.IsDefined() || !approx(m.OvershootArea.Value, 85.0) {
		t.Errorf("expected area of 85, got %+v", m.OvershootArea)
	}
	if m.UtilizationBasis != "cpu" {
		t.Errorf("expected cpu basis, got %q", m.UtilizationBasis)
	}

	// Janela estabilizada cobre os ticks 1..3
	if !m.AvgCPUStabilized.IsDefined() || !approx(m.AvgCPUStabilized.Value, 197.0/3.0) {
		t.Errorf("expected stabilized cpu of 197/3, got %+v", m.AvgCPUStabilized)
	}
	if !m.PodCPUStdDev.IsDefined() || !approx(m.PodCPUStdDev.Value, math.Sqrt(1800)) {
		t.Errorf("expected std dev sqrt(1800), got %+v", m.PodCPUStdDev)
	}

	if !m.DivergenceDuration.IsDefined() || m.DivergenceDuration.Value != 0 {
		t.Errorf("expected zero divergence, got %+v", m.DivergenceDuration)
	}
	if m.AvgHTTPRps.State != models.MetricNotApplicable {
		t.Errorf("expected n/a http rate without custom source, got %+v", m.AvgHTTPRps)
	}

	// Contadores de qualidade vêm da ingestão
	if m.TotalRows != 18 {
		t.Errorf("expected 18 rows ingested, got %d", m.TotalRows)
	}
	if m.MalformedRows != 0 || m.LowQuality {
		t.Errorf("expected clean run, got malformed=%d low=%v", m.MalformedRows, m.LowQuality)
	}
	if m.CustomMetricSource != "" {
		t.Errorf("expected no custom source, got %q", m.CustomMetricSource)
	}

	if len(m.Phases) != 1 || m.Phases[0].Phase.Kind != models.PhaseHigh {
		t.Fatalf("expected a single high phase, got %+v", m.Phases)
	}
}

func TestAnalyzeRun_MissingRequiredFile(t *testing.T) {
	dir := t.TempDir() // sem hpa_log.csv

	eng, err := New(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := eng.AnalyzeRun(context.Background(), models.RunIdentity{Scenario: "broken", Label: "broken", Dir: dir})
	if !res.Failed() {
		t.Fatal("expected failure for incomplete run")
	}
	if res.Failure == "" {
		t.Error("expected failure reason to be recorded")
	}
	if res.Metrics != nil {
		t.Error("failed run should not carry metrics")
	}
}

func TestRunSweep(t *testing.T) {
	root := t.TempDir()
	krmDir := filepath.Join(root, "krm")
	pcmDir := filepath.Join(root, "pcm-cpu", "15s")
	brokenDir := filepath.Join(root, "broken")
	writeRun(t, krmDir)
	writeRun(t, pcmDir)
	if err := os.MkdirAll(brokenDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	runs := []models.RunIdentity{
		{Scenario: "pcm-cpu", Label: "15s", Dir: pcmDir, Interval: 15 * time.Second},
		{Scenario: "broken", Label: "broken", Dir: brokenDir},
		{Scenario: "krm", Label: "krm", Dir: krmDir},
	}

	eng, err := New(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	table, err := eng.RunSweep(context.Background(), runs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 ok rows, got %d", len(table.Rows))
	}
	if len(table.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(table.Failures))
	}

	// Ordenação por cenário, independente da ordem de chegada
	if table.Rows[0].Identity.Scenario != "krm" {
		t.Errorf("expected krm first, got %s", table.Rows[0].Identity.Name())
	}
	if table.Rows[1].Identity.Scenario != "pcm-cpu" {
		t.Errorf("expected pcm-cpu second, got %s", table.Rows[1].Identity.Name())
	}
	if table.Failures[0].Identity.Scenario != "broken" || table.Failures[0].Reason == "" {
		t.Errorf("expected broken run in failures, got %+v", table.Failures[0])
	}

	if !table.Rows[0].TrackingScore.IsDefined() {
		t.Errorf("expected tracking score, got %+v", table.Rows[0].TrackingScore)
	}
}

func TestRunSweep_NoRuns(t *testing.T) {
	eng, err := New(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := eng.RunSweep(context.Background(), nil); err == nil {
		t.Error("expected error for empty sweep")
	}
}

func TestRunSweep_WorkerCountDoesNotChangeOutput(t *testing.T) {
	root := t.TempDir()
	var runs []models.RunIdentity
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		dir := filepath.Join(root, name)
		writeRun(t, dir)
		runs = append(runs, models.RunIdentity{Scenario: name, Label: name, Dir: dir})
	}

	marshal := func(workers int) []byte {
		cfg := testConfig()
		cfg.Workers = workers
		eng, err := New(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		table, err := eng.RunSweep(context.Background(), runs)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out, err := json.Marshal(table)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return out
	}

	serial := marshal(1)
	parallel := marshal(4)
	if !bytes.Equal(serial, parallel) {
		t.Error("sweep output must not depend on worker count")
	}
}

func TestRunSweep_Cancelled(t *testing.T) {
	root := t.TempDir()
	var runs []models.RunIdentity
	for _, name := range []string{"a", "b"} {
		dir := filepath.Join(root, name)
		writeRun(t, dir)
		runs = append(runs, models.RunIdentity{Scenario: name, Label: name, Dir: dir})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng, err := New(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	table, err := eng.RunSweep(ctx, runs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Runs processados após o cancelamento viram falha; nenhum vira OK
	if len(table.Rows) != 0 {
		t.Errorf("expected no ok rows after cancellation, got %d", len(table.Rows))
	}
}
