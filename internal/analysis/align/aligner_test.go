package align

import (
	"errors"
	"testing"
	"time"

	"k8s-hpa-analyzer/internal/analysis/models"
)

var t0 = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func sample(kind models.StreamKind, entity string, offset time.Duration, v float64) models.RawSample {
	return models.RawSample{Kind: kind, Entity: entity, Timestamp: t0.Add(offset), Value: v}
}

func TestAlign_GridArithmetic(t *testing.T) {
	samples := []models.RawSample{
		sample(models.StreamPodCount, "", 0, 2),
		sample(models.StreamPodCount, "", 47*time.Second, 4),
	}

	grid, err := NewAligner(nil).Align(samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// floor(47/5)+1 = 10 ticks estritamente uniformes
	if grid.Ticks != 10 {
		t.Errorf("expected 10 ticks, got %d", grid.Ticks)
	}
	if !grid.Start.Equal(t0) {
		t.Errorf("expected grid start at first sample, got %v", grid.Start)
	}
	if grid.Spacing != 5*time.Second {
		t.Errorf("expected 5s spacing, got %v", grid.Spacing)
	}
}

func TestAlign_LOCF(t *testing.T) {
	// replicas: 4 em t=0, 6 em t=15; outra série começa em t=5
	samples := []models.RawSample{
		sample(models.StreamCurrentReplicas, "", 0, 4),
		sample(models.StreamPodCount, "", 5*time.Second, 1),
		sample(models.StreamCurrentReplicas, "", 15*time.Second, 6),
		sample(models.StreamCurrentReplicas, "", 35*time.Second, 6),
	}

	grid, err := NewAligner(nil).Align(samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	replicas := grid.Scalar(models.StreamCurrentReplicas)
	want := []struct {
		tick  int
		value float64
	}{
		{0, 4}, {1, 4}, {2, 4}, // valor segura até a próxima amostra
		{3, 6}, {4, 6}, {5, 6}, {6, 6}, {7, 6},
	}
	for _, w := range want {
		v, ok := replicas.At(w.tick)
		if !ok || v != w.value {
			t.Errorf("tick %d: expected %v, got %v (valid=%v)", w.tick, w.value, v, ok)
		}
	}

	// pod_count só tem amostra a partir de t=5: tick 0 fica nulo
	count := grid.Scalar(models.StreamPodCount)
	if _, ok := count.At(0); ok {
		t.Error("expected null before first sample")
	}
	if v, ok := count.At(1); !ok || v != 1 {
		t.Errorf("expected pod_count 1 at tick 1, got %v (valid=%v)", v, ok)
	}
	if v, ok := count.At(7); !ok || v != 1 {
		t.Errorf("expected LOCF to hold to grid end, got %v (valid=%v)", v, ok)
	}
}

func TestAlign_RateTolerance(t *testing.T) {
	// taxa em t=0 e t=30; tolerância = 2×5s = 10s
	samples := []models.RawSample{
		sample(models.StreamCustomRate, "", 0, 100),
		sample(models.StreamCustomRate, "", 30*time.Second, 200),
	}

	grid, err := NewAligner(nil).Align(samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rate := grid.Scalar(models.StreamCustomRate)

	for tick := 0; tick <= 2; tick++ {
		if v, ok := rate.At(tick); !ok || v != 100 {
			t.Errorf("tick %d: expected 100 within tolerance, got %v (valid=%v)", tick, v, ok)
		}
	}

	// t=15s: ambas as amostras a 15s de distância, fora da tolerância
	if _, ok := rate.At(3); ok {
		t.Error("expected null at tick beyond tolerance (gap must not be interpolated)")
	}

	for tick := 4; tick <= 6; tick++ {
		if v, ok := rate.At(tick); !ok || v != 200 {
			t.Errorf("tick %d: expected 200 within tolerance, got %v (valid=%v)", tick, v, ok)
		}
	}
}

func TestAlign_RateTieBreak(t *testing.T) {
	// Amostras equidistantes do tick: a posterior vence (determinístico)
	samples := []models.RawSample{
		sample(models.StreamCustomRate, "", 10*time.Second, 100),
		sample(models.StreamCustomRate, "", 20*time.Second, 200),
	}

	grid, err := NewAligner(nil).Align(samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rate := grid.Scalar(models.StreamCustomRate)
	if v, ok := rate.At(1); !ok || v != 200 {
		t.Errorf("expected tie to prefer later sample (200), got %v (valid=%v)", v, ok)
	}
}

func TestAlign_InsufficientData(t *testing.T) {
	// 2 ticks apenas (span de 5s): rejeitado
	samples := []models.RawSample{
		sample(models.StreamPodCount, "", 0, 1),
		sample(models.StreamPodCount, "", 5*time.Second, 2),
	}
	_, err := NewAligner(nil).Align(samples)
	if !errors.Is(err, models.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}

	_, err = NewAligner(nil).Align(nil)
	if !errors.Is(err, models.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData for empty input, got %v", err)
	}
}

func TestAlign_PerEntityAndScalar(t *testing.T) {
	// CPU por pod (millicores) e CPU escalar do HPA (%) não se misturam
	samples := []models.RawSample{
		sample(models.StreamPodCPUPercent, "", 0, 55),
		sample(models.StreamPodCPUPercent, "web-a", 0, 250),
		sample(models.StreamPodCPUPercent, "web-b", 0, 350),
		sample(models.StreamPodCPUPercent, "", 10*time.Second, 62),
		sample(models.StreamPodCPUPercent, "web-a", 10*time.Second, 260),
	}

	grid, err := NewAligner(nil).Align(samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v, ok := grid.Scalar(models.StreamPodCPUPercent).At(0); !ok || v != 55 {
		t.Errorf("expected scalar HPA percent 55, got %v (valid=%v)", v, ok)
	}
	if v, ok := grid.EntitySeries(models.StreamPodCPUPercent, "web-a").At(0); !ok || v != 250 {
		t.Errorf("expected web-a 250 millicores, got %v (valid=%v)", v, ok)
	}

	names := grid.EntityNames(models.StreamPodCPUPercent)
	if len(names) != 2 {
		t.Fatalf("expected 2 entities, got %v", names)
	}

	// Agregado por soma usa só as entidades, nunca a série escalar
	sum := grid.AggregateSum(models.StreamPodCPUPercent)
	if v, ok := sum.At(0); !ok || v != 600 {
		t.Errorf("expected aggregate sum 600, got %v (valid=%v)", v, ok)
	}
}

func TestAlign_CustomSpacing(t *testing.T) {
	samples := []models.RawSample{
		sample(models.StreamPodCount, "", 0, 1),
		sample(models.StreamPodCount, "", 60*time.Second, 2),
	}

	cfg := &AlignerConfig{GridSeconds: 10, RateToleranceFactor: 2}
	grid, err := NewAligner(cfg).Align(samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if grid.Ticks != 7 {
		t.Errorf("expected 7 ticks with 10s spacing, got %d", grid.Ticks)
	}
}

func TestAlignerConfigValidate(t *testing.T) {
	if err := DefaultAlignerConfig().Validate(); err != nil {
		t.Errorf("default config must be valid: %v", err)
	}
	bad := &AlignerConfig{GridSeconds: 0, RateToleranceFactor: 2}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero grid spacing")
	}
	bad = &AlignerConfig{GridSeconds: 5, RateToleranceFactor: -1}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for negative tolerance factor")
	}
}
