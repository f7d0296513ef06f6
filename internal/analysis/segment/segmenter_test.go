package segment

import (
	"testing"
	"time"

	"k8s-hpa-analyzer/internal/analysis/models"
)

var t0 = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func marker(offset time.Duration, cycle int, kind models.PhaseKind, action models.MarkerAction) models.PhaseMarker {
	return models.PhaseMarker{Timestamp: t0.Add(offset), Cycle: cycle, Kind: kind, Action: action}
}

func TestSegment_Pairing(t *testing.T) {
	markers := []models.PhaseMarker{
		marker(0, 0, models.PhaseHigh, models.MarkerStart),
		marker(5*time.Minute, 0, models.PhaseHigh, models.MarkerEnd),
		marker(5*time.Minute, 0, models.PhaseLow, models.MarkerStart),
		marker(10*time.Minute, 0, models.PhaseLow, models.MarkerEnd),
	}

	phases := Segment(markers, t0, t0.Add(12*time.Minute))
	if len(phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(phases))
	}

	high := phases[0]
	if high.Kind != models.PhaseHigh || !high.Start.Equal(t0) || !high.End.Equal(t0.Add(5*time.Minute)) {
		t.Errorf("unexpected high phase: %+v", high)
	}
	if high.Truncated || high.Synthetic {
		t.Error("paired phase must not be truncated or synthetic")
	}

	low := phases[1]
	if low.Kind != models.PhaseLow || !low.Start.Equal(t0.Add(5*time.Minute)) {
		t.Errorf("unexpected low phase: %+v", low)
	}
}

func TestSegment_Truncated(t *testing.T) {
	markers := []models.PhaseMarker{
		marker(0, 0, models.PhaseHigh, models.MarkerStart),
	}

	runEnd := t0.Add(8 * time.Minute)
	phases := Segment(markers, t0, runEnd)
	if len(phases) != 1 {
		t.Fatalf("expected 1 phase, got %d", len(phases))
	}
	p := phases[0]
	if !p.Truncated {
		t.Error("expected phase to be truncated")
	}
	if !p.End.Equal(runEnd) {
		t.Errorf("expected truncated phase closed at run end, got %v", p.End)
	}
}

func TestSegment_Synthetic(t *testing.T) {
	runEnd := t0.Add(10 * time.Minute)
	phases := Segment(nil, t0, runEnd)
	if len(phases) != 1 {
		t.Fatalf("expected 1 synthetic phase, got %d", len(phases))
	}
	p := phases[0]
	if !p.Synthetic || p.Kind != models.PhaseUnlabeled {
		t.Errorf("expected synthetic unlabeled phase, got %+v", p)
	}
	if !p.Start.Equal(t0) || !p.End.Equal(runEnd) {
		t.Errorf("expected synthetic phase to span the run, got %+v", p)
	}
}

func TestSegment_EndWithoutStart(t *testing.T) {
	// Só um end órfão: descartado, run vira contínuo
	markers := []models.PhaseMarker{
		marker(time.Minute, 0, models.PhaseHigh, models.MarkerEnd),
	}

	phases := Segment(markers, t0, t0.Add(5*time.Minute))
	if len(phases) != 1 || !phases[0].Synthetic {
		t.Fatalf("expected fallback to synthetic phase, got %+v", phases)
	}
}

func TestSegment_Overlap(t *testing.T) {
	// low começa antes do high terminar: início do low é recortado
	markers := []models.PhaseMarker{
		marker(0, 0, models.PhaseHigh, models.MarkerStart),
		marker(2*time.Minute, 0, models.PhaseLow, models.MarkerStart),
		marker(4*time.Minute, 0, models.PhaseHigh, models.MarkerEnd),
		marker(6*time.Minute, 0, models.PhaseLow, models.MarkerEnd),
	}

	phases := Segment(markers, t0, t0.Add(8*time.Minute))
	if len(phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(phases))
	}

	low := phases[1]
	if low.Kind != models.PhaseLow {
		t.Fatalf("expected second phase to be low, got %+v", low)
	}
	if !low.Start.Equal(t0.Add(4 * time.Minute)) {
		t.Errorf("expected low start clipped to high end, got %v", low.Start)
	}

	// Nenhum par de fases pode se sobrepor
	for i := 1; i < len(phases); i++ {
		if phases[i].Start.Before(phases[i-1].End) {
			t.Errorf("phases %d and %d overlap", i-1, i)
		}
	}
}

func TestSegment_TwoCycles(t *testing.T) {
	markers := []models.PhaseMarker{
		marker(0, 0, models.PhaseHigh, models.MarkerStart),
		marker(3*time.Minute, 0, models.PhaseHigh, models.MarkerEnd),
		marker(3*time.Minute, 0, models.PhaseLow, models.MarkerStart),
		marker(6*time.Minute, 0, models.PhaseLow, models.MarkerEnd),
		// gap de 1 minuto entre ciclos
		marker(7*time.Minute, 1, models.PhaseHigh, models.MarkerStart),
		marker(10*time.Minute, 1, models.PhaseHigh, models.MarkerEnd),
		marker(10*time.Minute, 1, models.PhaseLow, models.MarkerStart),
		marker(13*time.Minute, 1, models.PhaseLow, models.MarkerEnd),
	}

	phases := Segment(markers, t0, t0.Add(14*time.Minute))
	if len(phases) != 4 {
		t.Fatalf("expected 4 phases, got %d", len(phases))
	}

	// Ordenadas por início, ciclos preservados
	for i := 1; i < len(phases); i++ {
		if phases[i].Start.Before(phases[i-1].Start) {
			t.Error("phases must be sorted by start time")
		}
	}
	if phases[2].Cycle != 1 || phases[2].Kind != models.PhaseHigh {
		t.Errorf("expected third phase to be cycle1/high, got %+v", phases[2])
	}
}

func TestSegment_DuplicateStart(t *testing.T) {
	// Segundo start do mesmo (ciclo, kind) fecha a fase anterior nele
	markers := []models.PhaseMarker{
		marker(0, 0, models.PhaseHigh, models.MarkerStart),
		marker(2*time.Minute, 0, models.PhaseHigh, models.MarkerStart),
		marker(4*time.Minute, 0, models.PhaseHigh, models.MarkerEnd),
	}

	phases := Segment(markers, t0, t0.Add(5*time.Minute))
	if len(phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(phases))
	}
	if !phases[0].End.Equal(t0.Add(2 * time.Minute)) {
		t.Errorf("expected first phase closed at duplicate start, got %v", phases[0].End)
	}
	if !phases[1].Start.Equal(t0.Add(2*time.Minute)) || !phases[1].End.Equal(t0.Add(4*time.Minute)) {
		t.Errorf("unexpected second phase: %+v", phases[1])
	}
}
