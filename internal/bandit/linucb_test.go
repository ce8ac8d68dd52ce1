package bandit

import (
	"testing"
)

func testConfig() Config {
	return Config{Alpha: 1.0, Dimensions: 3, Arms: []string{"ALLOW", "WARN", "BLOCK"}}
}

func TestSelectTiesBreakToLowestIndex(t *testing.T) {
	b := New(testConfig())
	arm, err := b.Select([]float64{1, 0, 0})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if arm != 0 {
		t.Errorf("expected tie broken to arm 0, got %d", arm)
	}
}

func TestUpdateShiftsSelection(t *testing.T) {
	b := New(testConfig())
	ctx := []float64{1, 0, 0}

	for i := 0; i < 20; i++ {
		if err := b.Update(2, ctx, 1.0); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	arm, err := b.Select(ctx)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if arm != 2 {
		t.Errorf("expected repeated positive reward to steer selection to arm 2, got %d", arm)
	}
}

func TestSelectDimensionMismatch(t *testing.T) {
	b := New(testConfig())
	if _, err := b.Select([]float64{1, 2}); err == nil {
		t.Errorf("expected dimension mismatch error")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	b := New(testConfig())
	if err := b.Update(1, []float64{1, 2, 3}, 0.5); err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap := b.Snapshot()

	b2 := New(testConfig())
	b2.Restore(snap)

	arm1, _ := b.Select([]float64{1, 2, 3})
	arm2, _ := b2.Select([]float64{1, 2, 3})
	if arm1 != arm2 {
		t.Errorf("expected restored bandit to select the same arm: %d vs %d", arm1, arm2)
	}
}

func TestRestoreDimensionMismatchReinitializes(t *testing.T) {
	b := New(testConfig())
	if err := b.Update(0, []float64{1, 2, 3}, 1.0); err != nil {
		t.Fatalf("Update: %v", err)
	}

	other := Config{Alpha: 1.0, Dimensions: 5, Arms: []string{"ALLOW", "WARN", "BLOCK"}}
	b2 := New(other)
	b2.Restore(b.Snapshot()) // dims 3 != 5, should reinit not panic

	arm, err := b2.Select([]float64{0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("Select after mismatched restore: %v", err)
	}
	if arm != 0 {
		t.Errorf("expected reinitialized bandit to tie-break to arm 0, got %d", arm)
	}
}
