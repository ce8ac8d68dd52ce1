package student

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rawblock/threatscore/pkg/models"
)

func writeWeights(t *testing.T, w Weights) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.json")
	data, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal weights: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write weights: %v", err)
	}
	return path
}

func TestPredictKnownFeatures(t *testing.T) {
	path := writeWeights(t, Weights{
		Intercept:    0,
		Weights:      []float64{1.0},
		FeatureOrder: []string{"domain_length"},
	})
	m, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fv := models.FeatureVector{}
	fv.Values[0] = 0 // domain_length = 0, intercept 0 -> sigmoid(0) = 0.5
	p := m.Predict(fv)
	if p < 0.49 || p > 0.51 {
		t.Errorf("expected p ~ 0.5, got %v", p)
	}
}

func TestPredictMissingWeightTreatedAsZero(t *testing.T) {
	path := writeWeights(t, Weights{
		Intercept:    2.0,
		Weights:      []float64{1.0},
		FeatureOrder: []string{"some_unknown_feature_from_a_newer_trainer"},
	})
	m, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fv := models.FeatureVector{}
	for i := range fv.Values {
		fv.Values[i] = 100 // large, to prove unmatched weights contribute nothing
	}
	p := m.Predict(fv)
	want := sigmoid(2.0)
	if mathAbs(p-want) > 1e-9 {
		t.Errorf("expected p = sigmoid(intercept) = %v, got %v", want, p)
	}
}

func TestReloadSwapsAtomically(t *testing.T) {
	path := writeWeights(t, Weights{Intercept: 0, Weights: []float64{0}, FeatureOrder: []string{"domain_length"}})
	m, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path2 := writeWeights(t, Weights{Intercept: 10, Weights: []float64{0}, FeatureOrder: []string{"domain_length"}})
	if err := m.Reload(path2); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	p := m.Predict(models.FeatureVector{})
	if p < 0.999 {
		t.Errorf("expected reload to take effect, got p=%v", p)
	}
}

func TestLoadMismatchedWeightsErrors(t *testing.T) {
	path := writeWeights(t, Weights{Intercept: 0, Weights: []float64{1, 2}, FeatureOrder: []string{"domain_length"}})
	if _, err := New(path); err == nil {
		t.Errorf("expected error for mismatched weights/feature_order lengths")
	}
}

func mathAbs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
