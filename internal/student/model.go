// Package student implements the fixed logistic-regression scorer: a
// linear combination of named features, passed through a sigmoid, that
// never updates during the process lifetime — only a full reload from a
// new weight file replaces it, via an atomic snapshot swap in the same
// style the intel store uses for its block-list sets.
package student

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync/atomic"

	"github.com/rawblock/threatscore/pkg/models"
)

// Weights is the on-disk JSON shape for a trained student model.
type Weights struct {
	Intercept    float64   `json:"intercept"`
	Weights      []float64 `json:"weights"`
	FeatureOrder []string  `json:"feature_order"`
}

type compiled struct {
	intercept float64
	// byIndex[i] is the weight to apply to models.FeatureOrder[i]; a
	// feature present in the context vector but absent from the trained
	// weight file's feature_order contributes 0.
	byIndex []float64
}

// Model is the loaded, immutable scorer.
type Model struct {
	current atomic.Pointer[compiled]
}

// New constructs a Model from path. Any load failure is fatal at startup
// per the engine's error-handling design — a process without a working
// student model cannot score anything.
func New(path string) (*Model, error) {
	m := &Model{}
	if err := m.Reload(path); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload re-reads path and atomically swaps in the new weights.
func (m *Model) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("student: read %s: %w", path, err)
	}
	var w Weights
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("student: parse %s: %w", path, err)
	}
	if len(w.Weights) != len(w.FeatureOrder) {
		return fmt.Errorf("student: %s: %d weights but %d feature names", path, len(w.Weights), len(w.FeatureOrder))
	}

	byName := make(map[string]float64, len(w.FeatureOrder))
	for i, name := range w.FeatureOrder {
		byName[name] = w.Weights[i]
	}

	byIndex := make([]float64, len(models.FeatureOrder))
	for i, name := range models.FeatureOrder {
		byIndex[i] = byName[name] // zero value if absent, by design
	}

	m.current.Store(&compiled{intercept: w.Intercept, byIndex: byIndex})
	return nil
}

// Predict returns the probability of the positive (threat) class.
func (m *Model) Predict(fv models.FeatureVector) float64 {
	c := m.current.Load()
	z := c.intercept
	for i, w := range c.byIndex {
		z += w * fv.Values[i]
	}
	return sigmoid(z)
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
