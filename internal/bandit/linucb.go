// Package bandit implements a contextual multi-armed bandit (LinUCB) used
// to pick an action when the student model's probability falls in the
// uncertain band. Matrix algebra is done with gonum/mat the way the
// original engine used nalgebra — this package is the direct Go
// translation of that design, not an adaptation of anything in the
// teacher's Bitcoin-forensics code (the teacher has no analog).
package bandit

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/rawblock/threatscore/pkg/models"
)

// Config carries the bandit's hyperparameters.
type Config struct {
	Alpha      float64  // exploration coefficient
	Dimensions int      // context vector length
	Arms       []string // arm labels, index-addressed
}

type armState struct {
	mu sync.RWMutex
	a  *mat.Dense // d x d
	b  *mat.VecDense
}

// Bandit is a LinUCB contextual bandit with one independent arm per
// configured action.
type Bandit struct {
	cfg  Config
	arms []*armState
}

// New constructs a Bandit with every arm initialized to A=I, b=0.
func New(cfg Config) *Bandit {
	b := &Bandit{cfg: cfg}
	b.arms = make([]*armState, len(cfg.Arms))
	for i := range b.arms {
		b.arms[i] = freshArm(cfg.Dimensions)
	}
	return b
}

func freshArm(d int) *armState {
	a := mat.NewDense(d, d, nil)
	for i := 0; i < d; i++ {
		a.Set(i, i, 1.0)
	}
	return &armState{a: a, b: mat.NewVecDense(d, nil)}
}

// Select returns the arm index with the highest upper-confidence bound,
// using the same rank-one-update state selection as feedback Update but
// read-only. Ties are broken by the lowest arm index, so selection is
// deterministic for identical context vectors.
func (b *Bandit) Select(context []float64) (armIndex int, err error) {
	if len(context) != b.cfg.Dimensions {
		return 0, fmt.Errorf("bandit: context has %d dims, want %d", len(context), b.cfg.Dimensions)
	}
	x := mat.NewVecDense(b.cfg.Dimensions, context)

	bestScore := math.Inf(-1)
	bestArm := 0
	for i, arm := range b.arms {
		score, err := arm.score(x, b.cfg.Alpha)
		if err != nil {
			return 0, fmt.Errorf("bandit: arm %d: %w", i, err)
		}
		if score > bestScore {
			bestScore = score
			bestArm = i
		}
	}
	return bestArm, nil
}

func (s *armState) score(x *mat.VecDense, alpha float64) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var aInv mat.Dense
	if err := aInv.Inverse(s.a); err != nil {
		return 0, err
	}

	var theta mat.VecDense
	theta.MulVec(&aInv, s.b)
	mu := mat.Dot(&theta, x)

	var aInvX mat.VecDense
	aInvX.MulVec(&aInv, x)
	xAx := mat.Dot(x, &aInvX)
	if xAx < 0 {
		xAx = 0 // guard against floating-point noise producing a negative variance
	}
	sigma := alpha * math.Sqrt(xAx)

	return mu + sigma, nil
}

// Update applies the rank-one LinUCB update for arm using context x and
// observed reward. On numerical singularity it retries once with a small
// regularization term added to A; if that also fails, the arm's state is
// left unchanged and the caller is expected to log the failure — a single
// failed update must never corrupt the bandit's persisted state.
func (b *Bandit) Update(arm int, context []float64, reward float64) error {
	if arm < 0 || arm >= len(b.arms) {
		return fmt.Errorf("bandit: arm index %d out of range", arm)
	}
	if len(context) != b.cfg.Dimensions {
		return fmt.Errorf("bandit: context has %d dims, want %d", len(context), b.cfg.Dimensions)
	}
	x := mat.NewVecDense(b.cfg.Dimensions, context)
	return b.arms[arm].update(x, reward)
}

func (s *armState) update(x *mat.VecDense, reward float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, _ := x.Dims()
	var outer mat.Dense
	outer.Outer(1, x, x)

	var candidate mat.Dense
	candidate.Add(s.a, &outer)

	// Verify the candidate stays invertible before committing; a singular
	// A here means this update would make every future Select on this arm
	// fail, so we regularize once rather than accept it.
	var probe mat.Dense
	if err := probe.Inverse(&candidate); err != nil {
		reg := mat.NewDense(d, d, nil)
		for i := 0; i < d; i++ {
			reg.Set(i, i, 1e-6)
		}
		var regularized mat.Dense
		regularized.Add(&candidate, reg)
		if err := probe.Inverse(&regularized); err != nil {
			return fmt.Errorf("bandit: singular update, state unchanged: %w", err)
		}
		candidate = regularized
	}

	s.a = &candidate

	var rx mat.VecDense
	rx.ScaleVec(reward, x)
	var newB mat.VecDense
	newB.AddVec(s.b, &rx)
	s.b = &newB
	return nil
}

// Snapshot returns the persisted form of the bandit's current state.
func (b *Bandit) Snapshot() models.BanditState {
	state := models.BanditState{Dimensions: b.cfg.Dimensions, Arms: make([]models.BanditArmState, len(b.arms))}
	for i, arm := range b.arms {
		arm.mu.RLock()
		d, _ := arm.a.Dims()
		rows := make([][]float64, d)
		for r := 0; r < d; r++ {
			row := make([]float64, d)
			for c := 0; c < d; c++ {
				row[c] = arm.a.At(r, c)
			}
			rows[r] = row
		}
		bvec := make([]float64, d)
		for r := 0; r < d; r++ {
			bvec[r] = arm.b.AtVec(r)
		}
		arm.mu.RUnlock()
		state.Arms[i] = models.BanditArmState{A: rows, B: bvec}
	}
	return state
}

// Restore loads a persisted BanditState. If its dimensions or arm count
// don't match the running configuration, every arm is reinitialized to
// A=I, b=0 instead — a stale or incompatible blob must never be applied
// partially.
func (b *Bandit) Restore(state models.BanditState) {
	if state.Dimensions != b.cfg.Dimensions || len(state.Arms) != len(b.arms) {
		for i := range b.arms {
			b.arms[i] = freshArm(b.cfg.Dimensions)
		}
		return
	}
	for i, armState := range state.Arms {
		d := b.cfg.Dimensions
		a := mat.NewDense(d, d, nil)
		for r := 0; r < d; r++ {
			for c := 0; c < d; c++ {
				a.Set(r, c, armState.A[r][c])
			}
		}
		bv := mat.NewVecDense(d, armState.B)
		b.arms[i].mu.Lock()
		b.arms[i].a = a
		b.arms[i].b = bv
		b.arms[i].mu.Unlock()
	}
}

// ArmName returns the configured label for an arm index.
func (b *Bandit) ArmName(arm int) string {
	if arm < 0 || arm >= len(b.cfg.Arms) {
		return ""
	}
	return b.cfg.Arms[arm]
}
