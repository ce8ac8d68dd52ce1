package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/threatscore/pkg/models"
)

type fakeIntel struct {
	matches map[string]models.IntelMatch
}

func (f fakeIntel) Lookup(domain string) (models.IntelMatch, bool) {
	m, ok := f.matches[domain]
	return m, ok
}

type fakeFeaturizer struct {
	fixed map[string]models.FeatureVector
}

func (f fakeFeaturizer) Extract(domain, url string) (models.FeatureVector, bool) {
	if fv, ok := f.fixed[domain]; ok {
		return fv, false
	}
	return models.FeatureVector{Domain: domain}, false
}

type fakeStudent struct {
	fixed map[string]float64
}

func (f fakeStudent) Predict(fv models.FeatureVector) float64 {
	if p, ok := f.fixed[fv.Domain]; ok {
		return p
	}
	return 0.0
}

type fakeBandit struct {
	selectArm int
	updates   []struct {
		arm    int
		reward float64
	}
}

func (f *fakeBandit) Select(context []float64) (int, error) { return f.selectArm, nil }
func (f *fakeBandit) Update(arm int, context []float64, reward float64) error {
	f.updates = append(f.updates, struct {
		arm    int
		reward float64
	}{arm, reward})
	return nil
}
func (f *fakeBandit) ArmName(arm int) string {
	return []string{"ALLOW", "WARN", "BLOCK"}[arm]
}

func baseConfig() (Config, *fakeBandit) {
	b := &fakeBandit{selectArm: 1}
	cfg := Config{
		Intel: fakeIntel{matches: map[string]models.IntelMatch{
			"evil.example": {Source: "abuse.ch", Category: models.CategoryMalware, Confidence: 0.95},
		}},
		Features: fakeFeaturizer{fixed: map[string]models.FeatureVector{}},
		Student: fakeStudent{fixed: map[string]float64{
			"allow.example":     0.1,
			"block.example":     0.9,
			"uncertain.example": 0.5,
		}},
		Bandit:                b,
		Thresholds:            Thresholds{Allow: 0.3, Block: 0.8},
		DecisionCacheCapacity: 100,
		DecisionCacheTTL:      time.Minute,
		PendingContextTTL:     time.Minute,
	}
	return cfg, b
}

func TestScoreHardIntelBlocksImmediately(t *testing.T) {
	cfg, _ := baseConfig()
	e := New(cfg)
	d, err := e.Score(context.Background(), "evil.example", "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if d.Action != models.ActionBlock {
		t.Errorf("expected BLOCK, got %s", d.Action)
	}
	if d.Probability != 1.0 {
		t.Errorf("expected probability 1.0 on a hard-intel match, got %v", d.Probability)
	}
	if d.HardIntelSource != "abuse.ch" {
		t.Errorf("expected hard_intel_source abuse.ch, got %q", d.HardIntelSource)
	}
}

func TestScoreAllowBelowThreshold(t *testing.T) {
	cfg, _ := baseConfig()
	e := New(cfg)
	d, err := e.Score(context.Background(), "allow.example", "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if d.Action != models.ActionAllow {
		t.Errorf("expected ALLOW, got %s", d.Action)
	}
}

func TestScoreBlockAboveThreshold(t *testing.T) {
	cfg, _ := baseConfig()
	e := New(cfg)
	d, err := e.Score(context.Background(), "block.example", "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if d.Action != models.ActionBlock {
		t.Errorf("expected BLOCK, got %s", d.Action)
	}
}

func TestScoreUncertainConsultsBandit(t *testing.T) {
	cfg, b := baseConfig()
	b.selectArm = 1 // WARN
	e := New(cfg)
	d, err := e.Score(context.Background(), "uncertain.example", "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if d.Action != models.ActionWarn {
		t.Errorf("expected WARN from bandit arm 1, got %s", d.Action)
	}
	if d.Arm != "linucb:WARN" {
		t.Errorf("expected arm tag linucb:WARN, got %s", d.Arm)
	}
}

func TestScoreEmptyDomainInvalid(t *testing.T) {
	cfg, _ := baseConfig()
	e := New(cfg)
	_, err := e.Score(context.Background(), "", "")
	if err == nil {
		t.Fatalf("expected error for empty domain")
	}
	var engErr *Error
	if !asEngineError(err, &engErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if engErr.Kind != KindInvalidInput {
		t.Errorf("expected KindInvalidInput, got %v", engErr.Kind)
	}
}

func TestScoreDomainTooLongInvalid(t *testing.T) {
	cfg, _ := baseConfig()
	e := New(cfg)
	label := make([]byte, 250)
	for i := range label {
		label[i] = 'a'
	}
	longDomain := string(label) + ".example" // > 253 chars total
	_, err := e.Score(context.Background(), longDomain, "")
	if err == nil {
		t.Fatalf("expected error for a domain over 253 characters")
	}
	var engErr *Error
	if !asEngineError(err, &engErr) || engErr.Kind != KindInvalidInput {
		t.Errorf("expected KindInvalidInput, got %v", err)
	}
}

func TestScoreUnpunycodableDomainInvalid(t *testing.T) {
	cfg, _ := baseConfig()
	e := New(cfg)
	_, err := e.Score(context.Background(), "a_b.example", "")
	if err == nil {
		t.Fatalf("expected error for a domain that fails punycode/STD3 validation")
	}
	var engErr *Error
	if !asEngineError(err, &engErr) || engErr.Kind != KindInvalidInput {
		t.Errorf("expected KindInvalidInput, got %v", err)
	}
}

func asEngineError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}

func TestScoreCacheHitIsPure(t *testing.T) {
	cfg, b := baseConfig()
	e := New(cfg)
	d1, _ := e.Score(context.Background(), "uncertain.example", "")
	pendingBefore := len(e.pending.entries)

	d2, err := e.Score(context.Background(), "uncertain.example", "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if d2.DecisionID != d1.DecisionID {
		t.Errorf("expected identical decision id on cache hit, got %s vs %s", d1.DecisionID, d2.DecisionID)
	}
	if !d2.CacheHit {
		t.Errorf("expected CacheHit flag set on second call")
	}
	if len(b.updates) != 0 {
		t.Errorf("cache hit must never touch the bandit")
	}
	if len(e.pending.entries) != pendingBefore {
		t.Errorf("cache hit must not create a second PendingContext entry")
	}
}

func TestFeedbackAppliesStoredContextAndIsOneShot(t *testing.T) {
	cfg, b := baseConfig()
	e := New(cfg)
	d, err := e.Score(context.Background(), "uncertain.example", "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	applied, err := e.Feedback(context.Background(), FeedbackInput{DecisionID: d.DecisionID, Reward: 1.0})
	if err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if !applied {
		t.Errorf("expected feedback to apply against a pending decision")
	}
	if len(b.updates) != 1 {
		t.Fatalf("expected exactly one bandit update, got %d", len(b.updates))
	}
	if b.updates[0].arm != 1 || b.updates[0].reward != 1.0 {
		t.Errorf("unexpected update: %+v", b.updates[0])
	}

	// Second feedback for the same decision must not re-apply: the
	// context was already consumed, though the call itself still
	// succeeds as an audit-only record.
	applied, err = e.Feedback(context.Background(), FeedbackInput{DecisionID: d.DecisionID, Reward: 1.0})
	if err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if applied {
		t.Errorf("expected replayed feedback to be audit-only, not re-applied")
	}
	if len(b.updates) != 1 {
		t.Errorf("expected bandit update count to stay at 1, got %d", len(b.updates))
	}
}

func TestFeedbackUnknownDecisionIDIsAuditOnly(t *testing.T) {
	cfg, b := baseConfig()
	e := New(cfg)
	applied, err := e.Feedback(context.Background(), FeedbackInput{DecisionID: "nonexistent", Reward: 1.0})
	if err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if applied {
		t.Errorf("expected unknown decision_id feedback to be audit-only")
	}
	if len(b.updates) != 0 {
		t.Errorf("expected no bandit update for an unknown decision_id")
	}
}

func TestReasonComposition(t *testing.T) {
	cfg, _ := baseConfig()
	fv := models.FeatureVector{Domain: "typosquat.example"}
	fv.Values[8] = 0.95 // typosquat_score index per models.FeatureOrder
	cfg.Features = fakeFeaturizer{fixed: map[string]models.FeatureVector{"typosquat.example": fv}}
	cfg.Student = fakeStudent{fixed: map[string]float64{"typosquat.example": 0.5}}
	e := New(cfg)

	d, err := e.Score(context.Background(), "typosquat.example", "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	found := false
	for _, r := range d.Reasons {
		if r == "Typosquatting suspected" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected typosquat reason in %v", d.Reasons)
	}
}

func TestReasonFallbackAggregateRisk(t *testing.T) {
	cfg, _ := baseConfig()
	cfg.Student = fakeStudent{fixed: map[string]float64{"block.example": 0.8}}
	e := New(cfg)
	d, err := e.Score(context.Background(), "block.example", "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(d.Reasons) != 1 || d.Reasons[0] != "aggregate risk score exceeded threshold" {
		t.Errorf("expected fallback aggregate_risk reason, got %v", d.Reasons)
	}
}

func TestReasonHighMLThreatScore(t *testing.T) {
	cfg, _ := baseConfig()
	e := New(cfg)
	d, err := e.Score(context.Background(), "block.example", "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	found := false
	for _, r := range d.Reasons {
		if r == "High ML threat score" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected High ML threat score reason for p=0.9 in %v", d.Reasons)
	}
}

type fakeLogger struct {
	decisions []models.Decision
	rewards   []models.RewardRecord
}

func (f *fakeLogger) LogDecision(ctx context.Context, d models.Decision) error {
	f.decisions = append(f.decisions, d)
	return nil
}

func (f *fakeLogger) LogReward(ctx context.Context, r models.RewardRecord) error {
	f.rewards = append(f.rewards, r)
	return nil
}

func TestFeedbackUnknownDecisionIDStillWritesAuditRow(t *testing.T) {
	cfg, _ := baseConfig()
	logger := &fakeLogger{}
	cfg.Logger = logger
	e := New(cfg)

	applied, err := e.Feedback(context.Background(), FeedbackInput{DecisionID: "nonexistent", Reward: -1.0, ActualThreat: true})
	if err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if applied {
		t.Errorf("expected unknown decision_id feedback to be audit-only")
	}

	// Background logging is fired in a goroutine; give it a moment.
	deadline := time.Now().Add(time.Second)
	for len(logger.rewards) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(logger.rewards) != 1 {
		t.Fatalf("expected an audit reward row even without a pending context, got %d", len(logger.rewards))
	}
	if logger.rewards[0].DecisionID != "nonexistent" || !logger.rewards[0].ActualThreat {
		t.Errorf("unexpected audit row: %+v", logger.rewards[0])
	}
}
