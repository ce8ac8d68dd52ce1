// Package engine implements the ScoreEngine: the orchestrator that wires
// the hard-intel gate, featurizer, student model, and bandit into the
// score/feedback cascade. This is the Go counterpart of the reference
// engine's ThreatEngine, rebuilt with a real PendingContext store instead
// of the stubbed feedback path the original shipped with.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/idna"

	"github.com/rawblock/threatscore/internal/cache"
	"github.com/rawblock/threatscore/internal/logging"
	"github.com/rawblock/threatscore/pkg/models"
)

// maxDomainLength is the §4.6 step-1 boundary: domains longer than this
// are rejected before any lookup or extraction runs.
const maxDomainLength = 253

// IntelStore is the hard-intelligence gate dependency.
type IntelStore interface {
	Lookup(domain string) (models.IntelMatch, bool)
}

// Featurizer extracts context vectors.
type Featurizer interface {
	Extract(domain, url string) (models.FeatureVector, bool)
}

// StudentModel scores a context vector.
type StudentModel interface {
	Predict(fv models.FeatureVector) float64
}

// Bandit selects and updates LinUCB arms.
type Bandit interface {
	Select(context []float64) (int, error)
	Update(arm int, context []float64, reward float64) error
	ArmName(arm int) string
}

// DecisionLogger persists decisions and rewards for analytics.
type DecisionLogger interface {
	LogDecision(ctx context.Context, d models.Decision) error
	LogReward(ctx context.Context, r models.RewardRecord) error
}

// TaskQueue enqueues uncertain and non-ALLOW decisions for deep offline
// analysis.
type TaskQueue interface {
	Enqueue(ctx context.Context, task models.QueueTask) error
}

// Telemetry receives the engine's operational signal.
type Telemetry interface {
	RecordAction(action string)
	RecordCacheHit()
	RecordCacheMiss()
	ObserveLatency(d time.Duration)
}

// BanditPersister periodically flushes the bandit's state. Saved in the
// background after every feedback call that updated the bandit, never on
// the hot score path.
type BanditPersister interface {
	Save(ctx context.Context) error
}

// Thresholds carries the allow/block probability boundaries.
type Thresholds struct {
	Allow float64
	Block float64
}

// Config wires every dependency the engine needs.
type Config struct {
	Intel      IntelStore
	Features   Featurizer
	Student    StudentModel
	Bandit     Bandit
	Logger     DecisionLogger
	Queue      TaskQueue
	Telemetry  Telemetry
	Persister  BanditPersister
	Thresholds Thresholds

	DecisionCacheCapacity int
	DecisionCacheTTL      time.Duration
	PendingContextTTL     time.Duration

	Log *logging.Logger
}

// reasonRule maps one feature predicate to its prose tag, in the fixed
// order the rules are evaluated.
type reasonRule struct {
	feature string
	test    func(v float64) bool
	reason  string
}

var reasonRules = []reasonRule{
	{"homoglyph_score", func(v float64) bool { return v > 0.5 }, "IDN homoglyph detected"},
	{"typosquat_score", func(v float64) bool { return v > 0.6 }, "Typosquatting suspected"},
	{"dga_score", func(v float64) bool { return v > 0.7 }, "DGA-generated domain"},
	{"entropy", func(v float64) bool { return v > 4.5 }, "High entropy domain"},
	{"dynamic_dns", func(v float64) bool { return v > 0.5 }, "Dynamic DNS provider"},
	{"parked_domain", func(v float64) bool { return v > 0.5 }, "Parked domain detected"},
	{"cryptojacking_hit", func(v float64) bool { return v > 0.5 }, "Cryptojacking indicators"},
}

// studentScoreReasonThreshold is the §4.6 reason-composition threshold for
// the student model's own probability, evaluated separately from
// reasonRules since it is not a feature-vector entry.
const studentScoreReasonThreshold = 0.8

// ScoreEngine orchestrates the full score/feedback cascade.
type ScoreEngine struct {
	cfg      Config
	cache    *cache.Cache[string, models.Decision]
	pending  *pendingStore
	feedback *feedbackLocks
}

// New builds a ScoreEngine from cfg.
func New(cfg Config) *ScoreEngine {
	return &ScoreEngine{
		cfg:      cfg,
		cache:    cache.New[string, models.Decision](cfg.DecisionCacheCapacity, cfg.DecisionCacheTTL),
		pending:  newPendingStore(cfg.PendingContextTTL),
		feedback: newFeedbackLocks(64),
	}
}

func cacheKey(domain, url string) string { return domain + "|" + url }

// Score runs the cascade for one request and returns the decision.
func (e *ScoreEngine) Score(ctx context.Context, domain, url string) (models.Decision, error) {
	start := time.Now()
	norm, err := normalizeDomain(domain)
	if err != nil {
		return models.Decision{}, newError(KindInvalidInput, err)
	}

	key := cacheKey(norm, url)
	if cached, ok := e.cache.Get(key); ok {
		if e.cfg.Telemetry != nil {
			e.cfg.Telemetry.RecordCacheHit()
			e.cfg.Telemetry.RecordAction(string(cached.Action))
		}
		cached.CacheHit = true
		return cached, nil
	}
	if e.cfg.Telemetry != nil {
		e.cfg.Telemetry.RecordCacheMiss()
	}

	decisionID := uuid.New().String()
	now := time.Now()

	// Hard-intel gate: a match is an immediate, final BLOCK. It never
	// consults the bandit and never records a PendingContext — a
	// hard-intel verdict carries no ambiguity for the bandit to learn
	// from.
	if e.cfg.Intel != nil {
		if match, hit := e.cfg.Intel.Lookup(norm); hit {
			d := models.Decision{
				DecisionID:      decisionID,
				Domain:          norm,
				URL:             url,
				Action:          models.ActionBlock,
				Probability:     1.0,
				Reasons:         []string{match.Source},
				HardIntelSource: match.Source,
				Timestamp:       now,
			}
			d.LatencyMs = latencyMs(start)
			e.finish(ctx, d, key, start, true)
			return d, nil
		}
	}

	fv, _ := e.cfg.Features.Extract(norm, url)
	p := e.cfg.Student.Predict(fv)

	var action models.Action
	var arm string
	uncertain := p > e.cfg.Thresholds.Allow && p < e.cfg.Thresholds.Block
	switch {
	case p <= e.cfg.Thresholds.Allow:
		action = models.ActionAllow
	case p >= e.cfg.Thresholds.Block:
		action = models.ActionBlock
	default:
		contextVec := fv.Values[:]
		armIdx, err := e.cfg.Bandit.Select(contextVec)
		if err != nil {
			return models.Decision{}, newError(KindInternal, fmt.Errorf("engine: bandit select: %w", err))
		}
		armName := e.cfg.Bandit.ArmName(armIdx)
		action = models.Action(armName)
		arm = fmt.Sprintf("linucb:%s", armName)

		ctxCopy := make([]float64, len(contextVec))
		copy(ctxCopy, contextVec)
		e.pending.put(decisionID, models.PendingContext{Arm: armIdx, Context: ctxCopy, StoredAt: now})
	}

	reasons := composeReasons(fv, p, action)

	d := models.Decision{
		DecisionID:  decisionID,
		Domain:      norm,
		URL:         url,
		Action:      action,
		Probability: p,
		Reasons:     reasons,
		Features:    fv,
		Arm:         arm,
		Timestamp:   now,
	}
	d.LatencyMs = latencyMs(start)
	e.finish(ctx, d, key, start, action != models.ActionAllow || uncertain)
	return d, nil
}

// normalizeDomain enforces the §4.6 step-1/2 validation and normalization:
// non-empty, at most 253 characters, punycodable, and lowercased.
func normalizeDomain(domain string) (string, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return "", fmt.Errorf("engine: domain is required")
	}
	if len(domain) > maxDomainLength {
		return "", fmt.Errorf("engine: domain exceeds %d characters", maxDomainLength)
	}
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", fmt.Errorf("engine: domain is not punycodable: %w", err)
	}
	return ascii, nil
}

func latencyMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func composeReasons(fv models.FeatureVector, p float64, action models.Action) []string {
	var reasons []string
	for _, rule := range reasonRules {
		if rule.test(fv.Get(rule.feature)) {
			reasons = append(reasons, rule.reason)
		}
	}
	if p > studentScoreReasonThreshold {
		reasons = append(reasons, "High ML threat score")
	}
	if action != models.ActionAllow && len(reasons) == 0 {
		reasons = append(reasons, "aggregate risk score exceeded threshold")
	}
	return reasons
}

// finish caches the decision, records telemetry, and fires the
// background logging/enqueue work — all of which happens after the
// caller-visible result is already computed, per the engine's ordering
// guarantee that a response is never delayed by sink or queue I/O.
func (e *ScoreEngine) finish(ctx context.Context, d models.Decision, key string, start time.Time, enqueueDeep bool) {
	e.cache.Put(key, d)
	if e.cfg.Telemetry != nil {
		e.cfg.Telemetry.RecordAction(string(d.Action))
		e.cfg.Telemetry.ObserveLatency(time.Since(start))
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if e.cfg.Logger != nil {
			if err := e.cfg.Logger.LogDecision(bgCtx, d); err != nil && e.cfg.Log != nil {
				e.cfg.Log.Warn("decision log write failed", "decision_id", d.DecisionID, "error", err.Error())
			}
		}
		if enqueueDeep && e.cfg.Queue != nil {
			task := models.QueueTask{
				DecisionID: d.DecisionID,
				Domain:     d.Domain,
				URL:        d.URL,
				Features:   featureMap(d.Features),
				Timestamp:  d.Timestamp,
			}
			if err := e.cfg.Queue.Enqueue(bgCtx, task); err != nil && e.cfg.Log != nil {
				e.cfg.Log.Warn("deep-analysis enqueue failed", "decision_id", d.DecisionID, "error", err.Error())
			}
		}
	}()
}

// featureMap renders a FeatureVector as the name-keyed map the task-queue
// wire format and decision-log sink expect.
func featureMap(fv models.FeatureVector) map[string]float64 {
	m := make(map[string]float64, len(models.FeatureOrder))
	for i, name := range models.FeatureOrder {
		m[name] = fv.Values[i]
	}
	return m
}

// FeedbackInput is one POST /feedback call.
type FeedbackInput struct {
	DecisionID     string
	Reward         float64
	ActualThreat   bool
	FeedbackSource string
	Context        map[string]string
}

// Feedback applies a reward to the bandit arm chosen for in.DecisionID,
// replaying the exact context vector stored at score time. Feedback for
// the same decision_id is always serialized. When no PendingContext is
// found — the decision_id is unknown, already resolved without bandit
// involvement, or its TTL expired — the bandit update is skipped but the
// reward is still written to the audit log; the returned bool reports
// whether the bandit was actually updated.
func (e *ScoreEngine) Feedback(ctx context.Context, in FeedbackInput) (bool, error) {
	unlock := e.feedback.lock(in.DecisionID)
	defer unlock()

	applied := false
	pc, ok := e.pending.take(in.DecisionID)
	if ok {
		if err := e.cfg.Bandit.Update(pc.Arm, pc.Context, in.Reward); err != nil {
			if e.cfg.Log != nil {
				e.cfg.Log.Warn("bandit update failed, state left unchanged", "decision_id", in.DecisionID, "error", err.Error())
			}
		} else {
			applied = true
		}
	} else if e.cfg.Log != nil {
		e.cfg.Log.Warn("feedback for unknown or expired decision, recording audit row only", "decision_id", in.DecisionID)
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if e.cfg.Logger != nil {
			rec := models.RewardRecord{
				DecisionID:     in.DecisionID,
				Reward:         in.Reward,
				ActualThreat:   in.ActualThreat,
				FeedbackSource: in.FeedbackSource,
				Context:        in.Context,
			}
			if err := e.cfg.Logger.LogReward(bgCtx, rec); err != nil && e.cfg.Log != nil {
				e.cfg.Log.Warn("reward log write failed", "decision_id", in.DecisionID, "error", err.Error())
			}
		}
		if applied && e.cfg.Persister != nil {
			if err := e.cfg.Persister.Save(bgCtx); err != nil && e.cfg.Log != nil {
				e.cfg.Log.Warn("bandit state persist failed", "error", err.Error())
			}
		}
	}()

	return applied, nil
}

// SweepPending drops any PendingContext entries older than the
// configured TTL. Intended to be called periodically by the caller (see
// cmd/engine), mirroring the teacher's periodic cleanup-ticker pattern.
func (e *ScoreEngine) SweepPending() {
	e.pending.sweep()
}
