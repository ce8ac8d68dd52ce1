package logging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/threatscore/pkg/models"
)

// DecisionSink is the write-only decision/reward log: one row per score,
// one row per feedback call. Adapted from the teacher's PostgresStore —
// same pgxpool connection-and-exec shape, new table shapes entirely.
type DecisionSink struct {
	pool *pgxpool.Pool
}

// ConnectSink opens a pgx pool against connStr and verifies connectivity.
func ConnectSink(ctx context.Context, connStr string) (*DecisionSink, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("logging: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("logging: ping: %w", err)
	}
	return &DecisionSink{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *DecisionSink) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema creates the decisions/rewards tables if they do not exist.
func (s *DecisionSink) InitSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	decision_id       TEXT PRIMARY KEY,
	domain            TEXT NOT NULL,
	url               TEXT,
	action            TEXT NOT NULL,
	probability       DOUBLE PRECISION NOT NULL,
	reasons           TEXT[] NOT NULL,
	features_json     JSONB NOT NULL,
	hard_intel_match  TEXT,
	student_score     DOUBLE PRECISION,
	linucb_score      TEXT,
	arm               TEXT,
	cache_hit         BOOLEAN NOT NULL,
	decided_at        TIMESTAMPTZ NOT NULL
);

-- no FK to decisions: audit-only feedback against an unknown or expired
-- decision_id is a valid row, not an error.
CREATE TABLE IF NOT EXISTS rewards (
	decision_id      TEXT NOT NULL,
	reward           DOUBLE PRECISION NOT NULL,
	actual_threat    BOOLEAN NOT NULL,
	feedback_source  TEXT,
	context_json     JSONB,
	received_at      TIMESTAMPTZ NOT NULL
);
`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("logging: init schema: %w", err)
	}
	return nil
}

// LogDecision persists one scoring outcome. Call sites treat any error
// here as a BackgroundSink failure: log it and move on, never fail the
// HTTP response that already went out.
func (s *DecisionSink) LogDecision(ctx context.Context, d models.Decision) error {
	featuresJSON, err := json.Marshal(featureMap(d.Features))
	if err != nil {
		return fmt.Errorf("logging: marshal features: %w", err)
	}

	var hardIntelMatch *string
	if d.HardIntelSource != "" {
		hardIntelMatch = &d.HardIntelSource
	}
	var studentScore *float64
	if d.HardIntelSource == "" {
		studentScore = &d.Probability
	}
	var linucbScore *string
	if d.Arm != "" {
		linucbScore = &d.Arm
	}

	const sql = `
		INSERT INTO decisions (decision_id, domain, url, action, probability, reasons, features_json, hard_intel_match, student_score, linucb_score, arm, cache_hit, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (decision_id) DO NOTHING;
	`
	_, err = s.pool.Exec(ctx, sql, d.DecisionID, d.Domain, d.URL, string(d.Action), d.Probability, d.Reasons,
		featuresJSON, hardIntelMatch, studentScore, linucbScore, d.Arm, d.CacheHit, d.Timestamp)
	if err != nil {
		return fmt.Errorf("logging: insert decision: %w", err)
	}
	return nil
}

// featureMap renders a FeatureVector as the name-keyed map the decision
// log's features_json column expects.
func featureMap(fv models.FeatureVector) map[string]float64 {
	m := make(map[string]float64, len(models.FeatureOrder))
	for i, name := range models.FeatureOrder {
		m[name] = fv.Values[i]
	}
	return m
}

// LogReward persists one feedback call for a decision_id, which need not
// match a row in decisions, including the audit fields recorded even when
// the bandit itself was never updated.
func (s *DecisionSink) LogReward(ctx context.Context, r models.RewardRecord) error {
	contextJSON, err := json.Marshal(r.Context)
	if err != nil {
		return fmt.Errorf("logging: marshal context: %w", err)
	}
	const sql = `
		INSERT INTO rewards (decision_id, reward, actual_threat, feedback_source, context_json, received_at)
		VALUES ($1, $2, $3, $4, $5, now());
	`
	_, err = s.pool.Exec(ctx, sql, r.DecisionID, r.Reward, r.ActualThreat, r.FeedbackSource, contextJSON)
	if err != nil {
		return fmt.Errorf("logging: insert reward: %w", err)
	}
	return nil
}
