// Package models holds the wire and persistence types shared between the
// scoring engine, its HTTP handlers, and the background components that
// read and write decision state.
package models

import "time"

// FeatureOrder is the published, fixed ordering of the context vector.
// Both the trained student-model weight file and the LinUCB bandit address
// dimensions by name against this list; it must never be reordered without
// retraining every persisted weight file.
var FeatureOrder = []string{
	"domain_length",
	"digit_count",
	"dash_count",
	"entropy",
	"vowel_ratio",
	"consonant_ratio",
	"max_consecutive_consonants",
	"homoglyph_score",
	"typosquat_score",
	"dga_score",
	"suspicious_tld",
	"dynamic_dns",
	"parked_domain",
	"cname_cloaking",
	"dns_rebinding",
	"cryptojacking_hit",
}

// FeatureDimensions is len(FeatureOrder), the fixed context-vector size.
const FeatureDimensions = 16

// FeatureVector is the output of the featurizer: a dense vector addressed
// by name via FeatureOrder, plus the raw float64 slice consumed by the
// student model and bandit.
type FeatureVector struct {
	Domain string
	Values [FeatureDimensions]float64
}

// Get returns the value for a named feature, or 0 if the name is unknown.
func (fv FeatureVector) Get(name string) float64 {
	for i, n := range FeatureOrder {
		if n == name {
			return fv.Values[i]
		}
	}
	return 0
}

// Action is the verdict an engine returns for a score request.
type Action string

const (
	ActionAllow Action = "ALLOW"
	ActionWarn  Action = "WARN"
	ActionBlock Action = "BLOCK"
)

// Decision is the full record of one scoring pass: what was asked, what
// was decided, and why. It is the payload of the /stream decision feed and
// the row shape persisted by the decision logger; POST /score responds
// with the narrower ScoreResponse.
type Decision struct {
	DecisionID      string        `json:"decision_id"`
	Domain          string        `json:"domain"`
	URL             string        `json:"url,omitempty"`
	Action          Action        `json:"action"`
	Probability     float64       `json:"probability"`
	Reasons         []string      `json:"reasons"`
	Features        FeatureVector `json:"features"`
	Arm             string        `json:"arm,omitempty"`
	HardIntelSource string        `json:"hard_intel_source,omitempty"`
	LatencyMs       float64       `json:"latency_ms"`
	CacheHit        bool          `json:"-"`
	Timestamp       time.Time     `json:"timestamp"`
}

// ScoreRequest is the POST /score request body.
type ScoreRequest struct {
	Domain  string            `json:"domain" binding:"required"`
	URL     string            `json:"url,omitempty"`
	Context map[string]string `json:"context,omitempty"`
}

// ScoreResponse is the POST /score response body.
type ScoreResponse struct {
	DecisionID  string   `json:"decision_id"`
	Action      Action   `json:"action"`
	Probability float64  `json:"probability"`
	Reasons     []string `json:"reasons"`
	LatencyMs   float64  `json:"latency_ms"`
}

// FeedbackRequest is the POST /feedback request body. Reward is a pointer
// so the literal boundary value 0 is distinguishable from "absent" under
// Gin's required-field validation, which otherwise rejects numeric zero.
type FeedbackRequest struct {
	DecisionID     string            `json:"decision_id" binding:"required"`
	Reward         *float64          `json:"reward" binding:"required"`
	ActualThreat   bool              `json:"actual_threat"`
	FeedbackSource string            `json:"feedback_source,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
}

// FeedbackResponse is the POST /feedback response body.
type FeedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// IntelCategory names the kind of threat a hard-intel source reports.
type IntelCategory string

const (
	CategoryMalware       IntelCategory = "malware"
	CategorySpam          IntelCategory = "spam"
	CategoryCryptojacking IntelCategory = "cryptojacking"
	CategoryPhishing      IntelCategory = "phishing"
)

// IntelMatch is a hard-intelligence hit against one source.
type IntelMatch struct {
	Source     string
	Category   IntelCategory
	Confidence float64
	MatchedOn  string // the domain or ancestor suffix that matched
}

// PendingContext is the stored bandit input for a decision awaiting
// feedback: the arm chosen at score time and the exact context vector
// used to choose it, so Update() can be replayed correctly when feedback
// arrives before the engine's pending-context TTL expires.
type PendingContext struct {
	Arm       int
	Context   []float64
	StoredAt  time.Time
}

// BanditArmState is the persisted (A, b) pair for one LinUCB arm.
type BanditArmState struct {
	A [][]float64 `json:"a"`
	B []float64   `json:"b"`
}

// BanditState is the full persisted bandit: one arm state per action,
// indexed the same way as the Arms slice in bandit.Config.
type BanditState struct {
	Dimensions int              `json:"dimensions"`
	Arms       []BanditArmState `json:"arms"`
}

// RewardRecord is one feedback row, including the audit fields recorded
// even when the bandit itself was never updated (no matching
// PendingContext).
type RewardRecord struct {
	DecisionID     string
	Reward         float64
	ActualThreat   bool
	FeedbackSource string
	Context        map[string]string
}

// QueueTask is the payload handed to the offline deep-analysis worker for
// a decision in the uncertain band or with a non-ALLOW action.
type QueueTask struct {
	DecisionID string             `json:"decision_id"`
	Domain     string             `json:"domain"`
	URL        string             `json:"url,omitempty"`
	Features   map[string]float64 `json:"features"`
	Timestamp  time.Time          `json:"timestamp"`
}
