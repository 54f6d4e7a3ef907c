package update

import (
	"math/rand/v2"
	"time"

	"github.com/danielpatrickdp/adaptive-tutor/internal/learner"
	"github.com/danielpatrickdp/adaptive-tutor/internal/policy"
	"github.com/danielpatrickdp/adaptive-tutor/internal/signals"
)

// #region event
// Event is one evaluated test outcome reported by the caller.
type Event struct {
	LearnerID        string        `json:"learner_id,omitempty"`
	ConceptID        string        `json:"concept_id"`
	Score            float64       `json:"score"`
	MisconceptionIDs []string      `json:"misconception_ids,omitempty"`
	Confidence       float64       `json:"self_reported_confidence"`
	Engagement       signals.State `json:"engagement,omitempty"`
	Strategy         string        `json:"strategy_used"`
	Difficulty       int           `json:"difficulty_used"`
	AnswerChars      int           `json:"answer_chars,omitempty"`

	// EngagementProfile and SchedulerProfile are the profile indices chosen
	// for this session, when the caller used the profile bandits.
	EngagementProfile *int `json:"engagement_profile,omitempty"`
	SchedulerProfile  *int `json:"scheduler_profile,omitempty"`

	At time.Time `json:"at"`
}

// #endregion event

// #region update-context
// UpdateContext carries everything besides the event that the update reads.
type UpdateContext struct {
	Snapshot *learner.Snapshot
	Session  policy.EngagementContext
	Reviews  policy.SchedulerContext
	Rng      *rand.Rand
}

// #endregion update-context

// #region outcome
// Outcome is the tier an event falls into.
type Outcome string

const (
	OutcomeMastered Outcome = "mastered"
	OutcomeRetest   Outcome = "retest"
	OutcomeReteach  Outcome = "reteach"
)

// #endregion outcome

// #region decision
// Decision records what the update function decided.
type Decision struct {
	Action string // "commit" | "no_op"
	Reason string
}

// #endregion decision

// #region metrics
// Metrics captures telemetry from an update cycle.
type Metrics struct {
	Reward          float64
	Threshold       float64
	RetestThreshold float64
	ContextKey      string
	StateKey        string
	TablesHit       []string
	UpdateTimeMs    int64
}

// #endregion metrics

// #region reward-config
// RewardConfig holds the reward shaping constants.
type RewardConfig struct {
	Mastery       float64 // flat bonus when the mastery threshold is reached
	PassMult      float64 // multiplier on score for passing tiers
	Fail          float64 // base reward for the reteach tier
	Misconception float64 // per misconception on reteach
	Resolved      float64 // per resolved misconception on mastery
	Step          float64 // step penalty for the retest tier
}

// DefaultRewardConfig returns the standard reward shaping.
func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		Mastery:       10.0,
		PassMult:      5.0,
		Fail:          -1.0,
		Misconception: -2.0,
		Resolved:      3.0,
		Step:          -0.5,
	}
}

// #endregion reward-config

// #region update-result
// UpdateResult bundles everything returned by Update().
type UpdateResult struct {
	Policy   *policy.State
	Outcome  Outcome
	Decision Decision
	Metrics  Metrics
}

// #endregion update-result
