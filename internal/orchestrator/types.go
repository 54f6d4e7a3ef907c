package orchestrator

// #region imports
import (
	"time"

	"github.com/danielpatrickdp/adaptive-tutor/internal/eval"
	"github.com/danielpatrickdp/adaptive-tutor/internal/gate"
	"github.com/danielpatrickdp/adaptive-tutor/internal/policy"
	"github.com/danielpatrickdp/adaptive-tutor/internal/review"
	"github.com/danielpatrickdp/adaptive-tutor/internal/signals"
	"github.com/danielpatrickdp/adaptive-tutor/internal/update"
)

// #endregion

// #region config

// Config bundles every tunable the core consults.
type Config struct {
	Reward    update.RewardConfig
	Gate      gate.GateConfig
	Eval      eval.EvalConfig
	Exclusion policy.ExclusionConfig

	// PoorStrategyScore excludes strategies that scored below it on the
	// concept being taught.
	PoorStrategyScore float64
	// DecayedLimit caps DecayedConcepts.
	DecayedLimit int
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// DefaultConfig returns the standard tunables.
func DefaultConfig() Config {
	return Config{
		Reward:            update.DefaultRewardConfig(),
		Gate:              gate.DefaultGateConfig(),
		Eval:              eval.DefaultEvalConfig(),
		Exclusion:         policy.DefaultExclusionConfig(),
		PoorStrategyScore: 0.3,
		DecayedLimit:      3,
	}
}

// #endregion

// #region outcome-result

// OutcomeResult reports what RecordOutcome did with one event.
type OutcomeResult struct {
	Accepted   bool
	Gate       gate.GateDecision
	Outcome    update.Outcome
	Reward     float64
	Eval       eval.EvalResult
	RolledBack bool

	// Review is the rescheduled item when the event touched the review queue.
	Review *review.Item
	// Reteach is set when the outcome sent the concept back to teaching.
	Reteach *ReteachPlan
	// Engagement is the session label after recording the event.
	Engagement   signals.State
	Intervention signals.Intervention
}

// #endregion

// #region reteach-plan

// ReteachPlan is the follow-up after a failed test.
type ReteachPlan struct {
	Strategy string
	Attempt  int
	// Escalate is set once the concept has been retaught maxReteaches times
	// this session; the caller should ask the learner instead of teaching again.
	Escalate bool
}

// #endregion

// #region retention

// RetentionPoint is one sample of a concept's forgetting curve.
type RetentionPoint struct {
	Day       int     `json:"day"`
	Retention float64 `json:"retention"`
}

// RetentionCurve is the retention view of one review item.
type RetentionCurve struct {
	review.RetentionInfo
	Points []RetentionPoint `json:"curve"`
}

// #endregion
