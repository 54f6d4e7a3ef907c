package logging

import (
	"time"

	"github.com/danielpatrickdp/adaptive-tutor/internal/update"
)

// Decision values written to decision_log.decision.
const (
	DecisionCommit = "commit"
	DecisionReject = "reject"
	DecisionNoOp   = "no_op"
)

// #region decision-entry
// DecisionEntry is a single row in the decision_log table.
type DecisionEntry struct {
	ID        int64
	LearnerID string
	VersionID string // version committed by this decision, empty otherwise
	ConceptID string
	EventJSON string
	Decision  string // "commit" | "reject" | "no_op"
	Outcome   string
	Reward    float64
	Reason    string
	CreatedAt time.Time
}
// #endregion decision-entry

// #region decision-record
// DecisionRecord captures everything that fed one outcome decision.
// Serialized as JSON into decision_log.event_json for offline replay.
type DecisionRecord struct {
	Event update.Event `json:"event"`
	// Raw values of fields JSON cannot carry (NaN, ±Inf)
	RawScore      string `json:"raw_score,omitempty"`
	RawConfidence string `json:"raw_confidence,omitempty"`

	// Gate output
	GateAction    string   `json:"gate_action"`
	GateVetoed    bool     `json:"gate_vetoed"`
	GateReason    string   `json:"gate_reason"`
	GateSoftScore float64  `json:"gate_soft_score"`
	VetoTypes     []string `json:"veto_types,omitempty"`

	Outcome    string  `json:"outcome,omitempty"`
	Reward     float64 `json:"reward"`
	EvalPassed bool    `json:"eval_passed"`
	EvalReason string  `json:"eval_reason,omitempty"`
	RolledBack bool    `json:"rolled_back"`
}
// #endregion decision-record

// #region strategy-outcome
// StrategyOutcome is one row of strategy_outcomes: how a teaching strategy
// fared on one test of one concept.
type StrategyOutcome struct {
	LearnerID string
	ConceptID string
	Strategy  string
	Score     float64
	Outcome   string
	Accepted  bool
	CreatedAt time.Time
}
// #endregion strategy-outcome
