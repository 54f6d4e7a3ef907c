package learner

import "time"

// #region status

// Status is the lifecycle position of one concept for one learner.
type Status string

const (
	StatusUnknown    Status = "unknown"
	StatusIntroduced Status = "introduced"
	StatusPracticing Status = "practicing"
	StatusTesting    Status = "testing"
	StatusMastered   Status = "mastered"
	StatusDecayed    Status = "decayed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUnknown, StatusIntroduced, StatusPracticing, StatusTesting, StatusMastered, StatusDecayed:
		return true
	}
	return false
}

// #endregion status

// #region test-result

// TestResult is one evaluated transfer test.
type TestResult struct {
	Score          float64   `json:"score"`
	Timestamp      time.Time `json:"timestamp"`
	Context        string    `json:"context,omitempty"`
	DifficultyTier int       `json:"difficulty_tier,omitempty"`
	Misconceptions []string  `json:"misconceptions,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
}

// #endregion test-result

// #region concept-mastery

// ConceptMastery is the learner-owned record for a single concept.
// The policy core only reads it.
type ConceptMastery struct {
	ConceptID              string             `json:"concept_id"`
	Status                 Status             `json:"status"`
	MasteryScore           float64            `json:"mastery_score"`
	CalibrationGap         float64            `json:"calibration_gap"`
	MisconceptionsActive   []string           `json:"misconceptions_active,omitempty"`
	MisconceptionsResolved []string           `json:"misconceptions_resolved,omitempty"`
	TestResults            []TestResult       `json:"test_results,omitempty"`
	StrategyScores         map[string]float64 `json:"strategy_scores,omitempty"`
	LastValidated          *time.Time         `json:"last_validated,omitempty"`
}

// #endregion concept-mastery

// #region snapshot

// Snapshot is everything the core needs to know about a learner for one decision.
type Snapshot struct {
	LearnerID        string                     `json:"learner_id"`
	Concepts         map[string]*ConceptMastery `json:"concepts"`
	OverallVelocity  float64                    `json:"overall_velocity"`
	DomainVelocities map[string]float64         `json:"domain_velocities,omitempty"`
	// CareerTargets holds one required-concept set per career goal.
	CareerTargets  [][]string `json:"career_targets,omitempty"`
	PolicyBlob     []byte     `json:"-"`
	ReviewBlob     []byte     `json:"-"`
	SessionMinutes float64    `json:"session_minutes,omitempty"`
	FailStreak     int        `json:"fail_streak,omitempty"`
}

// #endregion snapshot
