package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/adaptive-tutor/internal/graph"
	"github.com/danielpatrickdp/adaptive-tutor/internal/learner"
	"github.com/danielpatrickdp/adaptive-tutor/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-tutor/internal/update"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string           `json:"description"`
	Seed        uint64           `json:"seed"` // 0 replays greedily with no exploration
	Start       time.Time        `json:"start"`
	Concepts    []graph.Concept  `json:"concepts"`
	Config      FixtureConfig    `json:"config"`
	Learners    []FixtureLearner `json:"learners"`
}

// FixtureLearner is one learner's starting snapshot and event stream.
type FixtureLearner struct {
	LearnerID       string                  `json:"learner_id"`
	Snapshot        learner.Snapshot        `json:"snapshot"`
	Events          []FixtureEvent          `json:"events"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureEvent is an outcome event plus replay controls. An empty concept id
// asks the core for the next concept; an empty strategy or zero difficulty
// is filled from the session's bandits.
type FixtureEvent struct {
	update.Event
	AdvanceHours float64 `json:"advance_hours,omitempty"`
}

// FixtureExpectedResult captures the expected result per event. Empty fields
// are not checked.
type FixtureExpectedResult struct {
	ConceptID string `json:"concept_id,omitempty"`
	Action    string `json:"action"`
	Outcome   string `json:"outcome,omitempty"`
}

// FixtureConfig overrides selected tunables. Zero values keep the defaults.
type FixtureConfig struct {
	MaxQMagnitude     float64 `json:"max_q_magnitude,omitempty"`
	PoorStrategyScore float64 `json:"poor_strategy_score,omitempty"`
	MasteryReward     float64 `json:"mastery_reward,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// Graph builds the fixture's concept graph.
func (f *Fixture) Graph() (*graph.Graph, error) {
	g := graph.New()
	if _, err := g.Add(f.Concepts...); err != nil {
		return nil, fmt.Errorf("fixture graph: %w", err)
	}
	return g, nil
}

// ToConfig applies the overrides to the default orchestrator config.
func (fc FixtureConfig) ToConfig() orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	if fc.MaxQMagnitude > 0 {
		cfg.Eval.MaxQMagnitude = fc.MaxQMagnitude
	}
	if fc.PoorStrategyScore > 0 {
		cfg.PoorStrategyScore = fc.PoorStrategyScore
	}
	if fc.MasteryReward > 0 {
		cfg.Reward.Mastery = fc.MasteryReward
	}
	return cfg
}

// #endregion fixture-loader
