// Package policy holds the per-learner learned policy: the strategy bandit,
// the contextual difficulty/threshold/retest tables, the action Q-learner and
// the engagement and SM-2 profile bandits.
//
// Nothing in this package locks. A State belongs to one learner and callers
// serialize access per learner.
package policy

import (
	"math"
	"sort"

	"github.com/danielpatrickdp/adaptive-tutor/internal/bandit"
)

// #region state

// State is the full per-learner policy aggregate.
type State struct {
	Strategy   *StrategyBandit   `json:"strategy_bandit"`
	Difficulty *DifficultyBandit `json:"difficulty_bandit"`
	Action     *QLearner         `json:"action_q"`
	Engagement *EngagementBandit `json:"engagement_bandit"`
	Scheduler  *SchedulerBandit  `json:"scheduler_bandit"`
}

// New returns a fresh policy. Q-learning rates follow masteredCount.
func New(masteredCount int) *State {
	return &State{
		Strategy:   NewStrategyBandit(),
		Difficulty: NewDifficultyBandit(),
		Action:     NewQLearner(HyperFor(masteredCount)),
		Engagement: NewEngagementBandit(),
		Scheduler:  NewSchedulerBandit(),
	}
}

// normalize fills absent sub-tables so every accessor is safe.
func (s *State) normalize(masteredCount int) {
	if s.Strategy == nil {
		s.Strategy = NewStrategyBandit()
	}
	if s.Strategy.Arms == nil {
		s.Strategy.Arms = make(map[string]bandit.Beta)
	}
	if s.Difficulty == nil {
		s.Difficulty = NewDifficultyBandit()
	}
	if s.Difficulty.Difficulty == nil {
		s.Difficulty.Difficulty = bandit.Entries{}
	}
	if s.Difficulty.Threshold == nil {
		s.Difficulty.Threshold = bandit.Entries{}
	}
	if s.Difficulty.Retest == nil {
		s.Difficulty.Retest = bandit.Entries{}
	}
	if s.Action == nil {
		s.Action = NewQLearner(HyperFor(masteredCount))
	}
	if s.Action.Q == nil {
		s.Action.Q = make(map[string]map[string]float64)
	}
	if s.Engagement == nil {
		s.Engagement = NewEngagementBandit()
	}
	if s.Engagement.Profiles == nil {
		s.Engagement.Profiles = bandit.Entries{}
	}
	if s.Scheduler == nil {
		s.Scheduler = NewSchedulerBandit()
	}
	if s.Scheduler.Profiles == nil {
		s.Scheduler.Profiles = bandit.Entries{}
	}
}

// Clone deep-copies s.
func (s *State) Clone() *State {
	out := &State{
		Strategy:   &StrategyBandit{Arms: make(map[string]bandit.Beta, len(s.Strategy.Arms))},
		Difficulty: &DifficultyBandit{Difficulty: s.Difficulty.Difficulty.Clone(), Threshold: s.Difficulty.Threshold.Clone(), Retest: s.Difficulty.Retest.Clone(), Updates: s.Difficulty.Updates},
		Action:     &QLearner{Q: make(map[string]map[string]float64, len(s.Action.Q)), Alpha: s.Action.Alpha, Gamma: s.Action.Gamma, Epsilon: s.Action.Epsilon, Updates: s.Action.Updates},
		Engagement: &EngagementBandit{profileTable{Profiles: s.Engagement.Profiles.Clone(), Updates: s.Engagement.Updates}},
		Scheduler:  &SchedulerBandit{profileTable{Profiles: s.Scheduler.Profiles.Clone(), Updates: s.Scheduler.Updates}},
	}
	for k, v := range s.Strategy.Arms {
		out.Strategy.Arms[k] = v
	}
	for st, row := range s.Action.Q {
		cp := make(map[string]float64, len(row))
		for a, v := range row {
			cp[a] = v
		}
		out.Action.Q[st] = cp
	}
	return out
}

// #endregion state

// #region stats

// ArmStats is the read view of one strategy arm.
type ArmStats struct {
	Alpha    float64 `json:"alpha"`
	Beta     float64 `json:"beta"`
	Expected float64 `json:"expected"`
}

// TableStats is the read view of an epsilon-greedy bandit.
type TableStats struct {
	Epsilon      float64 `json:"epsilon"`
	Updates      int     `json:"total_updates"`
	ContextsSeen int     `json:"contexts_seen"`
}

// QStats is the read view of the Q-learner.
type QStats struct {
	StatesExplored int     `json:"states_explored"`
	Updates        int     `json:"total_updates"`
	Alpha          float64 `json:"alpha"`
	Gamma          float64 `json:"gamma"`
	Epsilon        float64 `json:"epsilon"`
}

// Stats summarizes a policy for inspection. Values are rounded for display.
type Stats struct {
	Strategies   map[string]ArmStats `json:"strategy_bandit"`
	BestStrategy string              `json:"best_strategy"`
	Difficulty   TableStats          `json:"difficulty_bandit"`
	Action       QStats              `json:"action_q"`
	Engagement   TableStats          `json:"engagement_bandit"`
	Scheduler    TableStats          `json:"scheduler_bandit"`
}

// Stats returns the inspection view of s.
func (s *State) Stats() Stats {
	arms := make(map[string]ArmStats, len(s.Strategy.Arms))
	for name, b := range s.Strategy.Arms {
		arms[name] = ArmStats{Alpha: b.Alpha, Beta: b.Beta, Expected: round(b.Expected(), 3)}
	}
	return Stats{
		Strategies:   arms,
		BestStrategy: s.Strategy.Best(),
		Difficulty:   TableStats{Epsilon: round(s.Difficulty.Epsilon(), 3), Updates: s.Difficulty.Updates, ContextsSeen: len(s.Difficulty.Difficulty)},
		Action: QStats{
			StatesExplored: len(s.Action.Q),
			Updates:        s.Action.Updates,
			Alpha:          s.Action.Alpha,
			Gamma:          s.Action.Gamma,
			Epsilon:        s.Action.Epsilon,
		},
		Engagement: TableStats{Epsilon: round(s.Engagement.Epsilon(), 3), Updates: s.Engagement.Updates, ContextsSeen: len(s.Engagement.Profiles)},
		Scheduler:  TableStats{Epsilon: round(s.Scheduler.Epsilon(), 3), Updates: s.Scheduler.Updates, ContextsSeen: len(s.Scheduler.Profiles)},
	}
}

// StrategyMeans returns the posterior mean of every arm, sorted by name.
func (s *State) StrategyMeans() []StrategyMean {
	out := make([]StrategyMean, 0, len(s.Strategy.Arms))
	for name, b := range s.Strategy.Arms {
		out = append(out, StrategyMean{Strategy: name, Mean: b.Expected()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out
}

// StrategyMean pairs a strategy with its posterior mean.
type StrategyMean struct {
	Strategy string  `json:"strategy"`
	Mean     float64 `json:"mean"`
}

// #endregion stats

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// finite reports whether every value is a real number.
func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
