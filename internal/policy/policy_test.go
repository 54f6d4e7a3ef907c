package policy

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-tutor/internal/learner"
	"github.com/danielpatrickdp/adaptive-tutor/internal/signals"
)

func seeded(seed uint64) *rand.Rand { return rand.New(rand.NewPCG(seed, seed)) }

// #region strategy

func TestStrategyConvergence(t *testing.T) {
	for _, dominant := range Strategies {
		t.Run(dominant, func(t *testing.T) {
			b := NewStrategyBandit()
			for i := 0; i < 30; i++ {
				for _, s := range Strategies {
					if s == dominant {
						b.Update(s, 1.0)
					} else {
						b.Update(s, 0.0)
					}
				}
			}
			assert.Equal(t, dominant, b.Best())

			rng := seeded(42)
			for i := 0; i < 100; i++ {
				require.Equal(t, dominant, b.Select(nil, rng))
			}
		})
	}
}

func TestStrategyUpdate(t *testing.T) {
	b := NewStrategyBandit()
	b.Update("analogy", 0.25)
	assert.Equal(t, 1.25, b.Arms["analogy"].Alpha)
	assert.Equal(t, 1.75, b.Arms["analogy"].Beta)

	b.Update("new_strategy", 1)
	assert.Contains(t, b.Arms, "new_strategy")

	b.Update("socratic", 4) // clamped
	assert.Equal(t, 2.0, b.Arms["socratic"].Alpha)
	assert.Equal(t, 1.0, b.Arms["socratic"].Beta)
}

func TestStrategySelectHonorsExclude(t *testing.T) {
	b := NewStrategyBandit()
	rng := seeded(1)
	exclude := []string{"socratic", "worked_examples", "analogy", "debugging_exercise"}
	for i := 0; i < 50; i++ {
		require.Equal(t, "explain_back", b.Select(exclude, rng))
	}
	// excluding everything falls back to all arms
	got := b.Select(Strategies, rng)
	assert.Contains(t, Strategies, got)
}

func TestStrategySelectExploresUnderUniformPrior(t *testing.T) {
	b := NewStrategyBandit()
	rng := seeded(9)
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		seen[b.Select(nil, rng)] = true
	}
	assert.Len(t, seen, len(Strategies))
}

func TestExclusionSet(t *testing.T) {
	cfg := DefaultExclusionConfig()

	t.Run("no judged arms", func(t *testing.T) {
		assert.Empty(t, NewStrategyBandit().ExclusionSet(cfg))
	})

	t.Run("single judged arm", func(t *testing.T) {
		b := NewStrategyBandit()
		for i := 0; i < 5; i++ {
			b.Update("socratic", 0)
		}
		assert.Empty(t, b.ExclusionSet(cfg))
	})

	t.Run("one bad arm among good", func(t *testing.T) {
		b := NewStrategyBandit()
		for i := 0; i < 10; i++ {
			b.Update("socratic", 0.9)
			b.Update("analogy", 0.85)
			b.Update("worked_examples", 0.8)
			b.Update("debugging_exercise", 0.0)
		}
		assert.Equal(t, []string{"debugging_exercise"}, b.ExclusionSet(cfg))
	})

	t.Run("floor applies", func(t *testing.T) {
		b := NewStrategyBandit()
		for i := 0; i < 50; i++ {
			b.Update("socratic", 0.0)
			b.Update("analogy", 0.0)
		}
		assert.ElementsMatch(t, []string{"socratic", "analogy"}, b.ExclusionSet(cfg))
	})

	t.Run("configurable min trials", func(t *testing.T) {
		b := NewStrategyBandit()
		b.Update("socratic", 0)
		b.Update("analogy", 1)
		b.Update("worked_examples", 1)
		assert.Empty(t, b.ExclusionSet(cfg))
		assert.Equal(t, []string{"socratic"}, b.ExclusionSet(ExclusionConfig{MinTrials: 2, Floor: 0.15}))
	})
}

// #endregion strategy

// #region difficulty

func TestLearnerContextKey(t *testing.T) {
	tests := []struct {
		ctx  LearnerContext
		want string
	}{
		{LearnerContext{Velocity: 1.0}, "normal_calibrated_none"},
		{LearnerContext{Velocity: 0.5, CalibrationGap: 0.2, Misconceptions: 1}, "slow_over_some"},
		{LearnerContext{Velocity: 1.5, CalibrationGap: -0.3, Misconceptions: 3}, "fast_under_many"},
		{LearnerContext{Velocity: 0.7, CalibrationGap: 0.15, Misconceptions: 2}, "normal_calibrated_some"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ctx.Key())
		})
	}
}

func TestDifficultyDefaults(t *testing.T) {
	b := NewDifficultyBandit()
	b.Updates = 10_000 // epsilon floor
	ctx := LearnerContext{Velocity: 1}
	// rng nil disables exploration
	assert.Equal(t, DefaultDifficulty, b.SelectDifficulty(ctx, nil))
	assert.Equal(t, DefaultThreshold, b.SelectThreshold(ctx, nil))
	assert.Equal(t, DefaultRetestMultiplier, b.SelectRetestMultiplier(ctx, nil))
}

func TestDifficultyLearns(t *testing.T) {
	b := NewDifficultyBandit()
	ctx := LearnerContext{Velocity: 1.5}
	for i := 0; i < 30; i++ {
		b.Update(ctx, 3, 0.6, 1.0)
		b.Update(ctx, 1, 0.8, -1.0)
		b.UpdateRetest(ctx, 0.45, 2.0)
		b.UpdateRetest(ctx, 0.7, 0.0)
	}
	assert.Equal(t, 60, b.Updates, "retest updates do not advance the counter")
	assert.Equal(t, 3, b.SelectDifficulty(ctx, nil))
	assert.Equal(t, 0.6, b.SelectThreshold(ctx, nil))
	assert.Equal(t, 0.45, b.SelectRetestMultiplier(ctx, nil))

	// a different context is untouched
	other := LearnerContext{Velocity: 0.2}
	assert.Equal(t, DefaultDifficulty, b.SelectDifficulty(other, nil))
}

func TestDifficultyEpsilonDecay(t *testing.T) {
	b := NewDifficultyBandit()
	assert.InDelta(t, 0.2, b.Epsilon(), 1e-12)
	for i := 0; i < 200; i++ {
		b.Update(LearnerContext{}, 2, 0.7, 0)
	}
	assert.InDelta(t, 0.05, b.Epsilon(), 1e-12)
}

func TestProfileBandits(t *testing.T) {
	eng := NewEngagementBandit()
	ectx := EngagementContext{SessionMinutes: 30, Scores: []float64{0.9, 0.8}, ResponseTimes: []float64{10, 12}}
	assert.Equal(t, "medium_high_fast", ectx.Key())
	assert.Equal(t, signals.DefaultProfile, eng.Select(ectx, nil))
	eng.Update(ectx, 4, 1.0)
	eng.Update(ectx, 1, 0.2)
	assert.Equal(t, 4, eng.Select(ectx, nil))
	assert.Equal(t, 2, eng.Updates)

	sch := NewSchedulerBandit()
	sctx := SchedulerContext{ReviewScores: []float64{0.3}, EasinessFactors: []float64{1.5}, Misconceptions: 1, TotalConcepts: 10}
	assert.Equal(t, "low_hard_some", sctx.Key())
	assert.Equal(t, 0, sch.Select(sctx, nil))
	sch.Update(sctx, 2, 3.0)
	assert.Equal(t, 2, sch.Select(sctx, nil))
	assert.Equal(t, "unknown_unknown_unknown", SchedulerContext{}.Key())
	assert.Equal(t, "short_unknown_unknown", EngagementContext{}.Key())
}

// #endregion difficulty

// #region qlearn

func TestActionStateKey(t *testing.T) {
	tests := []struct {
		name string
		st   ActionState
		want string
	}{
		{"zero", ActionState{}, "unknown|0|0|none|neutral"},
		{"improving", ActionState{Status: learner.StatusTesting, TestCount: 2, FailStreak: 1, RecentScores: []float64{0.3, 0.5}, Engagement: signals.StateFlow}, "testing|1-2|1|improving|flow"},
		{"declining over last three", ActionState{Status: learner.StatusPracticing, TestCount: 5, FailStreak: 4, RecentScores: []float64{0.1, 0.9, 0.8, 0.6}}, "practicing|3+|2+|declining|neutral"},
		{"stable", ActionState{Status: learner.StatusMastered, TestCount: 3, RecentScores: []float64{0.7, 0.75}}, "mastered|3+|0|stable|neutral"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.st.Key())
		})
	}
}

func TestQLearnerColdStart(t *testing.T) {
	q := NewQLearner(Hyper{Alpha: 0.1, Gamma: 0.9, Epsilon: 0})
	rng := seeded(3)
	cases := map[learner.Status]Action{
		learner.StatusUnknown:    ActionTeach,
		learner.StatusIntroduced: ActionPractice,
		learner.StatusPracticing: ActionTest,
		learner.StatusTesting:    ActionTest,
		learner.StatusMastered:   ActionSkipAhead,
		learner.StatusDecayed:    ActionTest,
		learner.Status("weird"):  ActionTeach,
	}
	for status, want := range cases {
		assert.Equal(t, want, q.Select(ActionState{Status: status}, rng), status)
	}
}

func TestQLearnerUpdate(t *testing.T) {
	q := NewQLearner(Hyper{Alpha: 0.5, Gamma: 0.9, Epsilon: 0})
	s := ActionState{Status: learner.StatusPracticing}.Key()
	next := ActionState{Status: learner.StatusTesting}.Key()

	q.Update(s, ActionTest, 10, next) // empty next state
	assert.InDelta(t, 5.0, q.Value(s, ActionTest), 1e-12)

	q.Update(next, ActionTest, 2, next)
	// 0 + 0.5*(2 + 0.9*0 - 0) with the new zero entry counted in max
	assert.InDelta(t, 1.0, q.Value(next, ActionTest), 1e-12)

	q.Update(s, ActionTest, 10, next)
	// 5 + 0.5*(10 + 0.9*1 - 5)
	assert.InDelta(t, 7.95, q.Value(s, ActionTest), 1e-12)
	assert.Equal(t, 3, q.Updates)

	assert.Equal(t, ActionTest, q.Select(ActionState{Status: learner.StatusPracticing}, seeded(1)))
}

func TestNonFiniteRewardsLeavePolicySerializable(t *testing.T) {
	s := New(0)
	ctx := LearnerContext{}
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		s.Difficulty.Update(ctx, 2, 0.7, bad)
		s.Difficulty.Update(ctx, 2, bad, 1)
		s.Difficulty.UpdateRetest(ctx, 0.5, bad)
		s.Action.Update("k", ActionTest, bad, "k")
		s.Engagement.Update(EngagementContext{}, 0, bad)
		s.Scheduler.Update(SchedulerContext{}, 0, bad)
	}

	assert.Zero(t, s.Difficulty.Updates)
	assert.Zero(t, s.Action.Updates)
	assert.Zero(t, s.Engagement.Updates)
	assert.Zero(t, s.Scheduler.Updates)
	assert.Empty(t, s.Action.Q["k"])

	blob, err := Marshal(s)
	require.NoError(t, err)
	_, err = Unmarshal(blob)
	require.NoError(t, err)
}

func TestQLearnerGreedyTieKeepsCanonicalOrder(t *testing.T) {
	q := NewQLearner(Hyper{Epsilon: 0})
	key := ActionState{}.Key()
	q.Q[key] = map[string]float64{"reteach": 1, "practice": 1, "skip_ahead": 0.5}
	assert.Equal(t, ActionPractice, q.Select(ActionState{}, nil))
}

func TestHyperFor(t *testing.T) {
	assert.Equal(t, Hyper{0.2, 0.9, 0.3}, HyperFor(0))
	assert.Equal(t, Hyper{0.1, 0.9, 0.15}, HyperFor(5))
	assert.Equal(t, Hyper{0.05, 0.9, 0.05}, HyperFor(20))
	assert.Equal(t, 0.2, New(4).Action.Alpha)
}

// #endregion qlearn

// #region state

func TestStateCloneIsDeep(t *testing.T) {
	s := New(0)
	s.Strategy.Update("analogy", 1)
	s.Action.Update("k", ActionTest, 1, "k2")
	s.Difficulty.Update(LearnerContext{}, 1, 0.6, 1)

	c := s.Clone()
	c.Strategy.Update("analogy", 1)
	c.Action.Update("k", ActionTest, 1, "k2")
	c.Difficulty.Update(LearnerContext{}, 1, 0.6, 1)

	assert.Equal(t, 2.0, s.Strategy.Arms["analogy"].Alpha)
	assert.Equal(t, 1, s.Difficulty.Difficulty[LearnerContext{}.Key()]["1"].Count)
	assert.Equal(t, 1, s.Action.Updates)
	assert.NotEqual(t, s.Action.Value("k", ActionTest), c.Action.Value("k", ActionTest))
}

func TestStats(t *testing.T) {
	s := New(0)
	s.Strategy.Update("analogy", 1)
	st := s.Stats()
	assert.Equal(t, "analogy", st.BestStrategy)
	assert.Equal(t, 0.667, st.Strategies["analogy"].Expected)
	assert.Equal(t, 0.2, st.Difficulty.Epsilon)
	assert.Equal(t, 0, st.Action.StatesExplored)
	assert.Len(t, s.StrategyMeans(), len(Strategies))
}

// #endregion state
