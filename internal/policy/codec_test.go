package policy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-tutor/internal/learner"
	"github.com/danielpatrickdp/adaptive-tutor/internal/signals"
)

// trained returns a policy with every sub-table populated by a seeded run.
func trained(t *testing.T) *State {
	t.Helper()
	rng := seeded(77)
	s := New(3)
	for i := 0; i < 200; i++ {
		ctx := LearnerContext{Velocity: rng.Float64() * 2, CalibrationGap: rng.Float64() - 0.5, Misconceptions: rng.IntN(5)}
		strat := s.Strategy.Select(nil, rng)
		s.Strategy.Update(strat, rng.Float64())

		d, th, m := s.Difficulty.SelectDifficulty(ctx, rng), s.Difficulty.SelectThreshold(ctx, rng), s.Difficulty.SelectRetestMultiplier(ctx, rng)
		r := rng.NormFloat64() * 3
		s.Difficulty.Update(ctx, d, th, r)
		s.Difficulty.UpdateRetest(ctx, m, r/3)

		st := ActionState{Status: learner.StatusPracticing, TestCount: rng.IntN(5), FailStreak: rng.IntN(3), RecentScores: []float64{rng.Float64(), rng.Float64()}, Engagement: signals.StateFlow}
		next := st
		next.TestCount++
		s.Action.Update(st.Key(), s.Action.Select(st, rng), r, next.Key())

		ectx := EngagementContext{SessionMinutes: rng.Float64() * 90, Scores: []float64{rng.Float64()}, ResponseTimes: []float64{rng.Float64() * 200}}
		s.Engagement.Update(ectx, s.Engagement.Select(ectx, rng), rng.Float64())
		sctx := SchedulerContext{ReviewScores: []float64{rng.Float64()}, EasinessFactors: []float64{1.3 + rng.Float64()*2}, Misconceptions: rng.IntN(3), TotalConcepts: 5}
		s.Scheduler.Update(sctx, s.Scheduler.Select(sctx, rng), rng.Float64())
	}
	return s
}

func TestCodecRoundTrip(t *testing.T) {
	for name, s := range map[string]*State{"fresh": New(0), "trained": trained(t)} {
		t.Run(name, func(t *testing.T) {
			blob, err := Marshal(s)
			require.NoError(t, err)
			back, err := Unmarshal(blob)
			require.NoError(t, err)
			assert.Equal(t, s, back)

			again, err := Marshal(back)
			require.NoError(t, err)
			assert.Equal(t, string(blob), string(again))
		})
	}
}

func TestMapRoundTrip(t *testing.T) {
	s := trained(t)
	m, err := ToMap(s)
	require.NoError(t, err)
	assert.EqualValues(t, SchemaVersion, m["schema_version"])

	back, err := FromMap(m)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}

func TestUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"garbage", "not json", ErrCorruptBlob},
		{"array", "[1,2]", ErrCorruptBlob},
		{"null", "null", ErrCorruptBlob},
		{"future version", `{"schema_version": 2, "policy": {}}`, ErrUnsupportedVersion},
		{"zero version", `{"schema_version": 0}`, ErrCorruptBlob},
		{"bad body", `{"schema_version": 1, "policy": {"strategy_bandit": 5}}`, ErrCorruptBlob},
		{"bad beta", `{"schema_version": 1, "policy": {"strategy_bandit": {"arms": {"socratic": {"alpha": 0, "beta": 1}}}}}`, ErrCorruptBlob},
		{"negative count", `{"schema_version": 1, "policy": {"difficulty_bandit": {"difficulty_table": {"x": {"2": {"total": 1, "count": -1}}}}}}`, ErrCorruptBlob},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.in))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadFallsBackToFresh(t *testing.T) {
	s, err := Load(nil, 25)
	require.NoError(t, err)
	assert.Equal(t, New(25), s)

	s, err = Load([]byte("{{{"), 25)
	assert.ErrorIs(t, err, ErrCorruptBlob)
	require.NotNil(t, s)
	assert.Equal(t, New(25), s)
}

func TestVersionedPartialBlobIsNormalized(t *testing.T) {
	s, err := Unmarshal([]byte(`{"schema_version": 1, "policy": {}}`))
	require.NoError(t, err)
	assert.Equal(t, New(0), s)
}

func TestMigrateLegacy(t *testing.T) {
	legacy := map[string]any{
		"strategy_bandit": map[string]any{
			"arms": map[string]any{"socratic": []any{3.5, 1.5}, "analogy": []any{1.0, 4.0}},
		},
		"difficulty_bandit": map[string]any{
			"difficulty_table": map[string]any{"normal_calibrated_none": map[string]any{"3": []any{12.0, 2}}},
			"threshold_table":  map[string]any{"normal_calibrated_none": map[string]any{"0.6": []any{12.0, 2}}},
			"retest_table":     map[string]any{"normal_calibrated_none": map[string]any{"0.5": []any{-1.0, 1}}},
			"total_updates":    2,
		},
		"action_q": map[string]any{
			"q_table":       map[string]any{"practicing|0|0|none|neutral": map[string]any{"test": 1.5}},
			"alpha":         0.1,
			"gamma":         0.9,
			"epsilon":       0.15,
			"total_updates": 1,
		},
		"engagement_bandit": map[string]any{"profile_table": map[string]any{"short_high_fast": map[string]any{"2": []any{1.0, 1}}}, "total_updates": 1},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)

	s, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, 3.5, s.Strategy.Arms["socratic"].Alpha)
	assert.Equal(t, 1.0, s.Strategy.Arms["worked_examples"].Alpha, "missing canonical arms keep the prior")
	assert.Equal(t, "socratic", s.Strategy.Best())

	ctx := LearnerContext{Velocity: 1}
	assert.Equal(t, 3, s.Difficulty.SelectDifficulty(ctx, nil))
	assert.Equal(t, 0.6, s.Difficulty.SelectThreshold(ctx, nil))
	assert.Equal(t, 0.5, s.Difficulty.SelectRetestMultiplier(ctx, nil))
	assert.Equal(t, 2, s.Difficulty.Updates)

	assert.Equal(t, 1.5, s.Action.Value("practicing|0|0|none|neutral", ActionTest))
	assert.Equal(t, 0.15, s.Action.Epsilon)
	assert.Equal(t, 1, s.Engagement.Updates)
	assert.NotNil(t, s.Scheduler.Profiles)

	// migrated blobs re-serialize in the current layout
	blob, err := Marshal(s)
	require.NoError(t, err)
	back, err := Unmarshal(blob)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}
