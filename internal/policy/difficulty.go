package policy

import (
	"math/rand/v2"
	"strconv"

	"github.com/danielpatrickdp/adaptive-tutor/internal/bandit"
	"github.com/danielpatrickdp/adaptive-tutor/internal/review"
	"github.com/danielpatrickdp/adaptive-tutor/internal/signals"
)

// Candidate sets and defaults for the contextual tables.
var (
	DifficultyLevels  = []int{1, 2, 3}
	MasteryThresholds = []float64{0.55, 0.6, 0.65, 0.7, 0.75, 0.8}
	RetestMultipliers = []float64{0.45, 0.50, 0.57, 0.65, 0.70}
)

const (
	DefaultDifficulty       = 2
	DefaultThreshold        = 0.7
	DefaultRetestMultiplier = 0.57
)

func intKey(v int) string       { return strconv.Itoa(v) }
func floatKey(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func learnerKey(c LearnerContext) string       { return c.Key() }
func engagementKey(c EngagementContext) string { return c.Key() }
func schedulerKey(c SchedulerContext) string   { return c.Key() }

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// #region tables

var (
	difficultyTable = bandit.Table[LearnerContext, int]{
		Arms: DifficultyLevels, Default: DefaultDifficulty, ArmKey: intKey, ContextKey: learnerKey,
	}
	thresholdTable = bandit.Table[LearnerContext, float64]{
		Arms: MasteryThresholds, Default: DefaultThreshold, ArmKey: floatKey, ContextKey: learnerKey,
	}
	retestTable = bandit.Table[LearnerContext, float64]{
		Arms: RetestMultipliers, Default: DefaultRetestMultiplier, ArmKey: floatKey, ContextKey: learnerKey,
	}
	engagementTable = bandit.Table[EngagementContext, int]{
		Arms: indices(len(signals.Profiles)), Default: signals.DefaultProfile, ArmKey: intKey, ContextKey: engagementKey,
	}
	schedulerTable = bandit.Table[SchedulerContext, int]{
		Arms: indices(len(review.Profiles)), Default: review.DefaultProfile, ArmKey: intKey, ContextKey: schedulerKey,
	}
)

// #endregion tables

// #region difficulty

// DifficultyBandit selects difficulty tier, mastery threshold and retest
// multiplier per learner context. The three tables share one update counter
// that only Update advances.
type DifficultyBandit struct {
	Difficulty bandit.Entries `json:"difficulty_table"`
	Threshold  bandit.Entries `json:"threshold_table"`
	Retest     bandit.Entries `json:"retest_table"`
	Updates    int            `json:"total_updates"`
}

// NewDifficultyBandit returns empty tables.
func NewDifficultyBandit() *DifficultyBandit {
	return &DifficultyBandit{Difficulty: bandit.Entries{}, Threshold: bandit.Entries{}, Retest: bandit.Entries{}}
}

// Epsilon is the current exploration rate.
func (b *DifficultyBandit) Epsilon() float64 { return bandit.Epsilon(b.Updates) }

// SelectDifficulty picks a tier in {1,2,3}.
func (b *DifficultyBandit) SelectDifficulty(ctx LearnerContext, rng *rand.Rand) int {
	return difficultyTable.Select(b.Difficulty, ctx, b.Epsilon(), rng)
}

// SelectThreshold picks a mastery threshold.
func (b *DifficultyBandit) SelectThreshold(ctx LearnerContext, rng *rand.Rand) float64 {
	return thresholdTable.Select(b.Threshold, ctx, b.Epsilon(), rng)
}

// SelectRetestMultiplier picks the fraction of threshold that earns a retest.
func (b *DifficultyBandit) SelectRetestMultiplier(ctx LearnerContext, rng *rand.Rand) float64 {
	return retestTable.Select(b.Retest, ctx, b.Epsilon(), rng)
}

// Update credits reward to both the difficulty and threshold used.
// Non-finite thresholds or rewards are ignored.
func (b *DifficultyBandit) Update(ctx LearnerContext, difficulty int, threshold, reward float64) {
	if !finite(threshold, reward) {
		return
	}
	b.Updates++
	difficultyTable.Update(b.Difficulty, ctx, difficulty, reward)
	thresholdTable.Update(b.Threshold, ctx, threshold, reward)
}

// UpdateRetest credits reward to the retest multiplier used.
func (b *DifficultyBandit) UpdateRetest(ctx LearnerContext, multiplier, reward float64) {
	if !finite(multiplier, reward) {
		return
	}
	retestTable.Update(b.Retest, ctx, multiplier, reward)
}

// #endregion difficulty

// #region profiles

// profileTable is the shared layout of the engagement and scheduler bandits.
type profileTable struct {
	Profiles bandit.Entries `json:"profile_table"`
	Updates  int            `json:"total_updates"`
}

// Epsilon is the current exploration rate.
func (t *profileTable) Epsilon() float64 { return bandit.Epsilon(t.Updates) }

// EngagementBandit selects an index into signals.Profiles.
type EngagementBandit struct {
	profileTable
}

// NewEngagementBandit returns an empty table.
func NewEngagementBandit() *EngagementBandit {
	return &EngagementBandit{profileTable{Profiles: bandit.Entries{}}}
}

func (b *EngagementBandit) Select(ctx EngagementContext, rng *rand.Rand) int {
	return engagementTable.Select(b.Profiles, ctx, b.Epsilon(), rng)
}

func (b *EngagementBandit) Update(ctx EngagementContext, idx int, reward float64) {
	if !finite(reward) {
		return
	}
	b.Updates++
	engagementTable.Update(b.Profiles, ctx, idx, reward)
}

// SchedulerBandit selects an index into review.Profiles.
type SchedulerBandit struct {
	profileTable
}

// NewSchedulerBandit returns an empty table.
func NewSchedulerBandit() *SchedulerBandit {
	return &SchedulerBandit{profileTable{Profiles: bandit.Entries{}}}
}

func (b *SchedulerBandit) Select(ctx SchedulerContext, rng *rand.Rand) int {
	return schedulerTable.Select(b.Profiles, ctx, b.Epsilon(), rng)
}

func (b *SchedulerBandit) Update(ctx SchedulerContext, idx int, reward float64) {
	if !finite(reward) {
		return
	}
	b.Updates++
	schedulerTable.Update(b.Profiles, ctx, idx, reward)
}

// #endregion profiles
