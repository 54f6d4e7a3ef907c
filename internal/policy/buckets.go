package policy

import (
	"fmt"

	"github.com/danielpatrickdp/adaptive-tutor/internal/learner"
	"github.com/danielpatrickdp/adaptive-tutor/internal/signals"
)

// #region learner-context

// LearnerContext drives the difficulty, threshold and retest tables.
type LearnerContext struct {
	Velocity       float64
	CalibrationGap float64
	Misconceptions int
}

// Key buckets the context as velocity_calibration_misconceptions.
func (c LearnerContext) Key() string {
	return fmt.Sprintf("%s_%s_%s", velocityBucket(c.Velocity), calibrationBucket(c.CalibrationGap), misconceptionBucket(c.Misconceptions))
}

// ContextFor builds the learner context for conceptID. Unknown concepts read
// as calibrated with no misconceptions.
func ContextFor(snap *learner.Snapshot, conceptID string) LearnerContext {
	ctx := LearnerContext{Velocity: 1.0}
	if snap == nil {
		return ctx
	}
	ctx.Velocity = snap.OverallVelocity
	if cm, ok := snap.Concept(conceptID); ok {
		ctx.CalibrationGap = cm.CalibrationGap
		ctx.Misconceptions = len(cm.MisconceptionsActive)
	}
	return ctx
}

func velocityBucket(v float64) string {
	switch {
	case v < 0.7:
		return "slow"
	case v > 1.3:
		return "fast"
	}
	return "normal"
}

func calibrationBucket(gap float64) string {
	switch {
	case gap > 0.15:
		return "over"
	case gap < -0.15:
		return "under"
	}
	return "calibrated"
}

func misconceptionBucket(n int) string {
	switch {
	case n <= 0:
		return "none"
	case n <= 2:
		return "some"
	}
	return "many"
}

// #endregion learner-context

// #region action-state

// ActionState is the raw Q-learner state.
type ActionState struct {
	Status       learner.Status
	TestCount    int
	FailStreak   int
	RecentScores []float64
	Engagement   signals.State
}

// Key is status|tests|fails|trend|engagement.
func (s ActionState) Key() string {
	status := s.Status
	if status == "" {
		status = learner.StatusUnknown
	}
	eng := s.Engagement
	if eng == "" {
		eng = signals.StateNeutral
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s", status, testCountBucket(s.TestCount), failStreakBucket(s.FailStreak), trendBucket(s.RecentScores), eng)
}

// ActionStateFor builds the action state for conceptID from the snapshot.
func ActionStateFor(snap *learner.Snapshot, conceptID string, engagement signals.State) ActionState {
	st := ActionState{Status: learner.StatusUnknown, Engagement: engagement}
	if snap == nil {
		return st
	}
	st.FailStreak = snap.FailStreak
	if cm, ok := snap.Concept(conceptID); ok {
		st.Status = snap.Status(conceptID)
		st.TestCount = cm.TestCount()
		st.RecentScores = cm.RecentScores(5)
	}
	return st
}

func testCountBucket(n int) string {
	switch {
	case n <= 0:
		return "0"
	case n <= 2:
		return "1-2"
	}
	return "3+"
}

func failStreakBucket(n int) string {
	switch {
	case n <= 0:
		return "0"
	case n == 1:
		return "1"
	}
	return "2+"
}

func trendBucket(scores []float64) string {
	if len(scores) < 2 {
		return "none"
	}
	recent := scores
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	first, last := recent[0], recent[len(recent)-1]
	switch {
	case last > first+0.1:
		return "improving"
	case last < first-0.1:
		return "declining"
	}
	return "stable"
}

// #endregion action-state

// #region engagement-context

// EngagementContext drives the engagement-profile table.
type EngagementContext struct {
	SessionMinutes float64
	Scores         []float64
	ResponseTimes  []float64
}

// Key is duration_performance_pace.
func (c EngagementContext) Key() string {
	return fmt.Sprintf("%s_%s_%s", durationBucket(c.SessionMinutes), performanceBucket(c.Scores), paceBucket(c.ResponseTimes))
}

func durationBucket(minutes float64) string {
	switch {
	case minutes < 15:
		return "short"
	case minutes < 45:
		return "medium"
	}
	return "long"
}

func performanceBucket(scores []float64) string {
	if len(scores) == 0 {
		return "unknown"
	}
	switch avg := meanLast(scores, 5); {
	case avg < 0.4:
		return "low"
	case avg > 0.7:
		return "high"
	}
	return "medium"
}

func paceBucket(times []float64) string {
	if len(times) == 0 {
		return "unknown"
	}
	switch avg := meanLast(times, 5); {
	case avg < 20:
		return "fast"
	case avg > 120:
		return "slow"
	}
	return "normal"
}

// #endregion engagement-context

// #region scheduler-context

// SchedulerContext drives the SM-2 profile table.
type SchedulerContext struct {
	ReviewScores    []float64
	EasinessFactors []float64
	Misconceptions  int
	TotalConcepts   int
}

// Key is success_easiness_density.
func (c SchedulerContext) Key() string {
	return fmt.Sprintf("%s_%s_%s", reviewSuccessBucket(c.ReviewScores), easinessBucket(c.EasinessFactors), densityBucket(c.Misconceptions, c.TotalConcepts))
}

func reviewSuccessBucket(scores []float64) string {
	if len(scores) == 0 {
		return "unknown"
	}
	switch avg := meanLast(scores, len(scores)); {
	case avg < 0.5:
		return "low"
	case avg > 0.8:
		return "high"
	}
	return "medium"
}

func easinessBucket(efs []float64) string {
	if len(efs) == 0 {
		return "unknown"
	}
	switch avg := meanLast(efs, len(efs)); {
	case avg < 2.0:
		return "hard"
	case avg > 2.8:
		return "easy"
	}
	return "normal"
}

func densityBucket(count, total int) string {
	if total <= 0 {
		return "unknown"
	}
	switch ratio := float64(count) / float64(total); {
	case ratio == 0:
		return "none"
	case ratio < 0.3:
		return "some"
	}
	return "many"
}

// #endregion scheduler-context

func meanLast(xs []float64, n int) float64 {
	if len(xs) > n {
		xs = xs[len(xs)-n:]
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
