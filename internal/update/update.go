// Package update turns one evaluated test outcome into the next policy.
//
// Update never mutates its input policy. The returned policy is a fresh
// clone, so a failed post-update check can simply keep the old one.
package update

import (
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/adaptive-tutor/internal/learner"
	"github.com/danielpatrickdp/adaptive-tutor/internal/policy"
)

// #region update-function
// Update computes the reward tier for ev and applies it to every policy layer
// the event touches. The mastery threshold and retest multiplier are drawn
// from the difficulty bandit with ctx.Rng, as they were when the test was graded.
// ev must already have passed the gate.
func Update(old *policy.State, ctx UpdateContext, ev Event, config RewardConfig) UpdateResult {
	start := time.Now()
	next := old.Clone()

	lctx := policy.ContextFor(ctx.Snapshot, ev.ConceptID)
	threshold := next.Difficulty.SelectThreshold(lctx, ctx.Rng)
	multiplier := next.Difficulty.SelectRetestMultiplier(lctx, ctx.Rng)
	retest := threshold * multiplier

	cm, _ := ctx.Snapshot.Concept(ev.ConceptID)
	outcome, reward := Reward(ev, cm, threshold, retest, config)

	tables := []string{"strategy", "difficulty", "threshold", "retest", "action"}

	// 1. Strategy learns from the raw score, everything else from the shaped reward
	next.Strategy.Update(ev.Strategy, ev.Score)
	next.Difficulty.Update(lctx, ev.Difficulty, threshold, reward)
	next.Difficulty.UpdateRetest(lctx, multiplier, reward)

	// 2. The test action is credited to the state it was taken in
	stateKey := policy.ActionStateFor(ctx.Snapshot, ev.ConceptID, ev.Engagement).Key()
	next.Action.Update(stateKey, policy.ActionTest, reward, stateKey)

	// 3. Profile bandits only learn when the session actually used them
	if ev.EngagementProfile != nil {
		next.Engagement.Update(ctx.Session, *ev.EngagementProfile, ev.Score)
		tables = append(tables, "engagement")
	}
	if ev.SchedulerProfile != nil {
		next.Scheduler.Update(ctx.Reviews, *ev.SchedulerProfile, ev.Score)
		tables = append(tables, "scheduler")
	}

	return UpdateResult{
		Policy:  next,
		Outcome: outcome,
		Decision: Decision{
			Action: "commit",
			Reason: fmt.Sprintf("%s: reward %.3f over %v", outcome, reward, tables),
		},
		Metrics: Metrics{
			Reward:          reward,
			Threshold:       threshold,
			RetestThreshold: retest,
			ContextKey:      lctx.Key(),
			StateKey:        stateKey,
			TablesHit:       tables,
			UpdateTimeMs:    time.Since(start).Milliseconds(),
		},
	}
}

// #endregion update-function

// #region reward
// Reward places ev in a tier and shapes its reward. A score at or above
// threshold masters the concept; at or above retest earns another attempt;
// anything lower goes back to teaching.
func Reward(ev Event, cm *learner.ConceptMastery, threshold, retest float64, config RewardConfig) (Outcome, float64) {
	score := ev.Score
	if math.IsNaN(score) {
		score = 0
	}
	switch {
	case score >= threshold:
		reward := config.Mastery + config.PassMult*score
		for _, id := range ev.MisconceptionIDs {
			if resolvedBy(cm, id) {
				reward += config.Resolved
			}
		}
		return OutcomeMastered, reward
	case score >= retest:
		return OutcomeRetest, config.PassMult*score + config.Step
	}
	return OutcomeReteach, config.Fail + config.Misconception*float64(len(ev.MisconceptionIDs))
}

// resolvedBy reports whether mastering now resolves id: it was either active
// and is cleared by this mastery, or was already resolved earlier.
func resolvedBy(cm *learner.ConceptMastery, id string) bool {
	if cm == nil {
		return false
	}
	if cm.HasActiveMisconception(id) {
		return true
	}
	for _, r := range cm.MisconceptionsResolved {
		if r == id {
			return true
		}
	}
	return false
}

// #endregion reward
