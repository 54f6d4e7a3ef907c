package orchestrator

// #region imports
import (
	"fmt"

	"github.com/danielpatrickdp/adaptive-tutor/internal/review"
	"github.com/danielpatrickdp/adaptive-tutor/internal/signals"
	"github.com/danielpatrickdp/adaptive-tutor/internal/update"
)

// #endregion

// #region record-outcome

// RecordOutcome runs one evaluated test through gate, update and eval.
// Rejected events and failed evals leave the session untouched and are
// reported in the result, not as errors.
//
// On acceptance the policy is replaced, the concept's review item is
// rescheduled when the test mastered it or it was already under review, and
// a failed test gets a reteach plan.
func (s *Session) RecordOutcome(ev update.Event) (OutcomeResult, error) {
	now := s.core.now()
	if ev.At.IsZero() {
		ev.At = now
	}

	// 1. Gate
	decision := s.core.gate.Evaluate(ev)
	res := OutcomeResult{Gate: decision}
	if decision.Vetoed {
		s.log.Warn("outcome rejected", "concept_id", ev.ConceptID, "reason", decision.Reason)
		return res, nil
	}

	// 2. Attach the session's profile choices so those bandits get credit
	_, underReview := s.reviews.Get(ev.ConceptID)
	if ev.EngagementProfile == nil && s.engagementIdx != nil {
		idx := *s.engagementIdx
		ev.EngagementProfile = &idx
	}
	if ev.SchedulerProfile == nil && underReview && s.schedulerIdx != nil {
		idx := *s.schedulerIdx
		ev.SchedulerProfile = &idx
	}
	if ev.Engagement == "" {
		ev.Engagement = s.Engagement()
	}

	// 3. Pure update on a copy of the policy
	result := update.Update(s.policy, update.UpdateContext{
		Snapshot: s.snap,
		Session:  s.engagementContext(),
		Reviews:  s.schedulerContext(),
		Rng:      s.rng,
	}, ev, s.core.cfg.Reward)
	res.Outcome = result.Outcome
	res.Reward = result.Metrics.Reward

	// 4. Review step on a copy of the queue
	reviews := s.reviews
	var item *review.Item
	if result.Outcome == update.OutcomeMastered || underReview {
		reviews = s.reviews.Clone()
		it, err := reviews.Schedule(ev.ConceptID, ev.Score, s.misconceptionsAfter(ev, result.Outcome), s.schedulerProfile(), now)
		if err != nil {
			return res, fmt.Errorf("schedule review for %s: %w", ev.ConceptID, err)
		}
		item = &it
	}

	// 5. Eval; failure keeps the previous policy and queue
	res.Eval = s.core.eval.Run(result.Policy, reviews)
	if !res.Eval.Passed {
		s.log.Warn("eval failed, rolling back", "concept_id", ev.ConceptID, "reason", res.Eval.Reason)
		res.RolledBack = true
		return res, nil
	}

	s.policy = result.Policy
	s.reviews = reviews
	res.Accepted = true
	res.Review = item

	score := ev.Score
	s.tracker.Record(signals.Interaction{At: ev.At, AnswerChars: ev.AnswerChars, Score: &score})
	res.Engagement = s.Engagement()
	res.Intervention = signals.InterventionFor(res.Engagement)

	if result.Outcome == update.OutcomeReteach {
		plan := s.planReteach(ev)
		res.Reteach = &plan
	} else {
		s.resetReteaches(ev.ConceptID)
	}

	s.log.Info("outcome recorded",
		"concept_id", ev.ConceptID,
		"outcome", result.Outcome,
		"reward", result.Metrics.Reward,
		"threshold", result.Metrics.Threshold,
		"soft_score", decision.SoftScore,
	)
	return res, nil
}

// misconceptionsAfter is the active misconception count once this outcome
// is applied: mastery clears the misconceptions the test named.
func (s *Session) misconceptionsAfter(ev update.Event, outcome update.Outcome) int {
	cm, ok := s.snap.Concept(ev.ConceptID)
	if !ok {
		return 0
	}
	n := len(cm.MisconceptionsActive)
	if outcome != update.OutcomeMastered {
		return n
	}
	for _, id := range ev.MisconceptionIDs {
		if cm.HasActiveMisconception(id) {
			n--
		}
	}
	return max(0, n)
}

// #endregion
