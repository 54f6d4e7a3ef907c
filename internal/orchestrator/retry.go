package orchestrator

import "github.com/danielpatrickdp/adaptive-tutor/internal/update"

// #region constants

const (
	maxReteaches      = 2 // max 2 reteaches per concept per session before escalating
	debuggingStrategy = "debugging_exercise"
)

// #endregion

// #region plan-reteach

// planReteach picks the strategy for the next teaching pass after a failed
// test. The strategy that just failed is skipped. A failure that surfaced
// misconceptions goes to a debugging exercise unless that strategy is itself
// skipped or just failed.
func (s *Session) planReteach(ev update.Event) ReteachPlan {
	s.reteaches[ev.ConceptID]++
	attempt := s.reteaches[ev.ConceptID]
	plan := ReteachPlan{Attempt: attempt, Escalate: attempt > maxReteaches}

	exclude := []string{ev.Strategy}
	if len(ev.MisconceptionIDs) > 0 {
		if _, skip := s.skipped(ev.ConceptID, exclude)[debuggingStrategy]; !skip {
			plan.Strategy = debuggingStrategy
			return plan
		}
	}
	plan.Strategy = s.SelectStrategy(ev.ConceptID, exclude)
	return plan
}

// resetReteaches clears the reteach count once a concept is passed.
func (s *Session) resetReteaches(conceptID string) {
	delete(s.reteaches, conceptID)
}

// #endregion
