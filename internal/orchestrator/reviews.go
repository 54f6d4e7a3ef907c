package orchestrator

// #region imports
import (
	"math"
	"sort"

	"github.com/danielpatrickdp/adaptive-tutor/internal/learner"
	"github.com/danielpatrickdp/adaptive-tutor/internal/review"
)

// #endregion

// #region schedule

// ScheduleReview applies one SM-2 step to conceptID using the session's
// scheduler profile and the concept's active misconception count.
func (s *Session) ScheduleReview(conceptID string, score float64) (review.Item, error) {
	misconceptions := 0
	if cm, ok := s.snap.Concept(conceptID); ok {
		misconceptions = len(cm.MisconceptionsActive)
	}
	return s.reviews.Schedule(conceptID, score, misconceptions, s.schedulerProfile(), s.core.now())
}

// DueReviews lists due items, most urgent first. limit <= 0 returns all.
func (s *Session) DueReviews(limit int) []review.DueItem {
	return s.reviews.Due(s.core.now(), limit)
}

// ReviewSummary is the queue overview at the current time.
func (s *Session) ReviewSummary() review.Summary {
	return s.reviews.Summary(s.core.now())
}

// AtRisk lists items coming due within daysAhead days.
func (s *Session) AtRisk(daysAhead int) []review.AtRiskItem {
	return s.reviews.AtRisk(s.core.now(), daysAhead)
}

// HasUrgentReviews reports whether any due item is badly overdue.
func (s *Session) HasUrgentReviews() bool {
	return s.reviews.HasUrgent(s.core.now())
}

// #endregion

// #region retention

var curveDays = []int{0, 1, 3, 7, 14, 30, 60}

// RetentionCurve returns the current retention of conceptID plus the
// projected curve from its last review. ok is false for concepts not in the queue.
func (s *Session) RetentionCurve(conceptID string) (RetentionCurve, bool) {
	info, ok := s.reviews.Retention(conceptID, s.core.now())
	if !ok {
		return RetentionCurve{RetentionInfo: info}, false
	}
	points := make([]RetentionPoint, len(curveDays))
	for i, d := range curveDays {
		points[i] = RetentionPoint{Day: d, Retention: review.RetentionAt(float64(d), info.Stability)}
	}
	return RetentionCurve{RetentionInfo: info, Points: points}, true
}

// #endregion

// #region decay

const decaySuccessScore = 0.7

// DecayedConcepts lists mastered concepts whose last validation is older
// than their expected retention interval, worst first. The interval grows
// with the number of successful tests and shrinks when the concept carried
// misconceptions.
func (s *Session) DecayedConcepts() []string {
	now := s.core.now()
	profile := s.currentSchedulerProfile()

	type decayed struct {
		id    string
		ratio float64
	}
	var found []decayed
	for id, cm := range s.snap.Concepts {
		if cm == nil || cm.Status != learner.StatusMastered || cm.LastValidated == nil {
			continue
		}
		concept, ok := s.core.graph.Concept(id)
		if !ok {
			continue
		}

		interval := expectedInterval(cm, float64(concept.DecayDays), profile)
		daysSince := math.Floor(now.Sub(*cm.LastValidated).Hours() / 24)
		if daysSince > interval {
			found = append(found, decayed{id: id, ratio: daysSince / math.Max(interval, 1)})
		}
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].ratio != found[j].ratio {
			return found[i].ratio > found[j].ratio
		}
		return found[i].id < found[j].id
	})
	limit := s.core.cfg.DecayedLimit
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	out := make([]string, len(found))
	for i, d := range found {
		out[i] = d.id
	}
	if len(out) > 0 {
		s.log.Info("decayed concepts found", "count", len(out), "concepts", out)
	}
	return out
}

// currentSchedulerProfile is the session's profile if one was chosen,
// otherwise the greedy choice, without recording a selection.
func (s *Session) currentSchedulerProfile() review.Profile {
	if s.schedulerIdx != nil {
		return review.ProfileAt(*s.schedulerIdx)
	}
	return review.ProfileAt(s.policy.Scheduler.Select(s.schedulerContext(), nil))
}

func expectedInterval(cm *learner.ConceptMastery, baseDays float64, p review.Profile) float64 {
	successes := 0
	for _, t := range cm.TestResults {
		if t.Score >= decaySuccessScore {
			successes++
		}
	}
	var interval float64
	if successes <= 1 {
		interval = baseDays * 0.5
	} else {
		ef := math.Min(p.InitialEF, p.MinEF+0.1*float64(successes))
		interval = baseDays * math.Pow(ef, float64(successes-1))
	}
	if len(cm.MisconceptionsResolved) > 0 {
		interval *= 1 - p.MisconPenalty
	}
	return interval
}

// #endregion
