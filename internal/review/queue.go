// Package review implements the adaptive SM-2 review queue.
package review

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	successQuality   = 3.0
	maxMisconPenalty = 3
	// maxIntervalDays keeps next-review dates inside time.Duration range.
	maxIntervalDays = 36500.0
	// UrgentThreshold is the urgency above which a due review is urgent.
	UrgentThreshold = 1.5
)

// Queue holds one learner's review items keyed by concept id.
// It is not safe for concurrent use; callers serialize per learner.
type Queue struct {
	items map[string]*Item
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{items: make(map[string]*Item)}
}

// #region schedule

// Schedule applies one review outcome for conceptID using profile p.
// The item is created on first use with p.InitialEF. Scores outside [0,1]
// are clamped; NaN and infinities are rejected.
func (q *Queue) Schedule(conceptID string, score float64, misconceptions int, p Profile, now time.Time) (Item, error) {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Item{}, fmt.Errorf("%w: %v for %s", ErrInvalidScore, score, conceptID)
	}
	score = math.Max(0, math.Min(1, score))
	if misconceptions < 0 {
		misconceptions = 0
	}

	it, ok := q.items[conceptID]
	if !ok {
		it = &Item{ConceptID: conceptID, EasinessFactor: p.InitialEF, IntervalDays: p.ResetInterval}
		q.items[conceptID] = it
	}

	quality := score * 5.0
	it.LastScore = score
	it.Misconceptions = misconceptions

	miss := 5.0 - quality
	it.EasinessFactor = math.Max(p.MinEF, it.EasinessFactor+p.A-miss*(p.B+miss*p.C))

	if quality >= successQuality {
		switch it.Repetitions {
		case 0:
			it.IntervalDays = p.ResetInterval
		case 1:
			it.IntervalDays = p.ResetInterval * 6.0
		default:
			it.IntervalDays *= it.EasinessFactor
		}
		it.Repetitions++
	} else {
		it.IntervalDays = p.ResetInterval
		it.Repetitions = 0
	}

	if misconceptions > 0 {
		it.IntervalDays *= 1.0 - p.MisconPenalty*float64(min(misconceptions, maxMisconPenalty))
	}

	it.IntervalDays = math.Min(it.IntervalDays, maxIntervalDays)
	it.NextReview = now.UTC().Add(days(it.IntervalDays))
	return *it, nil
}

// #endregion schedule

// #region lookups

// Get returns a copy of the item for conceptID.
func (q *Queue) Get(conceptID string) (Item, bool) {
	it, ok := q.items[conceptID]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// Remove drops conceptID, reporting whether it was present.
func (q *Queue) Remove(conceptID string) bool {
	if _, ok := q.items[conceptID]; !ok {
		return false
	}
	delete(q.items, conceptID)
	return true
}

// Len is the number of items.
func (q *Queue) Len() int { return len(q.items) }

// Items returns copies of all items ordered by concept id.
func (q *Queue) Items() []Item {
	out := make([]Item, 0, len(q.items))
	for _, it := range q.items {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConceptID < out[j].ConceptID })
	return out
}

// History returns the last scores and easiness factors in concept id order,
// the inputs of the scheduler-profile context.
func (q *Queue) History() (scores, efs []float64) {
	for _, it := range q.Items() {
		scores = append(scores, it.LastScore)
		efs = append(efs, it.EasinessFactor)
	}
	return scores, efs
}

// Clone deep-copies q.
func (q *Queue) Clone() *Queue {
	out := NewQueue()
	for id, it := range q.items {
		cp := *it
		out.items[id] = &cp
	}
	return out
}

// #endregion lookups

// #region due

// Due returns items whose next review is at or before now, most urgent first.
// Urgency is overdue days / max(interval, 1). limit <= 0 returns all.
func (q *Queue) Due(now time.Time, limit int) []DueItem {
	due := []DueItem{}
	for _, it := range q.items {
		if it.NextReview.After(now) {
			continue
		}
		overdue := toDays(now.Sub(it.NextReview))
		due = append(due, DueItem{
			ConceptID:      it.ConceptID,
			OverdueDays:    overdue,
			Urgency:        overdue / math.Max(it.IntervalDays, 1.0),
			LastScore:      it.LastScore,
			EasinessFactor: it.EasinessFactor,
			Repetitions:    it.Repetitions,
		})
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Urgency != due[j].Urgency {
			return due[i].Urgency > due[j].Urgency
		}
		return due[i].ConceptID < due[j].ConceptID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due
}

// HasUrgent reports whether the most urgent due item exceeds UrgentThreshold.
func (q *Queue) HasUrgent(now time.Time) bool {
	due := q.Due(now, 1)
	return len(due) > 0 && due[0].Urgency > UrgentThreshold
}

// #endregion due

// #region retention

// RetentionAt is exp(-daysSince/max(stability, 0.1)).
func RetentionAt(daysSince, stability float64) float64 {
	return math.Exp(-daysSince / math.Max(stability, 0.1))
}

// Retention returns the forgetting-curve view of conceptID.
func (q *Queue) Retention(conceptID string, now time.Time) (RetentionInfo, bool) {
	it, ok := q.items[conceptID]
	if !ok {
		return RetentionInfo{ConceptID: conceptID}, false
	}
	since := math.Max(0, toDays(now.Sub(it.LastReview())))
	return RetentionInfo{
		ConceptID:      conceptID,
		Retention:      RetentionAt(since, it.Stability()),
		Stability:      it.Stability(),
		DaysSince:      since,
		IntervalDays:   it.IntervalDays,
		EasinessFactor: it.EasinessFactor,
	}, true
}

// #endregion retention

// #region summary

// Summary reports totals, the top five due items and the next ten upcoming.
func (q *Queue) Summary(now time.Time) Summary {
	due := q.Due(now, 0)
	upcoming := []Upcoming{}
	for _, it := range q.items {
		if !it.NextReview.After(now) {
			continue
		}
		upcoming = append(upcoming, Upcoming{
			ConceptID:      it.ConceptID,
			DaysUntil:      toDays(it.NextReview.Sub(now)),
			EasinessFactor: it.EasinessFactor,
		})
	}
	sort.Slice(upcoming, func(i, j int) bool {
		if upcoming[i].DaysUntil != upcoming[j].DaysUntil {
			return upcoming[i].DaysUntil < upcoming[j].DaysUntil
		}
		return upcoming[i].ConceptID < upcoming[j].ConceptID
	})

	s := Summary{Total: len(q.items), DueNow: len(due), Due: due, Upcoming: upcoming}
	if len(s.Due) > 5 {
		s.Due = s.Due[:5]
	}
	if len(s.Upcoming) > 10 {
		s.Upcoming = s.Upcoming[:10]
	}
	return s
}

// AtRisk lists items due within daysAhead days, soonest first.
func (q *Queue) AtRisk(now time.Time, daysAhead int) []AtRiskItem {
	cutoff := now.Add(time.Duration(daysAhead) * 24 * time.Hour)
	out := []AtRiskItem{}
	for _, it := range q.items {
		if it.NextReview.After(cutoff) {
			continue
		}
		until := int(math.Floor(toDays(it.NextReview.Sub(now))))
		out = append(out, AtRiskItem{
			ConceptID:    it.ConceptID,
			DaysUntilDue: max(0, until),
			Overdue:      it.NextReview.Before(now),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DaysUntilDue != out[j].DaysUntilDue {
			return out[i].DaysUntilDue < out[j].DaysUntilDue
		}
		return out[i].ConceptID < out[j].ConceptID
	})
	return out
}

// #endregion summary
