package review

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrInvalidScore is returned for NaN or infinite scores.
	ErrInvalidScore = errors.New("review: invalid score")
	// ErrCorruptQueue marks a serialized queue that cannot be decoded.
	ErrCorruptQueue = errors.New("review: corrupt queue")
)

// #region profile

// Profile is one SM-2 parameter tuple. The scheduler-profile bandit picks
// among Profiles by index.
type Profile struct {
	Name          string
	InitialEF     float64
	MinEF         float64
	A, B, C       float64
	MisconPenalty float64
	ResetInterval float64
}

// Profiles is the fixed SM-2 profile set. Index 0 is classic SM-2.
var Profiles = []Profile{
	{Name: "standard", InitialEF: 2.5, MinEF: 1.3, A: 0.10, B: 0.08, C: 0.02, MisconPenalty: 0.15, ResetInterval: 1.0},
	{Name: "aggressive", InitialEF: 2.3, MinEF: 1.2, A: 0.12, B: 0.10, C: 0.03, MisconPenalty: 0.20, ResetInterval: 0.5},
	{Name: "gentle", InitialEF: 2.7, MinEF: 1.4, A: 0.08, B: 0.06, C: 0.01, MisconPenalty: 0.10, ResetInterval: 1.5},
	{Name: "high_misconception_penalty", InitialEF: 2.5, MinEF: 1.3, A: 0.10, B: 0.08, C: 0.02, MisconPenalty: 0.25, ResetInterval: 1.0},
	{Name: "moderate_aggressive", InitialEF: 2.4, MinEF: 1.2, A: 0.11, B: 0.09, C: 0.025, MisconPenalty: 0.15, ResetInterval: 0.75},
}

// DefaultProfile indexes the classic SM-2 profile.
const DefaultProfile = 0

// ProfileAt returns Profiles[i], or the default for an out-of-range index.
func ProfileAt(i int) Profile {
	if i < 0 || i >= len(Profiles) {
		return Profiles[DefaultProfile]
	}
	return Profiles[i]
}

// #endregion profile

// #region item

// Item is the review record of one mastered concept.
type Item struct {
	ConceptID      string    `json:"concept_id"`
	EasinessFactor float64   `json:"easiness_factor"`
	Repetitions    int       `json:"repetition_count"`
	IntervalDays   float64   `json:"interval_days"`
	NextReview     time.Time `json:"next_review"`
	LastScore      float64   `json:"last_score"`
	Misconceptions int       `json:"misconception_count"`
}

// LastReview reconstructs when the item was last reviewed.
func (it Item) LastReview() time.Time {
	return it.NextReview.Add(-days(it.IntervalDays))
}

// Stability is interval * EF, the time constant of the forgetting curve.
func (it Item) Stability() float64 {
	return it.IntervalDays * it.EasinessFactor
}

// #endregion item

// #region views

// DueItem is one entry of Queue.Due.
type DueItem struct {
	ConceptID      string  `json:"concept_id"`
	OverdueDays    float64 `json:"overdue_days"`
	Urgency        float64 `json:"urgency"`
	LastScore      float64 `json:"last_score"`
	EasinessFactor float64 `json:"easiness_factor"`
	Repetitions    int     `json:"repetition_count"`
}

// RetentionInfo is the forgetting-curve view of one item.
type RetentionInfo struct {
	ConceptID      string  `json:"concept_id"`
	Retention      float64 `json:"retention"`
	Stability      float64 `json:"stability"`
	DaysSince      float64 `json:"days_since_review"`
	IntervalDays   float64 `json:"interval_days"`
	EasinessFactor float64 `json:"easiness_factor"`
}

// Upcoming is a not-yet-due item.
type Upcoming struct {
	ConceptID      string  `json:"concept_id"`
	DaysUntil      float64 `json:"days_until"`
	EasinessFactor float64 `json:"easiness_factor"`
}

// Summary is the queue overview.
type Summary struct {
	Total    int        `json:"total_items"`
	DueNow   int        `json:"due_now"`
	Due      []DueItem  `json:"due_reviews"`
	Upcoming []Upcoming `json:"upcoming"`
}

// AtRiskItem is an item coming due within a horizon.
type AtRiskItem struct {
	ConceptID    string `json:"concept_id"`
	DaysUntilDue int    `json:"days_until_due"`
	Overdue      bool   `json:"overdue"`
}

// #endregion views

func days(d float64) time.Duration {
	return time.Duration(math.Min(d, maxIntervalDays) * float64(24*time.Hour))
}

func toDays(d time.Duration) float64 {
	return d.Hours() / 24
}
