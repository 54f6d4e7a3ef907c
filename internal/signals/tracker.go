// Package signals tracks in-session engagement and labels it.
package signals

import "time"

const (
	failScore    = 0.4
	successScore = 0.7
	recentWindow = 3
)

// #region tracker

// Tracker accumulates one session's interaction history.
// Not safe for concurrent use.
type Tracker struct {
	start         time.Time
	last          time.Time
	responseTimes []float64
	answerLengths []int
	scores        []float64
	failures      int
	successes     int
}

// NewTracker starts a session at start.
func NewTracker(start time.Time) *Tracker {
	return &Tracker{start: start, last: start}
}

// Record folds one interaction into the history. Response time is measured
// from the previous interaction (or session start).
func (t *Tracker) Record(in Interaction) {
	rt := in.At.Sub(t.last).Seconds()
	if rt < 0 {
		rt = 0
	}
	t.responseTimes = append(t.responseTimes, rt)
	if in.At.After(t.last) {
		t.last = in.At
	}
	t.answerLengths = append(t.answerLengths, max(0, in.AnswerChars))

	if in.Score == nil {
		return
	}
	s := *in.Score
	t.scores = append(t.scores, s)
	switch {
	case s < failScore:
		t.failures++
		t.successes = 0
	case s >= successScore:
		t.successes++
		t.failures = 0
	default:
		// partial credit eases the failure streak without resetting it
		t.failures = max(0, t.failures-1)
	}
}

// Scores returns graded scores, oldest first.
func (t *Tracker) Scores() []float64 { return append([]float64(nil), t.scores...) }

// ResponseTimes returns response times in seconds, oldest first.
func (t *Tracker) ResponseTimes() []float64 { return append([]float64(nil), t.responseTimes...) }

// ConsecutiveFailures is the current failure streak.
func (t *Tracker) ConsecutiveFailures() int { return t.failures }

// ConsecutiveSuccesses is the current success streak.
func (t *Tracker) ConsecutiveSuccesses() int { return t.successes }

// SessionMinutes is the elapsed session time at now.
func (t *Tracker) SessionMinutes(now time.Time) float64 {
	return now.Sub(t.start).Minutes()
}

// #endregion tracker

// #region detect

// Detect labels the session under profile p. Rules are checked in order:
// frustrated, bored, flow, disengaged, then neutral.
func (t *Tracker) Detect(p Profile, now time.Time) State {
	if t.failures >= p.FrustrationFailures {
		return StateFrustrated
	}
	if t.failures >= max(1, p.FrustrationFailures-1) && len(t.answerLengths) > 0 {
		for _, n := range tail(t.answerLengths, recentWindow) {
			if n < p.ShortAnswerChars {
				return StateFrustrated
			}
		}
	}

	if t.successes >= recentWindow && len(t.responseTimes) >= recentWindow {
		recent := tail(t.responseTimes, recentWindow)
		if all(recent, func(v float64) bool { return v < p.BoredSpeed }) {
			return StateBored
		}
		if all(recent, func(v float64) bool { return v >= p.FlowMin && v <= p.FlowMax }) {
			return StateFlow
		}
	}

	if t.SessionMinutes(now) > p.SessionMaxMinutes && len(t.scores) >= recentWindow {
		recent := mean(tail(t.scores, recentWindow))
		earlier := mean(t.scores[:recentWindow])
		if recent < earlier+p.DeclineThreshold {
			return StateDisengaged
		}
	}
	return StateNeutral
}

// #endregion detect

func tail[T any](xs []T, n int) []T {
	if len(xs) > n {
		return xs[len(xs)-n:]
	}
	return xs
}

func all(xs []float64, pred func(float64) bool) bool {
	for _, x := range xs {
		if !pred(x) {
			return false
		}
	}
	return true
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
