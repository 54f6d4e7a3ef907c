// Package bandit holds the contextual epsilon-greedy table shared by every
// fixed-candidate learner in the policy layer.
package bandit

import (
	"math"
	"math/rand/v2"
)

const (
	epsilonStart = 0.20
	epsilonFloor = 0.05
	epsilonDrop  = 0.15
	decayUpdates = 200.0
)

// #region stat

// Stat accumulates reward for one (context, arm) pair.
type Stat struct {
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

// Mean is Total/Count, zero for an unobserved arm.
func (s Stat) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Total / float64(s.Count)
}

// Entries maps context key -> arm key -> Stat. Absent keys are implicit priors.
type Entries map[string]map[string]Stat

// Clone deep-copies e.
func (e Entries) Clone() Entries {
	out := make(Entries, len(e))
	for ctx, arms := range e {
		inner := make(map[string]Stat, len(arms))
		for k, v := range arms {
			inner[k] = v
		}
		out[ctx] = inner
	}
	return out
}

// Observations sums Count over every entry.
func (e Entries) Observations() int {
	n := 0
	for _, arms := range e {
		for _, s := range arms {
			n += s.Count
		}
	}
	return n
}

// #endregion stat

// #region epsilon

// Epsilon is the exploration rate after updates updates:
// max(0.05, 0.20 - 0.15*min(updates/200, 1)).
func Epsilon(updates int) float64 {
	frac := math.Min(float64(updates)/decayUpdates, 1.0)
	return math.Max(epsilonFloor, epsilonStart-epsilonDrop*frac)
}

// #endregion epsilon

// #region table

// Table is a contextual epsilon-greedy bandit over a fixed candidate list.
// C is the raw context, K the candidate type. The learned state lives in
// Entries so one Table definition serves every learner.
type Table[C any, K comparable] struct {
	Arms       []K
	Default    K
	ArmKey     func(K) string
	ContextKey func(C) string
}

// Best returns the candidate with the highest mean reward for ctx. Ties keep
// the earlier candidate. Returns Default when nothing has been observed.
func (t Table[C, K]) Best(entries Entries, ctx C) K {
	arms, ok := entries[t.ContextKey(ctx)]
	if !ok || len(arms) == 0 {
		return t.Default
	}
	best := t.Default
	bestMean := math.Inf(-1)
	found := false
	for _, arm := range t.Arms {
		s, ok := arms[t.ArmKey(arm)]
		if !ok || s.Count == 0 {
			continue
		}
		if m := s.Mean(); !found || m > bestMean {
			best, bestMean, found = arm, m, true
		}
	}
	return best
}

// Select explores uniformly with probability epsilon, otherwise returns Best.
func (t Table[C, K]) Select(entries Entries, ctx C, epsilon float64, rng *rand.Rand) K {
	if len(t.Arms) > 0 && rng != nil && rng.Float64() < epsilon {
		return t.Arms[rng.IntN(len(t.Arms))]
	}
	return t.Best(entries, ctx)
}

// Update adds reward to the (ctx, arm) entry, creating it on first use.
func (t Table[C, K]) Update(entries Entries, ctx C, arm K, reward float64) {
	key := t.ContextKey(ctx)
	arms, ok := entries[key]
	if !ok {
		arms = make(map[string]Stat)
		entries[key] = arms
	}
	s := arms[t.ArmKey(arm)]
	s.Total += reward
	s.Count++
	arms[t.ArmKey(arm)] = s
}

// Means returns the mean reward of every observed arm for ctx, keyed by arm key.
func (t Table[C, K]) Means(entries Entries, ctx C) map[string]float64 {
	out := make(map[string]float64)
	for k, s := range entries[t.ContextKey(ctx)] {
		if s.Count > 0 {
			out[k] = s.Mean()
		}
	}
	return out
}

// #endregion table
