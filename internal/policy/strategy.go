package policy

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/adaptive-tutor/internal/bandit"
)

// Strategies is the canonical teaching-strategy arm order.
var Strategies = []string{"socratic", "worked_examples", "analogy", "debugging_exercise", "explain_back"}

// #region config

// ExclusionConfig tunes StrategyBandit.ExclusionSet.
type ExclusionConfig struct {
	// MinTrials is the Alpha+Beta an arm must exceed to be judged.
	MinTrials float64
	// Floor is the absolute expected value below which a judged arm is always excluded.
	Floor float64
}

// DefaultExclusionConfig returns the standard exclusion thresholds.
func DefaultExclusionConfig() ExclusionConfig {
	return ExclusionConfig{MinTrials: 3, Floor: 0.15}
}

// #endregion config

// #region bandit

// StrategyBandit is a Thompson-sampling bandit over teaching strategies.
type StrategyBandit struct {
	Arms map[string]bandit.Beta `json:"arms"`
}

// NewStrategyBandit starts every canonical strategy at Beta(1,1).
func NewStrategyBandit() *StrategyBandit {
	b := &StrategyBandit{Arms: make(map[string]bandit.Beta, len(Strategies))}
	for _, s := range Strategies {
		b.Arms[s] = bandit.NewBeta()
	}
	return b
}

// names returns canonical strategies first, then any extra arms sorted.
func (b *StrategyBandit) names() []string {
	out := make([]string, 0, len(b.Arms))
	canon := make(map[string]struct{}, len(Strategies))
	for _, s := range Strategies {
		canon[s] = struct{}{}
		if _, ok := b.Arms[s]; ok {
			out = append(out, s)
		}
	}
	var extra []string
	for s := range b.Arms {
		if _, ok := canon[s]; !ok {
			extra = append(extra, s)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Select draws once per non-excluded arm and returns the highest draw. A nil
// rng picks the highest posterior mean.
// If every arm is excluded the exclusion is ignored.
func (b *StrategyBandit) Select(exclude []string, rng *rand.Rand) string {
	skip := make(map[string]struct{}, len(exclude))
	for _, s := range exclude {
		skip[s] = struct{}{}
	}
	names := b.names()
	candidates := names[:0:0]
	for _, s := range names {
		if _, ok := skip[s]; !ok {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		candidates = names
	}
	if len(candidates) == 0 {
		return Strategies[0]
	}

	best, bestDraw := candidates[0], -1.0
	for _, s := range candidates {
		// nil rng: exploit the posterior mean instead of sampling
		draw := b.Arms[s].Expected()
		if rng != nil {
			draw = b.Arms[s].Sample(rng)
		}
		if draw > bestDraw {
			best, bestDraw = s, draw
		}
	}
	return best
}

// Best returns the arm with the highest posterior mean. Ties keep canonical order.
func (b *StrategyBandit) Best() string {
	best, bestEV := Strategies[0], -1.0
	for _, s := range b.names() {
		if ev := b.Arms[s].Expected(); ev > bestEV {
			best, bestEV = s, ev
		}
	}
	return best
}

// Update folds score into strategy's posterior, adding the arm if new.
func (b *StrategyBandit) Update(strategy string, score float64) {
	if b.Arms == nil {
		b.Arms = make(map[string]bandit.Beta)
	}
	arm, ok := b.Arms[strategy]
	if !ok {
		arm = bandit.NewBeta()
	}
	arm.Observe(clamp01(score))
	b.Arms[strategy] = arm
}

// ExclusionSet returns judged arms whose expected value falls below
// max(cfg.Floor, mean - population stddev). Needs at least two judged arms.
func (b *StrategyBandit) ExclusionSet(cfg ExclusionConfig) []string {
	var names []string
	var evs []float64
	for _, s := range b.names() {
		arm := b.Arms[s]
		if arm.Trials() > cfg.MinTrials {
			names = append(names, s)
			evs = append(evs, arm.Expected())
		}
	}
	if len(evs) < 2 {
		return nil
	}
	mean, std := stat.PopMeanStdDev(evs, nil)
	threshold := max(cfg.Floor, mean-std)

	var out []string
	for i, ev := range evs {
		if ev < threshold {
			out = append(out, names[i])
		}
	}
	return out
}

// #endregion bandit
