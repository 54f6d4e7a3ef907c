package eval

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/adaptive-tutor/internal/bandit"
	"github.com/danielpatrickdp/adaptive-tutor/internal/policy"
	"github.com/danielpatrickdp/adaptive-tutor/internal/review"
)

// #region eval-harness
// EvalHarness runs lightweight post-update validation on a learner's policy
// and review queue.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run validates p and q. A nil queue is treated as empty.
func (h *EvalHarness) Run(p *policy.State, q *review.Queue) EvalResult {
	var metrics []EvalMetric
	passed := true
	var failReasons []string

	check := func(m EvalMetric, reason string) {
		metrics = append(metrics, m)
		if !m.Pass {
			passed = false
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Q-values finite and bounded
	qMax := maxAbsQ(p.Action)
	check(EvalMetric{Name: "q_max_abs", Value: qMax, Pass: !math.IsNaN(qMax) && qMax <= h.config.MaxQMagnitude},
		fmt.Sprintf("q magnitude %.4f exceeds %.4f", qMax, h.config.MaxQMagnitude))

	// 2. Strategy posteriors never below the uniform prior
	betaMin := minBeta(p.Strategy, h.config.MinBeta)
	check(EvalMetric{Name: "beta_min", Value: betaMin, Pass: betaMin >= h.config.MinBeta},
		fmt.Sprintf("beta parameter %.4f below %.4f", betaMin, h.config.MinBeta))

	// 3. Bandit tables: non-negative counts, finite totals
	bad := invalidStats(p.Difficulty.Difficulty, p.Difficulty.Threshold, p.Difficulty.Retest, p.Engagement.Profiles, p.Scheduler.Profiles)
	check(EvalMetric{Name: "invalid_table_entries", Value: float64(bad), Pass: bad == 0},
		fmt.Sprintf("%d invalid bandit table entries", bad))

	// 4. Review easiness floor and sane intervals
	efMin, badIntervals := reviewBounds(q, h.config.MinEF)
	check(EvalMetric{Name: "review_min_ef", Value: efMin, Pass: efMin >= h.config.MinEF},
		fmt.Sprintf("review easiness %.4f below %.4f", efMin, h.config.MinEF))
	check(EvalMetric{Name: "review_bad_intervals", Value: float64(badIntervals), Pass: badIntervals == 0},
		fmt.Sprintf("%d review items with invalid intervals", badIntervals))

	// 5. Strategy spread: informational, does not fail
	spread := strategySpread(p.Strategy)
	metrics = append(metrics, EvalMetric{
		Name:  "strategy_spread",
		Value: spread,
		Pass:  spread <= h.config.SpreadBaseline,
	})

	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
// maxAbsQ returns the largest |Q|, or NaN if any value is not finite.
func maxAbsQ(q *policy.QLearner) float64 {
	var m float64
	for _, row := range q.Q {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return math.NaN()
			}
			m = math.Max(m, math.Abs(v))
		}
	}
	return m
}

func minBeta(b *policy.StrategyBandit, floor float64) float64 {
	if len(b.Arms) == 0 {
		return floor
	}
	m := math.Inf(1)
	for _, arm := range b.Arms {
		m = math.Min(m, math.Min(arm.Alpha, arm.Beta))
	}
	return m
}

func invalidStats(tables ...bandit.Entries) int {
	n := 0
	for _, t := range tables {
		for _, arms := range t {
			for _, s := range arms {
				if s.Count < 0 || math.IsNaN(s.Total) || math.IsInf(s.Total, 0) {
					n++
				}
			}
		}
	}
	return n
}

// reviewBounds returns the lowest easiness factor (floor for an empty queue)
// and the number of items with a non-positive or non-finite interval.
func reviewBounds(q *review.Queue, floor float64) (float64, int) {
	if q == nil || q.Len() == 0 {
		return floor, 0
	}
	m, bad := math.Inf(1), 0
	for _, it := range q.Items() {
		m = math.Min(m, it.EasinessFactor)
		if !(it.IntervalDays > 0) || math.IsInf(it.IntervalDays, 0) {
			bad++
		}
	}
	return m, bad
}

// strategySpread is the population standard deviation of arm posterior means.
func strategySpread(b *policy.StrategyBandit) float64 {
	means := make([]float64, 0, len(b.Arms))
	for _, arm := range b.Arms {
		means = append(means, arm.Expected())
	}
	if len(means) < 2 {
		return 0
	}
	_, std := stat.PopMeanStdDev(means, nil)
	return std
}

// #endregion helpers
