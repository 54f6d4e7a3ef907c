package eval

import "github.com/danielpatrickdp/adaptive-tutor/internal/review"

// #region eval-config
// EvalConfig holds thresholds for post-update validation.
type EvalConfig struct {
	MaxQMagnitude  float64 // reject if any |Q| exceeds this
	MinBeta        float64 // reject if any strategy Beta parameter drops below this
	MinEF          float64 // reject if any review item's easiness falls below this
	SpreadBaseline float64 // warn if strategy means spread wider than this
}

// DefaultEvalConfig returns thresholds matching the built-in tables.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MaxQMagnitude:  1e4,
		MinBeta:        1.0,
		MinEF:          lowestMinEF(),
		SpreadBaseline: 0.35,
	}
}

func lowestMinEF() float64 {
	lowest := review.Profiles[0].MinEF
	for _, p := range review.Profiles[1:] {
		if p.MinEF < lowest {
			lowest = p.MinEF
		}
	}
	return lowest
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of post-update validation.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// #endregion eval-result
