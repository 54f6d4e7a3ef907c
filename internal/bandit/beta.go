package bandit

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Beta is a Beta(Alpha, Beta) posterior over a success rate, starting at (1,1).
type Beta struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// NewBeta returns the uniform prior.
func NewBeta() Beta { return Beta{Alpha: 1, Beta: 1} }

// Observe folds a fractional outcome in [0,1] into the posterior.
func (b *Beta) Observe(score float64) {
	b.Alpha += score
	b.Beta += 1 - score
}

// Expected is the posterior mean.
func (b Beta) Expected() float64 { return b.Alpha / (b.Alpha + b.Beta) }

// Trials is Alpha+Beta, the prior plus observed weight.
func (b Beta) Trials() float64 { return b.Alpha + b.Beta }

// Sample draws from the posterior using src.
func (b Beta) Sample(src rand.Source) float64 {
	return distuv.Beta{Alpha: b.Alpha, Beta: b.Beta, Src: src}.Rand()
}
