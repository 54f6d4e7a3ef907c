package gate

import (
	"fmt"
	"math"
	"strings"

	"github.com/danielpatrickdp/adaptive-tutor/internal/update"
)

// ConceptSet answers whether a concept id exists. *graph.Graph satisfies it.
type ConceptSet interface {
	Has(id string) bool
}

// #region gate
// Gate decides whether an outcome event may update a learner's policy.
// Rejected events never reach the update function.
type Gate struct {
	config   GateConfig
	concepts ConceptSet
}

// NewGate creates a gate with the given configuration. A nil concepts set
// disables the unknown-concept veto.
func NewGate(config GateConfig, concepts ConceptSet) *Gate {
	return &Gate{config: config, concepts: concepts}
}

// Evaluate checks hard vetoes first, then scores soft signals.
func (g *Gate) Evaluate(ev update.Event) GateDecision {
	var vetoes []VetoSignal

	// 1. Score must be a finite value in [0, 1]
	if !unit(ev.Score) {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoInvalidScore,
			Reason: fmt.Sprintf("score %v outside [0, 1]", ev.Score),
		})
	}

	// 2. Self-reported confidence likewise
	if !unit(ev.Confidence) {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoInvalidConfidence,
			Reason: fmt.Sprintf("confidence %v outside [0, 1]", ev.Confidence),
		})
	}

	// 3. Concept must exist in the graph
	if strings.TrimSpace(ev.ConceptID) == "" {
		vetoes = append(vetoes, VetoSignal{Type: VetoUnknownConcept, Reason: "empty concept id"})
	} else if g.concepts != nil && !g.concepts.Has(ev.ConceptID) {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoUnknownConcept,
			Reason: fmt.Sprintf("concept %q not in graph", ev.ConceptID),
		})
	}

	// 4. Strategy must be named
	if strings.TrimSpace(ev.Strategy) == "" {
		vetoes = append(vetoes, VetoSignal{Type: VetoMissingStrategy, Reason: "strategy not set"})
	}

	// 5. Difficulty within the tier range
	if ev.Difficulty < g.config.MinDifficulty || ev.Difficulty > g.config.MaxDifficulty {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoInvalidDifficulty,
			Reason: fmt.Sprintf("difficulty %d outside %d..%d", ev.Difficulty, g.config.MinDifficulty, g.config.MaxDifficulty),
		})
	}

	// 6. Profile indices, when present, must index the built-in tables
	if ev.EngagementProfile != nil && !index(*ev.EngagementProfile, g.config.EngagementProfiles) {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoInvalidProfile,
			Reason: fmt.Sprintf("engagement profile %d out of range", *ev.EngagementProfile),
		})
	}
	if ev.SchedulerProfile != nil && !index(*ev.SchedulerProfile, g.config.SchedulerProfiles) {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoInvalidProfile,
			Reason: fmt.Sprintf("scheduler profile %d out of range", *ev.SchedulerProfile),
		})
	}

	// 7. Misconception list length
	if g.config.MaxMisconceptions > 0 && len(ev.MisconceptionIDs) > g.config.MaxMisconceptions {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoMisconceptionCap,
			Reason: fmt.Sprintf("%d misconceptions exceeds cap %d", len(ev.MisconceptionIDs), g.config.MaxMisconceptions),
		})
	}

	if len(vetoes) > 0 {
		return GateDecision{
			Action:      "reject",
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
			SoftScore:   0,
		}
	}

	softScore := computeSoftScore(ev)

	return GateDecision{
		Action:      "commit",
		Reason:      fmt.Sprintf("passed gate: soft_score=%.4f", softScore),
		Vetoed:      false,
		VetoSignals: nil,
		SoftScore:   softScore,
	}
}

// #endregion gate

// #region helpers
func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func index(i, n int) bool {
	return i >= 0 && i < n
}

// computeSoftScore is 1 - |confidence - score|: how well the learner judged
// their own answer. Logged only.
func computeSoftScore(ev update.Event) float64 {
	return 1 - math.Abs(ev.Confidence-ev.Score)
}

// #endregion helpers
