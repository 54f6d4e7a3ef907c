package replay

import (
	"slices"

	"github.com/danielpatrickdp/adaptive-tutor/internal/learner"
	"github.com/danielpatrickdp/adaptive-tutor/internal/update"
)

// ApplyOutcome folds an accepted outcome into the learner's mastery record,
// the way the tutoring service does between decisions.
func ApplyOutcome(snap *learner.Snapshot, ev update.Event, outcome update.Outcome) {
	if snap.Concepts == nil {
		snap.Concepts = make(map[string]*learner.ConceptMastery)
	}
	cm, ok := snap.Concepts[ev.ConceptID]
	if !ok || cm == nil {
		cm = &learner.ConceptMastery{ConceptID: ev.ConceptID, Status: learner.StatusUnknown}
		snap.Concepts[ev.ConceptID] = cm
	}

	at := ev.At
	cm.TestResults = append(cm.TestResults, learner.TestResult{
		Score:          ev.Score,
		Timestamp:      at,
		DifficultyTier: ev.Difficulty,
		Misconceptions: slices.Clone(ev.MisconceptionIDs),
		Confidence:     ev.Confidence,
	})
	cm.MasteryScore = ev.Score
	cm.CalibrationGap = ev.Confidence - ev.Score

	if cm.StrategyScores == nil {
		cm.StrategyScores = make(map[string]float64)
	}
	if prev, ok := cm.StrategyScores[ev.Strategy]; ok {
		cm.StrategyScores[ev.Strategy] = (prev + ev.Score) / 2
	} else {
		cm.StrategyScores[ev.Strategy] = ev.Score
	}

	switch outcome {
	case update.OutcomeMastered:
		cm.Status = learner.StatusMastered
		cm.LastValidated = &at
		for _, id := range ev.MisconceptionIDs {
			if i := slices.Index(cm.MisconceptionsActive, id); i >= 0 {
				cm.MisconceptionsActive = slices.Delete(cm.MisconceptionsActive, i, i+1)
				cm.MisconceptionsResolved = append(cm.MisconceptionsResolved, id)
			}
		}
		snap.FailStreak = 0
	case update.OutcomeRetest:
		cm.Status = learner.StatusTesting
		snap.FailStreak = 0
	default:
		cm.Status = learner.StatusPracticing
		for _, id := range ev.MisconceptionIDs {
			if !slices.Contains(cm.MisconceptionsActive, id) {
				cm.MisconceptionsActive = append(cm.MisconceptionsActive, id)
			}
		}
		snap.FailStreak++
	}
}
