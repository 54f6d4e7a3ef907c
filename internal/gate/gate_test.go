package gate

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/adaptive-tutor/internal/update"
)

type conceptSet map[string]bool

func (c conceptSet) Has(id string) bool { return c[id] }

func makeEvent() update.Event {
	return update.Event{
		ConceptID:  "loops",
		Score:      0.8,
		Confidence: 0.7,
		Strategy:   "socratic",
		Difficulty: 2,
	}
}

func newTestGate() *Gate {
	return NewGate(DefaultGateConfig(), conceptSet{"loops": true})
}

func TestGateCommitOnCleanEvent(t *testing.T) {
	decision := newTestGate().Evaluate(makeEvent())

	if decision.Action != "commit" {
		t.Fatalf("expected commit, got %s: %s", decision.Action, decision.Reason)
	}
	if decision.Vetoed {
		t.Fatal("should not be vetoed")
	}
}

func TestGateVetoes(t *testing.T) {
	bad := 7
	tests := []struct {
		name   string
		mutate func(*update.Event)
		want   VetoType
	}{
		{"nan score", func(e *update.Event) { e.Score = math.NaN() }, VetoInvalidScore},
		{"score above one", func(e *update.Event) { e.Score = 1.2 }, VetoInvalidScore},
		{"negative score", func(e *update.Event) { e.Score = -0.1 }, VetoInvalidScore},
		{"inf confidence", func(e *update.Event) { e.Confidence = math.Inf(1) }, VetoInvalidConfidence},
		{"unknown concept", func(e *update.Event) { e.ConceptID = "quantum" }, VetoUnknownConcept},
		{"empty concept", func(e *update.Event) { e.ConceptID = " " }, VetoUnknownConcept},
		{"empty strategy", func(e *update.Event) { e.Strategy = "" }, VetoMissingStrategy},
		{"difficulty zero", func(e *update.Event) { e.Difficulty = 0 }, VetoInvalidDifficulty},
		{"difficulty four", func(e *update.Event) { e.Difficulty = 4 }, VetoInvalidDifficulty},
		{"engagement profile", func(e *update.Event) { e.EngagementProfile = &bad }, VetoInvalidProfile},
		{"scheduler profile", func(e *update.Event) { e.SchedulerProfile = &bad }, VetoInvalidProfile},
		{"misconception cap", func(e *update.Event) { e.MisconceptionIDs = make([]string, 21) }, VetoMisconceptionCap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := makeEvent()
			tt.mutate(&ev)

			decision := newTestGate().Evaluate(ev)

			if decision.Action != "reject" {
				t.Fatalf("expected reject, got %s", decision.Action)
			}
			if !decision.Vetoed {
				t.Fatal("should be vetoed")
			}
			if decision.VetoSignals[0].Type != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, decision.VetoSignals[0].Type)
			}
			if decision.SoftScore != 0 {
				t.Fatalf("rejected events carry no soft score, got %.4f", decision.SoftScore)
			}
		})
	}
}

func TestGateMultipleVetoes(t *testing.T) {
	ev := makeEvent()
	ev.Score = math.NaN()
	ev.Strategy = ""

	decision := newTestGate().Evaluate(ev)

	if len(decision.VetoSignals) < 2 {
		t.Fatalf("expected at least 2 veto signals, got %d", len(decision.VetoSignals))
	}
}

func TestGateNilConceptSetSkipsLookup(t *testing.T) {
	ev := makeEvent()
	ev.ConceptID = "anything"

	decision := NewGate(DefaultGateConfig(), nil).Evaluate(ev)

	if decision.Vetoed {
		t.Fatalf("unexpected veto: %s", decision.Reason)
	}
}

func TestGateValidProfilesPass(t *testing.T) {
	first, last := 0, 4
	ev := makeEvent()
	ev.EngagementProfile = &first
	ev.SchedulerProfile = &last

	decision := newTestGate().Evaluate(ev)

	if decision.Vetoed {
		t.Fatalf("unexpected veto: %s", decision.Reason)
	}
}

func TestSoftScore(t *testing.T) {
	tests := []struct {
		name             string
		score, confident float64
		want             float64
	}{
		{"perfect calibration", 0.6, 0.6, 1.0},
		{"overconfident", 0.2, 0.9, 0.3},
		{"underconfident", 1.0, 0.0, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := makeEvent()
			ev.Score, ev.Confidence = tt.score, tt.confident
			got := computeSoftScore(ev)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %.4f, got %.4f", tt.want, got)
			}
			if got < 0 || got > 1 {
				t.Errorf("soft score %.4f out of [0, 1] range", got)
			}
		})
	}
}
