package logging

import (
	"testing"
	"time"
)

func newMemory(t *testing.T) *StrategyMemory {
	t.Helper()
	mem, err := NewStrategyMemory(setupDB(t))
	if err != nil {
		t.Fatal(err)
	}
	return mem
}

func record(t *testing.T, mem *StrategyMemory, strategy string, score float64, accepted bool, at time.Time) {
	t.Helper()
	err := mem.Record(StrategyOutcome{
		LearnerID: "alice", ConceptID: "loops", Strategy: strategy,
		Score: score, Outcome: "retest", Accepted: accepted, CreatedAt: at,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStrategyMemory_RecordAndQuery(t *testing.T) {
	mem := newMemory(t)

	// No data → empty result
	best, _, err := mem.BestStrategy("alice", "loops", t0)
	if err != nil {
		t.Fatal(err)
	}
	if best != "" {
		t.Errorf("expected empty strategy, got %q", best)
	}

	// 2 samples → still below threshold of 3
	record(t, mem, "analogy", 0.8, true, t0)
	record(t, mem, "analogy", 0.8, true, t0)
	best, _, _ = mem.BestStrategy("alice", "loops", t0)
	if best != "" {
		t.Errorf("expected empty (below threshold), got %q", best)
	}

	// 3rd sample → analogy
	record(t, mem, "analogy", 0.9, true, t0)
	best, score, err := mem.BestStrategy("alice", "loops", t0)
	if err != nil {
		t.Fatal(err)
	}
	if best != "analogy" {
		t.Errorf("expected analogy, got %q", best)
	}
	if score < 0.8 || score > 0.9 {
		t.Errorf("expected score in [0.8, 0.9], got %.3f", score)
	}

	// other learners and concepts see nothing
	if best, _, _ := mem.BestStrategy("bob", "loops", t0); best != "" {
		t.Errorf("expected no data for bob, got %q", best)
	}
}

func TestStrategyMemory_PicksHigherScoreAndSkipsRejected(t *testing.T) {
	mem := newMemory(t)
	for i := 0; i < 3; i++ {
		record(t, mem, "socratic", 0.4, true, t0)
		record(t, mem, "worked_examples", 0.7, true, t0)
		record(t, mem, "analogy", 1.0, false, t0)
	}

	best, _, _ := mem.BestStrategy("alice", "loops", t0)
	if best != "worked_examples" {
		t.Errorf("expected worked_examples, got %q", best)
	}
}

func TestStrategyMemory_RecentOutweighsOld(t *testing.T) {
	mem := newMemory(t)
	old := t0.Add(-60 * 24 * time.Hour)
	// socratic: strong long ago, weak lately
	record(t, mem, "socratic", 1.0, true, old)
	record(t, mem, "socratic", 1.0, true, old)
	record(t, mem, "socratic", 0.2, true, t0)
	for i := 0; i < 3; i++ {
		record(t, mem, "explain_back", 0.6, true, t0)
	}

	best, score, _ := mem.BestStrategy("alice", "loops", t0)
	if best != "explain_back" {
		t.Errorf("expected explain_back, got %q (%.3f)", best, score)
	}
}
