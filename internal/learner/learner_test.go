package learner

import (
	"reflect"
	"testing"
)

func TestTargets(t *testing.T) {
	tests := []struct {
		name string
		snap *Snapshot
		want []string
	}{
		{"nil snapshot", nil, []string{}},
		{"no targets", &Snapshot{}, []string{}},
		{"flattened and sorted", &Snapshot{CareerTargets: [][]string{{"loops", "variables"}, {"functions"}}}, []string{"functions", "loops", "variables"}},
		{"duplicates across goals", &Snapshot{CareerTargets: [][]string{{"loops", "functions"}, {"functions", "loops"}, {"loops"}}}, []string{"functions", "loops"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.Targets(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Targets() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecentScores(t *testing.T) {
	cm := &ConceptMastery{TestResults: []TestResult{{Score: 0.2}, {Score: 0.5}, {Score: 0.9}}}

	tests := []struct {
		name string
		cm   *ConceptMastery
		n    int
		want []float64
	}{
		{"last two oldest first", cm, 2, []float64{0.5, 0.9}},
		{"fewer results than n", cm, 5, []float64{0.2, 0.5, 0.9}},
		{"exactly n", cm, 3, []float64{0.2, 0.5, 0.9}},
		{"zero n", cm, 0, nil},
		{"nil record", nil, 3, nil},
		{"no results", &ConceptMastery{}, 3, []float64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cm.RecentScores(tt.n); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("RecentScores(%d) = %#v, want %#v", tt.n, got, tt.want)
			}
		})
	}
}

func TestVelocity(t *testing.T) {
	snap := &Snapshot{DomainVelocities: map[string]float64{"python": 1.4, "sql": 0.6}}

	tests := []struct {
		name   string
		snap   *Snapshot
		domain string
		want   float64
	}{
		{"known domain", snap, "python", 1.4},
		{"slow domain", snap, "sql", 0.6},
		{"unknown domain falls back", snap, "rust", 1.0},
		{"nil map falls back", &Snapshot{}, "python", 1.0},
		{"nil snapshot falls back", nil, "python", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.Velocity(tt.domain); got != tt.want {
				t.Errorf("Velocity(%q) = %v, want %v", tt.domain, got, tt.want)
			}
		})
	}
}

func TestMasteryQueries(t *testing.T) {
	snap := &Snapshot{Concepts: map[string]*ConceptMastery{
		"variables": {ConceptID: "variables", Status: StatusMastered},
		"loops":     {ConceptID: "loops", Status: StatusPracticing, MisconceptionsActive: []string{"off_by_one", "infinite_loop"}},
		"functions": {ConceptID: "functions", Status: StatusMastered, MisconceptionsActive: []string{"scope"}},
		"broken":    nil,
	}}

	if got := snap.MasteredCount(); got != 2 {
		t.Errorf("MasteredCount() = %d, want 2", got)
	}
	if got := len(snap.Mastered()); got != 2 {
		t.Errorf("len(Mastered()) = %d, want 2", got)
	}
	if got := snap.TotalActiveMisconceptions(); got != 3 {
		t.Errorf("TotalActiveMisconceptions() = %d, want 3", got)
	}
	if got := snap.Status("broken"); got != StatusUnknown {
		t.Errorf("Status(broken) = %q, want %q", got, StatusUnknown)
	}
	if got := snap.Status("loops"); got != StatusPracticing {
		t.Errorf("Status(loops) = %q, want %q", got, StatusPracticing)
	}
	if !snap.Concepts["loops"].HasActiveMisconception("off_by_one") {
		t.Error("expected off_by_one to be active on loops")
	}
	var nilSnap *Snapshot
	if nilSnap.MasteredCount() != 0 || nilSnap.TotalActiveMisconceptions() != 0 || nilSnap.Status("loops") != StatusUnknown {
		t.Error("nil snapshot should answer empty")
	}
}
