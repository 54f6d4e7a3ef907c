package graph

import (
	"database/sql"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleConcepts() []Concept {
	return []Concept{
		{ID: "variables", Domain: "python", DifficultyTier: 1, BaseHours: 1},
		{ID: "loops", Domain: "python", DifficultyTier: 1, Prerequisites: []string{"variables"},
			Transfers: []TransferEdge{{Target: "recursion", Strength: 0.5, Kind: EdgeAnalogous}}},
		{ID: "functions", Domain: "python", DifficultyTier: 2, Prerequisites: []string{"variables"}},
		{ID: "recursion", Domain: "python", DifficultyTier: 3, Prerequisites: []string{"functions", "loops"}, BaseHours: 4},
	}
}

// #region test-add
func TestAdd(t *testing.T) {
	g := New()
	n, err := g.Add(sampleConcepts()...)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if n != 4 || g.Len() != 4 {
		t.Fatalf("expected 4 concepts, added=%d len=%d", n, g.Len())
	}

	// Duplicates are skipped, never replaced
	n, err = g.Add(Concept{ID: "loops", Domain: "other", DifficultyTier: 5})
	if err != nil {
		t.Fatalf("duplicate add: %v", err)
	}
	if n != 0 {
		t.Errorf("duplicate should not be added, got %d", n)
	}
	c, _ := g.Concept("loops")
	if c.Domain != "python" {
		t.Errorf("existing concept mutated: %+v", c)
	}

	// Defaults applied
	c, _ = g.Concept("functions")
	if c.BaseHours != defaultBaseHours || c.DecayDays != defaultDecayDays {
		t.Errorf("defaults not applied: %+v", c)
	}
}

func TestAddRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		c    Concept
	}{
		{"empty id", Concept{ID: " ", DifficultyTier: 1}},
		{"tier zero", Concept{ID: "a", DifficultyTier: 0}},
		{"tier six", Concept{ID: "a", DifficultyTier: 6}},
		{"negative hours", Concept{ID: "a", DifficultyTier: 1, BaseHours: -1}},
		{"strength above one", Concept{ID: "a", DifficultyTier: 1, Transfers: []TransferEdge{{Target: "b", Strength: 1.2}}}},
		{"nan strength", Concept{ID: "a", DifficultyTier: 1, Transfers: []TransferEdge{{Target: "b", Strength: math.NaN()}}}},
		{"nan hours", Concept{ID: "a", DifficultyTier: 1, BaseHours: math.NaN()}},
		{"infinite hours", Concept{ID: "a", DifficultyTier: 1, BaseHours: math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			_, err := g.Add(Concept{ID: "ok", DifficultyTier: 1}, tt.c)
			if !errors.Is(err, ErrInvalidConcept) {
				t.Fatalf("expected ErrInvalidConcept, got %v", err)
			}
			if g.Len() != 0 {
				t.Errorf("batch should be rejected whole, len=%d", g.Len())
			}
		})
	}
}

func TestConceptReturnsCopy(t *testing.T) {
	g := New()
	g.Add(sampleConcepts()...)
	c, _ := g.Concept("recursion")
	c.Prerequisites[0] = "mutated"
	again, _ := g.Concept("recursion")
	if again.Prerequisites[0] != "functions" {
		t.Errorf("graph shares slice with caller: %v", again.Prerequisites)
	}
}

// #endregion test-add

// #region test-closure
func TestAllPrerequisites(t *testing.T) {
	g := New()
	g.Add(sampleConcepts()...)

	got, err := g.AllPrerequisites("recursion")
	if err != nil {
		t.Fatalf("closure: %v", err)
	}
	for _, want := range []string{"functions", "loops", "variables"} {
		if _, ok := got[want]; !ok {
			t.Errorf("closure missing %s: %v", want, got)
		}
	}
	if len(got) != 3 {
		t.Errorf("expected 3 prerequisites, got %v", got)
	}

	if _, err := g.AllPrerequisites("nope"); !errors.Is(err, ErrConceptNotFound) {
		t.Errorf("expected ErrConceptNotFound, got %v", err)
	}
}

func TestClosureInvalidatedOnAdd(t *testing.T) {
	g := New()
	g.Add(Concept{ID: "b", DifficultyTier: 1, Prerequisites: []string{"a"}})

	if _, err := g.AllPrerequisites("b"); !errors.Is(err, ErrMalformedGraph) {
		t.Fatalf("dangling prerequisite should be malformed, got %v", err)
	}

	g.Add(Concept{ID: "a", DifficultyTier: 1})
	got, err := g.AllPrerequisites("b")
	if err != nil {
		t.Fatalf("closure after add: %v", err)
	}
	if _, ok := got["a"]; !ok {
		t.Errorf("closure stale after add: %v", got)
	}
}

func TestTransferEdge(t *testing.T) {
	g := New()
	g.Add(sampleConcepts()...)
	e, ok := g.TransferEdge("loops", "recursion")
	if !ok || e.Strength != 0.5 || e.Kind != EdgeAnalogous {
		t.Errorf("unexpected edge %+v ok=%v", e, ok)
	}
	if _, ok := g.TransferEdge("recursion", "loops"); ok {
		t.Error("edges are directed")
	}
	if _, ok := g.TransferEdge("nope", "loops"); ok {
		t.Error("unknown source should have no edges")
	}
}

// #endregion test-closure

// #region test-validate
func TestValidate(t *testing.T) {
	g := New()
	g.Add(sampleConcepts()...)
	if err := g.Validate(); err != nil {
		t.Fatalf("valid graph: %v", err)
	}

	cyclic := New()
	cyclic.Add(
		Concept{ID: "a", DifficultyTier: 1, Prerequisites: []string{"b"}},
		Concept{ID: "b", DifficultyTier: 1, Prerequisites: []string{"a"}},
		Concept{ID: "c", DifficultyTier: 1},
	)
	err := cyclic.Validate()
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if !errors.Is(err, ErrMalformedGraph) {
		t.Error("CycleError should unwrap to ErrMalformedGraph")
	}
	if len(ce.Remaining) != 2 || ce.Remaining[0] != "a" || ce.Remaining[1] != "b" {
		t.Errorf("unexpected remaining %v", ce.Remaining)
	}

	dangling := New()
	dangling.Add(Concept{ID: "a", DifficultyTier: 1, Transfers: []TransferEdge{{Target: "ghost", Strength: 0.2}}})
	if err := dangling.Validate(); !errors.Is(err, ErrMalformedGraph) {
		t.Errorf("dangling transfer should be malformed, got %v", err)
	}
}

// #endregion test-validate

// #region test-load
func TestParse(t *testing.T) {
	doc := `
domains:
  - id: python
    name: Python
concepts:
  - id: variables
    name: Variables
    domain: python
    description: ignored
    difficulty_tier: 1
  - id: loops
    domain: python
    difficulty_tier: 2
    prerequisites: [variables]
    transfers_to:
      - target: variables
        strength: 0.3
        type: reinforcing
        description: ignored
    mastery_criteria:
      time_decay_days: 14
`
	g, domains, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(domains) != 1 || domains[0].ID != "python" {
		t.Errorf("unexpected domains %+v", domains)
	}
	c, ok := g.Concept("loops")
	if !ok {
		t.Fatal("loops missing")
	}
	if c.DecayDays != 14 {
		t.Errorf("nested decay days not read, got %d", c.DecayDays)
	}
	if e, ok := g.TransferEdge("loops", "variables"); !ok || e.Kind != EdgeReinforcing {
		t.Errorf("transfer not parsed: %+v", e)
	}
}

func TestLoadFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	body := `{"domains":[],"concepts":[{"id":"a","domain":"d","difficulty_tier":1},{"id":"b","domain":"d","difficulty_tier":2,"prerequisites":["a"]}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	g, _, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if g.Len() != 2 {
		t.Errorf("expected 2 concepts, got %d", g.Len())
	}
}

func TestParseRejectsCycle(t *testing.T) {
	doc := `
concepts:
  - {id: a, difficulty_tier: 1, prerequisites: [b]}
  - {id: b, difficulty_tier: 1, prerequisites: [a]}
`
	if _, _, err := Parse([]byte(doc)); !errors.Is(err, ErrMalformedGraph) {
		t.Errorf("expected malformed graph, got %v", err)
	}
}

// #endregion test-load

// #region test-sqlite
func TestSQLiteStoreRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	g := New()
	g.Add(sampleConcepts()...)
	n, err := store.Save(g)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 inserted, got %d", n)
	}

	// Second save inserts nothing
	n, err = store.Save(g)
	if err != nil {
		t.Fatalf("resave: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 inserted on resave, got %d", n)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ids := loaded.IDs()
	want := []string{"variables", "loops", "functions", "recursion"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("order mismatch at %d: %v", i, ids)
		}
	}
	rec, _ := loaded.Concept("recursion")
	if len(rec.Prerequisites) != 2 || rec.Prerequisites[0] != "functions" || rec.Prerequisites[1] != "loops" {
		t.Errorf("prerequisites not preserved: %v", rec.Prerequisites)
	}
	if rec.BaseHours != 4 {
		t.Errorf("base hours not preserved: %v", rec.BaseHours)
	}
}

func TestSQLiteStoreTransfers(t *testing.T) {
	db := setupTestDB(t)
	store, _ := NewSQLiteStore(db)
	g := New()
	g.Add(
		Concept{ID: "a", DifficultyTier: 1, Transfers: []TransferEdge{
			{Target: "b", Strength: 0.2, Kind: EdgeAnalogous},
			{Target: "c", Strength: 0.8, Kind: EdgeReinforcing},
		}},
		Concept{ID: "b", DifficultyTier: 1},
		Concept{ID: "c", DifficultyTier: 1, Prerequisites: []string{"b"}},
	)
	if _, err := store.Save(g); err != nil {
		t.Fatalf("save: %v", err)
	}

	edges, err := store.Transfers("a", 0.5)
	if err != nil {
		t.Fatalf("transfers: %v", err)
	}
	if len(edges) != 1 || edges[0].Target != "c" {
		t.Errorf("expected only a->c above 0.5, got %+v", edges)
	}

	// prerequisite rows are not transfers
	edges, _ = store.Transfers("c", 0)
	if len(edges) != 0 {
		t.Errorf("prerequisite leaked into transfers: %+v", edges)
	}
}

// #endregion test-sqlite
