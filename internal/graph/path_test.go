package graph

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.ConceptID
	}
	return out
}

func assertTopological(t *testing.T, g *Graph, steps []Step) {
	t.Helper()
	pos := make(map[string]int, len(steps))
	for i, s := range steps {
		pos[s.ConceptID] = i
	}
	for i, s := range steps {
		prereqs, ok := g.Prerequisites(s.ConceptID)
		require.True(t, ok)
		for _, p := range prereqs {
			if j, scheduled := pos[p]; scheduled {
				assert.Less(t, j, i, "%s must precede %s", p, s.ConceptID)
			}
		}
	}
}

func TestComputePathPrerequisiteFirst(t *testing.T) {
	g := New()
	_, err := g.Add(
		Concept{ID: "A", DifficultyTier: 1},
		Concept{ID: "B", DifficultyTier: 1, Prerequisites: []string{"A"}},
	)
	require.NoError(t, err)

	steps, err := g.ComputePath([]string{"B"}, nil, map[string]float64{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(steps))
}

func TestComputePathEmpty(t *testing.T) {
	g := New()
	g.Add(sampleConcepts()...)

	steps, err := g.ComputePath(nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, steps)

	all := map[string]struct{}{"variables": {}, "loops": {}, "functions": {}, "recursion": {}}
	steps, err = g.ComputePath([]string{"recursion"}, all, nil)
	require.NoError(t, err)
	assert.NotNil(t, steps)
	assert.Empty(t, steps)
}

func TestComputePathUnknownTarget(t *testing.T) {
	g := New()
	g.Add(sampleConcepts()...)
	_, err := g.ComputePath([]string{"ghost"}, nil, nil)
	assert.ErrorIs(t, err, ErrConceptNotFound)
}

func TestComputePathWeights(t *testing.T) {
	g := New()
	g.Add(sampleConcepts()...)
	mastered := map[string]struct{}{"variables": {}, "loops": {}, "functions": {}}

	// recursion: 4h, best transfer 0.5 from loops, velocity 2.0
	steps, err := g.ComputePath([]string{"recursion"}, mastered, map[string]float64{"python": 2.0})
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.InDelta(t, 4*(1-0.4*0.5)/2.0, steps[0].EstimatedHours, 1e-9)

	// velocity floor
	steps, err = g.ComputePath([]string{"recursion"}, mastered, map[string]float64{"python": 0})
	require.NoError(t, err)
	assert.InDelta(t, 4*(1-0.4*0.5)/0.1, steps[0].EstimatedHours, 1e-9)
}

func TestComputePathPrefersTransferHubs(t *testing.T) {
	g := New()
	_, err := g.Add(
		Concept{ID: "a", DifficultyTier: 1},
		Concept{ID: "b", DifficultyTier: 1},
		Concept{ID: "hub", DifficultyTier: 1, Transfers: []TransferEdge{
			{Target: "a", Strength: 0.3}, {Target: "b", Strength: 0.3},
		}},
		Concept{ID: "mid", DifficultyTier: 1, Transfers: []TransferEdge{{Target: "b", Strength: 0.3}}},
	)
	require.NoError(t, err)

	steps, err := g.ComputePath([]string{"a", "b", "hub", "mid"}, nil, nil)
	require.NoError(t, err)
	// hub unlocks two, then mid still points at unscheduled b, then a and b by id
	assert.Equal(t, []string{"hub", "mid", "a", "b"}, ids(steps))
}

func TestComputePathRekeysScheduledTargets(t *testing.T) {
	g := New()
	_, err := g.Add(
		Concept{ID: "x", DifficultyTier: 1, Transfers: []TransferEdge{{Target: "y", Strength: 0.5}}},
		Concept{ID: "y", DifficultyTier: 1, Transfers: []TransferEdge{{Target: "x", Strength: 0.5}}},
		Concept{ID: "z", DifficultyTier: 1, Transfers: []TransferEdge{{Target: "y", Strength: 0.5}}},
	)
	require.NoError(t, err)

	steps, err := g.ComputePath([]string{"x", "y", "z"}, nil, nil)
	require.NoError(t, err)
	// once x is scheduled, y no longer counts its edge to x and drops below z
	assert.Equal(t, []string{"x", "z", "y"}, ids(steps))
}

func TestComputePathCycle(t *testing.T) {
	g := New()
	g.Add(
		Concept{ID: "a", DifficultyTier: 1, Prerequisites: []string{"b"}},
		Concept{ID: "b", DifficultyTier: 1, Prerequisites: []string{"a"}},
	)
	_, err := g.ComputePath([]string{"a"}, nil, nil)
	var ce *CycleError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, []string{"a", "b"}, ce.Remaining)
}

func TestComputePathTopologicalRandom(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	for trial := 0; trial < 20; trial++ {
		g := New()
		n := 30
		var all []string
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("c%02d", i)
			c := Concept{ID: id, DifficultyTier: 1 + rng.IntN(5)}
			for j := 0; j < i; j++ {
				if rng.Float64() < 0.1 {
					c.Prerequisites = append(c.Prerequisites, fmt.Sprintf("c%02d", j))
				}
				if rng.Float64() < 0.1 {
					c.Transfers = append(c.Transfers, TransferEdge{Target: fmt.Sprintf("c%02d", j), Strength: rng.Float64()})
				}
			}
			_, err := g.Add(c)
			require.NoError(t, err)
			all = append(all, id)
		}

		mastered := map[string]struct{}{}
		for _, id := range all {
			if rng.Float64() < 0.2 {
				mastered[id] = struct{}{}
			}
		}
		targets := []string{all[n-1], all[n-2], all[rng.IntN(n)]}

		steps, err := g.ComputePath(targets, mastered, map[string]float64{"": 1.5})
		require.NoError(t, err)
		assertTopological(t, g, steps)
		for _, s := range steps {
			_, m := mastered[s.ConceptID]
			assert.False(t, m, "mastered concept %s scheduled", s.ConceptID)
		}
	}
}
