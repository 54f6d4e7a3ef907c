package graph

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
)

const (
	transferDiscount = 0.4
	minVelocity      = 0.1
)

// #region compute-path

// ComputePath orders every unmastered concept needed for targets.
//
// Hours per concept are base_hours * (1 - 0.4*best transfer from a mastered
// concept) / max(domain velocity, 0.1). Ordering is a topological sort over the
// unmastered subgraph that prefers concepts with the most transfer edges into
// still-unscheduled concepts.
func (g *Graph) ComputePath(targets []string, mastered map[string]struct{}, velocities map[string]float64) ([]Step, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	required := make(map[string]struct{})
	for _, id := range targets {
		if _, ok := g.concepts[id]; !ok {
			return nil, fmt.Errorf("%w: target %s", ErrConceptNotFound, id)
		}
		required[id] = struct{}{}
		prereqs, err := g.allPrerequisitesLocked(id)
		if err != nil {
			return nil, err
		}
		for _, p := range prereqs {
			required[p] = struct{}{}
		}
	}

	unmastered := make(map[string]struct{}, len(required))
	for id := range required {
		if _, ok := mastered[id]; !ok {
			unmastered[id] = struct{}{}
		}
	}
	if len(unmastered) == 0 {
		return []Step{}, nil
	}

	weights := make(map[string]float64, len(unmastered))
	for id := range unmastered {
		weights[id] = g.estimateHoursLocked(id, mastered, velocities)
	}
	return g.toposortLocked(unmastered, weights)
}

func (g *Graph) estimateHoursLocked(id string, mastered map[string]struct{}, velocities map[string]float64) float64 {
	c := g.concepts[id]
	bonus := 0.0
	for mid := range mastered {
		if e, ok := g.transferEdgeLocked(mid, id); ok && e.Strength > bonus {
			bonus = e.Strength
		}
	}
	vel, ok := velocities[c.Domain]
	if !ok {
		vel = 1.0
	}
	return c.BaseHours * (1.0 - transferDiscount*bonus) / math.Max(vel, minVelocity)
}

// #endregion compute-path

// #region toposort

// toposortLocked is Kahn's algorithm with a max-heap on live transfer out-degree.
// Priorities are recomputed lazily on pop so edges into already-scheduled
// concepts stop counting.
func (g *Graph) toposortLocked(nodes map[string]struct{}, weights map[string]float64) ([]Step, error) {
	inDegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for id := range nodes {
		inDegree[id] += 0
		for _, p := range g.concepts[id].Prerequisites {
			if _, ok := nodes[p]; ok && p != id {
				inDegree[id]++
				dependents[p] = append(dependents[p], id)
			} else if p == id {
				// self-prerequisite can never be satisfied
				inDegree[id]++
			}
		}
	}

	done := make(map[string]struct{}, len(nodes))
	outDegree := func(id string) int {
		n := 0
		for _, e := range g.concepts[id].Transfers {
			if e.Target == id {
				continue
			}
			if _, in := nodes[e.Target]; !in {
				continue
			}
			if _, sched := done[e.Target]; sched {
				continue
			}
			n++
		}
		return n
	}

	pq := &readyQueue{}
	for id, d := range inDegree {
		if d == 0 {
			heap.Push(pq, readyItem{id: id, transferOut: outDegree(id)})
		}
	}

	result := make([]Step, 0, len(nodes))
	for pq.Len() > 0 {
		item := heap.Pop(pq).(readyItem)
		if _, sched := done[item.id]; sched {
			continue
		}
		if live := outDegree(item.id); live != item.transferOut {
			heap.Push(pq, readyItem{id: item.id, transferOut: live})
			continue
		}

		done[item.id] = struct{}{}
		hours, ok := weights[item.id]
		if !ok {
			hours = g.concepts[item.id].BaseHours
		}
		result = append(result, Step{ConceptID: item.id, EstimatedHours: round1(hours)})

		for _, dep := range dependents[item.id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				heap.Push(pq, readyItem{id: dep, transferOut: outDegree(dep)})
			}
		}
	}

	if len(result) < len(nodes) {
		remaining := make([]string, 0, len(nodes)-len(result))
		for id := range nodes {
			if _, ok := done[id]; !ok {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, &CycleError{Remaining: remaining}
	}
	return result, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// #endregion toposort

// #region ready-queue

type readyItem struct {
	id          string
	transferOut int
}

// readyQueue pops the highest transfer out-degree first, then the smallest id.
type readyQueue []readyItem

func (q readyQueue) Len() int { return len(q) }
func (q readyQueue) Less(i, j int) bool {
	if q[i].transferOut != q[j].transferOut {
		return q[i].transferOut > q[j].transferOut
	}
	return q[i].id < q[j].id
}
func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *readyQueue) Push(x any)   { *q = append(*q, x.(readyItem)) }
func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// #endregion ready-queue
