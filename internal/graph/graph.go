package graph

import (
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const closureCacheSize = 4096

// #region graph

// Graph is the in-memory concept store. Concepts are append-only; reads are safe
// for unbounded concurrency.
type Graph struct {
	mu       sync.RWMutex
	concepts map[string]Concept
	order    []string
	closure  *lru.Cache[string, []string]
}

// New returns an empty graph.
func New() *Graph {
	cache, err := lru.New[string, []string](closureCacheSize)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &Graph{
		concepts: make(map[string]Concept),
		closure:  cache,
	}
}

// #endregion graph

// #region add

// Add appends concepts. Ids already present are skipped, never mutated.
// Returns the number of concepts actually added. Validation failures abort
// before anything is added.
func (g *Graph) Add(concepts ...Concept) (int, error) {
	for _, c := range concepts {
		if err := c.validate(); err != nil {
			return 0, err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	added := 0
	for _, c := range concepts {
		if _, exists := g.concepts[c.ID]; exists {
			continue
		}
		c = c.clone()
		if c.BaseHours == 0 {
			c.BaseHours = defaultBaseHours
		}
		if c.DecayDays <= 0 {
			c.DecayDays = defaultDecayDays
		}
		g.concepts[c.ID] = c
		g.order = append(g.order, c.ID)
		added++
	}
	if added > 0 {
		g.closure.Purge()
	}
	return added, nil
}

// #endregion add

// #region lookups

// Len returns the number of concepts.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.concepts)
}

// Concept returns a copy of the concept with the given id.
func (g *Graph) Concept(id string) (Concept, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.concepts[id]
	if !ok {
		return Concept{}, false
	}
	return c.clone(), true
}

// Has reports whether id is known.
func (g *Graph) Has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.concepts[id]
	return ok
}

// Concepts returns all concepts in insertion order.
func (g *Graph) Concepts() []Concept {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Concept, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.concepts[id].clone())
	}
	return out
}

// IDs returns all concept ids in insertion order.
func (g *Graph) IDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// Prerequisites returns the direct prerequisites of id.
func (g *Graph) Prerequisites(id string) ([]string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.concepts[id]
	if !ok {
		return nil, false
	}
	return append([]string(nil), c.Prerequisites...), true
}

// TransferEdge returns the edge src→dst if one exists.
func (g *Graph) TransferEdge(src, dst string) (TransferEdge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.transferEdgeLocked(src, dst)
}

func (g *Graph) transferEdgeLocked(src, dst string) (TransferEdge, bool) {
	c, ok := g.concepts[src]
	if !ok {
		return TransferEdge{}, false
	}
	for _, e := range c.Transfers {
		if e.Target == dst {
			return e, true
		}
	}
	return TransferEdge{}, false
}

// #endregion lookups

// #region closure

// AllPrerequisites returns the transitive prerequisite closure of id (excluding id).
// Dangling prerequisite references yield ErrMalformedGraph.
func (g *Graph) AllPrerequisites(id string) (map[string]struct{}, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids, err := g.allPrerequisitesLocked(id)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(ids))
	for _, p := range ids {
		out[p] = struct{}{}
	}
	return out, nil
}

func (g *Graph) allPrerequisitesLocked(id string) ([]string, error) {
	if cached, ok := g.closure.Get(id); ok {
		return cached, nil
	}
	root, ok := g.concepts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConceptNotFound, id)
	}

	seen := make(map[string]struct{})
	stack := append([]string(nil), root.Prerequisites...)
	for len(stack) > 0 {
		pid := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, done := seen[pid]; done {
			continue
		}
		p, ok := g.concepts[pid]
		if !ok {
			return nil, fmt.Errorf("%w: %s requires unknown concept %s", ErrMalformedGraph, id, pid)
		}
		seen[pid] = struct{}{}
		stack = append(stack, p.Prerequisites...)
	}
	// a cycle through id puts id in its own closure
	delete(seen, id)

	out := make([]string, 0, len(seen))
	for pid := range seen {
		out = append(out, pid)
	}
	sort.Strings(out)
	g.closure.Add(id, out)
	return out, nil
}

// #endregion closure

// #region validate

// Validate checks every prerequisite and transfer reference resolves and that
// prerequisites are acyclic.
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, id := range g.order {
		c := g.concepts[id]
		for _, p := range c.Prerequisites {
			if _, ok := g.concepts[p]; !ok {
				return fmt.Errorf("%w: %s requires unknown concept %s", ErrMalformedGraph, id, p)
			}
		}
		for _, e := range c.Transfers {
			if _, ok := g.concepts[e.Target]; !ok {
				return fmt.Errorf("%w: %s transfers to unknown concept %s", ErrMalformedGraph, id, e.Target)
			}
		}
	}

	all := make(map[string]struct{}, len(g.concepts))
	for id := range g.concepts {
		all[id] = struct{}{}
	}
	_, err := g.toposortLocked(all, nil)
	return err
}

// #endregion validate
