package learner

import "sort"

// Concept returns the record for id, if the learner has one.
func (s *Snapshot) Concept(id string) (*ConceptMastery, bool) {
	if s == nil || s.Concepts == nil {
		return nil, false
	}
	cm, ok := s.Concepts[id]
	return cm, ok && cm != nil
}

// Status returns the status of id, StatusUnknown when absent.
func (s *Snapshot) Status(id string) Status {
	if cm, ok := s.Concept(id); ok && cm.Status != "" {
		return cm.Status
	}
	return StatusUnknown
}

// Mastered returns the ids currently in StatusMastered.
func (s *Snapshot) Mastered() map[string]struct{} {
	out := make(map[string]struct{})
	if s == nil {
		return out
	}
	for id, cm := range s.Concepts {
		if cm != nil && cm.Status == StatusMastered {
			out[id] = struct{}{}
		}
	}
	return out
}

// MasteredCount is len(Mastered()) without the allocation.
func (s *Snapshot) MasteredCount() int {
	n := 0
	if s == nil {
		return 0
	}
	for _, cm := range s.Concepts {
		if cm != nil && cm.Status == StatusMastered {
			n++
		}
	}
	return n
}

// TotalActiveMisconceptions sums active misconceptions across all concepts.
func (s *Snapshot) TotalActiveMisconceptions() int {
	n := 0
	if s == nil {
		return 0
	}
	for _, cm := range s.Concepts {
		if cm != nil {
			n += len(cm.MisconceptionsActive)
		}
	}
	return n
}

// Velocity returns the velocity for domain, falling back to 1.0.
func (s *Snapshot) Velocity(domain string) float64 {
	if s != nil {
		if v, ok := s.DomainVelocities[domain]; ok {
			return v
		}
	}
	return 1.0
}

// Targets flattens CareerTargets into a sorted, de-duplicated list.
func (s *Snapshot) Targets() []string {
	if s == nil {
		return []string{}
	}
	seen := make(map[string]struct{})
	for _, set := range s.CareerTargets {
		for _, id := range set {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RecentScores returns up to n most recent test scores, oldest first.
func (c *ConceptMastery) RecentScores(n int) []float64 {
	if c == nil || n <= 0 {
		return nil
	}
	tests := c.TestResults
	if len(tests) > n {
		tests = tests[len(tests)-n:]
	}
	out := make([]float64, len(tests))
	for i, t := range tests {
		out[i] = t.Score
	}
	return out
}

// TestCount is the number of recorded tests.
func (c *ConceptMastery) TestCount() int {
	if c == nil {
		return 0
	}
	return len(c.TestResults)
}

// HasActiveMisconception reports whether id is currently active.
func (c *ConceptMastery) HasActiveMisconception(id string) bool {
	if c == nil {
		return false
	}
	for _, m := range c.MisconceptionsActive {
		if m == id {
			return true
		}
	}
	return false
}
