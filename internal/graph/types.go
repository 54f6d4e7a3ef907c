package graph

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// #region errors

var (
	// ErrConceptNotFound is returned for ids the graph does not hold.
	ErrConceptNotFound = errors.New("graph: concept not found")
	// ErrMalformedGraph marks structural problems: cycles or dangling references.
	ErrMalformedGraph = errors.New("graph: malformed graph")
	// ErrInvalidConcept is returned by Add for concepts that fail field validation.
	ErrInvalidConcept = errors.New("graph: invalid concept")
)

// CycleError reports the concepts left unscheduled when a prerequisite cycle stops the sort.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("graph: prerequisite cycle among %d concepts: %s", len(e.Remaining), strings.Join(e.Remaining, ", "))
}

func (e *CycleError) Unwrap() error { return ErrMalformedGraph }

// #endregion errors

// #region edge-kind

// EdgeKind describes how mastering the source eases the target.
type EdgeKind string

const (
	EdgeAnalogous    EdgeKind = "analogous"
	EdgePrerequisite EdgeKind = "prerequisite"
	EdgeReinforcing  EdgeKind = "reinforcing"
)

// #endregion edge-kind

// #region concept

// TransferEdge is an outgoing transfer relationship.
type TransferEdge struct {
	Target   string   `yaml:"target" json:"target"`
	Strength float64  `yaml:"strength" json:"strength"`
	Kind     EdgeKind `yaml:"type" json:"type"`
}

// Concept is an immutable node of the knowledge graph.
type Concept struct {
	ID             string         `yaml:"id" json:"id"`
	Name           string         `yaml:"name" json:"name"`
	Domain         string         `yaml:"domain" json:"domain"`
	DifficultyTier int            `yaml:"difficulty_tier" json:"difficulty_tier"`
	Prerequisites  []string       `yaml:"prerequisites" json:"prerequisites"`
	Transfers      []TransferEdge `yaml:"transfers_to" json:"transfers_to"`
	BaseHours      float64        `yaml:"base_hours" json:"base_hours"`
	// DecayDays is the base number of days before mastery is considered stale.
	DecayDays int `yaml:"time_decay_days" json:"time_decay_days"`
}

const (
	defaultBaseHours = 2.0
	defaultDecayDays = 30
)

func (c Concept) validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidConcept)
	}
	if c.DifficultyTier < 1 || c.DifficultyTier > 5 {
		return fmt.Errorf("%w: %s difficulty tier %d outside 1..5", ErrInvalidConcept, c.ID, c.DifficultyTier)
	}
	if c.BaseHours < 0 || math.IsNaN(c.BaseHours) || math.IsInf(c.BaseHours, 0) {
		return fmt.Errorf("%w: %s base hours %v", ErrInvalidConcept, c.ID, c.BaseHours)
	}
	for _, e := range c.Transfers {
		if !(e.Strength >= 0 && e.Strength <= 1) {
			return fmt.Errorf("%w: %s transfer to %s strength %.3f outside [0,1]", ErrInvalidConcept, c.ID, e.Target, e.Strength)
		}
	}
	return nil
}

// clone deep-copies slices so callers never share backing arrays with the graph.
func (c Concept) clone() Concept {
	out := c
	out.Prerequisites = append([]string(nil), c.Prerequisites...)
	out.Transfers = append([]TransferEdge(nil), c.Transfers...)
	return out
}

// #endregion concept

// #region step

// Step is one entry of a computed learning path.
type Step struct {
	ConceptID      string  `json:"concept_id"`
	EstimatedHours float64 `json:"estimated_hours"`
}

// #endregion step
