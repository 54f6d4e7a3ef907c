package graph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Domain groups concepts for display. It carries no scheduling semantics.
type Domain struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Document is the on-disk graph layout. JSON files parse too since JSON is valid YAML.
type Document struct {
	Domains  []Domain      `yaml:"domains"`
	Concepts []fileConcept `yaml:"concepts"`
}

// fileConcept accepts the decay window either flat or nested under mastery_criteria.
// Content fields (descriptions, misconceptions, contexts) are ignored.
type fileConcept struct {
	Concept         `yaml:",inline"`
	MasteryCriteria struct {
		TimeDecayDays int `yaml:"time_decay_days"`
	} `yaml:"mastery_criteria"`
}

// LoadFile reads a graph document and returns a validated Graph.
func LoadFile(path string) (*Graph, []Domain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read graph %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a graph document.
func Parse(data []byte) (*Graph, []Domain, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode graph: %w", err)
	}

	concepts := make([]Concept, 0, len(doc.Concepts))
	for _, fc := range doc.Concepts {
		c := fc.Concept
		if c.DecayDays == 0 {
			c.DecayDays = fc.MasteryCriteria.TimeDecayDays
		}
		concepts = append(concepts, c)
	}

	g := New()
	if _, err := g.Add(concepts...); err != nil {
		return nil, nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, nil, err
	}
	return g, doc.Domains, nil
}
