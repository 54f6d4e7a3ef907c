// Package orchestrator is the entry point of the policy core. Core holds the
// shared, read-only pieces (concept graph, gate, eval harness, config) and
// Session holds one learner's mutable policy and review queue.
//
// A Session is not safe for concurrent use. Callers serialize work per
// learner (see state.Manager.WithLearner); distinct learners never share a
// Session and never block one another.
package orchestrator

// #region imports
import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/danielpatrickdp/adaptive-tutor/internal/eval"
	"github.com/danielpatrickdp/adaptive-tutor/internal/gate"
	"github.com/danielpatrickdp/adaptive-tutor/internal/graph"
	"github.com/danielpatrickdp/adaptive-tutor/internal/learner"
	"github.com/danielpatrickdp/adaptive-tutor/internal/pkg/logger"
	"github.com/danielpatrickdp/adaptive-tutor/internal/policy"
	"github.com/danielpatrickdp/adaptive-tutor/internal/review"
	"github.com/danielpatrickdp/adaptive-tutor/internal/signals"
)

// #endregion

// #region core-struct

// Core is shared by every session. Safe for concurrent use.
type Core struct {
	graph *graph.Graph
	gate  *gate.Gate
	eval  *eval.EvalHarness
	cfg   Config
	log   *logger.Logger
}

// #endregion

// #region constructor

// NewCore wires a core over g. A nil log discards output.
func NewCore(g *graph.Graph, cfg Config, log *logger.Logger) *Core {
	if log == nil {
		log = logger.Nop()
	}
	return &Core{
		graph: g,
		gate:  gate.NewGate(cfg.Gate, g),
		eval:  eval.NewEvalHarness(cfg.Eval),
		cfg:   cfg,
		log:   log,
	}
}

// Graph returns the concept graph.
func (c *Core) Graph() *graph.Graph { return c.graph }

// Config returns the active configuration.
func (c *Core) Config() Config { return c.cfg }

func (c *Core) now() time.Time {
	if c.cfg.Clock != nil {
		return c.cfg.Clock().UTC()
	}
	return time.Now().UTC()
}

// #endregion

// #region path

// ComputeLearningPath orders the unmastered closure of targets.
func (c *Core) ComputeLearningPath(targets []string, mastered map[string]struct{}, velocities map[string]float64) ([]graph.Step, error) {
	return c.graph.ComputePath(targets, mastered, velocities)
}

// SelectNextConcept picks the first concept on the learner's path that is
// new to them and whose prerequisites are all mastered, falling back to the
// head of the path. Learners without career targets plan over the whole
// graph. Returns "" when nothing is left to learn.
func (c *Core) SelectNextConcept(snap *learner.Snapshot) (string, error) {
	if snap == nil {
		snap = &learner.Snapshot{}
	}
	targets := make([]string, 0)
	for _, id := range snap.Targets() {
		if !c.graph.Has(id) {
			c.log.Warn("dropping unknown target concept", "learner_id", snap.LearnerID, "concept_id", id)
			continue
		}
		targets = append(targets, id)
	}
	if len(targets) == 0 {
		targets = c.graph.IDs()
	}
	if len(targets) == 0 {
		return "", nil
	}

	mastered := snap.Mastered()
	path, err := c.graph.ComputePath(targets, mastered, snap.DomainVelocities)
	if err != nil {
		return "", fmt.Errorf("select next concept: %w", err)
	}

	for _, step := range path {
		switch snap.Status(step.ConceptID) {
		case learner.StatusUnknown, learner.StatusIntroduced:
		default:
			continue
		}
		prereqs, _ := c.graph.Prerequisites(step.ConceptID)
		if allIn(prereqs, mastered) {
			return step.ConceptID, nil
		}
	}
	if len(path) > 0 {
		return path[0].ConceptID, nil
	}
	return "", nil
}

func allIn(ids []string, set map[string]struct{}) bool {
	for _, id := range ids {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// #endregion

// #region session

// NewSession opens a session for snap. Corrupt policy or review blobs are
// logged and replaced with fresh state. A nil rng makes every selection greedy.
func (c *Core) NewSession(snap *learner.Snapshot, rng *rand.Rand) *Session {
	if snap == nil {
		snap = &learner.Snapshot{}
	}
	log := c.log.With("learner_id", snap.LearnerID)

	pol, err := policy.Load(snap.PolicyBlob, snap.MasteredCount())
	if err != nil {
		log.Warn("corrupt policy blob, starting fresh", "error", err)
	}
	reviews, err := review.Unmarshal(snap.ReviewBlob)
	if err != nil {
		log.Warn("corrupt review queue, starting empty", "error", err)
		reviews = review.NewQueue()
	}

	return &Session{
		core:      c,
		snap:      snap,
		policy:    pol,
		reviews:   reviews,
		rng:       rng,
		tracker:   signals.NewTracker(c.now()),
		log:       log,
		reteaches: make(map[string]int),
	}
}

// #endregion
