package replay

import (
	"context"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/adaptive-tutor/internal/graph"
	"github.com/danielpatrickdp/adaptive-tutor/internal/learner"
	"github.com/danielpatrickdp/adaptive-tutor/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-tutor/internal/pkg/logger"
	"github.com/danielpatrickdp/adaptive-tutor/internal/policy"
	"github.com/danielpatrickdp/adaptive-tutor/internal/update"
)

// Result actions.
const (
	ActionCommit       = "commit"
	ActionGateReject   = "gate_reject"
	ActionEvalRollback = "eval_rollback"
	ActionSkipped      = "skipped" // no concept left to learn
)

var defaultStart = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

// #region types

// ReplayResult captures the outcome of replaying one event through the full pipeline.
type ReplayResult struct {
	Index      int
	ConceptID  string
	Strategy   string
	Difficulty int
	Action     string // "commit" | "gate_reject" | "eval_rollback" | "skipped"
	Outcome    update.Outcome
	Reward     float64
	Reason     string

	Result orchestrator.OutcomeResult
}

// ReplaySummary provides aggregate stats from one learner's replay.
type ReplaySummary struct {
	LearnerID     string
	TotalEvents   int
	Commits       int
	GateRejects   int
	EvalRollbacks int
	Skipped       int
	Outcomes      map[update.Outcome]int
	MeanReward    float64 // over commits
	StrategyMeans []policy.StrategyMean
	ReviewItems   int
	Mastered      int
}

// LearnerRun is everything one replay produced. The blobs are ready to commit
// to a state.Store.
type LearnerRun struct {
	LearnerID  string
	Results    []ReplayResult
	Summary    ReplaySummary
	Snapshot   *learner.Snapshot
	PolicyBlob []byte
	ReviewBlob []byte
}

// #endregion types

// #region replay

// Replay runs one learner's events through gate, update and eval on a
// private core whose clock starts at start and advances per event. Accepted
// outcomes are folded into a copy of the learner's snapshot before the next
// event. A nil rng replays greedily.
func Replay(ctx context.Context, g *graph.Graph, cfg orchestrator.Config, fl FixtureLearner, rng *rand.Rand, start time.Time, log *logger.Logger) (LearnerRun, error) {
	if log == nil {
		log = logger.Nop()
	}
	if start.IsZero() {
		start = defaultStart
	}
	now := start.UTC()
	cfg.Clock = func() time.Time { return now }
	core := orchestrator.NewCore(g, cfg, log.With("replay", fl.LearnerID))

	snap := cloneSnapshot(fl.Snapshot)
	if snap.LearnerID == "" {
		snap.LearnerID = fl.LearnerID
	}
	sess := core.NewSession(snap, rng)
	sess.SelectEngagementProfile()

	results := make([]ReplayResult, 0, len(fl.Events))
	for i, fe := range fl.Events {
		if err := ctx.Err(); err != nil {
			return LearnerRun{}, err
		}
		now = now.Add(time.Duration(fe.AdvanceHours * float64(time.Hour)))

		ev := fe.Event
		ev.LearnerID = snap.LearnerID
		ev.At = now

		// 1. Concept, strategy and difficulty default to the core's choices
		if ev.ConceptID == "" {
			next, err := core.SelectNextConcept(snap)
			if err != nil {
				return LearnerRun{}, fmt.Errorf("event %d: %w", i, err)
			}
			if next == "" {
				results = append(results, ReplayResult{Index: i, Action: ActionSkipped, Reason: "nothing left to learn"})
				continue
			}
			ev.ConceptID = next
		}
		if ev.Strategy == "" {
			ev.Strategy = sess.SelectStrategy(ev.ConceptID, nil)
		}
		if ev.Difficulty == 0 {
			ev.Difficulty = sess.SelectDifficulty(ev.ConceptID)
		}

		// 2. Gate, update, eval
		res, err := sess.RecordOutcome(ev)
		if err != nil {
			return LearnerRun{}, fmt.Errorf("event %d: %w", i, err)
		}

		r := ReplayResult{
			Index:      i,
			ConceptID:  ev.ConceptID,
			Strategy:   ev.Strategy,
			Difficulty: ev.Difficulty,
			Outcome:    res.Outcome,
			Reward:     res.Reward,
			Result:     res,
		}
		switch {
		case res.Gate.Vetoed:
			r.Action, r.Reason = ActionGateReject, res.Gate.Reason
		case res.RolledBack:
			r.Action, r.Reason = ActionEvalRollback, res.Eval.Reason
		default:
			// 3. Commit: the caller owns mastery records
			r.Action = ActionCommit
			ApplyOutcome(snap, ev, res.Outcome)
		}
		results = append(results, r)
	}

	policyBlob, reviewBlob, err := sess.Blobs()
	if err != nil {
		return LearnerRun{}, err
	}
	return LearnerRun{
		LearnerID:  snap.LearnerID,
		Results:    results,
		Summary:    Summarize(snap.LearnerID, results, sess),
		Snapshot:   snap,
		PolicyBlob: policyBlob,
		ReviewBlob: reviewBlob,
	}, nil
}

// Summarize computes aggregate stats from replay results and the final session.
func Summarize(learnerID string, results []ReplayResult, sess *orchestrator.Session) ReplaySummary {
	s := ReplaySummary{
		LearnerID:   learnerID,
		TotalEvents: len(results),
		Outcomes:    make(map[update.Outcome]int),
	}
	var rewardSum float64
	for _, r := range results {
		switch r.Action {
		case ActionCommit:
			s.Commits++
			s.Outcomes[r.Outcome]++
			rewardSum += r.Reward
		case ActionGateReject:
			s.GateRejects++
		case ActionEvalRollback:
			s.EvalRollbacks++
		case ActionSkipped:
			s.Skipped++
		}
	}
	if s.Commits > 0 {
		s.MeanReward = rewardSum / float64(s.Commits)
	}
	if sess != nil {
		s.StrategyMeans = sess.Policy().StrategyMeans()
		s.ReviewItems = sess.Reviews().Len()
		s.Mastered = sess.Snapshot().MasteredCount()
	}
	return s
}

// RunAll replays every learner of f concurrently. Learner i draws from
// PCG(f.Seed, i+1), so runs are reproducible; seed 0 replays greedily.
// Results keep fixture order.
func RunAll(ctx context.Context, f *Fixture, log *logger.Logger) ([]LearnerRun, error) {
	g, err := f.Graph()
	if err != nil {
		return nil, err
	}
	cfg := f.Config.ToConfig()

	runs := make([]LearnerRun, len(f.Learners))
	eg, ctx := errgroup.WithContext(ctx)
	for i, fl := range f.Learners {
		eg.Go(func() error {
			var rng *rand.Rand
			if f.Seed != 0 {
				rng = rand.New(rand.NewPCG(f.Seed, uint64(i)+1))
			}
			run, err := Replay(ctx, g, cfg, fl, rng, f.Start, log)
			if err != nil {
				return fmt.Errorf("learner %s: %w", fl.LearnerID, err)
			}
			runs[i] = run
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return runs, nil
}

// #endregion replay

// #region helpers

func cloneSnapshot(in learner.Snapshot) *learner.Snapshot {
	out := in
	out.Concepts = make(map[string]*learner.ConceptMastery, len(in.Concepts))
	for id, cm := range in.Concepts {
		if cm == nil {
			continue
		}
		cp := *cm
		cp.MisconceptionsActive = slices.Clone(cm.MisconceptionsActive)
		cp.MisconceptionsResolved = slices.Clone(cm.MisconceptionsResolved)
		cp.TestResults = slices.Clone(cm.TestResults)
		cp.StrategyScores = maps.Clone(cm.StrategyScores)
		if cm.LastValidated != nil {
			t := *cm.LastValidated
			cp.LastValidated = &t
		}
		out.Concepts[id] = &cp
	}
	out.DomainVelocities = maps.Clone(in.DomainVelocities)
	out.CareerTargets = slices.Clone(in.CareerTargets)
	return &out
}

// #endregion helpers
