package orchestrator

// #region imports
import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/danielpatrickdp/adaptive-tutor/internal/learner"
	"github.com/danielpatrickdp/adaptive-tutor/internal/pkg/logger"
	"github.com/danielpatrickdp/adaptive-tutor/internal/policy"
	"github.com/danielpatrickdp/adaptive-tutor/internal/review"
	"github.com/danielpatrickdp/adaptive-tutor/internal/signals"
)

// #endregion

// #region session-struct

// ErrNonFinite is returned by the direct updaters for NaN or infinite inputs.
var ErrNonFinite = errors.New("orchestrator: non-finite value")

// Session is one learner's working set: policy, review queue, RNG and the
// in-session engagement tracker.
type Session struct {
	core    *Core
	snap    *learner.Snapshot
	policy  *policy.State
	reviews *review.Queue
	rng     *rand.Rand
	tracker *signals.Tracker
	log     *logger.Logger

	engagementIdx *int
	schedulerIdx  *int
	reteaches     map[string]int
}

// Snapshot returns the learner snapshot decisions are made against.
func (s *Session) Snapshot() *learner.Snapshot { return s.snap }

// SetSnapshot replaces the snapshot after the caller applied an outcome to
// the learner's mastery records.
func (s *Session) SetSnapshot(snap *learner.Snapshot) {
	if snap != nil {
		s.snap = snap
	}
}

// Policy returns the live policy.
func (s *Session) Policy() *policy.State { return s.policy }

// Reviews returns the live review queue.
func (s *Session) Reviews() *review.Queue { return s.reviews }

// Blobs serializes the policy and review queue for persistence.
func (s *Session) Blobs() (policyBlob, reviewBlob []byte, err error) {
	if policyBlob, err = policy.Marshal(s.policy); err != nil {
		return nil, nil, fmt.Errorf("encode policy: %w", err)
	}
	if reviewBlob, err = review.Marshal(s.reviews); err != nil {
		return nil, nil, fmt.Errorf("encode reviews: %w", err)
	}
	return policyBlob, reviewBlob, nil
}

// #endregion

// #region strategy

// SelectStrategy samples a teaching strategy for conceptID. The bandit's
// exclusion set, strategies that scored poorly on this concept, and exclude
// are all skipped; if that leaves nothing the bandit samples every arm.
func (s *Session) SelectStrategy(conceptID string, exclude []string) string {
	skip := s.skipped(conceptID, exclude)
	names := make([]string, 0, len(skip))
	for name := range skip {
		names = append(names, name)
	}
	sort.Strings(names)

	chosen := s.policy.Strategy.Select(names, s.rng)
	s.log.Debug("strategy selected", "concept_id", conceptID, "strategy", chosen, "excluded", names)
	return chosen
}

func (s *Session) skipped(conceptID string, exclude []string) map[string]struct{} {
	skip := make(map[string]struct{})
	for _, name := range exclude {
		skip[name] = struct{}{}
	}
	for _, name := range s.policy.Strategy.ExclusionSet(s.core.cfg.Exclusion) {
		skip[name] = struct{}{}
	}
	if cm, ok := s.snap.Concept(conceptID); ok {
		for name, score := range cm.StrategyScores {
			if score < s.core.cfg.PoorStrategyScore {
				skip[name] = struct{}{}
			}
		}
	}
	return skip
}

// UpdateStrategy credits score to strategy.
func (s *Session) UpdateStrategy(strategy string, score float64) error {
	if err := checkFinite("score", score); err != nil {
		return err
	}
	s.policy.Strategy.Update(strategy, score)
	return nil
}

// #endregion

// #region difficulty

// SelectDifficulty picks a difficulty tier for conceptID.
func (s *Session) SelectDifficulty(conceptID string) int {
	return s.policy.Difficulty.SelectDifficulty(policy.ContextFor(s.snap, conceptID), s.rng)
}

// SelectMasteryThreshold picks the score that counts as mastery of conceptID.
func (s *Session) SelectMasteryThreshold(conceptID string) float64 {
	return s.policy.Difficulty.SelectThreshold(policy.ContextFor(s.snap, conceptID), s.rng)
}

// SelectRetestMultiplier picks the fraction of the threshold that earns a retest.
func (s *Session) SelectRetestMultiplier(conceptID string) float64 {
	return s.policy.Difficulty.SelectRetestMultiplier(policy.ContextFor(s.snap, conceptID), s.rng)
}

// UpdateDifficulty credits reward to the difficulty and threshold used on conceptID.
func (s *Session) UpdateDifficulty(conceptID string, difficulty int, threshold, reward float64) error {
	if err := checkFinite("threshold", threshold); err != nil {
		return err
	}
	if err := checkFinite("reward", reward); err != nil {
		return err
	}
	s.policy.Difficulty.Update(policy.ContextFor(s.snap, conceptID), difficulty, threshold, reward)
	return nil
}

// #endregion

// #region action

// ActionState is the Q-learner state for conceptID right now.
func (s *Session) ActionState(conceptID string) policy.ActionState {
	return policy.ActionStateFor(s.snap, conceptID, s.Engagement())
}

// SelectNextAction picks the next pedagogical move on conceptID.
func (s *Session) SelectNextAction(conceptID string) policy.Action {
	return s.policy.Action.Select(s.ActionState(conceptID), s.rng)
}

// UpdateAction applies one Q-learning step.
func (s *Session) UpdateAction(stateKey string, action policy.Action, reward float64, nextStateKey string) error {
	if err := checkFinite("reward", reward); err != nil {
		return err
	}
	s.policy.Action.Update(stateKey, action, reward, nextStateKey)
	return nil
}

func checkFinite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s %v", ErrNonFinite, name, v)
	}
	return nil
}

// #endregion

// #region profiles

func (s *Session) engagementContext() policy.EngagementContext {
	return policy.EngagementContext{
		SessionMinutes: s.tracker.SessionMinutes(s.core.now()),
		Scores:         s.tracker.Scores(),
		ResponseTimes:  s.tracker.ResponseTimes(),
	}
}

func (s *Session) schedulerContext() policy.SchedulerContext {
	scores, efs := s.reviews.History()
	return policy.SchedulerContext{
		ReviewScores:    scores,
		EasinessFactors: efs,
		Misconceptions:  s.snap.TotalActiveMisconceptions(),
		TotalConcepts:   len(s.snap.Concepts),
	}
}

// SelectEngagementProfile picks the engagement sensitivity for the rest of
// the session. Later outcomes credit this choice.
func (s *Session) SelectEngagementProfile() (int, signals.Profile) {
	idx := s.policy.Engagement.Select(s.engagementContext(), s.rng)
	s.engagementIdx = &idx
	return idx, signals.ProfileAt(idx)
}

// SelectSchedulerProfile picks the SM-2 parameters for the rest of the
// session. Later review outcomes credit this choice.
func (s *Session) SelectSchedulerProfile() (int, review.Profile) {
	idx := s.policy.Scheduler.Select(s.schedulerContext(), s.rng)
	s.schedulerIdx = &idx
	return idx, review.ProfileAt(idx)
}

func (s *Session) engagementProfile() signals.Profile {
	if s.engagementIdx == nil {
		return signals.ProfileAt(signals.DefaultProfile)
	}
	return signals.ProfileAt(*s.engagementIdx)
}

// schedulerProfile returns the session's SM-2 profile, choosing one on first use.
func (s *Session) schedulerProfile() review.Profile {
	if s.schedulerIdx == nil {
		_, p := s.SelectSchedulerProfile()
		return p
	}
	return review.ProfileAt(*s.schedulerIdx)
}

// #endregion

// #region engagement

// Engagement labels the session under the active engagement profile.
func (s *Session) Engagement() signals.State {
	return s.tracker.Detect(s.engagementProfile(), s.core.now())
}

// Observe records an ungraded or graded interaction and returns the
// resulting engagement label with its suggested intervention.
func (s *Session) Observe(in signals.Interaction) (signals.State, signals.Intervention) {
	if in.At.IsZero() {
		in.At = s.core.now()
	}
	s.tracker.Record(in)
	state := s.Engagement()
	if state != signals.StateNeutral {
		s.log.Debug("engagement state", "state", state, "failures", s.tracker.ConsecutiveFailures())
	}
	return state, signals.InterventionFor(state)
}

// #endregion
