package policy

import (
	"math"
	"math/rand/v2"

	"github.com/danielpatrickdp/adaptive-tutor/internal/learner"
)

// Action is a high-level pedagogical move.
type Action string

const (
	ActionTeach      Action = "teach"
	ActionPractice   Action = "practice"
	ActionTest       Action = "test"
	ActionReteach    Action = "reteach"
	ActionSkipAhead  Action = "skip_ahead"
	ActionAskLearner Action = "ask_learner"
)

// Actions is the canonical action order. Argmax ties keep the earlier action.
var Actions = []Action{ActionTeach, ActionPractice, ActionTest, ActionReteach, ActionSkipAhead, ActionAskLearner}

// coldStart is the fallback for states with no learned values.
var coldStart = map[learner.Status]Action{
	learner.StatusUnknown:    ActionTeach,
	learner.StatusIntroduced: ActionPractice,
	learner.StatusPracticing: ActionTest,
	learner.StatusTesting:    ActionTest,
	learner.StatusMastered:   ActionSkipAhead,
	learner.StatusDecayed:    ActionTest,
}

// ColdStartAction returns the default action for status.
func ColdStartAction(status learner.Status) Action {
	if a, ok := coldStart[status]; ok {
		return a
	}
	return ActionTeach
}

// #region hyper

// Hyper holds the Q-learning rates.
type Hyper struct {
	Alpha   float64
	Gamma   float64
	Epsilon float64
}

// HyperFor scales learning and exploration down as the learner masters more concepts.
func HyperFor(mastered int) Hyper {
	switch {
	case mastered < 5:
		return Hyper{Alpha: 0.2, Gamma: 0.9, Epsilon: 0.3}
	case mastered < 20:
		return Hyper{Alpha: 0.1, Gamma: 0.9, Epsilon: 0.15}
	}
	return Hyper{Alpha: 0.05, Gamma: 0.9, Epsilon: 0.05}
}

// #endregion hyper

// #region learner

// QLearner is a tabular Q-learner over bucketed action states.
type QLearner struct {
	Q       map[string]map[string]float64 `json:"q_table"`
	Alpha   float64                       `json:"alpha"`
	Gamma   float64                       `json:"gamma"`
	Epsilon float64                       `json:"epsilon"`
	Updates int                           `json:"total_updates"`
}

// NewQLearner returns an empty table with rates h.
func NewQLearner(h Hyper) *QLearner {
	return &QLearner{Q: make(map[string]map[string]float64), Alpha: h.Alpha, Gamma: h.Gamma, Epsilon: h.Epsilon}
}

// Select is epsilon-greedy over Actions. States with no learned values use
// the status default.
func (q *QLearner) Select(state ActionState, rng *rand.Rand) Action {
	if rng != nil && rng.Float64() < q.Epsilon {
		return Actions[rng.IntN(len(Actions))]
	}
	if a, ok := q.greedy(state.Key()); ok {
		return a
	}
	return ColdStartAction(state.Status)
}

func (q *QLearner) greedy(key string) (Action, bool) {
	values := q.Q[key]
	best, bestQ, found := Action(""), math.Inf(-1), false
	for _, a := range Actions {
		v, ok := values[string(a)]
		if !ok {
			continue
		}
		if !found || v > bestQ {
			best, bestQ, found = a, v, true
		}
	}
	return best, found
}

// Value returns Q(state, action), zero when absent.
func (q *QLearner) Value(stateKey string, action Action) float64 {
	return q.Q[stateKey][string(action)]
}

// maxValue is max_a Q(key, a), zero for an empty state.
func (q *QLearner) maxValue(key string) float64 {
	values := q.Q[key]
	if len(values) == 0 {
		return 0
	}
	m := math.Inf(-1)
	for _, v := range values {
		m = math.Max(m, v)
	}
	return m
}

// Update applies Q(s,a) += alpha*(reward + gamma*max Q(s') - Q(s,a)).
// A non-finite reward leaves the table unchanged.
func (q *QLearner) Update(stateKey string, action Action, reward float64, nextStateKey string) {
	if !finite(reward) {
		return
	}
	if q.Q == nil {
		q.Q = make(map[string]map[string]float64)
	}
	row, ok := q.Q[stateKey]
	if !ok {
		row = make(map[string]float64)
		q.Q[stateKey] = row
	}
	cur := row[string(action)]
	// the entry exists before max Q(s') is read, so a self-loop sees it
	row[string(action)] = cur
	next := q.maxValue(nextStateKey)
	row[string(action)] = cur + q.Alpha*(reward+q.Gamma*next-cur)
	q.Updates++
}

// #endregion learner
