package signals

import "time"

// #region state

// State is the detected engagement label. It feeds the Q-learner state key.
type State string

const (
	StateNeutral    State = "neutral"
	StateFrustrated State = "frustrated"
	StateBored      State = "bored"
	StateFlow       State = "flow"
	StateDisengaged State = "disengaged"
)

// #endregion state

// #region profile

// Profile is one engagement-sensitivity tuple. The engagement-profile bandit
// picks among Profiles by index.
type Profile struct {
	Name string
	// FrustrationFailures consecutive failures mark frustration outright.
	FrustrationFailures int
	// BoredSpeed is the response time in seconds under which correct answers read as boredom.
	BoredSpeed float64
	FlowMin    float64
	FlowMax    float64
	// SessionMaxMinutes bounds a session before declining scores count as disengagement.
	SessionMaxMinutes float64
	DeclineThreshold  float64
	ShortAnswerChars  int
}

// Profiles is the fixed engagement profile set.
var Profiles = []Profile{
	{Name: "sensitive", FrustrationFailures: 2, BoredSpeed: 10, FlowMin: 20, FlowMax: 120, SessionMaxMinutes: 45, DeclineThreshold: -0.10, ShortAnswerChars: 15},
	{Name: "default", FrustrationFailures: 3, BoredSpeed: 15, FlowMin: 30, FlowMax: 180, SessionMaxMinutes: 60, DeclineThreshold: -0.15, ShortAnswerChars: 20},
	{Name: "tolerant", FrustrationFailures: 4, BoredSpeed: 20, FlowMin: 30, FlowMax: 240, SessionMaxMinutes: 90, DeclineThreshold: -0.20, ShortAnswerChars: 10},
	{Name: "moderate_sensitive", FrustrationFailures: 3, BoredSpeed: 12, FlowMin: 25, FlowMax: 150, SessionMaxMinutes: 50, DeclineThreshold: -0.12, ShortAnswerChars: 18},
	{Name: "moderate_tolerant", FrustrationFailures: 4, BoredSpeed: 18, FlowMin: 35, FlowMax: 200, SessionMaxMinutes: 75, DeclineThreshold: -0.18, ShortAnswerChars: 15},
}

// DefaultProfile indexes the default profile.
const DefaultProfile = 1

// ProfileAt returns Profiles[i], or the default for an out-of-range index.
func ProfileAt(i int) Profile {
	if i < 0 || i >= len(Profiles) {
		return Profiles[DefaultProfile]
	}
	return Profiles[i]
}

// #endregion profile

// #region interaction

// Interaction is one learner answer. Score is nil for answers that were not graded.
type Interaction struct {
	At          time.Time
	AnswerChars int
	Score       *float64
}

// #endregion interaction

// #region intervention

// Intervention is the suggested reaction to a non-neutral state.
type Intervention string

const (
	InterventionNone               Intervention = ""
	InterventionReduceDifficulty   Intervention = "reduce_difficulty"
	InterventionIncreaseDifficulty Intervention = "increase_difficulty"
	InterventionSuggestBreak       Intervention = "suggest_break"
)

// InterventionFor maps a state to its intervention. Flow and neutral get none.
func InterventionFor(s State) Intervention {
	switch s {
	case StateFrustrated:
		return InterventionReduceDifficulty
	case StateBored:
		return InterventionIncreaseDifficulty
	case StateDisengaged:
		return InterventionSuggestBreak
	}
	return InterventionNone
}

// #endregion intervention
