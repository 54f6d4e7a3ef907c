package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/adaptive-tutor/internal/bandit"
)

// SchemaVersion is the current serialized policy layout.
const SchemaVersion = 1

var (
	// ErrCorruptBlob marks a policy blob that cannot be decoded.
	ErrCorruptBlob = errors.New("policy: corrupt blob")
	// ErrUnsupportedVersion marks a blob from a newer schema.
	ErrUnsupportedVersion = errors.New("policy: unsupported schema version")
)

// #region envelope

type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Policy        json.RawMessage `json:"policy"`
}

// Marshal encodes s in the current versioned layout.
func Marshal(s *State) ([]byte, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal policy: %w", err)
	}
	return json.Marshal(envelope{SchemaVersion: SchemaVersion, Policy: body})
}

// Unmarshal decodes a versioned blob or migrates an unversioned legacy one.
func Unmarshal(data []byte) (*State, error) {
	return decode(data, 0)
}

// Load decodes data for a learner with masteredCount mastered concepts.
// Empty data yields a fresh policy. On any decode failure Load still returns
// a fresh policy alongside the error so callers can log and continue.
func Load(data []byte, masteredCount int) (*State, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return New(masteredCount), nil
	}
	s, err := decode(data, masteredCount)
	if err != nil {
		return New(masteredCount), err
	}
	return s, nil
}

func decode(data []byte, masteredCount int) (*State, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBlob, err)
	}
	if probe == nil {
		return nil, fmt.Errorf("%w: not an object", ErrCorruptBlob)
	}

	var s *State
	if _, versioned := probe["schema_version"]; versioned {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBlob, err)
		}
		switch {
		case env.SchemaVersion > SchemaVersion:
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.SchemaVersion)
		case env.SchemaVersion < 1:
			return nil, fmt.Errorf("%w: schema version %d", ErrCorruptBlob, env.SchemaVersion)
		}
		s = &State{}
		if len(env.Policy) > 0 {
			if err := json.Unmarshal(env.Policy, s); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptBlob, err)
			}
		}
	} else {
		var err error
		if s, err = migrateLegacy(probe); err != nil {
			return nil, fmt.Errorf("%w: legacy: %v", ErrCorruptBlob, err)
		}
	}

	s.normalize(masteredCount)
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *State) validate() error {
	for name, b := range s.Strategy.Arms {
		if b.Alpha <= 0 || b.Beta <= 0 {
			return fmt.Errorf("%w: strategy %s has non-positive beta parameters", ErrCorruptBlob, name)
		}
	}
	for _, e := range []bandit.Entries{s.Difficulty.Difficulty, s.Difficulty.Threshold, s.Difficulty.Retest, s.Engagement.Profiles, s.Scheduler.Profiles} {
		for ctx, arms := range e {
			for k, st := range arms {
				if st.Count < 0 {
					return fmt.Errorf("%w: negative count at %s/%s", ErrCorruptBlob, ctx, k)
				}
			}
		}
	}
	return nil
}

// #endregion envelope

// #region map

// ToMap renders s as a plain nested map (JSON-compatible values only).
func ToMap(s *State) (map[string]any, error) {
	data, err := Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("policy to map: %w", err)
	}
	return m, nil
}

// FromMap is the inverse of ToMap. Unversioned legacy maps are migrated.
func FromMap(m map[string]any) (*State, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBlob, err)
	}
	return Unmarshal(data)
}

// #endregion map

// #region legacy

// legacyPair is the [total, count] or [alpha, beta] list layout.
type legacyPair [2]float64

type legacyTables map[string]map[string]legacyPair

func (t legacyTables) entries() bandit.Entries {
	out := bandit.Entries{}
	for ctx, arms := range t {
		inner := make(map[string]bandit.Stat, len(arms))
		for k, p := range arms {
			inner[k] = bandit.Stat{Total: p[0], Count: int(p[1])}
		}
		out[ctx] = inner
	}
	return out
}

type legacyPolicy struct {
	Strategy *struct {
		Arms map[string]legacyPair `json:"arms"`
	} `json:"strategy_bandit"`
	Difficulty *struct {
		Difficulty legacyTables `json:"difficulty_table"`
		Threshold  legacyTables `json:"threshold_table"`
		Retest     legacyTables `json:"retest_table"`
		Updates    int          `json:"total_updates"`
	} `json:"difficulty_bandit"`
	Action *struct {
		Q       map[string]map[string]float64 `json:"q_table"`
		Alpha   *float64                      `json:"alpha"`
		Gamma   *float64                      `json:"gamma"`
		Epsilon *float64                      `json:"epsilon"`
		Updates int                           `json:"total_updates"`
	} `json:"action_q"`
	Engagement *legacyProfiles `json:"engagement_bandit"`
	Scheduler  *legacyProfiles `json:"scheduler_bandit"`
}

type legacyProfiles struct {
	Profiles legacyTables `json:"profile_table"`
	Updates  int          `json:"total_updates"`
}

// migrateLegacy converts the unversioned list-based layout. Absent sections
// stay nil and are filled by normalize.
func migrateLegacy(raw map[string]json.RawMessage) (*State, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var lp legacyPolicy
	if err := json.Unmarshal(data, &lp); err != nil {
		return nil, err
	}

	s := &State{}
	if lp.Strategy != nil {
		s.Strategy = NewStrategyBandit()
		for name, p := range lp.Strategy.Arms {
			s.Strategy.Arms[name] = bandit.Beta{Alpha: p[0], Beta: p[1]}
		}
	}
	if d := lp.Difficulty; d != nil {
		s.Difficulty = &DifficultyBandit{
			Difficulty: d.Difficulty.entries(),
			Threshold:  d.Threshold.entries(),
			Retest:     d.Retest.entries(),
			Updates:    d.Updates,
		}
	}
	if a := lp.Action; a != nil {
		h := Hyper{Alpha: 0.1, Gamma: 0.9, Epsilon: 0.15}
		if a.Alpha != nil {
			h.Alpha = *a.Alpha
		}
		if a.Gamma != nil {
			h.Gamma = *a.Gamma
		}
		if a.Epsilon != nil {
			h.Epsilon = *a.Epsilon
		}
		s.Action = NewQLearner(h)
		if a.Q != nil {
			s.Action.Q = a.Q
		}
		s.Action.Updates = a.Updates
	}
	if e := lp.Engagement; e != nil {
		s.Engagement = &EngagementBandit{profileTable{Profiles: e.Profiles.entries(), Updates: e.Updates}}
	}
	if sc := lp.Scheduler; sc != nil {
		s.Scheduler = &SchedulerBandit{profileTable{Profiles: sc.Profiles.entries(), Updates: sc.Updates}}
	}
	return s, nil
}

// #endregion legacy
