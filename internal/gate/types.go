package gate

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoInvalidScore      VetoType = "invalid_score"
	VetoInvalidConfidence VetoType = "invalid_confidence"
	VetoUnknownConcept    VetoType = "unknown_concept"
	VetoMissingStrategy   VetoType = "missing_strategy"
	VetoInvalidDifficulty VetoType = "invalid_difficulty"
	VetoInvalidProfile    VetoType = "invalid_profile"
	VetoMisconceptionCap  VetoType = "misconception_cap"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds the accepted ranges for outcome events.
type GateConfig struct {
	MinDifficulty      int
	MaxDifficulty      int
	EngagementProfiles int // number of valid engagement profile indices
	SchedulerProfiles  int // number of valid scheduler profile indices
	MaxMisconceptions  int // per event; 0 disables the check
}

// DefaultGateConfig returns the ranges of the built-in tables.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinDifficulty:      1,
		MaxDifficulty:      3,
		EngagementProfiles: 5,
		SchedulerProfiles:  5,
		MaxMisconceptions:  20,
	}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action      string // "commit" | "reject"
	Reason      string
	Vetoed      bool
	VetoSignals []VetoSignal // non-empty if vetoed
	SoftScore   float64      // 0-1 calibration agreement between confidence and score (for logging)
}

// #endregion gate-decision
