package logging

// #region imports
import (
	"database/sql"
	"fmt"
	"math"
	"time"
)

// #endregion

// #region schema

const strategyOutcomesSchema = `
CREATE TABLE IF NOT EXISTS strategy_outcomes (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    learner_id    TEXT NOT NULL,
    concept_id    TEXT NOT NULL,
    strategy      TEXT NOT NULL,
    score         REAL NOT NULL,
    outcome       TEXT NOT NULL DEFAULT '',
    accepted      INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL
);
`

const strategyOutcomesIndex = `
CREATE INDEX IF NOT EXISTS idx_strategy_outcomes_lookup
ON strategy_outcomes(learner_id, concept_id, strategy);
`

const (
	minTrendSamples = 3
	trendDecayHours = 7.0 * 24.0
)

// #endregion

// #region memory-struct

// StrategyMemory persists per-learner strategy outcomes in SQLite and
// answers which strategy has recently worked best on a concept.
type StrategyMemory struct {
	db *sql.DB
}

// NewStrategyMemory initializes the strategy_outcomes table and returns a StrategyMemory.
func NewStrategyMemory(db *sql.DB) (*StrategyMemory, error) {
	if _, err := db.Exec(strategyOutcomesSchema); err != nil {
		return nil, fmt.Errorf("strategy outcomes schema: %w", err)
	}
	if _, err := db.Exec(strategyOutcomesIndex); err != nil {
		return nil, fmt.Errorf("strategy outcomes index: %w", err)
	}
	return &StrategyMemory{db: db}, nil
}

// #endregion

// #region record

// Record persists a single strategy outcome row.
func (m *StrategyMemory) Record(o StrategyOutcome) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	accepted := 0
	if o.Accepted {
		accepted = 1
	}
	_, err := m.db.Exec(`
		INSERT INTO strategy_outcomes
		(learner_id, concept_id, strategy, score, outcome, accepted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.LearnerID, o.ConceptID, o.Strategy, finite(o.Score), o.Outcome, accepted,
		o.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record strategy outcome: %w", err)
	}
	return nil
}

// #endregion

// #region best-strategy

// BestStrategy returns the strategy with the highest decay-weighted score
// among accepted outcomes for (learnerID, conceptID) as of now. Weights fall
// off as exp(-age/7d). Strategies with fewer than 3 samples are ignored;
// returns ("", 0, nil) when none qualifies.
func (m *StrategyMemory) BestStrategy(learnerID, conceptID string, now time.Time) (string, float64, error) {
	rows, err := m.db.Query(`
		SELECT strategy, score, created_at
		FROM strategy_outcomes
		WHERE learner_id = ? AND concept_id = ? AND accepted = 1`,
		learnerID, conceptID,
	)
	if err != nil {
		return "", 0, fmt.Errorf("query strategy outcomes: %w", err)
	}
	defer rows.Close()

	type accum struct {
		weightedSum float64
		totalWeight float64
		count       int
	}
	byStrategy := make(map[string]*accum)

	for rows.Next() {
		var strategy, createdAtStr string
		var score float64
		if err := rows.Scan(&strategy, &score, &createdAtStr); err != nil {
			return "", 0, fmt.Errorf("scan strategy outcome: %w", err)
		}
		createdAt, err := time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			continue
		}
		ageHours := math.Max(0, now.Sub(createdAt).Hours())
		weight := math.Exp(-ageHours / trendDecayHours)

		a, ok := byStrategy[strategy]
		if !ok {
			a = &accum{}
			byStrategy[strategy] = a
		}
		a.weightedSum += score * weight
		a.totalWeight += weight
		a.count++
	}
	if err := rows.Err(); err != nil {
		return "", 0, err
	}

	best, bestScore := "", -1.0
	for strategy, a := range byStrategy {
		if a.count < minTrendSamples || a.totalWeight == 0 {
			continue
		}
		avg := a.weightedSum / a.totalWeight
		if avg > bestScore || (avg == bestScore && strategy < best) {
			best, bestScore = strategy, avg
		}
	}
	if best == "" {
		return "", 0, nil
	}
	return best, bestScore, nil
}

// #endregion
