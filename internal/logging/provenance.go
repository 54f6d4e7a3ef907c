package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/danielpatrickdp/adaptive-tutor/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-tutor/internal/update"
)

// Schema creates decision_log. state.SQLiteStore runs the same DDL.
const Schema = `
CREATE TABLE IF NOT EXISTS decision_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	learner_id    TEXT NOT NULL,
	version_id    TEXT,
	concept_id    TEXT NOT NULL,
	event_json    TEXT,
	decision      TEXT NOT NULL,
	outcome       TEXT,
	reward        REAL NOT NULL DEFAULT 0,
	reason        TEXT,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decision_log_learner ON decision_log(learner_id, id);
`

// #region record
// NewDecisionRecord flattens an event and its outcome into a replayable record.
// Non-finite score or confidence values are zeroed and kept as text in Raw*.
func NewDecisionRecord(ev update.Event, res orchestrator.OutcomeResult) DecisionRecord {
	rec := DecisionRecord{
		Event:         ev,
		GateAction:    res.Gate.Action,
		GateVetoed:    res.Gate.Vetoed,
		GateReason:    res.Gate.Reason,
		GateSoftScore: finite(res.Gate.SoftScore),
		Outcome:       string(res.Outcome),
		Reward:        finite(res.Reward),
		EvalPassed:    res.Eval.Passed,
		EvalReason:    res.Eval.Reason,
		RolledBack:    res.RolledBack,
	}
	for _, v := range res.Gate.VetoSignals {
		rec.VetoTypes = append(rec.VetoTypes, string(v.Type))
	}
	if !isFinite(ev.Score) {
		rec.RawScore = strconv.FormatFloat(ev.Score, 'g', -1, 64)
		rec.Event.Score = 0
	}
	if !isFinite(ev.Confidence) {
		rec.RawConfidence = strconv.FormatFloat(ev.Confidence, 'g', -1, 64)
		rec.Event.Confidence = 0
	}
	return rec
}

// EntryFor builds the decision_log row for one RecordOutcome call.
// versionID is the version the caller committed, empty when nothing was.
func EntryFor(learnerID, versionID string, ev update.Event, res orchestrator.OutcomeResult) (DecisionEntry, error) {
	raw, err := json.Marshal(NewDecisionRecord(ev, res))
	if err != nil {
		return DecisionEntry{}, fmt.Errorf("marshal decision record: %w", err)
	}
	entry := DecisionEntry{
		LearnerID: learnerID,
		VersionID: versionID,
		ConceptID: ev.ConceptID,
		EventJSON: string(raw),
		Outcome:   string(res.Outcome),
		Reward:    finite(res.Reward),
		CreatedAt: ev.At,
	}
	switch {
	case res.Gate.Vetoed:
		entry.Decision, entry.Reason = DecisionReject, res.Gate.Reason
	case res.RolledBack:
		entry.Decision, entry.Reason = DecisionNoOp, res.Eval.Reason
	default:
		entry.Decision, entry.Reason = DecisionCommit, "accepted"
	}
	return entry, nil
}
// #endregion record

// #region log-decision
// LogDecision writes a decision entry to the decision_log table.
func LogDecision(db *sql.DB, entry DecisionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO decision_log (learner_id, version_id, concept_id, event_json, decision, outcome, reward, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.LearnerID,
		nullIfEmpty(entry.VersionID),
		entry.ConceptID,
		nullIfEmpty(entry.EventJSON),
		entry.Decision,
		nullIfEmpty(entry.Outcome),
		entry.Reward,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}
// #endregion log-decision

// #region list-decisions
// ListDecisions returns the learner's most recent decisions, newest first.
func ListDecisions(db *sql.DB, learnerID string, limit int) ([]DecisionEntry, error) {
	rows, err := db.Query(
		`SELECT id, learner_id, version_id, concept_id, event_json, decision, outcome, reward, reason, created_at
		 FROM decision_log WHERE learner_id = ? ORDER BY id DESC LIMIT ?`, learnerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionEntry
	for rows.Next() {
		var e DecisionEntry
		var versionID, eventJSON, outcome, reason sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.LearnerID, &versionID, &e.ConceptID, &eventJSON, &e.Decision, &outcome, &e.Reward, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.VersionID = versionID.String
		e.EventJSON = eventJSON.String
		e.Outcome = outcome.String
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
// #endregion list-decisions

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func finite(v float64) float64 {
	if isFinite(v) {
		return v
	}
	return 0
}
// #endregion helpers
