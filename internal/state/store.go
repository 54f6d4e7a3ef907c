package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS policy_versions (
	version_id    TEXT PRIMARY KEY,
	learner_id    TEXT NOT NULL,
	parent_id     TEXT,
	policy_blob   BLOB NOT NULL,
	review_blob   BLOB,
	created_at    TEXT NOT NULL,
	metrics_json  TEXT,
	FOREIGN KEY (parent_id) REFERENCES policy_versions(version_id)
);
CREATE INDEX IF NOT EXISTS idx_policy_versions_learner ON policy_versions(learner_id, created_at);

CREATE TABLE IF NOT EXISTS active_policy (
	learner_id    TEXT PRIMARY KEY,
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES policy_versions(version_id)
);

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
// #endregion schema

// #region store-struct
// SQLiteStore manages versioned learner records in SQLite.
type SQLiteStore struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewSQLiteStore opens a SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStoreWithDB wraps an already migrated database.
func NewSQLiteStoreWithDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for the logging tables.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}
// #endregion constructor

// #region get
// Get reads the learner's active version.
func (s *SQLiteStore) Get(ctx context.Context, learnerID string) (Record, error) {
	var versionID string
	err := s.db.QueryRowContext(ctx, `SELECT version_id FROM active_policy WHERE learner_id = ?`, learnerID).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("learner %s: %w", learnerID, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(ctx, versionID)
}

// GetVersion retrieves a specific version by id.
func (s *SQLiteStore) GetVersion(ctx context.Context, versionID string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT version_id, learner_id, parent_id, policy_blob, review_blob, created_at, metrics_json
		 FROM policy_versions WHERE version_id = ?`, versionID,
	)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get version %s: %w", versionID, err)
	}
	return rec, nil
}
// #endregion get

// #region commit
// Commit inserts rec and moves the learner's active pointer to it atomically.
func (s *SQLiteStore) Commit(ctx context.Context, rec Record) error {
	if rec.VersionID == "" || rec.LearnerID == "" {
		return fmt.Errorf("commit: version and learner id required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO policy_versions (version_id, learner_id, parent_id, policy_blob, review_blob, created_at, metrics_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.VersionID, rec.LearnerID, nullIfEmpty(rec.ParentID), rec.PolicyBlob, rec.ReviewBlob,
		rec.CreatedAt.UTC().Format(timeLayout), nullIfEmpty(rec.MetricsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO active_policy (learner_id, version_id) VALUES (?, ?)
		 ON CONFLICT(learner_id) DO UPDATE SET version_id = excluded.version_id`,
		rec.LearnerID, rec.VersionID,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	return tx.Commit()
}
// #endregion commit

// #region rollback
// Rollback sets the learner's active pointer to one of its previous versions.
func (s *SQLiteStore) Rollback(ctx context.Context, learnerID, versionID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM policy_versions WHERE version_id = ? AND learner_id = ?`, versionID, learnerID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s for learner %s: %w", versionID, learnerID, ErrNotFound)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE active_policy SET version_id = ? WHERE learner_id = ?`, versionID, learnerID)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
// #endregion rollback

// #region list-versions
// ListVersions returns the learner's most recent versions.
func (s *SQLiteStore) ListVersions(ctx context.Context, learnerID string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id, learner_id, parent_id, policy_blob, review_blob, created_at, metrics_json
		 FROM policy_versions WHERE learner_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, learnerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
// #endregion list-versions

// #region helpers

// timeLayout has fixed-width fractions so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func scanRecord(scan func(dest ...any) error) (Record, error) {
	var rec Record
	var parentID, metricsJSON sql.NullString
	var createdStr string
	if err := scan(&rec.VersionID, &rec.LearnerID, &parentID, &rec.PolicyBlob, &rec.ReviewBlob, &createdStr, &metricsJSON); err != nil {
		return Record{}, err
	}
	rec.ParentID = parentID.String
	rec.MetricsJSON = metricsJSON.String
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
