package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// #region schema
const postgresSchema = `
CREATE TABLE IF NOT EXISTS policy_versions (
	version_id    TEXT PRIMARY KEY,
	learner_id    TEXT NOT NULL,
	parent_id     TEXT REFERENCES policy_versions(version_id),
	policy_blob   BYTEA NOT NULL,
	review_blob   BYTEA,
	created_at    TIMESTAMPTZ NOT NULL,
	metrics_json  TEXT
);
CREATE INDEX IF NOT EXISTS idx_policy_versions_learner ON policy_versions(learner_id, created_at);

CREATE TABLE IF NOT EXISTS active_policy (
	learner_id    TEXT PRIMARY KEY,
	version_id    TEXT NOT NULL REFERENCES policy_versions(version_id)
);
`
// #endregion schema

// PostgresStore keeps learner versions in PostgreSQL. Same layout as SQLiteStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL, verifies the connection and migrates.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, learnerID string) (Record, error) {
	var versionID string
	err := s.pool.QueryRow(ctx, `SELECT version_id FROM active_policy WHERE learner_id = $1`, learnerID).Scan(&versionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("learner %s: %w", learnerID, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(ctx, versionID)
}

func (s *PostgresStore) GetVersion(ctx context.Context, versionID string) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT version_id, learner_id, COALESCE(parent_id, ''), policy_blob, review_blob, created_at, COALESCE(metrics_json, '')
		 FROM policy_versions WHERE version_id = $1`, versionID,
	)
	rec, err := scanPgRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get version %s: %w", versionID, err)
	}
	return rec, nil
}

// Commit inserts rec and upserts the active pointer in one transaction.
func (s *PostgresStore) Commit(ctx context.Context, rec Record) error {
	if rec.VersionID == "" || rec.LearnerID == "" {
		return fmt.Errorf("commit: version and learner id required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO policy_versions (version_id, learner_id, parent_id, policy_blob, review_blob, created_at, metrics_json)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.VersionID, rec.LearnerID, nullIfEmpty(rec.ParentID), rec.PolicyBlob, rec.ReviewBlob,
		rec.CreatedAt.UTC(), nullIfEmpty(rec.MetricsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO active_policy (learner_id, version_id) VALUES ($1, $2)
		 ON CONFLICT (learner_id) DO UPDATE SET version_id = EXCLUDED.version_id`,
		rec.LearnerID, rec.VersionID,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Rollback(ctx context.Context, learnerID, versionID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE active_policy SET version_id = $1
		 WHERE learner_id = $2
		   AND EXISTS (SELECT 1 FROM policy_versions WHERE version_id = $1 AND learner_id = $2)`,
		versionID, learnerID,
	)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("version %s for learner %s: %w", versionID, learnerID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, learnerID string, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT version_id, learner_id, COALESCE(parent_id, ''), policy_blob, review_blob, created_at, COALESCE(metrics_json, '')
		 FROM policy_versions WHERE learner_id = $1 ORDER BY created_at DESC LIMIT $2`, learnerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanPgRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return records, nil
}

func scanPgRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.VersionID, &rec.LearnerID, &rec.ParentID, &rec.PolicyBlob, &rec.ReviewBlob, &rec.CreatedAt, &rec.MetricsJSON)
	if err != nil {
		return Record{}, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}
