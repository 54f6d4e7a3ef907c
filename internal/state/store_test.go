package state

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

var ctx = context.Background()

func tempDB(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(learnerID, versionID, parentID string, at time.Time) Record {
	return Record{
		VersionID:  versionID,
		LearnerID:  learnerID,
		ParentID:   parentID,
		PolicyBlob: []byte(`{"schema_version":1}`),
		ReviewBlob: []byte(`{"schema_version":1,"items":[]}`),
		CreatedAt:  at,
	}
}

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestGetUnknownLearner(t *testing.T) {
	s := tempDB(t)

	_, err := s.Get(ctx, "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCommitAndGet(t *testing.T) {
	s := tempDB(t)

	rec := NewRecord("alice", "", []byte("p1"), []byte("r1"), t0)
	if rec.VersionID == "" {
		t.Fatal("expected generated version id")
	}
	if err := s.Commit(ctx, rec); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	cur, err := s.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cur.VersionID != rec.VersionID || string(cur.PolicyBlob) != "p1" || string(cur.ReviewBlob) != "r1" {
		t.Fatalf("unexpected record %+v", cur)
	}
	if !cur.CreatedAt.Equal(t0) {
		t.Fatalf("expected created_at %v, got %v", t0, cur.CreatedAt)
	}
	if cur.ParentID != "" {
		t.Fatalf("expected empty parent, got %q", cur.ParentID)
	}
}

func TestCommitRequiresIDs(t *testing.T) {
	s := tempDB(t)

	if err := s.Commit(ctx, Record{LearnerID: "alice"}); err == nil {
		t.Fatal("expected error for missing version id")
	}
	if err := s.Commit(ctx, Record{VersionID: "v1"}); err == nil {
		t.Fatal("expected error for missing learner id")
	}
}

func TestCommitAndRollback(t *testing.T) {
	s := tempDB(t)

	v1 := record("alice", "v1", "", t0)
	v2 := record("alice", "v2", "v1", t0.Add(time.Minute))
	v2.PolicyBlob = []byte("second")
	for _, r := range []Record{v1, v2} {
		if err := s.Commit(ctx, r); err != nil {
			t.Fatalf("Commit %s: %v", r.VersionID, err)
		}
	}

	cur, _ := s.Get(ctx, "alice")
	if cur.VersionID != "v2" || string(cur.PolicyBlob) != "second" {
		t.Fatalf("expected v2, got %s", cur.VersionID)
	}
	if cur.ParentID != "v1" {
		t.Fatalf("expected parent v1, got %q", cur.ParentID)
	}

	if err := s.Rollback(ctx, "alice", "v1"); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	cur, _ = s.Get(ctx, "alice")
	if cur.VersionID != "v1" {
		t.Fatalf("expected v1 after rollback, got %s", cur.VersionID)
	}
}

func TestLearnersAreIsolated(t *testing.T) {
	s := tempDB(t)
	s.Commit(ctx, record("alice", "a1", "", t0))
	s.Commit(ctx, record("bob", "b1", "", t0))

	cur, _ := s.Get(ctx, "alice")
	if cur.VersionID != "a1" {
		t.Fatalf("expected a1, got %s", cur.VersionID)
	}

	// bob cannot be rolled onto alice's version
	err := s.Rollback(ctx, "bob", "a1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	versions, err := s.ListVersions(ctx, "bob", 10)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 1 || versions[0].VersionID != "b1" {
		t.Fatalf("expected only b1, got %+v", versions)
	}
}

func TestRollbackNonExistent(t *testing.T) {
	s := tempDB(t)
	s.Commit(ctx, record("alice", "v1", "", t0))

	err := s.Rollback(ctx, "alice", "nonexistent-id")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListVersionsNewestFirst(t *testing.T) {
	s := tempDB(t)
	s.Commit(ctx, record("alice", "v1", "", t0))
	s.Commit(ctx, record("alice", "v2", "v1", t0.Add(time.Hour)))
	s.Commit(ctx, record("alice", "v3", "v2", t0.Add(2*time.Hour)))

	versions, err := s.ListVersions(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if versions[0].VersionID != "v3" || versions[1].VersionID != "v2" {
		t.Fatalf("unexpected order %s, %s", versions[0].VersionID, versions[1].VersionID)
	}
}

func TestMetricsJSONRoundTrip(t *testing.T) {
	s := tempDB(t)
	rec := record("alice", "v1", "", t0)
	rec.MetricsJSON = `{"reward":14.5,"tables_hit":["strategy"]}`
	if err := s.Commit(ctx, rec); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := s.GetVersion(ctx, "v1")
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if got.MetricsJSON != rec.MetricsJSON {
		t.Fatalf("MetricsJSON mismatch: got %q, want %q", got.MetricsJSON, rec.MetricsJSON)
	}
}

func TestGetVersionNotFound(t *testing.T) {
	s := tempDB(t)

	_, err := s.GetVersion(ctx, "nonexistent-id")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewSQLiteStoreInvalidPath(t *testing.T) {
	_, err := NewSQLiteStore(filepath.Join(string(os.PathSeparator), "nonexistent", "deep", "path", "test.db"))
	if err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestOperationsOnClosedDB(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewSQLiteStore(filepath.Join(dir, "test.db"))
	s.Commit(ctx, record("alice", "v1", "", t0))
	s.Close()

	if _, err := s.Get(ctx, "alice"); err == nil {
		t.Fatal("Get: expected error on closed DB")
	}
	if err := s.Commit(ctx, record("alice", "v2", "v1", t0)); err == nil {
		t.Fatal("Commit: expected error on closed DB")
	}
	if err := s.Rollback(ctx, "alice", "v1"); err == nil {
		t.Fatal("Rollback: expected error on closed DB")
	}
	if _, err := s.ListVersions(ctx, "alice", 10); err == nil {
		t.Fatal("ListVersions: expected error on closed DB")
	}
}

// corruptDB opens an in-memory SQLite with the full schema so tests can drop tables.
func corruptDB(t *testing.T) (*SQLiteStore, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStoreWithDB(db), db
}

func TestCommit_InsertFails(t *testing.T) {
	s, db := corruptDB(t)
	db.Exec("DROP TABLE active_policy")
	db.Exec("DROP TABLE policy_versions")

	if err := s.Commit(ctx, record("alice", "v1", "", t0)); err == nil {
		t.Fatal("expected error when policy_versions is missing")
	}
}

func TestCommit_SetActiveFails(t *testing.T) {
	s, db := corruptDB(t)
	db.Exec("DROP TABLE active_policy")

	if err := s.Commit(ctx, record("alice", "v1", "", t0)); err == nil {
		t.Fatal("expected error when active_policy is missing")
	}
	// the version insert must not survive the failed transaction
	var n int
	db.QueryRow("SELECT COUNT(*) FROM policy_versions").Scan(&n)
	if n != 0 {
		t.Fatalf("expected rolled back insert, found %d rows", n)
	}
}
