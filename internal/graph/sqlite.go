package graph

import (
	"database/sql"
	"fmt"
	"time"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS concepts (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL DEFAULT '',
    domain          TEXT NOT NULL DEFAULT '',
    difficulty_tier INTEGER NOT NULL,
    base_hours      REAL NOT NULL DEFAULT 2.0,
    decay_days      INTEGER NOT NULL DEFAULT 30,
    position        INTEGER NOT NULL,
    created_at      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS concept_edges (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id   TEXT NOT NULL,
    target_id   TEXT NOT NULL,
    edge_type   TEXT NOT NULL,
    strength    REAL NOT NULL DEFAULT 0,
    ordinal     INTEGER NOT NULL DEFAULT 0,
    UNIQUE(source_id, target_id, edge_type)
);
CREATE INDEX IF NOT EXISTS idx_concept_edges_source ON concept_edges(source_id);
CREATE INDEX IF NOT EXISTS idx_concept_edges_target ON concept_edges(target_id);
`

// requiresEdge marks a prerequisite link (source requires target).
const requiresEdge = "requires"

// #endregion schema

// #region store
// SQLiteStore persists a concept graph in the concepts and concept_edges tables.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates tables and returns a SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("graph schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// #endregion store

// #region save
// Save writes every concept of g. Concepts already stored are left untouched,
// matching the append-only contract of Graph.Add. Returns the number inserted.
func (s *SQLiteStore) Save(g *Graph) (int, error) {
	var base int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(position), -1) + 1 FROM concepts`).Scan(&base); err != nil {
		return 0, fmt.Errorf("graph save position: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("graph save begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	inserted := 0
	for i, c := range g.Concepts() {
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO concepts (id, name, domain, difficulty_tier, base_hours, decay_days, position, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Domain, c.DifficultyTier, c.BaseHours, c.DecayDays, base+i, now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert concept %s: %w", c.ID, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			continue
		}
		inserted++

		for j, p := range c.Prerequisites {
			if _, err := tx.Exec(
				`INSERT OR IGNORE INTO concept_edges (source_id, target_id, edge_type, strength, ordinal)
				 VALUES (?, ?, ?, 0, ?)`,
				c.ID, p, requiresEdge, j,
			); err != nil {
				return 0, fmt.Errorf("insert prerequisite %s->%s: %w", c.ID, p, err)
			}
		}
		for j, e := range c.Transfers {
			if _, err := tx.Exec(
				`INSERT OR IGNORE INTO concept_edges (source_id, target_id, edge_type, strength, ordinal)
				 VALUES (?, ?, ?, ?, ?)`,
				c.ID, e.Target, string(e.Kind), e.Strength, j,
			); err != nil {
				return 0, fmt.Errorf("insert transfer %s->%s: %w", c.ID, e.Target, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("graph save commit: %w", err)
	}
	return inserted, nil
}

// #endregion save

// #region load
// Load reads all stored concepts into a new Graph and validates it.
func (s *SQLiteStore) Load() (*Graph, error) {
	rows, err := s.db.Query(
		`SELECT id, name, domain, difficulty_tier, base_hours, decay_days
		 FROM concepts ORDER BY position`,
	)
	if err != nil {
		return nil, fmt.Errorf("load concepts: %w", err)
	}
	var concepts []Concept
	index := make(map[string]int)
	for rows.Next() {
		var c Concept
		if err := rows.Scan(&c.ID, &c.Name, &c.Domain, &c.DifficultyTier, &c.BaseHours, &c.DecayDays); err != nil {
			rows.Close()
			return nil, err
		}
		index[c.ID] = len(concepts)
		concepts = append(concepts, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edges, err := s.db.Query(
		`SELECT source_id, target_id, edge_type, strength
		 FROM concept_edges ORDER BY source_id, edge_type, ordinal`,
	)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	defer edges.Close()
	for edges.Next() {
		var src, dst, kind string
		var strength float64
		if err := edges.Scan(&src, &dst, &kind, &strength); err != nil {
			return nil, err
		}
		i, ok := index[src]
		if !ok {
			return nil, fmt.Errorf("%w: edge from unknown concept %s", ErrMalformedGraph, src)
		}
		if kind == requiresEdge {
			concepts[i].Prerequisites = append(concepts[i].Prerequisites, dst)
			continue
		}
		concepts[i].Transfers = append(concepts[i].Transfers, TransferEdge{Target: dst, Strength: strength, Kind: EdgeKind(kind)})
	}
	if err := edges.Err(); err != nil {
		return nil, err
	}

	g := New()
	if _, err := g.Add(concepts...); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// #endregion load

// #region neighbors
// Transfers returns the outgoing transfer edges of id with strength >= minStrength,
// strongest first.
func (s *SQLiteStore) Transfers(id string, minStrength float64) ([]TransferEdge, error) {
	rows, err := s.db.Query(
		`SELECT target_id, edge_type, strength
		 FROM concept_edges
		 WHERE source_id = ? AND edge_type != ? AND strength >= ?
		 ORDER BY strength DESC, target_id`,
		id, requiresEdge, minStrength,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransferEdge
	for rows.Next() {
		var e TransferEdge
		var kind string
		if err := rows.Scan(&e.Target, &kind, &e.Strength); err != nil {
			return nil, err
		}
		e.Kind = EdgeKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion neighbors
