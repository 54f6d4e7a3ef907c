package state

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a learner has no active version or a version id is unknown.
var ErrNotFound = errors.New("state: not found")

// #region record
// Record is one immutable version of a learner's persisted policy and review queue.
type Record struct {
	VersionID   string    `json:"version_id"`
	LearnerID   string    `json:"learner_id"`
	ParentID    string    `json:"parent_id,omitempty"`
	PolicyBlob  []byte    `json:"policy_blob"`
	ReviewBlob  []byte    `json:"review_blob"`
	CreatedAt   time.Time `json:"created_at"`
	MetricsJSON string    `json:"metrics_json,omitempty"`
}

// NewRecord stamps a fresh version id for learnerID descending from parentID.
func NewRecord(learnerID, parentID string, policyBlob, reviewBlob []byte, now time.Time) Record {
	return Record{
		VersionID:  uuid.New().String(),
		LearnerID:  learnerID,
		ParentID:   parentID,
		PolicyBlob: policyBlob,
		ReviewBlob: reviewBlob,
		CreatedAt:  now.UTC(),
	}
}

// #endregion record

// #region store-interface
// Store persists versioned learner records. Each learner has one active
// version; Commit appends and moves the pointer, Rollback only moves it.
type Store interface {
	// Get returns the learner's active version or ErrNotFound.
	Get(ctx context.Context, learnerID string) (Record, error)
	GetVersion(ctx context.Context, versionID string) (Record, error)
	Commit(ctx context.Context, rec Record) error
	// Rollback points learnerID back at one of its own earlier versions.
	Rollback(ctx context.Context, learnerID, versionID string) error
	// ListVersions returns the newest versions first.
	ListVersions(ctx context.Context, learnerID string, limit int) ([]Record, error)
	Close() error
}

// #endregion store-interface
