package rpc

import (
	"time"

	"github.com/danielpatrickdp/adaptive-tutor/internal/graph"
	"github.com/danielpatrickdp/adaptive-tutor/internal/learner"
	"github.com/danielpatrickdp/adaptive-tutor/internal/policy"
	"github.com/danielpatrickdp/adaptive-tutor/internal/review"
	"github.com/danielpatrickdp/adaptive-tutor/internal/update"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tutor.v1.PolicyService"

// Full method names.
const (
	MethodNextConcept   = "/" + ServiceName + "/NextConcept"
	MethodLearningPath  = "/" + ServiceName + "/LearningPath"
	MethodRecordOutcome = "/" + ServiceName + "/RecordOutcome"
	MethodDueReviews    = "/" + ServiceName + "/DueReviews"
	MethodPolicyStats   = "/" + ServiceName + "/PolicyStats"
)

// #region next-concept

// NextConceptRequest carries the caller-owned learner snapshot.
type NextConceptRequest struct {
	Snapshot learner.Snapshot `json:"snapshot"`
}

// NextConceptResponse is what to teach next and how. Empty ConceptID means
// nothing is left to learn.
type NextConceptResponse struct {
	ConceptID  string `json:"concept_id"`
	Strategy   string `json:"strategy,omitempty"`
	Difficulty int    `json:"difficulty,omitempty"`
	Action     string `json:"action,omitempty"`
	// UrgentReviews is set when a review should preempt new material.
	UrgentReviews bool `json:"urgent_reviews"`
}

// #endregion next-concept

// #region learning-path

// LearningPathRequest plans toward Targets, or the snapshot's career targets
// when empty.
type LearningPathRequest struct {
	Snapshot learner.Snapshot `json:"snapshot"`
	Targets  []string         `json:"targets,omitempty"`
}

type LearningPathResponse struct {
	Steps      []graph.Step `json:"steps"`
	TotalHours float64      `json:"total_hours"`
}

// #endregion learning-path

// #region record-outcome

type RecordOutcomeRequest struct {
	Snapshot learner.Snapshot `json:"snapshot"`
	Event    update.Event     `json:"event"`
}

// RecordOutcomeResponse reports the decision. VersionID is the learner's
// active policy version afterwards.
type RecordOutcomeResponse struct {
	Decision  string         `json:"decision"` // commit | reject | no_op
	Outcome   update.Outcome `json:"outcome,omitempty"`
	Reward    float64        `json:"reward"`
	Reason    string         `json:"reason"`
	VersionID string         `json:"version_id,omitempty"`

	NextReview      *time.Time `json:"next_review,omitempty"`
	ReteachStrategy string     `json:"reteach_strategy,omitempty"`
	ReteachAttempt  int        `json:"reteach_attempt,omitempty"`
	Escalate        bool       `json:"escalate,omitempty"`
	Engagement      string     `json:"engagement,omitempty"`
	Intervention    string     `json:"intervention,omitempty"`
}

// #endregion record-outcome

// #region reviews-and-stats

type DueReviewsRequest struct {
	LearnerID string `json:"learner_id"`
	Limit     int    `json:"limit,omitempty"`
}

type DueReviewsResponse struct {
	Due     []review.DueItem `json:"due"`
	Summary review.Summary   `json:"summary"`
}

// PolicyStatsRequest names a learner and optionally a concept whose
// remembered best strategy should be reported.
type PolicyStatsRequest struct {
	LearnerID string `json:"learner_id"`
	ConceptID string `json:"concept_id,omitempty"`
}

type PolicyStatsResponse struct {
	VersionID       string       `json:"version_id"`
	Stats           policy.Stats `json:"stats"`
	ReviewItems     int          `json:"review_items"`
	BestRemembered  string       `json:"best_remembered_strategy,omitempty"`
	RememberedScore float64      `json:"remembered_score,omitempty"`
}

// #endregion reviews-and-stats
