// Package rpc exposes the tutoring core as a gRPC PolicyService. Messages
// are google.protobuf.Struct payloads carrying the JSON form of the request
// and response types in this package.
package rpc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-tutor/internal/graph"
	"github.com/danielpatrickdp/adaptive-tutor/internal/logging"
	"github.com/danielpatrickdp/adaptive-tutor/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-tutor/internal/pkg/logger"
	"github.com/danielpatrickdp/adaptive-tutor/internal/policy"
	"github.com/danielpatrickdp/adaptive-tutor/internal/review"
	"github.com/danielpatrickdp/adaptive-tutor/internal/state"
	"github.com/danielpatrickdp/adaptive-tutor/internal/update"
)

const defaultDueLimit = 10

// #region server

// PolicyServer is the service implementation registered by Register.
type PolicyServer interface {
	NextConcept(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LearningPath(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordOutcome(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DueReviews(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PolicyStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Options wires the optional collaborators of a Server.
type Options struct {
	// Decisions receives one decision_log row per recorded outcome.
	Decisions *sql.DB
	// Memory remembers strategy outcomes across policy versions.
	Memory *logging.StrategyMemory
	// Rng returns the generator for one request. Nil selects a fresh random
	// source per request; a func returning nil makes every choice greedy.
	Rng func() *rand.Rand
	Log *logger.Logger
}

// Server serves the PolicyService over a Core and a per-learner Manager.
type Server struct {
	core *orchestrator.Core
	mgr  *state.Manager
	opts Options
	log  *logger.Logger
}

func NewServer(core *orchestrator.Core, mgr *state.Manager, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	if opts.Rng == nil {
		opts.Rng = func() *rand.Rand { return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) }
	}
	return &Server{core: core, mgr: mgr, opts: opts, log: log.With("component", "rpc")}
}

// Register attaches srv to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv PolicyServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the PolicyService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PolicyServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "NextConcept", Handler: unary(MethodNextConcept, PolicyServer.NextConcept)},
		{MethodName: "LearningPath", Handler: unary(MethodLearningPath, PolicyServer.LearningPath)},
		{MethodName: "RecordOutcome", Handler: unary(MethodRecordOutcome, PolicyServer.RecordOutcome)},
		{MethodName: "DueReviews", Handler: unary(MethodDueReviews, PolicyServer.DueReviews)},
		{MethodName: "PolicyStats", Handler: unary(MethodPolicyStats, PolicyServer.PolicyStats)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tutor/v1/policy.proto",
}

type call func(PolicyServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(fullMethod string, fn call) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(srv.(PolicyServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return fn(srv.(PolicyServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// #endregion server

// #region next-concept

func (s *Server) NextConcept(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req NextConceptRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	snap := req.Snapshot

	next, err := s.core.SelectNextConcept(&snap)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := NextConceptResponse{ConceptID: next}

	// Strategy and difficulty come from the stored policy when there is one
	if snap.LearnerID != "" {
		rec, err := s.mgr.Store().Get(ctx, snap.LearnerID)
		if err != nil && !errors.Is(err, state.ErrNotFound) {
			return nil, toStatus(err)
		}
		snap.PolicyBlob, snap.ReviewBlob = rec.PolicyBlob, rec.ReviewBlob
	}
	sess := s.core.NewSession(&snap, s.opts.Rng())
	resp.UrgentReviews = sess.HasUrgentReviews()
	if next != "" {
		resp.Strategy = sess.SelectStrategy(next, nil)
		resp.Difficulty = sess.SelectDifficulty(next)
		resp.Action = string(sess.SelectNextAction(next))
	}
	return encode(resp)
}

// #endregion next-concept

// #region learning-path

func (s *Server) LearningPath(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req LearningPathRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	targets := req.Targets
	if len(targets) == 0 {
		targets = req.Snapshot.Targets()
	}
	if len(targets) == 0 {
		targets = s.core.Graph().IDs()
	}

	steps, err := s.core.ComputeLearningPath(targets, req.Snapshot.Mastered(), req.Snapshot.DomainVelocities)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := LearningPathResponse{Steps: steps}
	if resp.Steps == nil {
		resp.Steps = []graph.Step{}
	}
	for _, st := range steps {
		resp.TotalHours += st.EstimatedHours
	}
	return encode(resp)
}

// #endregion learning-path

// #region record-outcome

// RecordOutcome runs one evaluated test under the learner's lock. Accepted
// outcomes commit a new policy version; every outcome is logged.
func (s *Server) RecordOutcome(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req RecordOutcomeRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	learnerID := req.Snapshot.LearnerID
	if learnerID == "" {
		learnerID = req.Event.LearnerID
	}
	if learnerID == "" {
		return nil, status.Error(codes.InvalidArgument, "learner_id is required")
	}

	snap := req.Snapshot
	snap.LearnerID = learnerID
	ev := req.Event
	ev.LearnerID = learnerID
	if ev.At.IsZero() {
		ev.At = s.now()
	}

	var res orchestrator.OutcomeResult
	rec, err := s.mgr.WithLearner(ctx, learnerID, func(_ context.Context, cur state.Record) (*state.Record, error) {
		snap.PolicyBlob, snap.ReviewBlob = cur.PolicyBlob, cur.ReviewBlob
		sess := s.core.NewSession(&snap, s.opts.Rng())

		r, err := sess.RecordOutcome(ev)
		if err != nil {
			return nil, err
		}
		res = r
		if !r.Accepted {
			return nil, nil
		}
		policyBlob, reviewBlob, err := sess.Blobs()
		if err != nil {
			return nil, err
		}
		metrics, err := json.Marshal(map[string]any{
			"concept_id": ev.ConceptID,
			"outcome":    r.Outcome,
			"reward":     r.Reward,
			"eval":       r.Eval.Reason,
		})
		if err != nil {
			return nil, err
		}
		return &state.Record{PolicyBlob: policyBlob, ReviewBlob: reviewBlob, MetricsJSON: string(metrics)}, nil
	})
	if err != nil {
		return nil, toStatus(err)
	}

	entry, err := logging.EntryFor(learnerID, rec.VersionID, ev, res)
	if err != nil {
		return nil, toStatus(err)
	}
	s.record(entry, ev, res)

	resp := RecordOutcomeResponse{
		Decision:     entry.Decision,
		Outcome:      res.Outcome,
		Reward:       res.Reward,
		Reason:       entry.Reason,
		VersionID:    rec.VersionID,
		Engagement:   string(res.Engagement),
		Intervention: string(res.Intervention),
	}
	if res.Review != nil {
		next := res.Review.NextReview
		resp.NextReview = &next
	}
	if res.Reteach != nil {
		resp.ReteachStrategy = res.Reteach.Strategy
		resp.ReteachAttempt = res.Reteach.Attempt
		resp.Escalate = res.Reteach.Escalate
	}
	return encode(resp)
}

// record writes provenance. Failures are logged, never returned: the policy
// version is already committed.
func (s *Server) record(entry logging.DecisionEntry, ev update.Event, res orchestrator.OutcomeResult) {
	if s.opts.Decisions != nil {
		if err := logging.LogDecision(s.opts.Decisions, entry); err != nil {
			s.log.Error("log decision", "learner_id", entry.LearnerID, "error", err)
		}
	}
	if s.opts.Memory != nil && !res.Gate.Vetoed {
		err := s.opts.Memory.Record(logging.StrategyOutcome{
			LearnerID: entry.LearnerID,
			ConceptID: ev.ConceptID,
			Strategy:  ev.Strategy,
			Score:     ev.Score,
			Outcome:   string(res.Outcome),
			Accepted:  res.Accepted,
			CreatedAt: ev.At,
		})
		if err != nil {
			s.log.Error("record strategy outcome", "learner_id", entry.LearnerID, "error", err)
		}
	}
}

// #endregion record-outcome

// #region reviews-and-stats

func (s *Server) DueReviews(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req DueReviewsRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.LearnerID == "" {
		return nil, status.Error(codes.InvalidArgument, "learner_id is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultDueLimit
	}

	rec, err := s.mgr.Store().Get(ctx, req.LearnerID)
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		return nil, toStatus(err)
	}
	q, err := review.Unmarshal(rec.ReviewBlob)
	if err != nil {
		s.log.Warn("corrupt review queue", "learner_id", req.LearnerID, "error", err)
		q = review.NewQueue()
	}

	now := s.now()
	resp := DueReviewsResponse{Due: q.Due(now, limit), Summary: q.Summary(now)}
	if resp.Due == nil {
		resp.Due = []review.DueItem{}
	}
	return encode(resp)
}

func (s *Server) PolicyStats(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req PolicyStatsRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.LearnerID == "" {
		return nil, status.Error(codes.InvalidArgument, "learner_id is required")
	}

	rec, err := s.mgr.Store().Get(ctx, req.LearnerID)
	if err != nil {
		return nil, toStatus(err)
	}
	pol, err := policy.Load(rec.PolicyBlob, 0)
	if err != nil {
		s.log.Warn("corrupt policy blob", "learner_id", req.LearnerID, "version_id", rec.VersionID, "error", err)
	}
	resp := PolicyStatsResponse{VersionID: rec.VersionID, Stats: pol.Stats()}
	if q, err := review.Unmarshal(rec.ReviewBlob); err == nil {
		resp.ReviewItems = q.Len()
	}
	if s.opts.Memory != nil && req.ConceptID != "" {
		best, score, err := s.opts.Memory.BestStrategy(req.LearnerID, req.ConceptID, s.now())
		if err != nil {
			return nil, toStatus(err)
		}
		resp.BestRemembered, resp.RememberedScore = best, score
	}
	return encode(resp)
}

// #endregion reviews-and-stats

// #region helpers

func (s *Server) now() time.Time {
	if clock := s.core.Config().Clock; clock != nil {
		return clock().UTC()
	}
	return time.Now().UTC()
}

func encode(v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, state.ErrNotFound), errors.Is(err, graph.ErrConceptNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// #endregion helpers
