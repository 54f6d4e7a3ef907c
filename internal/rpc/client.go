package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region client-struct
// Client wraps a gRPC connection to a PolicyService.
type Client struct {
	conn grpc.ClientConnInterface
	cc   *grpc.ClientConn // owned connection, nil when injected
}

// #endregion client-struct

// #region constructor
// NewClient connects to a PolicyService at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: cc, cc: cc}, nil
}

// NewClientWithConn creates a Client over an existing connection. Close does
// not close it.
func NewClientWithConn(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Close shuts down an owned connection.
func (c *Client) Close() error {
	if c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// #endregion constructor

// #region calls

func (c *Client) NextConcept(ctx context.Context, req NextConceptRequest) (NextConceptResponse, error) {
	var resp NextConceptResponse
	err := c.invoke(ctx, MethodNextConcept, req, &resp)
	return resp, err
}

func (c *Client) LearningPath(ctx context.Context, req LearningPathRequest) (LearningPathResponse, error) {
	var resp LearningPathResponse
	err := c.invoke(ctx, MethodLearningPath, req, &resp)
	return resp, err
}

func (c *Client) RecordOutcome(ctx context.Context, req RecordOutcomeRequest) (RecordOutcomeResponse, error) {
	var resp RecordOutcomeResponse
	err := c.invoke(ctx, MethodRecordOutcome, req, &resp)
	return resp, err
}

func (c *Client) DueReviews(ctx context.Context, req DueReviewsRequest) (DueReviewsResponse, error) {
	var resp DueReviewsResponse
	err := c.invoke(ctx, MethodDueReviews, req, &resp)
	return resp, err
}

func (c *Client) PolicyStats(ctx context.Context, req PolicyStatsRequest) (PolicyStatsResponse, error) {
	var resp PolicyStatsResponse
	err := c.invoke(ctx, MethodPolicyStats, req, &resp)
	return resp, err
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return fmt.Errorf("%s rpc: %w", method, err)
	}
	return fromStruct(out, resp)
}

// #endregion calls
