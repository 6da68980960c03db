package grpcapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the Calculator service over a gRPC connection.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial connects to a Calculator service without transport security.
func Dial(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// Call invokes method with req and returns the response fields.
func (c *Client) Call(ctx context.Context, method string, req map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Evaluate evaluates an expression on a throwaway evaluator.
func (c *Client) Evaluate(ctx context.Context, expression string) (map[string]any, error) {
	return c.Call(ctx, "Evaluate", map[string]any{"expression": expression})
}

// EvaluateTokens evaluates a pre-split token list on a throwaway evaluator.
func (c *Client) EvaluateTokens(ctx context.Context, tokens []string) (map[string]any, error) {
	list := make([]any, len(tokens))
	for i, t := range tokens {
		list[i] = t
	}
	return c.Call(ctx, "Evaluate", map[string]any{"tokens": list})
}
