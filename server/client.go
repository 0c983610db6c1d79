package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
)

// Client calls WeaverService over Connect.
type Client struct {
	resolve *connect.Client[ResolveRequest, ResolveResponse]
	weave   *connect.Client[WeaveRequest, WeaveResponse]
	release *connect.Client[ReleaseRequest, ReleaseResponse]
}

// NewClient returns a Connect client for the server at baseURL, for example
// "http://localhost:8750".
func NewClient(httpClient connect.HTTPClient, baseURL string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts := connect.WithCodec(cborCodec{})
	return &Client{
		resolve: connect.NewClient[ResolveRequest, ResolveResponse](httpClient, baseURL+ResolveProcedure, opts),
		weave:   connect.NewClient[WeaveRequest, WeaveResponse](httpClient, baseURL+WeaveProcedure, opts),
		release: connect.NewClient[ReleaseRequest, ReleaseResponse](httpClient, baseURL+ReleaseProcedure, opts),
	}
}

// Resolve calls WeaverService.Resolve.
func (c *Client) Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResponse, error) {
	res, err := c.resolve.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

// Weave calls WeaverService.Weave.
func (c *Client) Weave(ctx context.Context, req *WeaveRequest) (*WeaveResponse, error) {
	res, err := c.weave.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

// Release calls WeaverService.Release.
func (c *Client) Release(ctx context.Context, req *ReleaseRequest) (*ReleaseResponse, error) {
	res, err := c.release.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

// GRPCClient calls WeaverService over a gRPC connection.
type GRPCClient struct {
	cc grpc.ClientConnInterface
}

// NewGRPCClient wraps cc.
func NewGRPCClient(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{cc: cc}
}

func (c *GRPCClient) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, method, in, out, grpc.ForceCodec(cborCodec{}))
}

// Resolve calls WeaverService.Resolve.
func (c *GRPCClient) Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResponse, error) {
	out := new(ResolveResponse)
	if err := c.invoke(ctx, ResolveProcedure, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Weave calls WeaverService.Weave.
func (c *GRPCClient) Weave(ctx context.Context, req *WeaveRequest) (*WeaveResponse, error) {
	out := new(WeaveResponse)
	if err := c.invoke(ctx, WeaveProcedure, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Release calls WeaverService.Release.
func (c *GRPCClient) Release(ctx context.Context, req *ReleaseRequest) (*ReleaseResponse, error) {
	out := new(ReleaseResponse)
	if err := c.invoke(ctx, ReleaseProcedure, req, out); err != nil {
		return nil, err
	}
	return out, nil
}
