package grpc

import (
	"context"

	"github.com/dmitrijs2005/chatrelay/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// RelayServiceClient calls the relay service over an existing connection.
type RelayServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewRelayServiceClient(cc grpc.ClientConnInterface) *RelayServiceClient {
	return &RelayServiceClient{cc: cc}
}

func (c *RelayServiceClient) invoke(ctx context.Context, method string, in map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RelayServiceClient) Auth(ctx context.Context, in map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodAuth, in, opts...)
}

func (c *RelayServiceClient) Send(ctx context.Context, in map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodSend, in, opts...)
}

func (c *RelayServiceClient) History(ctx context.Context, in map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodHistory, in, opts...)
}

func (c *RelayServiceClient) Logout(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodLogout, map[string]any{}, opts...)
}

// WithSessionToken returns ctx carrying token in the outgoing metadata,
// replacing any token already set.
func WithSessionToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.GRPCSessionTokenKey, token)
	return metadata.NewOutgoingContext(ctx, md)
}
