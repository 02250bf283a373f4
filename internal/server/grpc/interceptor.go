package grpc

import (
	"context"

	"github.com/dmitrijs2005/chatrelay/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const (
	usernameKey ctxKey = "username"
	tokenKey    ctxKey = "session_token"
)

// publicMethods may be called without a session.
var publicMethods = map[string]struct{}{
	MethodAuth: {},
}

func sessionTokenFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(common.GRPCSessionTokenKey)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// sessionTokenInterceptor resolves the session_token metadata of every
// non-public call and stores the user and token in the context.
func (s *GRPCServer) sessionTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if _, ok := publicMethods[info.FullMethod]; ok {
		return handler(ctx, req)
	}

	token := sessionTokenFromContext(ctx)
	if len(token) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	username, ok := s.engine.Resolve(ctx, token)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, common.ErrUnauthenticated.Error())
	}

	ctx = context.WithValue(ctx, usernameKey, username)
	ctx = context.WithValue(ctx, tokenKey, token)
	return handler(ctx, req)
}

func sessionFromContext(ctx context.Context) (string, string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	if !ok {
		return "", "", false
	}
	token, _ := ctx.Value(tokenKey).(string)
	return username, token, true
}
