package grpc

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/chatrelay/internal/common"
	"github.com/dmitrijs2005/chatrelay/internal/server/models"
	"github.com/dmitrijs2005/chatrelay/internal/server/protocol"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// toStatus maps relay errors onto gRPC status codes. Internal failures are
// not described to the caller.
func toStatus(err error) error {
	var code codes.Code
	switch protocol.CodeFor(err) {
	case protocol.CodeAlreadyExists:
		code = codes.AlreadyExists
	case protocol.CodeInvalidCredentials, protocol.CodeUnauthenticated:
		code = codes.Unauthenticated
	case protocol.CodeRateLimited:
		code = codes.ResourceExhausted
	case protocol.CodeInternal:
		code = codes.Internal
	default:
		code = codes.InvalidArgument
	}
	return status.Error(code, protocol.MessageFor(err))
}

// fields checks that in carries no keys beyond allowed.
func fields(in *structpb.Struct, allowed ...string) error {
	for k := range in.GetFields() {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: unknown field %q", common.ErrMalformedEnvelope, k)
		}
	}
	return nil
}

func stringField(in *structpb.Struct, name string) (string, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return "", nil
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", common.ErrMalformedEnvelope, name)
	}
	return s.StringValue, nil
}

func intField(in *structpb.Struct, name string) (int64, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return 0, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue < 0 || n.NumberValue != float64(int64(n.NumberValue)) {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", common.ErrMalformedEnvelope, name)
	}
	return int64(n.NumberValue), nil
}

func messageFields(m models.Message) map[string]any {
	return map[string]any{
		"type":      protocol.TypeMessage,
		"id":        m.ID,
		"from":      m.From,
		"text":      m.Text,
		"timestamp": m.Timestamp,
	}
}

func reply(v map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, common.ErrInternal.Error())
	}
	return out, nil
}

func (s *GRPCServer) Auth(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := fields(req, "action", "username", "password"); err != nil {
		return nil, toStatus(err)
	}
	action, err := stringField(req, "action")
	if err != nil {
		return nil, toStatus(err)
	}
	username, err := stringField(req, "username")
	if err != nil {
		return nil, toStatus(err)
	}
	password, err := stringField(req, "password")
	if err != nil {
		return nil, toStatus(err)
	}

	username, token, err := s.engine.Authenticate(ctx, action, username, password)
	if err != nil {
		s.logger.Info(ctx, "authentication failed", "action", action, "code", protocol.CodeFor(err))
		return nil, toStatus(err)
	}

	s.logger.Info(ctx, "Authenticated", "username", username, "action", action)
	return reply(map[string]any{
		"status":   protocol.StatusOK,
		"action":   action,
		"username": username,
		"token":    token,
	})
}

func (s *GRPCServer) Send(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	username, _, ok := sessionFromContext(ctx)
	if !ok {
		return nil, toStatus(common.ErrUnauthenticated)
	}
	if err := fields(req, "text"); err != nil {
		return nil, toStatus(err)
	}
	text, err := stringField(req, "text")
	if err != nil {
		return nil, toStatus(err)
	}

	msg, err := s.engine.Post(ctx, username, text)
	if err != nil {
		if protocol.CodeFor(err) == protocol.CodeInternal {
			s.logger.Error(ctx, err.Error())
		}
		return nil, toStatus(err)
	}

	return reply(map[string]any{
		"status":  protocol.StatusOK,
		"message": messageFields(msg),
	})
}

func (s *GRPCServer) History(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, _, ok := sessionFromContext(ctx); !ok {
		return nil, toStatus(common.ErrUnauthenticated)
	}
	if err := fields(req, "after"); err != nil {
		return nil, toStatus(err)
	}
	after, err := intField(req, "after")
	if err != nil {
		return nil, toStatus(err)
	}

	msgs := s.engine.History(ctx, after)
	list := make([]any, 0, len(msgs))
	for _, m := range msgs {
		list = append(list, messageFields(m))
	}

	return reply(map[string]any{
		"type":     protocol.TypeHistory,
		"status":   protocol.StatusOK,
		"messages": list,
	})
}

func (s *GRPCServer) Logout(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	_, token, ok := sessionFromContext(ctx)
	if !ok {
		return nil, toStatus(common.ErrUnauthenticated)
	}
	if err := s.engine.Logout(ctx, token); err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{"status": protocol.StatusOK})
}
