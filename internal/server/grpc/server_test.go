package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/chatrelay/internal/cryptox"
	"github.com/dmitrijs2005/chatrelay/internal/logging"
	"github.com/dmitrijs2005/chatrelay/internal/server/connections"
	"github.com/dmitrijs2005/chatrelay/internal/server/credentials"
	"github.com/dmitrijs2005/chatrelay/internal/server/messages"
	"github.com/dmitrijs2005/chatrelay/internal/server/relay"
	"github.com/dmitrijs2005/chatrelay/internal/server/sessions"
	"github.com/dmitrijs2005/chatrelay/internal/server/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakePeer struct {
	frames chan []byte
}

func (p *fakePeer) Send(frame []byte) error {
	p.frames <- frame
	return nil
}

func (p *fakePeer) Close() error { return nil }

func newEngine(t *testing.T) *relay.Engine {
	t.Helper()
	ctx := context.Background()
	st := storage.NewMemory()
	logger := logging.NopLogger{}

	creds, err := credentials.New(ctx, st, cryptox.NewHasher(cryptox.Params{Memory: 8 * 1024, Threads: 1}), logger)
	require.NoError(t, err)
	sess, err := sessions.New(ctx, st, []byte("secret"), time.Hour, logger)
	require.NoError(t, err)
	log, err := messages.New(ctx, st, 2000, logger)
	require.NoError(t, err)

	return relay.New(creds, sess, log, connections.NewRegistry(), logger)
}

func startServer(t *testing.T, engine *relay.Engine) *RelayServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())

	s := NewGRPCServer("bufnet", engine, logging.NopLogger{})
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("gRPC server did not stop")
		}
	})
	return NewRelayServiceClient(conn)
}

func register(t *testing.T, c *RelayServiceClient, username string) string {
	t.Helper()
	resp, err := c.Auth(context.Background(), map[string]any{"action": "register", "username": username, "password": "pw"})
	require.NoError(t, err)
	return resp.GetFields()["token"].GetStringValue()
}

func TestAuth(t *testing.T) {
	c := startServer(t, newEngine(t))
	ctx := context.Background()

	resp, err := c.Auth(ctx, map[string]any{"action": "register", "username": "alice", "password": "pw1"})
	require.NoError(t, err)
	f := resp.GetFields()
	assert.Equal(t, "ok", f["status"].GetStringValue())
	assert.Equal(t, "alice", f["username"].GetStringValue())
	assert.NotEmpty(t, f["token"].GetStringValue())

	tests := []struct {
		name string
		in   map[string]any
		code codes.Code
	}{
		{"duplicate", map[string]any{"action": "register", "username": "Alice", "password": "x"}, codes.AlreadyExists},
		{"wrong password", map[string]any{"action": "login", "username": "alice", "password": "nope"}, codes.Unauthenticated},
		{"invalid username", map[string]any{"action": "register", "username": "", "password": "x"}, codes.InvalidArgument},
		{"unknown field", map[string]any{"action": "login", "username": "alice", "password": "pw1", "admin": true}, codes.InvalidArgument},
		{"wrong type", map[string]any{"action": "login", "username": 42, "password": "pw1"}, codes.InvalidArgument},
		{"unknown action", map[string]any{"action": "sudo", "username": "alice", "password": "pw1"}, codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Auth(ctx, tt.in)
			assert.Equal(t, tt.code, status.Code(err), err)
		})
	}

	resp, err = c.Auth(ctx, map[string]any{"action": "login", "username": "ALICE", "password": "pw1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.GetFields()["username"].GetStringValue())
}

func TestSessionRequired(t *testing.T) {
	c := startServer(t, newEngine(t))
	ctx := context.Background()

	_, err := c.Send(ctx, map[string]any{"text": "hi"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = c.History(WithSessionToken(ctx, "forged"), map[string]any{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = c.Logout(ctx)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestSendFansOutAndHistory(t *testing.T) {
	engine := newEngine(t)
	c := startServer(t, engine)
	ctx := context.Background()

	token := register(t, c, "alice")

	peer := &fakePeer{frames: make(chan []byte, 4)}
	conn := engine.Connect(ctx, peer)
	engine.Handle(ctx, conn, []byte(`{"type":"auth","action":"resume","token":"`+token+`"}`))
	<-peer.frames

	authed := WithSessionToken(ctx, token)
	resp, err := c.Send(authed, map[string]any{"text": "over grpc"})
	require.NoError(t, err)
	msg := resp.GetFields()["message"].GetStructValue().GetFields()
	assert.Equal(t, "alice", msg["from"].GetStringValue())
	assert.Equal(t, float64(1), msg["id"].GetNumberValue())

	select {
	case frame := <-peer.frames:
		assert.Contains(t, string(frame), `"text":"over grpc"`)
	case <-time.After(5 * time.Second):
		t.Fatal("websocket peer did not receive the message")
	}

	_, err = c.Send(authed, map[string]any{"text": " "})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.Send(authed, map[string]any{"text": "second"})
	require.NoError(t, err)

	hist, err := c.History(authed, map[string]any{})
	require.NoError(t, err)
	assert.Len(t, hist.GetFields()["messages"].GetListValue().GetValues(), 2)

	hist, err = c.History(authed, map[string]any{"after": 1})
	require.NoError(t, err)
	list := hist.GetFields()["messages"].GetListValue().GetValues()
	require.Len(t, list, 1)
	assert.Equal(t, "second", list[0].GetStructValue().GetFields()["text"].GetStringValue())

	_, err = c.History(authed, map[string]any{"after": -1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestLogout(t *testing.T) {
	c := startServer(t, newEngine(t))
	ctx := context.Background()
	token := register(t, c, "alice")

	_, err := c.Logout(WithSessionToken(ctx, token))
	require.NoError(t, err)

	_, err = c.History(WithSessionToken(ctx, token), map[string]any{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestToStatusHidesInternalErrors(t *testing.T) {
	st, ok := status.FromError(toStatus(assert.AnError))
	require.True(t, ok)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "internal error", st.Message())
}
