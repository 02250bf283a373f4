package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/chatrelay/internal/common"
	"github.com/dmitrijs2005/chatrelay/internal/cryptox"
	"github.com/dmitrijs2005/chatrelay/internal/logging"
	"github.com/dmitrijs2005/chatrelay/internal/server/connections"
	"github.com/dmitrijs2005/chatrelay/internal/server/credentials"
	"github.com/dmitrijs2005/chatrelay/internal/server/messages"
	"github.com/dmitrijs2005/chatrelay/internal/server/protocol"
	"github.com/dmitrijs2005/chatrelay/internal/server/sessions"
	"github.com/dmitrijs2005/chatrelay/internal/server/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	mu      sync.Mutex
	frames  [][]byte
	sendErr error
	closed  int
}

func (p *fakePeer) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.frames = append(p.frames, frame)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePeer) failWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendErr = err
}

// decoded returns every frame received so far as generic maps.
func (p *fakePeer) decoded(t *testing.T) []map[string]any {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]map[string]any, 0, len(p.frames))
	for _, f := range p.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func (p *fakePeer) last(t *testing.T) map[string]any {
	t.Helper()
	all := p.decoded(t)
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = nil
}

type fixture struct {
	engine   *Engine
	store    *storagetest.Flaky
	creds    *credentials.Store
	sessions *sessions.Registry
	log      *messages.Log
	conns    *connections.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := storagetest.NewFlaky()
	logger := logging.NopLogger{}

	creds, err := credentials.New(ctx, st, cryptox.NewHasher(cryptox.Params{Memory: 8 * 1024, Threads: 1}), logger)
	require.NoError(t, err)
	sess, err := sessions.New(ctx, st, []byte("secret"), time.Hour, logger)
	require.NoError(t, err)
	log, err := messages.New(ctx, st, 100, logger)
	require.NoError(t, err)
	conns := connections.NewRegistry()

	return &fixture{
		engine:   New(creds, sess, log, conns, logger),
		store:    st,
		creds:    creds,
		sessions: sess,
		log:      log,
		conns:    conns,
	}
}

func (f *fixture) connect(t *testing.T) (*connections.Conn, *fakePeer) {
	t.Helper()
	p := &fakePeer{}
	return f.engine.Connect(context.Background(), p), p
}

func (f *fixture) send(c *connections.Conn, raw string) {
	f.engine.Handle(context.Background(), c, []byte(raw))
}

func (f *fixture) authed(t *testing.T, action, user, pw string) (*connections.Conn, *fakePeer) {
	t.Helper()
	c, p := f.connect(t)
	f.send(c, `{"type":"auth","action":"`+action+`","username":"`+user+`","password":"`+pw+`"}`)
	reply := p.last(t)
	require.Equal(t, "ok", reply["status"], reply)
	p.reset()
	return c, p
}

func TestEndToEnd_TwoClientsAndLateJoiner(t *testing.T) {
	f := newFixture(t)

	a, pa := f.connect(t)
	f.send(a, `{"type":"auth","action":"register","username":"alice","password":"pw1"}`)
	reply := pa.last(t)
	assert.Equal(t, "auth", reply["type"])
	assert.Equal(t, "ok", reply["status"])
	assert.Equal(t, "alice", reply["username"])
	assert.NotEmpty(t, reply["token"])
	pa.reset()

	b, pb := f.authed(t, "register", "bob", "pw2")

	f.send(a, `{"type":"message","text":"hi bob"}`)
	for _, p := range []*fakePeer{pa, pb} {
		got := p.last(t)
		assert.Equal(t, "message", got["type"])
		assert.Equal(t, "alice", got["from"])
		assert.Equal(t, "hi bob", got["text"])
		assert.EqualValues(t, 1, got["id"])
	}

	f.send(b, `{"type":"message","text":"hi alice"}`)
	for _, p := range []*fakePeer{pa, pb} {
		got := p.last(t)
		assert.Equal(t, "bob", got["from"])
		assert.Equal(t, "hi alice", got["text"])
		assert.EqualValues(t, 2, got["id"])
	}

	c, pc := f.authed(t, "register", "carol", "pw3")
	f.send(c, `{"type":"history"}`)
	var h protocol.HistoryReply
	pc.mu.Lock()
	require.NoError(t, json.Unmarshal(pc.frames[len(pc.frames)-1], &h))
	pc.mu.Unlock()
	require.Len(t, h.Messages, 2)
	assert.Equal(t, int64(1), h.Messages[0].ID)
	assert.Equal(t, int64(2), h.Messages[1].ID)

	msgs := f.engine.History(context.Background(), 1)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi alice", msgs[0].Text)
}

func TestUnauthenticatedMessageIsRejected(t *testing.T) {
	f := newFixture(t)
	c, p := f.connect(t)

	f.send(c, `{"type":"message","text":"hello?"}`)

	reply := p.last(t)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, protocol.CodeUnauthenticated, reply["code"])
	assert.Empty(t, f.log.ReadAll(context.Background()), "message log remains empty")
	assert.Equal(t, connections.Unauthenticated, c.State(), "connection stays open")

	f.send(c, `{"type":"history"}`)
	assert.Equal(t, protocol.CodeUnauthenticated, p.last(t)["code"])
}

func TestLoginWithWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.authed(t, "register", "alice", "pw1")
	sessionsBefore := f.sessions.Count()
	savesBefore := f.store.Saves()

	c, p := f.connect(t)
	f.send(c, `{"type":"auth","action":"login","username":"alice","password":"nope"}`)

	reply := p.last(t)
	assert.Equal(t, protocol.CodeInvalidCredentials, reply["code"])
	assert.NotContains(t, reply, "token")
	assert.Equal(t, sessionsBefore, f.sessions.Count(), "no session issued")
	assert.Equal(t, savesBefore, f.store.Saves(), "credential store unchanged")
	assert.Equal(t, connections.Unauthenticated, c.State())

	f.send(c, `{"type":"auth","action":"login","username":"nobody","password":"pw1"}`)
	assert.Equal(t, protocol.CodeInvalidCredentials, p.last(t)["code"], "same answer for unknown users")

	f.send(c, `{"type":"auth","action":"login","username":"ALICE","password":"pw1"}`)
	reply = p.last(t)
	assert.Equal(t, "ok", reply["status"], "client may retry after a failure")
	assert.Equal(t, "alice", reply["username"], "registered form is echoed")
}

func TestRegisterDuplicate(t *testing.T) {
	f := newFixture(t)
	f.authed(t, "register", "alice", "pw1")

	c, p := f.connect(t)
	f.send(c, `{"type":"auth","action":"register","username":"Alice","password":"x"}`)
	assert.Equal(t, protocol.CodeAlreadyExists, p.last(t)["code"])
	assert.True(t, f.creds.Verify(context.Background(), "alice", "pw1"))
}

func TestSecondAuthOnSameConnection(t *testing.T) {
	f := newFixture(t)
	c, p := f.authed(t, "register", "alice", "pw1")
	saves := f.store.Saves()

	f.send(c, `{"type":"auth","action":"register","username":"mallory","password":"pw"}`)

	assert.Equal(t, protocol.CodeAlreadyAuthenticated, p.last(t)["code"])
	assert.Equal(t, saves, f.store.Saves(), "stores are not touched")
	_, ok := f.creds.Lookup("mallory")
	assert.False(t, ok)
	name, _ := c.Username()
	assert.Equal(t, "alice", name)
}

func TestResume(t *testing.T) {
	f := newFixture(t)

	a, pa := f.connect(t)
	f.send(a, `{"type":"auth","action":"register","username":"alice","password":"pw1"}`)
	token := pa.last(t)["token"].(string)
	f.engine.Disconnect(context.Background(), a)

	b, pb := f.connect(t)
	f.send(b, `{"type":"auth","action":"resume","token":"`+token+`"}`)
	reply := pb.last(t)
	assert.Equal(t, "ok", reply["status"])
	assert.Equal(t, "alice", reply["username"])
	assert.Equal(t, token, reply["token"])

	c, pc := f.connect(t)
	f.send(c, `{"type":"auth","action":"resume","token":"bogus"}`)
	assert.Equal(t, protocol.CodeUnauthenticated, pc.last(t)["code"])

	require.NoError(t, f.engine.Logout(context.Background(), token))
	f.send(c, `{"type":"auth","action":"resume","token":"`+token+`"}`)
	assert.Equal(t, protocol.CodeUnauthenticated, pc.last(t)["code"], "revoked tokens cannot resume")
	assert.ErrorIs(t, f.engine.Logout(context.Background(), token), common.ErrInvalidToken)
}

func TestMalformedEnvelopeKeepsState(t *testing.T) {
	f := newFixture(t)
	c, p := f.authed(t, "register", "alice", "pw1")

	for _, raw := range []string{`garbage`, `{"type":"shout"}`, `{"type":"message","text":"x","bonus":true}`} {
		f.send(c, raw)
		reply := p.last(t)
		assert.Equal(t, protocol.CodeMalformedEnvelope, reply["code"], raw)
	}

	assert.Equal(t, connections.Authenticated, c.State())
	assert.Zero(t, f.log.Len())
}

func TestMessageValidationErrors(t *testing.T) {
	f := newFixture(t)
	c, p := f.authed(t, "register", "alice", "pw1")

	f.send(c, `{"type":"message","text":"   "}`)
	assert.Equal(t, protocol.CodeEmptyMessage, p.last(t)["code"])

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}
	f.send(c, `{"type":"message","text":"`+string(long)+`"}`)
	assert.Equal(t, protocol.CodeMessageTooLong, p.last(t)["code"])

	assert.Zero(t, f.log.Len())
}

func TestBroadcastSurvivesFailingPeer(t *testing.T) {
	f := newFixture(t)

	const k = 5
	conns := make([]*connections.Conn, k)
	peers := make([]*fakePeer, k)
	users := []string{"u0", "u1", "u2", "u3", "u4"}
	for i := range users {
		conns[i], peers[i] = f.authed(t, "register", users[i], "pw")
	}

	peers[2].failWith(common.ErrSendBufferFull)

	msg, err := f.engine.Post(context.Background(), "u0", "fan-out")
	require.NoError(t, err)

	for i, p := range peers {
		if i == 2 {
			assert.Empty(t, p.decoded(t))
			continue
		}
		got := p.last(t)
		assert.EqualValues(t, msg.ID, got["id"])
	}

	_, ok := f.conns.Get(conns[2].ID)
	assert.False(t, ok, "failing connection is removed")
	assert.Equal(t, connections.Closed, conns[2].State())
	assert.Equal(t, 1, peers[2].closed)
	assert.Equal(t, k-1, f.conns.Count())
}

func TestPostPersistenceFailure(t *testing.T) {
	f := newFixture(t)
	a, pa := f.authed(t, "register", "alice", "pw1")
	_, pb := f.authed(t, "register", "bob", "pw2")

	f.store.FailSaves(true)
	f.send(a, `{"type":"message","text":"lost"}`)

	reply := pa.last(t)
	assert.Equal(t, protocol.CodeInternal, reply["code"])
	assert.Equal(t, "internal error", reply["message"])
	assert.Empty(t, pb.decoded(t), "nothing is broadcast")
	assert.Zero(t, f.log.Len())
	assert.Equal(t, connections.Authenticated, a.State())
}

func TestRegisterPersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailSaves(true)

	c, p := f.connect(t)
	f.send(c, `{"type":"auth","action":"register","username":"alice","password":"pw1"}`)

	assert.Equal(t, protocol.CodeInternal, p.last(t)["code"])
	assert.Equal(t, connections.Unauthenticated, c.State())
	_, ok := f.creds.Lookup("alice")
	assert.False(t, ok)
}

func TestReplyFailureDropsConnection(t *testing.T) {
	f := newFixture(t)
	c, p := f.connect(t)
	p.failWith(common.ErrClosed)

	f.send(c, `nonsense`)

	assert.Equal(t, connections.Closed, c.State())
	assert.Zero(t, f.engine.Connections())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	f := newFixture(t)
	c, p := f.authed(t, "register", "alice", "pw1")

	assert.True(t, f.engine.Disconnect(context.Background(), c))
	assert.False(t, f.engine.Disconnect(context.Background(), c))
	assert.Equal(t, 1, p.closed)

	_, err := f.engine.Post(context.Background(), "alice", "after close")
	require.NoError(t, err)
	assert.Empty(t, p.decoded(t))
}

func TestConcurrentPostsKeepOrderAcrossPeers(t *testing.T) {
	f := newFixture(t)
	_, pa := f.authed(t, "register", "alice", "pw1")
	_, pb := f.authed(t, "register", "bob", "pw2")

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, err := f.engine.Post(context.Background(), "alice", "m")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for _, p := range []*fakePeer{pa, pb} {
		frames := p.decoded(t)
		require.Len(t, frames, 80)
		for i, fr := range frames {
			assert.EqualValues(t, i+1, fr["id"], "every peer observes append order")
		}
	}
}

func TestAuthenticate_UnknownAction(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.engine.Authenticate(context.Background(), "sudo", "a", "b")
	assert.ErrorIs(t, err, common.ErrMalformedEnvelope)
}

func TestShutdown(t *testing.T) {
	f := newFixture(t)
	_, p1 := f.connect(t)
	_, p2 := f.authed(t, "register", "alice", "pw1")

	f.engine.Shutdown(context.Background())

	assert.Zero(t, f.engine.Connections())
	assert.Equal(t, 1, p1.closed)
	assert.Equal(t, 1, p2.closed)
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	c, p := f.connect(t)

	f.engine.Reject(context.Background(), c, []byte(`{"type":"auth","action":"login","username":"alice","password":"pw"}`), common.ErrRateLimited)

	reply := p.last(t)
	assert.Equal(t, protocol.CodeRateLimited, reply["code"])
	assert.Equal(t, protocol.TypeAuth, reply["request"], "auth clients match the rejection to their request")
	assert.Equal(t, connections.Unauthenticated, c.State())

	f.engine.Reject(context.Background(), c, []byte(`{"type":"message","text":"x"}`), common.ErrRateLimited)
	assert.Equal(t, protocol.TypeMessage, p.last(t)["request"])
}

func TestMalformedAuthReplyNamesRequest(t *testing.T) {
	f := newFixture(t)
	c, p := f.connect(t)

	f.send(c, `{"type":"auth","action":"login","username":"alice"}`)

	reply := p.last(t)
	assert.Equal(t, protocol.CodeMalformedEnvelope, reply["code"])
	assert.Equal(t, protocol.TypeAuth, reply["request"])
}
