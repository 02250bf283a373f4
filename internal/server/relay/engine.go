// Package relay is the broadcast engine: it authenticates connections,
// appends chat messages to the log and fans each appended message out to
// every authenticated connection, the sender included.
package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/chatrelay/internal/common"
	"github.com/dmitrijs2005/chatrelay/internal/logging"
	"github.com/dmitrijs2005/chatrelay/internal/server/connections"
	"github.com/dmitrijs2005/chatrelay/internal/server/models"
	"github.com/dmitrijs2005/chatrelay/internal/server/protocol"
)

type Credentials interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Verify(ctx context.Context, username, password string) bool
	Lookup(username string) (string, bool)
}

type Sessions interface {
	Issue(ctx context.Context, username string) (string, error)
	Resolve(ctx context.Context, token string) (string, bool)
	Revoke(ctx context.Context, token string) error
}

type MessageLog interface {
	Append(ctx context.Context, sender, text string) (models.Message, error)
	ReadAll(ctx context.Context) []models.Message
	After(id int64) []models.Message
}

type Engine struct {
	creds    Credentials
	sessions Sessions
	log      MessageLog
	conns    *connections.Registry
	logger   logging.Logger

	// postMu serializes append+fan-out so every peer sees the append order.
	postMu sync.Mutex
}

func New(creds Credentials, sessions Sessions, log MessageLog, conns *connections.Registry, logger logging.Logger) *Engine {
	return &Engine{
		creds:    creds,
		sessions: sessions,
		log:      log,
		conns:    conns,
		logger:   logger.With("module", "relay"),
	}
}

// Connect registers a new unauthenticated connection for peer.
func (e *Engine) Connect(ctx context.Context, peer connections.Peer) *connections.Conn {
	c := e.conns.Register(peer)
	e.logger.Info(ctx, "connection opened", "conn", c.ID)
	return c
}

// Disconnect removes c and closes its peer. Only the first call for a
// connection does anything; it reports whether this call removed it.
func (e *Engine) Disconnect(ctx context.Context, c *connections.Conn) bool {
	if !e.conns.Remove(c) {
		return false
	}
	_ = c.Close()

	username, _ := c.Username()
	e.logger.Info(ctx, "connection closed", "conn", c.ID, "user", username)
	return true
}

// Handle processes one inbound frame from c. Every rejection is answered
// with an error reply on c; none of them closes the connection.
func (e *Engine) Handle(ctx context.Context, c *connections.Conn, raw []byte) {
	req, err := protocol.Decode(raw)
	if err != nil {
		e.logger.Debug(ctx, "malformed envelope", "conn", c.ID)
		e.reply(ctx, c, protocol.EncodeError(err, protocol.PeekType(raw)))
		return
	}

	switch r := req.(type) {
	case protocol.AuthRequest:
		e.handleAuth(ctx, c, r)
	case protocol.ChatRequest:
		e.handleChat(ctx, c, r)
	case protocol.HistoryRequest:
		e.handleHistory(ctx, c, r)
	}
}

func (e *Engine) handleAuth(ctx context.Context, c *connections.Conn, r protocol.AuthRequest) {
	if _, ok := c.Username(); ok {
		e.reply(ctx, c, protocol.EncodeError(common.ErrAlreadyAuthenticated, protocol.TypeAuth))
		return
	}

	var (
		username, token string
		err             error
	)
	if r.Action == protocol.ActionResume {
		username, err = e.Resume(ctx, r.Token)
		token = r.Token
	} else {
		username, token, err = e.Authenticate(ctx, r.Action, r.Username, r.Password)
	}
	if err != nil {
		e.logger.Info(ctx, "authentication failed", "conn", c.ID, "action", r.Action, "code", protocol.CodeFor(err))
		e.reply(ctx, c, protocol.EncodeError(err, protocol.TypeAuth))
		return
	}

	if err := e.conns.MarkAuthenticated(c, username); err != nil {
		if !errors.Is(err, common.ErrClosed) {
			e.reply(ctx, c, protocol.EncodeError(err, protocol.TypeAuth))
		}
		return
	}

	e.logger.Info(ctx, "connection authenticated", "conn", c.ID, "user", username, "action", r.Action)
	e.reply(ctx, c, protocol.EncodeAuth(r.Action, username, token))
}

func (e *Engine) handleChat(ctx context.Context, c *connections.Conn, r protocol.ChatRequest) {
	username, ok := c.Username()
	if !ok {
		e.reply(ctx, c, protocol.EncodeError(common.ErrUnauthenticated, protocol.TypeMessage))
		return
	}

	if _, err := e.Post(ctx, username, r.Text); err != nil {
		e.reply(ctx, c, protocol.EncodeError(err, protocol.TypeMessage))
	}
}

func (e *Engine) handleHistory(ctx context.Context, c *connections.Conn, r protocol.HistoryRequest) {
	if _, ok := c.Username(); !ok {
		e.reply(ctx, c, protocol.EncodeError(common.ErrUnauthenticated, protocol.TypeHistory))
		return
	}
	e.reply(ctx, c, protocol.EncodeHistory(e.History(ctx, r.After)))
}

// Reject answers the frame raw received on c with the error reply for err
// without handling it.
func (e *Engine) Reject(ctx context.Context, c *connections.Conn, raw []byte, err error) {
	e.reply(ctx, c, protocol.EncodeError(err, protocol.PeekType(raw)))
}

// reply sends a direct answer to c. A peer that cannot take it is dropped.
func (e *Engine) reply(ctx context.Context, c *connections.Conn, frame []byte) {
	if err := c.Send(frame); err != nil {
		e.logger.Warn(ctx, "reply failed, dropping connection", "conn", c.ID, "error", err)
		e.Disconnect(ctx, c)
	}
}

// Authenticate registers or logs a user in and issues a session token. It
// returns the username in its registered form. Login failures are always
// common.ErrInvalidCredentials, whichever field was wrong.
func (e *Engine) Authenticate(ctx context.Context, action, username, password string) (string, string, error) {
	switch action {
	case protocol.ActionRegister:
		user, err := e.creds.Register(ctx, username, password)
		if err != nil {
			return "", "", err
		}
		username = user.Username
	case protocol.ActionLogin:
		if !e.creds.Verify(ctx, username, password) {
			return "", "", common.ErrInvalidCredentials
		}
		if canonical, ok := e.creds.Lookup(username); ok {
			username = canonical
		}
	default:
		return "", "", common.ErrMalformedEnvelope
	}

	token, err := e.sessions.Issue(ctx, username)
	if err != nil {
		e.logger.Error(ctx, "issuing session failed", "user", username, "error", err)
		return "", "", err
	}
	return username, token, nil
}

// Resume returns the user behind a previously issued token.
func (e *Engine) Resume(ctx context.Context, token string) (string, error) {
	username, ok := e.sessions.Resolve(ctx, token)
	if !ok {
		return "", common.ErrInvalidToken
	}
	return username, nil
}

// Resolve returns the user behind token, if the session is live.
func (e *Engine) Resolve(ctx context.Context, token string) (string, bool) {
	return e.sessions.Resolve(ctx, token)
}

// Logout revokes the session behind token.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if _, ok := e.sessions.Resolve(ctx, token); !ok {
		return common.ErrInvalidToken
	}
	return e.sessions.Revoke(ctx, token)
}

// Post appends text from username to the log and delivers the stored message
// to every authenticated connection. Delivery is a non-blocking enqueue per
// peer; a peer that fails it is removed and closed, and the rest still get
// the message.
func (e *Engine) Post(ctx context.Context, username, text string) (models.Message, error) {
	e.postMu.Lock()
	defer e.postMu.Unlock()

	msg, err := e.log.Append(ctx, username, text)
	if err != nil {
		return models.Message{}, err
	}

	frame := protocol.EncodeDelivery(msg)
	delivered := 0
	for _, c := range e.conns.Snapshot() {
		if err := c.Send(frame); err != nil {
			e.logger.Warn(ctx, "delivery failed, dropping connection", "conn", c.ID, "error", err)
			e.Disconnect(ctx, c)
			continue
		}
		delivered++
	}

	e.logger.Debug(ctx, "message broadcast", "id", msg.ID, "from", username, "delivered", delivered)
	return msg, nil
}

// History returns the messages with id greater than after, oldest first.
func (e *Engine) History(ctx context.Context, after int64) []models.Message {
	if after <= 0 {
		return e.log.ReadAll(ctx)
	}
	return e.log.After(after)
}

// Connections returns the number of live connections.
func (e *Engine) Connections() int {
	return e.conns.Count()
}

// Shutdown closes every live connection.
func (e *Engine) Shutdown(ctx context.Context) {
	n := e.conns.Count()
	e.conns.Shutdown()
	e.logger.Info(ctx, "all connections closed", "count", n)
}
