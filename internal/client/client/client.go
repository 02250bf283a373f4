package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/chatrelay/internal/common"
	"github.com/dmitrijs2005/chatrelay/internal/netx"
	"github.com/gorilla/websocket"
)

type Client struct {
	addr    string
	timeout time.Duration
	http    *http.Client

	conn    *websocket.Conn
	writeMu sync.Mutex

	onFrame     func(Frame)
	authMu      sync.Mutex // one auth request in flight
	authReplies chan Frame
	done        chan struct{}

	mu       sync.RWMutex
	token    string
	username string
}

// Dial opens the WebSocket at ws://addr/ws. onFrame receives every frame
// that is not an auth reply; it may be nil.
func Dial(ctx context.Context, addr string, timeout time.Duration, onFrame func(Frame)) (*Client, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = timeout

	conn, resp, err := dialer.DialContext(ctx, "ws://"+addr+"/ws", nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if onFrame == nil {
		onFrame = func(Frame) {}
	}
	c := &Client{
		addr:        addr,
		timeout:     timeout,
		http:        &http.Client{Timeout: timeout},
		conn:        conn,
		onFrame:     onFrame,
		authReplies: make(chan Frame, 1),
		done:        make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}

		if f.isAuthReply() {
			select {
			case c.authReplies <- f:
			default:
			}
			continue
		}
		c.onFrame(f)
	}
}

// Done is closed when the connection to the server is lost.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteJSON(v)
}

// Authenticate registers or logs in on the WebSocket and waits for the
// server's answer. action is "register" or "login".
func (c *Client) Authenticate(ctx context.Context, action, username string, password []byte) error {
	req := map[string]string{
		"type":     "auth",
		"action":   action,
		"username": username,
		"password": string(password),
	}
	return c.authenticate(ctx, req)
}

// Resume authenticates the connection with a token from an earlier login.
func (c *Client) Resume(ctx context.Context, token string) error {
	return c.authenticate(ctx, map[string]string{"type": "auth", "action": "resume", "token": token})
}

func (c *Client) authenticate(ctx context.Context, req map[string]string) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	// A reply that arrived after an earlier attempt timed out is stale.
	select {
	case <-c.authReplies:
	default:
	}

	if err := c.write(req); err != nil {
		return err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	select {
	case f := <-c.authReplies:
		if err := f.err(); err != nil {
			return err
		}
		c.mu.Lock()
		c.token, c.username = f.Token, f.Username
		c.mu.Unlock()
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Username returns the user the connection is authenticated as.
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) LoggedIn() bool {
	return c.Token() != ""
}

// Say sends a chat message. The server's delivery of it arrives through
// the frame callback like everybody else's.
func (c *Client) Say(text string) error {
	if !c.LoggedIn() {
		return ErrNotLoggedIn
	}
	return c.write(map[string]string{"type": "message", "text": text})
}

func (c *Client) baseURL() string {
	return "http://" + c.addr
}

func (c *Client) tokenHeader() (map[string]string, error) {
	token := c.Token()
	if token == "" {
		return nil, ErrNotLoggedIn
	}
	return map[string]string{common.SessionTokenHeaderName: token}, nil
}

// serverError turns an HTTP error body into a *ServerError when it has one.
func serverError(err error) error {
	var se *netx.StatusError
	if !errors.As(err, &se) {
		return err
	}
	var f Frame
	if json.Unmarshal(se.Body, &f) == nil && f.Code != "" {
		return &ServerError{Code: f.Code, Message: f.Message}
	}
	return err
}

// History fetches the messages with id greater than after, oldest first.
func (c *Client) History(ctx context.Context, after int64) ([]Frame, error) {
	headers, err := c.tokenHeader()
	if err != nil {
		return nil, err
	}

	var reply Frame
	url := c.baseURL() + "/messages?after=" + strconv.FormatInt(after, 10)
	if err := netx.GetJSON(ctx, c.http, url, headers, &reply); err != nil {
		return nil, serverError(err)
	}
	return reply.Messages, nil
}

// Logout revokes the session on the server. The WebSocket stays open but
// the client forgets its token.
func (c *Client) Logout(ctx context.Context) error {
	headers, err := c.tokenHeader()
	if err != nil {
		return err
	}
	if err := netx.PostJSON(ctx, c.http, c.baseURL()+"/logout", headers, nil, nil); err != nil {
		return serverError(err)
	}

	c.mu.Lock()
	c.token, c.username = "", ""
	c.mu.Unlock()
	return nil
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}
