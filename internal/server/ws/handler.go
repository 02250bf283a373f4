// Package ws serves the relay over WebSocket. Each connection gets a read
// pump that feeds frames to the engine one at a time and a write pump that
// drains the connection's bounded send queue.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/chatrelay/internal/common"
	"github.com/dmitrijs2005/chatrelay/internal/logging"
	"github.com/dmitrijs2005/chatrelay/internal/server/config"
	"github.com/dmitrijs2005/chatrelay/internal/server/connections"
	"github.com/dmitrijs2005/chatrelay/internal/server/relay"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Options are the per-connection limits.
type Options struct {
	MaxFrameSize      int64
	SendBufferSize    int
	WriteTimeout      time.Duration
	PongWait          time.Duration
	PingPeriod        time.Duration
	RateLimitBurst    int
	RateLimitInterval time.Duration
	AllowedOrigins    []string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxFrameSize:      cfg.MaxFrameSize,
		SendBufferSize:    cfg.SendBufferSize,
		WriteTimeout:      cfg.WriteTimeout,
		PongWait:          cfg.PongWait,
		PingPeriod:        cfg.PingPeriod(),
		RateLimitBurst:    cfg.RateLimitBurst,
		RateLimitInterval: cfg.RateLimitInterval,
		AllowedOrigins:    cfg.AllowedOrigins,
	}
}

type Handler struct {
	engine   *relay.Engine
	opts     Options
	upgrader websocket.Upgrader
	logger   logging.Logger
	wg       sync.WaitGroup
}

func NewHandler(engine *relay.Engine, opts Options, logger logging.Logger) *Handler {
	h := &Handler{
		engine: engine,
		opts:   opts,
		logger: logger.With("module", "ws"),
	}
	policy := newOriginPolicy(opts.AllowedOrigins)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if policy.check(r) {
				return true
			}
			h.logger.Warn(r.Context(), "blocked websocket from disallowed origin", "origin", r.Header.Get("Origin"))
			return false
		},
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Info(r.Context(), "websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	h.wg.Add(1)
	defer h.wg.Done()

	// The request context ends with ServeHTTP; the connection's work must
	// not be cut short by it.
	h.serve(context.WithoutCancel(r.Context()), conn, r.RemoteAddr)
}

// Wait blocks until every connection served by h has finished or ctx is
// done.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, remote string) {
	p := newPeer(h.opts.SendBufferSize)
	c := h.engine.Connect(ctx, p)
	logger := h.logger.With("conn", c.ID, "remote", remote)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(ctx, conn, p, logger)
	}()

	h.readPump(ctx, conn, c, logger)
	h.engine.Disconnect(ctx, c)
	<-writerDone
}

func newLimiter(burst int, interval time.Duration) *rate.Limiter {
	if burst <= 0 || interval <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(float64(burst)/interval.Seconds()), burst)
}

func (h *Handler) extendReadDeadline(conn *websocket.Conn) error {
	if h.opts.PongWait <= 0 {
		return nil
	}
	return conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
}

// readPump hands frames to the engine in arrival order until the
// connection fails or is closed.
func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, c *connections.Conn, logger logging.Logger) {
	if h.opts.MaxFrameSize > 0 {
		conn.SetReadLimit(h.opts.MaxFrameSize)
	}
	if err := h.extendReadDeadline(conn); err != nil {
		logger.Warn(ctx, "setting read deadline failed", "error", err)
	}
	conn.SetPongHandler(func(string) error {
		return h.extendReadDeadline(conn)
	})

	limiter := newLimiter(h.opts.RateLimitBurst, h.opts.RateLimitInterval)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			h.logReadError(ctx, logger, err)
			return
		}

		if !limiter.Allow() {
			logger.Info(ctx, "rate limit exceeded, discarding frame")
			h.engine.Reject(ctx, c, raw, common.ErrRateLimited)
			continue
		}

		h.engine.Handle(ctx, c, raw)
	}
}

func (h *Handler) logReadError(ctx context.Context, logger logging.Logger, err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		logger.Warn(ctx, "frame exceeds size limit", "limit", h.opts.MaxFrameSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		logger.Debug(ctx, "peer closed connection", "error", err)
	default:
		logger.Info(ctx, "websocket read ended", "error", err)
	}
}

func (h *Handler) write(conn *websocket.Conn, messageType int, data []byte) error {
	if h.opts.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	return conn.WriteMessage(messageType, data)
}

// writePump owns every write to conn. Once the peer is closed it flushes
// what is still queued, sends a close frame and hangs up, which also ends
// the read pump.
func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, p *peer, logger logging.Logger) {
	defer func() { _ = conn.Close() }()

	var tick <-chan time.Time
	if h.opts.PingPeriod > 0 {
		ticker := time.NewTicker(h.opts.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case frame := <-p.send:
			if err := h.write(conn, websocket.TextMessage, frame); err != nil {
				logger.Info(ctx, "websocket write failed", "error", err)
				return
			}
		case <-tick:
			if err := h.write(conn, websocket.PingMessage, nil); err != nil {
				logger.Info(ctx, "websocket ping failed", "error", err)
				return
			}
		case <-p.done:
			h.flush(conn, p)
			_ = h.write(conn, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (h *Handler) flush(conn *websocket.Conn, p *peer) {
	for {
		select {
		case frame := <-p.send:
			if err := h.write(conn, websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
