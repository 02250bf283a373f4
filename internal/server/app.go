// Package server initializes and runs the relay server. It opens the
// configured storage backend, restores the durable stores, serves the HTTP,
// WebSocket and gRPC surfaces and shuts them down gracefully on a signal.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/chatrelay/internal/cryptox"
	"github.com/dmitrijs2005/chatrelay/internal/logging"
	"github.com/dmitrijs2005/chatrelay/internal/server/config"
	"github.com/dmitrijs2005/chatrelay/internal/server/connections"
	"github.com/dmitrijs2005/chatrelay/internal/server/credentials"
	"github.com/dmitrijs2005/chatrelay/internal/server/httpapi"
	"github.com/dmitrijs2005/chatrelay/internal/server/messages"
	"github.com/dmitrijs2005/chatrelay/internal/server/relay"
	"github.com/dmitrijs2005/chatrelay/internal/server/sessions"
	"github.com/dmitrijs2005/chatrelay/internal/server/storage"
	"github.com/dmitrijs2005/chatrelay/internal/server/ws"

	gs "github.com/dmitrijs2005/chatrelay/internal/server/grpc"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config   *config.Config
	logger   logging.Logger
	store    storage.Store
	sessions *sessions.Registry
	engine   *relay.Engine
	ws       *ws.Handler
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	store, err := storage.Open(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	app, err := newApp(ctx, c, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return app, nil
}

func newApp(ctx context.Context, c *config.Config, store storage.Store, logger logging.Logger) (*App, error) {
	creds, err := credentials.New(ctx, store, cryptox.NewHasher(cryptox.DefaultParams), logger)
	if err != nil {
		return nil, fmt.Errorf("credential store init error: %w", err)
	}
	sess, err := sessions.New(ctx, store, []byte(c.SecretKey), c.SessionValidityDuration, logger)
	if err != nil {
		return nil, fmt.Errorf("session registry init error: %w", err)
	}
	log, err := messages.New(ctx, store, c.MaxMessageLength, logger)
	if err != nil {
		return nil, fmt.Errorf("message log init error: %w", err)
	}

	engine := relay.New(creds, sess, log, connections.NewRegistry(), logger)

	return &App{
		config:   c,
		logger:   logger,
		store:    store,
		sessions: sess,
		engine:   engine,
		ws:       ws.NewHandler(engine, ws.OptionsFromConfig(c), logger),
	}, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			app.logger.Info(ctx, "Signal received", "signal", sig.String())
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router := httpapi.NewRouter(app.engine, app.ws, app.logger)
	s := httpapi.NewServer(app.config.HTTPAddr, router, app.logger)

	if err := s.Run(ctx, shutdownTimeout); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.engine, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled, a signal arrives or a server fails.
// It then closes every WebSocket connection and the storage backend.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "storage", app.config.StorageBackend)

	app.initSignalHandler(ctx, cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sessions.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.GRPCAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCServer(ctx, cancelFunc)
		}()
	}

	wg.Wait()

	return app.shutdown(ctx)
}

func (app *App) shutdown(ctx context.Context) error {
	app.engine.Shutdown(ctx)

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := app.ws.Wait(waitCtx); err != nil {
		app.logger.Warn(ctx, "websocket connections did not finish", "error", err)
	}

	if err := app.store.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	app.logger.Info(ctx, "App stopped")
	return nil
}
