package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/chatrelay/internal/client/client"
	"github.com/dmitrijs2005/chatrelay/internal/client/config"
)

// chatClient is the part of *client.Client the REPL uses.
type chatClient interface {
	Authenticate(ctx context.Context, action, username string, password []byte) error
	Say(text string) error
	History(ctx context.Context, after int64) ([]client.Frame, error)
	Logout(ctx context.Context) error
	LoggedIn() bool
	Username() string
	Close() error
}

type dialFunc func(ctx context.Context, onFrame func(client.Frame)) (chatClient, error)

type App struct {
	config *config.Config
	dial   dialFunc
	client chatClient
	reader *bufio.Reader

	outMu sync.Mutex
	out   io.Writer
}

func NewApp(c *config.Config) *App {
	dial := func(ctx context.Context, onFrame func(client.Frame)) (chatClient, error) {
		return client.Dial(ctx, c.ServerAddr, c.Timeout, onFrame)
	}
	return newApp(c, dial, os.Stdin, os.Stdout)
}

func newApp(c *config.Config, dial dialFunc, in io.Reader, out io.Writer) *App {
	return &App{config: c, dial: dial, reader: bufio.NewReader(in), out: out}
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

func formatMessage(f client.Frame) string {
	ts := time.Unix(f.Timestamp, 0).Format("15:04:05")
	return fmt.Sprintf("[%s] %s: %s", ts, f.From, f.Text)
}

// onFrame runs on the client's read goroutine.
func (a *App) onFrame(f client.Frame) {
	switch f.Type {
	case "message":
		a.printf("%s\n", formatMessage(f))
	case "error":
		a.printf("error: %s (%s)\n", f.Message, f.Code)
	}
}

func (a *App) connect(ctx context.Context) error {
	c, err := a.dial(ctx, a.onFrame)
	if err != nil {
		return err
	}
	a.client = c
	return nil
}

func (a *App) isLoggedIn() bool {
	return a.client != nil && a.client.LoggedIn()
}

func (a *App) getStatus() string {
	if a.isLoggedIn() {
		return "(" + a.client.Username() + ")"
	}
	return ""
}
