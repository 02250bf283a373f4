package cli

import (
	"context"
	"log"
)

// Root connects to the server and runs the REPL until the user exits.
func (a *App) Root(ctx context.Context) {
	if err := a.connect(ctx); err != nil {
		log.Printf("cannot connect to %s: %v", a.config.ServerAddr, err)
		return
	}
	defer func() { _ = a.client.Close() }()

	log.Println("Welcome to chatrelay (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader)
}
