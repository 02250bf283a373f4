package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Say(ctx context.Context, text string) error
	History(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL reads commands from reader until EOF, "exit" or "quit".
//
//	Not logged in:
//	  - help           show available commands
//	  - register       create an account
//	  - login          authenticate
//	  - exit | quit    leave the program
//
//	Logged in:
//	  - say <text>     send a message (a line that is no command is sent as is)
//	  - history        print stored messages
//	  - logout         log out
//	  - exit | quit    leave the program
//
// Errors returned by command handlers are reported by the handlers; the loop
// keeps going.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("chat%s> ", statusFn()))
		line, err := readLine(reader)
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: say <text>, history, logout, exit. Any other line is sent as a message.")
			} else {
				printlnFn("Available commands: register, login, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		case "say":
			text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "say"))
			if text == "" {
				printlnFn("Usage: say <text>")
				continue
			}
			if !a.isLoggedIn() {
				printlnFn("Please login first")
				continue
			}
			_ = a.Say(ctx, text)

		case "history":
			if !a.isLoggedIn() {
				printlnFn("Please login first")
				continue
			}
			_ = a.History(ctx)

		case "logout":
			if !a.isLoggedIn() {
				printlnFn("Not logged in")
				continue
			}
			_ = a.Logout(ctx)

		default:
			if a.isLoggedIn() {
				_ = a.Say(ctx, line)
				continue
			}
			printlnFn("Unknown command:", cmd)
		}
	}
}
