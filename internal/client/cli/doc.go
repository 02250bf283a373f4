// Package cli provides the interactive chatrelay terminal client.
//
// It dials the relay's WebSocket, prompts for credentials and runs a REPL.
// Incoming messages are printed as they arrive, independently of the prompt.
//
// Commands:
//   - register / login   create an account or sign in (password read without echo)
//   - say <text>         send a message; any line that is not a command is sent too
//   - history            print the stored messages
//   - logout             revoke the session and reconnect anonymously
//   - help, exit | quit
//
// The REPL is started via App.Root(ctx), which blocks until the user exits
// or the connection is lost.
package cli
