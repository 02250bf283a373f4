package cli

import (
	"context"
	"os"

	"github.com/dmitrijs2005/chatrelay/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

func (a *App) authenticate(ctx context.Context, action string) error {
	userName, err := getSimpleText(a.reader, "Enter user name", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.client.Authenticate(ctx, action, userName, password); err != nil {
		a.printf("%s failed: %v\n", action, err)
		return err
	}

	a.printf("Logged in as %s\n", a.client.Username())
	return nil
}

// Register prompts for a user name and password and creates the account.
// The connection is logged in on success.
func (a *App) Register(ctx context.Context) error {
	return a.authenticate(ctx, "register")
}

func (a *App) Login(ctx context.Context) error {
	return a.authenticate(ctx, "login")
}

// Say sends text as a chat message.
func (a *App) Say(_ context.Context, text string) error {
	if err := a.client.Say(text); err != nil {
		a.printf("send failed: %v\n", err)
		return err
	}
	return nil
}

// History prints every stored message, oldest first.
func (a *App) History(ctx context.Context) error {
	msgs, err := a.client.History(ctx, 0)
	if err != nil {
		a.printf("history failed: %v\n", err)
		return err
	}
	if len(msgs) == 0 {
		a.printf("No messages yet\n")
		return nil
	}
	for _, m := range msgs {
		a.printf("%s\n", formatMessage(m))
	}
	return nil
}

// Logout revokes the session and replaces the connection with a fresh,
// unauthenticated one.
func (a *App) Logout(ctx context.Context) error {
	if err := a.client.Logout(ctx); err != nil {
		a.printf("logout failed: %v\n", err)
		return err
	}
	_ = a.client.Close()

	if err := a.connect(ctx); err != nil {
		a.printf("reconnect failed: %v\n", err)
		return err
	}
	a.printf("Logged out\n")
	return nil
}
