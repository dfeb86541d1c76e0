package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/comicsync/internal/client/client"
	"github.com/dmitrijs2005/comicsync/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for a username and password and creates the account on
// the server.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.authService.Register(ctx, userName, password); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Success! You can now login.")
	return nil
}

// Login prompts for credentials and authenticates online. When the server
// is unreachable it falls back to the credentials cached by the last online
// login, and the replica is used offline.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	var mode Mode
	err = a.authService.OnlineLogin(ctx, userName, password)
	switch {
	case err == nil:
		mode = ModeOnline
		fmt.Fprintln(a.out, "Login successful")
	case errors.Is(err, client.ErrUnavailable):
		fmt.Fprintln(a.out, "Server unavailable, trying offline login...")
		if err = a.authService.OfflineLogin(ctx, userName, password); err != nil {
			err = fmt.Errorf("offline login: %w", err)
			mode = ModeDisabled
		} else {
			fmt.Fprintln(a.out, "Offline login successful, changes will be sent when the server is back")
			mode = ModeOffline
		}
	default:
		mode = ModeOnline
	}

	if err != nil {
		a.setMode(mode)
		return err
	}

	a.mu.Lock()
	a.userName = userName
	a.mu.Unlock()
	a.setMode(mode)
	return nil
}

// Logout wipes the replica, including unsent edits and cached credentials.
func (a *App) Logout(ctx context.Context) error {
	a.closeView()
	if err := a.engine.Reset(ctx); err != nil {
		return err
	}
	a.mu.Lock()
	a.userName = ""
	a.mu.Unlock()
	fmt.Fprintln(a.out, "Logged out")
	return nil
}
