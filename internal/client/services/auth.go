// Package services contains application services for the comicsync client.
// This file defines the authentication service: online login with an offline
// fallback, registration, liveness probe and logout.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/comicsync/internal/client/client"
	"github.com/dmitrijs2005/comicsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/comicsync/internal/cryptox"
)

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - OnlineLogin: authenticate against the server and remember the user
//     locally so the replica can be unlocked offline later.
//   - OfflineLogin: verify credentials against the locally cached hash.
//   - Register: create a new user on the server.
//   - Ping: check server liveness.
//   - Close: release the remote client.
//   - ClearOfflineData: wipe the replica, including cached credentials.
type AuthService interface {
	OfflineLogin(ctx context.Context, username string, password []byte) error
	OnlineLogin(ctx context.Context, username string, password []byte) error
	Register(ctx context.Context, username string, password []byte) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	ClearOfflineData(ctx context.Context) error
}

// LocalState is the part of the replica store the service uses.
type LocalState interface {
	Metadata(ctx context.Context, key string) (string, bool, error)
	SetMetadata(ctx context.Context, key, value string) error
	Reset(ctx context.Context) error
}

type authService struct {
	client client.API
	local  LocalState
}

func NewAuthService(client client.API, local LocalState) AuthService {
	return &authService{client: client, local: local}
}

// OfflineLogin checks username and password against what the last online
// login cached. Without cached data it returns
// client.ErrLocalDataNotAvailable; a mismatch is client.ErrUnauthorized.
func (a *authService) OfflineLogin(ctx context.Context, username string, password []byte) error {
	savedUsername, ok, err := a.local.Metadata(ctx, metadata.KeyUserName)
	if err != nil {
		return err
	}
	if !ok {
		return client.ErrLocalDataNotAvailable
	}
	if savedUsername != username {
		return client.ErrUnauthorized
	}

	hash, ok, err := a.local.Metadata(ctx, metadata.KeyPasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return client.ErrLocalDataNotAvailable
	}
	return cryptox.CheckPassword(hash, password)
}

// OnlineLogin authenticates against the server. When another user's data
// is cached locally the replica is wiped first, so rows never leak between
// accounts.
func (a *authService) OnlineLogin(ctx context.Context, username string, password []byte) error {
	if err := a.client.Login(ctx, username, string(password)); err != nil {
		return fmt.Errorf("login error: %w", err)
	}

	saved, ok, err := a.local.Metadata(ctx, metadata.KeyUserName)
	if err != nil {
		return err
	}
	if ok && saved != username {
		if err := a.local.Reset(ctx); err != nil {
			return fmt.Errorf("wipe previous user data: %w", err)
		}
	}

	if err := a.saveOfflineData(ctx, username, password); err != nil {
		return fmt.Errorf("offline data saving error: %w", err)
	}
	return nil
}

func (a *authService) saveOfflineData(ctx context.Context, username string, password []byte) error {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return err
	}
	if err := a.local.SetMetadata(ctx, metadata.KeyUserName, username); err != nil {
		return err
	}
	return a.local.SetMetadata(ctx, metadata.KeyPasswordHash, hash)
}

func (a *authService) Register(ctx context.Context, username string, password []byte) error {
	if username == "" {
		return errors.New("username is required")
	}
	return a.client.Register(ctx, username, string(password))
}

func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

func (a *authService) Close(ctx context.Context) error {
	return a.client.Close()
}

// ClearOfflineData wipes the replica on logout.
func (a *authService) ClearOfflineData(ctx context.Context) error {
	return a.local.Reset(ctx)
}
