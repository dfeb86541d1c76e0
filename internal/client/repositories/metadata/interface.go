// Package metadata keeps small key/value facts about the local replica,
// such as the client instance id embedded in write-tokens.
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeyClientID     = "client_id"
	KeyUserName     = "user_name"
	// KeyPasswordHash holds a bcrypt hash used to unlock the replica offline.
	KeyPasswordHash = "password_hash"
)

type Repository interface {
	// Get returns "" and false when key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string]string, error)
	Clear(ctx context.Context) error
}
