// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/server/models"
)

// Repository stores refresh tokens by their hash; plain tokens never reach
// the database.
type Repository interface {
	// Create stores a token hash for userID with an expiry of now+validity.
	Create(ctx context.Context, userID string, tokenHash string, validity time.Duration) error

	// Find looks up a token by hash. Absent tokens yield common.ErrNotFound.
	Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Delete removes a token by hash. Deleting an absent token is not an error.
	Delete(ctx context.Context, tokenHash string) error

	// DeleteExpired removes tokens that expired before now and returns how
	// many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
