// Package rows stores library rows (books, series) and the per-user records
// attached to them.
package rows

import (
	"context"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/server/models"
)

// ListQuery selects a page of rows as seen by UserID.
type ListQuery struct {
	UserID string
	// UpdatedAfter returns rows, tombstones included, whose primary or user
	// level changed after it. The zero value returns every live row.
	UpdatedAfter time.Time
	// AfterID turns UpdatedAfter into a keyset cursor: rows with the same
	// change time are returned only when their id sorts after AfterID.
	AfterID string
	Filters map[string]string
	Limit   int
	Offset  int
}

type Repository interface {
	List(ctx context.Context, kind *models.Kind, q ListQuery) ([]*models.Row, error)
	Count(ctx context.Context, kind *models.Kind, q ListQuery) (int, error)
	// Get returns the row joined with userID's record. Tombstones are returned.
	Get(ctx context.Context, kind *models.Kind, userID, id string) (*models.Row, error)

	// GetForUpdate locks and returns the primary level of a row.
	GetForUpdate(ctx context.Context, kind *models.Kind, id string) (*models.Row, error)
	// Save upserts the primary level and sets the row's timestamps.
	Save(ctx context.Context, kind *models.Kind, row *models.Row) error

	// GetUserForUpdate locks and returns userID's record of a row.
	GetUserForUpdate(ctx context.Context, kind *models.Kind, userID, id string) (*models.UserRecord, error)
	// SaveUser upserts userID's record of a row and sets its UpdatedAt.
	SaveUser(ctx context.Context, kind *models.Kind, userID, id string, rec *models.UserRecord) error

	// Delete turns a live row into a tombstone.
	Delete(ctx context.Context, kind *models.Kind, id string) error
}
