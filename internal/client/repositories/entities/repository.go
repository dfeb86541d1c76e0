// Package entities stores Primary rows of one kind, their Sub-Entity and
// dirty mask in a single SQLite table.
package entities

import (
	"context"

	"github.com/dmitrijs2005/comicsync/internal/client/models"
)

// Query narrows a List call to rows whose extracted index columns equal the
// given values. Keys are schema field names, not column names.
type Query struct {
	Equals map[string]string
	Limit  int
	Offset int
}

type Repository interface {
	Get(ctx context.Context, id string) (*models.Entity, error)
	Upsert(ctx context.Context, e *models.Entity) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, q Query) ([]*models.Entity, error)
	Dirty(ctx context.Context) ([]*models.Entity, error)
	Clear(ctx context.Context) error
}
