package files

import (
	"context"

	"github.com/dmitrijs2005/comicsync/internal/client/models"
)

// Repository describes the local download registry.
type Repository interface {
	// CreateOrUpdate records a saved file, replacing an earlier record for
	// the same book.
	CreateOrUpdate(ctx context.Context, d *models.Download) error

	// GetByBookID returns common.ErrNotFound when the book was never saved.
	GetByBookID(ctx context.Context, bookID string) (*models.Download, error)

	// List returns every record, most recent first.
	List(ctx context.Context) ([]*models.Download, error)

	// DeleteByBookID forgets a saved file. Forgetting an unknown book is not
	// an error.
	DeleteByBookID(ctx context.Context, bookID string) error

	Clear(ctx context.Context) error
}
