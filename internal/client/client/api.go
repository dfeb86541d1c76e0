package client

import (
	"context"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/client/models"
)

// ListParams selects one page of rows changed after UpdatedAfter. The zero
// UpdatedAfter asks for everything. A non-empty AfterID makes
// (UpdatedAfter, AfterID) a cursor copied from a previous page's Next.
type ListParams struct {
	UpdatedAfter time.Time
	AfterID      string
	Filters      map[string]string
	Page         int
	PageSize     int
}

// Cursor is the server's position after the last row of a page.
type Cursor struct {
	UpdatedAt time.Time
	ID        string
}

// ListPage is one page of a List response. Data includes tombstones. Next
// is nil when the page is empty.
type ListPage struct {
	Total    int
	Page     int
	PageSize int
	Data     []*models.Entity
	Next     *Cursor
}

type API interface {
	List(ctx context.Context, kind models.Kind, p ListParams) (*ListPage, error)
	// Update sends the Primary level and returns the canonical row.
	Update(ctx context.Context, kind models.Kind, id string, rec models.Record) (*models.Entity, error)
	// UpdateUser sends the Sub-Entity level and returns its canonical record.
	UpdateUser(ctx context.Context, kind models.Kind, id string, rec models.Record) (*models.Record, error)
	Delete(ctx context.Context, kind models.Kind, id string) error
	Ping(ctx context.Context) error
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) error
	DownloadURL(ctx context.Context, bookID string) (string, error)
	Close() error
}
