package syncer

import (
	"context"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/client/models"
	"github.com/dmitrijs2005/comicsync/internal/client/store"
)

// Replica is the part of *store.Store the syncer depends on.
type Replica interface {
	Get(ctx context.Context, kind models.Kind, id string) (*models.Entity, error)
	List(ctx context.Context, kind models.Kind, q store.ListQuery) ([]*models.Entity, error)
	Dirty(ctx context.Context, kind models.Kind) ([]*models.Entity, error)
	Update(ctx context.Context, kind models.Kind, id string, changes models.Fields) (*models.Entity, error)
	MergeIncoming(ctx context.Context, kind models.Kind, rows []*models.Entity) (store.MergeResult, error)
	Reconcile(ctx context.Context, kind models.Kind, id string, ack store.Ack) (*models.Entity, error)
	Delete(ctx context.Context, kind models.Kind, id string) error
	Watermark(ctx context.Context, list string) (time.Time, error)
	AdvanceWatermark(ctx context.Context, list string, t time.Time) error
	Reset(ctx context.Context) error
}

var _ Replica = (*store.Store)(nil)
