package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/client/cachebus"
	"github.com/dmitrijs2005/comicsync/internal/client/client"
	"github.com/dmitrijs2005/comicsync/internal/client/models"
	"github.com/dmitrijs2005/comicsync/internal/client/store"
	"github.com/dmitrijs2005/comicsync/internal/logging"
)

const defaultPageSize = 100

// ListSpec names a logical list, e.g. "series:reading", and the filters
// that define it both remotely and locally.
type ListSpec struct {
	Name    string
	Kind    models.Kind
	Filters map[string]string
}

// AllOf is the unfiltered list of kind, named "<kind>:all".
func AllOf(kind models.Kind) ListSpec {
	return ListSpec{Name: string(kind) + ":all", Kind: kind}
}

// PullResult summarises one pull. Watermark is the change time of the last
// row received, or the previous watermark when nothing changed.
type PullResult struct {
	List  string
	Pages int
	Rows  int
	store.MergeResult
	PulledAt  time.Time
	Watermark time.Time
}

type Puller struct {
	replica  Replica
	remote   client.API
	bus      *cachebus.Bus
	pageSize int
	now      func() time.Time
	log      logging.Logger
}

func NewPuller(replica Replica, remote client.API, bus *cachebus.Bus, pageSize int, now func() time.Time, log logging.Logger) *Puller {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if now == nil {
		now = time.Now
	}
	return &Puller{replica: replica, remote: remote, bus: bus, pageSize: pageSize, now: now, log: log.With("module", "puller")}
}

// Pull fetches every row of spec changed since its watermark, including
// tombstones, and merges them page by page. Pages are read by keyset cursor
// so a row changing mid-pull moves to the tail instead of shifting others
// out of view. The watermark advances only to the last change time actually
// received; it stays put on failure so the next pull covers the gap. Rows
// merged from earlier pages stay merged. Pull never retries by itself.
func (p *Puller) Pull(ctx context.Context, spec ListSpec) (res PullResult, err error) {
	res.List = spec.Name
	if spec.Name == "" {
		return res, errors.New("pull: list name required")
	}

	since, err := p.replica.Watermark(ctx, spec.Name)
	if err != nil {
		return res, fmt.Errorf("pull %s: %w", spec.Name, err)
	}
	res.PulledAt = p.now().UTC()
	res.Watermark = since

	defer func() {
		if err == nil || res.Rows > 0 {
			p.bus.Publish(cachebus.Update(false))
		}
	}()

	cursor := client.Cursor{UpdatedAt: since}
	for {
		resp, err := p.remote.List(ctx, spec.Kind, client.ListParams{
			UpdatedAfter: cursor.UpdatedAt,
			AfterID:      cursor.ID,
			Filters:      spec.Filters,
			Page:         1,
			PageSize:     p.pageSize,
		})
		if err != nil {
			return res, fmt.Errorf("pull %s page %d: %w", spec.Name, res.Pages+1, err)
		}
		res.Pages++

		merged, err := p.replica.MergeIncoming(ctx, spec.Kind, resp.Data)
		res.Rows += merged.Upserted + merged.Deleted + merged.Kept
		res.Upserted += merged.Upserted
		res.Deleted += merged.Deleted
		res.Kept += merged.Kept
		if err != nil {
			return res, fmt.Errorf("pull %s page %d: %w", spec.Name, res.Pages, err)
		}

		if resp.Next == nil || len(resp.Data) == 0 {
			break
		}
		cursor = *resp.Next
		res.Watermark = cursor.UpdatedAt

		size := resp.PageSize
		if size <= 0 {
			size = p.pageSize
		}
		if len(resp.Data) < size || len(resp.Data) >= resp.Total {
			break
		}
	}

	if res.Watermark.After(since) {
		if err := p.replica.AdvanceWatermark(ctx, spec.Name, res.Watermark); err != nil {
			return res, fmt.Errorf("pull %s: %w", spec.Name, err)
		}
	}

	p.log.Info(ctx, "pull finished", "list", spec.Name, "since", since, "watermark", res.Watermark,
		"pages", res.Pages, "upserted", res.Upserted, "deleted", res.Deleted, "kept", res.Kept)
	return res, nil
}
