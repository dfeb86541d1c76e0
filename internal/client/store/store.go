package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/client/clock"
	"github.com/dmitrijs2005/comicsync/internal/client/merge"
	"github.com/dmitrijs2005/comicsync/internal/client/models"
	"github.com/dmitrijs2005/comicsync/internal/client/repositories/entities"
	"github.com/dmitrijs2005/comicsync/internal/client/repositories/files"
	"github.com/dmitrijs2005/comicsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/comicsync/internal/client/repositories/watermarks"
	"github.com/dmitrijs2005/comicsync/internal/common"
	"github.com/dmitrijs2005/comicsync/internal/dbx"
	"github.com/dmitrijs2005/comicsync/internal/logging"
)

type Option func(*Store)

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithNow sets the wall clock used for write-tokens.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	mu    sync.RWMutex
	dsn   string
	db    *sql.DB
	clock *clock.Authority
	now   func() time.Time
	log   logging.Logger
}

// Open opens (creating if needed) the replica at dsn and loads or creates
// its client instance id.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	s := &Store{dsn: dsn, now: time.Now, log: logging.Nop()}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("module", "store")

	if err := s.open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) open(ctx context.Context) error {
	db, err := openDatabase(ctx, s.dsn)
	if err != nil {
		return err
	}

	md := metadata.NewSQLiteRepository(db)
	id, ok, err := md.Get(ctx, metadata.KeyClientID)
	if err != nil {
		_ = db.Close()
		return err
	}
	if !ok {
		id = clock.NewClientID()
		if err := md.Set(ctx, metadata.KeyClientID, id); err != nil {
			_ = db.Close()
			return err
		}
		s.log.Info(ctx, "new replica", "client_id", id)
	}

	s.db = db
	s.clock = clock.NewAuthority(id).WithNow(s.now)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Reopen closes the connection and opens the same DSN again.
func (s *Store) Reopen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close replica: %w", err)
		}
		s.db = nil
	}
	return s.open(ctx)
}

// Reset wipes every row, watermark, download record and metadata entry and
// starts a new client instance.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := clock.NewClientID()
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, kind := range models.Kinds() {
			schema, _ := models.Lookup(kind)
			if err := entities.NewSQLiteRepository(tx, schema).Clear(ctx); err != nil {
				return err
			}
		}
		if err := watermarks.NewSQLiteRepository(tx).Clear(ctx); err != nil {
			return err
		}
		if err := files.NewSQLiteRepository(tx).Clear(ctx); err != nil {
			return err
		}
		md := metadata.NewSQLiteRepository(tx)
		if err := md.Clear(ctx); err != nil {
			return err
		}
		return md.Set(ctx, metadata.KeyClientID, id)
	})
	if err != nil {
		return fmt.Errorf("failed to reset replica: %w", err)
	}

	s.clock = clock.NewAuthority(id).WithNow(s.now)
	s.log.Info(ctx, "replica reset", "client_id", id)
	return nil
}

// ClientID returns the id embedded in this replica's write-tokens.
func (s *Store) ClientID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock.ClientID()
}

// Metadata returns a stored metadata value.
func (s *Store) Metadata(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return metadata.NewSQLiteRepository(s.db).Get(ctx, key)
}

func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return metadata.NewSQLiteRepository(s.db).Set(ctx, key, value)
}

// withRow runs fn in a transaction scoped to one row of kind.
func (s *Store) withRow(ctx context.Context, kind models.Kind, fn func(ctx context.Context, repo entities.Repository, schema *models.Schema) error) error {
	schema, err := models.Lookup(kind)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, entities.NewSQLiteRepository(tx, schema), schema)
	})
}

func (s *Store) reader(kind models.Kind) (entities.Repository, *models.Schema, func(), error) {
	schema, err := models.Lookup(kind)
	if err != nil {
		return nil, nil, nil, err
	}
	s.mu.RLock()
	return entities.NewSQLiteRepository(s.db, schema), schema, s.mu.RUnlock, nil
}

// Get returns the row or common.ErrNotFound.
func (s *Store) Get(ctx context.Context, kind models.Kind, id string) (*models.Entity, error) {
	repo, _, done, err := s.reader(kind)
	if err != nil {
		return nil, err
	}
	defer done()
	return repo.Get(ctx, id)
}

// Dirty returns every row of kind with unsynced local edits.
func (s *Store) Dirty(ctx context.Context, kind models.Kind) ([]*models.Entity, error) {
	repo, _, done, err := s.reader(kind)
	if err != nil {
		return nil, err
	}
	defer done()
	return repo.Dirty(ctx)
}

// Put upserts a row as given, dirty bits included. Tombstones are deleted
// instead. Pulls go through MergeIncoming; Put is the raw write for seeding
// and restoring a replica.
func (s *Store) Put(ctx context.Context, kind models.Kind, e *models.Entity) error {
	if e == nil || e.ID == "" {
		return common.ErrMissingID
	}
	return s.withRow(ctx, kind, func(ctx context.Context, repo entities.Repository, schema *models.Schema) error {
		if e.IsTombstone() {
			return repo.Delete(ctx, e.ID)
		}
		return repo.Upsert(ctx, withSub(schema, e))
	})
}

// BulkReplace writes network rows as authoritative: tombstones are deleted,
// everything else is upserted clean, discarding local edits. It is the bulk
// load entry point; incremental pulls use MergeIncoming, which keeps dirty
// levels. Each row is its own transaction; the first failure stops the batch
// and earlier rows stay written.
func (s *Store) BulkReplace(ctx context.Context, kind models.Kind, rows []*models.Entity) error {
	for _, row := range rows {
		if row == nil || row.ID == "" {
			return fmt.Errorf("%w: %w", common.ErrMalformedRow, common.ErrMissingID)
		}
		err := s.withRow(ctx, kind, func(ctx context.Context, repo entities.Repository, schema *models.Schema) error {
			if row.IsTombstone() {
				return repo.Delete(ctx, row.ID)
			}
			clean := withSub(schema, row.Clone())
			clean.Dirty = 0
			return repo.Upsert(ctx, clean)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// MergeResult counts what MergeIncoming did.
type MergeResult struct {
	Upserted int
	Deleted  int
	// Kept counts rows whose local edits survived at one level or more.
	Kept int
}

// MergeIncoming merges pulled rows against the local ones, one transaction
// per row. A row without id aborts the batch with common.ErrMalformedRow;
// rows merged before it stay merged.
func (s *Store) MergeIncoming(ctx context.Context, kind models.Kind, rows []*models.Entity) (MergeResult, error) {
	var res MergeResult
	for _, row := range rows {
		if row == nil || row.ID == "" {
			return res, fmt.Errorf("%w: %w", common.ErrMalformedRow, common.ErrMissingID)
		}
		err := s.withRow(ctx, kind, func(ctx context.Context, repo entities.Repository, schema *models.Schema) error {
			local, err := repo.Get(ctx, row.ID)
			if err != nil && !errors.Is(err, common.ErrNotFound) {
				return err
			}

			merged := merge.ApplyNetworkRow(schema, local, row)
			if merged.IsTombstone() {
				res.Deleted++
				return repo.Delete(ctx, merged.ID)
			}
			if merged.Dirty != 0 {
				res.Kept++
			} else {
				res.Upserted++
			}
			return repo.Upsert(ctx, merged)
		})
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// Update applies a user edit to the row, creating it from the empty template
// when absent, and stamps changed fields with a fresh write-token. An edit
// that changes nothing writes nothing. A row is only created by an edit that
// sets a primary field; a user-level edit of an absent row is
// common.ErrNotFound.
func (s *Store) Update(ctx context.Context, kind models.Kind, id string, changes models.Fields) (*models.Entity, error) {
	if id == "" {
		return nil, common.ErrMissingID
	}

	var out *models.Entity
	err := s.withRow(ctx, kind, func(ctx context.Context, repo entities.Repository, schema *models.Schema) error {
		existing, err := repo.Get(ctx, id)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}

		merged, dirty := merge.ApplyModification(schema, existing, changes, schema.Empty(id), s.clock.Issue())
		out = merged
		if dirty == 0 {
			return nil
		}
		if existing == nil && !dirty.Has(models.DirtyEntity) {
			out = nil
			return fmt.Errorf("%s[%s]: %w", kind, id, common.ErrNotFound)
		}
		if existing == nil {
			now := s.now().UTC()
			merged.CreatedAt, merged.UpdatedAt = now, now
		}
		return repo.Upsert(ctx, merged)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Ack describes a confirmed push of one entity level.
type Ack struct {
	Level models.Dirty
	// Sent is the update map the push carried.
	Sent models.UpdateMap
	// Server is the canonical record the server returned.
	Server    *models.Record
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Reconcile adopts the server's record for one level and clears its dirty
// bit. Fields edited locally after the push was sent (their token differs
// from Sent) keep their local value and token, and the bit stays set so the
// next cycle sends them. A row deleted in the meantime is ignored.
func (s *Store) Reconcile(ctx context.Context, kind models.Kind, id string, ack Ack) (*models.Entity, error) {
	var out *models.Entity
	err := s.withRow(ctx, kind, func(ctx context.Context, repo entities.Repository, schema *models.Schema) error {
		local, err := repo.Get(ctx, id)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		cur := local.Level(ack.Level)
		if cur == nil {
			cur = models.NewRecord()
		}
		adopted := ack.Server.Clone()
		if adopted == nil {
			adopted = cur.Clone()
		}
		if adopted.Fields == nil {
			adopted.Fields = models.Fields{}
		}
		if adopted.UpdateMap == nil {
			adopted.UpdateMap = models.UpdateMap{}
		}

		newer := false
		for field, tok := range cur.UpdateMap {
			if sent, ok := ack.Sent[field]; ok && sent == tok {
				continue
			}
			newer = true
			adopted.Fields[field] = cur.Fields[field]
			adopted.UpdateMap[field] = tok
		}

		switch ack.Level {
		case models.DirtyEntity:
			local.Record = *adopted
			if !ack.CreatedAt.IsZero() {
				local.CreatedAt = ack.CreatedAt
			}
			if !ack.UpdatedAt.IsZero() {
				local.UpdatedAt = ack.UpdatedAt
			}
		case models.DirtySub:
			local.Sub = adopted
		default:
			return fmt.Errorf("reconcile %s[%s]: unknown level %d", kind, id, ack.Level)
		}
		if !newer {
			local.Dirty &^= ack.Level
		} else {
			s.log.Debug(ctx, "local edits newer than push", "kind", kind, "id", id, "level", int(ack.Level))
		}

		out = local
		return repo.Upsert(ctx, withSub(schema, local))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the row locally.
func (s *Store) Delete(ctx context.Context, kind models.Kind, id string) error {
	return s.withRow(ctx, kind, func(ctx context.Context, repo entities.Repository, _ *models.Schema) error {
		return repo.Delete(ctx, id)
	})
}

func withSub(schema *models.Schema, e *models.Entity) *models.Entity {
	if schema.Sub == nil || e.Sub != nil {
		return e
	}
	c := e.Clone()
	c.Sub = models.NewRecord()
	return c
}
