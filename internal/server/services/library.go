package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/common"
	"github.com/dmitrijs2005/comicsync/internal/dbx"
	"github.com/dmitrijs2005/comicsync/internal/logging"
	"github.com/dmitrijs2005/comicsync/internal/server/config"
	"github.com/dmitrijs2005/comicsync/internal/server/lww"
	"github.com/dmitrijs2005/comicsync/internal/server/models"
	"github.com/dmitrijs2005/comicsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/comicsync/internal/server/repositories/rows"
	"github.com/dmitrijs2005/comicsync/internal/server/storage"
)

const defaultPageSize = 100

// ListRequest asks for one page of a kind. With AfterID set, UpdatedAfter
// and AfterID form a keyset cursor taken from a previous page's Next.
type ListRequest struct {
	Kind         string
	UpdatedAfter time.Time
	AfterID      string
	Filters      map[string]string
	Page         int
	PageSize     int
}

// ListResult is one page plus the number of rows matching the request. Next
// is positioned on the last row and is nil for an empty page.
type ListResult struct {
	Total    int
	Page     int
	PageSize int
	Rows     []*models.Row
	Next     *models.Cursor
}

// LibraryService serves the shared library rows and each user's records of
// them. Pushed levels are merged field by field under a row lock.
type LibraryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	files       storage.Presigner
	maxPageSize int
	linkExpiry  time.Duration
	log         logging.Logger
}

func NewLibraryService(db *sql.DB, m repomanager.RepositoryManager, files storage.Presigner, cfg *config.Config, log logging.Logger) *LibraryService {
	maxPageSize := cfg.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = defaultPageSize
	}
	return &LibraryService{
		db:          db,
		repomanager: m,
		files:       files,
		maxPageSize: maxPageSize,
		linkExpiry:  cfg.DownloadURLExpiry,
		log:         log.With("module", "library"),
	}
}

// List returns one page of rows changed after req.UpdatedAfter, ordered by
// change time and id. Pages start at 1; the page size is clamped to the
// configured maximum. Incremental readers should follow Next instead of
// Page so that rows changing between requests cannot shift out of view.
func (s *LibraryService) List(ctx context.Context, userID string, req ListRequest) (*ListResult, error) {
	kind, err := models.LookupKind(req.Kind)
	if err != nil {
		return nil, err
	}
	if req.AfterID != "" && req.UpdatedAfter.IsZero() {
		return nil, common.NewFieldError("after_id", "requires updated_after")
	}

	page := max(req.Page, 1)
	size := req.PageSize
	if size <= 0 {
		size = min(defaultPageSize, s.maxPageSize)
	}
	size = min(size, s.maxPageSize)

	q := rows.ListQuery{
		UserID:       userID,
		UpdatedAfter: req.UpdatedAfter,
		AfterID:      req.AfterID,
		Filters:      req.Filters,
		Limit:        size,
		Offset:       (page - 1) * size,
	}

	repo := s.repomanager.Rows(s.db)
	total, err := repo.Count(ctx, kind, q)
	if err != nil {
		return nil, err
	}
	data, err := repo.List(ctx, kind, q)
	if err != nil {
		return nil, err
	}
	res := &ListResult{Total: total, Page: page, PageSize: size, Rows: data}
	if len(data) > 0 {
		next := models.CursorOf(data[len(data)-1])
		res.Next = &next
	}
	return res, nil
}

// Update merges a pushed primary level into the stored row, creating the
// row when it does not exist, and returns the canonical row. A tombstone is
// returned unchanged so the caller learns about the deletion.
func (s *LibraryService) Update(ctx context.Context, kindName, id string, incoming map[string]any) (*models.Row, error) {
	kind, err := models.LookupKind(kindName)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, common.NewFieldError(models.KeyID, "required")
	}
	rec, err := kind.Primary.Decode("", incoming)
	if err != nil {
		return nil, err
	}

	var out *models.Row
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Rows(tx)

		stored, err := repo.GetForUpdate(ctx, kind, id)
		created := errors.Is(err, common.ErrNotFound)
		switch {
		case created:
			stored = &models.Row{ID: id, Record: models.NewRecord()}
		case err != nil:
			return err
		case stored.IsDeleted():
			out = stored
			return nil
		}

		res := lww.MergeRecord(stored.Record, rec)
		if len(res.Rejected) > 0 {
			s.log.Debug(ctx, "stale fields ignored", "kind", kind.Name, "id", id, "fields", res.Rejected)
		}
		if !res.Changed() && !created {
			out = stored
			return nil
		}
		if err := kind.Primary.Complete("", res.Record.Data); err != nil {
			return err
		}

		stored.Record = res.Record
		if err := repo.Save(ctx, kind, stored); err != nil {
			return err
		}
		out = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateUser merges a pushed user level into userID's record of a live row
// and returns the canonical record.
func (s *LibraryService) UpdateUser(ctx context.Context, userID, kindName, id string, incoming map[string]any) (*models.UserRecord, error) {
	kind, err := models.LookupKind(kindName)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, common.NewFieldError(models.KeyID, "required")
	}
	rec, err := kind.User.Decode(models.KeyUser+".", incoming)
	if err != nil {
		return nil, err
	}

	var out *models.UserRecord
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Rows(tx)

		primary, err := repo.GetForUpdate(ctx, kind, id)
		if err != nil {
			return err
		}
		if primary.IsDeleted() {
			return fmt.Errorf("%w: %s %s was deleted", common.ErrNotFound, kind.Name, id)
		}

		stored, err := repo.GetUserForUpdate(ctx, kind, userID, id)
		if errors.Is(err, common.ErrNotFound) {
			stored, err = &models.UserRecord{Record: models.NewRecord()}, nil
		}
		if err != nil {
			return err
		}

		res := lww.MergeRecord(stored.Record, rec)
		if !res.Changed() {
			out = stored
			return nil
		}
		stored.Record = res.Record
		if err := repo.SaveUser(ctx, kind, userID, id, stored); err != nil {
			return err
		}
		out = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete turns a row into a tombstone. Missing and already deleted rows are
// common.ErrNotFound.
func (s *LibraryService) Delete(ctx context.Context, kindName, id string) error {
	kind, err := models.LookupKind(kindName)
	if err != nil {
		return err
	}
	if err := s.repomanager.Rows(s.db).Delete(ctx, kind, id); err != nil {
		return err
	}
	s.log.Info(ctx, "row deleted", "kind", kind.Name, "id", id)
	return nil
}

// DownloadURL presigns a link to the file of a live book.
func (s *LibraryService) DownloadURL(ctx context.Context, userID, bookID string) (string, error) {
	row, err := s.repomanager.Rows(s.db).Get(ctx, models.Books, userID, bookID)
	if err != nil {
		return "", err
	}
	if row.IsDeleted() {
		return "", fmt.Errorf("%w: book %s was deleted", common.ErrNotFound, bookID)
	}
	key, _ := row.Record.Data["file"].(string)
	if key == "" {
		return "", fmt.Errorf("%w: book %s has no file", common.ErrNotFound, bookID)
	}
	return s.files.PresignGet(ctx, key, s.linkExpiry)
}
