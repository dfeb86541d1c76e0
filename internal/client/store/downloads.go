package store

import (
	"context"

	"github.com/dmitrijs2005/comicsync/internal/client/models"
	"github.com/dmitrijs2005/comicsync/internal/client/repositories/files"
)

// RecordDownload remembers where a book's file was saved.
func (s *Store) RecordDownload(ctx context.Context, d *models.Download) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return files.NewSQLiteRepository(s.db).CreateOrUpdate(ctx, d)
}

// Download returns common.ErrNotFound when the book was never saved here.
func (s *Store) Download(ctx context.Context, bookID string) (*models.Download, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return files.NewSQLiteRepository(s.db).GetByBookID(ctx, bookID)
}

func (s *Store) Downloads(ctx context.Context) ([]*models.Download, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return files.NewSQLiteRepository(s.db).List(ctx)
}

func (s *Store) ForgetDownload(ctx context.Context, bookID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return files.NewSQLiteRepository(s.db).DeleteByBookID(ctx, bookID)
}
