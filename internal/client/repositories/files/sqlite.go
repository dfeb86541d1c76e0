package files

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/client/models"
	"github.com/dmitrijs2005/comicsync/internal/common"
	"github.com/dmitrijs2005/comicsync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateOrUpdate(ctx context.Context, d *models.Download) error {
	query := `INSERT INTO downloads (book_id, local_path, size, downloaded_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(book_id) DO UPDATE SET
				local_path = excluded.local_path,
				size = excluded.size,
				downloaded_at = excluded.downloaded_at
	`
	_, err := r.db.ExecContext(ctx, query, d.BookID, d.LocalPath, d.Size, d.DownloadedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert download: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByBookID(ctx context.Context, bookID string) (*models.Download, error) {
	var (
		d  models.Download
		ns int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT book_id, local_path, size, downloaded_at FROM downloads WHERE book_id = ?`, bookID).
		Scan(&d.BookID, &d.LocalPath, &d.Size, &ns)
	if dbx.IsNoRows(err) {
		return nil, fmt.Errorf("%w: download %s", common.ErrNotFound, bookID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get download: %w", err)
	}
	d.DownloadedAt = time.Unix(0, ns).UTC()
	return &d, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Download, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT book_id, local_path, size, downloaded_at FROM downloads ORDER BY downloaded_at DESC, book_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	defer rows.Close()

	var result []*models.Download
	for rows.Next() {
		var (
			d  models.Download
			ns int64
		)
		if err := rows.Scan(&d.BookID, &d.LocalPath, &d.Size, &ns); err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}
		d.DownloadedAt = time.Unix(0, ns).UTC()
		result = append(result, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate downloads: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteByBookID(ctx context.Context, bookID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM downloads WHERE book_id = ?`, bookID); err != nil {
		return fmt.Errorf("failed to delete download: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM downloads`); err != nil {
		return fmt.Errorf("failed to clear downloads: %w", err)
	}
	return nil
}
