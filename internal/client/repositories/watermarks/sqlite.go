package watermarks

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/dbx"
)

// SQLiteRepository stores watermarks as unix nanoseconds so that the
// monotonic guard is a plain integer comparison.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, list string) (time.Time, bool, error) {
	var ns int64
	err := r.db.QueryRowContext(ctx, `SELECT pulled_at FROM watermarks WHERE list = ?`, list).Scan(&ns)
	if dbx.IsNoRows(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get watermark[%s]: %w", list, err)
	}
	return time.Unix(0, ns).UTC(), true, nil
}

func (r *SQLiteRepository) Advance(ctx context.Context, list string, t time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO watermarks (list, pulled_at) VALUES (?, ?)
		ON CONFLICT(list) DO UPDATE SET pulled_at = excluded.pulled_at
		WHERE excluded.pulled_at > watermarks.pulled_at
	`, list, t.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to advance watermark[%s]: %w", list, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) (map[string]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT list, pulled_at FROM watermarks`)
	if err != nil {
		return nil, fmt.Errorf("failed to list watermarks: %w", err)
	}
	defer rows.Close()

	result := make(map[string]time.Time)
	for rows.Next() {
		var (
			list string
			ns   int64
		)
		if err := rows.Scan(&list, &ns); err != nil {
			return nil, fmt.Errorf("failed to scan watermark row: %w", err)
		}
		result[list] = time.Unix(0, ns).UTC()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate watermark rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM watermarks`); err != nil {
		return fmt.Errorf("failed to clear watermarks: %w", err)
	}
	return nil
}
