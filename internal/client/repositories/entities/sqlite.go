package entities

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/client/models"
	"github.com/dmitrijs2005/comicsync/internal/common"
	"github.com/dmitrijs2005/comicsync/internal/dbx"
)

const baseColumns = "id, data, update_map, user_data, user_update_map, dirty, created_at, updated_at"

// SQLiteRepository implements Repository over a DBTX (either *sql.DB or
// *sql.Tx). The table is named after the schema kind.
type SQLiteRepository struct {
	db     dbx.DBTX
	schema *models.Schema
}

func NewSQLiteRepository(db dbx.DBTX, schema *models.Schema) *SQLiteRepository {
	return &SQLiteRepository{db: db, schema: schema}
}

func (r *SQLiteRepository) table() string {
	return string(r.schema.Kind)
}

func (r *SQLiteRepository) columns() string {
	cols := baseColumns
	for _, ic := range r.schema.Index {
		cols += ", " + ic.Column
	}
	return cols
}

// Get returns the row with id or common.ErrNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Entity, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, baseColumns, r.table())
	e, err := scanEntity(r.db.QueryRowContext(ctx, query, id))
	if dbx.IsNoRows(err) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s[%s]: %w", r.table(), id, err)
	}
	return e, nil
}

// Upsert writes the whole row, including its dirty mask and the extracted
// index columns.
func (r *SQLiteRepository) Upsert(ctx context.Context, e *models.Entity) error {
	if e.ID == "" {
		return common.ErrMissingID
	}

	data, err := json.Marshal(e.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode %s[%s] data: %w", r.table(), e.ID, err)
	}
	um, err := json.Marshal(e.UpdateMap)
	if err != nil {
		return fmt.Errorf("failed to encode %s[%s] update_map: %w", r.table(), e.ID, err)
	}
	sub := e.Sub
	if sub == nil {
		sub = models.NewRecord()
	}
	subData, err := json.Marshal(sub.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode %s[%s] user_data: %w", r.table(), e.ID, err)
	}
	subUM, err := json.Marshal(sub.UpdateMap)
	if err != nil {
		return fmt.Errorf("failed to encode %s[%s] user_update_map: %w", r.table(), e.ID, err)
	}

	args := []any{e.ID, string(data), string(um), string(subData), string(subUM), int(e.Dirty),
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt)}
	placeholders := "?, ?, ?, ?, ?, ?, ?, ?"
	updates := []string{
		"data = excluded.data",
		"update_map = excluded.update_map",
		"user_data = excluded.user_data",
		"user_update_map = excluded.user_update_map",
		"dirty = excluded.dirty",
		"created_at = excluded.created_at",
		"updated_at = excluded.updated_at",
	}
	for _, ic := range r.schema.Index {
		args = append(args, indexValue(e.Fields[ic.Field]))
		placeholders += ", ?"
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", ic.Column, ic.Column))
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s`,
		r.table(), r.columns(), placeholders, strings.Join(updates, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert %s[%s]: %w", r.table(), e.ID, err)
	}
	return nil
}

// Delete removes the row. Deleting an absent row is not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, r.table())
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete %s[%s]: %w", r.table(), id, err)
	}
	return nil
}

// List scans the index columns in order, narrowed by q.
func (r *SQLiteRepository) List(ctx context.Context, q Query) ([]*models.Entity, error) {
	var (
		where []string
		args  []any
	)
	for field, value := range q.Equals {
		col, ok := r.schema.IndexColumnFor(field)
		if !ok {
			return nil, common.NewFieldError(field, "not an index field")
		}
		where = append(where, col+" = ?")
		args = append(args, value)
	}

	order := make([]string, 0, len(r.schema.Index)+1)
	for _, ic := range r.schema.Index {
		order = append(order, ic.Column)
	}
	order = append(order, "id")

	query := fmt.Sprintf(`SELECT %s FROM %s`, baseColumns, r.table())
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + strings.Join(order, ", ")
	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	return r.query(ctx, query, args...)
}

// Dirty returns every row with a non-zero dirty mask.
func (r *SQLiteRepository) Dirty(ctx context.Context) ([]*models.Entity, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE dirty <> 0 ORDER BY id`, baseColumns, r.table())
	return r.query(ctx, query)
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, r.table())); err != nil {
		return fmt.Errorf("failed to clear %s: %w", r.table(), err)
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.Entity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", r.table(), err)
	}
	defer rows.Close()

	var result []*models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", r.table(), err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", r.table(), err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*models.Entity, error) {
	var (
		e                        models.Entity
		data, um, subData, subUM string
		dirty                    int
		createdAt, updatedAt     sql.NullString
	)
	if err := row.Scan(&e.ID, &data, &um, &subData, &subUM, &dirty, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	e.Record = *models.NewRecord()
	e.Sub = models.NewRecord()
	for _, p := range []struct {
		raw string
		dst any
	}{
		{data, &e.Fields},
		{um, &e.UpdateMap},
		{subData, &e.Sub.Fields},
		{subUM, &e.Sub.UpdateMap},
	} {
		if err := json.Unmarshal([]byte(p.raw), p.dst); err != nil {
			return nil, fmt.Errorf("%w: row %s: %v", common.ErrMalformedRow, e.ID, err)
		}
	}
	if e.Fields == nil {
		e.Fields = models.Fields{}
	}
	if e.UpdateMap == nil {
		e.UpdateMap = models.UpdateMap{}
	}
	if e.Sub.Fields == nil {
		e.Sub.Fields = models.Fields{}
	}
	if e.Sub.UpdateMap == nil {
		e.Sub.UpdateMap = models.UpdateMap{}
	}
	e.Dirty = models.Dirty(dirty)

	var err error
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", common.ErrMalformedRow, err)
	}
	return t, nil
}

func indexValue(v any) any {
	switch v.(type) {
	case string, float64, bool, int, int64:
		return v
	default:
		return nil
	}
}
