package rows

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/comicsync/internal/common"
	"github.com/dmitrijs2005/comicsync/internal/dbx"
	"github.com/dmitrijs2005/comicsync/internal/server/models"
	"github.com/dmitrijs2005/comicsync/internal/server/repositories/pgerr"
)

// Table names come from models.Kind, never from requests, so they are
// formatted into the statements directly.

const joinedColumns = `p.id, p.data, p.update_map, p.created_at, p.updated_at, p.deleted_at,
		       u.data, u.update_map, u.updated_at`

const changedAt = "GREATEST(p.updated_at, u.updated_at)"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// where builds the WHERE clause shared by List and Count. $1 is always the
// user id used by the join.
func where(kind *models.Kind, q ListQuery) (string, []any, error) {
	args := []any{q.UserID}
	var conds []string

	switch {
	case q.UpdatedAfter.IsZero():
		conds = append(conds, "p.deleted_at IS NULL")
	case q.AfterID == "":
		args = append(args, q.UpdatedAfter)
		conds = append(conds, fmt.Sprintf("%s > $%d", changedAt, len(args)))
	default:
		args = append(args, q.UpdatedAfter, q.AfterID)
		conds = append(conds, fmt.Sprintf("(%s, p.id) > ($%d, $%d)", changedAt, len(args)-1, len(args)))
	}

	paths := make([]string, 0, len(q.Filters))
	for p := range q.Filters {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	for _, p := range paths {
		expr, err := kind.FilterExpr(p)
		if err != nil {
			return "", nil, err
		}
		args = append(args, q.Filters[p])
		conds = append(conds, fmt.Sprintf("%s = $%d", expr, len(args)))
	}

	return strings.Join(conds, " AND "), args, nil
}

func (r *PostgresRepository) List(ctx context.Context, kind *models.Kind, q ListQuery) ([]*models.Row, error) {
	cond, args, err := where(kind, q)
	if err != nil {
		return nil, err
	}
	args = append(args, q.Limit, q.Offset)

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s p
		LEFT JOIN %s u ON u.entity_id = p.id AND u.user_id = $1
		WHERE %s
		ORDER BY %s, p.id
		LIMIT $%d OFFSET $%d
	`, joinedColumns, kind.Table, kind.UserTable, cond, changedAt, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", kind.Name, err)
	}
	defer rows.Close()

	var result []*models.Row
	for rows.Next() {
		row, err := scanJoined(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Count(ctx context.Context, kind *models.Kind, q ListQuery) (int, error) {
	cond, args, err := where(kind, q)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		SELECT count(*)
		FROM %s p
		LEFT JOIN %s u ON u.entity_id = p.id AND u.user_id = $1
		WHERE %s
	`, kind.Table, kind.UserTable, cond)

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Get(ctx context.Context, kind *models.Kind, userID, id string) (*models.Row, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s p
		LEFT JOIN %s u ON u.entity_id = p.id AND u.user_id = $1
		WHERE p.id = $2
	`, joinedColumns, kind.Table, kind.UserTable)

	row, err := scanJoined(r.db.QueryRowContext(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return row, nil
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, kind *models.Kind, id string) (*models.Row, error) {
	query := fmt.Sprintf(`
		SELECT id, data, update_map, created_at, updated_at, deleted_at
		FROM %s
		WHERE id = $1
		FOR UPDATE
	`, kind.Table)

	var (
		row       models.Row
		data, um  []byte
		deletedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&row.ID, &data, &um, &row.CreatedAt, &row.UpdatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if row.Record, err = decodeRecord(data, um); err != nil {
		return nil, fmt.Errorf("%s %s: %w", kind.Name, id, err)
	}
	if deletedAt.Valid {
		row.DeletedAt = &deletedAt.Time
	}
	return &row, nil
}

func (r *PostgresRepository) Save(ctx context.Context, kind *models.Kind, row *models.Row) error {
	data, um, err := encodeRecord(row.Record)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, data, update_map)
		VALUES ($1, $2::jsonb, $3::jsonb)
		ON CONFLICT (id)
		DO UPDATE SET
			data = EXCLUDED.data,
			update_map = EXCLUDED.update_map,
			updated_at = now()
		RETURNING created_at, updated_at
	`, kind.Table)

	if err := r.db.QueryRowContext(ctx, query, row.ID, data, um).Scan(&row.CreatedAt, &row.UpdatedAt); err != nil {
		if pgerr.Code(err) == pgerr.CheckViolation {
			return pgerr.AsFieldError(err, kind.Table, "")
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetUserForUpdate(ctx context.Context, kind *models.Kind, userID, id string) (*models.UserRecord, error) {
	query := fmt.Sprintf(`
		SELECT data, update_map, updated_at
		FROM %s
		WHERE user_id = $1 AND entity_id = $2
		FOR UPDATE
	`, kind.UserTable)

	var (
		rec      models.UserRecord
		data, um []byte
	)
	if err := r.db.QueryRowContext(ctx, query, userID, id).Scan(&data, &um, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	var err error
	if rec.Record, err = decodeRecord(data, um); err != nil {
		return nil, fmt.Errorf("%s %s: %w", kind.UserTable, id, err)
	}
	return &rec, nil
}

func (r *PostgresRepository) SaveUser(ctx context.Context, kind *models.Kind, userID, id string, rec *models.UserRecord) error {
	data, um, err := encodeRecord(rec.Record)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, entity_id, data, update_map)
		VALUES ($1, $2, $3::jsonb, $4::jsonb)
		ON CONFLICT (user_id, entity_id)
		DO UPDATE SET
			data = EXCLUDED.data,
			update_map = EXCLUDED.update_map,
			updated_at = now()
		RETURNING updated_at
	`, kind.UserTable)

	if err := r.db.QueryRowContext(ctx, query, userID, id, data, um).Scan(&rec.UpdatedAt); err != nil {
		if pgerr.Code(err) == pgerr.CheckViolation {
			return pgerr.AsFieldError(err, kind.UserTable, models.KeyUser+".")
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, kind *models.Kind, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, kind.Table)

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJoined(s scanner) (*models.Row, error) {
	var (
		row                models.Row
		data, um           []byte
		userData, userUM   []byte
		deletedAt, userUpd sql.NullTime
	)
	if err := s.Scan(&row.ID, &data, &um, &row.CreatedAt, &row.UpdatedAt, &deletedAt,
		&userData, &userUM, &userUpd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	var err error
	if row.Record, err = decodeRecord(data, um); err != nil {
		return nil, fmt.Errorf("row %s: %w", row.ID, err)
	}
	if deletedAt.Valid {
		row.DeletedAt = &deletedAt.Time
	}
	if userUpd.Valid {
		rec, err := decodeRecord(userData, userUM)
		if err != nil {
			return nil, fmt.Errorf("row %s: %s: %w", row.ID, models.KeyUser, err)
		}
		row.User = &models.UserRecord{Record: rec, UpdatedAt: userUpd.Time}
	}
	return &row, nil
}

func decodeRecord(data, um []byte) (models.Record, error) {
	rec := models.NewRecord()
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return models.Record{}, fmt.Errorf("%w: data: %v", common.ErrMalformedRow, err)
		}
	}
	if len(um) > 0 {
		if err := json.Unmarshal(um, &rec.UpdateMap); err != nil {
			return models.Record{}, fmt.Errorf("%w: update_map: %v", common.ErrMalformedRow, err)
		}
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	if rec.UpdateMap == nil {
		rec.UpdateMap = map[string]string{}
	}
	return rec, nil
}

func encodeRecord(rec models.Record) (string, string, error) {
	data := rec.Data
	if data == nil {
		data = map[string]any{}
	}
	um := rec.UpdateMap
	if um == nil {
		um = map[string]string{}
	}
	d, err := json.Marshal(data)
	if err != nil {
		return "", "", fmt.Errorf("%w: data: %v", common.ErrMalformedRow, err)
	}
	u, err := json.Marshal(um)
	if err != nil {
		return "", "", fmt.Errorf("%w: update_map: %v", common.ErrMalformedRow, err)
	}
	return string(d), string(u), nil
}

var _ Repository = (*PostgresRepository)(nil)
