package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/client/models"
	"github.com/dmitrijs2005/comicsync/internal/client/repositories/entities"
	"github.com/dmitrijs2005/comicsync/internal/client/repositories/watermarks"
	"github.com/dmitrijs2005/comicsync/internal/common"
)

// ListQuery selects rows for ordered rendering. Filters are keyed by field
// path ("series", "user.reading"); index fields are matched by the range
// scan, the remaining filterable paths against the decoded row.
type ListQuery struct {
	Filters map[string]string
	Limit   int
	Offset  int
}

// List returns rows of kind ordered by the kind's index columns.
func (s *Store) List(ctx context.Context, kind models.Kind, q ListQuery) ([]*models.Entity, error) {
	repo, schema, done, err := s.reader(kind)
	if err != nil {
		return nil, err
	}
	defer done()

	scan := entities.Query{Equals: map[string]string{}}
	post := map[string]string{}
	for path, value := range q.Filters {
		if !schema.CanFilter(path) {
			return nil, common.NewFieldError(path, "not filterable")
		}
		if _, ok := schema.IndexColumnFor(path); ok {
			scan.Equals[path] = value
		} else {
			post[path] = value
		}
	}
	if len(post) == 0 {
		scan.Limit, scan.Offset = q.Limit, q.Offset
	}

	rows, err := repo.List(ctx, scan)
	if err != nil {
		return nil, err
	}
	if len(post) == 0 {
		return rows, nil
	}

	matched := rows[:0]
	for _, e := range rows {
		if matches(schema, e, post) {
			matched = append(matched, e)
		}
	}
	return paginate(matched, q.Limit, q.Offset), nil
}

func matches(schema *models.Schema, e *models.Entity, filters map[string]string) bool {
	for path, want := range filters {
		v, ok := e.Value(schema, path)
		if !ok || fmt.Sprint(v) != want {
			return false
		}
	}
	return true
}

func paginate(rows []*models.Entity, limit, offset int) []*models.Entity {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// Watermark returns the last successful pull time of list, or the zero time
// when the list was never pulled.
func (s *Store) Watermark(ctx context.Context, list string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, _, err := watermarks.NewSQLiteRepository(s.db).Get(ctx, list)
	return t, err
}

// AdvanceWatermark moves the list's watermark to t unless it is already
// later.
func (s *Store) AdvanceWatermark(ctx context.Context, list string, t time.Time) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return watermarks.NewSQLiteRepository(s.db).Advance(ctx, list, t)
}

func (s *Store) Watermarks(ctx context.Context) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return watermarks.NewSQLiteRepository(s.db).List(ctx)
}
