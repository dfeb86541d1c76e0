package entities

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/client/migrations"
	"github.com/dmitrijs2005/comicsync/internal/client/models"
	"github.com/dmitrijs2005/comicsync/internal/common"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.UpContext(context.Background(), db, "."))
	return db
}

func newBook(id, series string, sort float64) *models.Entity {
	e := models.Books.Empty(id)
	e.Fields["title"] = "Book " + id
	e.Fields["series"] = series
	e.Fields["sort"] = sort
	return e
}

func TestUpsertAndGet_RoundTrip(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t), models.Books)
	ctx := context.Background()

	created := time.Date(2024, 1, 2, 3, 4, 5, 6000, time.UTC)
	e := newBook("b1", "s1", 1)
	e.Fields["tags"] = []any{"action"}
	e.UpdateMap["title"] = "001700000000000-c-000000"
	e.Sub.Fields["current_page"] = float64(7)
	e.Sub.UpdateMap["current_page"] = "001700000000001-c-000000"
	e.Dirty = models.DirtyEntity | models.DirtySub
	e.CreatedAt = created

	require.NoError(t, r.Upsert(ctx, e))

	got, err := r.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, e.Fields, got.Fields)
	assert.Equal(t, e.UpdateMap, got.UpdateMap)
	assert.Equal(t, e.Sub, got.Sub)
	assert.Equal(t, e.Dirty, got.Dirty)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.True(t, got.UpdatedAt.IsZero())
}

func TestUpsert_OverwritesWholeRow(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t), models.Books)
	ctx := context.Background()

	e := newBook("b1", "s1", 1)
	e.Dirty = models.DirtyEntity
	require.NoError(t, r.Upsert(ctx, e))

	e2 := newBook("b1", "s2", 2)
	e2.Fields["title"] = "renamed"
	require.NoError(t, r.Upsert(ctx, e2))

	got, err := r.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Fields["title"])
	assert.Zero(t, got.Dirty)

	rows, err := r.List(ctx, Query{Equals: map[string]string{"series": "s2"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestUpsert_RequiresID(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t), models.Books)
	err := r.Upsert(context.Background(), models.Books.Empty(""))
	require.ErrorIs(t, err, common.ErrMissingID)
}

func TestGet_NotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t), models.Series)
	_, err := r.Get(context.Background(), "absent")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestList_OrderedByIndexColumns(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t), models.Books)
	ctx := context.Background()

	for _, e := range []*models.Entity{
		newBook("b3", "s1", 3),
		newBook("b1", "s1", 1),
		newBook("x1", "s2", 1),
		newBook("b2", "s1", 2),
	} {
		require.NoError(t, r.Upsert(ctx, e))
	}

	rows, err := r.List(ctx, Query{Equals: map[string]string{"series": "s1"}})
	require.NoError(t, err)
	ids := make([]string, 0, len(rows))
	for _, e := range rows {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"b1", "b2", "b3"}, ids)

	page, err := r.List(ctx, Query{Equals: map[string]string{"series": "s1"}, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b2", page[0].ID)

	all, err := r.List(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestList_RejectsNonIndexField(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t), models.Books)
	_, err := r.List(context.Background(), Query{Equals: map[string]string{"title": "x"}})
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestDirty_OnlyNonZero(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t), models.Series)
	ctx := context.Background()

	clean := models.Series.Empty("s1")
	dirty := models.Series.Empty("s2")
	dirty.Dirty = models.DirtySub
	require.NoError(t, r.Upsert(ctx, clean))
	require.NoError(t, r.Upsert(ctx, dirty))

	rows, err := r.Dirty(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "s2", rows[0].ID)
	assert.Equal(t, models.DirtySub, rows[0].Dirty)
}

func TestDelete_AndClear(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t), models.Series)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, models.Series.Empty("s1")))
	require.NoError(t, r.Upsert(ctx, models.Series.Empty("s2")))

	require.NoError(t, r.Delete(ctx, "s1"))
	require.NoError(t, r.Delete(ctx, "s1"))
	_, err := r.Get(ctx, "s1")
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, r.Clear(ctx))
	all, err := r.List(ctx, Query{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestGet_MalformedJSON(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db, models.Series)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `INSERT INTO series (id, data) VALUES ('s1', '{not json')`)
	require.NoError(t, err)

	_, err = r.Get(ctx, "s1")
	require.ErrorIs(t, err, common.ErrMalformedRow)
}

func TestErrorsWrapped_WhenClosed(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db, models.Books)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "b1")
	require.ErrorContains(t, err, "failed to get books[b1]")

	err = r.Upsert(ctx, newBook("b1", "s", 1))
	require.ErrorContains(t, err, "failed to upsert books[b1]")

	_, err = r.Dirty(ctx)
	require.ErrorContains(t, err, "failed to select books")
}
