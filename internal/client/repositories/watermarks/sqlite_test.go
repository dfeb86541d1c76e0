package watermarks

import (
	"context"
	"database/sql"
	"testing"
	"time"

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

	_, err = db.Exec(`
CREATE TABLE watermarks (
  list      TEXT PRIMARY KEY,
  pulled_at INTEGER NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestGet_AbsentList(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	ts, ok, err := r.Get(context.Background(), "books:all")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, ts.IsZero())
}

func TestAdvance_IsMonotonic(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 123, time.UTC)

	require.NoError(t, r.Advance(ctx, "books:all", t0))
	require.NoError(t, r.Advance(ctx, "books:all", t0.Add(-time.Hour)))

	got, ok, err := r.Get(ctx, "books:all")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, t0.Equal(got))

	require.NoError(t, r.Advance(ctx, "books:all", t0.Add(time.Minute)))
	got, _, err = r.Get(ctx, "books:all")
	require.NoError(t, err)
	assert.True(t, t0.Add(time.Minute).Equal(got))
}

func TestAdvance_ListsAreIndependent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, r.Advance(ctx, "series:all", t0))
	require.NoError(t, r.Advance(ctx, "series:reading", t0.Add(time.Hour)))

	all, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.True(t, t0.Equal(all["series:all"]))
	assert.True(t, t0.Add(time.Hour).Equal(all["series:reading"]))

	require.NoError(t, r.Clear(ctx))
	all, err = r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestErrorsWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, _, err := r.Get(ctx, "l")
	require.ErrorContains(t, err, "failed to get watermark[l]")
	require.ErrorContains(t, r.Advance(ctx, "l", time.Now()), "failed to advance watermark[l]")
	_, err = r.List(ctx)
	require.ErrorContains(t, err, "failed to list watermarks")
	require.ErrorContains(t, r.Clear(ctx), "failed to clear watermarks")
}
