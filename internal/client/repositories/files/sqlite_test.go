package files

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/comicsync/internal/client/models"
	"github.com/dmitrijs2005/comicsync/internal/common"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE downloads (
  book_id TEXT PRIMARY KEY,
  local_path TEXT NOT NULL,
  size INTEGER NOT NULL,
  downloaded_at INTEGER NOT NULL
);
`)
	require.NoError(t, err)
	return db
}

func TestCreateOrUpdate_InsertAndReplace(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 8, 30, 0, 123, time.UTC)

	require.NoError(t, r.CreateOrUpdate(ctx, &models.Download{BookID: "b1", LocalPath: "/tmp/one.cbz", Size: 10, DownloadedAt: at}))
	got, err := r.GetByBookID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, &models.Download{BookID: "b1", LocalPath: "/tmp/one.cbz", Size: 10, DownloadedAt: at}, got)

	later := at.Add(time.Hour)
	require.NoError(t, r.CreateOrUpdate(ctx, &models.Download{BookID: "b1", LocalPath: "/tmp/two.cbz", Size: 20, DownloadedAt: later}))
	got, err = r.GetByBookID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/two.cbz", got.LocalPath)
	assert.Equal(t, int64(20), got.Size)
	assert.True(t, got.DownloadedAt.Equal(later))
}

func TestGetByBookID_NotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	_, err := r.GetByBookID(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestList_NewestFirst(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"b1", "b2", "b3"} {
		require.NoError(t, r.CreateOrUpdate(ctx, &models.Download{
			BookID: id, LocalPath: "/d/" + id, Size: 1, DownloadedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"b3", "b2", "b1"}, []string{list[0].BookID, list[1].BookID, list[2].BookID})
}

func TestDeleteAndClear(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	for _, id := range []string{"b1", "b2"} {
		require.NoError(t, r.CreateOrUpdate(ctx, &models.Download{BookID: id, LocalPath: "/d/" + id, DownloadedAt: time.Now()}))
	}

	require.NoError(t, r.DeleteByBookID(ctx, "b1"))
	require.NoError(t, r.DeleteByBookID(ctx, "b1"))
	_, err := r.GetByBookID(ctx, "b1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, r.Clear(ctx))
	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
