package rows

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/comicsync/internal/common"
	"github.com/dmitrijs2005/comicsync/internal/server/models"
)

var joinedCols = []string{
	"id", "data", "update_map", "created_at", "updated_at", "deleted_at",
	"user_data", "user_update_map", "user_updated_at",
}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestWhere(t *testing.T) {
	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	cond, args, err := where(models.Books, ListQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "p.deleted_at IS NULL", cond)
	assert.Equal(t, []any{"u1"}, args)

	cond, args, err = where(models.Books, ListQuery{
		UserID:       "u1",
		UpdatedAfter: after,
		Filters:      map[string]string{"user.finished": "true", "series": "s1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "GREATEST(p.updated_at, u.updated_at) > $2 AND p.data->>'series' = $3 AND u.data->>'finished' = $4", cond)
	assert.Equal(t, []any{"u1", after, "s1", "true"}, args)

	cond, args, err = where(models.Books, ListQuery{UserID: "u1", UpdatedAfter: after, AfterID: "b7"})
	require.NoError(t, err)
	assert.Equal(t, "(GREATEST(p.updated_at, u.updated_at), p.id) > ($2, $3)", cond)
	assert.Equal(t, []any{"u1", after, "b7"}, args)

	_, _, err = where(models.Books, ListQuery{Filters: map[string]string{"title": "x"}})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestList_KeysetCursor(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE \(GREATEST\(p\.updated_at, u\.updated_at\), p\.id\) > \(\$2, \$3\)\s+ORDER BY GREATEST\(p\.updated_at, u\.updated_at\), p\.id\s+LIMIT \$4 OFFSET \$5`).
		WithArgs("u1", after, "b2", 2, 0).
		WillReturnRows(sqlmock.NewRows(joinedCols))

	got, err := repo.List(context.Background(), models.Books, ListQuery{UserID: "u1", UpdatedAfter: after, AfterID: "b2", Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	deleted := created.Add(time.Hour)
	rows := sqlmock.NewRows(joinedCols).
		AddRow("b1", []byte(`{"title":"A"}`), []byte(`{"title":"t1"}`), created, created, nil,
			[]byte(`{"finished":true}`), []byte(`{}`), created.Add(time.Minute)).
		AddRow("b2", []byte(`{}`), []byte(`{}`), created, deleted, deleted, nil, nil, nil)

	mock.ExpectQuery(`SELECT p\.id, .*FROM books p\s+LEFT JOIN user_books u ON u\.entity_id = p\.id AND u\.user_id = \$1\s+WHERE GREATEST\(p\.updated_at, u\.updated_at\) > \$2\s+ORDER BY .* LIMIT \$3 OFFSET \$4`).
		WithArgs("u1", created, 50, 100).
		WillReturnRows(rows)

	got, err := repo.List(context.Background(), models.Books, ListQuery{UserID: "u1", UpdatedAfter: created, Limit: 50, Offset: 100})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "A", got[0].Record.Data["title"])
	assert.Equal(t, "t1", got[0].Record.UpdateMap["title"])
	require.NotNil(t, got[0].User)
	assert.Equal(t, true, got[0].User.Record.Data["finished"])
	assert.False(t, got[0].IsDeleted())

	assert.Nil(t, got[1].User)
	assert.True(t, got[1].IsDeleted())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_MalformedJSON(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	rows := sqlmock.NewRows(joinedCols).
		AddRow("b1", []byte(`{not json`), []byte(`{}`), time.Now(), time.Now(), nil, nil, nil, nil)
	mock.ExpectQuery(`FROM series p`).WillReturnRows(rows)

	_, err := repo.List(context.Background(), models.Series, ListQuery{UserID: "u1", Limit: 10})
	assert.ErrorIs(t, err, common.ErrMalformedRow)
}

func TestList_QueryError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM books p`).WillReturnError(errors.New("boom"))

	_, err := repo.List(context.Background(), models.Books, ListQuery{UserID: "u1"})
	assert.ErrorContains(t, err, "failed to select books: boom")
}

func TestCount(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT count\(\*\)\s+FROM series p\s+LEFT JOIN user_series u .* WHERE p\.deleted_at IS NULL AND p\.data->>'name' = \$2`).
		WithArgs("u1", "Akira").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := repo.Count(context.Background(), models.Series, ListQuery{UserID: "u1", Filters: map[string]string{"name": "Akira"}})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestGet(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	now := time.Now()
	mock.ExpectQuery(`FROM books p\s+LEFT JOIN user_books u .*WHERE p\.id = \$2`).
		WithArgs("u1", "b1").
		WillReturnRows(sqlmock.NewRows(joinedCols).
			AddRow("b1", []byte(`{"file":"books/b1.cbz"}`), []byte(`{}`), now, now, nil, nil, nil, nil))
	mock.ExpectQuery(`FROM books p`).
		WithArgs("u1", "missing").
		WillReturnError(sql.ErrNoRows)

	row, err := repo.Get(context.Background(), models.Books, "u1", "b1")
	require.NoError(t, err)
	assert.Equal(t, "books/b1.cbz", row.Record.Data["file"])

	_, err = repo.Get(context.Background(), models.Books, "u1", "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetForUpdate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	now := time.Now()
	mock.ExpectQuery(`SELECT id, data, update_map, created_at, updated_at, deleted_at\s+FROM books\s+WHERE id = \$1\s+FOR UPDATE`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "data", "update_map", "created_at", "updated_at", "deleted_at"}).
			AddRow("b1", []byte(`{"title":"A"}`), []byte(`null`), now, now, now))
	mock.ExpectQuery(`FROM books`).WithArgs("b2").WillReturnError(sql.ErrNoRows)

	row, err := repo.GetForUpdate(context.Background(), models.Books, "b1")
	require.NoError(t, err)
	assert.Equal(t, "A", row.Record.Data["title"])
	assert.NotNil(t, row.Record.UpdateMap, "null update map decodes to an empty map")
	assert.True(t, row.IsDeleted())

	_, err = repo.GetForUpdate(context.Background(), models.Books, "b2")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSave(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)
	mock.ExpectQuery(`INSERT INTO books \(id, data, update_map\)\s+VALUES \(\$1, \$2::jsonb, \$3::jsonb\)\s+ON CONFLICT \(id\)\s+DO UPDATE SET .* RETURNING created_at, updated_at`).
		WithArgs("b1", `{"title":"A"}`, `{"title":"t1"}`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, updated))

	row := &models.Row{ID: "b1", Record: models.Record{Data: map[string]any{"title": "A"}, UpdateMap: map[string]string{"title": "t1"}}}
	require.NoError(t, repo.Save(context.Background(), models.Books, row))
	assert.Equal(t, created, row.CreatedAt)
	assert.Equal(t, updated, row.UpdatedAt)
}

func TestSave_CheckViolation(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT INTO books`).
		WillReturnError(&pgconn.PgError{Code: "23514", ConstraintName: "books_rating_check"})

	err := repo.Save(context.Background(), models.Books, &models.Row{ID: "b1", Record: models.NewRecord()})

	var fe *common.FieldError
	require.True(t, errors.As(err, &fe), "want field error, got %v", err)
	assert.Equal(t, "rating", fe.Field)
}

func TestSave_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`INSERT INTO series`).WillReturnError(errors.New("down"))

	err := repo.Save(context.Background(), models.Series, &models.Row{ID: "s1"})
	assert.ErrorContains(t, err, "db error: down")
	assert.NotErrorIs(t, err, common.ErrValidation)
}

func TestGetUserForUpdate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	now := time.Now()
	mock.ExpectQuery(`SELECT data, update_map, updated_at\s+FROM user_books\s+WHERE user_id = \$1 AND entity_id = \$2\s+FOR UPDATE`).
		WithArgs("u1", "b1").
		WillReturnRows(sqlmock.NewRows([]string{"data", "update_map", "updated_at"}).
			AddRow([]byte(`{"current_page":3}`), []byte(`{"current_page":"t1"}`), now))
	mock.ExpectQuery(`FROM user_books`).WithArgs("u1", "b2").WillReturnError(sql.ErrNoRows)

	rec, err := repo.GetUserForUpdate(context.Background(), models.Books, "u1", "b1")
	require.NoError(t, err)
	assert.Equal(t, float64(3), rec.Record.Data["current_page"])
	assert.Equal(t, "t1", rec.Record.UpdateMap["current_page"])

	_, err = repo.GetUserForUpdate(context.Background(), models.Books, "u1", "b2")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSaveUser(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	updated := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO user_series \(user_id, entity_id, data, update_map\)\s+VALUES \(\$1, \$2, \$3::jsonb, \$4::jsonb\)\s+ON CONFLICT \(user_id, entity_id\)`).
		WithArgs("u1", "s1", `{"reading":true}`, `{}`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(updated))
	mock.ExpectQuery(`INSERT INTO user_series`).
		WillReturnError(&pgconn.PgError{Code: "23514", ConstraintName: "user_series_rating_check"})

	rec := &models.UserRecord{Record: models.Record{Data: map[string]any{"reading": true}}}
	require.NoError(t, repo.SaveUser(context.Background(), models.Series, "u1", "s1", rec))
	assert.Equal(t, updated, rec.UpdatedAt)

	err := repo.SaveUser(context.Background(), models.Series, "u1", "s1", rec)
	var fe *common.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "user.rating", fe.Field)
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	q := `UPDATE books\s+SET deleted_at = now\(\), updated_at = now\(\)\s+WHERE id = \$1 AND deleted_at IS NULL`
	mock.ExpectExec(q).WithArgs("b1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("b1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WithArgs("b2").WillReturnError(errors.New("down"))

	require.NoError(t, repo.Delete(context.Background(), models.Books, "b1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), models.Books, "b1"), common.ErrNotFound)
	assert.ErrorContains(t, repo.Delete(context.Background(), models.Books, "b2"), "db error: down")
}
