package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dmitrijs2005/comicsync/internal/common"
	"github.com/dmitrijs2005/comicsync/internal/dbx"
	"github.com/dmitrijs2005/comicsync/internal/server/models"
	"github.com/dmitrijs2005/comicsync/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/comicsync/internal/server/repositories/rows"
	"github.com/dmitrijs2005/comicsync/internal/server/repositories/users"
)

var errBoom = errors.New("boom")

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

type fakeUsersRepo struct {
	created   *models.User
	createErr error

	getOut *models.User
	getErr error
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = u
	out := *u
	out.ID = "u-" + u.UserName
	return &out, nil
}

func (f *fakeUsersRepo) GetUserByLogin(_ context.Context, _ string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

type fakeRefreshRepo struct {
	findOut *models.RefreshToken
	findErr error

	deleted []string
	delErr  error

	createdHashes []string
	createErr     error

	swept int64
}

func (f *fakeRefreshRepo) Create(_ context.Context, _ string, tokenHash string, _ time.Duration) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.createdHashes = append(f.createdHashes, tokenHash)
	return nil
}

func (f *fakeRefreshRepo) Find(_ context.Context, _ string) (*models.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.findOut, nil
}

func (f *fakeRefreshRepo) Delete(_ context.Context, tokenHash string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.deleted = append(f.deleted, tokenHash)
	return nil
}

func (f *fakeRefreshRepo) DeleteExpired(context.Context, time.Time) (int64, error) {
	return f.swept, nil
}

// memRows keeps rows in memory. Saved rows are stamped with a clock that
// advances one second per write.
type memRows struct {
	now     time.Time
	primary map[string]*models.Row
	user    map[string]*models.UserRecord

	saves     int
	userSaves int
	listed    rows.ListQuery
	saveErr   error
}

func newMemRows() *memRows {
	return &memRows{
		now:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		primary: map[string]*models.Row{},
		user:    map[string]*models.UserRecord{},
	}
}

func (m *memRows) tick() time.Time {
	m.now = m.now.Add(time.Second)
	return m.now
}

func rowKey(kind *models.Kind, id string) string { return kind.Name + "/" + id }

func userKey(kind *models.Kind, userID, id string) string {
	return kind.Name + "/" + userID + "/" + id
}

func (m *memRows) put(kind *models.Kind, row *models.Row) {
	m.primary[rowKey(kind, row.ID)] = row
}

func (m *memRows) List(_ context.Context, _ *models.Kind, q rows.ListQuery) ([]*models.Row, error) {
	m.listed = q
	out := make([]*models.Row, 0, len(m.primary))
	for _, r := range m.primary {
		out = append(out, r)
	}
	return out, nil
}

func (m *memRows) Count(_ context.Context, _ *models.Kind, _ rows.ListQuery) (int, error) {
	return len(m.primary), nil
}

func (m *memRows) Get(_ context.Context, kind *models.Kind, userID, id string) (*models.Row, error) {
	r, ok := m.primary[rowKey(kind, id)]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := *r
	out.Record = r.Record.Clone()
	if u, ok := m.user[userKey(kind, userID, id)]; ok {
		uc := *u
		out.User = &uc
	}
	return &out, nil
}

func (m *memRows) GetForUpdate(_ context.Context, kind *models.Kind, id string) (*models.Row, error) {
	r, ok := m.primary[rowKey(kind, id)]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := *r
	out.Record = r.Record.Clone()
	return &out, nil
}

func (m *memRows) Save(_ context.Context, kind *models.Kind, row *models.Row) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	now := m.tick()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	stored := *row
	stored.Record = row.Record.Clone()
	m.put(kind, &stored)
	return nil
}

func (m *memRows) GetUserForUpdate(_ context.Context, kind *models.Kind, userID, id string) (*models.UserRecord, error) {
	u, ok := m.user[userKey(kind, userID, id)]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &models.UserRecord{Record: u.Record.Clone(), UpdatedAt: u.UpdatedAt}, nil
}

func (m *memRows) SaveUser(_ context.Context, kind *models.Kind, userID, id string, rec *models.UserRecord) error {
	m.userSaves++
	rec.UpdatedAt = m.tick()
	m.user[userKey(kind, userID, id)] = &models.UserRecord{Record: rec.Record.Clone(), UpdatedAt: rec.UpdatedAt}
	return nil
}

func (m *memRows) Delete(_ context.Context, kind *models.Kind, id string) error {
	r, ok := m.primary[rowKey(kind, id)]
	if !ok || r.IsDeleted() {
		return common.ErrNotFound
	}
	now := m.tick()
	r.DeletedAt = &now
	r.UpdatedAt = now
	return nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
	w *memRows
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository             { return m.u }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return m.r
}
func (m *fakeRepoManager) Rows(dbx.DBTX) rows.Repository { return m.w }
