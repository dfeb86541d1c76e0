package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/client/client"
	"github.com/dmitrijs2005/comicsync/internal/client/clock"
	"github.com/dmitrijs2005/comicsync/internal/client/models"
	"github.com/dmitrijs2005/comicsync/internal/common"
)

// fakeRemote is an in-memory library server with per-field last-writer-wins
// merging.
type fakeRemote struct {
	mu   sync.Mutex
	rows map[models.Kind]map[string]*models.Entity
	tick time.Time

	listErr       error
	updateErr     error
	updateUserErr error
	deleteErr     error
	failIDs       map[string]error
	delay         time.Duration

	listCalls   []client.ListParams
	// afterList runs, unlocked, after each List call with the call count.
	afterList   func(calls int)
	updateCalls int
	userCalls   int
	inFlight    int
	maxInFlight int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows: map[models.Kind]map[string]*models.Entity{
			models.KindBooks:  {},
			models.KindSeries: {},
		},
		tick:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		failIDs: map[string]error{},
	}
}

func serverToken(n int) clock.Token {
	return clock.Token(fmt.Sprintf("%015d-%s-%06d", 1, "00000000-0000-0000-0000-000000000000", n))
}

func (f *fakeRemote) nextTime() time.Time {
	f.tick = f.tick.Add(time.Millisecond)
	return f.tick
}

// seed stores a server row with every field stamped by a server token.
func (f *fakeRemote) seed(kind models.Kind, id string, fields, user models.Fields) *models.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, _ := models.Lookup(kind)
	e := s.Empty(id)
	for k, v := range fields {
		e.Fields[k] = v
		e.UpdateMap[k] = serverToken(0)
	}
	for k, v := range user {
		e.Sub.Fields[k] = v
		e.Sub.UpdateMap[k] = serverToken(0)
	}
	now := f.nextTime()
	e.CreatedAt, e.UpdatedAt = now, now
	f.rows[kind][id] = e
	return e.Clone()
}

func (f *fakeRemote) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tick
}

// edit changes one server field as another client would.
func (f *fakeRemote) edit(kind models.Kind, id, field string, v any, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.rows[kind][id]
	e.Fields[field] = v
	e.UpdateMap[field] = serverToken(n)
	e.UpdatedAt = f.nextTime()
}

func (f *fakeRemote) tombstone(kind models.Kind, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.rows[kind][id]; ok {
		now := f.nextTime()
		e.DeletedAt = &now
		e.UpdatedAt = now
	}
}

func (f *fakeRemote) row(kind models.Kind, id string) *models.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[kind][id].Clone()
}

func (f *fakeRemote) setErr(target *error, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*target = err
}

func (f *fakeRemote) enter() func() {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	d := f.delay
	f.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	return func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}
}

// List orders and pages rows the way the server does: by (UpdatedAt, ID),
// live rows only without a watermark, keyset filtered with a cursor.
func (f *fakeRemote) List(_ context.Context, kind models.Kind, p client.ListParams) (*client.ListPage, error) {
	page, calls, hook, err := f.list(kind, p)
	if hook != nil {
		hook(calls)
	}
	return page, err
}

func (f *fakeRemote) list(kind models.Kind, p client.ListParams) (*client.ListPage, int, func(int), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls = append(f.listCalls, p)
	calls := len(f.listCalls)
	if f.listErr != nil {
		return nil, calls, f.afterList, f.listErr
	}

	s, _ := models.Lookup(kind)
	var all []*models.Entity
	for _, e := range f.rows[kind] {
		switch {
		case p.UpdatedAfter.IsZero():
			if e.IsTombstone() {
				continue
			}
		case p.AfterID == "":
			if !e.UpdatedAt.After(p.UpdatedAfter) {
				continue
			}
		default:
			if e.UpdatedAt.Before(p.UpdatedAfter) || e.UpdatedAt.Equal(p.UpdatedAfter) && e.ID <= p.AfterID {
				continue
			}
		}
		ok := true
		for path, want := range p.Filters {
			v, has := e.Value(s, path)
			if !has || fmt.Sprint(v) != want {
				ok = false
			}
		}
		if ok {
			all = append(all, e.Clone())
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.Before(all[j].UpdatedAt)
		}
		return all[i].ID < all[j].ID
	})

	page := &client.ListPage{Total: len(all), Page: max(p.Page, 1), PageSize: p.PageSize}
	from := (page.Page - 1) * p.PageSize
	if from < len(all) {
		to := min(from+p.PageSize, len(all))
		page.Data = all[from:to]
		last := page.Data[len(page.Data)-1]
		page.Next = &client.Cursor{UpdatedAt: last.UpdatedAt, ID: last.ID}
	}
	return page, calls, f.afterList, nil
}

func mergeLWW(dst *models.Record, src models.Record) {
	for field, tok := range src.UpdateMap {
		if cur, ok := dst.UpdateMap[field]; ok && !tok.After(cur) {
			continue
		}
		dst.Fields[field] = models.Normalize(src.Fields[field])
		dst.UpdateMap[field] = tok
	}
}

func (f *fakeRemote) Update(_ context.Context, kind models.Kind, id string, rec models.Record) (*models.Entity, error) {
	defer f.enter()()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if err := f.failIDs[id]; err != nil {
		return nil, err
	}
	if f.updateErr != nil {
		return nil, f.updateErr
	}

	e, ok := f.rows[kind][id]
	if !ok {
		s, _ := models.Lookup(kind)
		e = s.Empty(id)
		e.CreatedAt = f.tick
		f.rows[kind][id] = e
	}
	if !e.IsTombstone() {
		mergeLWW(&e.Record, rec)
		e.UpdatedAt = f.nextTime()
	}
	out := e.Clone()
	out.Sub = nil
	return out, nil
}

func (f *fakeRemote) UpdateUser(_ context.Context, kind models.Kind, id string, rec models.Record) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	if f.updateUserErr != nil {
		return nil, f.updateUserErr
	}
	e, ok := f.rows[kind][id]
	if !ok {
		return nil, common.ErrNotFound
	}
	if e.Sub == nil {
		e.Sub = models.NewRecord()
	}
	mergeLWW(e.Sub, rec)
	e.UpdatedAt = f.nextTime()
	return e.Sub.Clone(), nil
}

func (f *fakeRemote) Delete(_ context.Context, kind models.Kind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	e, ok := f.rows[kind][id]
	if !ok || e.IsTombstone() {
		return common.ErrNotFound
	}
	now := f.nextTime()
	e.DeletedAt = &now
	e.UpdatedAt = now
	return nil
}

func (f *fakeRemote) Ping(context.Context) error                     { return nil }
func (f *fakeRemote) Register(context.Context, string, string) error { return nil }
func (f *fakeRemote) Login(context.Context, string, string) error    { return nil }
func (f *fakeRemote) Close() error                                   { return nil }

func (f *fakeRemote) DownloadURL(_ context.Context, bookID string) (string, error) {
	return "https://files.example/" + bookID, nil
}

var _ client.API = (*fakeRemote)(nil)
