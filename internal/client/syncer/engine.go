package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/dmitrijs2005/comicsync/internal/client/cachebus"
	"github.com/dmitrijs2005/comicsync/internal/client/client"
	"github.com/dmitrijs2005/comicsync/internal/client/models"
	"github.com/dmitrijs2005/comicsync/internal/client/store"
	"github.com/dmitrijs2005/comicsync/internal/common"
	"github.com/dmitrijs2005/comicsync/internal/logging"
)

type Options struct {
	PageSize    int
	Concurrency int
	Retry       RetryConfig
	Notifier    Notifier
	Logger      logging.Logger
	Now         func() time.Time
}

type Engine struct {
	replica   Replica
	remote    client.API
	bus       *cachebus.Bus
	puller    *Puller
	persister *Persister
	retrier   *BackoffRetrier
	log       logging.Logger

	mu     sync.Mutex
	read   map[string]ListSpec
	pulled map[string]bool
}

func NewEngine(replica Replica, remote client.API, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	bus := cachebus.New()

	e := &Engine{
		replica:   replica,
		remote:    remote,
		bus:       bus,
		puller:    NewPuller(replica, remote, bus, opts.PageSize, opts.Now, log),
		persister: NewPersister(replica, remote, bus, opts.Concurrency, log),
		log:       log.With("module", "engine"),
		read:      map[string]ListSpec{},
		pulled:    map[string]bool{},
	}
	e.retrier = NewBackoffRetrier(e.persister.Persist, opts.Retry, log)
	e.persister.SetRetrier(e.retrier)
	if opts.Notifier != nil {
		e.persister.SetNotifier(opts.Notifier)
	}
	return e
}

// Subscribe returns a subscription to cache update events.
func (e *Engine) Subscribe(buffer int) *cachebus.Subscription {
	return e.bus.Subscribe(buffer)
}

func (e *Engine) Pull(ctx context.Context, spec ListSpec) (PullResult, error) {
	e.remember(spec)
	res, err := e.puller.Pull(ctx, spec)
	if err == nil {
		e.mu.Lock()
		e.pulled[spec.Name] = true
		e.mu.Unlock()
	}
	return res, err
}

// PullOnFirstRead pulls spec unless it was already pulled successfully in
// this session. It reports whether a pull ran.
func (e *Engine) PullOnFirstRead(ctx context.Context, spec ListSpec) (bool, error) {
	e.remember(spec)
	e.mu.Lock()
	done := e.pulled[spec.Name]
	e.mu.Unlock()
	if done {
		return false, nil
	}
	_, err := e.Pull(ctx, spec)
	return true, err
}

func (e *Engine) remember(spec ListSpec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.read[spec.Name] = spec
}

// List returns the local rows of spec, pulling it first on first read. A
// failed pull is logged and the local rows are still returned.
func (e *Engine) List(ctx context.Context, spec ListSpec, limit, offset int) ([]*models.Entity, error) {
	if _, err := e.PullOnFirstRead(ctx, spec); err != nil {
		e.log.Warn(ctx, "first-read pull failed, serving local rows", "list", spec.Name, "error", err)
	}
	return e.replica.List(ctx, spec.Kind, store.ListQuery{Filters: spec.Filters, Limit: limit, Offset: offset})
}

// Get returns the local row.
func (e *Engine) Get(ctx context.Context, kind models.Kind, id string) (*models.Entity, error) {
	return e.replica.Get(ctx, kind, id)
}

// Update applies a user edit locally. Nothing is sent until Persist.
func (e *Engine) Update(ctx context.Context, kind models.Kind, id string, changes models.Fields) (*models.Entity, error) {
	out, err := e.replica.Update(ctx, kind, id, changes)
	if err != nil {
		return nil, err
	}
	e.bus.Publish(cachebus.Update(true))
	return out, nil
}

func (e *Engine) Persist(ctx context.Context, trigger Trigger) error {
	return e.persister.Persist(ctx, trigger)
}

// Delete removes the row on the server, then locally. When the server
// call fails the local row is kept. A row the server no longer has is
// removed locally.
func (e *Engine) Delete(ctx context.Context, kind models.Kind, id string) error {
	if id == "" {
		return common.ErrMissingID
	}
	if err := e.remote.Delete(ctx, kind, id); err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("delete %s[%s]: %w", kind, id, err)
	}
	if err := e.replica.Delete(ctx, kind, id); err != nil {
		return err
	}
	e.bus.Publish(cachebus.Update(true))
	return nil
}

// OnVisible re-pulls every list read in this session. Failures of one list
// do not stop the others.
func (e *Engine) OnVisible(ctx context.Context) error {
	e.mu.Lock()
	specs := make([]ListSpec, 0, len(e.read))
	for _, s := range e.read {
		specs = append(specs, s)
	}
	e.mu.Unlock()
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })

	var errs error
	for _, s := range specs {
		if _, err := e.Pull(ctx, s); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Lists returns the names of lists read in this session.
func (e *Engine) Lists() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.read))
	for name := range e.read {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Reset wipes the replica and forgets which lists were read.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.replica.Reset(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	e.read = map[string]ListSpec{}
	e.pulled = map[string]bool{}
	e.mu.Unlock()
	e.bus.Publish(cachebus.Update(true))
	return nil
}

func (e *Engine) RetryPending() bool {
	return e.retrier.Pending()
}

// Close stops pending retries and ends every subscription. The replica and
// the remote are owned by the caller.
func (e *Engine) Close() error {
	err := e.retrier.Close()
	e.bus.Close()
	return err
}
