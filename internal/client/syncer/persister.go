package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/comicsync/internal/client/cachebus"
	"github.com/dmitrijs2005/comicsync/internal/client/client"
	"github.com/dmitrijs2005/comicsync/internal/client/models"
	"github.com/dmitrijs2005/comicsync/internal/client/store"
	"github.com/dmitrijs2005/comicsync/internal/common"
	"github.com/dmitrijs2005/comicsync/internal/logging"
)

const defaultConcurrency = 4

// Trigger says what started a push cycle.
type Trigger int

const (
	TriggerUser Trigger = iota
	TriggerBackground
	TriggerRetry
)

func (t Trigger) String() string {
	switch t {
	case TriggerUser:
		return "user"
	case TriggerBackground:
		return "background"
	case TriggerRetry:
		return "retry"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

// Retrier schedules a later push cycle.
type Retrier interface {
	Register(ctx context.Context) error
}

// Notifier tells the user something they should act on.
type Notifier interface {
	Notify(ctx context.Context, msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg string)

func (f NotifierFunc) Notify(ctx context.Context, msg string) { f(ctx, msg) }

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Log logging.Logger
}

func (n LogNotifier) Notify(ctx context.Context, msg string) {
	n.Log.Warn(ctx, msg)
}

// Persister pushes dirty rows. Cycles never overlap.
type Persister struct {
	mu sync.Mutex

	replica     Replica
	remote      client.API
	bus         *cachebus.Bus
	concurrency int
	log         logging.Logger

	hooks    sync.RWMutex
	retrier  Retrier
	notifier Notifier
}

func NewPersister(replica Replica, remote client.API, bus *cachebus.Bus, concurrency int, log logging.Logger) *Persister {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	log = log.With("module", "persister")
	return &Persister{
		replica:     replica,
		remote:      remote,
		bus:         bus,
		concurrency: concurrency,
		log:         log,
		notifier:    LogNotifier{Log: log},
	}
}

func (p *Persister) SetRetrier(r Retrier) {
	p.hooks.Lock()
	defer p.hooks.Unlock()
	p.retrier = r
}

func (p *Persister) SetNotifier(n Notifier) {
	p.hooks.Lock()
	defer p.hooks.Unlock()
	p.notifier = n
}

// Persist runs one push cycle over every kind. Each dirty row is pushed in
// its own goroutine and each level of a row is sent and reconciled on its
// own, so a failure affects only the level it happened on. The returned
// error combines every failure of the cycle; storage failures are among
// them. When a failure was a network one and the cycle was not itself a
// retry, a retry is registered, and the user is told if that fails.
func (p *Persister) Persist(ctx context.Context, trigger Trigger) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.bus.Publish(cachebus.Update(trigger == TriggerUser))

	var (
		errMu  sync.Mutex
		errs   error
		pushed int
	)
	record := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		errs = multierr.Append(errs, err)
	}

	for _, kind := range models.Kinds() {
		rows, err := p.replica.Dirty(ctx, kind)
		if err != nil {
			record(fmt.Errorf("persist %s: %w", kind, err))
			continue
		}

		var g errgroup.Group
		g.SetLimit(p.concurrency)
		for _, row := range rows {
			pushed++
			g.Go(func() error {
				record(p.pushRow(ctx, kind, row))
				return nil
			})
		}
		_ = g.Wait()
	}

	p.bus.Publish(cachebus.Update(false))

	if errs == nil {
		p.log.Info(ctx, "persist finished", "trigger", trigger, "rows", pushed)
		return nil
	}
	p.log.Warn(ctx, "persist finished with errors", "trigger", trigger, "rows", pushed,
		"failures", len(multierr.Errors(errs)), "error", errs)

	if trigger != TriggerRetry && HasRetriable(errs) {
		p.scheduleRetry(ctx)
	}
	return errs
}

func (p *Persister) scheduleRetry(ctx context.Context) {
	p.hooks.RLock()
	r, n := p.retrier, p.notifier
	p.hooks.RUnlock()

	if r == nil {
		return
	}
	if err := r.Register(ctx); err != nil {
		p.log.Warn(ctx, "retry registration failed", "error", err)
		if n != nil {
			n.Notify(ctx, "Some changes could not be sent to the server. They are kept locally; run persist when back online.")
		}
	}
}

func (p *Persister) pushRow(ctx context.Context, kind models.Kind, row *models.Entity) error {
	var errs error
	log := p.log.With("kind", kind, "id", row.ID)

	if row.Dirty.Has(models.DirtyEntity) {
		sent := row.Record.UpdateMap.Clone()
		canonical, err := p.remote.Update(ctx, kind, row.ID, row.Record)
		switch {
		case err != nil:
			log.Debug(ctx, "entity push failed", "error", err)
			errs = multierr.Append(errs, fmt.Errorf("push %s[%s]: %w", kind, row.ID, err))
		case canonical.IsTombstone():
			if err := p.replica.Delete(ctx, kind, row.ID); err != nil {
				return multierr.Append(errs, err)
			}
			return errs
		default:
			_, err := p.replica.Reconcile(ctx, kind, row.ID, store.Ack{
				Level:     models.DirtyEntity,
				Sent:      sent,
				Server:    &canonical.Record,
				CreatedAt: canonical.CreatedAt,
				UpdatedAt: canonical.UpdatedAt,
			})
			if err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}

	if row.Dirty.Has(models.DirtySub) && row.Sub != nil {
		sent := row.Sub.UpdateMap.Clone()
		canonical, err := p.remote.UpdateUser(ctx, kind, row.ID, *row.Sub)
		if errors.Is(err, common.ErrNotFound) && !row.Dirty.Has(models.DirtyEntity) {
			// The row is gone remotely and nothing local would recreate it.
			log.Info(ctx, "row missing remotely, dropping local copy")
			if err := p.replica.Delete(ctx, kind, row.ID); err != nil {
				return multierr.Append(errs, err)
			}
			return errs
		}
		if err != nil {
			log.Debug(ctx, "sub push failed", "error", err)
			return multierr.Append(errs, fmt.Errorf("push %s[%s].user: %w", kind, row.ID, err))
		}
		_, err = p.replica.Reconcile(ctx, kind, row.ID, store.Ack{
			Level:  models.DirtySub,
			Sent:   sent,
			Server: canonical,
		})
		if err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// HasRetriable reports whether any error combined in err is a network one.
func HasRetriable(err error) bool {
	for _, e := range multierr.Errors(err) {
		if common.IsRetriable(e) {
			return true
		}
	}
	return false
}

// IsValidation reports whether any error combined in err was a rejected
// field.
func IsValidation(err error) bool {
	for _, e := range multierr.Errors(err) {
		if errors.Is(e, common.ErrValidation) {
			return true
		}
	}
	return false
}
