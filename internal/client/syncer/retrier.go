package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/comicsync/internal/common"
	"github.com/dmitrijs2005/comicsync/internal/logging"
)

// PersistFunc runs one push cycle.
type PersistFunc func(ctx context.Context, trigger Trigger) error

type RetryConfig struct {
	Base     time.Duration
	Max      time.Duration
	Attempts uint64
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Base <= 0 {
		c.Base = 2 * time.Second
	}
	if c.Max <= 0 {
		c.Max = time.Minute
	}
	if c.Attempts == 0 {
		c.Attempts = 5
	}
	return c
}

// BackoffRetrier re-runs a push cycle with exponential backoff while its
// failures are network ones. At most one retry sequence runs at a time;
// registering while one is pending is a no-op.
type BackoffRetrier struct {
	persist PersistFunc
	cfg     RetryConfig
	log     logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending bool
	closed  bool
}

func NewBackoffRetrier(persist PersistFunc, cfg RetryConfig, log logging.Logger) *BackoffRetrier {
	ctx, cancel := context.WithCancel(context.Background())
	return &BackoffRetrier{
		persist: persist,
		cfg:     cfg.withDefaults(),
		log:     log.With("module", "retrier"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register schedules a retry sequence. It fails with
// common.ErrRetryUnavailable once the retrier is closed.
func (r *BackoffRetrier) Register(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return common.ErrRetryUnavailable
	}
	if r.pending {
		return nil
	}
	r.pending = true
	r.wg.Add(1)
	go r.run()
	return nil
}

func (r *BackoffRetrier) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

func (r *BackoffRetrier) run() {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		r.pending = false
		r.mu.Unlock()
	}()

	b := retry.NewExponential(r.cfg.Base)
	b = retry.WithCappedDuration(r.cfg.Max, b)
	b = retry.WithMaxRetries(r.cfg.Attempts, b)

	t := time.NewTimer(r.cfg.Base)
	defer t.Stop()
	select {
	case <-r.ctx.Done():
		return
	case <-t.C:
	}

	attempt := 0
	err := retry.Do(r.ctx, b, func(ctx context.Context) error {
		attempt++
		err := r.persist(ctx, TriggerRetry)
		if HasRetriable(err) {
			r.log.Debug(ctx, "retry attempt failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	switch {
	case err == nil:
		r.log.Info(r.ctx, "retry succeeded", "attempts", attempt)
	case errors.Is(err, context.Canceled):
	default:
		r.log.Warn(r.ctx, "retry gave up", "attempts", attempt, "error", err)
	}
}

// Close cancels a pending sequence and waits for it to stop.
func (r *BackoffRetrier) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	return nil
}
