package cachebus

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/logging"
)

// Outcome is the result of offering a fresher value to a Reconciler.
type Outcome int

const (
	// OutcomeSwapped: identity keys and order were unchanged, the value was
	// replaced silently.
	OutcomeSwapped Outcome = iota + 1
	// OutcomePrompt: the displayed value is held and the fresher one waits
	// for Accept or Dismiss.
	OutcomePrompt
)

// Reconciler holds what a consumer displays and applies the swap policy.
// It is safe for concurrent use.
type Reconciler[T any] struct {
	mu        sync.Mutex
	keys      func(T) []string
	autoApply time.Duration
	current   T
	pending   *T
	timer     *time.Timer
	gen       uint64
	onChange  func(T)
}

// NewReconciler starts from initial. keys returns the ordered identity keys
// of a value. Non-interactive prompts are applied after autoApplyAfter when
// it is positive.
func NewReconciler[T any](initial T, keys func(T) []string, autoApplyAfter time.Duration) *Reconciler[T] {
	return &Reconciler[T]{current: initial, keys: keys, autoApply: autoApplyAfter}
}

// OnChange registers fn to run, outside the lock, whenever the displayed
// value changes.
func (r *Reconciler[T]) OnChange(fn func(T)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

func (r *Reconciler[T]) Current() T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Pending returns the value waiting for a decision.
func (r *Reconciler[T]) Pending() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		var zero T
		return zero, false
	}
	return *r.pending, true
}

// Offer proposes next as the displayed value.
func (r *Reconciler[T]) Offer(next T, interactive bool) Outcome {
	r.mu.Lock()
	if slices.Equal(r.keys(r.current), r.keys(next)) {
		r.current = next
		r.clearPendingLocked()
		fn := r.onChange
		r.mu.Unlock()
		if fn != nil {
			fn(next)
		}
		return OutcomeSwapped
	}

	r.clearPendingLocked()
	r.pending = &next
	if !interactive && r.autoApply > 0 {
		gen := r.gen
		r.timer = time.AfterFunc(r.autoApply, func() { r.apply(gen) })
	}
	r.mu.Unlock()
	return OutcomePrompt
}

// Accept applies the pending value. It reports false when nothing was
// pending.
func (r *Reconciler[T]) Accept() bool {
	r.mu.Lock()
	return r.applyLocked()
}

// Dismiss drops the pending value and keeps what is displayed.
func (r *Reconciler[T]) Dismiss() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearPendingLocked()
}

func (r *Reconciler[T]) apply(gen uint64) {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	r.applyLocked()
}

// applyLocked is entered with r.mu held and releases it.
func (r *Reconciler[T]) applyLocked() bool {
	if r.pending == nil {
		r.mu.Unlock()
		return false
	}
	next := *r.pending
	r.current = next
	r.clearPendingLocked()
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn(next)
	}
	return true
}

func (r *Reconciler[T]) clearPendingLocked() {
	r.pending = nil
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Watch reloads the value on every update event of sub and offers it to r,
// until ctx is done or the subscription closes. Load failures are logged and
// the displayed value is kept.
func Watch[T any](ctx context.Context, sub *Subscription, r *Reconciler[T], load func(context.Context) (T, error), log logging.Logger) error {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if ev.Kind != KindUpdate {
				continue
			}
			v, err := load(ctx)
			if err != nil {
				log.Warn(ctx, "reload after update failed", "error", err)
				continue
			}
			r.Offer(v, ev.Interactive)
		}
	}
}
