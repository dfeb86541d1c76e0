package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/comicsync/internal/client/cachebus"
	"github.com/dmitrijs2005/comicsync/internal/client/models"
	"github.com/dmitrijs2005/comicsync/internal/client/store"
	"github.com/dmitrijs2005/comicsync/internal/client/syncer"
)

// listView is the list currently on screen. It follows cache updates
// through a Reconciler so rows never jump under the user.
type listView struct {
	spec   syncer.ListSpec
	rec    *cachebus.Reconciler[[]*models.Entity]
	cancel context.CancelFunc
	done   chan struct{}
}

func entityKeys(rows []*models.Entity) []string {
	keys := make([]string, len(rows))
	for i, e := range rows {
		keys[i] = e.ID
	}
	return keys
}

func (v *listView) hasPending() bool {
	_, ok := v.rec.Pending()
	return ok
}

func (v *listView) stop() {
	v.cancel()
	<-v.done
}

// openView replaces the current view with spec showing rows.
func (a *App) openView(ctx context.Context, spec syncer.ListSpec, rows []*models.Entity) *listView {
	a.closeView()

	ctx, cancel := context.WithCancel(ctx)
	v := &listView{
		spec:   spec,
		rec:    cachebus.NewReconciler(rows, entityKeys, a.config.AutoApplyAfter),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	sub := a.engine.Subscribe(1)
	load := func(ctx context.Context) ([]*models.Entity, error) {
		return a.store.List(ctx, spec.Kind, store.ListQuery{Filters: spec.Filters})
	}
	go func() {
		defer close(v.done)
		if err := cachebus.Watch(ctx, sub, v.rec, load, a.log); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn(ctx, "list view stopped", "list", spec.Name, "error", err)
		}
	}()

	a.mu.Lock()
	a.view = v
	a.mu.Unlock()
	return v
}

func (a *App) currentView() *listView {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

func (a *App) closeView() {
	a.mu.Lock()
	v := a.view
	a.view = nil
	a.mu.Unlock()
	if v != nil {
		v.stop()
	}
}
