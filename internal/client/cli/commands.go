package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dmitrijs2005/comicsync/internal/client/models"
	"github.com/dmitrijs2005/comicsync/internal/client/syncer"
	"github.com/dmitrijs2005/comicsync/internal/common"
	"github.com/dmitrijs2005/comicsync/internal/filex"
	"github.com/dmitrijs2005/comicsync/internal/netx"
)

type usageError string

func (u usageError) Error() string { return "usage: " + string(u) }

func parseKind(arg string) (*models.Schema, error) {
	return models.Lookup(models.Kind(arg))
}

// parseListSpec turns "books series=s1" into a named list. Lists without
// filters are "<kind>:all"; filtered ones are named by their sorted filters.
func parseListSpec(args []string) (syncer.ListSpec, error) {
	if len(args) == 0 {
		return syncer.ListSpec{}, usageError("list <books|series> [path=value ...]")
	}
	schema, err := parseKind(args[0])
	if err != nil {
		return syncer.ListSpec{}, err
	}
	if len(args) == 1 {
		return syncer.AllOf(schema.Kind), nil
	}

	filters := make(map[string]string, len(args)-1)
	parts := make([]string, 0, len(args)-1)
	for _, arg := range args[1:] {
		path, value, ok := strings.Cut(arg, "=")
		if !ok || path == "" {
			return syncer.ListSpec{}, common.NewFieldError(arg, "expected path=value")
		}
		if !schema.CanFilter(path) {
			return syncer.ListSpec{}, common.NewFieldError(path, "not filterable")
		}
		filters[path] = value
	}
	for path, value := range filters {
		parts = append(parts, path+"="+value)
	}
	sort.Strings(parts)
	return syncer.ListSpec{
		Name:    string(schema.Kind) + ":" + strings.Join(parts, ","),
		Kind:    schema.Kind,
		Filters: filters,
	}, nil
}

func label(e *models.Entity) string {
	for _, f := range []string{"title", "name"} {
		if v, ok := e.Fields[f]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}

func (a *App) printRows(rows []*models.Entity) {
	if len(rows) == 0 {
		fmt.Fprintln(a.out, "(no rows)")
		return
	}
	for _, e := range rows {
		mark := " "
		if e.Dirty != 0 {
			mark = "*"
		}
		fmt.Fprintf(a.out, "%s %-36s  %s\n", mark, e.ID, label(e))
	}
}

// List shows a list from the replica, pulling it first on first read, and
// keeps it on screen as the current view.
func (a *App) List(ctx context.Context, args []string) error {
	spec, err := parseListSpec(args)
	if err != nil {
		return err
	}
	rows, err := a.engine.List(ctx, spec, 0, 0)
	if err != nil {
		return err
	}
	a.openView(ctx, spec, rows)
	fmt.Fprintf(a.out, "%s (%d)\n", spec.Name, len(rows))
	a.printRows(rows)
	return nil
}

// Show prints the current view again.
func (a *App) Show(_ context.Context, _ []string) error {
	v := a.currentView()
	if v == nil {
		return errors.New("no list shown yet")
	}
	rows := v.rec.Current()
	fmt.Fprintf(a.out, "%s (%d)\n", v.spec.Name, len(rows))
	a.printRows(rows)
	if v.hasPending() {
		fmt.Fprintln(a.out, "A refreshed version is available: type 'apply' or 'dismiss'.")
	}
	return nil
}

// Apply switches the current view to its pending refresh.
func (a *App) Apply(ctx context.Context, args []string) error {
	v := a.currentView()
	if v == nil || !v.rec.Accept() {
		fmt.Fprintln(a.out, "Nothing to apply")
		return nil
	}
	return a.Show(ctx, args)
}

// Dismiss drops the pending refresh of the current view.
func (a *App) Dismiss(_ context.Context, _ []string) error {
	if v := a.currentView(); v != nil {
		v.rec.Dismiss()
	}
	return nil
}

func (a *App) Get(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("get <kind> <id>")
	}
	schema, err := parseKind(args[0])
	if err != nil {
		return err
	}
	e, err := a.engine.Get(ctx, schema.Kind, args[1])
	if err != nil {
		return err
	}
	return a.printEntity(schema, e)
}

func (a *App) printEntity(schema *models.Schema, e *models.Entity) error {
	m := e.ToMap(schema)
	m["dirty"] = int(e.Dirty)
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, string(b))
	return nil
}

// Pull fetches a list's changes from the server without showing it.
func (a *App) Pull(ctx context.Context, args []string) error {
	spec, err := parseListSpec(args)
	if err != nil {
		return err
	}
	res, err := a.engine.Pull(ctx, spec)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %d updated, %d removed, %d kept local edits\n", spec.Name, res.Upserted, res.Deleted, res.Kept)
	return nil
}

// Add creates a row with a fresh id from field=value assignments.
func (a *App) Add(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usageError("add <kind> field=value ...")
	}
	return a.edit(ctx, args[0], uuid.NewString(), args[1:])
}

// Edit changes fields of a row locally. Sub-entity fields are written as
// user.<field>=value.
func (a *App) Edit(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return usageError("edit <kind> <id> field=value ...")
	}
	return a.edit(ctx, args[0], args[1], args[2:])
}

func (a *App) edit(ctx context.Context, kind, id string, assignments []string) error {
	schema, err := parseKind(kind)
	if err != nil {
		return err
	}
	changes, err := models.ParseAssignments(schema, assignments)
	if err != nil {
		return err
	}
	e, err := a.engine.Update(ctx, schema.Kind, id, changes)
	if err != nil {
		return err
	}
	if e.Dirty == 0 {
		fmt.Fprintln(a.out, "Nothing to send")
		return nil
	}
	fmt.Fprintf(a.out, "Saved %s locally, type 'persist' to send\n", e.ID)
	return nil
}

// Persist sends every pending edit now.
func (a *App) Persist(ctx context.Context, _ []string) error {
	err := a.engine.Persist(ctx, syncer.TriggerUser)
	if err == nil {
		fmt.Fprintln(a.out, "All changes sent")
		return nil
	}
	errs := multierr.Errors(err)
	fmt.Fprintf(a.out, "%d change(s) could not be sent:\n", len(errs))
	for _, e := range errs {
		fmt.Fprintln(a.out, "  -", e)
	}
	if syncer.HasRetriable(err) {
		fmt.Fprintln(a.out, "They will be retried in the background.")
	}
	return nil
}

// Delete removes a row on the server and then locally. It needs the server.
func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("delete <kind> <id>")
	}
	schema, err := parseKind(args[0])
	if err != nil {
		return err
	}
	ok, err := Confirm(a.reader, fmt.Sprintf("Delete %s %s?", schema.Kind, args[1]), a.out)
	if err != nil || !ok {
		return err
	}
	if err := a.engine.Delete(ctx, schema.Kind, args[1]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Deleted")
	return nil
}

// Download saves a book's file under ./downloads, or to the given path.
func (a *App) Download(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usageError("download <book-id> [path]")
	}
	url, err := a.remote.DownloadURL(ctx, args[0])
	if err != nil {
		return err
	}

	path := ""
	if len(args) == 2 {
		path = args[1]
		if err := filex.EnsureParentDir(path); err != nil {
			return err
		}
	} else {
		dir, err := filex.EnsureSubdDir("downloads")
		if err != nil {
			return err
		}
		path = filepath.Join(dir, args[0])
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := netx.DownloadPresignedURL(ctx, a.httpClient, url, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if err := a.store.RecordDownload(ctx, &models.Download{
		BookID:       args[0],
		LocalPath:    path,
		Size:         n,
		DownloadedAt: time.Now(),
	}); err != nil {
		a.log.Warn(ctx, "recording download", "book", args[0], "error", err)
	}
	fmt.Fprintf(a.out, "Saved %d bytes to %s\n", n, path)
	return nil
}

// Downloads lists the book files saved on this device. Files removed from
// disk since are marked missing; "downloads forget <book-id>" drops a record.
func (a *App) Downloads(ctx context.Context, args []string) error {
	if len(args) == 2 && args[0] == "forget" {
		return a.store.ForgetDownload(ctx, args[1])
	}
	if len(args) != 0 {
		return usageError("downloads [forget <book-id>]")
	}

	list, err := a.store.Downloads(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No downloads")
		return nil
	}
	for _, d := range list {
		state := ""
		if _, err := os.Stat(d.LocalPath); err != nil {
			state = " (missing)"
		}
		fmt.Fprintf(a.out, "%s\t%d bytes\t%s\t%s%s\n",
			d.BookID, d.Size, d.DownloadedAt.Local().Format(time.DateTime), d.LocalPath, state)
	}
	return nil
}

// Status prints connectivity, pending edits and known lists.
func (a *App) Status(ctx context.Context, _ []string) error {
	fmt.Fprintf(a.out, "mode: %s\n", a.mode())
	for _, kind := range models.Kinds() {
		rows, err := a.store.Dirty(ctx, kind)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "unsent %s: %d\n", kind, len(rows))
	}
	wm, err := a.store.Watermarks(ctx)
	if err != nil {
		return err
	}
	for _, name := range a.engine.Lists() {
		fmt.Fprintf(a.out, "list %s pulled at %s\n", name, wm[name].Format("2006-01-02 15:04:05"))
	}
	if a.engine.RetryPending() {
		fmt.Fprintln(a.out, "retry pending")
	}
	return nil
}

// Reset wipes the replica after confirmation. Unsent edits are lost.
func (a *App) Reset(ctx context.Context, _ []string) error {
	ok, err := Confirm(a.reader, "Wipe local data, including unsent changes?", a.out)
	if err != nil || !ok {
		return err
	}
	a.closeView()
	if err := a.engine.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Local data wiped")
	return nil
}
