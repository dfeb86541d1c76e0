package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/dmitrijs2005/comicsync/internal/client/client"
	"github.com/dmitrijs2005/comicsync/internal/client/config"
	"github.com/dmitrijs2005/comicsync/internal/client/services"
	"github.com/dmitrijs2005/comicsync/internal/client/store"
	"github.com/dmitrijs2005/comicsync/internal/client/syncer"
	"github.com/dmitrijs2005/comicsync/internal/filex"
	"github.com/dmitrijs2005/comicsync/internal/logging"
)

type Mode string

const (
	ModeOffline  Mode = "offline"
	ModeOnline   Mode = "online"
	ModeDisabled Mode = "disabled"
)

type App struct {
	config      *config.Config
	authService services.AuthService
	remote      client.API
	store       *store.Store
	engine      *syncer.Engine
	log         logging.Logger
	httpClient  *http.Client

	reader *bufio.Reader
	out    io.Writer

	mu       sync.Mutex
	userName string
	Mode     Mode
	view     *listView
}

// NewApp opens the replica at c.DatabasePath and connects the remote
// client. Nothing is sent over the network until the first command.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	if err := filex.EnsureParentDir(c.DatabasePath); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, c.DatabasePath, store.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	remote, err := client.NewGRPCClient(c.ServerEndpointAddr)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return newApp(c, st, remote, log, bufio.NewReader(os.Stdin), os.Stdout), nil
}

func newApp(c *config.Config, st *store.Store, remote client.API, log logging.Logger, r *bufio.Reader, w io.Writer) *App {
	a := &App{
		config:      c,
		authService: services.NewAuthService(remote, st),
		remote:      remote,
		store:       st,
		log:         log.With("module", "cli"),
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		reader:      r,
		out:         w,
	}
	a.engine = syncer.NewEngine(st, remote, syncer.Options{
		PageSize:    c.PullPageSize,
		Concurrency: c.PushConcurrency,
		Retry: syncer.RetryConfig{
			Base:     c.RetryBaseDelay,
			Max:      c.RetryMaxDelay,
			Attempts: uint64(max(c.RetryMaxAttempts, 0)),
		},
		Notifier: syncer.NotifierFunc(a.notify),
		Logger:   log,
	})
	return a
}

// notify prints a message for the user between prompts.
func (a *App) notify(_ context.Context, msg string) {
	fmt.Fprintf(a.out, "\n! %s\n", msg)
}

// setMode records the connectivity mode and returns the previous one.
func (a *App) setMode(mode Mode) Mode {
	a.mu.Lock()
	prev := a.Mode
	a.Mode = mode
	a.mu.Unlock()

	if prev != mode {
		a.log.Info(context.Background(), "connectivity changed", "from", prev, "to", mode)
	}
	return prev
}

func (a *App) mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Mode
}

func (a *App) isLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userName != ""
}

func (a *App) getStatus() string {
	a.mu.Lock()
	s := ""
	if a.userName != "" {
		s = a.userName + " "
	}
	s += string(a.Mode)
	v := a.view
	a.mu.Unlock()

	if v != nil && v.hasPending() {
		s += " *"
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// Run prompts for login, starts the connectivity watcher and serves the
// REPL until the user exits or ctx is done.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(a.out, "Welcome to comicsync (type 'help' for commands)")
	if err := a.Login(ctx); err != nil {
		fmt.Fprintln(a.out, "error:", err)
	}

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}

// StartOnlineStatusWatcher pings the server every interval. When the
// server becomes reachable again, every list shown so far is re-pulled and
// pending edits are pushed.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := a.authService.Ping(pctx)
	cancel()

	if err != nil {
		if a.mode() == ModeOnline {
			a.setMode(ModeOffline)
		}
		return
	}
	if prev := a.setMode(ModeOnline); prev == ModeOffline && a.isLoggedIn() {
		a.onReconnect(ctx)
	}
}

func (a *App) onReconnect(ctx context.Context) {
	if err := a.engine.OnVisible(ctx); err != nil {
		a.log.Warn(ctx, "refresh after reconnect failed", "error", err)
	}
	if err := a.engine.Persist(ctx, syncer.TriggerBackground); err != nil {
		a.log.Warn(ctx, "push after reconnect failed", "error", err)
	}
}

// Close stops the engine and releases the replica and the connection.
func (a *App) Close(ctx context.Context) error {
	a.closeView()
	return multierr.Combine(a.engine.Close(), a.authService.Close(ctx), a.store.Close())
}
