// Package app wires the arcclient agent: config, logging, the shared store,
// the session manager, its HTTP surface and the UI bridge.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"arcclient/cmd/identity"
	"arcclient/cmd/internal/auth/authority"
	"arcclient/cmd/internal/auth/session"
	"arcclient/cmd/internal/storage"
	"arcclient/cmd/internal/uibridge"
)

// Deps lets callers (mostly tests) substitute collaborators. Zero values are
// built from the environment.
type Deps struct {
	Authority authority.Client
	// Area backs the memory store driver; tabs sharing an Area see each other.
	Area *storage.Area
	// Session overrides session.LoadConfigFromEnv.
	Session *session.Config
}

// App is one tab's agent: it owns the shared store handle, the session manager
// and the HTTP server exposing both.
type App struct {
	cfg Config
	log *slog.Logger

	tabID string
	kv    storage.SharedKeyValueStore
	pool  *pgxpool.Pool

	mgr     *session.Manager
	hub     *uibridge.Hub
	bridge  *uibridge.Bridge
	ws      *uibridge.Gateway
	metrics *Metrics

	unobserve func()
}

// New constructs a fully wired App. The caller must Close it.
func New(ctx context.Context, cfg Config, log *slog.Logger, deps Deps) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	tabID, err := identity.NewTabID(time.Now())
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, tabID: tabID}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := a.openStore(ctx, deps.Area); err != nil {
		return nil, err
	}

	auth := deps.Authority
	if auth == nil {
		acfg, err := authority.LoadConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("authority config: %w", err)
		}
		auth = authority.NewHTTPClient(acfg)
	}

	var scfg session.Config
	if deps.Session != nil {
		scfg = *deps.Session
	} else if scfg, err = session.LoadConfigFromEnv(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}

	a.metrics = NewMetrics()
	a.hub = uibridge.NewHub(a.log)
	a.bridge = uibridge.NewBridge(a.hub, a.log, nil)

	a.mgr, err = session.NewManager(ctx, scfg, session.Deps{
		Store:     a.kv,
		Authority: auth,
		Navigator: session.NavigatorFunc(func(path string) {
			a.log.Debug("session.navigate", "path", path)
			a.bridge.Navigate(path)
		}),
		Notifier: session.NotifierFunc(func(n session.Notification) {
			a.log.Debug("session.notice", "id", n.ID, "level", string(n.Level))
			a.bridge.Notify(n)
		}),
		Metrics: a.metrics,
		Logger:  a.log,
	})
	if identity.IsStorageUnavailable(err) {
		return nil, fmt.Errorf("shared store %q unavailable: %w", a.cfg.StoreDriver, err)
	}
	if err != nil {
		return nil, err
	}
	a.unobserve = a.mgr.Observe(a.bridge.PublishSnapshot)
	a.ws = uibridge.NewGateway(a.log, uibridge.LoadConfigFromEnv(), a.hub, a.mgr, tabID)

	ok = true
	return a, nil
}

func (a *App) openStore(ctx context.Context, area *storage.Area) error {
	scfg := storage.Config{
		Driver:    a.cfg.StoreDriver,
		Namespace: a.cfg.StoreNamespace,
		Redis: &storage.RedisConfig{
			Addr:     a.cfg.RedisAddr,
			Username: a.cfg.RedisUsername,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		},
		Postgres: &storage.PostgresConfig{Schema: a.cfg.PostgresSchema},
	}

	deps := storage.Dependencies{Area: area}
	if a.cfg.StoreDriver == storage.DriverPostgres {
		if a.cfg.DatabaseURL == "" {
			return errors.New("postgres store requires ARC_DATABASE_URL")
		}
		pool, err := NewDBPool(ctx, a.cfg)
		if err != nil {
			return fmt.Errorf("db pool: %w", err)
		}
		a.pool = pool
		deps.Pool = pool
	}

	kv, err := storage.New(ctx, scfg, a.tabID, deps)
	if err != nil {
		return err
	}
	a.kv = kv
	a.log.Info("store.open", "driver", a.cfg.StoreDriver, "namespace", a.cfg.StoreNamespace)
	return nil
}

// Manager exposes the session manager for embedding callers.
func (a *App) Manager() *session.Manager { return a.mgr }

// Handler returns the agent's HTTP surface with middleware applied.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.registerHTTP(mux)
	return WithSecurityHeaders(WithRequestLogging(mux, a.log))
}

// Run serves HTTP, listens for cross-tab logouts and, when configured, restores
// the session once. It blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	stopProp, err := a.mgr.StartPropagator(ctx)
	if err != nil {
		return fmt.Errorf("start propagator: %w", err)
	}
	defer stopProp()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "store", a.cfg.StoreDriver, "tab", a.tabID, "device", a.mgr.DeviceID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	if a.cfg.RestoreOnStart {
		g.Go(func() error {
			res := a.mgr.Restore(gctx)
			a.log.Info("session.restore.startup", "outcome", string(res.Outcome), "reason", res.Reason)
			return nil
		})
	}

	err = g.Wait()
	a.log.Info("server.stopped")
	return err
}

// Close releases the manager, the store handle and the pool.
func (a *App) Close() {
	if a.unobserve != nil {
		a.unobserve()
		a.unobserve = nil
	}
	if a.mgr != nil {
		a.mgr.Close()
	}
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			a.log.Error("store.close.fail", "err", err)
		}
		a.kv = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
