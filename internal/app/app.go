// Package app builds the services once at start-up and hands them to the
// HTTP server and the CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/threat-analyzer/internal/application"
	"github.com/bryanwahyu/threat-analyzer/internal/application/analyses"
	"github.com/bryanwahyu/threat-analyzer/internal/application/liveness"
	"github.com/bryanwahyu/threat-analyzer/internal/application/session"
	"github.com/bryanwahyu/threat-analyzer/internal/application/submission"
	"github.com/bryanwahyu/threat-analyzer/internal/config"
	"github.com/bryanwahyu/threat-analyzer/internal/domain/storage"
	"github.com/bryanwahyu/threat-analyzer/internal/infra/backend"
	"github.com/bryanwahyu/threat-analyzer/internal/infra/httpserver"
	"github.com/bryanwahyu/threat-analyzer/internal/infra/kv"
	"github.com/bryanwahyu/threat-analyzer/internal/middleware"
)

type App struct {
	Config     *config.Config
	Store      storage.Store
	Backend    *backend.Client
	Session    *session.Service
	Analyses   *analyses.Service
	Submission *submission.Service
	Probe      *liveness.Probe
	Metrics    *middleware.Metrics

	checkers map[string]middleware.HealthChecker
	closer   io.Closer
}

// New opens storage, wires the services and restores the persisted identity,
// which also loads the matching analysis partition.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, closer, err := kv.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, errors.Wrap(err, "open storage")
	}
	return Wire(ctx, cfg, store, closer), nil
}

// Wire builds the services on top of an already opened store.
func Wire(ctx context.Context, cfg *config.Config, store storage.Store, closer io.Closer) *App {
	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	clock := application.SystemClock{}

	sess := session.NewService(client, store)
	cache := analyses.NewService(store, clock)
	sess.OnChange(cache.Activate)

	probe := liveness.NewProbe(client, clock)
	if cfg.Probe.Timeout > 0 {
		probe.Timeout = cfg.Probe.Timeout
	}
	if cfg.Probe.Interval > 0 {
		probe.Interval = cfg.Probe.Interval
	}
	probe.OnStatus(logTransitions(cfg.Backend.BaseURL))

	a := &App{
		Config:     cfg,
		Store:      store,
		Backend:    client,
		Session:    sess,
		Analyses:   cache,
		Submission: submission.NewService(client, client, cache, sess),
		Probe:      probe,
		Metrics:    middleware.NewMetrics(),
		checkers:   map[string]middleware.HealthChecker{},
		closer:     closer,
	}
	if db, ok := closer.(*sql.DB); ok {
		a.checkers["storage"] = &middleware.SQLStorageChecker{DB: db}
	}

	sess.Restore(ctx)
	return a
}

// logTransitions logs the first outcome and every change after it.
func logTransitions(url string) func(online bool) {
	var last atomic.Int32
	return func(online bool) {
		next := int32(liveness.Offline)
		if online {
			next = int32(liveness.Online)
		}
		if last.Swap(next) == next {
			return
		}
		if online {
			slog.Info("backend online", "url", url)
			return
		}
		slog.Warn("backend offline", "url", url)
	}
}

func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

func (a *App) Handler(version string) http.Handler {
	return httpserver.NewRouter(a.Session, a.Analyses, a.Submission, a.Probe, httpserver.Options{
		Version:        version,
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		APIKey:         a.Config.Server.APIKey,
		Checkers:       a.checkers,
		Metrics:        a.Metrics,
	})
}

// Serve runs the HTTP server and the liveness probe until ctx is canceled,
// then shuts the server down gracefully.
func (a *App) Serve(ctx context.Context, version string) error {
	addr := fmt.Sprintf(":%d", a.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.Handler(version),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: a.Config.Backend.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Probe.Run(ctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("server listening", "addr", addr, "backend", a.Config.Backend.BaseURL, "storage", a.Config.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
