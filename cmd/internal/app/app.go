// Package app wires the authgate server runtime: config, logging, the session
// backend, the active build and the HTTP routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"authgate/cmd/internal/auth"
	"authgate/cmd/internal/build"
	"authgate/cmd/internal/devreload"
	"authgate/cmd/internal/metrics"
	"authgate/cmd/internal/pages"
	"authgate/cmd/internal/ratelimit"
	"authgate/cmd/internal/upstream"
)

// App is the authgate runtime: it owns the HTTP server, the session backend
// and, in development, the build watcher.
type App struct {
	cfg Config
	log Logger

	metrics  *metrics.Metrics
	sessions *sessionBackend
	current  *build.Current

	// Development only.
	watcher  *build.Watcher
	notifier build.Notifier

	handler http.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)
	}

	if err := ValidateSecurityConfig(&cfg, log); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	up, err := upstream.New(cfg.Upstream, nil, log)
	if err != nil {
		return nil, err
	}

	loader := build.NewFileLoader(cfg.BuildPath, nil)
	initial, err := loader.LoadCurrent(ctx)
	if err != nil {
		if !cfg.Dev() {
			return nil, fmt.Errorf("load build: %w", err)
		}
		// The watcher installs the first build once the bundle appears.
		log.Warn("build.initial.missing", "path", cfg.BuildPath, "err", err)
	} else {
		m.BuildReload(float64(initial.Version.Unix()), nil)
		log.Info("build.loaded", "path", cfg.BuildPath, "version", initial.VersionString())
	}
	current := build.NewCurrent(initial)

	sessions, err := newSessionBackend(ctx, cfg, log, m)
	if err != nil {
		return nil, err
	}

	a := auth.New(sessions.store,
		auth.WithLogger(log),
		auth.WithMetrics(m),
		auth.WithExpiredTokenRejection(cfg.RejectExpiredTokens),
	)
	a.Use(auth.StrategyForm, up.Verifier())

	app := &App{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		sessions: sessions,
		current:  current,
	}

	deps := pages.Deps{
		Auth:     a,
		Injector: upstream.NewInjector(a, up.HTTP(), log, m),
		Upstream: up,
		Log:      log,
	}
	if cfg.LoginRateLimit > 0 {
		deps.LoginLimiter = ratelimit.New(cfg.LoginRateLimit, cfg.LoginRateWindow)
	}

	rt := routes{
		log:     log,
		cfg:     cfg,
		current: current,
		ready:   sessions.ready,
	}
	if cfg.MetricsEnabled {
		rt.metrics = metrics.Handler(reg)
	}

	if cfg.Dev() {
		hub := devreload.NewHub(log, m)
		gwCfg := devreload.DefaultGatewayConfig()
		gwCfg.AllowedOrigins = cfg.DevAllowedOrigins
		rt.devReload = devreload.NewGateway(gwCfg, hub, current, log)

		deps.DevReloadPath = devreload.Path
		p := pages.New(deps)
		rt.site = build.NewDispatcher(current, p.Handler, log)

		app.notifier = build.Notifiers{hub, build.NewPingNotifier(cfg.DevOrigin, nil)}
		app.watcher = build.NewWatcher(loader, current, cfg.VersionPath, app.notifier, log, m)
	} else {
		site, err := pages.New(deps).Handler(initial)
		if err != nil {
			_ = sessions.closer.Close(ctx)
			return nil, err
		}
		rt.site = site
	}

	mux := http.NewServeMux()
	registerHTTP(mux, rt)
	app.handler = WithRequestID(WithRequestLogging(WithSecurityHeaders(mux), log))

	return app, nil
}

// Handler is the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		a.log.Error("server.listen.fail", "addr", a.cfg.HTTPAddr, "err", err)
		return err
	}

	a.log.Info("server.start",
		"addr", ln.Addr().String(),
		"env", a.cfg.Env,
		"session_backend", a.sessions.name,
		"upstream", a.cfg.Upstream.BaseURL,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	go runPurger(bgCtx, a.sessions.purger, a.cfg.Session.PurgeInterval, a.log)

	if a.watcher != nil {
		go func() {
			if err := a.watcher.Run(bgCtx); err != nil {
				a.log.Warn("build.watch.fail", "err", err)
			}
		}()
	}

	if a.notifier != nil {
		if b := a.current.Load(); b != nil {
			if err := a.notifier.BuildReady(bgCtx, b); err != nil {
				a.log.Warn("build.notify.fail", "version", b.VersionString(), "err", err)
			}
		}
	}

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	stopBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.sessions.closer.Close(shutdownCtx); err != nil {
		a.log.Error("session.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
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
