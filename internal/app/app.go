// Package app owns construction, wiring, and graceful shutdown of the
// noaide core — watcher, ingest, index, bus, transport, the side
// database, and the cert-hash HTTP surface — the same role trellis's
// internal/app package plays for its service set (spec §1 ambient
// stack).
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/noaide-sh/noaide/internal/bus"
	"github.com/noaide-sh/noaide/internal/config"
	"github.com/noaide-sh/noaide/internal/db"
	"github.com/noaide-sh/noaide/internal/httpapi"
	"github.com/noaide-sh/noaide/internal/index"
	"github.com/noaide-sh/noaide/internal/transport"
	"github.com/noaide-sh/noaide/internal/watcher"
)

// dbSyncInterval is how often the side database mirrors the in-memory
// index. Not exposed as a setting: it trades durability lag against
// sqlite write volume in a range no operator has asked to tune. (The
// replay ring and dedup capacities have config.Config fields, but
// nothing reads them; both rings are fixed at 1000.)
const dbSyncInterval = 2 * time.Second

// Options layers flag overrides onto the loaded tuning config, the
// same shape as trellis's app.Options.
type Options struct {
	ConfigPath string
	Port       int // overrides Transport.Port if > 0
	HTTPPort   int // overrides HTTP.Port if > 0
}

// App is the server-mode container: watcher -> ingest -> index -> bus
// -> transport, plus the side database and the cert-hash HTTP surface.
type App struct {
	log zerolog.Logger
	cfg *config.Config

	idx   *index.Index
	bus   bus.Bus
	store *db.DB
	sink  *db.Sink
	wch   *watcher.Watcher
	ing   *ingester
	xport *transport.Server
	http  *http.Server

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// New loads configuration and constructs every component. Nothing is
// started yet — call Run or Start.
func New(opts Options, log zerolog.Logger) (*App, error) {
	loader := config.NewLoader()
	path := opts.ConfigPath
	if path == "" {
		if found, err := loader.FindConfig(); err == nil {
			path = found
		}
	}
	cfg, err := loader.LoadWithDefaults(path)
	if err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}
	if opts.Port > 0 {
		cfg.Transport.Port = opts.Port
	}
	if opts.HTTPPort > 0 {
		cfg.HTTP.Port = opts.HTTPPort
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("app: invalid config: %w", err)
	}

	log = log.Level(parseLevel(cfg.Logging.Level))

	b := bus.NewMemoryBus(log)
	idx := index.New()

	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("app: open side database: %w", err)
	}

	w, err := watcher.New(log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("app: start watcher: %w", err)
	}

	xport, err := transport.NewServer(
		fmt.Sprintf(":%d", cfg.Transport.Port),
		transport.CertConfig{CertPath: cfg.Transport.CertPath, KeyPath: cfg.Transport.KeyPath},
		b, log)
	if err != nil {
		w.Close()
		store.Close()
		return nil, fmt.Errorf("app: start transport: %w", err)
	}

	router := httpapi.NewRouter(xport, log)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: router,
	}

	return &App{
		log:   log,
		cfg:   cfg,
		idx:   idx,
		bus:   b,
		store: store,
		sink:  db.NewSink(store, idx, log),
		wch:   w,
		ing:   newIngester(idx, b, log),
		xport: xport,
		http:  httpSrv,
		done:  make(chan struct{}),
	}, nil
}

// Start performs cold-start discovery, begins watching every
// configured root, and starts the transport/HTTP/db-sync background
// loops. It returns once cold-start discovery completes; everything
// else continues in the background.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.ing.LoadAll(runCtx, a.cfg.Watch.Paths); err != nil {
		return fmt.Errorf("app: cold-start discovery: %w", err)
	}

	for _, root := range a.cfg.Watch.Paths {
		if err := a.wch.Watch(root); err != nil {
			a.log.Warn().Err(err).Str("path", root).Msg("failed to watch root")
		}
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.ing.watchLoop(runCtx, a.wch, a.cfg.Watch.Paths)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.sink.Run(runCtx, dbSyncInterval)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.log.Info().Int("port", a.cfg.Transport.Port).Msg("starting transport server")
		if err := a.xport.ListenAndServe(); err != nil {
			a.log.Error().Err(err).Msg("transport server error")
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.log.Info().Int("port", a.cfg.HTTP.Port).Msg("starting http api server")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error().Err(err).Msg("http api server error")
		}
	}()

	return nil
}

// Run starts the app and blocks until a shutdown signal, a canceled
// ctx, or an explicit Stop call, then shuts down gracefully — the same
// signal-driven shape as trellis's App.Run.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
	case <-ctx.Done():
		a.log.Info().Msg("context canceled, shutting down")
	case <-a.done:
		a.log.Info().Msg("shutdown requested")
	}

	return a.Shutdown(context.Background())
}

// Stop signals Run to begin shutdown. Safe to call multiple times.
func (a *App) Stop() {
	a.stopOnce.Do(func() { close(a.done) })
}

// Shutdown tears down every component in reverse dependency order.
// Transport/HTTP stop accepting first so no new work arrives while the
// rest drains.
func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("http api shutdown error")
	}
	if err := a.xport.Close(); err != nil {
		a.log.Error().Err(err).Msg("transport shutdown error")
	}

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if err := a.wch.Close(); err != nil {
		a.log.Error().Err(err).Msg("watcher shutdown error")
	}
	if err := a.bus.Close(); err != nil {
		a.log.Error().Err(err).Msg("bus shutdown error")
	}
	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("side database shutdown error")
	}

	a.log.Info().Msg("shutdown complete")
	return nil
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
