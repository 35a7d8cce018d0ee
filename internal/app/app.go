package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"talko/internal/retention"
	"talko/pkg/api/handlers"
	"talko/pkg/config"
	"talko/pkg/friends"
	"talko/pkg/ingest"
	"talko/pkg/logger"
	"talko/pkg/notify"
	"talko/pkg/presence"
	"talko/pkg/store"
)

// App encapsulates the server components and lifecycle.
type App struct {
	cfg       *config.Config
	version   string
	commit    string
	buildDate string

	store    *store.Store
	queue    *ingest.Queue
	hub      *notify.Hub
	tracker  *presence.Tracker
	ledger   *friends.Ledger
	worker   *ingest.Worker
	retainer *retention.Runner

	srv *http.Server
}

// New initializes everything that does not need a running context: config
// validation, runtime key sets, the store, and the write pipeline. Call Run
// to start serving and block until shutdown.
func New(cfg *config.Config, version, commit, buildDate string) (*App, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	runtimeCfg := &config.RuntimeConfig{
		BackendKeys: map[string]struct{}{},
		AdminKeys:   map[string]struct{}{},
		SigningKeys: map[string]struct{}{},
	}
	for _, k := range cfg.Security.APIKeys.Backend {
		runtimeCfg.BackendKeys[k] = struct{}{}
		runtimeCfg.SigningKeys[k] = struct{}{}
	}
	for _, k := range cfg.Security.APIKeys.Admin {
		runtimeCfg.AdminKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	st, err := store.Open(cfg.Server.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Server.DBPath, err)
	}

	if n := cfg.Ingest.Queue.MaxPooledBufferBytes.Int64(); n > 0 {
		ingest.SetMaxPooledBuffer(int(n))
	}

	hub := notify.NewHub(cfg.Notify.SubscriberBuffer)
	tracker := presence.NewTracker(cfg.Presence.TypingTTL.Duration())
	ledger := friends.NewLedger(st, hub)
	queue := ingest.NewQueue(cfg.Ingest.Queue.Capacity)
	worker := ingest.NewWorker(queue, st, ledger, hub)

	return &App{
		cfg:       cfg,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		store:     st,
		queue:     queue,
		hub:       hub,
		tracker:   tracker,
		ledger:    ledger,
		worker:    worker,
		retainer:  retention.NewRunner(st, cfg.Retention),
	}, nil
}

// Run starts the write worker, presence sweeper, retention scheduler,
// health sidecar and HTTP server, then blocks until ctx is canceled or a
// fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.worker.Run(runCtx)
	go a.tracker.Run(runCtx)

	stopRetention, err := a.retainer.Start(runCtx)
	if err != nil {
		return err
	}
	defer stopRetention()

	stopHealth := a.startHealthSidecar()
	defer stopHealth()

	logger.Info("server_starting",
		"addr", a.cfg.Addr(),
		"db", a.cfg.Server.DBPath,
		"version", a.version,
		"commit", a.commit,
		"build_date", a.buildDate)

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		a.shutdown()
		return err
	}
}

// shutdown drains in flight work in dependency order: stop accepting HTTP,
// fail queued writes, close the store.
func (a *App) shutdown() {
	if a.srv != nil {
		shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shCancel()
		_ = a.srv.Shutdown(shCtx)
	}
	a.queue.CloseAndDrain()
	if err := a.store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
	logger.Info("server_stopped")
}

// deps bundles the handler dependencies for the API router.
func (a *App) deps() *handlers.Deps {
	return &handlers.Deps{
		Store:    a.store,
		Queue:    a.queue,
		Hub:      a.hub,
		Presence: a.tracker,
		Friends:  a.ledger,
	}
}
