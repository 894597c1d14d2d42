// Package app initializes and holds long-lived application services.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/snapvault/snapvault/internal/browser"
	"github.com/snapvault/snapvault/internal/capture"
	"github.com/snapvault/snapvault/internal/clock/system"
	"github.com/snapvault/snapvault/internal/config"
	"github.com/snapvault/snapvault/internal/id/uuid"
	"github.com/snapvault/snapvault/internal/jobstore"
	jobmemory "github.com/snapvault/snapvault/internal/jobstore/memory"
	jobpostgres "github.com/snapvault/snapvault/internal/jobstore/postgres"
	"github.com/snapvault/snapvault/internal/logging"
	"github.com/snapvault/snapvault/internal/notify"
	notifypubsub "github.com/snapvault/snapvault/internal/notify/pubsub"
	"github.com/snapvault/snapvault/internal/storage"
	"github.com/snapvault/snapvault/internal/storage/gcs"
	"github.com/snapvault/snapvault/internal/storage/local"
	"github.com/snapvault/snapvault/internal/storage/memory"
	"github.com/snapvault/snapvault/internal/worker"
)

// App holds the shared, long-lived services for the application: the logger,
// the artifact store, the job record store, and the completion notifier. It
// is built once at startup and handed to the components that need it.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Blobs    storage.Store
	Jobs     jobstore.Store
	Notifier notify.Publisher
	IDGen    *uuid.Generator
	Clock    capture.Clock

	closers []func() error
}

// New builds the service container from cfg, failing fast when any backend
// cannot be reached.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		IDGen:  uuid.New(),
		Clock:  system.Clock{},
	}

	if err := a.initBlobs(ctx, cfg); err != nil {
		return nil, err
	}
	if err := a.initJobs(ctx, cfg); err != nil {
		return nil, err
	}
	if err := a.initNotifier(ctx, cfg); err != nil {
		return nil, err
	}

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Provider),
		zap.String("db", cfg.DB.Provider),
		zap.String("notify", cfg.Notify.Provider),
	)
	return a, nil
}

func (a *App) initBlobs(ctx context.Context, cfg config.Config) error {
	switch cfg.Storage.Provider {
	case "gcs":
		store, err := gcs.New(ctx, gcs.Config{Bucket: cfg.Storage.Bucket})
		if err != nil {
			return fmt.Errorf("init gcs storage: %w", err)
		}
		a.Blobs = store
		a.closers = append(a.closers, store.Client.Close)
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("init local storage: %w", err)
		}
		a.Blobs = store
	case "memory":
		a.Blobs = memory.New()
	case "noop":
		a.Blobs = storage.NoOp{}
	default:
		return fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
	return nil
}

func (a *App) initJobs(ctx context.Context, cfg config.Config) error {
	switch cfg.DB.Provider {
	case "postgres":
		store, err := jobpostgres.New(ctx, jobpostgres.Config{DSN: cfg.DB.DSN})
		if err != nil {
			return fmt.Errorf("init postgres job store: %w", err)
		}
		a.Jobs = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	case "memory":
		a.Jobs = jobmemory.New()
	default:
		return fmt.Errorf("unknown db provider %q", cfg.DB.Provider)
	}
	return nil
}

func (a *App) initNotifier(ctx context.Context, cfg config.Config) error {
	switch cfg.Notify.Provider {
	case "pubsub":
		pub, err := notifypubsub.New(ctx, cfg.Notify.PubSub)
		if err != nil {
			return fmt.Errorf("init pubsub notifier: %w", err)
		}
		a.Notifier = pub
		a.closers = append(a.closers, pub.Close)
	case "noop":
		a.Notifier = notify.NoOp{}
	default:
		return fmt.Errorf("unknown notify provider %q", cfg.Notify.Provider)
	}
	return nil
}

// Close shuts services down in reverse initialization order and flushes the
// logger.
func (a *App) Close() {
	a.Logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("service close failed", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}

// BrowserSessions adapts a browser.Manager to the worker session factory.
type BrowserSessions struct {
	Manager *browser.Manager
}

// NewSession opens a fresh render session.
func (b BrowserSessions) NewSession(ctx context.Context) (worker.Session, error) {
	return b.Manager.NewSession(ctx)
}
