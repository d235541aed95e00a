// Package app wires configuration into a running engine and its backing
// services. Every binary builds its dependencies through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/engine"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/storage"
)

// Store is the persistence surface the engine and the operator tooling share.
type Store interface {
	engine.IdentityDirectory
	engine.EnrollmentStore
	UpsertIdentity(ctx context.Context, ident models.Identity) error
	Ping(ctx context.Context) error
}

// Option adjusts how New assembles the application.
type Option func(*options)

type options struct {
	sinks    []engine.AuditSink
	store    Store
	provider biometric.Provider
	noQueue  bool
}

// WithSink adds an audit sink next to the ones derived from config.
func WithSink(s engine.AuditSink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// WithStore replaces the configured store.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

// WithProvider replaces the configured matching provider.
func WithProvider(p biometric.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithoutQueue skips the NATS producer even when a URL is configured.
func WithoutQueue() Option {
	return func(o *options) { o.noQueue = true }
}

type App struct {
	Config   *config.Config
	Engine   *engine.Engine
	Store    Store
	Provider biometric.Provider
	Producer *queue.Producer
	Blobs    *storage.MinIOStore

	checks  map[string]handlers.Check
	closers []func()
}

// New connects to the configured backends and builds the engine. Postgres,
// MinIO and NATS are each optional: without a database host the enrollments
// live in memory, without a MinIO endpoint no reference images are kept, and
// without a NATS URL audit records only go to the log and extra sinks.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, checks: map[string]handlers.Check{}}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.Provider = o.provider
	if a.Provider == nil {
		p, err := biometric.NewProvider(cfg.Providers)
		if err != nil {
			return nil, fmt.Errorf("init provider: %w", err)
		}
		a.Provider = p
	}
	a.closers = append(a.closers, func() {
		if err := a.Provider.Close(); err != nil {
			log.Warn("close provider", "error", err)
		}
	})
	log.Info("matching provider ready", "provider", a.Provider.Name(), "kind", a.Provider.Kind())

	switch {
	case o.store != nil:
		a.Store = o.store
	case cfg.Database.Host != "":
		pg, err := storage.NewPostgresStore(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.Store = pg
	default:
		log.Warn("no database configured, enrollments are kept in memory")
		a.Store = storage.NewMemoryStore()
	}
	a.checks["database"] = a.Store.Ping

	deps := engine.Deps{
		Provider:   a.Provider,
		Identities: a.Store,
		Store:      a.Store,
		Logger:     log,
	}

	if cfg.MinIO.Endpoint != "" {
		blobs, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("connect to minio: %w", err)
		}
		if err := blobs.EnsureBucket(ctx); err != nil {
			log.Warn("ensure minio bucket", "error", err)
		}
		a.Blobs = blobs
		deps.Blobs = blobs
		a.checks["minio"] = blobs.Ping
	}

	sinks := engine.MultiSink{engine.LogSink{Logger: log.With("component", "audit")}}
	if cfg.NATS.URL != "" && !o.noQueue {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		a.closers = append(a.closers, producer.Close)
		if err := producer.EnsureStreams(ctx); err != nil {
			log.Warn("ensure nats streams", "error", err)
		}
		a.Producer = producer
		sinks = append(sinks, producer)
		a.checks["nats"] = func(context.Context) error { return producer.Ping() }
	}
	sinks = append(sinks, o.sinks...)
	deps.Audit = sinks

	eng, err := engine.New(cfg.Engine, deps)
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	a.Engine = eng

	ok = true
	return a, nil
}

// Checks returns the readiness probes of the connected backends.
func (a *App) Checks() map[string]handlers.Check {
	return a.checks
}

// EnsureIdentity registers an identity when it is not known yet.
func (a *App) EnsureIdentity(ctx context.Context, id uuid.UUID, name string, category models.Category) (*models.Identity, error) {
	existing, err := a.Store.GetIdentity(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	if name == "" {
		return nil, errors.New("display name required for a new identity")
	}
	ident := models.Identity{ID: id, DisplayName: name, Category: category, Active: true}
	if err := a.Store.UpsertIdentity(ctx, ident); err != nil {
		return nil, fmt.Errorf("register identity: %w", err)
	}
	return &ident, nil
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
