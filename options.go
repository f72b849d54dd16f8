package sluice

import (
	"context"
	"log/slog"
)

// Option configures a Sluice.
type Option func(*Sluice) error

// Storer is the minimal store interface held by the Sluice container.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds all
// subsystem stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// runner is an internal interface for background loop lifecycle
// (worker pool, deferred-queue sweeper).
type runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Sluice is the dependency container shared by the admission, dispatch,
// drain, and wait components.
//
// Create one with New() and functional options. The container holds
// references to background components via internal interfaces to avoid
// import cycles; engine.Build wires everything together.
type Sluice struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions extensionEmitter
	pool       runner
	sweeper    runner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Sluice with the given options.
func New(opts ...Option) (*Sluice, error) {
	s := &Sluice{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Logger returns the container's logger.
func (s *Sluice) Logger() *slog.Logger { return s.logger }

// Store returns the container's store.
func (s *Sluice) Store() Storer { return s.store }

// Config returns a copy of the container's configuration.
func (s *Sluice) Config() Config { return s.config }

// SetPool sets the worker pool (called by engine.Build).
func (s *Sluice) SetPool(p runner) { s.pool = p }

// SetSweeper sets the deferred-queue sweeper (called by engine.Build).
func (s *Sluice) SetSweeper(r runner) { s.sweeper = r }

// SetExtensions sets the extension emitter (called by engine.Build).
func (s *Sluice) SetExtensions(e extensionEmitter) { s.extensions = e }

// Start begins background processing. Producer-only processes that never
// wire a pool or sweeper may skip Start entirely.
func (s *Sluice) Start(ctx context.Context) error {
	if s.pool != nil {
		if err := s.pool.Start(ctx); err != nil {
			return err
		}
	}
	if s.sweeper != nil {
		if err := s.sweeper.Start(ctx); err != nil {
			return err
		}
	}
	s.started = true
	return nil
}

// Stop gracefully shuts down background processing and closes the store.
// When the caller's context carries no deadline, the configured shutdown
// timeout bounds how long in-flight scrapes may hold up the process.
func (s *Sluice) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}
	if s.started {
		if s.sweeper != nil {
			if err := s.sweeper.Stop(ctx); err != nil {
				s.logger.Error("sweeper stop error", "error", err)
			}
		}
		if s.pool != nil {
			if err := s.pool.Stop(ctx); err != nil {
				s.logger.Error("pool stop error", "error", err)
			}
		}
	}
	if s.extensions != nil {
		s.extensions.EmitShutdown(ctx)
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(s *Sluice) error {
		s.config = cfg
		return nil
	}
}

// WithDefaultCeiling sets the fallback per-team concurrency ceiling.
func WithDefaultCeiling(n int) Option {
	return func(s *Sluice) error {
		s.config.DefaultCeiling = n
		return nil
	}
}

// WithConcurrency sets the maximum number of concurrent job processors.
func WithConcurrency(n int) Option {
	return func(s *Sluice) error {
		s.config.Concurrency = n
		return nil
	}
}

// WithQueues sets the worker queues this process consumes.
func WithQueues(queues []string) Option {
	return func(s *Sluice) error {
		s.config.Queues = queues
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sluice) error {
		s.logger = l
		return nil
	}
}

// WithStore sets the persistence backend.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(st Storer) Option {
	return func(s *Sluice) error {
		s.store = st
		return nil
	}
}
