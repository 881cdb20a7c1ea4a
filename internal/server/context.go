package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/giantswarm/phnx-homeserver/internal/instrumentation"
	"github.com/giantswarm/phnx-homeserver/internal/storage"
)

// Config holds the process-wide settings a ServerContext was built from.
// It is intentionally small: each serve-* command owns its own service
// wiring (as.Service/qs.Service/ds.Engine); ServerContext only carries what
// the shared health/metrics listener and shutdown path need.
type Config struct {
	// ServerName identifies the process in logs and the root health response,
	// e.g. "phnx-as", "phnx-qs", "phnx-ds".
	ServerName string
	// ListenAddr is the address the health/metrics HTTP listener binds to.
	ListenAddr string
}

// NewDefaultConfig returns a Config with a generic server name and no
// listen address (the caller must set one).
func NewDefaultConfig() *Config {
	return &Config{ServerName: "phnx-homeserver"}
}

// Clone returns a deep copy of the Config, so callers can hand a ServerContext
// its own copy without risking later mutation through a shared pointer.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// ErrServerShutdown is returned by operations attempted after Shutdown.
var ErrServerShutdown = fmt.Errorf("server: context has been shut down")

// ServerContext carries the dependencies shared by every serve-* command's
// health/metrics HTTP surface and graceful-shutdown path: the storage pool,
// the instrumentation provider, a logger, and process configuration.
//
// It deliberately does not know about as.Service/qs.Service/ds.Engine -
// those are constructed directly by each serve-* command and passed to
// their own handlers; ServerContext is the ambient plumbing underneath all
// three, not a god object wrapping every domain service.
type ServerContext struct {
	pool                    *storage.Pool
	logger                  *slog.Logger
	config                  *Config
	instrumentationProvider *instrumentation.Provider

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new ServerContext, applying the given Options.
// A storage pool is required; callers missing one get ErrMissingPool.
func NewServerContext(ctx context.Context, opts ...Option) (*ServerContext, error) {
	childCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		config: NewDefaultConfig(),
		ctx:    childCtx,
		cancel: cancel,
	}

	for _, opt := range opts {
		if err := opt(sc); err != nil {
			cancel()
			return nil, fmt.Errorf("server: applying option: %w", err)
		}
	}

	if err := sc.validate(); err != nil {
		cancel()
		return nil, err
	}

	if sc.logger == nil {
		sc.logger = slog.Default()
	}
	if sc.instrumentationProvider == nil {
		provider, err := instrumentation.NewProvider(childCtx, instrumentation.Config{
			ServiceName: sc.config.ServerName,
			Enabled:     false,
		})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("server: constructing default instrumentation provider: %w", err)
		}
		sc.instrumentationProvider = provider
	}

	return sc, nil
}

func (sc *ServerContext) validate() error {
	if sc.pool == nil {
		return ErrMissingPool
	}
	return nil
}

// Pool returns the storage pool backing this process.
func (sc *ServerContext) Pool() *storage.Pool { return sc.pool }

// Logger returns the structured logger for this process.
func (sc *ServerContext) Logger() *slog.Logger { return sc.logger }

// Config returns the process configuration.
func (sc *ServerContext) Config() *Config { return sc.config }

// InstrumentationProvider returns the metrics/tracing provider for this process.
func (sc *ServerContext) InstrumentationProvider() *instrumentation.Provider {
	return sc.instrumentationProvider
}

// Context returns the context that is cancelled on Shutdown.
func (sc *ServerContext) Context() context.Context { return sc.ctx }

// IsShutdown reports whether Shutdown has already been called.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the context, flushes the instrumentation provider, and
// closes the storage pool. It is safe to call more than once.
func (sc *ServerContext) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil
	}
	sc.shutdown = true
	sc.mu.Unlock()

	sc.cancel()

	var errs []error
	if sc.instrumentationProvider != nil {
		if err := sc.instrumentationProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down instrumentation: %w", err))
		}
	}
	if sc.pool != nil {
		sc.pool.Close()
	}

	if len(errs) > 0 {
		return fmt.Errorf("server: shutdown: %v", errs)
	}
	return nil
}
