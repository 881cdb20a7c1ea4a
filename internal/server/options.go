package server

import (
	"errors"
	"log/slog"

	"github.com/giantswarm/phnx-homeserver/internal/instrumentation"
	"github.com/giantswarm/phnx-homeserver/internal/storage"
)

// Option configures a ServerContext during construction.
type Option func(*ServerContext) error

// ErrMissingPool is returned when no storage pool was provided.
var ErrMissingPool = errors.New("server: storage pool is required")

// WithPool sets the storage pool the process will serve against.
func WithPool(pool *storage.Pool) Option {
	return func(sc *ServerContext) error {
		if pool == nil {
			return ErrMissingPool
		}
		sc.pool = pool
		return nil
	}
}

// WithLogger sets the structured logger used by the process.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) error {
		if logger == nil {
			return errors.New("server: logger must not be nil")
		}
		sc.logger = logger
		return nil
	}
}

// WithConfig replaces the default Config wholesale.
func WithConfig(config *Config) Option {
	return func(sc *ServerContext) error {
		if config == nil {
			return errors.New("server: config must not be nil")
		}
		sc.config = config.Clone()
		return nil
	}
}

// WithServerName overrides the process's identifying name.
func WithServerName(name string) Option {
	return func(sc *ServerContext) error {
		sc.config.ServerName = name
		return nil
	}
}

// WithListenAddr sets the health/metrics HTTP listener address.
func WithListenAddr(addr string) Option {
	return func(sc *ServerContext) error {
		sc.config.ListenAddr = addr
		return nil
	}
}

// WithInstrumentationProvider injects an already-constructed instrumentation
// provider, instead of letting NewServerContext build a disabled default one.
func WithInstrumentationProvider(provider *instrumentation.Provider) Option {
	return func(sc *ServerContext) error {
		if provider == nil {
			return errors.New("server: instrumentation provider must not be nil")
		}
		sc.instrumentationProvider = provider
		return nil
	}
}
