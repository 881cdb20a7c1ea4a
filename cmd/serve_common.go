package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/giantswarm/phnx-homeserver/internal/config"
	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
	"github.com/giantswarm/phnx-homeserver/internal/instrumentation"
	"github.com/giantswarm/phnx-homeserver/internal/server"
	"github.com/giantswarm/phnx-homeserver/internal/server/middleware"
	"github.com/giantswarm/phnx-homeserver/internal/storage"
)

// bootstrap holds what every serve-* command needs before constructing its
// own domain service: a validated Config, a connected storage pool, a
// ServerContext, and an instrumentation provider. newBootstrap/serveHTTP own
// bringing these up and tearing them down in the right order.
type bootstrap struct {
	cfg      config.Config
	pool     *storage.Pool
	sc       *server.ServerContext
	provider *instrumentation.Provider
	logger   *slog.Logger
}

// newBootstrap loads configuration, connects to storage, and constructs the
// shared ServerContext/instrumentation provider for serviceName (one of
// "phnx-as", "phnx-qs", "phnx-ds"). domainFlag overrides the DOMAIN
// environment variable when non-empty.
func newBootstrap(ctx context.Context, serviceName, domainFlag string) (*bootstrap, error) {
	cfg := config.Default()
	if domainFlag != "" {
		domain, err := fqdn.Parse(domainFlag)
		if err != nil {
			return nil, fmt.Errorf("%s: parsing --domain: %w", serviceName, err)
		}
		cfg.Domain = domain
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := slog.Default()

	pool, err := storage.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", serviceName, err)
	}

	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
		ServiceName: serviceName,
		Enabled:     cfg.InstrumentationEnabled,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: constructing instrumentation provider: %w", serviceName, err)
	}

	sc, err := server.NewServerContext(ctx,
		server.WithPool(pool),
		server.WithLogger(logger),
		server.WithServerName(serviceName),
		server.WithListenAddr(cfg.ListenAddr),
		server.WithInstrumentationProvider(provider),
	)
	if err != nil {
		_ = provider.Shutdown(ctx)
		pool.Close()
		return nil, fmt.Errorf("%s: %w", serviceName, err)
	}

	return &bootstrap{cfg: cfg, pool: pool, sc: sc, provider: provider, logger: logger}, nil
}

// serveHTTP starts the shared health/metrics listener in the background and
// blocks until ctx is cancelled (SIGINT/SIGTERM), then shuts everything down
// in reverse order of construction.
func serveHTTP(ctx context.Context, b *bootstrap) error {
	mux := http.NewServeMux()
	server.NewHealthChecker(b.sc).RegisterHealthEndpoints(mux)

	var handler http.Handler = mux
	handler = middleware.HTTPMetrics(b.provider)(handler)
	handler = middleware.SecurityHeaders(false)(handler)

	httpServer := &http.Server{
		Addr:    b.cfg.ListenAddr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		b.logger.Info("health/metrics listener starting", "addr", b.cfg.ListenAddr, "domain", b.cfg.Domain.String())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("health/metrics listener: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), b.cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		b.logger.Error("health/metrics listener did not shut down cleanly", "error", err)
	}
	return b.sc.Shutdown(shutdownCtx)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, matching the
// graceful-shutdown idiom this tree's entry points use throughout.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
