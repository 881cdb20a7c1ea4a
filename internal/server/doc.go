// Package server provides the ServerContext pattern shared by the
// serve-as, serve-qs and serve-ds processes: a storage pool, a structured
// logger, an instrumentation provider, and the health/metrics HTTP surface
// every process exposes regardless of which domain service it runs.
//
// ServerContext deliberately stays ignorant of as.Service/qs.Service/ds.Engine
// - those are constructed and wired by each serve-* command directly. This
// package is the ambient plumbing underneath all three, not a god object.
//
// Example usage:
//
//	pool, err := storage.NewPool(ctx, dsn)
//	if err != nil {
//		return err
//	}
//	sc, err := server.NewServerContext(ctx,
//		server.WithPool(pool),
//		server.WithServerName("phnx-as"),
//		server.WithListenAddr(":8080"),
//	)
//	if err != nil {
//		return err
//	}
//	defer sc.Shutdown(context.Background())
//
//	mux := http.NewServeMux()
//	server.NewHealthChecker(sc).RegisterHealthEndpoints(mux)
package server
