package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// HealthChecker provides the liveness/readiness endpoints every serve-*
// process exposes to its deployment environment.
type HealthChecker struct {
	// ready indicates whether the server is ready to receive traffic
	ready atomic.Bool
	// serverContext provides access to dependencies for health checks
	serverContext *ServerContext
	// startTime tracks when the server started
	startTime time.Time
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
	}
	// Server starts as ready by default
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// HealthResponse is the JSON body for /healthz and /readyz.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime,omitempty"`
}

// DetailedHealthResponse adds per-dependency status to HealthResponse.
type DetailedHealthResponse struct {
	HealthResponse
	Server          string               `json:"server"`
	Storage         StorageHealthStatus  `json:"storage"`
	Instrumentation InstrumentationCheck `json:"instrumentation"`
}

// StorageHealthStatus reports whether the storage pool answers pings.
type StorageHealthStatus struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// InstrumentationCheck reports whether metrics/tracing are enabled.
type InstrumentationCheck struct {
	Enabled bool `json:"enabled"`
}

// LivenessHandler reports whether the process itself is alive (not shut down).
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := healthStatusOK
		code := http.StatusOK
		if h.serverContext != nil && h.serverContext.IsShutdown() {
			status = healthStatusShuttingDown
			code = http.StatusServiceUnavailable
		}
		writeHealthJSON(w, code, HealthResponse{Status: status, Uptime: time.Since(h.startTime).String()})
	}
}

// ReadinessHandler reports whether the process can serve traffic: it must
// not be shutting down and the storage pool must answer a ping.
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.ready.Load() {
			writeHealthJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: healthStatusNotReady})
			return
		}
		if h.serverContext != nil {
			if h.serverContext.IsShutdown() {
				writeHealthJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: healthStatusShuttingDown})
				return
			}
			if pool := h.serverContext.Pool(); pool != nil {
				if err := pool.Ping(r.Context()); err != nil {
					writeHealthJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: healthStatusNotReady})
					return
				}
			}
		}
		writeHealthJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	}
}

// DetailedHealthHandler reports per-dependency status, for operator debugging.
func (h *HealthChecker) DetailedHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := DetailedHealthResponse{
			HealthResponse: HealthResponse{Status: healthStatusOK, Uptime: time.Since(h.startTime).String()},
		}
		code := http.StatusOK

		if h.serverContext != nil {
			resp.Server = h.serverContext.Config().ServerName
			if h.serverContext.IsShutdown() {
				resp.Status = healthStatusShuttingDown
				code = http.StatusServiceUnavailable
			}
			if pool := h.serverContext.Pool(); pool != nil {
				if err := pool.Ping(r.Context()); err != nil {
					resp.Storage = StorageHealthStatus{Connected: false, Error: err.Error()}
					resp.Status = healthStatusNotReady
					code = http.StatusServiceUnavailable
				} else {
					resp.Storage = StorageHealthStatus{Connected: true}
				}
			}
			if provider := h.serverContext.InstrumentationProvider(); provider != nil {
				resp.Instrumentation = InstrumentationCheck{Enabled: provider.Enabled()}
			}
		}

		writeHealthJSON(w, code, resp)
	}
}

// RegisterHealthEndpoints registers /healthz, /readyz and /healthz/detailed
// on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/healthz/detailed", h.DetailedHealthHandler())
}

func writeHealthJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
