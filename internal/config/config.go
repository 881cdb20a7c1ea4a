// Package config loads the environment/flag-driven configuration shared by
// the AS, QS and DS server processes, following the teacher's
// environment-variable-with-flag-override convention from cmd/serve.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
)

// Config holds the settings every `serve-*` command needs: where the
// process's own domain is, how to reach Postgres, and how to configure
// instrumentation. Service-specific settings (e.g. the AS's OPAQUE server
// setup) live alongside their own service, not here.
type Config struct {
	// Domain is this homeserver's own Fqdn, used to qualify every UserId,
	// QualifiedGroupId and credential this process issues or accepts.
	Domain fqdn.Fqdn

	// DatabaseURL is a libpq-style connection string for internal/storage's
	// pgxpool.Pool.
	DatabaseURL string

	// ListenAddr is the address the process's health/metrics HTTP server
	// binds to.
	ListenAddr string

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string

	// ShutdownTimeout bounds how long graceful shutdown waits for
	// in-flight work before the process exits anyway.
	ShutdownTimeout time.Duration

	// InstrumentationEnabled turns on the otel metrics/tracing provider.
	InstrumentationEnabled bool
}

// Default returns a Config populated from environment variables, with
// fallbacks matching the teacher's "sensible local-dev default" convention.
// Flags set via cobra override these; see cmd's serve subcommands.
func Default() Config {
	return Config{
		DatabaseURL:            getEnvOrDefault("DATABASE_URL", "postgres://localhost:5432/phnx?sslmode=disable"),
		ListenAddr:             getEnvOrDefault("LISTEN_ADDR", ":8080"),
		LogLevel:               getEnvOrDefault("LOG_LEVEL", "info"),
		ShutdownTimeout:        getEnvDurationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second),
		InstrumentationEnabled: getEnvBoolOrDefault("INSTRUMENTATION_ENABLED", false),
	}
}

// Validate parses and checks the fields that have no safe zero value.
func (c *Config) Validate() error {
	if c.Domain.IsZero() {
		domainStr := getEnvOrDefault("DOMAIN", "")
		if domainStr == "" {
			return fmt.Errorf("config: DOMAIN is required (set --domain or the DOMAIN env var)")
		}
		domain, err := fqdn.Parse(domainStr)
		if err != nil {
			return fmt.Errorf("config: parsing DOMAIN: %w", err)
		}
		c.Domain = domain
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}
