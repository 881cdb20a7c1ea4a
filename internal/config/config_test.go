package config

import (
	"testing"

	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.DatabaseURL == "" {
		t.Fatal("DatabaseURL should have a local-dev default")
	}
	if cfg.ListenAddr == "" {
		t.Fatal("ListenAddr should have a default")
	}
	if cfg.ShutdownTimeout <= 0 {
		t.Fatal("ShutdownTimeout should have a positive default")
	}
}

func TestDefaultRespectsEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example/db")
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("INSTRUMENTATION_ENABLED", "true")

	cfg := Default()
	if cfg.DatabaseURL != "postgres://example/db" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.ListenAddr != ":9999" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
	if !cfg.InstrumentationEnabled {
		t.Fatal("InstrumentationEnabled should be true")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("DOMAIN", "")

	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error with no domain and no DATABASE_URL")
	}

	cfg = Config{DatabaseURL: "postgres://example/db"}
	t.Setenv("DOMAIN", "example.com")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Domain.String() != "example.com" {
		t.Fatalf("Domain = %q, want example.com", cfg.Domain.String())
	}
}

func TestValidateMissingDatabaseURL(t *testing.T) {
	domain, err := fqdn.Parse("example.com")
	if err != nil {
		t.Fatalf("fqdn.Parse: %v", err)
	}
	cfg := Config{Domain: domain}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error with no DatabaseURL")
	}
}
