package server

import (
	"context"
	"testing"
)

func TestNewServerContext_MissingPool(t *testing.T) {
	_, err := NewServerContext(context.Background(), WithServerName("phnx-test"))
	if err == nil {
		t.Fatal("expected an error when no pool is provided")
	}
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.ServerName != "phnx-homeserver" {
		t.Fatalf("ServerName = %q, want phnx-homeserver", cfg.ServerName)
	}
}

func TestConfigClone(t *testing.T) {
	c := &Config{ServerName: "phnx-as", ListenAddr: ":8080"}
	clone := c.Clone()
	clone.ServerName = "phnx-qs"

	if c.ServerName != "phnx-as" {
		t.Fatalf("original mutated: ServerName = %q", c.ServerName)
	}
}

func TestServerContext_ShutdownIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sc := &ServerContext{config: NewDefaultConfig(), ctx: ctx, cancel: cancel}

	if sc.IsShutdown() {
		t.Fatal("should not be shut down yet")
	}
	if err := sc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !sc.IsShutdown() {
		t.Fatal("should be shut down")
	}
	if err := sc.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown should be a no-op, got: %v", err)
	}
}
