package cmd

import "testing"

func TestNewServeASCmd(t *testing.T) {
	cmd := newServeASCmd()
	if cmd.Use != "serve-as" {
		t.Fatalf("Use = %q, want serve-as", cmd.Use)
	}
	if cmd.Flags().Lookup("domain") == nil {
		t.Fatal("expected a --domain flag")
	}
}

func TestNewServeQSCmd(t *testing.T) {
	cmd := newServeQSCmd()
	if cmd.Use != "serve-qs" {
		t.Fatalf("Use = %q, want serve-qs", cmd.Use)
	}
	if cmd.Flags().Lookup("domain") == nil {
		t.Fatal("expected a --domain flag")
	}
}

func TestNewServeDSCmd(t *testing.T) {
	cmd := newServeDSCmd()
	if cmd.Use != "serve-ds" {
		t.Fatalf("Use = %q, want serve-ds", cmd.Use)
	}
	if cmd.Flags().Lookup("domain") == nil {
		t.Fatal("expected a --domain flag")
	}
}
