// Package cmd provides the command-line interface for phnx-homeserver.
//
// This package implements a Cobra-based CLI with one subcommand per service
// a federated deployment runs:
//
//	phnx-homeserver serve-as [--domain example.com]   # Authentication Service (C1)
//	phnx-homeserver serve-qs [--domain example.com]   # Queueing Service (C2)
//	phnx-homeserver serve-ds [--domain example.com]   # Delivery Service (C3)
//	phnx-homeserver version                           # Shows version information
//
// Each serve-* command loads its configuration from environment variables
// (see internal/config), connects to Postgres, constructs its domain
// service, starts the instrumentation provider, and serves /healthz,
// /readyz and /healthz/detailed until it receives SIGINT or SIGTERM. No
// /metrics route is registered on that listener.
package cmd
