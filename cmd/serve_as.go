package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/phnx-homeserver/internal/as"
	"github.com/giantswarm/phnx-homeserver/internal/credentials"
	"github.com/giantswarm/phnx-homeserver/internal/opaque"
	"github.com/giantswarm/phnx-homeserver/internal/queue"
	"github.com/giantswarm/phnx-homeserver/internal/storage"
)

// newServeASCmd builds the Authentication Service process: it owns C1
// (credential issuance/rotation/revocation) and the registration half of
// C2 (minting a client's AS queue). Wire transport for AS operations is out
// of scope here; this command brings up storage, the domain service, and
// the shared health/metrics surface, and blocks until shutdown.
func newServeASCmd() *cobra.Command {
	var domainFlag string

	cmd := &cobra.Command{
		Use:   "serve-as",
		Short: "Start the Authentication Service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			b, err := newBootstrap(ctx, "phnx-as", domainFlag)
			if err != nil {
				return err
			}

			credStore := storage.NewCredentialStore(b.pool)
			credManager := credentials.NewManager(b.cfg.Domain, credStore, credentials.WithLogger(b.logger))

			queueStore := storage.NewASQueueStore(b.pool)
			notifier := storage.NewNotifier(b.pool, b.logger)
			queueEngine := queue.NewEngine(queueStore, notifier, queue.WithLogger(b.logger))

			asStore := storage.NewASStore(b.pool)
			opaqueStore := storage.NewOpaqueRecordStore(b.pool)
			orchestrator := opaque.NewOrchestrator(opaque.UnconfiguredExchange{}, opaqueStore)

			svc := as.NewService(asStore, credManager, queueEngine, orchestrator, as.WithLogger(b.logger))
			_ = svc // constructed and ready; a transport layer drives it from outside this process's scope

			b.logger.Info("serve-as started", "domain", b.cfg.Domain.String(), "listen_addr", b.cfg.ListenAddr)
			if err := serveHTTP(ctx, b); err != nil {
				return fmt.Errorf("serve-as: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&domainFlag, "domain", "", "this homeserver's own domain (overrides DOMAIN env var)")
	return cmd
}
