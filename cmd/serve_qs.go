package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/phnx-homeserver/internal/qs"
	"github.com/giantswarm/phnx-homeserver/internal/queue"
	"github.com/giantswarm/phnx-homeserver/internal/storage"
)

// newServeQSCmd builds the Queueing Service process: C2's per-device
// mailboxes, kept unlinkable to any AS identifier.
func newServeQSCmd() *cobra.Command {
	var domainFlag string

	cmd := &cobra.Command{
		Use:   "serve-qs",
		Short: "Start the Queueing Service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			b, err := newBootstrap(ctx, "phnx-qs", domainFlag)
			if err != nil {
				return err
			}

			qsStore := storage.NewQSStore(b.pool)
			queueStore := storage.NewQSQueueStore(b.pool)
			notifier := storage.NewNotifier(b.pool, b.logger)
			queueEngine := queue.NewEngine(queueStore, notifier, queue.WithLogger(b.logger))

			svc := qs.NewService(qsStore, queueEngine, qs.WithLogger(b.logger))
			_ = svc // constructed and ready; a transport layer drives it from outside this process's scope

			b.logger.Info("serve-qs started", "domain", b.cfg.Domain.String(), "listen_addr", b.cfg.ListenAddr)
			if err := serveHTTP(ctx, b); err != nil {
				return fmt.Errorf("serve-qs: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&domainFlag, "domain", "", "this homeserver's own domain (overrides DOMAIN env var)")
	return cmd
}
