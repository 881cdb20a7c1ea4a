package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/giantswarm/phnx-homeserver/internal/queue"
)

// pgNotifier implements queue.Notifier over native Postgres LISTEN/NOTIFY.
// Each Subscribe call checks out a dedicated connection from the pool (a
// LISTEN session is stateful and must not be returned to the pool while
// active) and runs a goroutine translating WaitForNotification wakeups into
// sends on the returned channel.
type pgNotifier struct {
	pool   *Pool
	logger *slog.Logger
}

// NewNotifier returns a queue.Notifier backed by pool's LISTEN/NOTIFY support.
func NewNotifier(pool *Pool, logger *slog.Logger) queue.Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &pgNotifier{pool: pool, logger: logger}
}

// channelName derives a valid, collision-free Postgres channel identifier
// from a queue id. UUIDs may start with a digit, which bare identifiers
// can't, so the result is always prefixed with a letter.
func channelName(id queue.Id) string {
	return "q_" + strings.ReplaceAll(id.String(), "-", "_")
}

func (n *pgNotifier) Subscribe(ctx context.Context, id queue.Id) (<-chan struct{}, error) {
	conn, err := n.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: acquiring listen connection for %s: %w", id, err)
	}

	channel := channelName(id)
	listenSQL := fmt.Sprintf(`LISTEN %s`, channel)
	if _, err := conn.Exec(ctx, listenSQL); err != nil {
		conn.Release()
		return nil, fmt.Errorf("storage: issuing LISTEN for %s: %w", id, err)
	}

	wake := make(chan struct{}, 1)
	go n.waitLoop(ctx, conn, id, wake)
	return wake, nil
}

func (n *pgNotifier) waitLoop(ctx context.Context, conn *pgxpool.Conn, id queue.Id, wake chan<- struct{}) {
	defer conn.Release()
	defer close(wake)

	for {
		_, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			n.logger.Warn("listen connection lost", slog.String("queue_id", id.String()), slog.String("error", err.Error()))
			return
		}

		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

func (n *pgNotifier) Notify(ctx context.Context, id queue.Id) error {
	channel := channelName(id)
	if _, err := n.pool.Exec(ctx, `SELECT pg_notify($1, '')`, channel); err != nil {
		return fmt.Errorf("storage: notifying %s: %w", id, err)
	}
	return nil
}
