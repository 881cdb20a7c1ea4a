package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/giantswarm/phnx-homeserver/internal/queue"
)

// queueTables names the two tables a pgQueueStore operates over. The AS and
// QS each get their own physical tables (as_queues/as_queue_data,
// qs_queues/qs_queue_data per the specification's persisted-state list)
// even though they share the same queue.Engine logic.
type queueTables struct {
	queues string
	data   string
}

var (
	asQueueTables = queueTables{queues: "as_queues", data: "as_queue_data"}
	qsQueueTables = queueTables{queues: "qs_queues", data: "qs_queue_data"}
)

// pgQueueStore implements queue.Store against one pair of Postgres tables.
type pgQueueStore struct {
	pool   *Pool
	tables queueTables
}

// NewASQueueStore returns the queue.Store backing the AS's per-user queues.
func NewASQueueStore(pool *Pool) queue.Store { return &pgQueueStore{pool: pool, tables: asQueueTables} }

// NewQSQueueStore returns the queue.Store backing the QS's per-device queues.
func NewQSQueueStore(pool *Pool) queue.Store { return &pgQueueStore{pool: pool, tables: qsQueueTables} }

func (s *pgQueueStore) CreateQueue(ctx context.Context, id queue.Id) error {
	sql := fmt.Sprintf(`INSERT INTO %s (queue_id, next_sequence_number) VALUES ($1, 0) ON CONFLICT (queue_id) DO NOTHING`, s.tables.queues)
	if _, err := s.pool.Exec(ctx, sql, id.String()); err != nil {
		return fmt.Errorf("storage: creating queue %s: %w", id, err)
	}
	return nil
}

func (s *pgQueueStore) Enqueue(ctx context.Context, id queue.Id, sequenceNumber uint64, ciphertext []byte) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: starting enqueue transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lockSQL := fmt.Sprintf(`
		INSERT INTO %s (queue_id, next_sequence_number) VALUES ($1, 0)
		ON CONFLICT (queue_id) DO NOTHING`, s.tables.queues)
	if _, err := tx.Exec(ctx, lockSQL, id.String()); err != nil {
		return fmt.Errorf("storage: ensuring queue row for %s: %w", id, err)
	}

	selectSQL := fmt.Sprintf(`SELECT next_sequence_number FROM %s WHERE queue_id = $1 FOR UPDATE`, s.tables.queues)
	var next uint64
	if err := tx.QueryRow(ctx, selectSQL, id.String()).Scan(&next); err != nil {
		return fmt.Errorf("storage: locking queue row for %s: %w", id, err)
	}

	if sequenceNumber != next {
		return &queue.ErrSequenceMismatch{Expected: next, Got: sequenceNumber}
	}

	insertSQL := fmt.Sprintf(`INSERT INTO %s (queue_id, sequence_number, message_bytes, status) VALUES ($1, $2, $3, 'pending')`, s.tables.data)
	if _, err := tx.Exec(ctx, insertSQL, id.String(), sequenceNumber, ciphertext); err != nil {
		return fmt.Errorf("storage: inserting message into %s: %w", s.tables.data, err)
	}

	updateSQL := fmt.Sprintf(`UPDATE %s SET next_sequence_number = next_sequence_number + 1 WHERE queue_id = $1`, s.tables.queues)
	if _, err := tx.Exec(ctx, updateSQL, id.String()); err != nil {
		return fmt.Errorf("storage: advancing sequence counter for %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: committing enqueue for %s: %w", id, err)
	}
	return nil
}

func (s *pgQueueStore) NextSequenceNumber(ctx context.Context, id queue.Id) (uint64, error) {
	sql := fmt.Sprintf(`SELECT next_sequence_number FROM %s WHERE queue_id = $1`, s.tables.queues)
	var next uint64
	err := s.pool.QueryRow(ctx, sql, id.String()).Scan(&next)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage: reading next sequence number for %s: %w", id, err)
	}
	return next, nil
}

func (s *pgQueueStore) FetchFrom(ctx context.Context, id queue.Id, from uint64, limit int) ([]queue.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: starting fetch transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	selectSQL := fmt.Sprintf(`
		SELECT sequence_number, message_bytes
		FROM %s
		WHERE queue_id = $1 AND sequence_number >= $2
		ORDER BY sequence_number ASC
		LIMIT $3`, s.tables.data)
	rows, err := tx.Query(ctx, selectSQL, id.String(), from, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: fetching messages for %s: %w", id, err)
	}

	var messages []queue.Message
	var sequenceNumbers []uint64
	for rows.Next() {
		var m queue.Message
		if err := rows.Scan(&m.SequenceNumber, &m.Ciphertext); err != nil {
			rows.Close()
			return nil, fmt.Errorf("storage: scanning message row for %s: %w", id, err)
		}
		m.Status = queue.StatusProcessing
		messages = append(messages, m)
		sequenceNumbers = append(sequenceNumbers, m.SequenceNumber)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterating message rows for %s: %w", id, err)
	}

	if len(sequenceNumbers) > 0 {
		markSQL := fmt.Sprintf(`UPDATE %s SET status = 'processing' WHERE queue_id = $1 AND sequence_number = ANY($2)`, s.tables.data)
		if _, err := tx.Exec(ctx, markSQL, id.String(), sequenceNumbers); err != nil {
			return nil, fmt.Errorf("storage: marking messages processing for %s: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("storage: committing fetch for %s: %w", id, err)
	}
	return messages, nil
}

func (s *pgQueueStore) RequeuePending(ctx context.Context, id queue.Id) error {
	sql := fmt.Sprintf(`UPDATE %s SET status = 'pending' WHERE queue_id = $1 AND status = 'processing'`, s.tables.data)
	if _, err := s.pool.Exec(ctx, sql, id.String()); err != nil {
		return fmt.Errorf("storage: requeuing pending messages for %s: %w", id, err)
	}
	return nil
}

func (s *pgQueueStore) Ack(ctx context.Context, id queue.Id, upTo uint64) error {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE queue_id = $1 AND sequence_number <= $2`, s.tables.data)
	if _, err := s.pool.Exec(ctx, sql, id.String(), upTo); err != nil {
		return fmt.Errorf("storage: acking messages for %s up to %d: %w", id, upTo, err)
	}
	return nil
}
