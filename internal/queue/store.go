package queue

import (
	"context"
	"fmt"
)

// Store is the durable persistence port C2 is built on. A Postgres
// implementation lives in internal/storage; queuetest provides an
// in-memory one.
//
// Enqueue must be transactional: the sequence-number check and the insert
// happen atomically, so two concurrent enqueues against the same queue id
// can never both succeed at the same sequence number.
type Store interface {
	// CreateQueue registers a new, empty queue at sequence number 0. It is
	// idempotent: creating an already-existing queue id is a no-op, not an
	// error, so retried registration requests don't fail spuriously.
	CreateQueue(ctx context.Context, id Id) error

	// Enqueue appends message at sequenceNumber if and only if it equals
	// the queue's current next-sequence-number, then advances the counter.
	// It returns ErrSequenceMismatch otherwise.
	Enqueue(ctx context.Context, id Id, sequenceNumber uint64, ciphertext []byte) error

	// NextSequenceNumber returns the sequence number the next Enqueue call
	// must use.
	NextSequenceNumber(ctx context.Context, id Id) (uint64, error)

	// FetchFrom returns up to limit messages with SequenceNumber >= from, in
	// ascending order, marking them StatusProcessing as they're returned.
	FetchFrom(ctx context.Context, id Id, from uint64, limit int) ([]Message, error)

	// RequeuePending resets every StatusProcessing message back to
	// StatusPending. Called when a listener starts, to recover messages left
	// mid-delivery by a crashed prior listener.
	RequeuePending(ctx context.Context, id Id) error

	// Ack deletes every message with SequenceNumber <= upTo. It is
	// idempotent: acking an already-acked range is a no-op.
	Ack(ctx context.Context, id Id, upTo uint64) error
}

// ErrSequenceMismatch is returned by Store.Enqueue when the caller's
// sequence number doesn't match the queue's expected next value.
type ErrSequenceMismatch struct {
	Expected uint64
	Got      uint64
}

func (e *ErrSequenceMismatch) Error() string {
	return fmt.Sprintf("queue: sequence number mismatch: expected %d, got %d", e.Expected, e.Got)
}
