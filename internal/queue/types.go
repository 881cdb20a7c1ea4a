// Package queue implements C2: a durable, per-client FIFO message log with
// dense sequence numbers, notification-driven streaming, and at-most-one
// live listener per queue id. It is generic over "queue id" so the same
// engine backs both the AS's per-user queues and the QS's per-device queues.
package queue

import (
	"github.com/google/uuid"
)

// Id identifies one durable queue. The AS and QS each mint their own id
// space (ids.UserId-derived for the AS, ids.QsClientId for the QS); the
// engine itself only ever treats it as an opaque key.
type Id uuid.UUID

func (id Id) String() string { return uuid.UUID(id).String() }

// Status is the lifecycle state of one queued message. A message starts
// Pending, moves to Processing while a listener is actively delivering it,
// and is deleted once acked.
type Status int

const (
	StatusPending Status = iota
	StatusProcessing
)

// Message is one entry in a queue's durable log.
type Message struct {
	SequenceNumber uint64
	Ciphertext     []byte
	Status         Status
}

// Event is what a Listen stream emits. Exactly one of Message or Empty is
// meaningful per event: Empty is the "queue drained, about to block for new
// data" sentinel a consumer can use to stop treating the stream as
// backlogged.
type Event struct {
	Message *Message
	Empty   bool
}
