// Package qs implements the Queueing Service domain logic: a thin,
// per-device wrapper over internal/queue (C2) that mints QsClientId-keyed
// mailboxes unlinkable to any AS identifier. The QS never learns a user's
// UserId — only the QsClientId/QsUserId pair a client registered.
package qs

import (
	"context"
	"log/slog"

	"github.com/giantswarm/phnx-homeserver/internal/apierrors"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
	"github.com/giantswarm/phnx-homeserver/internal/queue"
)

// ClientRecord is what the QS persists per registered device: its
// QsClientId, the QsUserId it groups under (several devices of the same
// user share a QsUserId so a single push-notification token can be fanned
// out to all of a user's devices), and the queue encryption key the device
// supplied at registration (opaque to the QS, forwarded unopened to
// push-notification delivery).
type ClientRecord struct {
	ClientId           ids.QsClientId
	UserId             ids.QsUserId
	QueueEncryptionKey []byte
}

// Store is the persistence port for QS client records, beyond the generic
// queue.Store the Service is also built on.
type Store interface {
	PutClientRecord(ctx context.Context, rec ClientRecord) error
	GetClientRecord(ctx context.Context, clientID ids.QsClientId) (ClientRecord, error)
	DeleteClientRecord(ctx context.Context, clientID ids.QsClientId) error
}

// Service drives the QS's enqueue/listen/ack contract against a generic
// queue.Engine, translating QsClientId into the queue.Id space the engine
// operates on.
type Service struct {
	store  Store
	queues *queue.Engine
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(store Store, queues *queue.Engine, opts ...Option) *Service {
	s := &Service{store: store, queues: queues, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func queueID(clientID ids.QsClientId) queue.Id { return queue.Id(clientID) }

// CreateClient registers a new device queue at sequence number 0 and
// persists its client record.
func (s *Service) CreateClient(ctx context.Context, rec ClientRecord) error {
	if err := s.queues.Store().CreateQueue(ctx, queueID(rec.ClientId)); err != nil {
		return apierrors.Storagef("qs_queue", "creating queue for "+rec.ClientId.String(), err)
	}
	if err := s.store.PutClientRecord(ctx, rec); err != nil {
		return apierrors.Storagef("qs_queue", "persisting client record for "+rec.ClientId.String(), err)
	}
	return nil
}

// Enqueue appends message at sequenceNumber to clientID's queue. Fails
// ErrSequenceMismatch (wrapped as a ProtocolViolation) unless
// sequenceNumber equals the queue's current next-sequence-number. Returns
// whether a listener is currently live, so a caller (the DS fan-out path,
// for instance) can decide whether a side-channel push is also warranted.
func (s *Service) Enqueue(ctx context.Context, clientID ids.QsClientId, sequenceNumber uint64, ciphertext []byte) (isListening bool, err error) {
	return s.queues.Enqueue(ctx, queueID(clientID), sequenceNumber, ciphertext)
}

// EnqueueNext appends message at the queue's current next-sequence-number,
// for callers (DS fan-out) that don't separately track a per-recipient
// cursor.
func (s *Service) EnqueueNext(ctx context.Context, clientID ids.QsClientId, ciphertext []byte) (isListening bool, err error) {
	next, err := s.queues.Store().NextSequenceNumber(ctx, queueID(clientID))
	if err != nil {
		return false, apierrors.Storagef("qs_queue", "reading sequence for "+clientID.String(), err)
	}
	return s.queues.Enqueue(ctx, queueID(clientID), next, ciphertext)
}

// Listen streams clientID's queue starting at fromSequence. Taking a new
// listener for the same clientID cancels any prior listener, per C2's
// at-most-one-listener-per-queue-id invariant.
func (s *Service) Listen(ctx context.Context, clientID ids.QsClientId, fromSequence uint64) (<-chan queue.Event, error) {
	return s.queues.Listen(ctx, queueID(clientID), fromSequence)
}

// Ack deletes every message up to and including upToSequence.
func (s *Service) Ack(ctx context.Context, clientID ids.QsClientId, upToSequence uint64) error {
	return s.queues.Ack(ctx, queueID(clientID), upToSequence)
}

// TriggerFetch wakes a listener that may have missed an earlier
// notification, without enqueuing anything — used when a push-notification
// provider reports an uncertain delivery outcome and the device reconnects.
func (s *Service) TriggerFetch(ctx context.Context, clientID ids.QsClientId) error {
	return s.queues.TriggerFetch(ctx, queueID(clientID))
}

// DeleteClient removes clientID's record entirely. The queue's message log
// is left to the normal ack/expiration path; DeleteClient only removes the
// record that routes QsUserId -> device for push-notification purposes.
func (s *Service) DeleteClient(ctx context.Context, clientID ids.QsClientId) error {
	if err := s.store.DeleteClientRecord(ctx, clientID); err != nil {
		return apierrors.Storagef("qs_queue", "deleting client record for "+clientID.String(), err)
	}
	return nil
}
