package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/giantswarm/phnx-homeserver/internal/apierrors"
	"github.com/giantswarm/phnx-homeserver/internal/logging"
)

// BatchSize is how many messages a single Fetch round pulls from the Store
// before returning to the Wait state.
const BatchSize = 100

// Engine implements the C2 contract against a Store and a Notifier. It owns
// the at-most-one-listener-per-queue-id invariant: opening a new Listen for
// a queue id cancels whichever listener was previously registered for it.
type Engine struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger

	mu        sync.Mutex
	listeners map[Id]*listenerHandle
	nextGen   atomic.Uint64
}

type listenerHandle struct {
	cancel context.CancelFunc
	gen    uint64
}

func NewEngine(store Store, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		notifier:  notifier,
		logger:    slog.Default(),
		listeners: make(map[Id]*listenerHandle),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// Store returns the underlying Store, for callers (internal/as, internal/qs)
// that need queue-creation or sequence-inspection operations the Engine
// itself doesn't wrap.
func (e *Engine) Store() Store { return e.store }

// Enqueue appends a message if its sequence number matches the queue's
// expected next value, then fires a wake-up notification. isListening
// reports whether a live listener is currently registered for id, so the
// caller can decide whether a side-channel push (e.g. OS notification) is
// also warranted.
func (e *Engine) Enqueue(ctx context.Context, id Id, sequenceNumber uint64, ciphertext []byte) (isListening bool, err error) {
	if err := e.store.Enqueue(ctx, id, sequenceNumber, ciphertext); err != nil {
		var mismatch *ErrSequenceMismatch
		if errors.As(err, &mismatch) {
			return false, apierrors.ProtocolViolationf("queue", "sequence number mismatch on "+id.String()+": "+mismatch.Error())
		}
		return false, apierrors.Storagef("queue", "enqueue on "+id.String(), err)
	}

	e.mu.Lock()
	_, listening := e.listeners[id]
	e.mu.Unlock()

	if err := e.notifier.Notify(ctx, id); err != nil {
		logging.WithQueue(e.logger, id.String()).Warn("failed to fire queue notification", logging.Err(err))
	}
	return listening, nil
}

// TriggerFetch wakes a listener that may have missed an earlier
// notification, without enqueuing anything.
func (e *Engine) TriggerFetch(ctx context.Context, id Id) error {
	if err := e.notifier.Notify(ctx, id); err != nil {
		return apierrors.Storagef("queue", "triggering fetch on "+id.String(), err)
	}
	return nil
}

// Ack deletes every message up to and including upTo.
func (e *Engine) Ack(ctx context.Context, id Id, upTo uint64) error {
	if err := e.store.Ack(ctx, id, upTo); err != nil {
		return apierrors.Storagef("queue", "ack on "+id.String(), err)
	}
	return nil
}

// Listen streams messages for id starting at fromSequence in ascending
// order, emitting Event{Empty: true} whenever the buffer drains and the
// stream is about to block for new data. Calling Listen again for the same
// id cancels the previously returned stream — at most one listener per
// queue id is ever live. The returned channel is closed when ctx is
// cancelled, the listener is superseded, or the Store returns an
// unrecoverable error.
func (e *Engine) Listen(ctx context.Context, id Id, fromSequence uint64) (<-chan Event, error) {
	if err := e.store.RequeuePending(ctx, id); err != nil {
		return nil, apierrors.Storagef("queue", "requeuing pending messages for "+id.String(), err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	gen := e.nextGen.Add(1)
	handle := &listenerHandle{cancel: cancel, gen: gen}

	e.mu.Lock()
	if prev, ok := e.listeners[id]; ok {
		prev.cancel()
	}
	e.listeners[id] = handle
	e.mu.Unlock()

	wake, err := e.notifier.Subscribe(listenCtx, id)
	if err != nil {
		cancel()
		return nil, apierrors.Storagef("queue", "subscribing to notifications for "+id.String(), err)
	}

	events := make(chan Event)
	go e.runListener(listenCtx, id, fromSequence, wake, events, gen)
	return events, nil
}

func (e *Engine) runListener(ctx context.Context, id Id, cursor uint64, wake <-chan struct{}, events chan<- Event, gen uint64) {
	defer close(events)
	defer e.deregister(id, gen)

	for {
		messages, err := e.store.FetchFrom(ctx, id, cursor, BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.WithQueue(e.logger, id.String()).Error("queue listener fetch failed", logging.Err(err))
			return
		}

		for i := range messages {
			m := messages[i]
			select {
			case events <- Event{Message: &m}:
				cursor = m.SequenceNumber + 1
			case <-ctx.Done():
				return
			}
		}

		if len(messages) == 0 {
			select {
			case events <- Event{Empty: true}:
			case <-ctx.Done():
				return
			}

			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
		}
	}
}

// deregister removes the listener registration for id, but only if it is
// still the one this goroutine installed — a superseding Listen call may
// have already replaced it, and that replacement must not be clobbered.
func (e *Engine) deregister(id Id, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if current, ok := e.listeners[id]; ok && current.gen == gen {
		delete(e.listeners, id)
	}
}
