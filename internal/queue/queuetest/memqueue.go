// Package queuetest provides in-memory implementations of queue.Store and
// queue.Notifier for tests that should never need a database or LISTEN/NOTIFY.
package queuetest

import (
	"context"
	"sort"
	"sync"

	"github.com/giantswarm/phnx-homeserver/internal/queue"
)

type queueRecord struct {
	nextSequence uint64
	messages     []queue.Message
}

// MemStore is an in-memory queue.Store.
type MemStore struct {
	mu     sync.Mutex
	queues map[queue.Id]*queueRecord
}

func NewMemStore() *MemStore {
	return &MemStore{queues: make(map[queue.Id]*queueRecord)}
}

func (s *MemStore) CreateQueue(_ context.Context, id queue.Id) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queues[id]; !ok {
		s.queues[id] = &queueRecord{}
	}
	return nil
}

func (s *MemStore) Enqueue(_ context.Context, id queue.Id, sequenceNumber uint64, ciphertext []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[id]
	if !ok {
		q = &queueRecord{}
		s.queues[id] = q
	}
	if sequenceNumber != q.nextSequence {
		return &queue.ErrSequenceMismatch{Expected: q.nextSequence, Got: sequenceNumber}
	}
	q.messages = append(q.messages, queue.Message{
		SequenceNumber: sequenceNumber,
		Ciphertext:     append([]byte(nil), ciphertext...),
		Status:         queue.StatusPending,
	})
	q.nextSequence++
	return nil
}

func (s *MemStore) NextSequenceNumber(_ context.Context, id queue.Id) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[id]
	if !ok {
		return 0, nil
	}
	return q.nextSequence, nil
}

func (s *MemStore) FetchFrom(_ context.Context, id queue.Id, from uint64, limit int) ([]queue.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[id]
	if !ok {
		return nil, nil
	}

	sort.Slice(q.messages, func(i, j int) bool { return q.messages[i].SequenceNumber < q.messages[j].SequenceNumber })

	var out []queue.Message
	for i := range q.messages {
		if q.messages[i].SequenceNumber < from {
			continue
		}
		q.messages[i].Status = queue.StatusProcessing
		out = append(out, q.messages[i])
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemStore) RequeuePending(_ context.Context, id queue.Id) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[id]
	if !ok {
		return nil
	}
	for i := range q.messages {
		q.messages[i].Status = queue.StatusPending
	}
	return nil
}

func (s *MemStore) Ack(_ context.Context, id queue.Id, upTo uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[id]
	if !ok {
		return nil
	}
	kept := q.messages[:0]
	for _, m := range q.messages {
		if m.SequenceNumber > upTo {
			kept = append(kept, m)
		}
	}
	q.messages = kept
	return nil
}

// MemNotifier is an in-memory queue.Notifier built on Go channels.
type MemNotifier struct {
	mu   sync.Mutex
	subs map[queue.Id][]chan struct{}
}

func NewMemNotifier() *MemNotifier {
	return &MemNotifier{subs: make(map[queue.Id][]chan struct{})}
}

func (n *MemNotifier) Subscribe(ctx context.Context, id queue.Id) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.subs[id] = append(n.subs[id], ch)
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		defer n.mu.Unlock()
		subs := n.subs[id]
		for i, c := range subs {
			if c == ch {
				n.subs[id] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func (n *MemNotifier) Notify(_ context.Context, id queue.Id) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs[id] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}
