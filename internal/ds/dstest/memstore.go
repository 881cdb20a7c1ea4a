// Package dstest provides an in-memory ds.Store for tests.
package dstest

import (
	"context"
	"sync"
	"time"

	"github.com/giantswarm/phnx-homeserver/internal/ds"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

type record struct {
	reserved bool
	sealed   []byte
	lastUsed time.Time
}

type MemStore struct {
	mu      sync.Mutex
	records map[ids.QualifiedGroupId]*record
}

func NewMemStore() *MemStore {
	return &MemStore{records: make(map[ids.QualifiedGroupId]*record)}
}

func (s *MemStore) Reserve(ctx context.Context, id ids.QualifiedGroupId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; ok {
		return nil
	}
	s.records[id] = &record{reserved: true}
	return nil
}

func (s *MemStore) IsReserved(ctx context.Context, id ids.QualifiedGroupId) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	return ok && r.reserved && r.sealed == nil, nil
}

func (s *MemStore) PutEnvelope(ctx context.Context, id ids.QualifiedGroupId, sealed []byte, lastUsed time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		r = &record{}
		s.records[id] = r
	}
	r.sealed = sealed
	r.lastUsed = lastUsed
	return nil
}

func (s *MemStore) GetEnvelope(ctx context.Context, id ids.QualifiedGroupId) ([]byte, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.sealed == nil {
		return nil, time.Time{}, &ds.ErrNotReserved{GroupId: id}
	}
	return r.sealed, r.lastUsed, nil
}

func (s *MemStore) DeleteExpired(ctx context.Context, threshold time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.records {
		if r.sealed != nil && r.lastUsed.Before(threshold) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}
