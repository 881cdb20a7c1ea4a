// Package qstest provides an in-memory qs.Store for tests.
package qstest

import (
	"context"
	"sync"

	"github.com/giantswarm/phnx-homeserver/internal/apierrors"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
	"github.com/giantswarm/phnx-homeserver/internal/qs"
)

type MemStore struct {
	mu      sync.Mutex
	records map[ids.QsClientId]qs.ClientRecord
}

func NewMemStore() *MemStore {
	return &MemStore{records: make(map[ids.QsClientId]qs.ClientRecord)}
}

func (s *MemStore) PutClientRecord(_ context.Context, rec qs.ClientRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ClientId] = rec
	return nil
}

func (s *MemStore) GetClientRecord(_ context.Context, clientID ids.QsClientId) (qs.ClientRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[clientID]
	if !ok {
		return qs.ClientRecord{}, apierrors.NotFoundf("qs_client_record", clientID.String())
	}
	return rec, nil
}

func (s *MemStore) DeleteClientRecord(_ context.Context, clientID ids.QsClientId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, clientID)
	return nil
}
