// Package astest provides an in-memory as.Store for tests.
package astest

import (
	"context"
	"sync"

	"github.com/giantswarm/phnx-homeserver/internal/apierrors"
	"github.com/giantswarm/phnx-homeserver/internal/as"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
	"github.com/giantswarm/phnx-homeserver/internal/queue"
)

type profileKey struct {
	user     ids.UserId
	keyIndex uint32
}

// MemStore is an in-memory as.Store.
type MemStore struct {
	mu          sync.Mutex
	packages    map[ids.UserId][]as.ConnectionPackage
	profiles    map[profileKey]as.UserProfileEntry
	handles     map[ids.UserHandleHash]as.HandleRecord
	clientQueue map[ids.UserId]queue.Id
}

func NewMemStore() *MemStore {
	return &MemStore{
		packages:    make(map[ids.UserId][]as.ConnectionPackage),
		profiles:    make(map[profileKey]as.UserProfileEntry),
		handles:     make(map[ids.UserHandleHash]as.HandleRecord),
		clientQueue: make(map[ids.UserId]queue.Id),
	}
}

func (s *MemStore) PutConnectionPackages(_ context.Context, userID ids.UserId, packages []as.ConnectionPackage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packages[userID] = append([]as.ConnectionPackage(nil), packages...)
	return nil
}

func (s *MemStore) GetConnectionPackages(_ context.Context, userID ids.UserId) ([]as.ConnectionPackage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]as.ConnectionPackage(nil), s.packages[userID]...), nil
}

func (s *MemStore) PutUserProfile(_ context.Context, entry as.UserProfileEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profileKey{entry.UserId, entry.KeyIndex}] = entry
	return nil
}

func (s *MemStore) GetUserProfile(_ context.Context, userID ids.UserId, keyIndex uint32) (as.UserProfileEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.profiles[profileKey{userID, keyIndex}]
	if !ok {
		return as.UserProfileEntry{}, apierrors.NotFoundf("user_profile", userID.String())
	}
	return entry, nil
}

func (s *MemStore) CreateHandle(_ context.Context, rec as.HandleRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handles[rec.Hash]; exists {
		return false, nil
	}
	s.handles[rec.Hash] = rec
	return true, nil
}

func (s *MemStore) GetHandle(_ context.Context, hash ids.UserHandleHash) (as.HandleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.handles[hash]
	if !ok {
		return as.HandleRecord{}, apierrors.NotFoundf("handle", hash.String())
	}
	return rec, nil
}

func (s *MemStore) DeleteHandle(_ context.Context, hash ids.UserHandleHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, hash)
	return nil
}

func (s *MemStore) ClientQueueId(_ context.Context, userID ids.UserId) (queue.Id, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qid, ok := s.clientQueue[userID]
	if !ok {
		return queue.Id{}, apierrors.NotFoundf("as_client_record", userID.String())
	}
	return qid, nil
}

func (s *MemStore) PutClientQueueId(_ context.Context, userID ids.UserId, id queue.Id) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientQueue[userID] = id
	return nil
}
