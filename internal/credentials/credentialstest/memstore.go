// Package credentialstest provides an in-memory credentials.Store for tests,
// mirroring the shape the Postgres adapter in internal/storage implements.
package credentialstest

import (
	"context"
	"sync"

	"github.com/giantswarm/phnx-homeserver/internal/apierrors"
	"github.com/giantswarm/phnx-homeserver/internal/credentials"
	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

type MemStore struct {
	mu            sync.Mutex
	roots         map[string]credentials.AsRootCredential
	intermediates map[string]map[ids.CredentialFingerprint]credentials.AsIntermediateCredential
	clients       map[ids.CredentialFingerprint]credentials.ClientCredential
}

func New() *MemStore {
	return &MemStore{
		roots:         make(map[string]credentials.AsRootCredential),
		intermediates: make(map[string]map[ids.CredentialFingerprint]credentials.AsIntermediateCredential),
		clients:       make(map[ids.CredentialFingerprint]credentials.ClientCredential),
	}
}

func (s *MemStore) PutRoot(_ context.Context, root credentials.AsRootCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots[root.Domain.String()] = root
	return nil
}

func (s *MemStore) GetRoot(_ context.Context, domain fqdn.Fqdn) (credentials.AsRootCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, ok := s.roots[domain.String()]
	if !ok {
		return credentials.AsRootCredential{}, apierrors.NotFoundf("as_root_credential", domain.String())
	}
	return root, nil
}

func (s *MemStore) PutIntermediate(_ context.Context, cred credentials.AsIntermediateCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	domain := cred.Domain.String()
	if s.intermediates[domain] == nil {
		s.intermediates[domain] = make(map[ids.CredentialFingerprint]credentials.AsIntermediateCredential)
	}
	s.intermediates[domain][cred.Fingerprint] = cred
	return nil
}

func (s *MemStore) GetIntermediate(_ context.Context, domain fqdn.Fqdn, fp ids.CredentialFingerprint) (credentials.AsIntermediateCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.intermediates[domain.String()][fp]
	if !ok {
		return credentials.AsIntermediateCredential{}, apierrors.NotFoundf("as_intermediate", fp.String())
	}
	return cred, nil
}

func (s *MemStore) ActivateIntermediate(_ context.Context, domain fqdn.Fqdn, fp ids.CredentialFingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byFp, ok := s.intermediates[domain.String()]
	if !ok {
		return apierrors.NotFoundf("as_intermediate", fp.String())
	}
	if _, ok := byFp[fp]; !ok {
		return apierrors.NotFoundf("as_intermediate", fp.String())
	}
	for k, cred := range byFp {
		if k.Equal(fp) {
			cred.State = credentials.StateActive
		} else {
			cred.State = credentials.StateRetired
		}
		byFp[k] = cred
	}
	return nil
}

func (s *MemStore) ActiveIntermediate(_ context.Context, domain fqdn.Fqdn) (credentials.AsIntermediateCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cred := range s.intermediates[domain.String()] {
		if cred.State == credentials.StateActive {
			return cred, nil
		}
	}
	return credentials.AsIntermediateCredential{}, apierrors.NotFoundf("as_intermediate", "no active intermediate for "+domain.String())
}

func (s *MemStore) ListIntermediates(_ context.Context, domain fqdn.Fqdn) ([]credentials.AsIntermediateCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]credentials.AsIntermediateCredential, 0, len(s.intermediates[domain.String()]))
	for _, cred := range s.intermediates[domain.String()] {
		out = append(out, cred)
	}
	return out, nil
}

func (s *MemStore) ListRevokedFingerprints(_ context.Context, domain fqdn.Fqdn) ([]ids.CredentialFingerprint, error) {
	return nil, nil
}

func (s *MemStore) PutClientCredential(_ context.Context, cred credentials.ClientCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[cred.Fingerprint] = cred
	return nil
}

func (s *MemStore) GetClientCredential(_ context.Context, fp ids.CredentialFingerprint) (credentials.ClientCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.clients[fp]
	if !ok {
		return credentials.ClientCredential{}, apierrors.NotFoundf("client_credential", fp.String())
	}
	return cred, nil
}
