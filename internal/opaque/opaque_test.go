package opaque

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

type fakeExchange struct {
	failResponse bool
	failFinalize bool
}

func (f *fakeExchange) CreateRegistrationResponse(_ context.Context, _ ids.UserId, req RegistrationRequest) (RegistrationResponse, error) {
	if f.failResponse {
		return RegistrationResponse{}, assertError("response failed")
	}
	return RegistrationResponse{Blob: append([]byte("response-for:"), req.Blob...)}, nil
}

func (f *fakeExchange) FinalizeRegistration(_ context.Context, _ ids.UserId, upload RegistrationUpload) (RegistrationRecord, error) {
	if f.failFinalize {
		return RegistrationRecord{}, assertError("finalize failed")
	}
	return RegistrationRecord{Blob: append([]byte("record-for:"), upload.Blob...)}, nil
}

type assertError string

func (e assertError) Error() string { return string(e) }

type memRecordStore struct {
	records map[string]RegistrationRecord
}

func newMemRecordStore() *memRecordStore {
	return &memRecordStore{records: make(map[string]RegistrationRecord)}
}

func (s *memRecordStore) PutRecord(_ context.Context, userID ids.UserId, record RegistrationRecord) error {
	s.records[userID.String()] = record
	return nil
}

func (s *memRecordStore) GetRecord(_ context.Context, userID ids.UserId) (RegistrationRecord, error) {
	r, ok := s.records[userID.String()]
	if !ok {
		return RegistrationRecord{}, assertError("not found")
	}
	return r, nil
}

func TestRegistrationFlow_RoundTrip(t *testing.T) {
	ctx := context.Background()
	domain := fqdn.MustParse("example.com")
	userID := ids.NewUserId(domain)

	store := newMemRecordStore()
	orch := NewOrchestrator(&fakeExchange{}, store)

	resp, err := orch.BeginRegistration(ctx, userID, RegistrationRequest{Blob: []byte("req")})
	require.NoError(t, err)
	assert.Equal(t, "response-for:req", string(resp.Blob))

	record, err := orch.FinishRegistration(ctx, userID, RegistrationUpload{Blob: []byte("upload")})
	require.NoError(t, err)
	assert.Equal(t, "record-for:upload", string(record.Blob))

	stored, err := store.GetRecord(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, record, stored)
}

func TestBeginRegistration_ExchangeFailure(t *testing.T) {
	ctx := context.Background()
	domain := fqdn.MustParse("example.com")
	userID := ids.NewUserId(domain)

	orch := NewOrchestrator(&fakeExchange{failResponse: true}, newMemRecordStore())
	_, err := orch.BeginRegistration(ctx, userID, RegistrationRequest{Blob: []byte("req")})
	require.Error(t, err)
}

func TestFinishRegistration_ExchangeFailureDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	domain := fqdn.MustParse("example.com")
	userID := ids.NewUserId(domain)

	store := newMemRecordStore()
	orch := NewOrchestrator(&fakeExchange{failFinalize: true}, store)

	_, err := orch.FinishRegistration(ctx, userID, RegistrationUpload{Blob: []byte("upload")})
	require.Error(t, err)
	_, err = store.GetRecord(ctx, userID)
	require.Error(t, err)
}
