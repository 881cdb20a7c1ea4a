// Package opaque orchestrates the two-message OPAQUE registration exchange
// without implementing the password-authenticated key exchange math itself
// (an external collaborator per this system's scope, the same way the MLS
// library is). It sequences RegistrationRequest -> RegistrationResponse ->
// RegistrationRecord and hands the caller an opaque, server-stored blob it
// never interprets.
package opaque

import (
	"context"

	"github.com/giantswarm/phnx-homeserver/internal/apierrors"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

// RegistrationRequest is the client's first message, opaque to this package.
type RegistrationRequest struct {
	Blob []byte
}

// RegistrationResponse is the server's reply, produced by the Exchange and
// returned to the client unmodified.
type RegistrationResponse struct {
	Blob []byte
}

// RegistrationUpload is the client's second message, carrying the data the
// Exchange turns into a storable RegistrationRecord.
type RegistrationUpload struct {
	Blob []byte
}

// RegistrationRecord is what gets persisted against a UserId. Its contents
// are meaningless to this package; only the Exchange implementation
// interprets them.
type RegistrationRecord struct {
	Blob []byte
}

// Exchange is the external collaborator boundary for the OPAQUE protocol
// itself. A production deployment wires this to whatever OPAQUE
// implementation the operator chooses; this package never constructs one.
type Exchange interface {
	// CreateRegistrationResponse answers the client's opening message.
	CreateRegistrationResponse(ctx context.Context, userID ids.UserId, req RegistrationRequest) (RegistrationResponse, error)
	// FinalizeRegistration turns the client's upload into a storable record.
	FinalizeRegistration(ctx context.Context, userID ids.UserId, upload RegistrationUpload) (RegistrationRecord, error)
}

// RecordStore persists the finished RegistrationRecord. A Postgres
// implementation lives alongside the rest of internal/storage's adapters.
type RecordStore interface {
	PutRecord(ctx context.Context, userID ids.UserId, record RegistrationRecord) error
	GetRecord(ctx context.Context, userID ids.UserId) (RegistrationRecord, error)
}

// Orchestrator drives the two round trips of registration against an
// Exchange and persists the result via a RecordStore.
type Orchestrator struct {
	exchange Exchange
	records  RecordStore
}

func NewOrchestrator(exchange Exchange, records RecordStore) *Orchestrator {
	return &Orchestrator{exchange: exchange, records: records}
}

// BeginRegistration is the server side of the first round trip.
func (o *Orchestrator) BeginRegistration(ctx context.Context, userID ids.UserId, req RegistrationRequest) (RegistrationResponse, error) {
	resp, err := o.exchange.CreateRegistrationResponse(ctx, userID, req)
	if err != nil {
		return RegistrationResponse{}, apierrors.Authenticationf("opaque_registration", "creating registration response", err)
	}
	return resp, nil
}

// FinishRegistration is the server side of the second round trip: it
// finalizes the exchange and persists the resulting record through
// RecordStore.PutRecord. That write is a call of its own: it shares no
// transaction with the creation of the user's client credential.
func (o *Orchestrator) FinishRegistration(ctx context.Context, userID ids.UserId, upload RegistrationUpload) (RegistrationRecord, error) {
	record, err := o.exchange.FinalizeRegistration(ctx, userID, upload)
	if err != nil {
		return RegistrationRecord{}, apierrors.Authenticationf("opaque_registration", "finalizing registration", err)
	}
	if err := o.records.PutRecord(ctx, userID, record); err != nil {
		return RegistrationRecord{}, apierrors.Storagef("opaque_registration", "persisting record", err)
	}
	return record, nil
}
