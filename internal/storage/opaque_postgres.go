package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/giantswarm/phnx-homeserver/internal/ids"
	"github.com/giantswarm/phnx-homeserver/internal/opaque"
)

// pgOpaqueRecordStore implements opaque.RecordStore against the
// as_client_records table, storing the finished registration record
// alongside the client credential row it accompanies.
type pgOpaqueRecordStore struct {
	pool *Pool
}

// NewOpaqueRecordStore returns the Postgres-backed opaque.RecordStore.
func NewOpaqueRecordStore(pool *Pool) opaque.RecordStore {
	return &pgOpaqueRecordStore{pool: pool}
}

func (s *pgOpaqueRecordStore) PutRecord(ctx context.Context, userID ids.UserId, record opaque.RegistrationRecord) error {
	sql := `
		UPDATE as_client_records
		SET opaque_record = $1
		WHERE user_uuid = $2 AND user_domain = $3`
	tag, err := s.pool.Exec(ctx, sql, record.Blob, userID.UUID.String(), userID.Domain.String())
	if err != nil {
		return fmt.Errorf("storage: storing opaque record for %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: no client record for %s to attach opaque record to", userID)
	}
	return nil
}

func (s *pgOpaqueRecordStore) GetRecord(ctx context.Context, userID ids.UserId) (opaque.RegistrationRecord, error) {
	sql := `SELECT opaque_record FROM as_client_records WHERE user_uuid = $1 AND user_domain = $2`
	var blob []byte
	err := s.pool.QueryRow(ctx, sql, userID.UUID.String(), userID.Domain.String()).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return opaque.RegistrationRecord{}, fmt.Errorf("storage: no opaque record for %s", userID)
	}
	if err != nil {
		return opaque.RegistrationRecord{}, fmt.Errorf("storage: loading opaque record for %s: %w", userID, err)
	}
	return opaque.RegistrationRecord{Blob: blob}, nil
}
