package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/giantswarm/phnx-homeserver/internal/ids"
	"github.com/giantswarm/phnx-homeserver/internal/qs"
)

// pgQSStore implements qs.Store: the QsClientId -> (QsUserId, queue
// encryption key) registry in qs_client_records. It never stores or
// references a UserId, per the QS's unlinkability requirement.
type pgQSStore struct {
	pool *Pool
}

// NewQSStore returns the Postgres-backed qs.Store.
func NewQSStore(pool *Pool) qs.Store { return &pgQSStore{pool: pool} }

func (s *pgQSStore) PutClientRecord(ctx context.Context, rec qs.ClientRecord) error {
	sql := `
		INSERT INTO qs_client_records (client_id, qs_user_id, queue_encryption_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (client_id) DO UPDATE SET
			qs_user_id = EXCLUDED.qs_user_id,
			queue_encryption_key = EXCLUDED.queue_encryption_key`
	_, err := s.pool.Exec(ctx, sql, uuid.UUID(rec.ClientId).String(), uuid.UUID(rec.UserId).String(), rec.QueueEncryptionKey)
	if err != nil {
		return fmt.Errorf("storage: storing qs client record %s: %w", rec.ClientId, err)
	}
	return nil
}

func (s *pgQSStore) GetClientRecord(ctx context.Context, clientID ids.QsClientId) (qs.ClientRecord, error) {
	sql := `SELECT qs_user_id, queue_encryption_key FROM qs_client_records WHERE client_id = $1`
	var qsUserRaw string
	var key []byte
	err := s.pool.QueryRow(ctx, sql, uuid.UUID(clientID).String()).Scan(&qsUserRaw, &key)
	if errors.Is(err, pgx.ErrNoRows) {
		return qs.ClientRecord{}, fmt.Errorf("storage: no qs client record for %s", clientID)
	}
	if err != nil {
		return qs.ClientRecord{}, fmt.Errorf("storage: loading qs client record %s: %w", clientID, err)
	}
	qsUser, err := uuid.Parse(qsUserRaw)
	if err != nil {
		return qs.ClientRecord{}, fmt.Errorf("storage: parsing qs user id for %s: %w", clientID, err)
	}
	return qs.ClientRecord{ClientId: clientID, UserId: ids.QsUserId(qsUser), QueueEncryptionKey: key}, nil
}

func (s *pgQSStore) DeleteClientRecord(ctx context.Context, clientID ids.QsClientId) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM qs_client_records WHERE client_id = $1`, uuid.UUID(clientID).String()); err != nil {
		return fmt.Errorf("storage: deleting qs client record %s: %w", clientID, err)
	}
	return nil
}
