package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/giantswarm/phnx-homeserver/internal/as"
	"github.com/giantswarm/phnx-homeserver/internal/credentials"
	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
	"github.com/giantswarm/phnx-homeserver/internal/queue"
)

// pgASStore implements as.Store: per-user connection packages, user
// profiles, the handle registry, and the AS queue id a registered user was
// minted, across as_connection_packages/as_user_profiles/as_handles/
// as_client_queues.
type pgASStore struct {
	pool *Pool
}

// NewASStore returns the Postgres-backed as.Store.
func NewASStore(pool *Pool) as.Store { return &pgASStore{pool: pool} }

func (s *pgASStore) PutConnectionPackages(ctx context.Context, userID ids.UserId, packages []as.ConnectionPackage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: starting connection package transaction for %s: %w", userID, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM as_connection_packages WHERE user_uuid = $1 AND user_domain = $2`,
		userID.UUID.String(), userID.Domain.String()); err != nil {
		return fmt.Errorf("storage: clearing connection packages for %s: %w", userID, err)
	}

	sql := `
		INSERT INTO as_connection_packages
			(user_uuid, user_domain, protocol_version, hpke_encryption_key, lifetime,
			 cred_user_uuid, cred_user_domain, cred_verifying_key, cred_signed_by_fp, cred_signature, cred_not_after,
			 signer_fp, signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	for _, pkg := range packages {
		_, err := tx.Exec(ctx, sql,
			userID.UUID.String(), userID.Domain.String(),
			pkg.ProtocolVersion, pkg.HpkeEncryptionKey[:], pkg.Lifetime,
			pkg.ClientCredential.UserId.UUID.String(), pkg.ClientCredential.UserId.Domain.String(),
			[]byte(pkg.ClientCredential.VerifyingKey), pkg.ClientCredential.SignedByFp.String(),
			pkg.ClientCredential.Signature, pkg.ClientCredential.NotAfter,
			pkg.ClientCredentialSignerFp.String(), pkg.Signature,
		)
		if err != nil {
			return fmt.Errorf("storage: storing connection package for %s: %w", userID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: committing connection packages for %s: %w", userID, err)
	}
	return nil
}

func (s *pgASStore) GetConnectionPackages(ctx context.Context, userID ids.UserId) ([]as.ConnectionPackage, error) {
	sql := `
		SELECT protocol_version, hpke_encryption_key, lifetime,
			cred_user_uuid, cred_user_domain, cred_verifying_key, cred_signed_by_fp, cred_signature, cred_not_after,
			signer_fp, signature
		FROM as_connection_packages
		WHERE user_uuid = $1 AND user_domain = $2`
	rows, err := s.pool.Query(ctx, sql, userID.UUID.String(), userID.Domain.String())
	if err != nil {
		return nil, fmt.Errorf("storage: listing connection packages for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []as.ConnectionPackage
	for rows.Next() {
		var pkg as.ConnectionPackage
		var hpkeKey []byte
		var credUserUUID, credUserDomain, signedByFpHex, signerFpHex string
		var credVerifyingKey, credSignature []byte
		var credNotAfter time.Time

		if err := rows.Scan(&pkg.ProtocolVersion, &hpkeKey, &pkg.Lifetime,
			&credUserUUID, &credUserDomain, &credVerifyingKey, &signedByFpHex, &credSignature, &credNotAfter,
			&signerFpHex, &pkg.Signature); err != nil {
			return nil, fmt.Errorf("storage: scanning connection package for %s: %w", userID, err)
		}
		if len(hpkeKey) != len(pkg.HpkeEncryptionKey) {
			return nil, fmt.Errorf("storage: connection package for %s has malformed hpke key", userID)
		}
		copy(pkg.HpkeEncryptionKey[:], hpkeKey)

		credDomain, err := fqdn.Parse(credUserDomain)
		if err != nil {
			return nil, fmt.Errorf("storage: parsing credential domain for %s: %w", userID, err)
		}
		credUser, err := parseUserID(credUserUUID, credDomain)
		if err != nil {
			return nil, fmt.Errorf("storage: parsing credential user id for %s: %w", userID, err)
		}
		pkg.ClientCredential = credentials.ClientCredential{
			UserId:       credUser,
			VerifyingKey: credVerifyingKey,
			Fingerprint:  fingerprintFromHex(signerFpHex),
			SignedByFp:   fingerprintFromHex(signedByFpHex),
			Signature:    credSignature,
			NotAfter:     credNotAfter,
		}
		pkg.ClientCredentialSignerFp = fingerprintFromHex(signerFpHex)
		out = append(out, pkg)
	}
	return out, rows.Err()
}

func (s *pgASStore) PutUserProfile(ctx context.Context, entry as.UserProfileEntry) error {
	sql := `
		INSERT INTO as_user_profiles (user_uuid, user_domain, key_index, encrypted_profile)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_uuid, user_domain, key_index) DO UPDATE SET encrypted_profile = EXCLUDED.encrypted_profile`
	_, err := s.pool.Exec(ctx, sql, entry.UserId.UUID.String(), entry.UserId.Domain.String(), entry.KeyIndex, entry.EncryptedProfile)
	if err != nil {
		return fmt.Errorf("storage: storing user profile for %s: %w", entry.UserId, err)
	}
	return nil
}

func (s *pgASStore) GetUserProfile(ctx context.Context, userID ids.UserId, keyIndex uint32) (as.UserProfileEntry, error) {
	sql := `SELECT encrypted_profile FROM as_user_profiles WHERE user_uuid = $1 AND user_domain = $2 AND key_index = $3`
	var encrypted []byte
	err := s.pool.QueryRow(ctx, sql, userID.UUID.String(), userID.Domain.String(), keyIndex).Scan(&encrypted)
	if errors.Is(err, pgx.ErrNoRows) {
		return as.UserProfileEntry{}, fmt.Errorf("storage: no user profile for %s at index %d", userID, keyIndex)
	}
	if err != nil {
		return as.UserProfileEntry{}, fmt.Errorf("storage: loading user profile for %s: %w", userID, err)
	}
	return as.UserProfileEntry{UserId: userID, KeyIndex: keyIndex, EncryptedProfile: encrypted}, nil
}

func (s *pgASStore) CreateHandle(ctx context.Context, rec as.HandleRecord) (bool, error) {
	sql := `
		INSERT INTO as_handles (hash, user_uuid, user_domain, verifying_key, queue_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (hash) DO NOTHING`
	tag, err := s.pool.Exec(ctx, sql, rec.Hash[:], rec.UserId.UUID.String(), rec.UserId.Domain.String(),
		[]byte(rec.VerifyingKey), uuid.UUID(rec.QueueId).String())
	if err != nil {
		return false, fmt.Errorf("storage: creating handle for %s: %w", rec.UserId, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *pgASStore) GetHandle(ctx context.Context, hash ids.UserHandleHash) (as.HandleRecord, error) {
	sql := `SELECT user_uuid, user_domain, verifying_key, queue_id FROM as_handles WHERE hash = $1`
	var userUUID, userDomain, queueIDRaw string
	var verifyingKey []byte
	err := s.pool.QueryRow(ctx, sql, hash[:]).Scan(&userUUID, &userDomain, &verifyingKey, &queueIDRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return as.HandleRecord{}, fmt.Errorf("storage: no handle %x", hash)
	}
	if err != nil {
		return as.HandleRecord{}, fmt.Errorf("storage: loading handle %x: %w", hash, err)
	}
	domain, err := fqdn.Parse(userDomain)
	if err != nil {
		return as.HandleRecord{}, fmt.Errorf("storage: parsing domain for handle %x: %w", hash, err)
	}
	userID, err := parseUserID(userUUID, domain)
	if err != nil {
		return as.HandleRecord{}, fmt.Errorf("storage: parsing user id for handle %x: %w", hash, err)
	}
	parsedQueueID, err := uuid.Parse(queueIDRaw)
	if err != nil {
		return as.HandleRecord{}, fmt.Errorf("storage: parsing queue id for handle %x: %w", hash, err)
	}
	return as.HandleRecord{Hash: hash, UserId: userID, VerifyingKey: verifyingKey, QueueId: queue.Id(parsedQueueID)}, nil
}

func (s *pgASStore) DeleteHandle(ctx context.Context, hash ids.UserHandleHash) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM as_handles WHERE hash = $1`, hash[:]); err != nil {
		return fmt.Errorf("storage: deleting handle %x: %w", hash, err)
	}
	return nil
}

func (s *pgASStore) ClientQueueId(ctx context.Context, userID ids.UserId) (queue.Id, error) {
	sql := `SELECT queue_id FROM as_client_queues WHERE user_uuid = $1 AND user_domain = $2`
	var queueIDRaw string
	err := s.pool.QueryRow(ctx, sql, userID.UUID.String(), userID.Domain.String()).Scan(&queueIDRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.Id{}, fmt.Errorf("storage: no client queue id for %s", userID)
	}
	if err != nil {
		return queue.Id{}, fmt.Errorf("storage: loading client queue id for %s: %w", userID, err)
	}
	parsed, err := uuid.Parse(queueIDRaw)
	if err != nil {
		return queue.Id{}, fmt.Errorf("storage: parsing client queue id for %s: %w", userID, err)
	}
	return queue.Id(parsed), nil
}

func (s *pgASStore) PutClientQueueId(ctx context.Context, userID ids.UserId, id queue.Id) error {
	sql := `
		INSERT INTO as_client_queues (user_uuid, user_domain, queue_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_uuid, user_domain) DO UPDATE SET queue_id = EXCLUDED.queue_id`
	_, err := s.pool.Exec(ctx, sql, userID.UUID.String(), userID.Domain.String(), uuid.UUID(id).String())
	if err != nil {
		return fmt.Errorf("storage: storing client queue id for %s: %w", userID, err)
	}
	return nil
}
