package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/giantswarm/phnx-homeserver/internal/credentials"
	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

// pgCredentialStore implements credentials.Store. Root and intermediate
// credentials live in as_signing_key; client credentials live in
// as_client_records, per the specification's named tables.
type pgCredentialStore struct {
	pool *Pool
}

// NewCredentialStore returns the Postgres-backed credentials.Store.
func NewCredentialStore(pool *Pool) credentials.Store { return &pgCredentialStore{pool: pool} }

func (s *pgCredentialStore) PutRoot(ctx context.Context, root credentials.AsRootCredential) error {
	sql := `
		INSERT INTO as_signing_key (fingerprint, domain, kind, verifying_key, signed_by_fp, signature, state, not_after)
		VALUES ($1, $2, 'root', $3, NULL, $4, 'active', $5)
		ON CONFLICT (fingerprint) DO NOTHING`
	_, err := s.pool.Exec(ctx, sql, root.Fingerprint.String(), root.Domain.String(), []byte(root.VerifyingKey), root.Signature, root.NotAfter)
	if err != nil {
		return fmt.Errorf("storage: storing root credential for %s: %w", root.Domain, err)
	}
	return nil
}

func (s *pgCredentialStore) GetRoot(ctx context.Context, domain fqdn.Fqdn) (credentials.AsRootCredential, error) {
	sql := `
		SELECT fingerprint, verifying_key, signature, not_after
		FROM as_signing_key
		WHERE domain = $1 AND kind = 'root'
		ORDER BY not_after DESC
		LIMIT 1`
	var verifyingKey, sig []byte
	var notAfter time.Time
	row := s.pool.QueryRow(ctx, sql, domain.String())
	var fingerprintHex string
	if err := row.Scan(&fingerprintHex, &verifyingKey, &sig, &notAfter); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return credentials.AsRootCredential{}, fmt.Errorf("storage: no root credential for %s", domain)
		}
		return credentials.AsRootCredential{}, fmt.Errorf("storage: loading root credential for %s: %w", domain, err)
	}
	return credentials.AsRootCredential{
		Domain:       domain,
		VerifyingKey: verifyingKey,
		Fingerprint:  fingerprintFromHex(fingerprintHex),
		Signature:    sig,
		NotAfter:     notAfter,
	}, nil
}

func (s *pgCredentialStore) PutIntermediate(ctx context.Context, cred credentials.AsIntermediateCredential) error {
	sql := `
		INSERT INTO as_signing_key (fingerprint, domain, kind, verifying_key, signed_by_fp, signature, state, not_after)
		VALUES ($1, $2, 'intermediate', $3, $4, $5, $6, $7)
		ON CONFLICT (fingerprint) DO UPDATE SET state = EXCLUDED.state`
	_, err := s.pool.Exec(ctx, sql,
		cred.Fingerprint.String(), cred.Domain.String(), []byte(cred.VerifyingKey),
		cred.SignedByFp.String(), cred.Signature, string(cred.State), cred.NotAfter)
	if err != nil {
		return fmt.Errorf("storage: storing intermediate credential for %s: %w", cred.Domain, err)
	}
	return nil
}

func (s *pgCredentialStore) GetIntermediate(ctx context.Context, domain fqdn.Fqdn, fp ids.CredentialFingerprint) (credentials.AsIntermediateCredential, error) {
	sql := `
		SELECT verifying_key, signed_by_fp, signature, state, not_after
		FROM as_signing_key
		WHERE domain = $1 AND fingerprint = $2 AND kind = 'intermediate'`
	var verifyingKey, sig []byte
	var signedByFpHex, state string
	var notAfter time.Time
	err := s.pool.QueryRow(ctx, sql, domain.String(), fp.String()).Scan(&verifyingKey, &signedByFpHex, &sig, &state, &notAfter)
	if errors.Is(err, pgx.ErrNoRows) {
		return credentials.AsIntermediateCredential{}, fmt.Errorf("storage: no intermediate credential %s for %s", fp, domain)
	}
	if err != nil {
		return credentials.AsIntermediateCredential{}, fmt.Errorf("storage: loading intermediate credential %s for %s: %w", fp, domain, err)
	}
	return credentials.AsIntermediateCredential{
		Domain:       domain,
		VerifyingKey: verifyingKey,
		Fingerprint:  fp,
		SignedByFp:   fingerprintFromHex(signedByFpHex),
		Signature:    sig,
		State:        credentials.IntermediateState(state),
		NotAfter:     notAfter,
	}, nil
}

func (s *pgCredentialStore) ActivateIntermediate(ctx context.Context, domain fqdn.Fqdn, fp ids.CredentialFingerprint) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: starting activation transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE as_signing_key SET state = 'retired'
		WHERE domain = $1 AND kind = 'intermediate' AND state = 'active'`, domain.String()); err != nil {
		return fmt.Errorf("storage: retiring active intermediates for %s: %w", domain, err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE as_signing_key SET state = 'active'
		WHERE domain = $1 AND kind = 'intermediate' AND fingerprint = $2`, domain.String(), fp.String())
	if err != nil {
		return fmt.Errorf("storage: activating intermediate %s for %s: %w", fp, domain, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: intermediate %s not found for %s", fp, domain)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: committing activation for %s: %w", domain, err)
	}
	return nil
}

func (s *pgCredentialStore) ActiveIntermediate(ctx context.Context, domain fqdn.Fqdn) (credentials.AsIntermediateCredential, error) {
	sql := `
		SELECT fingerprint, verifying_key, signed_by_fp, signature, not_after
		FROM as_signing_key
		WHERE domain = $1 AND kind = 'intermediate' AND state = 'active'`
	var fpHex, signedByFpHex string
	var verifyingKey, sig []byte
	var notAfter time.Time
	err := s.pool.QueryRow(ctx, sql, domain.String()).Scan(&fpHex, &verifyingKey, &signedByFpHex, &sig, &notAfter)
	if errors.Is(err, pgx.ErrNoRows) {
		return credentials.AsIntermediateCredential{}, fmt.Errorf("storage: no active intermediate for %s", domain)
	}
	if err != nil {
		return credentials.AsIntermediateCredential{}, fmt.Errorf("storage: loading active intermediate for %s: %w", domain, err)
	}
	return credentials.AsIntermediateCredential{
		Domain:       domain,
		VerifyingKey: verifyingKey,
		Fingerprint:  fingerprintFromHex(fpHex),
		SignedByFp:   fingerprintFromHex(signedByFpHex),
		Signature:    sig,
		State:        credentials.StateActive,
		NotAfter:     notAfter,
	}, nil
}

func (s *pgCredentialStore) ListIntermediates(ctx context.Context, domain fqdn.Fqdn) ([]credentials.AsIntermediateCredential, error) {
	sql := `
		SELECT fingerprint, verifying_key, signed_by_fp, signature, state, not_after
		FROM as_signing_key
		WHERE domain = $1 AND kind = 'intermediate'`
	rows, err := s.pool.Query(ctx, sql, domain.String())
	if err != nil {
		return nil, fmt.Errorf("storage: listing intermediates for %s: %w", domain, err)
	}
	defer rows.Close()

	var out []credentials.AsIntermediateCredential
	for rows.Next() {
		var fpHex, signedByFpHex, state string
		var verifyingKey, sig []byte
		var notAfter time.Time
		if err := rows.Scan(&fpHex, &verifyingKey, &signedByFpHex, &sig, &state, &notAfter); err != nil {
			return nil, fmt.Errorf("storage: scanning intermediate row for %s: %w", domain, err)
		}
		out = append(out, credentials.AsIntermediateCredential{
			Domain:       domain,
			VerifyingKey: verifyingKey,
			Fingerprint:  fingerprintFromHex(fpHex),
			SignedByFp:   fingerprintFromHex(signedByFpHex),
			Signature:    sig,
			State:        credentials.IntermediateState(state),
			NotAfter:     notAfter,
		})
	}
	return out, rows.Err()
}

func (s *pgCredentialStore) ListRevokedFingerprints(ctx context.Context, domain fqdn.Fqdn) ([]ids.CredentialFingerprint, error) {
	sql := `SELECT fingerprint FROM as_signing_key WHERE domain = $1 AND state = 'revoked'`
	rows, err := s.pool.Query(ctx, sql, domain.String())
	if err != nil {
		return nil, fmt.Errorf("storage: listing revoked fingerprints for %s: %w", domain, err)
	}
	defer rows.Close()

	var out []ids.CredentialFingerprint
	for rows.Next() {
		var fpHex string
		if err := rows.Scan(&fpHex); err != nil {
			return nil, fmt.Errorf("storage: scanning revoked fingerprint for %s: %w", domain, err)
		}
		out = append(out, fingerprintFromHex(fpHex))
	}
	return out, rows.Err()
}

func (s *pgCredentialStore) PutClientCredential(ctx context.Context, cred credentials.ClientCredential) error {
	sql := `
		INSERT INTO as_client_records (user_uuid, user_domain, fingerprint, verifying_key, signed_by_fp, signature, not_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (fingerprint) DO NOTHING`
	_, err := s.pool.Exec(ctx, sql,
		cred.UserId.UUID.String(), cred.UserId.Domain.String(), cred.Fingerprint.String(),
		[]byte(cred.VerifyingKey), cred.SignedByFp.String(), cred.Signature, cred.NotAfter)
	if err != nil {
		return fmt.Errorf("storage: storing client credential for %s: %w", cred.UserId, err)
	}
	return nil
}

func (s *pgCredentialStore) GetClientCredential(ctx context.Context, fp ids.CredentialFingerprint) (credentials.ClientCredential, error) {
	sql := `
		SELECT user_uuid, user_domain, verifying_key, signed_by_fp, signature, not_after
		FROM as_client_records
		WHERE fingerprint = $1`
	var userUUID, userDomain, signedByFpHex string
	var verifyingKey, sig []byte
	var notAfter time.Time
	err := s.pool.QueryRow(ctx, sql, fp.String()).Scan(&userUUID, &userDomain, &verifyingKey, &signedByFpHex, &sig, &notAfter)
	if errors.Is(err, pgx.ErrNoRows) {
		return credentials.ClientCredential{}, fmt.Errorf("storage: no client credential %s", fp)
	}
	if err != nil {
		return credentials.ClientCredential{}, fmt.Errorf("storage: loading client credential %s: %w", fp, err)
	}

	domain, err := fqdn.Parse(userDomain)
	if err != nil {
		return credentials.ClientCredential{}, fmt.Errorf("storage: parsing domain for client credential %s: %w", fp, err)
	}
	userID, err := parseUserID(userUUID, domain)
	if err != nil {
		return credentials.ClientCredential{}, fmt.Errorf("storage: parsing user id for client credential %s: %w", fp, err)
	}

	return credentials.ClientCredential{
		UserId:       userID,
		VerifyingKey: verifyingKey,
		Fingerprint:  fp,
		SignedByFp:   fingerprintFromHex(signedByFpHex),
		Signature:    sig,
		NotAfter:     notAfter,
	}, nil
}
