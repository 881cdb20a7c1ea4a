package credentials

import (
	"context"

	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

// Store is the persistence port C1 is built on. A Postgres implementation
// lives in internal/storage; tests use an in-memory one (see memstore.go).
//
// Activation must be atomic: ActivateIntermediate is the only place a second
// credential may ever observe itself as active, and it must leave exactly
// one row with State == StateActive for the domain.
type Store interface {
	PutRoot(ctx context.Context, root AsRootCredential) error
	GetRoot(ctx context.Context, domain fqdn.Fqdn) (AsRootCredential, error)

	PutIntermediate(ctx context.Context, cred AsIntermediateCredential) error
	GetIntermediate(ctx context.Context, domain fqdn.Fqdn, fp ids.CredentialFingerprint) (AsIntermediateCredential, error)
	// ActivateIntermediate flips State to StateActive for fp and StateRetired
	// for every other intermediate of the domain, in one transaction.
	ActivateIntermediate(ctx context.Context, domain fqdn.Fqdn, fp ids.CredentialFingerprint) error
	ActiveIntermediate(ctx context.Context, domain fqdn.Fqdn) (AsIntermediateCredential, error)
	ListIntermediates(ctx context.Context, domain fqdn.Fqdn) ([]AsIntermediateCredential, error)
	ListRevokedFingerprints(ctx context.Context, domain fqdn.Fqdn) ([]ids.CredentialFingerprint, error)

	PutClientCredential(ctx context.Context, cred ClientCredential) error
	GetClientCredential(ctx context.Context, fp ids.CredentialFingerprint) (ClientCredential, error)
}
