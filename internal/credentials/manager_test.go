package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/giantswarm/phnx-homeserver/internal/apierrors"
	"github.com/giantswarm/phnx-homeserver/internal/credentials/credentialstest"
	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

func setupManager(t *testing.T) (*Manager, KeyPair, fqdn.Fqdn) {
	t.Helper()
	domain := fqdn.MustParse("example.com")
	store := credentialstest.New()

	rootKp, err := GenerateKeyPair(Ed25519)
	require.NoError(t, err)
	root := AsRootCredential{
		Domain:       domain,
		VerifyingKey: rootKp.Public,
		Fingerprint:  ids.FingerprintOf(rootKp.Public),
		NotAfter:     time.Now().Add(10 * 365 * 24 * time.Hour),
	}
	require.NoError(t, store.PutRoot(context.Background(), root))

	mgr := NewManager(domain, store)
	return mgr, rootKp, domain
}

// Activating credential c leaves exactly one active intermediate for that
// domain, namely c.
func TestActivate_ExactlyOneActive(t *testing.T) {
	ctx := context.Background()
	mgr, rootKp, _ := setupManager(t)

	first, _, err := mgr.IssueIntermediate(ctx, rootKp, Ed25519, 90*24*time.Hour)
	require.NoError(t, err)
	second, _, err := mgr.IssueIntermediate(ctx, rootKp, Ed25519, 90*24*time.Hour)
	require.NoError(t, err)

	require.NoError(t, mgr.Activate(ctx, first.Fingerprint))
	require.NoError(t, mgr.Activate(ctx, second.Fingerprint))

	bundle, err := mgr.ListForDiscovery(ctx)
	require.NoError(t, err)

	activeCount := 0
	for _, ic := range bundle.Intermediates {
		if ic.State == StateActive {
			activeCount++
			require.True(t, ic.Fingerprint.Equal(second.Fingerprint))
		}
	}
	require.Equal(t, 1, activeCount)
}

// A client credential signed by an intermediate verifies correctly, and
// keeps verifying after that intermediate is rotated out and retired.
func TestVerifyClientCredential_RetiredSignerStillVerifies(t *testing.T) {
	ctx := context.Background()
	mgr, rootKp, domain := setupManager(t)

	intermediate, intermediateKp, err := mgr.IssueIntermediate(ctx, rootKp, Ed25519, 90*24*time.Hour)
	require.NoError(t, err)
	require.NoError(t, mgr.Activate(ctx, intermediate.Fingerprint))

	clientKp, err := GenerateKeyPair(Ed25519)
	require.NoError(t, err)
	userID := ids.NewUserId(domain)
	notAfter := time.Now().Add(24 * time.Hour)

	sig := SignClientBody(intermediateKp, userID, clientKp.Public, notAfter)
	v := VerifiableClientCredential{
		UserId:                   userID,
		VerifyingKey:             clientKp.Public,
		Signature:                sig,
		NotAfter:                 notAfter,
		ClientCredentialSignerFp: intermediate.Fingerprint,
		SignerDomain:             domain,
	}

	cred, err := mgr.VerifyClientCredential(ctx, v)
	require.NoError(t, err)
	require.True(t, cred.SignedByFp.Equal(intermediate.Fingerprint))

	// Rotate: a third intermediate becomes active, retiring `intermediate`.
	third, _, err := mgr.IssueIntermediate(ctx, rootKp, Ed25519, 90*24*time.Hour)
	require.NoError(t, err)
	require.NoError(t, mgr.Activate(ctx, third.Fingerprint))

	got, err := mgr.Get(ctx, domain, intermediate.Fingerprint)
	require.NoError(t, err)
	require.Equal(t, StateRetired, got.State)

	// The signature made while `intermediate` was still active must still
	// verify now that it is retired.
	cred2, err := mgr.VerifyClientCredential(ctx, v)
	require.NoError(t, err)
	require.True(t, cred2.Fingerprint.Equal(cred.Fingerprint))
}

func TestVerifyClientCredential_TamperedSignatureRejected(t *testing.T) {
	ctx := context.Background()
	mgr, rootKp, domain := setupManager(t)

	intermediate, intermediateKp, err := mgr.IssueIntermediate(ctx, rootKp, Ed25519, 90*24*time.Hour)
	require.NoError(t, err)
	require.NoError(t, mgr.Activate(ctx, intermediate.Fingerprint))

	clientKp, err := GenerateKeyPair(Ed25519)
	require.NoError(t, err)
	notAfter := time.Now().Add(time.Hour)
	sig := SignClientBody(intermediateKp, ids.NewUserId(domain), clientKp.Public, notAfter)
	sig[0] ^= 0xFF

	v := VerifiableClientCredential{
		UserId:                   ids.NewUserId(domain),
		VerifyingKey:             clientKp.Public,
		Signature:                sig,
		NotAfter:                 notAfter,
		ClientCredentialSignerFp: intermediate.Fingerprint,
		SignerDomain:             domain,
	}
	_, err = mgr.VerifyClientCredential(ctx, v)
	require.Error(t, err)
	require.True(t, apierrors.IsAuthentication(err))
}

func TestVerifyClientCredential_UnknownSignerWithoutDiscoverer(t *testing.T) {
	ctx := context.Background()
	mgr, _, domain := setupManager(t)

	clientKp, err := GenerateKeyPair(Ed25519)
	require.NoError(t, err)
	notAfter := time.Now().Add(time.Hour)
	bogusFp := ids.FingerprintOf([]byte("nonexistent"))

	v := VerifiableClientCredential{
		UserId:                   ids.NewUserId(domain),
		VerifyingKey:             clientKp.Public,
		Signature:                []byte("not-a-real-signature"),
		NotAfter:                 notAfter,
		ClientCredentialSignerFp: bogusFp,
		SignerDomain:             domain,
	}

	_, err = mgr.VerifyClientCredential(ctx, v)
	require.Error(t, err)
}

func TestIssueIntermediate_NoRoot_Fails(t *testing.T) {
	ctx := context.Background()
	domain := fqdn.MustParse("example.com")
	store := credentialstest.New()
	mgr := NewManager(domain, store)

	rootKp, err := GenerateKeyPair(Ed25519)
	require.NoError(t, err)

	_, _, err = mgr.IssueIntermediate(ctx, rootKp, Ed25519, time.Hour)
	require.Error(t, err)
}
