package credentials

import (
	"context"
	"crypto/ed25519"
	"log/slog"
	"time"

	"github.com/giantswarm/phnx-homeserver/internal/apierrors"
	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
	"github.com/giantswarm/phnx-homeserver/internal/logging"
)

// PeerDiscoverer fetches another domain's discovery bundle. It is the
// federation boundary: verifying a credential signed by a fingerprint this
// domain has never seen triggers exactly one fetch through here before the
// lookup fails UnknownSigner.
type PeerDiscoverer interface {
	Discover(ctx context.Context, domain fqdn.Fqdn) (DiscoveryBundle, error)
}

// Manager implements the C1 contract against a Store and, for credentials
// signed by an intermediate this domain doesn't recognize yet, a
// PeerDiscoverer.
type Manager struct {
	domain     fqdn.Fqdn
	store      Store
	discoverer PeerDiscoverer
	logger     *slog.Logger
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithDiscoverer(d PeerDiscoverer) Option {
	return func(m *Manager) { m.discoverer = d }
}

func NewManager(domain fqdn.Fqdn, store Store, opts ...Option) *Manager {
	m := &Manager{domain: domain, store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Signer is the capability trait a root or intermediate credential's holder
// exposes to sign the next credential down the chain. The root's signing key
// is normally held offline (per an out-of-band signing ceremony), so
// IssueIntermediate takes the signer explicitly rather than reaching into
// the Store for it.
type Signer interface {
	Sign(body []byte) []byte
}

// IssueIntermediate generates a fresh intermediate keypair, signs it with
// rootSigner (the domain's active root key), and stores it pending (not yet
// active). It fails if no active root credential is registered — a domain
// must bootstrap its root out-of-band before it can mint intermediates.
//
// The returned KeyPair holds the intermediate's private signing half. The
// Store (and therefore DiscoveryBundle) only ever carries the public
// AsIntermediateCredential; whoever calls IssueIntermediate is responsible
// for holding onto the private key for as long as they intend to sign client
// credentials with it — the Manager never persists private key material.
func (m *Manager) IssueIntermediate(ctx context.Context, rootSigner Signer, scheme SignatureScheme, lifetime time.Duration) (AsIntermediateCredential, KeyPair, error) {
	root, err := m.store.GetRoot(ctx, m.domain)
	if err != nil {
		return AsIntermediateCredential{}, KeyPair{}, apierrors.NotFoundf("as_root_credential", "no root credential for domain "+m.domain.String())
	}

	kp, err := GenerateKeyPair(scheme)
	if err != nil {
		return AsIntermediateCredential{}, KeyPair{}, apierrors.Storagef("as_intermediate", "generating keypair", err)
	}

	notAfter := time.Now().Add(lifetime)
	body := intermediateBody(m.domain.String(), kp.Public, notAfter)
	sig := rootSigner.Sign(body)

	cred := AsIntermediateCredential{
		Domain:       m.domain,
		VerifyingKey: kp.Public,
		Fingerprint:  ids.FingerprintOf(body),
		SignedByFp:   root.Fingerprint,
		Signature:    sig,
		State:        StatePending,
		NotAfter:     notAfter,
	}

	if err := m.store.PutIntermediate(ctx, cred); err != nil {
		return AsIntermediateCredential{}, KeyPair{}, apierrors.Storagef("as_intermediate", "persisting", err)
	}
	m.logger.Info("issued AS intermediate credential",
		slog.String("domain", m.domain.String()),
		slog.String("fingerprint", cred.Fingerprint.String()))
	return cred, kp, nil
}

// IssueClientCredential signs a freshly-registering client's verifying key
// with the domain's active intermediate (passed explicitly as
// intermediateSigner — the same private-key-never-in-the-Store rule
// IssueIntermediate follows) and persists the resulting ClientCredential.
// Callers are expected to already hold intermediateSigner from the KeyPair
// IssueIntermediate returned at mint time.
func (m *Manager) IssueClientCredential(ctx context.Context, userID ids.UserId, verifyingKey ed25519.PublicKey, lifetime time.Duration, intermediateSigner Signer, signerFp ids.CredentialFingerprint) (ClientCredential, error) {
	notAfter := time.Now().Add(lifetime)
	body := clientBody(userID, verifyingKey, notAfter)
	sig := intermediateSigner.Sign(body)

	cred := ClientCredential{
		UserId:       userID,
		VerifyingKey: verifyingKey,
		Fingerprint:  ids.FingerprintOf(body),
		SignedByFp:   signerFp,
		Signature:    sig,
		NotAfter:     notAfter,
	}
	if err := m.store.PutClientCredential(ctx, cred); err != nil {
		return ClientCredential{}, apierrors.Storagef("client_credential", "persisting for "+userID.String(), err)
	}
	m.logger.Info("issued client credential", logging.UserHash(userID.String()), slog.String("fingerprint", cred.Fingerprint.String()))
	return cred, nil
}

// Activate flips the single "currently active" flag to the intermediate
// identified by fp, within one atomic transaction. Every other intermediate
// for the domain becomes retired as a side effect; none are deleted, since
// signatures made under a retired key must remain verifiable.
func (m *Manager) Activate(ctx context.Context, fp ids.CredentialFingerprint) error {
	if err := m.store.ActivateIntermediate(ctx, m.domain, fp); err != nil {
		return apierrors.Storagef("as_intermediate", "activating "+fp.String(), err)
	}
	m.logger.Info("activated AS intermediate credential",
		slog.String("domain", m.domain.String()),
		slog.String("fingerprint", fp.String()))
	return nil
}

// Get returns the intermediate (active or retired) matching fp, for
// signature verification purposes.
func (m *Manager) Get(ctx context.Context, domain fqdn.Fqdn, fp ids.CredentialFingerprint) (AsIntermediateCredential, error) {
	cred, err := m.store.GetIntermediate(ctx, domain, fp)
	if err != nil {
		return AsIntermediateCredential{}, apierrors.NotFoundf("as_intermediate", fp.String())
	}
	return cred, nil
}

// ListForDiscovery returns the public discovery bundle peers cache and
// re-validate periodically.
func (m *Manager) ListForDiscovery(ctx context.Context) (DiscoveryBundle, error) {
	root, err := m.store.GetRoot(ctx, m.domain)
	if err != nil {
		return DiscoveryBundle{}, apierrors.NotFoundf("as_root_credential", m.domain.String())
	}
	intermediates, err := m.store.ListIntermediates(ctx, m.domain)
	if err != nil {
		return DiscoveryBundle{}, apierrors.Storagef("as_intermediate", "listing", err)
	}
	revoked, err := m.store.ListRevokedFingerprints(ctx, m.domain)
	if err != nil {
		return DiscoveryBundle{}, apierrors.Storagef("as_intermediate", "listing revoked", err)
	}
	return DiscoveryBundle{Domain: m.domain, Root: root, Intermediates: intermediates, RevokedFingerprints: revoked}, nil
}

// VerifiableClientCredential is the wire-shape a caller presents for
// verification: the credential body plus the fingerprint of the signer it
// claims, pinned so the verifier knows exactly which key to fetch.
type VerifiableClientCredential struct {
	UserId                    ids.UserId
	VerifyingKey              []byte
	Signature                 []byte
	NotAfter                  time.Time
	ClientCredentialSignerFp  ids.CredentialFingerprint
	SignerDomain              fqdn.Fqdn
}

// VerifyClientCredential fetches the signer by fingerprint (performing a
// one-shot cross-domain discovery fetch if it is not locally known), checks
// the signature and expiry, and returns an authenticated ClientCredential.
func (m *Manager) VerifyClientCredential(ctx context.Context, v VerifiableClientCredential) (ClientCredential, error) {
	signer, err := m.resolveIntermediate(ctx, v.SignerDomain, v.ClientCredentialSignerFp)
	if err != nil {
		return ClientCredential{}, err
	}

	body := clientBody(v.UserId, v.VerifyingKey, v.NotAfter)
	if err := verify(signer.VerifyingKey, body, v.Signature); err != nil {
		return ClientCredential{}, apierrors.Authenticationf("client_credential", "invalid signature", err)
	}
	if expired(v.NotAfter, time.Now()) {
		return ClientCredential{}, apierrors.Authenticationf("client_credential", "expired", nil)
	}

	return ClientCredential{
		UserId:       v.UserId,
		VerifyingKey: v.VerifyingKey,
		Fingerprint:  ids.FingerprintOf(body),
		SignedByFp:   signer.Fingerprint,
		Signature:    v.Signature,
		NotAfter:     v.NotAfter,
	}, nil
}

// resolveIntermediate looks up fp locally; on miss it performs exactly one
// discovery fetch from domain and searches the fetched bundle for fp (caching
// a match in the Store), per the "one-shot discovery fetch" rule — it never
// fetches again beyond that.
func (m *Manager) resolveIntermediate(ctx context.Context, domain fqdn.Fqdn, fp ids.CredentialFingerprint) (AsIntermediateCredential, error) {
	cred, err := m.store.GetIntermediate(ctx, domain, fp)
	if err == nil {
		return cred, nil
	}
	if m.discoverer == nil {
		return AsIntermediateCredential{}, apierrors.New(apierrors.KindAuthentication, "as_intermediate", "unknown signer "+fp.String(), nil)
	}

	bundle, derr := m.discoverer.Discover(ctx, domain)
	if derr != nil {
		return AsIntermediateCredential{}, apierrors.New(apierrors.KindAuthentication, "as_intermediate", "unknown signer "+fp.String(), derr)
	}
	for _, ic := range bundle.Intermediates {
		if ic.Fingerprint.Equal(fp) {
			if perr := m.store.PutIntermediate(ctx, ic); perr != nil {
				m.logger.Warn("failed to cache discovered intermediate", logging.Err(perr))
			}
			return ic, nil
		}
	}
	return AsIntermediateCredential{}, apierrors.New(apierrors.KindAuthentication, "as_intermediate", "unknown signer "+fp.String(), nil)
}
