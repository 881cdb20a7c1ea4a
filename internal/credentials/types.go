// Package credentials implements C1, the credential hierarchy: an AS root
// credential signs an AS intermediate credential, which signs client
// credentials during registration, which in turn sign per-group pseudonymous
// leaf credentials. Exactly one intermediate is active per domain at a time;
// rotating it is a single atomic transition, and signatures made under a
// retired intermediate remain verifiable.
package credentials

import (
	"crypto/ed25519"
	"time"

	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

// IntermediateState is the lifecycle state of an AS intermediate credential.
// The transition active -> retired happens implicitly, as a side effect of
// activating a different credential; there is no direct transition into it.
type IntermediateState string

const (
	StatePending IntermediateState = "pending"
	StateActive  IntermediateState = "active"
	StateRetired IntermediateState = "retired"
)

// AsRootCredential is the self-signed, long-lived root of trust for a
// domain. It is rotated rarely and out of band from the operations below.
type AsRootCredential struct {
	Domain       fqdn.Fqdn
	VerifyingKey ed25519.PublicKey
	Fingerprint  ids.CredentialFingerprint
	Signature    []byte // self-signature over the body
	NotAfter     time.Time
}

// AsIntermediateCredential is signed by the active root and is the credential
// that actually signs client credentials during registration.
type AsIntermediateCredential struct {
	Domain          fqdn.Fqdn
	VerifyingKey    ed25519.PublicKey
	Fingerprint     ids.CredentialFingerprint
	SignedByFp      ids.CredentialFingerprint // the root that signed this
	Signature       []byte
	State           IntermediateState
	NotAfter        time.Time
}

// ClientCredential binds a UserId to a signature verification key and an
// expiration, signed by the domain's active intermediate at registration
// time.
type ClientCredential struct {
	UserId       ids.UserId
	VerifyingKey ed25519.PublicKey
	Fingerprint  ids.CredentialFingerprint
	SignedByFp   ids.CredentialFingerprint // the intermediate that signed this
	Signature    []byte
	NotAfter     time.Time
}

// LeafCredential is the pseudonymous per-group credential a client
// instantiates for each MLS group it joins. It hides the UserId from the DS:
// the DS only ever sees VerifyingKey and Fingerprint, never WrappedIdentity
// in cleartext (that is opened by fellow group members holding the group's
// identity-link wrapper key).
type LeafCredential struct {
	VerifyingKey    ed25519.PublicKey
	Fingerprint     ids.CredentialFingerprint
	SignedByFp      ids.CredentialFingerprint // the client credential that signed this
	Signature       []byte
	WrappedIdentity []byte // HPKE-sealed UserId, opened via the group's identity-link wrapper key
	NotAfter        time.Time
}

// expired reports whether t has passed relative to now.
func expired(t time.Time, now time.Time) bool {
	return !t.IsZero() && now.After(t)
}

// DiscoveryBundle is the public bundle a domain publishes for peers: every
// credential peers may need to verify a signature chain rooted at this
// domain, plus the fingerprints of anything revoked.
type DiscoveryBundle struct {
	Domain             fqdn.Fqdn
	Root               AsRootCredential
	Intermediates       []AsIntermediateCredential
	RevokedFingerprints []ids.CredentialFingerprint
}
