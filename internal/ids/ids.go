// Package ids defines the qualified identifiers used across the AS, QS and
// DS: UserId, UserHandle(Hash), QualifiedGroupId, QsClientId/QsUserId and
// CredentialFingerprint.
package ids

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
)

// UserId is a (uuid, domain) pair. It is opaque to the server beyond
// routing: the server never interprets the uuid beyond equality.
type UserId struct {
	UUID   uuid.UUID
	Domain fqdn.Fqdn
}

func NewUserId(domain fqdn.Fqdn) UserId {
	return UserId{UUID: uuid.New(), Domain: domain}
}

func (u UserId) String() string { return u.UUID.String() + "@" + u.Domain.String() }

func (u UserId) Equal(o UserId) bool { return u.UUID == o.UUID && u.Domain.Equal(o.Domain) }

func (u UserId) IsZero() bool { return u.UUID == uuid.Nil }

// QualifiedGroupId is a (uuid, owning_domain) pair. The owning domain routes
// every group operation to the DS that holds the authoritative state.
type QualifiedGroupId struct {
	UUID          uuid.UUID
	OwningDomain  fqdn.Fqdn
}

func NewQualifiedGroupId(owner fqdn.Fqdn) QualifiedGroupId {
	return QualifiedGroupId{UUID: uuid.New(), OwningDomain: owner}
}

func (g QualifiedGroupId) String() string { return g.UUID.String() + "@" + g.OwningDomain.String() }

func (g QualifiedGroupId) Equal(o QualifiedGroupId) bool {
	return g.UUID == o.UUID && g.OwningDomain.Equal(o.OwningDomain)
}

// QsClientId and QsUserId are random UUIDs minted by the QS, deliberately
// unlinkable to any AS identifier — the QS never learns a user's UserId.
type QsClientId uuid.UUID
type QsUserId uuid.UUID

func NewQsClientId() QsClientId { return QsClientId(uuid.New()) }
func NewQsUserId() QsUserId     { return QsUserId(uuid.New()) }

func (c QsClientId) String() string { return uuid.UUID(c).String() }
func (u QsUserId) String() string   { return uuid.UUID(u).String() }

// CredentialFingerprint is a content hash of a credential body, used both for
// pinning (the presenter names the signer by fingerprint) and for rotation
// (activation targets a fingerprint).
type CredentialFingerprint [32]byte

func FingerprintOf(credentialBody []byte) CredentialFingerprint {
	return sha256.Sum256(credentialBody)
}

func (f CredentialFingerprint) String() string { return hex.EncodeToString(f[:]) }

func (f CredentialFingerprint) Equal(o CredentialFingerprint) bool { return f == o }

func (f CredentialFingerprint) IsZero() bool {
	var zero CredentialFingerprint
	return f == zero
}

// UserHandle is the user-chosen plaintext handle string.
type UserHandle string

// UserHandleHash is the only form of a handle the server ever stores. It is
// an HMAC keyed by a per-domain secret (not a bare hash) so that an operator
// with database access cannot brute-force short handles offline; this
// mirrors the way the credential store never stores raw signing keys.
type UserHandleHash [32]byte

var handleCaser = cases.Fold()

// NormalizeHandle case- and form-folds a handle before hashing, so that
// visually identical handles (e.g. differing only in case) collapse onto the
// same hash instead of silently coexisting as distinct registrations.
func NormalizeHandle(h UserHandle) string {
	return handleCaser.String(norm.NFC.String(string(h)))
}

// HashHandle computes the UserHandleHash for a normalized handle under the
// domain's handle secret. The secret never leaves the AS process; peers only
// ever see the resulting hash.
func HashHandle(domainSecret []byte, h UserHandle) UserHandleHash {
	mac := hmac.New(sha256.New, domainSecret)
	mac.Write([]byte(NormalizeHandle(h)))
	var out UserHandleHash
	copy(out[:], mac.Sum(nil))
	return out
}

func (h UserHandleHash) String() string { return hex.EncodeToString(h[:]) }
