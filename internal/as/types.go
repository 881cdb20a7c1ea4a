// Package as implements the Authentication Service domain logic:
// registration, user profiles, connection packages, handle lifecycle, and
// the listen/listen_handle streaming contracts. It is built on top of
// internal/queue (one queue per registered client) and internal/credentials
// (issuing and verifying the client credential every registration mints).
package as

import (
	"crypto/ed25519"
	"time"

	"github.com/giantswarm/phnx-homeserver/internal/credentials"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
	"github.com/giantswarm/phnx-homeserver/internal/queue"
)

// ConnectionPackage is the signed structure a user publishes so others can
// open encrypted contact with them: a protocol version, an HPKE encryption
// key, a lifetime, and the client credential that signed it. Pinned by
// ClientCredentialSignerFp so a verifier knows which intermediate to fetch
// from the Credential Store before opening it.
type ConnectionPackage struct {
	ProtocolVersion          uint16
	HpkeEncryptionKey        [32]byte
	Lifetime                 time.Time
	ClientCredential         credentials.ClientCredential
	ClientCredentialSignerFp ids.CredentialFingerprint
	Signature                []byte
}

// Expired reports whether the package's lifetime has passed.
func (p ConnectionPackage) Expired(now time.Time) bool {
	return now.After(p.Lifetime)
}

// UserProfileEntry is one encrypted-at-rest user profile, indexed so a user
// can rotate their profile key without invalidating profiles already handed
// out under the previous index.
type UserProfileEntry struct {
	UserId             ids.UserId
	KeyIndex           uint32
	EncryptedProfile   []byte
}

// HandleRecord is the server-side record for one published user handle. The
// server never stores the plaintext handle, only its HMAC hash; QueueId
// names the mailbox queue that listen_handle streams from and connect_handle
// enqueues into.
type HandleRecord struct {
	Hash         ids.UserHandleHash
	UserId       ids.UserId
	VerifyingKey ed25519.PublicKey
	QueueId      queue.Id
}

// SignedHandleCreation is the payload register_handle / create_handle
// verifies before storing a HandleRecord: the plaintext handle, its hash,
// and a signature over the hash and VerifyingKey made with the registering
// client's signing key. CreateHandle checks only that signature; it does not
// recompute the hash from Plaintext or compare the two.
type SignedHandleCreation struct {
	Plaintext    ids.UserHandle
	Hash         ids.UserHandleHash
	VerifyingKey ed25519.PublicKey
	Signature    []byte
}

// RegisterUserRequest is the payload register_user verifies and persists.
type RegisterUserRequest struct {
	UserId                  ids.UserId
	ClientVerifyingKey      ed25519.PublicKey
	QueueEncryptionKey      []byte
	InitialRatchetSecret    []byte
	EncryptedUserProfile    []byte
	CredentialLifetime      time.Duration
}

// RegisterUserResult is what register_user returns to the caller.
type RegisterUserResult struct {
	ClientCredential credentials.ClientCredential
}
