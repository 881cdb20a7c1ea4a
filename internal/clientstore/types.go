// Package clientstore implements the client-side embedded relational
// persistence layer: one database per logged-in user, holding conversations,
// messages, contacts, partial contacts, group memberships, a credential
// cache, queue ratchets, leaf keys, indexed (used-once) keys, and
// user-profile keys. It mirrors internal/storage's Storer-port shape, but
// backs it with an embedded SQLite database instead of a Postgres pool,
// matching the specification's "embedded relational on the client" data
// model note.
package clientstore

import (
	"time"

	"github.com/giantswarm/phnx-homeserver/internal/groupstate"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

// ConversationStatus distinguishes a fully joined conversation from one
// still pending the remote half of the connection flow (§4.4's
// commit-remote phase, which runs outside the local transaction that
// creates this record).
type ConversationStatus int

const (
	ConversationPending ConversationStatus = iota
	ConversationActive
	ConversationBlocked
)

// Conversation is the client's local view of one group: either a
// two-member connection group or a larger group conversation.
type Conversation struct {
	Id             ids.QualifiedGroupId
	Status         ConversationStatus
	AttributedTo   ids.UserId // empty for a still-pending handle-path connection
	LastMessageAt  time.Time
}

// Message is one locally stored, already-decrypted message. The server
// never sees this: it exists only in the client's embedded database.
type Message struct {
	ConversationId ids.QualifiedGroupId
	Epoch          uint64
	SenderLeaf     uint32
	SentAt         time.Time
	Plaintext      []byte
}

// Contact is a fully established contact: a confirmed connection whose
// friendship package has been decrypted and whose connection group is
// active.
type Contact struct {
	UserId            ids.UserId
	ConversationId     ids.QualifiedGroupId
	FriendshipToken    []byte
	ConnectionKey      []byte
	UserProfileBaseSecret []byte
}

// PartialContact is a contact the local user has reached out to (or been
// reached out to by) but whose connection group hasn't yet gone active —
// the local-side record the commit-remote phase leaves behind on failure,
// matched against on the next contact attempt.
type PartialContact struct {
	UserId         ids.UserId
	Handle         ids.UserHandleHash
	ConversationId ids.QualifiedGroupId
	CreatedAt      time.Time
}

// GroupMembership is the client's local record of its own leaf index and
// room-policy role within a conversation's group, refreshed after every
// group operation the client processes.
type GroupMembership struct {
	ConversationId ids.QualifiedGroupId
	LeafIndex      uint32
	Role           groupstate.Role
}

// CredentialCacheEntry caches a verified AS intermediate or client
// credential locally, keyed by fingerprint, so repeated signature
// verification against the same signer doesn't require a network fetch.
type CredentialCacheEntry struct {
	Fingerprint ids.CredentialFingerprint
	Domain      string
	Body        []byte // the canonical encoded credential, re-parsed on read
	CachedAt    time.Time
}

// QueueRatchet is the client's local message-queue decryption ratchet
// state for one conversation, advanced as messages are delivered and
// persisted so a restart resumes from the last-processed position.
type QueueRatchet struct {
	ConversationId ids.QualifiedGroupId
	RatchetSecret  []byte
	Generation     uint64
}

// LeafKeyRecord is a per-group leaf signing/encryption keypair the client
// holds for a conversation it is a member of.
type LeafKeyRecord struct {
	ConversationId ids.QualifiedGroupId
	LeafIndex      uint32
	SigningKey     []byte
	EncryptionKey  []byte
}

// IndexedKeyRecord is a used-once key (an HPKE init key offered in a
// KeyPackage, for instance) indexed so the client can find and retire it
// once consumed.
type IndexedKeyRecord struct {
	Index     []byte
	Key       []byte
	Used      bool
}

// UserProfileKeyRecord is one profile key a contact has handed the local
// user, indexed the same way the AS indexes UserProfileEntry server-side.
type UserProfileKeyRecord struct {
	UserId   ids.UserId
	KeyIndex uint32
	Key      []byte
}
