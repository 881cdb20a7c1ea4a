// Package connection implements C4, the client-side connection-establishment
// protocol: contact discovery via an as.ConnectionPackage, a signed and
// HPKE-encrypted ConnectionOffer, and the paired creation of a two-member
// "connection group" on the DS. The five phases (fetch, verify, reserve,
// prepare, commit) are modelled as a chain of builder types, each consuming
// the previous one, so skipping verification or shipping an offer before
// group creation is a compile-time error rather than a runtime one.
package connection

import (
	"time"

	"github.com/giantswarm/phnx-homeserver/internal/credentials"
	"github.com/giantswarm/phnx-homeserver/internal/groupstate"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

// FriendshipPackage is the bundle of secrets sent inside a ConnectionOffer:
// a bearer token for pull-based message fetch, a connection key that
// encrypts future friendship packages, a welcome-attribution-info key, and
// the base secret the recipient derives their user-profile key from.
type FriendshipPackage struct {
	FriendshipToken        []byte
	ConnectionKey          []byte
	WelcomeAttributionKey  []byte
	UserProfileBaseSecret  []byte
}

// ConnectionOffer is the payload a contacter sends to bootstrap a two-party
// group. It is signed by the sender's client credential and bound to the
// recipient's UserId in the signed data, so a verified offer retried against
// any other recipient fails verification (prevents offer redirection).
type ConnectionOffer struct {
	SenderClientCredential   credentials.ClientCredential
	RecipientUserId          ids.UserId
	ConnectionGroupId        ids.QualifiedGroupId
	ConnectionGroupEarKey    groupstate.EarKey
	IdentityLinkWrapperKey   [32]byte
	FriendshipPackageEarKey  [32]byte
	FriendshipPackage        FriendshipPackage
	Signature                []byte
}

// LocalGroupParams is what the client supplies to create a brand new local
// MLS group with itself as the sole member, before any remote DS call is
// made.
type LocalGroupParams struct {
	CreatorLeaf []byte
	Ciphersuite uint16
}

// LocalGroup is the client-side constructed MLS group plus the GroupInfo
// bytes a create_group call hands to the DS for blind storage.
type LocalGroup struct {
	GroupInfo []byte
	LeafIndex uint32
}

// PendingConversationKind distinguishes the two shapes a local "pending
// connection" conversation record can take, per the specification's sum-type
// design note — modelled as a tagged union rather than a type hierarchy.
type PendingConversationKind int

const (
	PendingConversationDirect PendingConversationKind = iota
	PendingConversationHandle
)

// PendingConversation is the local record created in phase 4 ("prepare
// locally") before the remote commit phase runs. A commit-remote failure
// leaves this record as UnconfirmedConnection/handle-keyed so the next
// contact attempt against the same recipient deduplicates against it instead
// of creating a second local group.
type PendingConversation struct {
	Kind              PendingConversationKind
	RecipientUserId   ids.UserId         // meaningful when Kind == PendingConversationDirect
	RecipientHandle   ids.UserHandleHash // meaningful when Kind == PendingConversationHandle
	ConnectionGroupId ids.QualifiedGroupId
	CreatedAt         time.Time
}
