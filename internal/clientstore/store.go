package clientstore

import (
	"context"

	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

// Storer is the client-side persistence port, mirroring the shape of
// internal/storage's server-side adapters but scoped to the one logged-in
// user's embedded database. Every method is independently implementable
// against a fake for tests, per the <pkg>test convention used throughout
// this module.
type Storer interface {
	PutConversation(ctx context.Context, conv Conversation) error
	GetConversation(ctx context.Context, id ids.QualifiedGroupId) (Conversation, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
	SetConversationStatus(ctx context.Context, id ids.QualifiedGroupId, status ConversationStatus) error

	PutMessage(ctx context.Context, msg Message) error
	ListMessages(ctx context.Context, conversationID ids.QualifiedGroupId) ([]Message, error)

	PutContact(ctx context.Context, c Contact) error
	GetContact(ctx context.Context, user ids.UserId) (Contact, error)
	ListContacts(ctx context.Context) ([]Contact, error)

	PutPartialContact(ctx context.Context, p PartialContact) error
	GetPartialContactByHandle(ctx context.Context, handle ids.UserHandleHash) (PartialContact, error)
	DeletePartialContact(ctx context.Context, user ids.UserId) error

	PutGroupMembership(ctx context.Context, m GroupMembership) error
	GetGroupMembership(ctx context.Context, conversationID ids.QualifiedGroupId) (GroupMembership, error)

	PutCredentialCacheEntry(ctx context.Context, e CredentialCacheEntry) error
	GetCredentialCacheEntry(ctx context.Context, fp ids.CredentialFingerprint) (CredentialCacheEntry, error)

	PutQueueRatchet(ctx context.Context, r QueueRatchet) error
	GetQueueRatchet(ctx context.Context, conversationID ids.QualifiedGroupId) (QueueRatchet, error)

	PutLeafKey(ctx context.Context, k LeafKeyRecord) error
	GetLeafKey(ctx context.Context, conversationID ids.QualifiedGroupId) (LeafKeyRecord, error)

	PutIndexedKey(ctx context.Context, k IndexedKeyRecord) error
	GetIndexedKey(ctx context.Context, index []byte) (IndexedKeyRecord, error)
	MarkIndexedKeyUsed(ctx context.Context, index []byte) error

	PutUserProfileKey(ctx context.Context, k UserProfileKeyRecord) error
	GetUserProfileKey(ctx context.Context, user ids.UserId, keyIndex uint32) (UserProfileKeyRecord, error)
}

// ErrNotFound is returned by a Storer lookup that finds no matching row.
type ErrNotFound struct {
	Kind string
	Key  string
}

func (e *ErrNotFound) Error() string { return "clientstore: " + e.Kind + " not found: " + e.Key }
