// Package clientstoretest provides an in-memory fake of clientstore.Storer
// for tests that exercise client-side flows without touching a SQLite file.
package clientstoretest

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/giantswarm/phnx-homeserver/internal/clientstore"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

type MemStore struct {
	mu sync.Mutex

	conversations    map[string]clientstore.Conversation
	messages         map[string][]clientstore.Message
	contacts         map[string]clientstore.Contact
	partialByHandle  map[string]clientstore.PartialContact
	partialByUser    map[string]string // user key -> handle key
	memberships      map[string]clientstore.GroupMembership
	credentialCache  map[string]clientstore.CredentialCacheEntry
	queueRatchets    map[string]clientstore.QueueRatchet
	leafKeys         map[string]clientstore.LeafKeyRecord
	indexedKeys      map[string]clientstore.IndexedKeyRecord
	userProfileKeys  map[string]clientstore.UserProfileKeyRecord
}

func NewMemStore() *MemStore {
	return &MemStore{
		conversations:   map[string]clientstore.Conversation{},
		messages:        map[string][]clientstore.Message{},
		contacts:        map[string]clientstore.Contact{},
		partialByHandle: map[string]clientstore.PartialContact{},
		partialByUser:   map[string]string{},
		memberships:     map[string]clientstore.GroupMembership{},
		credentialCache: map[string]clientstore.CredentialCacheEntry{},
		queueRatchets:   map[string]clientstore.QueueRatchet{},
		leafKeys:        map[string]clientstore.LeafKeyRecord{},
		indexedKeys:     map[string]clientstore.IndexedKeyRecord{},
		userProfileKeys: map[string]clientstore.UserProfileKeyRecord{},
	}
}

func groupKey(id ids.QualifiedGroupId) string { return id.UUID.String() + "@" + id.OwningDomain.String() }
func userKey(id ids.UserId) string            { return id.UUID.String() + "@" + id.Domain.String() }
func handleKey(h ids.UserHandleHash) string    { return hex.EncodeToString(h[:]) }
func indexKey(idx []byte) string               { return hex.EncodeToString(idx) }

func (m *MemStore) PutConversation(_ context.Context, conv clientstore.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[groupKey(conv.Id)] = conv
	return nil
}

func (m *MemStore) GetConversation(_ context.Context, id ids.QualifiedGroupId) (clientstore.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[groupKey(id)]
	if !ok {
		return clientstore.Conversation{}, &clientstore.ErrNotFound{Kind: "conversation", Key: id.String()}
	}
	return conv, nil
}

func (m *MemStore) ListConversations(_ context.Context) ([]clientstore.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]clientstore.Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		out = append(out, c)
	}
	return out, nil
}

func (m *MemStore) SetConversationStatus(_ context.Context, id ids.QualifiedGroupId, status clientstore.ConversationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[groupKey(id)]
	if !ok {
		return &clientstore.ErrNotFound{Kind: "conversation", Key: id.String()}
	}
	conv.Status = status
	m.conversations[groupKey(id)] = conv
	return nil
}

func (m *MemStore) PutMessage(_ context.Context, msg clientstore.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := groupKey(msg.ConversationId)
	m.messages[key] = append(m.messages[key], msg)
	return nil
}

func (m *MemStore) ListMessages(_ context.Context, conversationID ids.QualifiedGroupId) ([]clientstore.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]clientstore.Message(nil), m.messages[groupKey(conversationID)]...), nil
}

func (m *MemStore) PutContact(_ context.Context, c clientstore.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[userKey(c.UserId)] = c
	return nil
}

func (m *MemStore) GetContact(_ context.Context, user ids.UserId) (clientstore.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[userKey(user)]
	if !ok {
		return clientstore.Contact{}, &clientstore.ErrNotFound{Kind: "contact", Key: user.String()}
	}
	return c, nil
}

func (m *MemStore) ListContacts(_ context.Context) ([]clientstore.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]clientstore.Contact, 0, len(m.contacts))
	for _, c := range m.contacts {
		out = append(out, c)
	}
	return out, nil
}

func (m *MemStore) PutPartialContact(_ context.Context, p clientstore.PartialContact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partialByHandle[handleKey(p.Handle)] = p
	m.partialByUser[userKey(p.UserId)] = handleKey(p.Handle)
	return nil
}

func (m *MemStore) GetPartialContactByHandle(_ context.Context, handle ids.UserHandleHash) (clientstore.PartialContact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partialByHandle[handleKey(handle)]
	if !ok {
		return clientstore.PartialContact{}, &clientstore.ErrNotFound{Kind: "partial_contact", Key: handle.String()}
	}
	return p, nil
}

func (m *MemStore) DeletePartialContact(_ context.Context, user ids.UserId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hk, ok := m.partialByUser[userKey(user)]
	if !ok {
		return nil
	}
	delete(m.partialByHandle, hk)
	delete(m.partialByUser, userKey(user))
	return nil
}

func (m *MemStore) PutGroupMembership(_ context.Context, mem clientstore.GroupMembership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberships[groupKey(mem.ConversationId)] = mem
	return nil
}

func (m *MemStore) GetGroupMembership(_ context.Context, conversationID ids.QualifiedGroupId) (clientstore.GroupMembership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.memberships[groupKey(conversationID)]
	if !ok {
		return clientstore.GroupMembership{}, &clientstore.ErrNotFound{Kind: "group_membership", Key: conversationID.String()}
	}
	return mem, nil
}

func (m *MemStore) PutCredentialCacheEntry(_ context.Context, e clientstore.CredentialCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentialCache[e.Fingerprint.String()] = e
	return nil
}

func (m *MemStore) GetCredentialCacheEntry(_ context.Context, fp ids.CredentialFingerprint) (clientstore.CredentialCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.credentialCache[fp.String()]
	if !ok {
		return clientstore.CredentialCacheEntry{}, &clientstore.ErrNotFound{Kind: "credential_cache", Key: fp.String()}
	}
	return e, nil
}

func (m *MemStore) PutQueueRatchet(_ context.Context, r clientstore.QueueRatchet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueRatchets[groupKey(r.ConversationId)] = r
	return nil
}

func (m *MemStore) GetQueueRatchet(_ context.Context, conversationID ids.QualifiedGroupId) (clientstore.QueueRatchet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.queueRatchets[groupKey(conversationID)]
	if !ok {
		return clientstore.QueueRatchet{}, &clientstore.ErrNotFound{Kind: "queue_ratchet", Key: conversationID.String()}
	}
	return r, nil
}

func (m *MemStore) PutLeafKey(_ context.Context, k clientstore.LeafKeyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leafKeys[groupKey(k.ConversationId)] = k
	return nil
}

func (m *MemStore) GetLeafKey(_ context.Context, conversationID ids.QualifiedGroupId) (clientstore.LeafKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.leafKeys[groupKey(conversationID)]
	if !ok {
		return clientstore.LeafKeyRecord{}, &clientstore.ErrNotFound{Kind: "leaf_key", Key: conversationID.String()}
	}
	return k, nil
}

func (m *MemStore) PutIndexedKey(_ context.Context, k clientstore.IndexedKeyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexedKeys[indexKey(k.Index)] = k
	return nil
}

func (m *MemStore) GetIndexedKey(_ context.Context, index []byte) (clientstore.IndexedKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.indexedKeys[indexKey(index)]
	if !ok {
		return clientstore.IndexedKeyRecord{}, &clientstore.ErrNotFound{Kind: "indexed_key", Key: indexKey(index)}
	}
	return k, nil
}

func (m *MemStore) MarkIndexedKeyUsed(_ context.Context, index []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.indexedKeys[indexKey(index)]
	if !ok {
		return &clientstore.ErrNotFound{Kind: "indexed_key", Key: indexKey(index)}
	}
	k.Used = true
	m.indexedKeys[indexKey(index)] = k
	return nil
}

func (m *MemStore) PutUserProfileKey(_ context.Context, k clientstore.UserProfileKeyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userProfileKeys[fmt.Sprintf("%s#%d", userKey(k.UserId), k.KeyIndex)] = k
	return nil
}

func (m *MemStore) GetUserProfileKey(_ context.Context, user ids.UserId, keyIndex uint32) (clientstore.UserProfileKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.userProfileKeys[fmt.Sprintf("%s#%d", userKey(user), keyIndex)]
	if !ok {
		return clientstore.UserProfileKeyRecord{}, &clientstore.ErrNotFound{Kind: "user_profile_key", Key: user.String()}
	}
	return k, nil
}

var _ clientstore.Storer = (*MemStore)(nil)
