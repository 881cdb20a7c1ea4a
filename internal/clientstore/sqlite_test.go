package clientstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
	"github.com/giantswarm/phnx-homeserver/internal/groupstate"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open("file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_ConversationRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	domain := fqdn.MustParse("example.com")
	groupID := ids.NewQualifiedGroupId(domain)
	attributedTo := ids.NewUserId(domain)

	conv := Conversation{
		Id:            groupID,
		Status:        ConversationActive,
		AttributedTo:  attributedTo,
		LastMessageAt: time.Now().Truncate(time.Second),
	}
	require.NoError(t, store.PutConversation(ctx, conv))

	got, err := store.GetConversation(ctx, groupID)
	require.NoError(t, err)
	require.Equal(t, conv.Status, got.Status)
	require.True(t, conv.AttributedTo.Equal(got.AttributedTo))

	require.NoError(t, store.SetConversationStatus(ctx, groupID, ConversationBlocked))
	got, err = store.GetConversation(ctx, groupID)
	require.NoError(t, err)
	require.Equal(t, ConversationBlocked, got.Status)

	all, err := store.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestSQLiteStore_ConversationNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	domain := fqdn.MustParse("example.com")

	_, err := store.GetConversation(ctx, ids.NewQualifiedGroupId(domain))
	require.Error(t, err)
	var notFound *ErrNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestSQLiteStore_MessagesOrderedBySentAt(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	domain := fqdn.MustParse("example.com")
	groupID := ids.NewQualifiedGroupId(domain)

	base := time.Now().Truncate(time.Second)
	require.NoError(t, store.PutMessage(ctx, Message{ConversationId: groupID, Epoch: 1, SentAt: base.Add(time.Second), Plaintext: []byte("second")}))
	require.NoError(t, store.PutMessage(ctx, Message{ConversationId: groupID, Epoch: 0, SentAt: base, Plaintext: []byte("first")}))

	msgs, err := store.ListMessages(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "first", string(msgs[0].Plaintext))
	require.Equal(t, "second", string(msgs[1].Plaintext))
}

func TestSQLiteStore_GroupMembershipRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	domain := fqdn.MustParse("example.com")
	groupID := ids.NewQualifiedGroupId(domain)

	require.NoError(t, store.PutGroupMembership(ctx, GroupMembership{ConversationId: groupID, LeafIndex: 3, Role: groupstate.RoleRegular}))
	got, err := store.GetGroupMembership(ctx, groupID)
	require.NoError(t, err)
	require.Equal(t, uint32(3), got.LeafIndex)
	require.Equal(t, groupstate.RoleRegular, got.Role)
}

func TestSQLiteStore_PartialContactByHandle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	domain := fqdn.MustParse("example.com")
	user := ids.NewUserId(domain)
	groupID := ids.NewQualifiedGroupId(domain)
	handle := ids.HashHandle([]byte("domain-secret"), ids.UserHandle("alice"))

	require.NoError(t, store.PutPartialContact(ctx, PartialContact{UserId: user, Handle: handle, ConversationId: groupID, CreatedAt: time.Now().Truncate(time.Second)}))

	got, err := store.GetPartialContactByHandle(ctx, handle)
	require.NoError(t, err)
	require.True(t, got.UserId.Equal(user))

	require.NoError(t, store.DeletePartialContact(ctx, user))
	_, err = store.GetPartialContactByHandle(ctx, handle)
	require.Error(t, err)
}

func TestSQLiteStore_IndexedKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	index := []byte("some-index")

	require.NoError(t, store.PutIndexedKey(ctx, IndexedKeyRecord{Index: index, Key: []byte("key-bytes")}))
	got, err := store.GetIndexedKey(ctx, index)
	require.NoError(t, err)
	require.False(t, got.Used)

	require.NoError(t, store.MarkIndexedKeyUsed(ctx, index))
	got, err = store.GetIndexedKey(ctx, index)
	require.NoError(t, err)
	require.True(t, got.Used)
}
