package ds

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/phnx-homeserver/internal/apierrors"
	"github.com/giantswarm/phnx-homeserver/internal/ds/dstest"
	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
	"github.com/giantswarm/phnx-homeserver/internal/groupstate"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
	"github.com/giantswarm/phnx-homeserver/internal/mls"
	"github.com/giantswarm/phnx-homeserver/internal/mls/mlstest"
)

func setupEngine(t *testing.T) (*Engine, ids.UserId) {
	t.Helper()
	store := dstest.NewMemStore()
	engine := NewEngine(store, mlstest.FakeProcessor{})
	domain := ids.NewUserId(fqdn.MustParse("example.com"))
	return engine, domain
}

func earKeyFor(seed byte) groupstate.EarKey {
	var k groupstate.EarKey
	for i := range k {
		k[i] = seed
	}
	return k
}

func noopSeal(initKey []byte, earKey groupstate.EarKey) ([]byte, error) {
	return append([]byte("sealed:"), initKey...), nil
}

func TestCreateGroup_RequiresReservation(t *testing.T) {
	engine, domain := setupEngine(t)
	groupID := ids.NewQualifiedGroupId(domain.Domain)
	err := engine.CreateGroup(context.Background(), groupID, []byte("leaf0"), []byte("group-info"), earKeyFor(1), []byte("profile-key-0"))
	require.Error(t, err)
	assert.True(t, apierrors.IsProtocolViolation(err))
}

func TestCreateGroup_Success(t *testing.T) {
	engine, domain := setupEngine(t)
	ctx := context.Background()
	groupID, err := engine.ReserveGroupId(ctx, domain)
	require.NoError(t, err)

	earKey := earKeyFor(1)
	require.NoError(t, engine.CreateGroup(ctx, groupID, []byte("leaf0"), []byte("group-info"), earKey, []byte("profile-key-0")))

	state, err := engine.FetchGroupState(ctx, groupID, earKey)
	require.NoError(t, err)
	assert.Equal(t, groupstate.RoleRegular, state.Roles[0])
	assert.Contains(t, state.Members, uint32(0))
}

func TestGroupOperation_AddMember_RoundTrip(t *testing.T) {
	engine, domain := setupEngine(t)
	ctx := context.Background()
	groupID, err := engine.ReserveGroupId(ctx, domain)
	require.NoError(t, err)

	earKey := earKeyFor(7)
	require.NoError(t, engine.CreateGroup(ctx, groupID, []byte("leaf0"), []byte("group-info"), earKey, []byte("profile-key-0")))

	commit := mlstest.Encode(mlstest.Commit{
		Sender:     mls.SenderMember,
		SenderLeaf: 0,
		Adds: []mls.AddedLeaf{
			{LeafIndex: 1, KeyPackageRef: []byte("kp-1"), QsReference: []byte("qsref-1"), InitKey: []byte("joiner-init-key")},
		},
	})

	result, err := engine.GroupOperation(ctx, groupID, commit, GroupOperationAAD{
		NewEncryptedUserProfileKeys: [][]byte{[]byte("profile-key-1")},
	}, earKey, &AddUsersInfo{
		Welcome:                []byte("welcome-bytes"),
		WelcomeJoinerRefs:      [][]byte{[]byte("kp-1")},
		WelcomeAttributionInfo: [][]byte{[]byte("attr-1")},
	}, map[uint32][]byte{1: []byte("joiner-init-key")}, noopSeal)
	require.NoError(t, err)
	require.Len(t, result.FanOut, 1)
	assert.Equal(t, []byte("qsref-1"), result.FanOut[0].ClientReference)

	state, err := engine.FetchGroupState(ctx, groupID, earKey)
	require.NoError(t, err)
	assert.Equal(t, groupstate.RoleRegular, state.Roles[1])
	assert.Contains(t, state.Members, uint32(1))
}

func TestGroupOperation_SelfRemoveRejected(t *testing.T) {
	engine, domain := setupEngine(t)
	ctx := context.Background()
	groupID, err := engine.ReserveGroupId(ctx, domain)
	require.NoError(t, err)

	earKey := earKeyFor(3)
	require.NoError(t, engine.CreateGroup(ctx, groupID, []byte("leaf0"), []byte("group-info"), earKey, []byte("profile-key-0")))

	commit := mlstest.Encode(mlstest.Commit{
		Sender:     mls.SenderMember,
		SenderLeaf: 0,
		Removes:    []uint32{0},
	})

	_, err = engine.GroupOperation(ctx, groupID, commit, GroupOperationAAD{}, earKey, nil, nil, noopSeal)
	require.Error(t, err)
	assert.True(t, apierrors.IsProtocolViolation(err))
}

func TestGroupOperation_MismatchedAddRejected(t *testing.T) {
	engine, domain := setupEngine(t)
	ctx := context.Background()
	groupID, err := engine.ReserveGroupId(ctx, domain)
	require.NoError(t, err)

	earKey := earKeyFor(9)
	require.NoError(t, engine.CreateGroup(ctx, groupID, []byte("leaf0"), []byte("group-info"), earKey, []byte("profile-key-0")))

	commit := mlstest.Encode(mlstest.Commit{
		Sender:     mls.SenderMember,
		SenderLeaf: 0,
		Adds: []mls.AddedLeaf{
			{LeafIndex: 1, KeyPackageRef: []byte("kp-1"), QsReference: []byte("qsref-1")},
		},
	})

	_, err = engine.GroupOperation(ctx, groupID, commit, GroupOperationAAD{
		NewEncryptedUserProfileKeys: [][]byte{[]byte("profile-key-1")},
	}, earKey, &AddUsersInfo{
		Welcome:                []byte("welcome-bytes"),
		WelcomeJoinerRefs:      [][]byte{[]byte("kp-does-not-match")},
		WelcomeAttributionInfo: [][]byte{[]byte("attr-1")},
	}, map[uint32][]byte{1: []byte("joiner-init-key")}, noopSeal)
	require.Error(t, err)
	assert.True(t, apierrors.IsProtocolViolation(err))

	// No state should have persisted: fetching still shows the pre-operation membership.
	state, err := engine.FetchGroupState(ctx, groupID, earKey)
	require.NoError(t, err)
	assert.NotContains(t, state.Members, uint32(1))
}

func TestGroupOperationAAD_BytesUnambiguousForLongKeys(t *testing.T) {
	longKey := make([]byte, 300)
	for i := range longKey {
		longKey[i] = byte(i)
	}

	a := GroupOperationAAD{NewEncryptedUserProfileKeys: [][]byte{longKey}}
	encoded := a.Bytes()
	require.Len(t, encoded, 4+len(longKey))
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x2c}, encoded[:4]) // 300 as big-endian uint32
	assert.Equal(t, longKey, encoded[4:])

	// Two distinct key vectors whose concatenation happens to collide under
	// a naive split must not encode to the same bytes.
	a2 := GroupOperationAAD{NewEncryptedUserProfileKeys: [][]byte{longKey[:150], longKey[150:]}}
	assert.NotEqual(t, a.Bytes(), a2.Bytes())
}

func TestGroupOperation_ExternalCommitResync(t *testing.T) {
	engine, domain := setupEngine(t)
	ctx := context.Background()
	groupID, err := engine.ReserveGroupId(ctx, domain)
	require.NoError(t, err)

	earKey := earKeyFor(11)
	require.NoError(t, engine.CreateGroup(ctx, groupID, []byte("leaf0"), []byte("group-info"), earKey, []byte("profile-key-0")))

	// Bob joins normally at leaf 1.
	addCommit := mlstest.Encode(mlstest.Commit{
		Sender:     mls.SenderMember,
		SenderLeaf: 0,
		Adds: []mls.AddedLeaf{
			{LeafIndex: 1, KeyPackageRef: []byte("kp-bob"), QsReference: []byte("qsref-bob"), InitKey: []byte("bob-init-key")},
		},
	})
	_, err = engine.GroupOperation(ctx, groupID, addCommit, GroupOperationAAD{
		NewEncryptedUserProfileKeys: [][]byte{[]byte("profile-key-bob")},
	}, earKey, &AddUsersInfo{
		Welcome:                []byte("welcome-bytes"),
		WelcomeJoinerRefs:      [][]byte{[]byte("kp-bob")},
		WelcomeAttributionInfo: [][]byte{[]byte("attr-bob")},
	}, map[uint32][]byte{1: []byte("bob-init-key")}, noopSeal)
	require.NoError(t, err)

	state, err := engine.FetchGroupState(ctx, groupID, earKey)
	require.NoError(t, err)
	require.Equal(t, groupstate.RoleRegular, state.Roles[1])
	require.Equal(t, []byte("profile-key-bob"), state.Members[1].EncryptedUserProfileKey)

	// Bob's device reconnects via an external commit landing at leaf 2,
	// removing the prior leaf 1 it is replacing.
	resyncCommit := mlstest.Encode(mlstest.Commit{
		Sender:       mls.SenderNewMemberCommit,
		SenderLeaf:   2,
		ReplacedLeaf: 1,
		Removes:      []uint32{1},
	})
	_, err = engine.GroupOperation(ctx, groupID, resyncCommit, GroupOperationAAD{}, earKey, nil, nil, noopSeal)
	require.NoError(t, err)

	state, err = engine.FetchGroupState(ctx, groupID, earKey)
	require.NoError(t, err)
	assert.Equal(t, groupstate.RoleRegular, state.Roles[2])
	assert.Equal(t, groupstate.RoleOutsider, state.Roles[1])
	assert.NotContains(t, state.Members, uint32(1))
	require.Contains(t, state.Members, uint32(2))
	assert.Equal(t, []byte("profile-key-bob"), state.Members[2].EncryptedUserProfileKey)
	assert.Equal(t, []byte("qsref-bob"), state.Members[2].QueueReference)
}

func TestGroupOperation_WrongEarKeyFailsDecryption(t *testing.T) {
	engine, domain := setupEngine(t)
	ctx := context.Background()
	groupID, err := engine.ReserveGroupId(ctx, domain)
	require.NoError(t, err)

	require.NoError(t, engine.CreateGroup(ctx, groupID, []byte("leaf0"), []byte("group-info"), earKeyFor(5), []byte("profile-key-0")))

	_, err = engine.FetchGroupState(ctx, groupID, earKeyFor(99))
	require.Error(t, err)
	assert.True(t, apierrors.IsDecryption(err))
}
