// Package ds implements C3, the DS group engine: group-id reservation,
// group creation, and the group-operation pipeline that validates an MLS
// commit, applies room-policy role transitions, and assembles the fan-out a
// caller delivers through the queueing layer. The engine itself never
// touches the wire or the QS; it returns serialized bytes and fan-out
// descriptions for the caller (internal/as/internal/qs wiring) to deliver.
package ds

import (
	"context"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/giantswarm/phnx-homeserver/internal/apierrors"
	"github.com/giantswarm/phnx-homeserver/internal/groupstate"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
	"github.com/giantswarm/phnx-homeserver/internal/mls"
)

// Engine drives the C3 contract against a Store and an mls.Processor.
type Engine struct {
	store     Store
	processor mls.Processor
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

func NewEngine(store Store, processor mls.Processor, opts ...Option) *Engine {
	e := &Engine{store: store, processor: processor, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReserveGroupId mints a fresh group id scoped to domain and records it as
// reserved. Calling it again after a transient failure is safe: the
// underlying Store.Reserve is idempotent, and a fresh id is minted each call
// so retried reservations never collide.
func (e *Engine) ReserveGroupId(ctx context.Context, domain ids.UserId) (ids.QualifiedGroupId, error) {
	id := ids.NewQualifiedGroupId(domain.Domain)
	if err := e.store.Reserve(ctx, id); err != nil {
		return ids.QualifiedGroupId{}, apierrors.Storagef("ds_group", "reserving group id", err)
	}
	return id, nil
}

// CreateGroup constructs the initial group state from groupInfo, forms the
// DsGroupState with the creator at leaf 0 holding Regular standing, encrypts
// it under earKey, and persists it. It fails if groupID was never reserved.
func (e *Engine) CreateGroup(
	ctx context.Context,
	groupID ids.QualifiedGroupId,
	creatorLeaf []byte,
	groupInfo []byte,
	earKey groupstate.EarKey,
	initialEncryptedUserProfileKey []byte,
) error {
	reserved, err := e.store.IsReserved(ctx, groupID)
	if err != nil {
		return apierrors.Storagef("ds_group", "checking reservation for "+groupID.String(), err)
	}
	if !reserved {
		return apierrors.ProtocolViolationf("ds_group", "group id "+groupID.String()+" was not reserved")
	}

	group, err := e.processor.CreateGroup(groupInfo, creatorLeaf)
	if err != nil {
		return apierrors.Storagef("ds_group", "constructing MLS group for "+groupID.String(), err)
	}
	serialized, err := group.Serialize()
	if err != nil {
		return apierrors.Storagef("ds_group", "serializing new MLS group for "+groupID.String(), err)
	}

	now := e.now()
	state := groupstate.DsGroupState{
		GroupId:         groupID,
		SerializedGroup: serialized,
		Roles:           map[uint32]groupstate.Role{0: groupstate.RoleRegular},
		Members: map[uint32]groupstate.MemberProfile{
			0: {
				LeafIndex:               0,
				ActivityTime:            now,
				ActivityEpoch:           group.Epoch(),
				EncryptedUserProfileKey: initialEncryptedUserProfileKey,
			},
		},
		LastUsed: now,
	}

	sealed, err := groupstate.Seal(earKey, state)
	if err != nil {
		return apierrors.Storagef("ds_group", "sealing new group state for "+groupID.String(), err)
	}
	if err := e.store.PutEnvelope(ctx, groupID, sealed, now); err != nil {
		return apierrors.Storagef("ds_group", "persisting new group state for "+groupID.String(), err)
	}
	return nil
}

// AddUsersInfo carries the Welcome and per-joiner attribution the caller
// must supply whenever a commit contains add proposals.
type AddUsersInfo struct {
	Welcome                 []byte
	WelcomeJoinerRefs       [][]byte // key package refs the Welcome actually welcomes, for the symmetric add/welcome check
	WelcomeAttributionInfo  [][]byte
}

// WelcomeBundle is what a new joiner receives: the Welcome itself plus
// everything it needs to finish joining without contacting the DS again.
type WelcomeBundle struct {
	Welcome                 []byte
	EncryptedAttributionInfo []byte
	EncryptedJoinerInfo     []byte // the group's ear key, HPKE-sealed to the joiner's init key
}

// FanOutMessage pairs a WelcomeBundle with the QS client reference it routes
// through.
type FanOutMessage struct {
	Payload         WelcomeBundle
	ClientReference []byte
}

// GroupOperationResult is what group_operation returns: the serialized
// commit for delivery to existing members, and the joiner fan-out list.
type GroupOperationResult struct {
	SerializedCommit []byte
	FanOut           []FanOutMessage
}

// GroupOperation runs the full twelve-step validation and state-update
// pipeline for one commit. On any failure, no state is persisted and no
// fan-out is produced.
func (e *Engine) GroupOperation(
	ctx context.Context,
	groupID ids.QualifiedGroupId,
	commitBytes []byte,
	aad GroupOperationAAD,
	earKey groupstate.EarKey,
	addUsersInfo *AddUsersInfo,
	joinerInitKeys map[uint32][]byte, // leaf index -> HPKE init key, for fan-out sealing
	sealJoinerInfo func(recipientInitKey []byte, earKey groupstate.EarKey) ([]byte, error),
) (GroupOperationResult, error) {
	// 1. Decrypt.
	sealed, _, err := e.store.GetEnvelope(ctx, groupID)
	if err != nil {
		return GroupOperationResult{}, apierrors.NotFoundf("ds_group", "no group state for "+groupID.String())
	}
	state, err := groupstate.Open(earKey, groupID, sealed)
	if err != nil {
		return GroupOperationResult{}, apierrors.Decryptionf("ds_group", "opening group state for "+groupID.String(), err)
	}

	// 2. Process the MLS commit without merging.
	group, err := e.processor.LoadGroup(state.SerializedGroup)
	if err != nil {
		return GroupOperationResult{}, apierrors.Storagef("ds_group", "loading MLS group for "+groupID.String(), err)
	}
	processed, err := group.Process(commitBytes, aad.Bytes())
	if err != nil {
		return GroupOperationResult{}, apierrors.ProtocolViolationf("ds_group", "processing commit for "+groupID.String()+": "+err.Error())
	}

	// 3. Classify sender.
	switch processed.Sender {
	case mls.SenderMember, mls.SenderNewMemberCommit:
	default:
		return GroupOperationResult{}, apierrors.ProtocolViolationf("ds_group", "commit sender type "+processed.Sender.String()+" is not permitted")
	}
	if processed.Sender == mls.SenderNewMemberCommit && (len(processed.RemovedLeaves) != 1 || processed.RemovedLeaves[0] != processed.ReplacedLeaf) {
		return GroupOperationResult{}, apierrors.ProtocolViolationf("ds_group", "resync commit must remove exactly the replaced leaf")
	}

	// 4. AAD checks.
	if len(aad.NewEncryptedUserProfileKeys) != len(processed.AddedLeaves) {
		return GroupOperationResult{}, apierrors.ProtocolViolationf("ds_group", "AAD profile-key count does not match add proposal count")
	}

	// 5. Add-user validation.
	if len(processed.AddedLeaves) > 0 {
		if addUsersInfo == nil {
			return GroupOperationResult{}, apierrors.ProtocolViolationf("ds_group", "commit adds members but no Welcome was supplied")
		}
		if len(addUsersInfo.WelcomeAttributionInfo) != len(processed.AddedLeaves) {
			return GroupOperationResult{}, apierrors.ProtocolViolationf("ds_group", "welcome attribution count does not match add proposal count")
		}
		if err := checkSymmetricAdds(processed.AddedLeaves, addUsersInfo.WelcomeJoinerRefs); err != nil {
			return GroupOperationResult{}, apierrors.ProtocolViolationf("ds_group", err.Error())
		}
	}

	// 6. Role transitions.
	roles := state.Roles
	added := make([]uint32, 0, len(processed.AddedLeaves))
	for _, a := range processed.AddedLeaves {
		added = append(added, a.LeafIndex)
	}
	isResync := processed.Sender == mls.SenderNewMemberCommit
	if err := applyRoleTransitions(roles, processed.SenderLeaf, false, isResync, processed.ReplacedLeaf, added, processed.RemovedLeaves); err != nil {
		return GroupOperationResult{}, apierrors.Authenticationf("ds_group", "role transition for "+groupID.String(), err)
	}

	// 7. Self-remove protection.
	if processed.Sender == mls.SenderMember {
		for _, removed := range processed.RemovedLeaves {
			if removed == processed.SenderLeaf {
				return GroupOperationResult{}, apierrors.ProtocolViolationf("ds_group", "commit sender may not remove itself")
			}
		}
	}

	// 8. Apply (merge).
	if err := group.Merge(processed); err != nil {
		return GroupOperationResult{}, apierrors.Storagef("ds_group", "merging commit for "+groupID.String(), err)
	}

	// 9. Update membership profiles.
	now := e.now()
	for i, a := range processed.AddedLeaves {
		if len(a.QsReference) == 0 {
			return GroupOperationResult{}, apierrors.ProtocolViolationf("ds_group", "added leaf is missing its QS queue reference")
		}
		state.Members[a.LeafIndex] = groupstate.MemberProfile{
			LeafIndex:               a.LeafIndex,
			QueueReference:          a.QsReference,
			ActivityTime:            now,
			ActivityEpoch:           processed.NewEpoch,
			EncryptedUserProfileKey: aad.NewEncryptedUserProfileKeys[i],
		}
	}
	if processed.Sender == mls.SenderNewMemberCommit {
		old := state.Members[processed.ReplacedLeaf]
		delete(state.Members, processed.ReplacedLeaf)
		state.Members[processed.SenderLeaf] = groupstate.MemberProfile{
			LeafIndex:               processed.SenderLeaf,
			QueueReference:          old.QueueReference,
			ActivityTime:            now,
			ActivityEpoch:           processed.NewEpoch,
			EncryptedUserProfileKey: old.EncryptedUserProfileKey,
		}
	}
	for _, removed := range processed.RemovedLeaves {
		delete(state.Members, removed)
	}

	// 10. Build fan-out.
	var fanOut []FanOutMessage
	for i, a := range processed.AddedLeaves {
		initKey := joinerInitKeys[a.LeafIndex]
		encryptedJoinerInfo, err := sealJoinerInfo(initKey, earKey)
		if err != nil {
			return GroupOperationResult{}, apierrors.Storagef("ds_group", "sealing joiner info for "+groupID.String(), err)
		}
		fanOut = append(fanOut, FanOutMessage{
			Payload: WelcomeBundle{
				Welcome:                  addUsersInfo.Welcome,
				EncryptedAttributionInfo: addUsersInfo.WelcomeAttributionInfo[i],
				EncryptedJoinerInfo:      encryptedJoinerInfo,
			},
			ClientReference: a.QsReference,
		})
	}

	// 11. Persist.
	serializedGroup, err := group.Serialize()
	if err != nil {
		return GroupOperationResult{}, apierrors.Storagef("ds_group", "serializing updated group for "+groupID.String(), err)
	}
	state.SerializedGroup = serializedGroup
	state.LastUsed = now
	sealedOut, err := groupstate.Seal(earKey, state)
	if err != nil {
		return GroupOperationResult{}, apierrors.Storagef("ds_group", "sealing updated group state for "+groupID.String(), err)
	}
	if err := e.store.PutEnvelope(ctx, groupID, sealedOut, now); err != nil {
		return GroupOperationResult{}, apierrors.Storagef("ds_group", "persisting updated group state for "+groupID.String(), err)
	}

	// 12. Return.
	return GroupOperationResult{SerializedCommit: processed.SerializedCommit, FanOut: fanOut}, nil
}

// GroupOperationAAD is the commit's authenticated-additional-data payload,
// required to carry a profile key for every add proposal.
type GroupOperationAAD struct {
	NewEncryptedUserProfileKeys [][]byte
}

// Bytes is the canonical encoding passed to mls.Group.Process as aad. Each
// key is prefixed with its length as a fixed-width big-endian uint32 so the
// encoding stays unambiguous (and therefore unforgeable) regardless of key
// size — a single-byte prefix would silently truncate and collide for any
// key longer than 255 bytes.
func (a GroupOperationAAD) Bytes() []byte {
	var out []byte
	var lenBuf [4]byte
	for _, k := range a.NewEncryptedUserProfileKeys {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		out = append(out, lenBuf[:]...)
		out = append(out, k...)
	}
	return out
}

func checkSymmetricAdds(added []mls.AddedLeaf, welcomeJoinerRefs [][]byte) error {
	welcomed := make(map[string]bool, len(welcomeJoinerRefs))
	for _, ref := range welcomeJoinerRefs {
		welcomed[string(ref)] = true
	}
	addedRefs := make(map[string]bool, len(added))
	for _, a := range added {
		addedRefs[string(a.KeyPackageRef)] = true
		if !welcomed[string(a.KeyPackageRef)] {
			return &errIncompleteWelcome{reason: "add proposal has no matching Welcome joiner"}
		}
	}
	for ref := range welcomed {
		if !addedRefs[ref] {
			return &errIncompleteWelcome{reason: "Welcome joiner has no matching add proposal"}
		}
	}
	return nil
}

type errIncompleteWelcome struct{ reason string }

func (e *errIncompleteWelcome) Error() string { return e.reason }

// ExternalCommitInfo is what a prospective joiner needs to issue an external
// commit against a group, without having participated in it before.
type ExternalCommitInfo struct {
	GroupInfo []byte
	RatchetTree []byte
}

// ConnectionGroupInfo returns the data a joiner needs to issue an external
// commit (the connection-flow "resync" path reuses the same group-operation
// pipeline once that commit arrives).
func (e *Engine) ConnectionGroupInfo(ctx context.Context, groupID ids.QualifiedGroupId, earKey groupstate.EarKey) (ExternalCommitInfo, error) {
	sealed, _, err := e.store.GetEnvelope(ctx, groupID)
	if err != nil {
		return ExternalCommitInfo{}, apierrors.NotFoundf("ds_group", "no group state for "+groupID.String())
	}
	state, err := groupstate.Open(earKey, groupID, sealed)
	if err != nil {
		return ExternalCommitInfo{}, apierrors.Decryptionf("ds_group", "opening group state for "+groupID.String(), err)
	}
	return ExternalCommitInfo{GroupInfo: state.SerializedGroup}, nil
}

// FetchGroupState decrypts and returns the current DsGroupState, for
// maintenance callers that need to inspect membership out of band.
func (e *Engine) FetchGroupState(ctx context.Context, groupID ids.QualifiedGroupId, earKey groupstate.EarKey) (groupstate.DsGroupState, error) {
	sealed, _, err := e.store.GetEnvelope(ctx, groupID)
	if err != nil {
		return groupstate.DsGroupState{}, apierrors.NotFoundf("ds_group", "no group state for "+groupID.String())
	}
	state, err := groupstate.Open(earKey, groupID, sealed)
	if err != nil {
		return groupstate.DsGroupState{}, apierrors.Decryptionf("ds_group", "opening group state for "+groupID.String(), err)
	}
	return state, nil
}

// UpdateQueueReference rewrites sender's stored QS queue reference, used
// when a client rotates its queue without a full group operation.
func (e *Engine) UpdateQueueReference(ctx context.Context, groupID ids.QualifiedGroupId, earKey groupstate.EarKey, leafIndex uint32, newRef []byte) error {
	sealed, _, err := e.store.GetEnvelope(ctx, groupID)
	if err != nil {
		return apierrors.NotFoundf("ds_group", "no group state for "+groupID.String())
	}
	state, err := groupstate.Open(earKey, groupID, sealed)
	if err != nil {
		return apierrors.Decryptionf("ds_group", "opening group state for "+groupID.String(), err)
	}
	profile, ok := state.Members[leafIndex]
	if !ok {
		return apierrors.NotFoundf("ds_group", "leaf has no membership profile")
	}
	profile.QueueReference = newRef
	state.Members[leafIndex] = profile
	now := e.now()
	state.LastUsed = now

	sealedOut, err := groupstate.Seal(earKey, state)
	if err != nil {
		return apierrors.Storagef("ds_group", "sealing updated group state for "+groupID.String(), err)
	}
	if err := e.store.PutEnvelope(ctx, groupID, sealedOut, now); err != nil {
		return apierrors.Storagef("ds_group", "persisting updated group state for "+groupID.String(), err)
	}
	return nil
}

// SweepExpired deletes every group envelope whose last-used time is older
// than maxAge, and returns how many were removed. Safe because envelopes are
// opaque to the server: there is nothing in a stale envelope a sweep could
// leak by deleting it.
func (e *Engine) SweepExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	n, err := e.store.DeleteExpired(ctx, e.now().Add(-maxAge))
	if err != nil {
		return 0, apierrors.Storagef("ds_group", "sweeping expired group state", err)
	}
	return n, nil
}
