package connection

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/giantswarm/phnx-homeserver/internal/as"
	"github.com/giantswarm/phnx-homeserver/internal/credentials"
	"github.com/giantswarm/phnx-homeserver/internal/credentials/credentialstest"
	"github.com/giantswarm/phnx-homeserver/internal/ds"
	"github.com/giantswarm/phnx-homeserver/internal/ds/dstest"
	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
	"github.com/giantswarm/phnx-homeserver/internal/groupstate"
	"github.com/giantswarm/phnx-homeserver/internal/hpke"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
	"github.com/giantswarm/phnx-homeserver/internal/mls/mlstest"
)

// fakeFetcher serves one pre-published package, either by UserId or handle.
type fakeFetcher struct {
	recipient ids.UserId
	pkg       as.ConnectionPackage
}

func (f fakeFetcher) FetchDirect(context.Context, ids.UserId) (as.ConnectionPackage, error) {
	return f.pkg, nil
}

func (f fakeFetcher) FetchByHandle(context.Context, ids.UserHandleHash) (as.ConnectionPackage, ids.UserId, error) {
	return f.pkg, f.recipient, nil
}

// dsAdapter adapts ds.Engine to the GroupReserver/GroupCreator capability
// interfaces this package defines.
type dsAdapter struct{ engine *ds.Engine }

func (d dsAdapter) ReserveGroupId(ctx context.Context, domain ids.UserId) (ids.QualifiedGroupId, error) {
	return d.engine.ReserveGroupId(ctx, domain)
}

func (d dsAdapter) CreateGroup(ctx context.Context, groupID ids.QualifiedGroupId, creatorLeaf []byte, groupInfo []byte, earKey groupstate.EarKey, initialKey []byte) error {
	return d.engine.CreateGroup(ctx, groupID, creatorLeaf, groupInfo, earKey, initialKey)
}

type fakeLocalGroupFactory struct{}

func (fakeLocalGroupFactory) NewGroup(LocalGroupParams) (LocalGroup, error) {
	return LocalGroup{GroupInfo: []byte("group-info"), LeafIndex: 0}, nil
}

type fakeDeliverer struct {
	directDeliveries map[ids.UserId][]byte
	handleDeliveries map[ids.UserHandleHash][]byte
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{directDeliveries: map[ids.UserId][]byte{}, handleDeliveries: map[ids.UserHandleHash][]byte{}}
}

func (d *fakeDeliverer) DeliverDirect(_ context.Context, recipient ids.UserId, ciphertext []byte) error {
	d.directDeliveries[recipient] = ciphertext
	return nil
}

func (d *fakeDeliverer) DeliverByHandle(_ context.Context, hash ids.UserHandleHash, ciphertext []byte) error {
	d.handleDeliveries[hash] = ciphertext
	return nil
}

type fakeConversationStore struct{ stored []PendingConversation }

func (s *fakeConversationStore) PutPendingConversation(_ context.Context, conv PendingConversation) error {
	s.stored = append(s.stored, conv)
	return nil
}

func TestFlow_DirectPath_EndToEnd(t *testing.T) {
	ctx := context.Background()
	domain := fqdn.MustParse("example.com")

	credStore := credentialstest.New()
	rootKp, err := credentials.GenerateKeyPair(credentials.Ed25519)
	require.NoError(t, err)
	root := credentials.AsRootCredential{Domain: domain, VerifyingKey: rootKp.Public, Fingerprint: ids.FingerprintOf(rootKp.Public), NotAfter: time.Now().Add(time.Hour)}
	require.NoError(t, credStore.PutRoot(ctx, root))
	mgr := credentials.NewManager(domain, credStore)
	intermediate, intermediateKp, err := mgr.IssueIntermediate(ctx, rootKp, credentials.Ed25519, time.Hour)
	require.NoError(t, err)
	require.NoError(t, mgr.Activate(ctx, intermediate.Fingerprint))

	recipient := ids.NewUserId(domain)
	recipientKp, err := credentials.GenerateKeyPair(credentials.Ed25519)
	require.NoError(t, err)
	recipientCred, err := mgr.IssueClientCredential(ctx, recipient, recipientKp.Public, time.Hour, intermediateKp, intermediate.Fingerprint)
	require.NoError(t, err)

	hpkeKp, err := hpke.GenerateKeyPair()
	require.NoError(t, err)
	pkg := as.ConnectionPackage{
		ProtocolVersion:          1,
		HpkeEncryptionKey:        hpkeKp.Public,
		Lifetime:                 time.Now().Add(time.Hour),
		ClientCredential:         recipientCred,
		ClientCredentialSignerFp: intermediate.Fingerprint,
	}

	dsEngine := ds.NewEngine(dstest.NewMemStore(), mlstest.FakeProcessor{})
	deliverer := newFakeDeliverer()
	convStore := &fakeConversationStore{}

	flow := NewFlow(fakeFetcher{recipient: recipient, pkg: pkg}, mgr, dsAdapter{dsEngine}, dsAdapter{dsEngine}, fakeLocalGroupFactory{}, deliverer, convStore)

	self := ids.NewUserId(domain)
	selfKp, err := credentials.GenerateKeyPair(credentials.Ed25519)
	require.NoError(t, err)
	selfCred, err := mgr.IssueClientCredential(ctx, self, selfKp.Public, time.Hour, intermediateKp, intermediate.Fingerprint)
	require.NoError(t, err)

	fetched, err := flow.FetchDirect(ctx, recipient)
	require.NoError(t, err)

	verified, err := fetched.Verify(ctx, recipient)
	require.NoError(t, err)

	reserved, err := verified.Reserve(ctx, self)
	require.NoError(t, err)

	profileSecret := make([]byte, 32)
	_, err = rand.Read(profileSecret)
	require.NoError(t, err)
	prepared, err := reserved.Prepare(ctx, selfCred, selfKp, profileSecret)
	require.NoError(t, err)
	require.Len(t, convStore.stored, 1)
	require.Equal(t, PendingConversationDirect, convStore.stored[0].Kind)

	result, err := prepared.Commit(ctx, []byte("encrypted-profile-key"))
	require.NoError(t, err)
	require.True(t, result.OfferDelivered)
	require.Equal(t, reserved.groupID, result.GroupId)

	ciphertext, ok := deliverer.directDeliveries[recipient]
	require.True(t, ok)
	require.NotEmpty(t, ciphertext)
}

// A connection offer verified with the recipient UserId R fails verification
// when retried with any R' != R — modelled here as: the signed-over bytes
// for one recipient differ from those for another, because RecipientUserId
// is part of them, so a signature captured for R does not cover R'.
func TestOfferBody_BindsRecipient(t *testing.T) {
	domain := fqdn.MustParse("example.com")
	r1 := ids.NewUserId(domain)
	r2 := ids.NewUserId(domain)

	offer := ConnectionOffer{RecipientUserId: r1}
	body1 := offerBody(offer)

	offer.RecipientUserId = r2
	body2 := offerBody(offer)

	require.NotEqual(t, body1, body2)
}
