package connection

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/giantswarm/phnx-homeserver/internal/apierrors"
	"github.com/giantswarm/phnx-homeserver/internal/as"
	"github.com/giantswarm/phnx-homeserver/internal/credentials"
	"github.com/giantswarm/phnx-homeserver/internal/groupstate"
	"github.com/giantswarm/phnx-homeserver/internal/hpke"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

// PackageFetcher is the capability to retrieve a recipient's published
// connection package, by UserId (the direct path) or by handle hash (the
// handle path, whose first response on the bidirectional RPC is the
// package).
type PackageFetcher interface {
	FetchDirect(ctx context.Context, recipient ids.UserId) (as.ConnectionPackage, error)
	FetchByHandle(ctx context.Context, hash ids.UserHandleHash) (as.ConnectionPackage, ids.UserId, error)
}

// CredentialVerifier is the capability to verify a connection package's
// client credential against the Credential Store, fetching the pinned
// signer by fingerprint.
type CredentialVerifier interface {
	VerifyClientCredential(ctx context.Context, v credentials.VerifiableClientCredential) (credentials.ClientCredential, error)
}

// GroupReserver is the capability to reserve a fresh group id on the DS.
type GroupReserver interface {
	ReserveGroupId(ctx context.Context, domain ids.UserId) (ids.QualifiedGroupId, error)
}

// GroupCreator is the capability to commit a freshly created local group to
// the DS.
type GroupCreator interface {
	CreateGroup(ctx context.Context, groupID ids.QualifiedGroupId, creatorLeaf []byte, groupInfo []byte, earKey groupstate.EarKey, initialEncryptedUserProfileKey []byte) error
}

// LocalGroupFactory is the capability to construct a brand-new local MLS
// group with the caller as its sole member. It is an external collaborator
// boundary in the same spirit as internal/mls.Processor: the MLS library
// itself is out of scope, only the shape this flow drives it through is
// defined here.
type LocalGroupFactory interface {
	NewGroup(params LocalGroupParams) (LocalGroup, error)
}

// OfferDeliverer is the capability to deliver an HPKE-encrypted connection
// offer to its recipient — on the handle path by replying on the open RPC,
// on the direct path by calling as_enqueue_message.
type OfferDeliverer interface {
	DeliverDirect(ctx context.Context, recipient ids.UserId, ciphertext []byte) error
	DeliverByHandle(ctx context.Context, hash ids.UserHandleHash, ciphertext []byte) error
}

// ConversationStore persists the local PendingConversation record created in
// phase 4, under the same transaction as the rest of "prepare locally" — a
// failure in the later commit-remote phase leaves this record behind so the
// next contact attempt deduplicates against it.
type ConversationStore interface {
	PutPendingConversation(ctx context.Context, conv PendingConversation) error
}

// Flow holds every capability the five phases need. A production client
// wires concrete adapters (AS/DS RPC clients, the local MLS library, the
// embedded client store); tests wire fakes.
type Flow struct {
	fetcher    PackageFetcher
	verifier   CredentialVerifier
	reserver   GroupReserver
	creator    GroupCreator
	localGroup LocalGroupFactory
	deliverer  OfferDeliverer
	store      ConversationStore
	now        func() time.Time
}

func NewFlow(fetcher PackageFetcher, verifier CredentialVerifier, reserver GroupReserver, creator GroupCreator, localGroup LocalGroupFactory, deliverer OfferDeliverer, store ConversationStore) *Flow {
	return &Flow{
		fetcher:    fetcher,
		verifier:   verifier,
		reserver:   reserver,
		creator:    creator,
		localGroup: localGroup,
		deliverer:  deliverer,
		store:      store,
		now:        time.Now,
	}
}

// Fetched is phase 1's output: the recipient's published connection
// package, plus enough routing context to carry through the remaining
// phases.
type Fetched struct {
	flow      *Flow
	byHandle  bool
	handle    ids.UserHandleHash
	recipient ids.UserId
	pkg       as.ConnectionPackage
}

// FetchDirect is phase 1, direct path: look up recipient's connection
// package by UserId.
func (f *Flow) FetchDirect(ctx context.Context, recipient ids.UserId) (*Fetched, error) {
	pkg, err := f.fetcher.FetchDirect(ctx, recipient)
	if err != nil {
		return nil, err
	}
	return &Fetched{flow: f, recipient: recipient, pkg: pkg}, nil
}

// FetchByHandle is phase 1, handle path: resolve a handle hash to its
// owner's connection package over the bidirectional connect_handle RPC.
func (f *Flow) FetchByHandle(ctx context.Context, hash ids.UserHandleHash) (*Fetched, error) {
	pkg, recipient, err := f.fetcher.FetchByHandle(ctx, hash)
	if err != nil {
		return nil, err
	}
	return &Fetched{flow: f, byHandle: true, handle: hash, recipient: recipient, pkg: pkg}, nil
}

// Verified is phase 2's output: the fetched package, signature-checked and
// lifetime-checked.
type Verified struct {
	fetched *Fetched
	cred    credentials.ClientCredential
}

// Verify is phase 2: fetch the signing intermediate by the fingerprint the
// package is pinned to, check the signature, and check the package's
// lifetime hasn't elapsed.
func (f *Fetched) Verify(ctx context.Context, signerDomain ids.UserId) (*Verified, error) {
	flow := f.flow
	if flow.now().After(f.pkg.Lifetime) {
		return nil, apierrors.Authenticationf("connection_package", "package for "+f.recipient.String()+" has expired", nil)
	}

	verifiable := credentials.VerifiableClientCredential{
		UserId:                   f.pkg.ClientCredential.UserId,
		VerifyingKey:             f.pkg.ClientCredential.VerifyingKey,
		Signature:                f.pkg.ClientCredential.Signature,
		NotAfter:                 f.pkg.ClientCredential.NotAfter,
		ClientCredentialSignerFp: f.pkg.ClientCredentialSignerFp,
		SignerDomain:             signerDomain.Domain,
	}
	cred, err := flow.verifier.VerifyClientCredential(ctx, verifiable)
	if err != nil {
		return nil, err
	}
	return &Verified{fetched: f, cred: cred}, nil
}

// Reserved is phase 3's output: a fresh group id minted for the new
// connection group.
type Reserved struct {
	verified *Verified
	groupID  ids.QualifiedGroupId
}

// Reserve is phase 3: mint a fresh group id on the DS, scoped to the
// caller's own domain (the caller is always the connection group's owning
// homeserver, regardless of which domain the recipient belongs to).
func (v *Verified) Reserve(ctx context.Context, ownDomain ids.UserId) (*Reserved, error) {
	groupID, err := v.fetched.flow.reserver.ReserveGroupId(ctx, ownDomain)
	if err != nil {
		return nil, err
	}
	return &Reserved{verified: v, groupID: groupID}, nil
}

// Prepared is phase 4's output: the locally-constructed connection group,
// the signed-and-ready-to-encrypt ConnectionOffer, and the pending local
// conversation record.
type Prepared struct {
	reserved *Reserved
	offer    ConnectionOffer
	group    LocalGroup
	conv     PendingConversation
}

// Prepare is phase 4: create the local one-member Group, draw fresh random
// key material (the group ear key, the identity-link wrapper key and the
// friendship-package secrets), build the signed ConnectionOffer bound to the
// recipient's UserId, and persist the local pending conversation record. No
// leaf keypair is generated here.
func (r *Reserved) Prepare(ctx context.Context, self credentials.ClientCredential, selfSigner credentials.Signer, userProfileBaseSecret []byte) (*Prepared, error) {
	flow := r.verified.fetched.flow

	group, err := flow.localGroup.NewGroup(LocalGroupParams{})
	if err != nil {
		return nil, apierrors.Storagef("connection_group", "constructing local MLS group", err)
	}

	var earKey groupstate.EarKey
	var wrapperKey [32]byte
	var friendshipEarKey [32]byte
	var friendshipToken, connectionKey, attributionKey [32]byte
	for _, buf := range [][]byte{earKey[:], wrapperKey[:], friendshipEarKey[:], friendshipToken[:], connectionKey[:], attributionKey[:]} {
		if _, err := io.ReadFull(rand.Reader, buf); err != nil {
			return nil, apierrors.Storagef("connection_group", "generating connection key material", err)
		}
	}

	offer := ConnectionOffer{
		SenderClientCredential:  self,
		RecipientUserId:         r.verified.fetched.recipient,
		ConnectionGroupId:       r.groupID,
		ConnectionGroupEarKey:   earKey,
		IdentityLinkWrapperKey:  wrapperKey,
		FriendshipPackageEarKey: friendshipEarKey,
		FriendshipPackage: FriendshipPackage{
			FriendshipToken:       friendshipToken[:],
			ConnectionKey:         connectionKey[:],
			WelcomeAttributionKey: attributionKey[:],
			UserProfileBaseSecret: userProfileBaseSecret,
		},
	}
	offer.Signature = selfSigner.Sign(offerBody(offer))

	conv := PendingConversation{
		ConnectionGroupId: r.groupID,
		CreatedAt:         flow.now(),
	}
	if r.verified.fetched.byHandle {
		conv.Kind = PendingConversationHandle
		conv.RecipientHandle = r.verified.fetched.handle
	} else {
		conv.Kind = PendingConversationDirect
		conv.RecipientUserId = r.verified.fetched.recipient
	}
	if err := flow.store.PutPendingConversation(ctx, conv); err != nil {
		return nil, apierrors.Storagef("connection_group", "persisting pending conversation", err)
	}

	return &Prepared{reserved: r, offer: offer, group: group, conv: conv}, nil
}

// Result is what Commit returns: the connection group id and whether the
// offer was delivered. Commit does not set RecipientListening: the
// OfferDeliverer reports no listener state, so the field is always false.
type Result struct {
	GroupId          ids.QualifiedGroupId
	OfferDelivered   bool
	RecipientListening bool
}

// Commit is phase 5: create the group remotely on the DS, then
// HPKE-encrypt the signed offer under the recipient's connection package
// encryption key and deliver it, on whichever path (handle or direct) the
// flow was started on. This phase runs outside the local DB transaction
// phase 4 committed under — a failure here leaves the PendingConversation
// created in Prepare behind for the next contact attempt to deduplicate
// against.
func (p *Prepared) Commit(ctx context.Context, initialEncryptedUserProfileKey []byte) (Result, error) {
	flow := p.reserved.verified.fetched.flow
	fetched := p.reserved.verified.fetched

	if err := flow.creator.CreateGroup(ctx, p.reserved.groupID, groupCreatorLeaf(p.group), p.group.GroupInfo, p.offer.ConnectionGroupEarKey, initialEncryptedUserProfileKey); err != nil {
		return Result{}, err
	}

	sealed, err := hpke.Seal(fetched.pkg.HpkeEncryptionKey, offerBody(p.offer), p.offer.RecipientUserId.UUID[:])
	if err != nil {
		return Result{}, apierrors.Storagef("connection_offer", "sealing offer", err)
	}
	ciphertext := append(append([]byte{}, sealed.EncappedKey[:]...), sealed.Ciphertext...)

	if fetched.byHandle {
		if err := flow.deliverer.DeliverByHandle(ctx, fetched.handle, ciphertext); err != nil {
			return Result{}, err
		}
	} else {
		if err := flow.deliverer.DeliverDirect(ctx, fetched.recipient, ciphertext); err != nil {
			return Result{}, err
		}
	}

	return Result{GroupId: p.reserved.groupID, OfferDelivered: true}, nil
}

func groupCreatorLeaf(g LocalGroup) []byte {
	return []byte(fmt.Sprintf("leaf:%d", g.LeafIndex))
}

// offerBody is the canonical encoding a ConnectionOffer's signature covers.
// Binding RecipientUserId into the signed bytes is what makes a verified
// offer fail when replayed against a different recipient.
func offerBody(o ConnectionOffer) []byte {
	var buf []byte
	buf = append(buf, o.RecipientUserId.UUID[:]...)
	buf = append(buf, []byte(o.RecipientUserId.Domain.String())...)
	buf = append(buf, o.ConnectionGroupId.UUID[:]...)
	buf = append(buf, o.ConnectionGroupEarKey[:]...)
	buf = append(buf, o.IdentityLinkWrapperKey[:]...)
	buf = append(buf, o.FriendshipPackageEarKey[:]...)
	buf = append(buf, o.FriendshipPackage.FriendshipToken...)
	buf = append(buf, o.FriendshipPackage.ConnectionKey...)
	buf = append(buf, o.FriendshipPackage.WelcomeAttributionKey...)
	return buf
}
