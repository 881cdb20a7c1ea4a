package as

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/giantswarm/phnx-homeserver/internal/apierrors"
	"github.com/giantswarm/phnx-homeserver/internal/credentials"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
	"github.com/giantswarm/phnx-homeserver/internal/opaque"
	"github.com/giantswarm/phnx-homeserver/internal/queue"
)

// Service drives the AS domain logic against a Store, the credential
// Manager (C1) and the generic queue Engine (C2, shared with the QS). It
// also holds the OPAQUE registration Orchestrator it was built with, which
// none of its methods calls. It never touches a transport: callers
// (a gRPC handler, a test) translate wire requests into these calls.
type Service struct {
	store       Store
	credentials *credentials.Manager
	queues      *queue.Engine
	opaque      *opaque.Orchestrator
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(store Store, credManager *credentials.Manager, queues *queue.Engine, orchestrator *opaque.Orchestrator, opts ...Option) *Service {
	s := &Service{
		store:       store,
		credentials: credManager,
		queues:      queues,
		opaque:      orchestrator,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterUser issues the new client's ClientCredential via the credential
// Manager, creates its AS queue, and stores its initial encrypted user
// profile under key index 0. OPAQUE registration (register_user's
// password-establishment half) is driven separately through
// opaque.Orchestrator's BeginRegistration/FinishRegistration, a distinct
// two-round-trip exchange the caller sequences around this call;
// RegisterUser does not invoke it.
func (s *Service) RegisterUser(ctx context.Context, req RegisterUserRequest, intermediateSigner credentials.Signer, signerFp ids.CredentialFingerprint, scheme credentials.SignatureScheme) (RegisterUserResult, error) {
	lifetime := req.CredentialLifetime
	if lifetime <= 0 {
		lifetime = 90 * 24 * time.Hour
	}
	cred, err := s.credentials.IssueClientCredential(ctx, req.UserId, req.ClientVerifyingKey, lifetime, intermediateSigner, signerFp)
	if err != nil {
		return RegisterUserResult{}, err
	}

	qid := queue.Id(req.UserId.UUID)
	if err := s.queues.Store().CreateQueue(ctx, qid); err != nil {
		return RegisterUserResult{}, apierrors.Storagef("as_queue", "creating queue for "+req.UserId.String(), err)
	}
	if err := s.store.PutClientQueueId(ctx, req.UserId, qid); err != nil {
		return RegisterUserResult{}, apierrors.Storagef("as_client_record", "persisting queue id for "+req.UserId.String(), err)
	}
	if err := s.store.PutUserProfile(ctx, UserProfileEntry{UserId: req.UserId, KeyIndex: 0, EncryptedProfile: req.EncryptedUserProfile}); err != nil {
		return RegisterUserResult{}, apierrors.Storagef("as_client_record", "persisting initial profile for "+req.UserId.String(), err)
	}

	s.logger.Info("registered user", slog.String("user_id", req.UserId.String()))
	return RegisterUserResult{ClientCredential: cred}, nil
}

// GetUserProfile returns the encrypted profile published under keyIndex.
func (s *Service) GetUserProfile(ctx context.Context, userID ids.UserId, keyIndex uint32) ([]byte, error) {
	entry, err := s.store.GetUserProfile(ctx, userID, keyIndex)
	if err != nil {
		return nil, apierrors.NotFoundf("user_profile", userID.String())
	}
	return entry.EncryptedProfile, nil
}

// PublishConnectionPackages verifies signature over the canonical encoding
// of packages under verifyingKey (the caller's already-authenticated client
// credential) and replaces the stored set for userID with the unexpired
// packages.
func (s *Service) PublishConnectionPackages(ctx context.Context, userID ids.UserId, verifyingKey ed25519.PublicKey, packages []ConnectionPackage, signature []byte) error {
	body := connectionPackagesBody(packages)
	if !ed25519.Verify(verifyingKey, body, signature) {
		return apierrors.Authenticationf("connection_packages", "invalid signature for "+userID.String(), nil)
	}
	now := s.now()
	fresh := packages[:0:0]
	for _, p := range packages {
		if !p.Expired(now) {
			fresh = append(fresh, p)
		}
	}
	if err := s.store.PutConnectionPackages(ctx, userID, fresh); err != nil {
		return apierrors.Storagef("connection_packages", "publishing for "+userID.String(), err)
	}
	return nil
}

// GetUserConnectionPackages returns every unexpired connection package
// currently published for userID.
func (s *Service) GetUserConnectionPackages(ctx context.Context, userID ids.UserId) ([]ConnectionPackage, error) {
	packages, err := s.store.GetConnectionPackages(ctx, userID)
	if err != nil {
		return nil, apierrors.NotFoundf("connection_packages", userID.String())
	}
	now := s.now()
	out := packages[:0:0]
	for _, p := range packages {
		if !p.Expired(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

// CreateHandle verifies the signed handle-creation payload, mints a
// dedicated mailbox queue for it, and stores the record. It reports
// created=false rather than an error when the hash is already taken,
// matching the specification's "not created, not an error" boundary
// behaviour for a racing duplicate.
func (s *Service) CreateHandle(ctx context.Context, userID ids.UserId, signed SignedHandleCreation) (created bool, err error) {
	body := handleCreationBody(signed.Hash, signed.VerifyingKey)
	if !ed25519.Verify(signed.VerifyingKey, body, signed.Signature) {
		return false, apierrors.Authenticationf("handle", "invalid signature", nil)
	}

	qid := queue.Id(deriveHandleQueueUUID(signed.Hash))
	if err := s.queues.Store().CreateQueue(ctx, qid); err != nil {
		return false, apierrors.Storagef("handle", "creating mailbox queue", err)
	}

	rec := HandleRecord{Hash: signed.Hash, UserId: userID, VerifyingKey: signed.VerifyingKey, QueueId: qid}
	created, err = s.store.CreateHandle(ctx, rec)
	if err != nil {
		return false, apierrors.Storagef("handle", "creating "+signed.Hash.String(), err)
	}
	return created, nil
}

// FetchConnectionPackageByHandle is connect_handle's step 1: resolve hash to
// a user and return one of its published connection packages for the
// contacter to open contact with.
func (s *Service) FetchConnectionPackageByHandle(ctx context.Context, hash ids.UserHandleHash) (ConnectionPackage, error) {
	rec, err := s.store.GetHandle(ctx, hash)
	if err != nil {
		return ConnectionPackage{}, apierrors.NotFoundf("handle", hash.String())
	}
	packages, err := s.GetUserConnectionPackages(ctx, rec.UserId)
	if err != nil {
		return ConnectionPackage{}, err
	}
	if len(packages) == 0 {
		return ConnectionPackage{}, apierrors.NotFoundf("connection_packages", rec.UserId.String())
	}
	return packages[0], nil
}

// EnqueueHandleOffer is connect_handle's step 2: deliver the HPKE-encrypted
// connection offer into the handle owner's mailbox queue, waking their
// listen_handle stream.
func (s *Service) EnqueueHandleOffer(ctx context.Context, hash ids.UserHandleHash, offerCiphertext []byte) (isListening bool, err error) {
	rec, err := s.store.GetHandle(ctx, hash)
	if err != nil {
		return false, apierrors.NotFoundf("handle", hash.String())
	}
	next, err := s.queues.Store().NextSequenceNumber(ctx, rec.QueueId)
	if err != nil {
		return false, apierrors.Storagef("handle", "reading mailbox sequence for "+hash.String(), err)
	}
	return s.queues.Enqueue(ctx, rec.QueueId, next, offerCiphertext)
}

// ListenHandle streams HandleQueueMessage events (connection offers
// delivered via connect_handle) from a handle's mailbox queue.
func (s *Service) ListenHandle(ctx context.Context, hash ids.UserHandleHash, fromSequence uint64) (<-chan queue.Event, error) {
	rec, err := s.store.GetHandle(ctx, hash)
	if err != nil {
		return nil, apierrors.NotFoundf("handle", hash.String())
	}
	return s.queues.Listen(ctx, rec.QueueId, fromSequence)
}

// AsEnqueueMessage is the direct-path delivery used by the connection flow
// when the recipient was resolved by UserId rather than a handle: it routes
// straight into the recipient's per-user AS queue.
func (s *Service) AsEnqueueMessage(ctx context.Context, recipient ids.UserId, ciphertext []byte) (isListening bool, err error) {
	qid, err := s.store.ClientQueueId(ctx, recipient)
	if err != nil {
		return false, apierrors.NotFoundf("as_client_record", recipient.String())
	}
	next, err := s.queues.Store().NextSequenceNumber(ctx, qid)
	if err != nil {
		return false, apierrors.Storagef("as_queue", "reading sequence for "+recipient.String(), err)
	}
	return s.queues.Enqueue(ctx, qid, next, ciphertext)
}

// Listen streams queue.Event for userID's own per-user AS queue, the
// bidirectional `listen` RPC's server-push half.
func (s *Service) Listen(ctx context.Context, userID ids.UserId, fromSequence uint64) (<-chan queue.Event, error) {
	qid, err := s.store.ClientQueueId(ctx, userID)
	if err != nil {
		return nil, apierrors.NotFoundf("as_client_record", userID.String())
	}
	return s.queues.Listen(ctx, qid, fromSequence)
}

// Ack truncates userID's AS queue up to and including upToSequence.
func (s *Service) Ack(ctx context.Context, userID ids.UserId, upToSequence uint64) error {
	qid, err := s.store.ClientQueueId(ctx, userID)
	if err != nil {
		return apierrors.NotFoundf("as_client_record", userID.String())
	}
	return s.queues.Ack(ctx, qid, upToSequence)
}

// AckHandle truncates the handle mailbox queue for hash up to and including
// upToSequence — the listen_handle side of ack-driven truncation.
func (s *Service) AckHandle(ctx context.Context, hash ids.UserHandleHash, upToSequence uint64) error {
	rec, err := s.store.GetHandle(ctx, hash)
	if err != nil {
		return apierrors.NotFoundf("handle", hash.String())
	}
	return s.queues.Ack(ctx, rec.QueueId, upToSequence)
}

func connectionPackagesBody(packages []ConnectionPackage) []byte {
	var buf bytes.Buffer
	for _, p := range packages {
		buf.Write(p.HpkeEncryptionKey[:])
		var t [8]byte
		binary.BigEndian.PutUint64(t[:], uint64(p.Lifetime.Unix()))
		buf.Write(t[:])
	}
	return buf.Bytes()
}

func handleCreationBody(hash ids.UserHandleHash, verifyingKey ed25519.PublicKey) []byte {
	var buf bytes.Buffer
	buf.Write(hash[:])
	buf.Write(verifyingKey)
	return buf.Bytes()
}

// deriveHandleQueueUUID derives a stable queue id from a handle hash so a
// handle's mailbox queue id never needs its own storage column: it is
// always reproducible from the hash alone.
func deriveHandleQueueUUID(hash ids.UserHandleHash) [16]byte {
	var out [16]byte
	copy(out[:], hash[:16])
	return out
}
