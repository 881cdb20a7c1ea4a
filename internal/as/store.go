package as

import (
	"context"

	"github.com/giantswarm/phnx-homeserver/internal/ids"
	"github.com/giantswarm/phnx-homeserver/internal/queue"
)

// Store is the persistence port the AS domain logic is built on, beyond the
// generic queue.Store and credentials.Store it also depends on: per-user
// connection packages, user profiles, and the handle registry. A Postgres
// implementation lives in internal/storage; astest provides an in-memory
// one.
type Store interface {
	// PutConnectionPackages replaces the stored connection packages for
	// userID with packages. A client republishes its full set each time it
	// wants to refresh them (packages carry their own lifetime, so expired
	// ones are simply not served).
	PutConnectionPackages(ctx context.Context, userID ids.UserId, packages []ConnectionPackage) error
	// GetConnectionPackages returns every connection package stored for
	// userID, expired ones included; Service.GetUserConnectionPackages
	// filters out the expired ones.
	GetConnectionPackages(ctx context.Context, userID ids.UserId) ([]ConnectionPackage, error)

	// PutUserProfile stores one profile entry, keyed by (UserId, KeyIndex).
	PutUserProfile(ctx context.Context, entry UserProfileEntry) error
	// GetUserProfile returns the profile entry for (userID, keyIndex).
	GetUserProfile(ctx context.Context, userID ids.UserId, keyIndex uint32) (UserProfileEntry, error)

	// CreateHandle inserts rec if no record exists for rec.Hash yet. It
	// reports created=false (not an error) if the hash was already taken,
	// per the boundary behaviour: a racing duplicate create is a "not
	// created" outcome.
	CreateHandle(ctx context.Context, rec HandleRecord) (created bool, err error)
	// GetHandle looks up the record for hash.
	GetHandle(ctx context.Context, hash ids.UserHandleHash) (HandleRecord, error)
	// DeleteHandle removes the record for hash, if any.
	DeleteHandle(ctx context.Context, hash ids.UserHandleHash) error

	// ClientQueueId returns the AS queue id registered for userID, so a
	// caller can route into queue.Engine without re-deriving it ad hoc.
	ClientQueueId(ctx context.Context, userID ids.UserId) (queue.Id, error)
	// PutClientQueueId records the AS queue id minted for userID at
	// registration time.
	PutClientQueueId(ctx context.Context, userID ids.UserId, id queue.Id) error
}
