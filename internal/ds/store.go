package ds

import (
	"context"
	"time"

	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

// Store is the persistence port C3 is built on: a table of opaque, sealed
// DsGroupState envelopes keyed by group id, plus the group-id reservation
// ledger that makes reserve_group_id idempotent. A Postgres implementation
// lives in internal/storage; dstest provides an in-memory one.
type Store interface {
	// Reserve records id as reserved, empty, and not yet created. It is
	// idempotent: reserving an already-reserved id is a no-op.
	Reserve(ctx context.Context, id ids.QualifiedGroupId) error
	// IsReserved reports whether id was reserved and never subsequently
	// filled in by CreateGroup's PutEnvelope call.
	IsReserved(ctx context.Context, id ids.QualifiedGroupId) (bool, error)

	// PutEnvelope stores sealed under id, overwriting any previous
	// envelope, and stamps its last-used time.
	PutEnvelope(ctx context.Context, id ids.QualifiedGroupId, sealed []byte, lastUsed time.Time) error
	// GetEnvelope returns the current sealed envelope for id.
	GetEnvelope(ctx context.Context, id ids.QualifiedGroupId) (sealed []byte, lastUsed time.Time, err error)

	// DeleteExpired removes every envelope whose last-used time is before
	// threshold and returns how many were removed.
	DeleteExpired(ctx context.Context, threshold time.Time) (int, error)
}

// ErrNotReserved indicates create_group was called against an id that was
// never reserved (or was reserved by reserve_group_id but already filled).
type ErrNotReserved struct {
	GroupId ids.QualifiedGroupId
}

func (e *ErrNotReserved) Error() string {
	return "ds: group id " + e.GroupId.String() + " was not reserved"
}

// ErrAlreadyCreated indicates create_group was called twice for the same id.
type ErrAlreadyCreated struct {
	GroupId ids.QualifiedGroupId
}

func (e *ErrAlreadyCreated) Error() string {
	return "ds: group id " + e.GroupId.String() + " already has a group"
}
