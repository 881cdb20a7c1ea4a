// Package apierrors defines the error taxonomy shared by the AS, QS and DS
// domain packages. Every error returned across a component boundary (C1-C4)
// is one of the kinds below, never a bare fmt.Errorf, so that callers can
// branch on semantics instead of string matching.
package apierrors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Kind classifies an error by how the caller should react to it, per the
// propagation policy in the error handling design: Storage and Stale are
// retryable, Authentication/ProtocolViolation/Decryption/NotFound are not,
// Cancelled is a clean shutdown path rather than a failure.
type Kind string

const (
	KindStorage           Kind = "storage"
	KindAuthentication    Kind = "authentication"
	KindProtocolViolation Kind = "protocol_violation"
	KindDecryption        Kind = "decryption"
	KindNotFound          Kind = "not_found"
	KindStale             Kind = "stale"
	KindCancelled         Kind = "cancelled"
)

// Sentinel errors for errors.Is comparisons that don't need extra context.
var (
	ErrStorage           = errors.New("storage failure")
	ErrAuthentication    = errors.New("authentication failed")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrDecryption        = errors.New("decryption failed")
	ErrNotFound          = errors.New("not found")
	ErrStale             = errors.New("stale")
	ErrCancelled         = errors.New("cancelled")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindStorage:
		return ErrStorage
	case KindAuthentication:
		return ErrAuthentication
	case KindProtocolViolation:
		return ErrProtocolViolation
	case KindDecryption:
		return ErrDecryption
	case KindNotFound:
		return ErrNotFound
	case KindStale:
		return ErrStale
	case KindCancelled:
		return ErrCancelled
	default:
		return errors.New("unknown error")
	}
}

// Error is the concrete typed error carried across component boundaries. It
// wraps an underlying cause while attaching the resource and a short reason
// a caller or operator can act on without parsing free text.
type Error struct {
	Kind     Kind
	Resource string
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s (%v)", e.Kind, e.Resource, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Resource, e.Reason)
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return sentinelFor(e.Kind)
}

func newErr(kind Kind, resource, reason string, cause error) *Error {
	return &Error{Kind: kind, Resource: resource, Reason: reason, Err: cause}
}

// New constructs a typed error of the given kind.
func New(kind Kind, resource, reason string, cause error) error {
	return newErr(kind, resource, reason, cause)
}

func Storagef(resource, reason string, cause error) error {
	return newErr(KindStorage, resource, reason, cause)
}

func Authenticationf(resource, reason string, cause error) error {
	return newErr(KindAuthentication, resource, reason, cause)
}

func ProtocolViolationf(resource, reason string) error {
	return newErr(KindProtocolViolation, resource, reason, nil)
}

func Decryptionf(resource, reason string, cause error) error {
	return newErr(KindDecryption, resource, reason, cause)
}

func NotFoundf(resource, reason string) error {
	return newErr(KindNotFound, resource, reason, nil)
}

func Stalef(resource, reason string) error {
	return newErr(KindStale, resource, reason, nil)
}

func Cancelledf(resource string) error {
	return newErr(KindCancelled, resource, "operation cancelled", nil)
}

// Is reports whether the first *Error in err's chain has the given Kind
// (an *Error of another Kind deeper in the chain is not consulted); if the
// chain holds no *Error, it reports whether err wraps that Kind's sentinel.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return errors.Is(err, sentinelFor(kind))
}

func IsStorage(err error) bool           { return Is(err, KindStorage) }
func IsAuthentication(err error) bool     { return Is(err, KindAuthentication) }
func IsProtocolViolation(err error) bool  { return Is(err, KindProtocolViolation) }
func IsDecryption(err error) bool         { return Is(err, KindDecryption) }
func IsNotFound(err error) bool           { return Is(err, KindNotFound) }
func IsStale(err error) bool              { return Is(err, KindStale) }
func IsCancelled(err error) bool          { return Is(err, KindCancelled) }

// Code maps a Kind onto the gRPC status code a future transport layer would
// use to surface it on the wire. No grpc.Server is constructed anywhere in
// this module (the transport scaffolding is out of scope) — this mapping
// exists so that boundary is a mechanical lookup, not a design decision made
// later under time pressure.
func Code(err error) codes.Code {
	var e *Error
	if !errors.As(err, &e) {
		if err == nil {
			return codes.OK
		}
		return codes.Unknown
	}
	switch e.Kind {
	case KindStorage:
		return codes.Unavailable
	case KindAuthentication:
		return codes.Unauthenticated
	case KindProtocolViolation:
		return codes.InvalidArgument
	case KindDecryption:
		return codes.InvalidArgument
	case KindNotFound:
		return codes.NotFound
	case KindStale:
		return codes.FailedPrecondition
	case KindCancelled:
		return codes.Canceled
	default:
		return codes.Unknown
	}
}

// Sanitize strips any wrapped cause from an error before it crosses a trust
// boundary (e.g. into a client-facing response), keeping only the Kind and
// Reason. Storage causes in particular may embed DSNs or file paths.
func Sanitize(err error) error {
	var e *Error
	if !errors.As(err, &e) {
		return errors.New("operation failed")
	}
	return &Error{Kind: e.Kind, Resource: e.Resource, Reason: e.Reason}
}
