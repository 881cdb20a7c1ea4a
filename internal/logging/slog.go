package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation = "operation"
	KeyQueue     = "queue_id"
	KeyUserHash  = "user_hash"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyError     = "error"
)

// Status values for consistent logging.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithQueue returns a logger with the queue ID attribute set.
func WithQueue(logger *slog.Logger, queueID string) *slog.Logger {
	return logger.With(slog.String(KeyQueue, queueID))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeUserId returns a hashed representation of a qualified user or
// client identifier (its String() form, typically "uuid@domain") for
// logging purposes. This allows correlation of log entries across a
// request without exposing the identifier itself.
func AnonymizeUserId(id string) string {
	if id == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(id))
	return "user:" + hex.EncodeToString(hash[:8])
}

// UserHash returns a slog attribute with the anonymized identifier.
// This is a convenience function to reduce repetition in logging calls and
// ensure consistent attribute naming across the codebase.
//
// Usage:
//
//	logger.Info("operation completed", logging.UserHash(userID.String()))
func UserHash(id string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeUserId(id))
}

// SanitizeToken returns a masked version of a token for logging.
// It returns a length indicator without exposing any token content,
// as even partial token prefixes can aid attacks. Use this for OPAQUE
// export keys, session tokens, and anything else that must never be
// written to a log line.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// ExtractDomain extracts the domain part of a qualified identifier in
// "uuid@domain" form, as produced by UserId.String()/QualifiedGroupId.String().
// Useful for lower-cardinality logging where the full identifier would
// create too many unique values but the owning homeserver is still of
// interest (e.g. federation traffic by origin domain).
func ExtractDomain(qualifiedID string) string {
	if qualifiedID == "" {
		return ""
	}
	parts := strings.SplitN(qualifiedID, "@", 2)
	if len(parts) != 2 || strings.Contains(parts[1], "@") {
		return ""
	}
	return parts[1]
}

// Domain returns a slog attribute for the owning domain of a qualified
// identifier (lower cardinality than the full identifier).
func Domain(qualifiedID string) slog.Attr {
	return slog.String("user_domain", ExtractDomain(qualifiedID))
}
