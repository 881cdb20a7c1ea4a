// Package logging provides structured logging helpers shared by the AS, QS
// and DS processes.
//
// It centralizes a small set of attribute builders on top of the standard
// library's slog package so that the three services log the same shape of
// record for the same kind of event, and so that identifiers which must
// never appear in a log line in full (user and client identifiers, OPAQUE
// tokens) go through one sanitizing choke point.
//
// # Usage
//
//	logger := logging.WithOperation(baseLogger, "queue.enqueue")
//	logger.Info("message enqueued",
//	    logging.UserHash(recipient.String()),
//	    logging.Status(logging.StatusSuccess))
//
// # Security considerations
//
//   - User and client identifiers are hashed before logging (UserHash) so
//     log entries can be correlated without exposing who was involved.
//   - Tokens and credential material are never logged directly; SanitizeToken
//     reports a length only.
package logging
