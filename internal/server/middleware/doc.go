// Package middleware provides HTTP middleware for the serve-* processes'
// health/metrics listener: request metrics, security headers, CORS and
// request-size limits.
package middleware
