// Package service provides application-level services for managing books
// and dispatching generation jobs.
package service

import "errors"

// Common service errors - sentinel errors used across service implementations.
// Callers classify them with errors.Is; the API layer maps them onto HTTP
// status codes.
var (
	// ErrNotOwned indicates a resource is owned by a different user than the
	// one making the request. API layer should map this to HTTP 403 Forbidden.
	ErrNotOwned = errors.New("resource is owned by another user")
)
