package shared

import "errors"

// Sentinel errors shared across modules.
var (
	// ErrNotFound reports a missing record.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials covers both unknown users and wrong passwords
	// so login responses stay uniform.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing reports a state-changing request without a token.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch reports a token that failed verification.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
