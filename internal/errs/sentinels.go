// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrInvalidCredentials indicates failed authentication. Deliberately covers
	// both "no such identity" and "wrong password" so callers cannot enumerate
	// accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrChallengeNotFound indicates no unverified challenge exists for the
	// (email, purpose) pair.
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrChallengeExpired indicates the challenge exists but its window elapsed.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrTooManyAttempts indicates the challenge is dead after the attempt cap;
	// a new one must be issued.
	ErrTooManyAttempts = errors.New("too many attempts")

	// ErrInvalidCode indicates a code mismatch on a live challenge.
	ErrInvalidCode = errors.New("invalid code")

	// ErrForbidden indicates the authenticated caller lacks the required tier.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadyGranted indicates a grant already exists for (file, principal).
	ErrAlreadyGranted = errors.New("already granted")

	// ErrUnknownPrincipal indicates the share target does not exist.
	ErrUnknownPrincipal = errors.New("unknown principal")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrAuditUnavailable indicates the audit ledger could not be appended to.
	// Never fatal to the triggering action.
	ErrAuditUnavailable = errors.New("audit unavailable")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")
)
