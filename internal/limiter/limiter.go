// Package limiter defines interfaces and implementations for login rate limiting.
//
// The limiter sits at the HTTP edge in front of login only; the authorization
// core never depends on it and keeps working if it is swapped out.
package limiter

import (
	"context"
	"time"
)

// Limiter controls login attempts and temporary lockouts per (email, ip).
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, email string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
}
