package repository

import (
	"context"
	"time"

	"github.com/avk1987/crypto-vault/internal/model"
)

// ChallengeRepository stores one-time verification codes. Backed by a table
// with a unique (email, purpose) key so issuing is an atomic supersede.
type ChallengeRepository interface {
	// Upsert replaces any existing challenge for (email, purpose) with c in a
	// single statement: no window where two unverified challenges coexist.
	Upsert(ctx context.Context, c *model.Challenge) error
	// GetLocked loads the challenge row for update within fn; mutations made
	// through the passed accessor are applied before the row lock releases.
	// fn receives nil when no unverified challenge exists.
	GetLocked(ctx context.Context, email, purpose string, fn func(ctx context.Context, ch *model.Challenge, upd ChallengeUpdater) error) error
	// Refresh replaces the code and expiry of the existing row for
	// (email, purpose), resetting attempts and the verified flag while keeping
	// its metadata. ErrChallengeNotFound when no row exists.
	Refresh(ctx context.Context, email, purpose, code string, expiresAt time.Time) error
	// DeleteByEmail removes all challenge rows for an email.
	DeleteByEmail(ctx context.Context, email string) error
	// DeleteExpired reclaims expired rows; returns the number deleted.
	DeleteExpired(ctx context.Context) (int64, error)
}

// ChallengeUpdater mutates the locked challenge row inside GetLocked.
type ChallengeUpdater interface {
	// IncrementAttempts bumps the attempt counter.
	IncrementAttempts(ctx context.Context) error
	// MarkVerified flips the single-use verified flag.
	MarkVerified(ctx context.Context) error
}
