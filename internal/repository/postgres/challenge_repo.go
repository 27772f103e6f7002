package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/avk1987/crypto-vault/internal/errs"
	"github.com/avk1987/crypto-vault/internal/model"
	"github.com/avk1987/crypto-vault/internal/repository"
	"github.com/jackc/pgx/v5"
)

// ChallengeRepo implements ChallengeRepository using PostgreSQL.
// The unique (email, purpose) index makes issuance an atomic supersede and
// guarantees at most one unverified challenge per pair.
type ChallengeRepo struct{ db *DB }

// NewChallengeRepo constructs a challenge repository.
func NewChallengeRepo(db *DB) *ChallengeRepo { return &ChallengeRepo{db: db} }

// Upsert replaces any prior challenge for (email, purpose) in one statement.
func (r *ChallengeRepo) Upsert(ctx context.Context, c *model.Challenge) error {
	const q = `
INSERT INTO challenges (email, purpose, code, expires_at, verified, attempts, metadata)
VALUES ($1, $2, $3, $4, false, 0, $5)
ON CONFLICT (email, purpose) DO UPDATE
SET code=EXCLUDED.code, expires_at=EXCLUDED.expires_at, verified=false,
    attempts=0, metadata=EXCLUDED.metadata, created_at=now()`
	_, err := r.db.Pool.Exec(ctx, q, c.Email, c.Purpose, c.Code, c.ExpiresAt, c.Metadata)
	return err
}

type challengeUpdater struct {
	tx      pgx.Tx
	email   string
	purpose string
}

func (u *challengeUpdater) IncrementAttempts(ctx context.Context) error {
	const q = `UPDATE challenges SET attempts=attempts+1 WHERE email=$1 AND purpose=$2`
	_, err := u.tx.Exec(ctx, q, u.email, u.purpose)
	return err
}

func (u *challengeUpdater) MarkVerified(ctx context.Context) error {
	const q = `UPDATE challenges SET verified=true WHERE email=$1 AND purpose=$2`
	_, err := u.tx.Exec(ctx, q, u.email, u.purpose)
	return err
}

// GetLocked runs fn with the challenge row locked FOR UPDATE, so a verify
// racing a concurrent issue or verify resolves against exactly one row state.
// Mutations made through the updater are committed even when fn returns a
// business error (a failed attempt must still count); the transaction rolls
// back only on storage errors.
func (r *ChallengeRepo) GetLocked(
	ctx context.Context, email, purpose string,
	fn func(ctx context.Context, ch *model.Challenge, upd repository.ChallengeUpdater) error,
) error {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
SELECT email, purpose, code, expires_at, verified, attempts, metadata, created_at
FROM challenges
WHERE email=$1 AND purpose=$2 AND verified=false
FOR UPDATE`
	var ch model.Challenge
	scanErr := tx.QueryRow(ctx, q, email, purpose).Scan(
		&ch.Email, &ch.Purpose, &ch.Code, &ch.ExpiresAt,
		&ch.Verified, &ch.Attempts, &ch.Metadata, &ch.CreatedAt)

	var fnErr error
	switch {
	case scanErr == nil:
		fnErr = fn(ctx, &ch, &challengeUpdater{tx: tx, email: email, purpose: purpose})
	case errors.Is(scanErr, pgx.ErrNoRows):
		fnErr = fn(ctx, nil, nil)
	default:
		_ = tx.Rollback(ctx)
		return scanErr
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return fnErr
}

// Refresh replaces code and expiry in place, keeping the row's metadata.
// Verified rows are spent and never come back.
func (r *ChallengeRepo) Refresh(ctx context.Context, email, purpose, code string, expiresAt time.Time) error {
	const q = `
UPDATE challenges
SET code=$3, expires_at=$4, attempts=0, created_at=now()
WHERE email=$1 AND purpose=$2 AND verified=false`
	tag, err := r.db.Pool.Exec(ctx, q, email, purpose, code, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrChallengeNotFound
	}
	return nil
}

// DeleteByEmail removes every challenge row for an email.
func (r *ChallengeRepo) DeleteByEmail(ctx context.Context, email string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM challenges WHERE email=$1`, email)
	return err
}

// DeleteExpired reclaims rows past their expiry instant.
func (r *ChallengeRepo) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM challenges WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
