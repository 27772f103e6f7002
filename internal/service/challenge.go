// Package service contains application services for authentication,
// key distribution, and the audit ledger.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pkgcrypto "github.com/avk1987/crypto-vault/internal/crypto"
	"github.com/avk1987/crypto-vault/internal/errs"
	"github.com/avk1987/crypto-vault/internal/model"
	"github.com/avk1987/crypto-vault/internal/repository"
)

// OTP defaults: 10-minute window, 3 attempts per code.
const (
	DefaultChallengeTTL   = 10 * time.Minute
	DefaultMaxOTPAttempts = 3
)

// ChallengeLedger issues and validates one-time codes. Issuing supersedes any
// outstanding challenge for the same (email, purpose); verifying is
// single-use with a bounded attempt counter.
type ChallengeLedger struct {
	repo        repository.ChallengeRepository
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewChallengeLedger constructs a ChallengeLedger with the given code
// lifetime and attempt cap.
func NewChallengeLedger(repo repository.ChallengeRepository, ttl time.Duration, maxAttempts int) *ChallengeLedger {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxOTPAttempts
	}
	return &ChallengeLedger{repo: repo, ttl: ttl, maxAttempts: maxAttempts, now: time.Now}
}

// Issue creates a fresh challenge for (email, purpose), replacing any prior
// one atomically. metadata (may be nil) is stored alongside the code and
// returned by Verify.
func (l *ChallengeLedger) Issue(ctx context.Context, email, purpose string, metadata any) (*model.Challenge, error) {
	code, err := pkgcrypto.OTPCode()
	if err != nil {
		return nil, err
	}

	var meta []byte
	if metadata != nil {
		if meta, err = json.Marshal(metadata); err != nil {
			return nil, err
		}
	}

	ch := &model.Challenge{
		Email:     email,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: l.now().Add(l.ttl),
		Metadata:  meta,
	}
	if err := l.repo.Upsert(ctx, ch); err != nil {
		return nil, fmt.Errorf("issue challenge: %w", err)
	}
	return ch, nil
}

// Reissue replaces the code and expiry of the outstanding challenge while
// keeping its metadata, resetting the attempt counter.
func (l *ChallengeLedger) Reissue(ctx context.Context, email, purpose string) (string, error) {
	code, err := pkgcrypto.OTPCode()
	if err != nil {
		return "", err
	}
	if err := l.repo.Refresh(ctx, email, purpose, code, l.now().Add(l.ttl)); err != nil {
		return "", err
	}
	return code, nil
}

// Verify checks a submitted code against the outstanding challenge and
// returns the challenge's metadata on success. The attempt counter is checked
// before the code, so a challenge that hit the cap stays dead even for the
// correct code; a failed comparison counts even though verification errors.
func (l *ChallengeLedger) Verify(ctx context.Context, email, purpose, code string) ([]byte, error) {
	var meta []byte
	err := l.repo.GetLocked(ctx, email, purpose, func(ctx context.Context, ch *model.Challenge, upd repository.ChallengeUpdater) error {
		if ch == nil {
			return errs.ErrChallengeNotFound
		}
		if ch.Expired(l.now()) {
			return errs.ErrChallengeExpired
		}
		if ch.Attempts >= l.maxAttempts {
			return errs.ErrTooManyAttempts
		}
		if !pkgcrypto.EqualCodes(code, ch.Code) {
			if err := upd.IncrementAttempts(ctx); err != nil {
				return err
			}
			return errs.ErrInvalidCode
		}
		if err := upd.MarkVerified(ctx); err != nil {
			return err
		}
		meta = ch.Metadata
		return nil
	})
	if err != nil {
		return nil, err
	}
	return meta, nil
}
