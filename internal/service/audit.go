package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/avk1987/crypto-vault/internal/errs"
	"github.com/avk1987/crypto-vault/internal/model"
	"github.com/avk1987/crypto-vault/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// AuditChain appends hash-linked records for every sensitive action and can
// verify the whole ledger. Append failures are fail-open: the triggering
// action proceeds and the failure is surfaced in operational logs.
type AuditChain struct {
	repo repository.AuditRepository
	log  *zap.Logger
	now  func() time.Time
}

// NewAuditChain constructs an AuditChain.
func NewAuditChain(repo repository.AuditRepository, log *zap.Logger) *AuditChain {
	return &AuditChain{repo: repo, log: log, now: time.Now}
}

// ChainHash computes a record's hash over the fixed, order-sensitive
// concatenation of its predecessor's hash and its own fields.
func ChainHash(prevHash string, userID uuid.UUID, action string, resourceID *uuid.UUID, ts time.Time) string {
	res := ""
	if resourceID != nil {
		res = resourceID.String()
	}
	sum := sha256.Sum256([]byte(prevHash + userID.String() + action + res + ts.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])
}

// Append writes one record to the ledger. The repository serializes the
// read-tail / insert pair, so concurrent appends always chain linearly.
func (a *AuditChain) Append(ctx context.Context, userID uuid.UUID, action string, resourceID *uuid.UUID, success bool) error {
	err := a.repo.Append(ctx, func(prevHash string) (*model.AuditRecord, error) {
		id, err := uuid.NewV4()
		if err != nil {
			return nil, err
		}
		// Postgres stores TIMESTAMPTZ at microsecond precision; hashing a
		// nanosecond timestamp would break verification on read-back.
		ts := a.now().UTC().Truncate(time.Microsecond)
		return &model.AuditRecord{
			ID:         id,
			UserID:     userID,
			Action:     action,
			ResourceID: resourceID,
			Success:    success,
			PrevHash:   prevHash,
			Hash:       ChainHash(prevHash, userID, action, resourceID, ts),
			Timestamp:  ts,
		}, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrAuditUnavailable, err)
	}
	return nil
}

// Record is the fail-open form of Append used after state-changing
// operations: failures are logged, never returned.
func (a *AuditChain) Record(ctx context.Context, userID uuid.UUID, action string, resourceID *uuid.UUID, success bool) {
	if err := a.Append(ctx, userID, action, resourceID, success); err != nil {
		a.log.Error("audit append failed",
			zap.String("action", action),
			zap.String("user", userID.String()),
			zap.Error(err),
		)
	}
}

// ListForUser returns a user's records, newest first.
func (a *AuditChain) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.AuditRecord, error) {
	return a.repo.ListForUser(ctx, userID, limit)
}

// ChainBreak identifies the first record at which verification failed.
type ChainBreak struct {
	Seq      int64
	RecordID uuid.UUID
	Reason   string
}

// VerifyChain walks the ledger in append order and checks that every record
// links to its predecessor and that its own hash matches its fields. A nil
// ChainBreak means the ledger is intact.
func (a *AuditChain) VerifyChain(ctx context.Context) (*ChainBreak, int64, error) {
	prev := repository.GenesisHash
	var checked int64
	var brk *ChainBreak

	err := a.repo.Walk(ctx, func(rec *model.AuditRecord) error {
		if brk != nil {
			return nil
		}
		switch {
		case rec.PrevHash != prev:
			brk = &ChainBreak{Seq: rec.Seq, RecordID: rec.ID, Reason: "prev hash does not match predecessor"}
		case rec.Hash != ChainHash(rec.PrevHash, rec.UserID, rec.Action, rec.ResourceID, rec.Timestamp):
			brk = &ChainBreak{Seq: rec.Seq, RecordID: rec.ID, Reason: "record hash does not match fields"}
		default:
			checked++
		}
		prev = rec.Hash
		return nil
	})
	if err != nil {
		return nil, checked, err
	}
	return brk, checked, nil
}
