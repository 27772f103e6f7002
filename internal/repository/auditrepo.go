package repository

import (
	"context"

	"github.com/avk1987/crypto-vault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// GenesisHash anchors the first record of the chain: the prevHash every
// implementation must present when the ledger is empty.
const GenesisHash = "GENESIS_HASH"

// AuditRepository persists the hash-chained ledger. Append must serialize the
// read-latest-hash / insert pair: two concurrent appends must never both claim
// the same predecessor.
type AuditRepository interface {
	// Append runs build under a ledger-wide exclusion, passing the hash of the
	// most recent record (or the genesis constant), and inserts the record
	// build returns.
	Append(ctx context.Context, build func(prevHash string) (*model.AuditRecord, error)) error
	// ListForUser returns a user's records, newest first, up to limit.
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.AuditRecord, error)
	// Walk streams every record in append order.
	Walk(ctx context.Context, fn func(rec *model.AuditRecord) error) error
}
