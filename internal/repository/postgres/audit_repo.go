package postgres

import (
	"context"
	"errors"

	"github.com/avk1987/crypto-vault/internal/model"
	"github.com/avk1987/crypto-vault/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// auditLockKey identifies the advisory lock serializing ledger appends.
const auditLockKey = 0x61756474 // "audt"

// AuditRepo implements AuditRepository using PostgreSQL. Appends take an
// advisory transaction lock so "read latest hash, insert" is atomic across
// connections; without it two appends could claim the same predecessor.
type AuditRepo struct{ db *DB }

// NewAuditRepo constructs an audit repository.
func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

// Append serializes on the ledger lock, reads the tail hash, and inserts the
// record produced by build.
func (r *AuditRepo) Append(ctx context.Context, build func(prevHash string) (*model.AuditRecord, error)) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, auditLockKey); err != nil {
		return err
	}

	prev := repository.GenesisHash
	const tail = `SELECT hash FROM audit_records ORDER BY seq DESC LIMIT 1`
	if scanErr := tx.QueryRow(ctx, tail).Scan(&prev); scanErr != nil {
		if !errors.Is(scanErr, pgx.ErrNoRows) {
			return scanErr
		}
		prev = repository.GenesisHash
	}

	rec, err := build(prev)
	if err != nil {
		return err
	}

	const ins = `
INSERT INTO audit_records (id, user_id, action, resource_id, success, prev_hash, hash, ts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = tx.Exec(ctx, ins,
		rec.ID, rec.UserID, rec.Action, rec.ResourceID, rec.Success,
		rec.PrevHash, rec.Hash, rec.Timestamp)
	return err
}

const auditColumns = `id, seq, user_id, action, resource_id, success, prev_hash, hash, ts`

func scanAudit(rows pgx.Rows) (*model.AuditRecord, error) {
	var rec model.AuditRecord
	err := rows.Scan(&rec.ID, &rec.Seq, &rec.UserID, &rec.Action, &rec.ResourceID,
		&rec.Success, &rec.PrevHash, &rec.Hash, &rec.Timestamp)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListForUser returns a user's records, newest first.
func (r *AuditRepo) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.AuditRecord, error) {
	const q = `
SELECT ` + auditColumns + `
FROM audit_records WHERE user_id=$1 ORDER BY seq DESC LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditRecord
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Walk streams every record in append order.
func (r *AuditRepo) Walk(ctx context.Context, fn func(rec *model.AuditRecord) error) error {
	const q = `SELECT ` + auditColumns + ` FROM audit_records ORDER BY seq ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}
