package postgres

import (
	"context"
	"errors"

	"github.com/avk1987/crypto-vault/internal/errs"
	"github.com/avk1987/crypto-vault/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// GrantRepo implements GrantRepository using PostgreSQL.
type GrantRepo struct{ db *DB }

// NewGrantRepo constructs a grant repository.
func NewGrantRepo(db *DB) *GrantRepo { return &GrantRepo{db: db} }

// Create inserts a grant. The unique (file_id, user_id) index serializes
// concurrent shares for the same pair.
func (r *GrantRepo) Create(ctx context.Context, g *model.Grant) error {
	const q = `
INSERT INTO grants (file_id, user_id, tier, wrapped_key)
VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, g.FileID, g.UserID, g.Tier, g.WrappedKey)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyGranted
	}
	return err
}

// Get loads the caller's own grant for a file; never another principal's.
func (r *GrantRepo) Get(ctx context.Context, fileID, userID uuid.UUID) (*model.Grant, error) {
	const q = `
SELECT file_id, user_id, tier, wrapped_key, created_at
FROM grants WHERE file_id=$1 AND user_id=$2`
	var g model.Grant
	err := r.db.Pool.QueryRow(ctx, q, fileID, userID).Scan(
		&g.FileID, &g.UserID, &g.Tier, &g.WrappedKey, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

// ListForUser returns grant-joined file summaries, newest first. SharedWith
// counts other principals' grants and is meaningful for owner rows only.
func (r *GrantRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.FileSummary, error) {
	const q = `
SELECT f.id, f.enc_name, f.enc_metadata, f.iv, g.tier, g.wrapped_key, f.updated_at,
       (SELECT count(*) FROM grants o WHERE o.file_id=f.id AND o.user_id<>g.user_id)
FROM grants g
JOIN files f ON f.id=g.file_id
WHERE g.user_id=$1
ORDER BY f.updated_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FileSummary
	for rows.Next() {
		var s model.FileSummary
		if err := rows.Scan(&s.ID, &s.EncName, &s.EncMetadata, &s.IV,
			&s.Tier, &s.WrappedKey, &s.UpdatedAt, &s.SharedWith); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
