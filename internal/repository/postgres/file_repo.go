package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/avk1987/crypto-vault/internal/errs"
	"github.com/avk1987/crypto-vault/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// FileRepo implements FileRepository using PostgreSQL.
type FileRepo struct{ db *DB }

// NewFileRepo constructs a file repository.
func NewFileRepo(db *DB) *FileRepo { return &FileRepo{db: db} }

// CreateWithOwnerGrant inserts the file row and its owner grant atomically.
func (r *FileRepo) CreateWithOwnerGrant(ctx context.Context, f *model.File, ownerWrappedKey []byte) (err error) {
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

	const insFile = `
INSERT INTO files (id, owner_id, enc_name, enc_metadata, checksum, iv, blob_key)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err = tx.Exec(ctx, insFile,
		f.ID, f.OwnerID, f.EncName, f.EncMetadata, f.Checksum, f.IV, f.BlobKey); err != nil {
		return err
	}

	const insGrant = `
INSERT INTO grants (file_id, user_id, tier, wrapped_key)
VALUES ($1, $2, 'owner', $3)`
	if _, err = tx.Exec(ctx, insGrant, f.ID, f.OwnerID, ownerWrappedKey); err != nil {
		return err
	}
	return nil
}

// Get loads a file by id.
func (r *FileRepo) Get(ctx context.Context, id uuid.UUID) (*model.File, error) {
	const q = `
SELECT id, owner_id, enc_name, enc_metadata, checksum, iv, blob_key, created_at, updated_at
FROM files WHERE id=$1`
	var f model.File
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(
		&f.ID, &f.OwnerID, &f.EncName, &f.EncMetadata, &f.Checksum, &f.IV,
		&f.BlobKey, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// Delete removes the file row and all its grants in one transaction.
func (r *FileRepo) Delete(ctx context.Context, id uuid.UUID) (err error) {
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

	if _, err = tx.Exec(ctx, `DELETE FROM grants WHERE file_id=$1`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM files WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ListOwned returns files owned by a user.
func (r *FileRepo) ListOwned(ctx context.Context, ownerID uuid.UUID) ([]model.File, error) {
	const q = `
SELECT id, owner_id, enc_name, enc_metadata, checksum, iv, blob_key, created_at, updated_at
FROM files WHERE owner_id=$1 ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.File
	for rows.Next() {
		var f model.File
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.EncName, &f.EncMetadata,
			&f.Checksum, &f.IV, &f.BlobKey, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes files created before cutoff, grants included, and
// returns the blob keys so external storage can be reclaimed.
func (r *FileRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (keys []string, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
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

	const del = `
DELETE FROM grants WHERE file_id IN (SELECT id FROM files WHERE created_at < $1)`
	if _, err = tx.Exec(ctx, del, cutoff); err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `DELETE FROM files WHERE created_at < $1 RETURNING blob_key`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		if err = rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
