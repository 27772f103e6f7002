package repository

import (
	"context"
	"time"

	"github.com/avk1987/crypto-vault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// FileRepository stores resource rows and their grants' lifecycle boundary.
type FileRepository interface {
	// CreateWithOwnerGrant inserts the file row and the owner grant in one
	// transaction, so exactly one owner grant exists from the moment the file
	// is visible.
	CreateWithOwnerGrant(ctx context.Context, f *model.File, ownerWrappedKey []byte) error
	// Get loads a file by id.
	Get(ctx context.Context, id uuid.UUID) (*model.File, error)
	// Delete removes the file row and every grant for it in one transaction.
	// Returns ErrNotFound if the file does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
	// ListOwned returns files owned by a user (export surface).
	ListOwned(ctx context.Context, ownerID uuid.UUID) ([]model.File, error)
	// DeleteOlderThan removes files created before cutoff; returns blob keys
	// of the deleted rows so the caller can reclaim external storage.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
}
