package repository

import (
	"context"

	"github.com/avk1987/crypto-vault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// GrantRepository maintains the ACL: exactly one row per (file, principal),
// each carrying that principal's wrapped copy of the file key.
type GrantRepository interface {
	// Create inserts a grant. ErrAlreadyGranted when (file, principal) exists;
	// the unique index makes concurrent shares for the same pair race-safe.
	Create(ctx context.Context, g *model.Grant) error
	// Get loads the grant for (file, principal). ErrNotFound when absent.
	// Only ever returns the principal's own wrapped key.
	Get(ctx context.Context, fileID, userID uuid.UUID) (*model.Grant, error)
	// ListForUser returns grant-joined file summaries for a principal.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]model.FileSummary, error)
}
