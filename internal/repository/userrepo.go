// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/avk1987/crypto-vault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides CRUD access for accounts.
type UserRepository interface {
	// Create inserts a new user. ErrAlreadyExists on a duplicate email.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// Exists reports whether the user row is still present.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// UpdateSecurity sets the second-factor and login-alert flags.
	UpdateSecurity(ctx context.Context, id uuid.UUID, twoFactor, loginAlerts bool) error
	// SetPanicHash sets or clears (nil hash) the duress password hash.
	SetPanicHash(ctx context.Context, id uuid.UUID, hash, salt []byte) error
	// TouchLastLogin records a successful login timestamp.
	TouchLastLogin(ctx context.Context, id uuid.UUID) error
	// Delete removes the account. Owned files and grants cascade at the
	// database level.
	Delete(ctx context.Context, id uuid.UUID) error
}
