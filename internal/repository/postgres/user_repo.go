package postgres

import (
	"context"
	"errors"

	"github.com/avk1987/crypto-vault/internal/errs"
	"github.com/avk1987/crypto-vault/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, username, pwd_hash, salt_auth, panic_hash, salt_panic,
       two_factor_enabled, login_alerts_enabled, last_login_at, created_at`

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, email, username, pwd_hash, salt_auth, panic_hash, salt_panic, two_factor_enabled, login_alerts_enabled)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Pool.Exec(ctx, q,
		u.ID, u.Email, u.Username, u.PwdHash, u.SaltAuth, u.PanicHash, u.SaltPanic,
		u.TwoFactorEnabled, u.LoginAlertsEnabled)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PwdHash, &u.SaltAuth,
		&u.PanicHash, &u.SaltPanic, &u.TwoFactorEnabled, &u.LoginAlertsEnabled,
		&u.LastLoginAt, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return scanUser(r.db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

// GetByEmail selects a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

// Exists reports whether the user row is still present.
func (r *UserRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// UpdateSecurity sets the second-factor and login-alert flags.
func (r *UserRepo) UpdateSecurity(ctx context.Context, id uuid.UUID, twoFactor, loginAlerts bool) error {
	const q = `UPDATE users SET two_factor_enabled=$2, login_alerts_enabled=$3 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, twoFactor, loginAlerts)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetPanicHash sets or clears the duress password hash.
func (r *UserRepo) SetPanicHash(ctx context.Context, id uuid.UUID, hash, salt []byte) error {
	const q = `UPDATE users SET panic_hash=$2, salt_panic=$3 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, hash, salt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// TouchLastLogin records a successful login timestamp.
func (r *UserRepo) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE users SET last_login_at=now() WHERE id=$1`
	_, err := r.db.Pool.Exec(ctx, q, id)
	return err
}

// Delete removes the account; files and grants cascade via foreign keys.
func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM users WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
