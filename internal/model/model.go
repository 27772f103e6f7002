// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Challenge purposes. A challenge row is scoped to exactly one purpose.
const (
	PurposeRegister = "register"
	PurposeLogin    = "login"
)

// Permission tiers. Owner implies every other tier.
const (
	TierOwner = "owner"
	TierWrite = "write"
	TierRead  = "read"
)

// Audit action tags persisted in audit_records.action.
const (
	ActionUserRegister    = "user_register"
	ActionUserLogin       = "user_login"
	ActionAccountDeleted  = "account_deleted"
	ActionSecurityUpdated = "security_settings_updated"
	ActionPanicUpdated    = "panic_password_updated"
	ActionDataExported    = "data_exported"
	ActionFileUpload      = "file_upload"
	ActionFileShare       = "file_share"
	ActionFileDelete      = "file_delete"
	ActionFileDownload    = "file_download"
)

// User represents an account. Password hashes are argon2id over per-user salts;
// the panic hash is present only when duress mode is configured.
type User struct {
	ID                 uuid.UUID
	Email              string // unique
	Username           string
	PwdHash            []byte
	SaltAuth           []byte
	PanicHash          []byte // nil when panic mode is disabled
	SaltPanic          []byte
	TwoFactorEnabled   bool
	LoginAlertsEnabled bool
	LastLoginAt        *time.Time
	CreatedAt          time.Time
}

// PanicEnabled reports whether a duress password is configured.
func (u *User) PanicEnabled() bool { return len(u.PanicHash) > 0 }

// Challenge is a one-time verification code bound to an email and a purpose.
// At most one unverified, unexpired challenge exists per (email, purpose);
// issuing a new one replaces the previous row.
type Challenge struct {
	Email     string
	Purpose   string
	Code      string
	ExpiresAt time.Time
	Verified  bool
	Attempts  int
	Metadata  []byte // JSON: duress flag on login, pending account on register
	CreatedAt time.Time
}

// Expired reports whether the challenge window has elapsed at now.
func (c *Challenge) Expired(now time.Time) bool { return !now.Before(c.ExpiresAt) }

// PendingAccount is carried in a registration challenge's metadata until the
// code is verified and the user row can be created.
type PendingAccount struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	PwdHash   []byte `json:"pwd_hash"`
	SaltAuth  []byte `json:"salt_auth"`
	PanicHash []byte `json:"panic_hash,omitempty"`
	SaltPanic []byte `json:"salt_panic,omitempty"`
}

// LoginState rides in a login challenge's metadata.
type LoginState struct {
	Duress bool `json:"duress"`
}

// File is a stored resource. Name and metadata are opaque ciphertext produced
// on the client; BlobKey points at the ciphertext in external blob storage.
type File struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	EncName     []byte
	EncMetadata []byte
	Checksum    string
	IV          []byte
	BlobKey     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Grant authorizes one principal's tier on one file and carries that
// principal's individually wrapped copy of the file key. Unique on
// (FileID, UserID); exactly one grant per file has TierOwner.
type Grant struct {
	FileID     uuid.UUID
	UserID     uuid.UUID
	Tier       string
	WrappedKey []byte
	CreatedAt  time.Time
}

// FileSummary is the grant-joined listing shape returned to a caller.
type FileSummary struct {
	ID          uuid.UUID
	EncName     []byte
	EncMetadata []byte
	IV          []byte
	Tier        string
	WrappedKey  []byte
	UpdatedAt   time.Time
	SharedWith  int // recipients other than the caller; owners only
}

// AuditRecord is one link of the hash chain. Append-only; never mutated.
type AuditRecord struct {
	ID         uuid.UUID
	Seq        int64
	UserID     uuid.UUID
	Action     string
	ResourceID *uuid.UUID
	Success    bool
	PrevHash   string
	Hash       string
	Timestamp  time.Time
}

// Session is the authenticated caller extracted from a bearer token.
// Duress propagates from login through every authorization decision.
type Session struct {
	UserID uuid.UUID
	Email  string
	Role   string
	Duress bool
}

// Token is an issued bearer token with its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}
