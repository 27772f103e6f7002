package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgcrypto "github.com/avk1987/crypto-vault/internal/crypto"
	"github.com/avk1987/crypto-vault/internal/errs"
	"github.com/avk1987/crypto-vault/internal/limiter"
	"github.com/avk1987/crypto-vault/internal/model"
	"github.com/avk1987/crypto-vault/internal/notify"
	"github.com/avk1987/crypto-vault/internal/repository"
	"github.com/avk1987/crypto-vault/internal/token"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// RoleOwner is the only account role; tiers on individual files carry the
// actual authorization weight.
const RoleOwner = "owner"

// LoginResult reports the outcome of a login step. Either RequiresOTP is set
// and the caller must verify a code, or Token carries a live session.
type LoginResult struct {
	RequiresOTP bool
	Token       model.Token
	User        *model.User
	Duress      bool
}

// AuthService implements registration and the session issuance state machine.
type AuthService struct {
	users      repository.UserRepository
	files      repository.FileRepository
	grants     repository.GrantRepository
	challenges *ChallengeLedger
	audit      *AuditChain
	sender     notify.Sender
	lim        limiter.Limiter
	signKey    []byte
	tokenTTL   time.Duration
	log        *zap.Logger
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(
	users repository.UserRepository,
	files repository.FileRepository,
	grants repository.GrantRepository,
	challenges *ChallengeLedger,
	audit *AuditChain,
	sender notify.Sender,
	lim limiter.Limiter,
	signKey []byte,
	tokenTTL time.Duration,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		files:      files,
		grants:     grants,
		challenges: challenges,
		audit:      audit,
		sender:     sender,
		lim:        lim,
		signKey:    signKey,
		tokenTTL:   tokenTTL,
		log:        log,
	}
}

func hashNew(password string) (hash, salt []byte, err error) {
	salt, err = pkgcrypto.RandBytes(16)
	if err != nil {
		return nil, nil, err
	}
	return pkgcrypto.HashPassword([]byte(password), salt), salt, nil
}

// StartRegistration validates uniqueness, hashes the passwords, and issues a
// registration challenge carrying the pending account. The identity row is
// not created until the code is verified.
func (s *AuthService) StartRegistration(ctx context.Context, username, email, password, panicPassword string) error {
	if username == "" || email == "" || password == "" {
		return errors.New("empty username/email/password")
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return errs.ErrAlreadyExists
	} else if !errors.Is(err, errs.ErrNotFound) {
		return err
	}

	pwdHash, saltAuth, err := hashNew(password)
	if err != nil {
		return err
	}
	pending := model.PendingAccount{
		Username: username,
		Email:    email,
		PwdHash:  pwdHash,
		SaltAuth: saltAuth,
	}
	if panicPassword != "" {
		if pending.PanicHash, pending.SaltPanic, err = hashNew(panicPassword); err != nil {
			return err
		}
	}

	ch, err := s.challenges.Issue(ctx, email, model.PurposeRegister, pending)
	if err != nil {
		return err
	}
	return s.sender.SendOTP(ctx, email, ch.Code, model.PurposeRegister)
}

// CompleteRegistration verifies the registration code and creates the account.
func (s *AuthService) CompleteRegistration(ctx context.Context, email, code string) (uuid.UUID, error) {
	meta, err := s.challenges.Verify(ctx, email, model.PurposeRegister, code)
	if err != nil {
		return uuid.Nil, err
	}

	var pending model.PendingAccount
	if err := json.Unmarshal(meta, &pending); err != nil {
		return uuid.Nil, fmt.Errorf("pending account: %w", err)
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	u := &model.User{
		ID:                 uid,
		Email:              pending.Email,
		Username:           pending.Username,
		PwdHash:            pending.PwdHash,
		SaltAuth:           pending.SaltAuth,
		PanicHash:          pending.PanicHash,
		SaltPanic:          pending.SaltPanic,
		LoginAlertsEnabled: true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return uuid.Nil, err
	}

	s.audit.Record(ctx, uid, model.ActionUserRegister, nil, true)
	return uid, nil
}

// verifyCredentials checks the primary then the duress password. The two
// failure cases are indistinguishable to the caller.
func verifyCredentials(u *model.User, password string) (duress, ok bool) {
	if pkgcrypto.VerifyPassword([]byte(password), u.SaltAuth, u.PwdHash) {
		return false, true
	}
	if u.PanicEnabled() && pkgcrypto.VerifyPassword([]byte(password), u.SaltPanic, u.PanicHash) {
		return true, true
	}
	return false, false
}

// Login runs the first step of the session state machine (rate limited by
// (email, ip)): verified duress or second-factor-disabled identities get a
// token directly; everyone else gets a login challenge. A duress login never
// triggers the challenge, since an OTP mail would betray the duress state.
func (s *AuthService) Login(ctx context.Context, email, password, ip, userAgent string) (*LoginResult, error) {
	ipHash := limiter.HashIP(ip)
	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	var duress, ok bool
	if err == nil {
		duress, ok = verifyCredentials(u, password)
	}
	if err != nil || !ok {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return nil, errs.ErrRateLimited
		}
		// absent identity and wrong password collapse into one answer
		return nil, errs.ErrInvalidCredentials
	}
	_ = s.lim.Success(ctx, email, ipHash)

	if duress || !u.TwoFactorEnabled {
		return s.issueSession(ctx, u, duress, ip, userAgent)
	}

	ch, err := s.challenges.Issue(ctx, email, model.PurposeLogin, model.LoginState{Duress: false})
	if err != nil {
		return nil, err
	}
	if err := s.sender.SendOTP(ctx, email, ch.Code, model.PurposeLogin); err != nil {
		return nil, err
	}
	return &LoginResult{RequiresOTP: true}, nil
}

// VerifyLogin runs the second step: code check, then session issuance with
// the duress flag carried through the challenge metadata.
func (s *AuthService) VerifyLogin(ctx context.Context, email, code, ip, userAgent string) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrInvalidCredentials
		}
		return nil, err
	}

	meta, err := s.challenges.Verify(ctx, email, model.PurposeLogin, code)
	if err != nil {
		return nil, err
	}
	var st model.LoginState
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &st); err != nil {
			return nil, fmt.Errorf("login state: %w", err)
		}
	}
	return s.issueSession(ctx, u, st.Duress, ip, userAgent)
}

func (s *AuthService) issueSession(ctx context.Context, u *model.User, duress bool, ip, userAgent string) (*LoginResult, error) {
	tok, err := token.Sign(s.signKey, u, RoleOwner, duress, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	if err := s.users.TouchLastLogin(ctx, u.ID); err != nil {
		return nil, err
	}

	// duress logins are audited for operator review; only the user-facing
	// surfaces conceal the vault
	s.audit.Record(ctx, u.ID, model.ActionUserLogin, nil, true)

	if u.LoginAlertsEnabled && !duress {
		if err := s.sender.SendLoginAlert(ctx, u.Email, ip, userAgent, time.Now()); err != nil {
			s.log.Warn("login alert failed", zap.String("email", u.Email), zap.Error(err))
		}
	}
	return &LoginResult{Token: tok, User: u, Duress: duress}, nil
}

// ResendOTP reissues the outstanding challenge for (email, purpose) with a
// fresh code, keeping registration metadata intact.
func (s *AuthService) ResendOTP(ctx context.Context, email, purpose string) error {
	if purpose != model.PurposeRegister && purpose != model.PurposeLogin {
		return fmt.Errorf("bad purpose %q", purpose)
	}
	code, err := s.challenges.Reissue(ctx, email, purpose)
	if err != nil {
		return err
	}
	return s.sender.SendOTP(ctx, email, code, purpose)
}

// SecurityUpdate toggles flags; nil fields keep current values.
type SecurityUpdate struct {
	TwoFactorEnabled   *bool
	LoginAlertsEnabled *bool
}

// UpdateSecurity applies second-factor / login-alert toggles.
func (s *AuthService) UpdateSecurity(ctx context.Context, userID uuid.UUID, upd SecurityUpdate) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if upd.TwoFactorEnabled != nil {
		u.TwoFactorEnabled = *upd.TwoFactorEnabled
	}
	if upd.LoginAlertsEnabled != nil {
		u.LoginAlertsEnabled = *upd.LoginAlertsEnabled
	}
	if err := s.users.UpdateSecurity(ctx, userID, u.TwoFactorEnabled, u.LoginAlertsEnabled); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, userID, model.ActionSecurityUpdated, nil, true)
	return u, nil
}

// SetPanicPassword sets the duress password; an empty password clears it.
func (s *AuthService) SetPanicPassword(ctx context.Context, userID uuid.UUID, panicPassword string) error {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return err
	}
	if panicPassword == "" {
		if err := s.users.SetPanicHash(ctx, userID, nil, nil); err != nil {
			return err
		}
	} else {
		hash, salt, err := hashNew(panicPassword)
		if err != nil {
			return err
		}
		if err := s.users.SetPanicHash(ctx, userID, hash, salt); err != nil {
			return err
		}
	}
	s.audit.Record(ctx, userID, model.ActionPanicUpdated, nil, true)
	return nil
}

// DeleteAccount removes the identity after confirming the primary password.
// Files and grants cascade; the audit trail survives the identity.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uuid.UUID, password string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !pkgcrypto.VerifyPassword([]byte(password), u.SaltAuth, u.PwdHash) {
		return errs.ErrInvalidCredentials
	}

	// audited first: the record must outlive the account row
	s.audit.Record(ctx, userID, model.ActionAccountDeleted, nil, true)

	if err := s.challenges.repo.DeleteByEmail(ctx, u.Email); err != nil {
		return err
	}
	return s.users.Delete(ctx, userID)
}

// Export bundles a user's own data for download.
type Export struct {
	ExportedAt time.Time           `json:"exported_at"`
	User       ExportUser          `json:"user"`
	Files      []model.File        `json:"files"`
	Activity   []model.AuditRecord `json:"activity"`
	SharedWith []model.FileSummary `json:"shared_with_me"`
}

// ExportUser is the profile subset safe to hand back to its owner.
type ExportUser struct {
	ID                 uuid.UUID  `json:"id"`
	Email              string     `json:"email"`
	Username           string     `json:"username"`
	TwoFactorEnabled   bool       `json:"two_factor_enabled"`
	LoginAlertsEnabled bool       `json:"login_alerts_enabled"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// ExportData assembles the caller's profile, owned files, recent activity,
// and incoming shares.
func (s *AuthService) ExportData(ctx context.Context, userID uuid.UUID) (*Export, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	owned, err := s.files.ListOwned(ctx, userID)
	if err != nil {
		return nil, err
	}
	activity, err := s.audit.ListForUser(ctx, userID, 100)
	if err != nil {
		return nil, err
	}
	shared, err := s.grants.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, userID, model.ActionDataExported, nil, true)
	return &Export{
		ExportedAt: time.Now().UTC(),
		User: ExportUser{
			ID:                 u.ID,
			Email:              u.Email,
			Username:           u.Username,
			TwoFactorEnabled:   u.TwoFactorEnabled,
			LoginAlertsEnabled: u.LoginAlertsEnabled,
			LastLoginAt:        u.LastLoginAt,
			CreatedAt:          u.CreatedAt,
		},
		Files:      owned,
		Activity:   activity,
		SharedWith: shared,
	}, nil
}
