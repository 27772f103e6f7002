package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/avk1987/crypto-vault/internal/errs"
	"github.com/avk1987/crypto-vault/internal/model"
	"github.com/avk1987/crypto-vault/internal/notify"
	"github.com/avk1987/crypto-vault/internal/repository"
	"github.com/avk1987/crypto-vault/internal/storage"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// FileService orchestrates resource registration, key distribution, and
// permission checks. Wrapped keys are opaque: every copy is produced by the
// client that holds the plaintext key, and a principal only ever receives the
// copy wrapped for them.
type FileService struct {
	files  repository.FileRepository
	grants repository.GrantRepository
	users  repository.UserRepository
	audit  *AuditChain
	sender notify.Sender
	blobs  storage.BlobStore
	log    *zap.Logger
}

// NewFileService constructs a FileService.
func NewFileService(
	files repository.FileRepository,
	grants repository.GrantRepository,
	users repository.UserRepository,
	audit *AuditChain,
	sender notify.Sender,
	blobs storage.BlobStore,
	log *zap.Logger,
) *FileService {
	return &FileService{
		files:  files,
		grants: grants,
		users:  users,
		audit:  audit,
		sender: sender,
		blobs:  blobs,
		log:    log,
	}
}

// concealed is the single duress guard: when set, every listing/read path
// behaves as if the caller holds zero grants. Enforced here rather than in
// the grant repository so the registry's invariants stay simple.
func concealed(sess *model.Session) bool { return sess.Duress }

// UploadParams carries the client-produced ciphertext envelope for a new file.
type UploadParams struct {
	EncName     []byte
	EncMetadata []byte
	IV          []byte
	Checksum    string
	WrappedKey  []byte // wrapped for the owner, by the owner's client
}

// UploadResult points the client at blob storage for the ciphertext itself.
type UploadResult struct {
	FileID uuid.UUID
	PutURL string
}

// Upload registers a file and its owner grant atomically and returns a
// presigned PUT URL for the ciphertext. Permitted under duress: refusing
// would reveal the mode.
func (s *FileService) Upload(ctx context.Context, sess *model.Session, p UploadParams) (*UploadResult, error) {
	if len(p.WrappedKey) == 0 {
		return nil, errors.New("missing wrapped key")
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	f := &model.File{
		ID:          id,
		OwnerID:     sess.UserID,
		EncName:     p.EncName,
		EncMetadata: p.EncMetadata,
		Checksum:    p.Checksum,
		IV:          p.IV,
		BlobKey:     storage.NewKey(),
	}
	if err := s.files.CreateWithOwnerGrant(ctx, f, p.WrappedKey); err != nil {
		return nil, fmt.Errorf("register file: %w", err)
	}

	putURL, err := s.blobs.PresignPut(ctx, f.BlobKey)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, sess.UserID, model.ActionFileUpload, &id, true)
	return &UploadResult{FileID: id, PutURL: putURL}, nil
}

// List returns the caller's grant-joined file summaries, or an empty set
// under duress.
func (s *FileService) List(ctx context.Context, sess *model.Session) ([]model.FileSummary, error) {
	if concealed(sess) {
		return []model.FileSummary{}, nil
	}
	return s.grants.ListForUser(ctx, sess.UserID)
}

// requireTier loads the caller's grant and checks it against the required
// tiers; owner always satisfies. Missing grants read as Forbidden, as does
// every grant under duress.
func (s *FileService) requireTier(ctx context.Context, sess *model.Session, fileID uuid.UUID, required ...string) (*model.Grant, error) {
	if concealed(sess) {
		return nil, errs.ErrForbidden
	}
	g, err := s.grants.Get(ctx, fileID, sess.UserID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrForbidden
		}
		return nil, err
	}
	if g.Tier == model.TierOwner {
		return g, nil
	}
	for _, t := range required {
		if g.Tier == t {
			return g, nil
		}
	}
	return nil, errs.ErrForbidden
}

// Share creates a grant for the target carrying the caller-supplied wrapped
// key. Only the owner may share; the server never re-wraps key material.
func (s *FileService) Share(ctx context.Context, sess *model.Session, fileID uuid.UUID, targetEmail, tier string, wrappedKeyForTarget []byte) error {
	switch tier {
	case "":
		tier = model.TierRead
	case model.TierRead, model.TierWrite:
	default:
		return fmt.Errorf("bad tier %q", tier)
	}
	if len(wrappedKeyForTarget) == 0 {
		return errors.New("missing wrapped key for target")
	}

	if _, err := s.files.Get(ctx, fileID); err != nil {
		return err
	}
	// owner-only: requireTier with no extra tiers accepts owner alone
	if _, err := s.requireTier(ctx, sess, fileID); err != nil {
		return err
	}

	target, err := s.users.GetByEmail(ctx, targetEmail)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrUnknownPrincipal
		}
		return err
	}
	if target.ID == sess.UserID {
		return errs.ErrAlreadyGranted
	}

	g := &model.Grant{
		FileID:     fileID,
		UserID:     target.ID,
		Tier:       tier,
		WrappedKey: wrappedKeyForTarget,
	}
	if err := s.grants.Create(ctx, g); err != nil {
		return err
	}

	if err := s.sender.SendShareNotice(ctx, target.Email, sess.Email); err != nil {
		s.log.Warn("share notice failed", zap.String("to", target.Email), zap.Error(err))
	}
	s.audit.Record(ctx, sess.UserID, model.ActionFileShare, &fileID, true)
	return nil
}

// DownloadInfo hands the caller everything needed to fetch and decrypt:
// their own wrapped key and a presigned GET URL.
type DownloadInfo struct {
	FileID     uuid.UUID
	URL        string
	WrappedKey []byte
	IV         []byte
	Checksum   string
	EncName    []byte
}

// Download authorizes any tier and returns the caller's wrapped key with a
// presigned GET URL.
func (s *FileService) Download(ctx context.Context, sess *model.Session, fileID uuid.UUID) (*DownloadInfo, error) {
	f, err := s.files.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	g, err := s.requireTier(ctx, sess, fileID, model.TierWrite, model.TierRead)
	if err != nil {
		return nil, err
	}

	url, err := s.blobs.PresignGet(ctx, f.BlobKey)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, sess.UserID, model.ActionFileDownload, &fileID, true)
	return &DownloadInfo{
		FileID:     f.ID,
		URL:        url,
		WrappedKey: g.WrappedKey,
		IV:         f.IV,
		Checksum:   f.Checksum,
		EncName:    f.EncName,
	}, nil
}

// Delete removes the file and every grant for it. Owner only.
func (s *FileService) Delete(ctx context.Context, sess *model.Session, fileID uuid.UUID) error {
	f, err := s.files.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if _, err := s.requireTier(ctx, sess, fileID); err != nil {
		return err
	}

	if err := s.files.Delete(ctx, fileID); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, f.BlobKey); err != nil {
		s.log.Warn("blob delete failed", zap.String("key", f.BlobKey), zap.Error(err))
	}

	s.audit.Record(ctx, sess.UserID, model.ActionFileDelete, &fileID, true)
	return nil
}
