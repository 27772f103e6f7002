// Package sweep runs the background retention pass: expired challenge rows
// and files past the retention window are reclaimed, blob storage included.
package sweep

import (
	"context"
	"time"

	"github.com/avk1987/crypto-vault/internal/repository"
	"github.com/avk1987/crypto-vault/internal/storage"
	"go.uber.org/zap"
)

// Sweeper periodically reclaims expired state.
type Sweeper struct {
	files      repository.FileRepository
	challenges repository.ChallengeRepository
	blobs      storage.BlobStore
	retention  time.Duration // zero disables file retention
	interval   time.Duration
	log        *zap.Logger
}

// New constructs a Sweeper. retention of zero keeps files forever; only
// expired challenges are swept then.
func New(
	files repository.FileRepository,
	challenges repository.ChallengeRepository,
	blobs storage.BlobStore,
	retention, interval time.Duration,
	log *zap.Logger,
) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		files:      files,
		challenges: challenges,
		blobs:      blobs,
		retention:  retention,
		interval:   interval,
		log:        log,
	}
}

// Run blocks until ctx is done, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs a single pass. Failures are logged; the next tick retries.
func (s *Sweeper) Sweep(ctx context.Context) {
	n, err := s.challenges.DeleteExpired(ctx)
	if err != nil {
		s.log.Error("challenge sweep failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("expired challenges reclaimed", zap.Int64("count", n))
	}

	if s.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.retention)
	keys, err := s.files.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error("file retention sweep failed", zap.Error(err))
		return
	}
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.log.Warn("blob delete failed", zap.String("key", key), zap.Error(err))
		}
	}
	if len(keys) > 0 {
		s.log.Info("expired files reclaimed", zap.Int("count", len(keys)))
	}
}
