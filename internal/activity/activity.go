// Package activity provides windowed recognition counts for the abuse
// detectors, backed by the repository with short-TTL caching.
package activity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kudoshq/shrike/internal/domain"
)

// countTTL keeps cached counts fresh enough for threshold checks while
// absorbing detector fan-out: one evaluation issues several queries that an
// immediately following evaluation for the same giver would repeat.
const countTTL = 30 * time.Second

// Service implements the engine's ActivityReader contract over Repository +
// Cache. The detection config supplies the window sizes so the write path can
// invalidate exactly the keys an evaluation reads.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	cfg   domain.DetectionConfig
}

// NewService creates an activity service. cache may be nil; counts then go
// straight to the repository.
func NewService(repo domain.Repository, cache domain.Cache, cfg domain.DetectionConfig) *Service {
	return &Service{repo: repo, cache: cache, cfg: cfg}
}

// PairCount counts giver→recipient recognitions within the window.
func (s *Service) PairCount(ctx context.Context, tenantID, giverID, recipientID string, window time.Duration) (int64, error) {
	key := fmt.Sprintf("pair:%s:%s:%d", giverID, recipientID, int(window.Seconds()))
	return s.cachedCount(ctx, tenantID, key, func() (int64, error) {
		return s.repo.CountPair(ctx, tenantID, giverID, recipientID, time.Now().Add(-window))
	})
}

// MutualCount counts recognitions flowing back recipient→giver within the
// window.
func (s *Service) MutualCount(ctx context.Context, tenantID, giverID, recipientID string, window time.Duration) (int64, error) {
	key := fmt.Sprintf("pair:%s:%s:%d", recipientID, giverID, int(window.Seconds()))
	return s.cachedCount(ctx, tenantID, key, func() (int64, error) {
		return s.repo.CountPair(ctx, tenantID, recipientID, giverID, time.Now().Add(-window))
	})
}

// GiverCount counts all recognitions the giver issued within the window.
func (s *Service) GiverCount(ctx context.Context, tenantID, giverID string, window time.Duration) (int64, error) {
	key := fmt.Sprintf("giver:%s:%d", giverID, int(window.Seconds()))
	return s.cachedCount(ctx, tenantID, key, func() (int64, error) {
		return s.repo.CountByGiver(ctx, tenantID, giverID, time.Now().Add(-window))
	})
}

// DuplicateReasonCount counts recent recognitions by the giver whose
// normalized reason matches this one.
func (s *Service) DuplicateReasonCount(ctx context.Context, tenantID, giverID, reason string, window time.Duration) (int64, error) {
	normalized := domain.NormalizeReason(reason)
	key := fmt.Sprintf("dup:%s:%s:%d", giverID, shortDigest(normalized), int(window.Seconds()))
	return s.cachedCount(ctx, tenantID, key, func() (int64, error) {
		return s.repo.CountDuplicateReason(ctx, tenantID, giverID, normalized, time.Now().Add(-window))
	})
}

// RecordSubmission bumps the giver's rolling 24h submission counter. This is
// a cheap fast-path signal for operational visibility; the authoritative
// frequency check always queries the repository.
func (s *Service) RecordSubmission(ctx context.Context, tenantID, giverID string) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.IncrementCounter(ctx, tenantID, "submissions:"+giverID, 24*time.Hour)
}

// InvalidateCounts drops the cached counts a stored recognition has just
// changed, so the next evaluation for this giver sees it. Burst gaming is
// exactly the pattern the detectors exist for; a stale TTL window would hide
// it. Best-effort: a failed delete only delays visibility by the TTL.
func (s *Service) InvalidateCounts(ctx context.Context, tenantID string, rec *domain.Recognition) {
	if s.cache == nil {
		return
	}

	reciprocitySecs := int((time.Duration(s.cfg.ReciprocityWindowDays) * 24 * time.Hour).Seconds())
	duplicateSecs := int((time.Duration(s.cfg.DuplicateWindowDays) * 24 * time.Hour).Seconds())

	keys := []string{
		fmt.Sprintf("pair:%s:%s:%d", rec.GiverID, rec.RecipientID, reciprocitySecs),
		fmt.Sprintf("giver:%s:%d", rec.GiverID, int((24 * time.Hour).Seconds())),
		fmt.Sprintf("giver:%s:%d", rec.GiverID, int((7 * 24 * time.Hour).Seconds())),
		fmt.Sprintf("dup:%s:%s:%d", rec.GiverID, shortDigest(domain.NormalizeReason(rec.Reason)), duplicateSecs),
	}
	for _, key := range keys {
		_ = s.cache.DeleteCount(ctx, tenantID, key)
	}
}

func (s *Service) cachedCount(ctx context.Context, tenantID, key string, query func() (int64, error)) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenantID is required")
	}

	if s.cache != nil {
		if count, ok, err := s.cache.GetCount(ctx, tenantID, key); err == nil && ok {
			return count, nil
		}
	}

	count, err := query()
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		_ = s.cache.SetCount(ctx, tenantID, key, count, countTTL)
	}

	return count, nil
}

// shortDigest keeps cache keys bounded regardless of reason length.
func shortDigest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:12]
}
