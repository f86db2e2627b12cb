package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jns23lab_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AnalyzeCache stores generated explanations keyed by request fingerprint and
// guarantees at most one concurrent generation per key across workers.
type AnalyzeCache interface {
	Lookup(userID uuid.UUID, cacheKey string) (*models.AiAnalyzeCache, error)
	GetOrGenerate(ctx context.Context, userID uuid.UUID, cacheKey string, generate func(ctx context.Context) (string, error)) (string, bool, error)
}

type DefaultAnalyzeCache struct {
	db            *gorm.DB
	pollInterval  time.Duration
	claimTimeout  time.Duration
	staleClaimAge time.Duration
}

func NewAnalyzeCache(db *gorm.DB, pollInterval, claimTimeout, staleClaimAge time.Duration) AnalyzeCache {
	return &DefaultAnalyzeCache{
		db:            db,
		pollInterval:  pollInterval,
		claimTimeout:  claimTimeout,
		staleClaimAge: staleClaimAge,
	}
}

// Lookup returns the completed entry for (user, key), or nil on miss.
// Pending claims are not hits.
func (s *DefaultAnalyzeCache) Lookup(userID uuid.UUID, cacheKey string) (*models.AiAnalyzeCache, error) {
	var entry models.AiAnalyzeCache
	err := s.db.Where("user_id = ? AND cache_key = ? AND pending = ?", userID, cacheKey, false).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetOrGenerate returns the cached response for the key, generating it at most
// once. The winner inserts a pending claim row (the unique (user_id, cache_key)
// index arbitrates the race), runs generate, and fills the row in. Losers poll
// until the row is filled. A failed generation releases the claim so any later
// caller can retry; a claim whose owner died is retaken after staleClaimAge.
//
// The boolean result is false only on the path that actually invoked generate.
func (s *DefaultAnalyzeCache) GetOrGenerate(ctx context.Context, userID uuid.UUID, cacheKey string, generate func(ctx context.Context) (string, error)) (string, bool, error) {
	if entry, err := s.Lookup(userID, cacheKey); err != nil {
		return "", false, err
	} else if entry != nil {
		return entry.ResponseText, true, nil
	}

	for {
		claimed, err := s.tryClaim(userID, cacheKey)
		if err != nil {
			return "", false, err
		}

		if claimed {
			text, err := generate(ctx)
			if err != nil {
				s.releaseClaim(userID, cacheKey)
				return "", false, err
			}
			if err := s.fillClaim(userID, cacheKey, text); err != nil {
				return "", false, err
			}
			return text, false, nil
		}

		text, ready, err := s.awaitResult(ctx, userID, cacheKey)
		if err != nil {
			return "", false, err
		}
		if ready {
			return text, true, nil
		}
		// Claim disappeared (released or stale); take another shot at it.
	}
}

// tryClaim inserts the pending row. A unique-index conflict means another
// worker holds the claim.
func (s *DefaultAnalyzeCache) tryClaim(userID uuid.UUID, cacheKey string) (bool, error) {
	claim := &models.AiAnalyzeCache{
		UserID:    userID,
		CacheKey:  cacheKey,
		Pending:   true,
		ClaimedAt: time.Now().UTC(),
	}
	if err := s.db.Create(claim).Error; err != nil {
		// Conflict detection without dialect-specific error codes: if the
		// row exists now, someone else won the insert.
		var existing models.AiAnalyzeCache
		lookupErr := s.db.Where("user_id = ? AND cache_key = ?", userID, cacheKey).First(&existing).Error
		if lookupErr == nil {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *DefaultAnalyzeCache) fillClaim(userID uuid.UUID, cacheKey, responseText string) error {
	return s.db.Model(&models.AiAnalyzeCache{}).
		Where("user_id = ? AND cache_key = ?", userID, cacheKey).
		Updates(map[string]interface{}{
			"response_text": responseText,
			"pending":       false,
		}).Error
}

// releaseClaim removes a pending row after a failed generation so the key is
// retryable instead of permanently stuck.
func (s *DefaultAnalyzeCache) releaseClaim(userID uuid.UUID, cacheKey string) {
	s.db.Where("user_id = ? AND cache_key = ? AND pending = ?", userID, cacheKey, true).
		Delete(&models.AiAnalyzeCache{})
}

// awaitResult polls until the claim holder fills the row (ready=true), the
// claim vanishes or goes stale (ready=false: caller should re-claim), or the
// wait budget runs out.
func (s *DefaultAnalyzeCache) awaitResult(ctx context.Context, userID uuid.UUID, cacheKey string) (string, bool, error) {
	deadline := time.Now().Add(s.claimTimeout)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		var entry models.AiAnalyzeCache
		err := s.db.Where("user_id = ? AND cache_key = ?", userID, cacheKey).First(&entry).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return "", false, nil
		case err != nil:
			return "", false, err
		case !entry.Pending:
			return entry.ResponseText, true, nil
		case time.Since(entry.ClaimedAt) > s.staleClaimAge:
			// The claim holder most likely crashed mid-generation.
			s.db.Where("id = ? AND pending = ?", entry.ID, true).Delete(&models.AiAnalyzeCache{})
			return "", false, nil
		}

		if time.Now().After(deadline) {
			return "", false, fmt.Errorf("timed out waiting for in-flight generation of key %s", cacheKey)
		}

		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-ticker.C:
		}
	}
}
