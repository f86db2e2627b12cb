package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jns23lab_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestAnalyzeCache(db *gorm.DB) AnalyzeCache {
	return NewAnalyzeCache(db, 10*time.Millisecond, 2*time.Second, 200*time.Millisecond)
}

func TestAnalyzeCacheGetOrGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("Miss generates and stores", func(t *testing.T) {
		db := setupTestDB(t)
		cache := newTestAnalyzeCache(db)
		userID := uuid.New()

		var calls int32
		text, fromCache, err := cache.GetOrGenerate(ctx, userID, "key-1", func(ctx context.Context) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "explanation", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "explanation", text)
		assert.False(t, fromCache)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

		entry, err := cache.Lookup(userID, "key-1")
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, "explanation", entry.ResponseText)
		assert.False(t, entry.Pending)
	})

	t.Run("Hit skips the generator", func(t *testing.T) {
		db := setupTestDB(t)
		cache := newTestAnalyzeCache(db)
		userID := uuid.New()

		_, _, err := cache.GetOrGenerate(ctx, userID, "key-1", func(ctx context.Context) (string, error) {
			return "explanation", nil
		})
		require.NoError(t, err)

		text, fromCache, err := cache.GetOrGenerate(ctx, userID, "key-1", func(ctx context.Context) (string, error) {
			t.Fatal("generator must not run on a cache hit")
			return "", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "explanation", text)
		assert.True(t, fromCache)
	})

	t.Run("Same key for another user is a separate entry", func(t *testing.T) {
		db := setupTestDB(t)
		cache := newTestAnalyzeCache(db)

		_, _, err := cache.GetOrGenerate(ctx, uuid.New(), "key-1", func(ctx context.Context) (string, error) {
			return "first", nil
		})
		require.NoError(t, err)

		text, fromCache, err := cache.GetOrGenerate(ctx, uuid.New(), "key-1", func(ctx context.Context) (string, error) {
			return "second", nil
		})
		require.NoError(t, err)
		assert.False(t, fromCache)
		assert.Equal(t, "second", text)
	})

	t.Run("Concurrent callers trigger exactly one generation", func(t *testing.T) {
		db := setupTestDB(t)
		cache := newTestAnalyzeCache(db)
		userID := uuid.New()

		var calls int32
		generate := func(ctx context.Context) (string, error) {
			atomic.AddInt32(&calls, 1)
			time.Sleep(50 * time.Millisecond)
			return "shared explanation", nil
		}

		var wg sync.WaitGroup
		results := make([]string, 2)
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], _, errs[i] = cache.GetOrGenerate(ctx, userID, "key-1", generate)
			}(i)
		}
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		assert.Equal(t, "shared explanation", results[0])
		assert.Equal(t, "shared explanation", results[1])
	})

	t.Run("Waiter reads the result filled by the claim holder", func(t *testing.T) {
		db := setupTestDB(t)
		cache := newTestAnalyzeCache(db)
		userID := uuid.New()

		// Another worker already holds the claim.
		claim := &models.AiAnalyzeCache{
			UserID:    userID,
			CacheKey:  "key-1",
			Pending:   true,
			ClaimedAt: time.Now().UTC(),
		}
		require.NoError(t, db.Create(claim).Error)

		done := make(chan struct{})
		var text string
		var fromCache bool
		var err error
		go func() {
			defer close(done)
			text, fromCache, err = cache.GetOrGenerate(ctx, userID, "key-1", func(ctx context.Context) (string, error) {
				return "", errors.New("generator must not run while the claim is held")
			})
		}()

		time.Sleep(50 * time.Millisecond)
		require.NoError(t, db.Model(&models.AiAnalyzeCache{}).
			Where("id = ?", claim.ID).
			Updates(map[string]interface{}{"response_text": "filled elsewhere", "pending": false}).Error)

		<-done
		require.NoError(t, err)
		assert.True(t, fromCache)
		assert.Equal(t, "filled elsewhere", text)
	})

	t.Run("Failed generation releases the claim", func(t *testing.T) {
		db := setupTestDB(t)
		cache := newTestAnalyzeCache(db)
		userID := uuid.New()

		_, _, err := cache.GetOrGenerate(ctx, userID, "key-1", func(ctx context.Context) (string, error) {
			return "", errors.New("model unavailable")
		})
		require.Error(t, err)

		var count int64
		require.NoError(t, db.Model(&models.AiAnalyzeCache{}).Where("user_id = ?", userID).Count(&count).Error)
		assert.Equal(t, int64(0), count)

		// The key is retryable after the failure.
		text, fromCache, err := cache.GetOrGenerate(ctx, userID, "key-1", func(ctx context.Context) (string, error) {
			return "second attempt", nil
		})
		require.NoError(t, err)
		assert.False(t, fromCache)
		assert.Equal(t, "second attempt", text)
	})

	t.Run("Stale claim from a dead worker is retaken", func(t *testing.T) {
		db := setupTestDB(t)
		cache := newTestAnalyzeCache(db)
		userID := uuid.New()

		claim := &models.AiAnalyzeCache{
			UserID:    userID,
			CacheKey:  "key-1",
			Pending:   true,
			ClaimedAt: time.Now().UTC().Add(-time.Minute),
		}
		require.NoError(t, db.Create(claim).Error)

		text, fromCache, err := cache.GetOrGenerate(ctx, userID, "key-1", func(ctx context.Context) (string, error) {
			return "recovered", nil
		})
		require.NoError(t, err)
		assert.False(t, fromCache)
		assert.Equal(t, "recovered", text)
	})
}
