package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeCacheKey(t *testing.T) {
	userID := uuid.New()
	details := []map[string]interface{}{
		{"category": "nginx", "step_code": "NGINX_01", "status": "failed", "message": "502 Bad Gateway"},
	}
	snippets := map[string]string{"nginx_config": "server { listen 80; }"}

	t.Run("Is deterministic", func(t *testing.T) {
		a, err := AnalyzeCacheKey(userID, details, snippets)
		require.NoError(t, err)
		b, err := AnalyzeCacheKey(userID, details, snippets)
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("Differs per user", func(t *testing.T) {
		a, err := AnalyzeCacheKey(userID, details, snippets)
		require.NoError(t, err)
		b, err := AnalyzeCacheKey(uuid.New(), details, snippets)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("Differs per payload", func(t *testing.T) {
		a, err := AnalyzeCacheKey(userID, details, snippets)
		require.NoError(t, err)
		other := []map[string]interface{}{
			{"category": "mysql", "step_code": "MYSQL_03", "status": "failed", "message": "access denied"},
		}
		b, err := AnalyzeCacheKey(userID, other, snippets)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("Ignores embedded secrets", func(t *testing.T) {
		withSecretA := []map[string]interface{}{
			{"step_code": "MYSQL_03", "raw": "password=hunter2"},
		}
		withSecretB := []map[string]interface{}{
			{"step_code": "MYSQL_03", "raw": "password=letmein"},
		}
		a, err := AnalyzeCacheKey(userID, withSecretA, nil)
		require.NoError(t, err)
		b, err := AnalyzeCacheKey(userID, withSecretB, nil)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("Ignores whitespace formatting", func(t *testing.T) {
		compact := map[string]string{"nginx_config": "server { listen 80; }"}
		spaced := map[string]string{"nginx_config": "server  {\n\tlisten   80; }"}
		a, err := AnalyzeCacheKey(userID, details, compact)
		require.NoError(t, err)
		b, err := AnalyzeCacheKey(userID, details, spaced)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("Empty and nil snippets are equivalent", func(t *testing.T) {
		a, err := AnalyzeCacheKey(userID, details, nil)
		require.NoError(t, err)
		b, err := AnalyzeCacheKey(userID, details, map[string]string{})
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}
