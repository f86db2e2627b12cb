// Package cache provides the Redis-backed read-through cache for the
// assistant's recent conversation window. Redis is optional: every error is
// logged and swallowed, and the caller falls back to the database.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"jns23lab_go_backend/internal/services"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const chatKeyPrefix = "chat:"

// ChatCache keeps the last N turns per user in a Redis LIST
// (RPUSH + LTRIM + EXPIRE), key "chat:<user_id>".
type ChatCache struct {
	client *redis.Client
	ttl    time.Duration
	limit  int
	log    zerolog.Logger
}

func NewChatCache(client *redis.Client, ttl time.Duration, limit int, log zerolog.Logger) *ChatCache {
	return &ChatCache{client: client, ttl: ttl, limit: limit, log: log}
}

// GetRecent returns the cached window oldest-first. The second result is
// false on miss or any Redis error.
func (c *ChatCache) GetRecent(ctx context.Context, userID string) ([]services.ChatMessage, bool) {
	raw, err := c.client.LRange(ctx, chatKey(userID), int64(-c.limit), -1).Result()
	if err != nil {
		c.log.Warn().Err(err).Str("userID", userID).Msg("Redis chat cache read failed")
		return nil, false
	}
	if len(raw) == 0 {
		return nil, false
	}

	messages := make([]services.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg services.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil || msg.Role == "" {
			continue
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return nil, false
	}
	return messages, true
}

// Append pushes one turn after its DB write, trims to the window and renews
// the TTL.
func (c *ChatCache) Append(ctx context.Context, userID string, msg services.ChatMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	key := chatKey(userID)
	pipe := c.client.Pipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, int64(-c.limit), -1)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn().Err(err).Str("userID", userID).Msg("Redis chat cache append failed")
	}
}

// Warm replaces the cached window with the authoritative DB window after a
// miss. The key is deleted first so ordering is exact.
func (c *ChatCache) Warm(ctx context.Context, userID string, msgs []services.ChatMessage) {
	if len(msgs) == 0 {
		return
	}
	key := chatKey(userID)
	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	for _, msg := range msgs {
		payload, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		pipe.RPush(ctx, key, payload)
	}
	pipe.LTrim(ctx, key, int64(-c.limit), -1)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn().Err(err).Str("userID", userID).Msg("Redis chat cache warm failed")
	}
}

func chatKey(userID string) string {
	return chatKeyPrefix + userID
}
