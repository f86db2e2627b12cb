package services

import "context"

// ContextCache is an optional read-through cache for the recent conversation
// window (implemented over Redis in internal/cache). The database stays the
// source of truth: every method is best-effort and a miss or failure just
// means the caller reads the DB.
type ContextCache interface {
	GetRecent(ctx context.Context, userID string) ([]ChatMessage, bool)
	Append(ctx context.Context, userID string, msg ChatMessage)
	Warm(ctx context.Context, userID string, msgs []ChatMessage)
}
