package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AiAnalyzeCache maps a request fingerprint to a generated explanation so a
// repeated analyze request does not call the model again.
//
// A row with Pending=true is a claim: the writer that managed to insert it is
// generating the response; everyone else with the same key waits for the row
// to be filled. The unique (user_id, cache_key) index is what makes the claim
// race-free across worker processes.
type AiAnalyzeCache struct {
	gorm.Model
	UserID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_ai_analyze_cache_user_key,priority:1"`
	CacheKey     string    `gorm:"size:64;not null;uniqueIndex:idx_ai_analyze_cache_user_key,priority:2"`
	ResponseText string    `gorm:"type:text"`
	Pending      bool      `gorm:"not null;default:false"`
	ClaimedAt    time.Time
}
