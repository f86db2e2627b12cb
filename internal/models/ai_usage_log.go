package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AiUsageLog is the append-only record of model invocations. Daily quota
// counts are derived from it; there is no separate counter to drift.
//
// A row with Pending=true is a reservation: the quota gate inserted it while
// holding the slot, and the row is either fulfilled (committed) after the
// model call or deleted if the call fails. Pending rows count against the
// ceiling like committed ones.
type AiUsageLog struct {
	gorm.Model
	UserID       uuid.UUID `gorm:"type:uuid;not null;index:idx_ai_usage_user_feature,priority:1"`
	Feature      string    `gorm:"size:32;not null;index:idx_ai_usage_user_feature,priority:2"`
	InputTokens  *int32
	OutputTokens *int32
	Pending      bool `gorm:"not null;default:false"`
}
