package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AiConversation is the single assistant thread a user owns. It mostly exists
// as the row the history service locks to serialize appends for one user.
type AiConversation struct {
	gorm.Model
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
}

// AiChatMessage is one turn of the assistant conversation. Rows are append-only;
// ordering is the auto-increment ID.
type AiChatMessage struct {
	gorm.Model
	ConversationID uint      `gorm:"not null;index"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index"`
	Role           string    `gorm:"size:16;not null"` // "user" | "assistant"
	Content        string    `gorm:"type:text;not null"`
	InputTokens    *int32
	OutputTokens   *int32
}
