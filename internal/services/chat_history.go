package services

import (
	"errors"

	"jns23lab_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatMessage is the prompt-context shape of a stored turn.
type ChatMessage struct {
	Role    string `json:"role"` // "user" | "assistant"
	Content string `json:"content"`
}

// ChatHistory persists the per-user assistant conversation. Appends are
// serialized per user through a row lock on the conversation, so turn order
// is strict even under concurrent requests from the same user. Nothing is
// ever deleted; readers just take a bounded recent window.
type ChatHistory interface {
	RecentContext(userID uuid.UUID, limit int) ([]ChatMessage, error)
	AppendTurn(userID uuid.UUID, userContent, assistantContent string, inputTokens, outputTokens *int32) error
	AppendUserMessage(userID uuid.UUID, content string) error
	AppendAssistantMessage(userID uuid.UUID, content string, outputTokens *int32) error
	HistoryForUser(userID uuid.UUID, limit int) ([]models.AiChatMessage, error)
}

type DefaultChatHistory struct {
	db *gorm.DB
}

func NewChatHistory(db *gorm.DB) ChatHistory {
	return &DefaultChatHistory{db: db}
}

// RecentContext returns up to limit most recent turns, oldest first, ready to
// be used as model context.
func (s *DefaultChatHistory) RecentContext(userID uuid.UUID, limit int) ([]ChatMessage, error) {
	conv, err := s.findConversation(userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return []ChatMessage{}, nil
	}

	var rows []models.AiChatMessage
	if err := s.db.Where("conversation_id = ?", conv.ID).
		Order("id desc").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	// Reverse into creation order for prompt construction.
	messages := make([]ChatMessage, len(rows))
	for i, r := range rows {
		messages[len(rows)-1-i] = ChatMessage{Role: r.Role, Content: r.Content}
	}
	return messages, nil
}

// AppendTurn saves the user message and the assistant reply as one ordered
// pair.
func (s *DefaultChatHistory) AppendTurn(userID uuid.UUID, userContent, assistantContent string, inputTokens, outputTokens *int32) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		conv, err := lockConversation(tx, userID)
		if err != nil {
			return err
		}
		userMsg := &models.AiChatMessage{
			ConversationID: conv.ID,
			UserID:         userID,
			Role:           "user",
			Content:        userContent,
			InputTokens:    inputTokens,
		}
		if err := tx.Create(userMsg).Error; err != nil {
			return err
		}
		assistantMsg := &models.AiChatMessage{
			ConversationID: conv.ID,
			UserID:         userID,
			Role:           "assistant",
			Content:        assistantContent,
			OutputTokens:   outputTokens,
		}
		return tx.Create(assistantMsg).Error
	})
}

func (s *DefaultChatHistory) AppendUserMessage(userID uuid.UUID, content string) error {
	return s.appendOne(userID, "user", content, nil)
}

func (s *DefaultChatHistory) AppendAssistantMessage(userID uuid.UUID, content string, outputTokens *int32) error {
	return s.appendOne(userID, "assistant", content, outputTokens)
}

func (s *DefaultChatHistory) appendOne(userID uuid.UUID, role, content string, outputTokens *int32) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		conv, err := lockConversation(tx, userID)
		if err != nil {
			return err
		}
		msg := &models.AiChatMessage{
			ConversationID: conv.ID,
			UserID:         userID,
			Role:           role,
			Content:        content,
			OutputTokens:   outputTokens,
		}
		return tx.Create(msg).Error
	})
}

// HistoryForUser returns the last limit messages of the user's conversation
// in creation order, for the history endpoint. Ownership is implicit: only
// the conversation owned by userID is read.
func (s *DefaultChatHistory) HistoryForUser(userID uuid.UUID, limit int) ([]models.AiChatMessage, error) {
	conv, err := s.findConversation(userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return []models.AiChatMessage{}, nil
	}

	var rows []models.AiChatMessage
	if err := s.db.Where("conversation_id = ?", conv.ID).
		Order("id desc").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

func (s *DefaultChatHistory) findConversation(userID uuid.UUID) (*models.AiConversation, error) {
	var conv models.AiConversation
	err := s.db.Where("user_id = ?", userID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// lockConversation fetches (creating if needed) the user's conversation with
// a FOR UPDATE lock on Postgres, holding it for the rest of the transaction
// so appends from the same user cannot interleave. Sqlite serializes writers
// on its own.
func lockConversation(tx *gorm.DB, userID uuid.UUID) (*models.AiConversation, error) {
	var conv models.AiConversation
	q := tx.Where("user_id = ?", userID)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		conv = models.AiConversation{UserID: userID}
		if err := tx.Create(&conv).Error; err != nil {
			return nil, err
		}
		return &conv, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}
