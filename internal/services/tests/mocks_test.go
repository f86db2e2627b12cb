package services_test

import (
	"context"

	"jns23lab_go_backend/internal/models"
	"jns23lab_go_backend/internal/services"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockAIGenerator struct {
	mock.Mock
}

func (m *MockAIGenerator) GenerateAnalyze(ctx context.Context, examResultDetails []map[string]interface{}, configSnippets map[string]string) (string, error) {
	args := m.Called(ctx, examResultDetails, configSnippets)
	return args.String(0), args.Error(1)
}

func (m *MockAIGenerator) GenerateChat(ctx context.Context, history []services.ChatMessage, message string) (services.Reply, error) {
	args := m.Called(ctx, history, message)
	return args.Get(0).(services.Reply), args.Error(1)
}

func (m *MockAIGenerator) GenerateChatWithImage(ctx context.Context, history []services.ChatMessage, message string, imageData []byte, imageFormat string) (services.Reply, error) {
	args := m.Called(ctx, history, message, imageData, imageFormat)
	return args.Get(0).(services.Reply), args.Error(1)
}

func (m *MockAIGenerator) GenerateChatStream(ctx context.Context, history []services.ChatMessage, message string) (*genai.GenerateContentResponseIterator, error) {
	args := m.Called(ctx, history, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*genai.GenerateContentResponseIterator), args.Error(1)
}

type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) ReserveAnalyze(userID uuid.UUID, isPremium bool) (services.QuotaDecision, error) {
	args := m.Called(userID, isPremium)
	return args.Get(0).(services.QuotaDecision), args.Error(1)
}

func (m *MockRateLimiter) ReserveChat(userID uuid.UUID) (services.QuotaDecision, error) {
	args := m.Called(userID)
	return args.Get(0).(services.QuotaDecision), args.Error(1)
}

func (m *MockRateLimiter) Commit(reservationID uint, inputTokens, outputTokens *int32) error {
	args := m.Called(reservationID, inputTokens, outputTokens)
	return args.Error(0)
}

func (m *MockRateLimiter) Release(reservationID uint) error {
	args := m.Called(reservationID)
	return args.Error(0)
}

func (m *MockRateLimiter) CountChatToday(userID uuid.UUID) (int, error) {
	args := m.Called(userID)
	return args.Int(0), args.Error(1)
}

type MockAnalyzeCache struct {
	mock.Mock
}

func (m *MockAnalyzeCache) Lookup(userID uuid.UUID, cacheKey string) (*models.AiAnalyzeCache, error) {
	args := m.Called(userID, cacheKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AiAnalyzeCache), args.Error(1)
}

func (m *MockAnalyzeCache) GetOrGenerate(ctx context.Context, userID uuid.UUID, cacheKey string, generate func(ctx context.Context) (string, error)) (string, bool, error) {
	args := m.Called(ctx, userID, cacheKey, generate)
	return args.String(0), args.Bool(1), args.Error(2)
}

type MockChatHistory struct {
	mock.Mock
}

func (m *MockChatHistory) RecentContext(userID uuid.UUID, limit int) ([]services.ChatMessage, error) {
	args := m.Called(userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]services.ChatMessage), args.Error(1)
}

func (m *MockChatHistory) AppendTurn(userID uuid.UUID, userContent, assistantContent string, inputTokens, outputTokens *int32) error {
	args := m.Called(userID, userContent, assistantContent, inputTokens, outputTokens)
	return args.Error(0)
}

func (m *MockChatHistory) AppendUserMessage(userID uuid.UUID, content string) error {
	args := m.Called(userID, content)
	return args.Error(0)
}

func (m *MockChatHistory) AppendAssistantMessage(userID uuid.UUID, content string, outputTokens *int32) error {
	args := m.Called(userID, content, outputTokens)
	return args.Error(0)
}

func (m *MockChatHistory) HistoryForUser(userID uuid.UUID, limit int) ([]models.AiChatMessage, error) {
	args := m.Called(userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AiChatMessage), args.Error(1)
}

type MockContextCache struct {
	mock.Mock
}

func (m *MockContextCache) GetRecent(ctx context.Context, userID string) ([]services.ChatMessage, bool) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).([]services.ChatMessage), args.Bool(1)
}

func (m *MockContextCache) Append(ctx context.Context, userID string, msg services.ChatMessage) {
	m.Called(ctx, userID, msg)
}

func (m *MockContextCache) Warm(ctx context.Context, userID string, msgs []services.ChatMessage) {
	m.Called(ctx, userID, msgs)
}
