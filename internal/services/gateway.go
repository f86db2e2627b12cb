package services

import (
	"context"
	"strings"

	apperrors "jns23lab_go_backend/internal/errors"
	"jns23lab_go_backend/internal/models"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
)

// Window of stored turns supplied to the model as context.
const ChatContextWindow = 10

type AnalyzeResult struct {
	Explanation string
	FromCache   bool
}

type ChatResult struct {
	Reply          string
	InputTokens    int32
	OutputTokens   int32
	RemainingToday int
}

// GatewayService sequences redaction, quota enforcement, caching and history
// around the external model call. Each flow reserves a quota slot up front,
// then commits it only after a successful model response; failures (and
// analyze cache hits) release the reservation, so they cost nothing against
// the daily ceiling.
type GatewayService struct {
	generator    AIGenerator
	limiter      RateLimiter
	cache        AnalyzeCache
	history      ChatHistory
	contextCache ContextCache // may be nil (Redis disabled)
	log          zerolog.Logger
}

func NewGatewayService(
	generator AIGenerator,
	limiter RateLimiter,
	cache AnalyzeCache,
	history ChatHistory,
	contextCache ContextCache,
	log zerolog.Logger,
) *GatewayService {
	return &GatewayService{
		generator:    generator,
		limiter:      limiter,
		cache:        cache,
		history:      history,
		contextCache: contextCache,
		log:          log,
	}
}

// Analyze explains a failed exam step. The quota gate reserves a slot before
// the cache lookup, but only a miss (an actual model call) commits it: hits
// release the reservation and stay free against the daily ceiling.
func (g *GatewayService) Analyze(ctx context.Context, user *models.User, examResultDetails []map[string]interface{}, configSnippets map[string]string) (AnalyzeResult, error) {
	decision, err := g.limiter.ReserveAnalyze(user.ID, user.IsPremium)
	if err != nil {
		return AnalyzeResult{}, err
	}
	if !decision.Allowed {
		return AnalyzeResult{}, apperrors.New429Error(decision.DeniedMessage(FeatureAnalyze), decision.ResetsAt)
	}

	safeDetails := FilterSecretsFromRecords(examResultDetails)
	safeSnippets := FilterSecretsFromSnippets(configSnippets)

	key, err := AnalyzeCacheKey(user.ID, safeDetails, safeSnippets)
	if err != nil {
		g.release(user, decision.ReservationID)
		return AnalyzeResult{}, err
	}

	explanation, fromCache, err := g.cache.GetOrGenerate(ctx, user.ID, key, func(ctx context.Context) (string, error) {
		return g.generator.GenerateAnalyze(ctx, safeDetails, safeSnippets)
	})
	if err != nil {
		g.release(user, decision.ReservationID)
		return AnalyzeResult{}, apperrors.New502Error(err)
	}

	if fromCache {
		g.release(user, decision.ReservationID)
	} else {
		if err := g.limiter.Commit(decision.ReservationID, nil, nil); err != nil {
			return AnalyzeResult{}, err
		}
	}

	g.log.Info().
		Str("userID", user.ID.String()).
		Bool("fromCache", fromCache).
		Msg("Analyze request served")

	return AnalyzeResult{Explanation: explanation, FromCache: fromCache}, nil
}

// Chat runs one assistant turn with the recent conversation window as context.
func (g *GatewayService) Chat(ctx context.Context, user *models.User, message string) (ChatResult, error) {
	decision, err := g.limiter.ReserveChat(user.ID)
	if err != nil {
		return ChatResult{}, err
	}
	if !decision.Allowed {
		return ChatResult{}, apperrors.New429Error(decision.DeniedMessage(FeatureChat), decision.ResetsAt)
	}

	safeMessage := FilterSecretsFromText(message)

	history, err := g.recentContext(ctx, user)
	if err != nil {
		g.release(user, decision.ReservationID)
		return ChatResult{}, err
	}

	reply, err := g.generator.GenerateChat(ctx, history, safeMessage)
	if err != nil {
		g.release(user, decision.ReservationID)
		return ChatResult{}, apperrors.New502Error(err)
	}

	return g.completeTurn(ctx, user, safeMessage, reply, decision.ReservationID)
}

// ChatWithImage is Chat with a screenshot attached to the new turn. The
// stored user message marks the upload; the image itself is never persisted.
func (g *GatewayService) ChatWithImage(ctx context.Context, user *models.User, message string, imageData []byte, imageFormat string) (ChatResult, error) {
	decision, err := g.limiter.ReserveChat(user.ID)
	if err != nil {
		return ChatResult{}, err
	}
	if !decision.Allowed {
		return ChatResult{}, apperrors.New429Error(decision.DeniedMessage(FeatureChat), decision.ResetsAt)
	}

	safeMessage := FilterSecretsFromText(message)

	history, err := g.recentContext(ctx, user)
	if err != nil {
		g.release(user, decision.ReservationID)
		return ChatResult{}, err
	}

	reply, err := g.generator.GenerateChatWithImage(ctx, history, safeMessage, imageData, imageFormat)
	if err != nil {
		g.release(user, decision.ReservationID)
		return ChatResult{}, apperrors.New502Error(err)
	}

	storedContent := "[Image uploaded]"
	if strings.TrimSpace(safeMessage) != "" {
		storedContent = "[Image uploaded] " + safeMessage
	}
	return g.completeTurn(ctx, user, storedContent, reply, decision.ReservationID)
}

// ChatStream starts a streaming assistant turn. The user message is persisted
// before the stream begins (the stored history should show it even if the
// stream dies midway); the returned finish callback saves the assistant turn,
// writes the usage row and reports remaining quota once the full reply is
// known.
func (g *GatewayService) ChatStream(ctx context.Context, user *models.User, message string) (*genai.GenerateContentResponseIterator, func(ctx context.Context, fullReply string) int, error) {
	decision, err := g.limiter.ReserveChat(user.ID)
	if err != nil {
		return nil, nil, err
	}
	if !decision.Allowed {
		return nil, nil, apperrors.New429Error(decision.DeniedMessage(FeatureChat), decision.ResetsAt)
	}

	safeMessage := FilterSecretsFromText(message)

	history, err := g.recentContext(ctx, user)
	if err != nil {
		g.release(user, decision.ReservationID)
		return nil, nil, err
	}

	if err := g.history.AppendUserMessage(user.ID, safeMessage); err != nil {
		g.release(user, decision.ReservationID)
		return nil, nil, err
	}
	g.cacheAppend(ctx, user, ChatMessage{Role: "user", Content: safeMessage})

	iter, err := g.generator.GenerateChatStream(ctx, history, safeMessage)
	if err != nil {
		g.release(user, decision.ReservationID)
		return nil, nil, apperrors.New502Error(err)
	}

	finish := func(ctx context.Context, fullReply string) int {
		if err := g.history.AppendAssistantMessage(user.ID, fullReply, nil); err != nil {
			g.log.Warn().Err(err).Str("userID", user.ID.String()).Msg("Failed to save assistant message after stream")
			return 0
		}
		g.cacheAppend(ctx, user, ChatMessage{Role: "assistant", Content: fullReply})
		if err := g.limiter.Commit(decision.ReservationID, nil, nil); err != nil {
			g.log.Warn().Err(err).Str("userID", user.ID.String()).Msg("Failed to commit usage after stream")
			return 0
		}
		used, err := g.limiter.CountChatToday(user.ID)
		if err != nil {
			return 0
		}
		return remaining(used)
	}

	return iter, finish, nil
}

// completeTurn persists both turns, commits the reservation and derives
// remaining quota.
func (g *GatewayService) completeTurn(ctx context.Context, user *models.User, userContent string, reply Reply, reservationID uint) (ChatResult, error) {
	inputTokens := reply.InputTokens
	outputTokens := reply.OutputTokens
	if err := g.history.AppendTurn(user.ID, userContent, reply.Text, &inputTokens, &outputTokens); err != nil {
		g.release(user, reservationID)
		return ChatResult{}, err
	}
	g.cacheAppend(ctx, user, ChatMessage{Role: "user", Content: userContent})
	g.cacheAppend(ctx, user, ChatMessage{Role: "assistant", Content: reply.Text})

	if err := g.limiter.Commit(reservationID, &inputTokens, &outputTokens); err != nil {
		return ChatResult{}, err
	}

	used, err := g.limiter.CountChatToday(user.ID)
	if err != nil {
		return ChatResult{}, err
	}

	return ChatResult{
		Reply:          reply.Text,
		InputTokens:    reply.InputTokens,
		OutputTokens:   reply.OutputTokens,
		RemainingToday: remaining(used),
	}, nil
}

// recentContext reads the context window cache-aside: Redis on hit, DB on
// miss (then warms Redis).
func (g *GatewayService) recentContext(ctx context.Context, user *models.User) ([]ChatMessage, error) {
	if g.contextCache != nil {
		if messages, ok := g.contextCache.GetRecent(ctx, user.ID.String()); ok {
			return messages, nil
		}
	}
	messages, err := g.history.RecentContext(user.ID, ChatContextWindow)
	if err != nil {
		return nil, err
	}
	if g.contextCache != nil && len(messages) > 0 {
		g.contextCache.Warm(ctx, user.ID.String(), messages)
	}
	return messages, nil
}

// release frees an unfulfilled reservation. Failures are logged, not
// surfaced: a leaked pending row is reclaimed by the stale-reservation sweep.
func (g *GatewayService) release(user *models.User, reservationID uint) {
	if err := g.limiter.Release(reservationID); err != nil {
		g.log.Warn().Err(err).Str("userID", user.ID.String()).Msg("Failed to release quota reservation")
	}
}

func (g *GatewayService) cacheAppend(ctx context.Context, user *models.User, msg ChatMessage) {
	if g.contextCache != nil {
		g.contextCache.Append(ctx, user.ID.String(), msg)
	}
}

func remaining(used int) int {
	r := ChatLimitPremium - used
	if r < 0 {
		return 0
	}
	return r
}
