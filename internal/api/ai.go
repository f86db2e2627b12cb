package api

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"jns23lab_go_backend/internal/auth"
	apperrors "jns23lab_go_backend/internal/errors"
	"jns23lab_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

const maxImageBytes = 10 * 1024 * 1024

var allowedImageTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/jpg":  "jpeg",
	"image/webp": "webp",
	"image/gif":  "gif",
}

type analyzeRequest struct {
	ExamResultDetails []map[string]interface{} `json:"exam_result_details" binding:"required,min=1"`
	ConfigSnippets    map[string]string        `json:"config_snippets"`
}

type analyzeResponse struct {
	Explanation string `json:"explanation"`
	FromCache   bool   `json:"from_cache"`
}

type chatRequest struct {
	Message string `json:"message" binding:"required,min=1,max=8000"`
}

type chatResponse struct {
	Reply          string `json:"reply"`
	InputTokens    int32  `json:"input_tokens"`
	OutputTokens   int32  `json:"output_tokens"`
	RemainingToday int    `json:"remaining_today"`
}

type chatMessageOut struct {
	ID        uint   `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func analyzeHandler(gateway *services.GatewayService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body analyzeRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user := auth.CurrentUser(c)
		result, err := gateway.Analyze(c.Request.Context(), user, body.ExamResultDetails, body.ConfigSnippets)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, analyzeResponse{
			Explanation: result.Explanation,
			FromCache:   result.FromCache,
		})
	}
}

func chatHandler(gateway *services.GatewayService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body chatRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user := auth.CurrentUser(c)
		result, err := gateway.Chat(c.Request.Context(), user, body.Message)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, chatResponse{
			Reply:          result.Reply,
			InputTokens:    result.InputTokens,
			OutputTokens:   result.OutputTokens,
			RemainingToday: result.RemainingToday,
		})
	}
}

func chatWithImageHandler(gateway *services.GatewayService) gin.HandlerFunc {
	return func(c *gin.Context) {
		message := c.PostForm("message")
		if len(message) > 8000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message too long (max 8000 characters)"})
			return
		}

		fileHeader, err := c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Image file is required"})
			return
		}

		contentType := strings.ToLower(strings.TrimSpace(strings.Split(fileHeader.Header.Get("Content-Type"), ";")[0]))
		format, ok := allowedImageTypes[contentType]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File must be an image (png, jpeg, webp, gif)."})
			return
		}
		if fileHeader.Size > maxImageBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Image too large (max 10 MB)."})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			apperrors.HandleError(c, apperrors.New500Error(err))
			return
		}
		defer file.Close()

		imageData, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
		if err != nil {
			apperrors.HandleError(c, apperrors.New500Error(err))
			return
		}
		if len(imageData) > maxImageBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Image too large (max 10 MB)."})
			return
		}

		user := auth.CurrentUser(c)
		result, err := gateway.ChatWithImage(c.Request.Context(), user, message, imageData, format)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, chatResponse{
			Reply:          result.Reply,
			InputTokens:    result.InputTokens,
			OutputTokens:   result.OutputTokens,
			RemainingToday: result.RemainingToday,
		})
	}
}

func chatHistoryHandler(history services.ChatHistory) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)
		rows, err := history.HistoryForUser(user.ID, 100)
		if err != nil {
			apperrors.HandleError(c, apperrors.New500Error(err))
			return
		}

		messages := make([]chatMessageOut, len(rows))
		for i, row := range rows {
			messages[i] = chatMessageOut{
				ID:        row.ID,
				Role:      row.Role,
				Content:   row.Content,
				CreatedAt: row.CreatedAt.UTC().Format(time.RFC3339),
			}
		}
		c.JSON(http.StatusOK, gin.H{"messages": messages})
	}
}

func healthHandler(redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil {
			c.JSON(http.StatusOK, gin.H{"redis": "unavailable", "message": "Redis disabled or connection failed"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusOK, gin.H{"redis": "error", "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"redis": "ok"})
	}
}
