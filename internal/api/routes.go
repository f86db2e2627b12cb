package api

import (
	"jns23lab_go_backend/internal/auth"
	"jns23lab_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

func SetupRoutes(r *gin.Engine, gateway *services.GatewayService, history services.ChatHistory, redisClient *redis.Client) {
	ai := r.Group("/api/ai")
	{
		ai.GET("/health", healthHandler(redisClient))
		ai.POST("/analyze", auth.AuthMiddleware(), analyzeHandler(gateway))
		ai.POST("/chat", auth.AuthMiddleware(), auth.RequirePremium(), chatHandler(gateway))
		ai.POST("/chat/stream", auth.AuthMiddleware(), auth.RequirePremium(), chatStreamHandler(gateway))
		ai.GET("/chat/history", auth.AuthMiddleware(), auth.RequirePremium(), chatHistoryHandler(history))
		ai.POST("/chat-with-image", auth.AuthMiddleware(), auth.RequirePremium(), chatWithImageHandler(gateway))
	}
}
