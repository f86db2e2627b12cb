package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"jns23lab_go_backend/cmd/api/config"
	"jns23lab_go_backend/internal/api"
	"jns23lab_go_backend/internal/auth"
	"jns23lab_go_backend/internal/cache"
	"jns23lab_go_backend/internal/database"
	"jns23lab_go_backend/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/generative-ai-go/genai"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	genaiAPIKey := os.Getenv("GOOGLE_AI_STUDIO_API_KEY")
	if genaiAPIKey == "" {
		log.Fatal("GOOGLE_AI_STUDIO_API_KEY is not set in the environment")
	}
	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET is not set in the environment")
	}

	ctx := context.Background()
	cfg := config.NewConfig()
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		cfg.GeminiModel = model
	}

	database.InitDB()

	genaiClient, err := genai.NewClient(ctx, option.WithAPIKey(genaiAPIKey))
	if err != nil {
		log.Fatalf("Failed to create GenAI client: %v", err)
	}
	defer genaiClient.Close()

	// Redis is optional: without it the chat context window is read from the
	// database on every request.
	var redisClient *redis.Client
	var contextCache services.ContextCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Printf("Redis unreachable, continuing without chat cache: %v", err)
			redisClient.Close()
			redisClient = nil
		} else {
			contextCache = cache.NewChatCache(redisClient, cfg.ChatCacheTTL, cfg.ChatHistoryLimit, zlog.Logger)
		}
	}

	// Initialize internal services
	geminiService := services.NewGeminiService(genaiClient, cfg.GeminiModel)
	rateLimiter := services.NewRateLimiter(database.DB)
	analyzeCache := services.NewAnalyzeCache(database.DB, cfg.CachePollInterval, cfg.CacheClaimTimeout, cfg.StaleClaimCutoff)
	chatHistory := services.NewChatHistory(database.DB)

	gateway := services.NewGatewayService(
		geminiService,
		rateLimiter,
		analyzeCache,
		chatHistory,
		contextCache,
		zlog.Logger,
	)

	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173"
	}

	// CORS middleware configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(allowedOrigins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api.SetupRoutes(r, gateway, chatHistory, redisClient)
	auth.SetupRoutes(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	log.Printf("Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
