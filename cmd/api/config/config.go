package config

import "time"

type Config struct {
	GeminiModel       string
	CachePollInterval time.Duration
	CacheClaimTimeout time.Duration
	StaleClaimCutoff  time.Duration
	ChatCacheTTL      time.Duration
	ChatHistoryLimit  int
}

func NewConfig() *Config {
	return &Config{
		GeminiModel:       "gemini-2.0-flash-exp",
		CachePollInterval: 500 * time.Millisecond,
		CacheClaimTimeout: 90 * time.Second,
		StaleClaimCutoff:  2 * time.Minute,
		ChatCacheTTL:      24 * time.Hour,
		ChatHistoryLimit:  10,
	}
}
