// Package config loads configuration from environment variables.
package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds runtime settings.
type Config struct {
	ListenAddr     string
	DatabaseURL    string
	LocalDBPath    string
	GoogleAPIKey   string
	XAIAPIKey      string
	OpenAIAPIKey   string
	OpenRouterKey  string
	VaultMasterKey string
	MediaDir       string
	MediaBaseURL   string
	AspectRatio    string
	EmbeddingModel string
	HistoryLimit   int
	SimilarTopK    int
	LogLevel       string
	LogFile        string
}

// Load reads env vars, applies defaults, and validates required fields.
// When DATABASE_URL is empty the studio runs on an embedded sqlite file
// instead of Postgres.
func Load() Config {
	cfg := Config{
		ListenAddr:     os.Getenv("LISTEN_ADDR"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		LocalDBPath:    os.Getenv("LOCAL_DB_PATH"),
		GoogleAPIKey:   os.Getenv("GOOGLE_API_KEY"),
		XAIAPIKey:      os.Getenv("XAI_API_KEY"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenRouterKey:  os.Getenv("OPENROUTER_API_KEY"),
		VaultMasterKey: os.Getenv("VAULT_MASTER_KEY"),
		MediaDir:       os.Getenv("MEDIA_DIR"),
		MediaBaseURL:   os.Getenv("MEDIA_BASE_URL"),
		AspectRatio:    os.Getenv("ASPECT_RATIO"),
		EmbeddingModel: os.Getenv("EMBEDDING_MODEL"),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		LogFile:        os.Getenv("LOG_FILE"),
	}

	cfg.HistoryLimit = getEnvInt("HISTORY_LIMIT", 20)
	cfg.SimilarTopK = getEnvInt("SIMILAR_TOP_K", 5)

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LocalDBPath == "" {
		wd, _ := os.Getwd()
		cfg.LocalDBPath = filepath.Join(wd, "persona-studio.db")
	}
	if cfg.MediaDir == "" {
		wd, _ := os.Getwd()
		cfg.MediaDir = filepath.Join(wd, "media")
	}
	if cfg.MediaBaseURL == "" {
		cfg.MediaBaseURL = "/media"
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = "3:4"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-004"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.GoogleAPIKey == "" {
		log.Fatal("GOOGLE_API_KEY environment variable is required")
	}

	return cfg
}

// AmbientCredentials maps each vendor to its server-side default key.
// Vendors without a key here require a user-stored secret.
func (c Config) AmbientCredentials() map[string]string {
	ambient := map[string]string{"gemini": c.GoogleAPIKey}
	if c.XAIAPIKey != "" {
		ambient["grok"] = c.XAIAPIKey
	}
	if c.OpenAIAPIKey != "" {
		ambient["openai"] = c.OpenAIAPIKey
	}
	if c.OpenRouterKey != "" {
		ambient["openrouter"] = c.OpenRouterKey
	}
	return ambient
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}
