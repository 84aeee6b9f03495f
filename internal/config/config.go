package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Llm      LLMConfig
	Research ResearchConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	GoogleSearch   string
	GoogleSearchCx string
	Bing           string
	OpenAI         string
}

type LLMConfig struct {
	Provider    string // "ollama" or "openai"
	Model       string // e.g. "llama3", "gpt-4o-mini"
	BaseURL     string
	OllamaModel string
}

type ResearchConfig struct {
	ProviderConcurrency int
	ScoringConcurrency  int
	ProviderTimeout     time.Duration
	ProviderCacheTTL    time.Duration
	MaxResultsPerSearch int
	EventBuffer         int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log.csv"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			GoogleSearch:   getEnv("GOOGLE_SEARCH_API_KEY", ""),
			GoogleSearchCx: getEnv("GOOGLE_SEARCH_ENGINE_ID", ""),
			Bing:           getEnv("BING_SEARCH_API_KEY", ""),
			OpenAI:         getEnv("OPENAI_API_KEY", ""),
		},
		Llm: LLMConfig{
			Provider:    getEnv("LLM_PROVIDER", "ollama"),
			Model:       getEnv("LLM_MODEL", "llama3"),
			BaseURL:     getEnv("LLM_BASE_URL", "http://localhost:11434"),
			OllamaModel: getEnv("OLLAMA_MODEL", "llama3"),
		},
		Research: ResearchConfig{
			ProviderConcurrency: getEnvAsInt("PROVIDER_CONCURRENCY", 4),
			ScoringConcurrency:  getEnvAsInt("SCORING_CONCURRENCY", 6),
			ProviderTimeout:     getEnvAsDuration("PROVIDER_TIMEOUT", 45*time.Second),
			ProviderCacheTTL:    getEnvAsDuration("PROVIDER_CACHE_TTL", 15*time.Minute),
			MaxResultsPerSearch: getEnvAsInt("MAX_RESULTS_PER_SEARCH", 10),
			EventBuffer:         getEnvAsInt("EVENT_CHANNEL_BUFFER", 64),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
