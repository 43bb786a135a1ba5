package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"entrust-concierge-be/internal/constant"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Widget   WidgetConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	HubLogFilePath     string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	OtelEnabled        bool
	OtelEndpoint       string
}

type DatabaseConfig struct {
	Connection    string
	StorageDriver string // "memory", "redis" or "postgres"
}

type APIKeys struct {
	GoogleGemini       string // presence decides whether the concierge starts online
	HuggingFace        string
	VisitorTokenSecret string
}

type AIConfig struct {
	LLMProvider string // "gemini", "ollama" or "huggingface"
	LLMModel    string
	LLMBaseURL  string
	Temperature float64
	TopK        int
	TopP        float64
}

type WidgetConfig struct {
	InviteDelay    time.Duration
	SessionIdleTTL time.Duration
	EventTopic     string
}

const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			HubLogFilePath:     getEnv("HUB_LOG_FILE_PATH", "logs/concierge_events.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
			OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
		Database: DatabaseConfig{
			Connection:    getEnv("DB_CONNECTION_STRING", ""),
			StorageDriver: getEnv("STORAGE_DRIVER", StorageMemory),
		},
		Keys: APIKeys{
			GoogleGemini:       getEnv("GOOGLE_GEMINI_API_KEY", ""),
			HuggingFace:        getEnv("HUGGINGFACE_API_KEY", ""),
			VisitorTokenSecret: getEnv("VISITOR_TOKEN_SECRET", "dev-visitor-secret"),
		},
		Ai: AIConfig{
			LLMProvider: getEnv("LLM_PROVIDER", "gemini"),
			LLMModel:    getEnv("LLM_MODEL", ""),
			LLMBaseURL:  getEnv("LLM_BASE_URL", ""),
			Temperature: getEnvAsFloat("LLM_TEMPERATURE", constant.ConciergeTemperature),
			TopK:        getEnvAsInt("LLM_TOP_K", constant.ConciergeTopK),
			TopP:        getEnvAsFloat("LLM_TOP_P", constant.ConciergeTopP),
		},
		Widget: WidgetConfig{
			InviteDelay:    getEnvAsDuration("INVITE_DELAY", constant.InviteDelay),
			SessionIdleTTL: getEnvAsDuration("SESSION_IDLE_TTL", constant.SessionIdleTTL),
			EventTopic:     getEnv("CONCIERGE_EVENT_TOPIC", "concierge.events"),
		},
	}
}

// IsProduction switches the logger to JSON-only console output.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// LLMAPIKey returns the key of the configured provider.
func (c *Config) LLMAPIKey() string {
	if c.Ai.LLMProvider == "huggingface" {
		return c.Keys.HuggingFace
	}
	return c.Keys.GoogleGemini
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

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
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
