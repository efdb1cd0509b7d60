package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig
	Ai           AIConfig
	Embedding    EmbeddingConfig
	Consultation ConsultationConfig
	Knowledge    KnowledgeConfig
	Nats         NatsConfig
	Redis        RedisConfig
	Auth         AuthConfig
	Otel         OtelConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	TranscriptLogPath  string
	CorsAllowedOrigins string
	BodyLimitMB        int
}

type AIConfig struct {
	LLMProvider string // "ollama", "huggingface", "mock"
	LLMModel    string // e.g. "llama3", "qwen2.5"
	LLMBaseURL  string // empty uses the provider default
	LLMAPIKey   string
}

type EmbeddingConfig struct {
	Provider   string // "hashing", "ollama", "gemini", "jina"
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int // 0 uses the provider default
}

type ConsultationConfig struct {
	PersonaFile       string
	TurnTimeout       time.Duration
	WindowRounds      int
	RebuttalCap       int
	MaxUserViolations int
	SessionTTL        time.Duration
	RefusalTemplate   string
}

type KnowledgeConfig struct {
	Directory    string
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	MinScore     float64
	IngestTopic  string
	LoadSamples  bool
}

type NatsConfig struct {
	URL     string
	Enabled bool
	MaxAge  time.Duration
}

type RedisConfig struct {
	URL     string
	Enabled bool
}

type AuthConfig struct {
	// JWTSecret protects the API when set. Empty leaves it open.
	JWTSecret string
}

type OtelConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	// SampleRatio is the share of root traces kept, in [0,1].
	SampleRatio float64
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			TranscriptLogPath:  getEnv("TRANSCRIPT_LOG_PATH", "logs/transcript.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			BodyLimitMB:        getEnvAsInt("BODY_LIMIT_MB", 10),
		},
		Ai: AIConfig{
			LLMProvider: getEnv("LLM_PROVIDER", "mock"),
			LLMModel:    getEnv("LLM_MODEL", "llama3"),
			LLMBaseURL:  getEnv("LLM_BASE_URL", ""),
			LLMAPIKey:   getEnv("LLM_API_KEY", ""),
		},
		Embedding: EmbeddingConfig{
			Provider:   getEnv("EMBEDDING_PROVIDER", "hashing"),
			Model:      getEnv("EMBEDDING_MODEL", ""),
			BaseURL:    getEnv("EMBEDDING_BASE_URL", ""),
			APIKey:     getEnv("EMBEDDING_API_KEY", ""),
			Dimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 0),
		},
		Consultation: ConsultationConfig{
			PersonaFile:       getEnv("PERSONA_FILE", ""),
			TurnTimeout:       getEnvAsDuration("TURN_TIMEOUT", 60*time.Second),
			WindowRounds:      getEnvAsInt("WINDOW_ROUNDS", 1),
			RebuttalCap:       getEnvAsInt("REBUTTAL_CAP", 1),
			MaxUserViolations: getEnvAsInt("MAX_USER_VIOLATIONS", 3),
			SessionTTL:        getEnvAsDuration("SESSION_TTL", time.Hour),
			RefusalTemplate:   getEnv("REFUSAL_TEMPLATE", ""),
		},
		Knowledge: KnowledgeConfig{
			Directory:    getEnv("KNOWLEDGE_DIR", ""),
			ChunkSize:    getEnvAsInt("CHUNK_SIZE", 800),
			ChunkOverlap: getEnvAsInt("CHUNK_OVERLAP", 120),
			TopK:         getEnvAsInt("RETRIEVAL_TOP_K", 4),
			MinScore:     getEnvAsFloat("RETRIEVAL_MIN_SCORE", 0),
			IngestTopic:  getEnv("INGEST_TOPIC_NAME", "INGEST_DOCUMENT"),
			LoadSamples:  getEnvAsBool("KNOWLEDGE_LOAD_SAMPLES", true),
		},
		Nats: NatsConfig{
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
			Enabled: getEnvAsBool("NATS_ENABLED", false),
			MaxAge:  getEnvAsDuration("NATS_STREAM_MAX_AGE", 24*time.Hour),
		},
		Redis: RedisConfig{
			URL:     getEnv("REDIS_URL", "redis://localhost:6379"),
			Enabled: getEnvAsBool("REDIS_ENABLED", false),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Otel: OtelConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "ai-consultation-backend"),
			SampleRatio: getEnvAsFloat("OTEL_SAMPLE_RATIO", 1),
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
