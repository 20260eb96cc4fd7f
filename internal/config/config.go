// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ShutdownTimeout    time.Duration
	CORSOrigins        []string

	// NATS settings; an empty URL disables the event mirror
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// Assistant settings
	AssistantReplyDelay time.Duration
	AssistantTimeout    time.Duration
	NarrationEnabled    bool

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	LLMModel        string

	// Attachments
	AttachmentBaseURL  string
	AttachmentMaxBytes int64

	// Customer directory seed file (JSON); empty disables CreateForCustomer
	CustomerFile string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel    string
	Development bool

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),
		ShutdownTimeout:    getDurationEnv("SHUTDOWN_TIMEOUT", 15*time.Second),
		CORSOrigins:        getListEnv("CORS_ORIGINS", []string{"*"}),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Assistant
		AssistantReplyDelay: getDurationEnv("ASSISTANT_REPLY_DELAY", 1500*time.Millisecond),
		AssistantTimeout:    getDurationEnv("ASSISTANT_TIMEOUT", 20*time.Second),
		NarrationEnabled:    getBoolEnv("ASSISTANT_NARRATION", false),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),
		LLMModel:        getEnv("LLM_MODEL", ""),

		// Attachments
		AttachmentBaseURL:  getEnv("ATTACHMENT_BASE_URL", "http://localhost:8080/api/v1"),
		AttachmentMaxBytes: int64(getIntEnv("ATTACHMENT_MAX_BYTES", 25<<20)),

		// Customers
		CustomerFile: getEnv("CUSTOMER_FILE", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Development: getBoolEnv("DEVELOPMENT", false),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// LLMAPIKey returns the key for the configured default provider.
func (c *Config) LLMAPIKey() string {
	if c.DefaultLLM == "openai" {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
