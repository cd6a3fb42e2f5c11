// Package config provides environment configuration for the bot server.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// State store backends.
const (
	StateStoreMemory   = "memory"
	StateStoreNATS     = "nats"
	StateStoreDynamoDB = "dynamodb"
)

// Intent recognizer backends.
const (
	RecognizerLUIS = "luis"
	RecognizerLLM  = "llm"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Channel settings
	ChannelSecret     string
	ChannelAuthEnable bool
	ConnectorToken    string
	ConnectorTimeout  time.Duration

	// QnA settings
	QnAEndpoint       string
	QnAKnowledgeBase  string
	QnAEndpointKey    string
	QnATop            int
	QnAScoreThreshold float64
	QnATimeout        time.Duration

	// Intent settings
	Recognizer       string
	LUISEndpoint     string
	LUISAppID        string
	LUISKey          string
	LUISTimeout      time.Duration
	LLMIntents       []string
	DiagnosticIntent bool

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	LLMModel        string

	// State settings
	StateStore    string
	StateBucket   string
	DynamoDBTable string

	// NATS settings
	NATSURL           string
	NATSCAFile        string
	NATSCertFile      string
	NATSKeyFile       string
	NATSToken         string
	TranscriptEnabled bool

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "3978"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),

		// Channel
		ChannelSecret:     getEnv("CHANNEL_SECRET", ""),
		ChannelAuthEnable: getBoolEnv("CHANNEL_AUTH_ENABLED", false),
		ConnectorToken:    getEnv("CONNECTOR_TOKEN", ""),
		ConnectorTimeout:  getDurationEnv("CONNECTOR_TIMEOUT", 10*time.Second),

		// QnA
		QnAEndpoint:       getEnv("QNA_ENDPOINT", ""),
		QnAKnowledgeBase:  getEnv("QNA_KNOWLEDGE_BASE_ID", ""),
		QnAEndpointKey:    getEnv("QNA_ENDPOINT_KEY", ""),
		QnATop:            getIntEnv("QNA_TOP", 1),
		QnAScoreThreshold: getFloatEnv("QNA_SCORE_THRESHOLD", 0.3),
		QnATimeout:        getDurationEnv("QNA_TIMEOUT", 10*time.Second),

		// Intent
		Recognizer:       getEnv("RECOGNIZER", RecognizerLUIS),
		LUISEndpoint:     getEnv("LUIS_ENDPOINT", "https://westus.api.cognitive.microsoft.com"),
		LUISAppID:        getEnv("LUIS_APP_ID", ""),
		LUISKey:          getEnv("LUIS_SUBSCRIPTION_KEY", ""),
		LUISTimeout:      getDurationEnv("LUIS_TIMEOUT", 10*time.Second),
		LLMIntents:       getListEnv("LLM_INTENTS", []string{"Greeting", "StoreHours", "Products", "Contact"}),
		DiagnosticIntent: getBoolEnv("BOT_DIAGNOSTIC_INTENTS", true),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),
		LLMModel:        getEnv("LLM_MODEL", ""),

		// State
		StateStore:    getEnv("STATE_STORE", StateStoreMemory),
		StateBucket:   getEnv("STATE_BUCKET", "CONVERSATION_STATE"),
		DynamoDBTable: getEnv("STATE_TABLE", ""),

		// NATS
		NATSURL:           getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:        getEnv("NATS_CA_FILE", ""),
		NATSCertFile:      getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:       getEnv("NATS_KEY_FILE", ""),
		NATSToken:         getEnv("NATS_TOKEN", ""),
		TranscriptEnabled: getBoolEnv("TRANSCRIPT_ENABLED", false),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// NeedsNATS reports whether any configured component uses NATS.
func (c *Config) NeedsNATS() bool {
	return c.StateStore == StateStoreNATS || c.TranscriptEnabled
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.QnAEndpoint == "" || c.QnAKnowledgeBase == "" || c.QnAEndpointKey == "" {
		errs = append(errs, errors.New("QNA_ENDPOINT, QNA_KNOWLEDGE_BASE_ID and QNA_ENDPOINT_KEY are required"))
	}

	switch c.Recognizer {
	case RecognizerLUIS:
		if c.LUISAppID == "" || c.LUISKey == "" {
			errs = append(errs, errors.New("LUIS_APP_ID and LUIS_SUBSCRIPTION_KEY are required for the luis recognizer"))
		}
	case RecognizerLLM:
		if c.AnthropicAPIKey == "" && c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY or OPENAI_API_KEY is required for the llm recognizer"))
		}
		if len(c.LLMIntents) == 0 {
			errs = append(errs, errors.New("LLM_INTENTS must list at least one intent"))
		}
	default:
		errs = append(errs, errors.New("RECOGNIZER must be one of luis, llm"))
	}

	switch c.StateStore {
	case StateStoreMemory, StateStoreNATS:
	case StateStoreDynamoDB:
		if c.DynamoDBTable == "" {
			errs = append(errs, errors.New("STATE_TABLE is required for the dynamodb state store"))
		}
	default:
		errs = append(errs, errors.New("STATE_STORE must be one of memory, nats, dynamodb"))
	}

	if c.ChannelAuthEnable && c.ChannelSecret == "" {
		errs = append(errs, errors.New("CHANNEL_SECRET is required when CHANNEL_AUTH_ENABLED is set"))
	}

	return errors.Join(errs...)
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

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

// getListEnv reads a comma-separated list, dropping empty items.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
