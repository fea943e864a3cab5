// Package config loads server and CLI settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderBedrock   = "bedrock"
)

// ErrMissingSetting is returned by Validate for a required value that is unset.
var ErrMissingSetting = errors.New("missing setting")

// Config holds all configuration values.
type Config struct {
	// LLM
	LLMProvider     string
	LLMModel        string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaHost      string
	AWSRegion       string
	ImageModel      string
	ImageSize       string

	// Storage. ws:// or wss:// selects SurrealDB, sqlite:// or file: selects SQLite.
	DatabaseURL        string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Mail
	SMTPServer   string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	// HTTP
	SecretKey string
	Port      int
	PublicURL string
	Debug     bool

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Chat
	MaxStoredTurns    int
	PruneReserve      int
	HistoryLimit      int
	MaxPromptLength   int
	CompletionTimeout time.Duration
	DualResponse      bool
	PersonasFile      string

	// Sessions and tokens
	SessionTTL       time.Duration
	ResetTokenMaxAge time.Duration
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first; real
// environment variables take precedence over it.
func Load() Config {
	_ = godotenv.Load()

	port := getEnvInt("PORT", 5000)
	return Config{
		LLMProvider:     strings.ToLower(getEnv("PLUISJE_LLM_PROVIDER", ProviderOpenAI)),
		LLMModel:        getEnv("PLUISJE_LLM_MODEL", "gpt-4o"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		AWSRegion:       getEnv("AWS_REGION", "eu-central-1"),
		ImageModel:      getEnv("PLUISJE_IMAGE_MODEL", "dall-e-3"),
		ImageSize:       getEnv("PLUISJE_IMAGE_SIZE", "1024x1024"),

		DatabaseURL:        getEnv("DATABASE_URL", "sqlite://pluisje.db"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "pluisje"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "chat"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		SMTPServer:   getEnv("SMTP_SERVER", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		SecretKey: getEnv("SECRET_KEY", ""),
		Port:      port,
		PublicURL: strings.TrimSuffix(getEnv("PUBLIC_URL", fmt.Sprintf("http://localhost:%d", port)), "/"),
		Debug:     getEnvBool("DEBUG", false),

		LogFile:  getEnv("PLUISJE_LOG_FILE", "/tmp/pluisje.log"),
		LogLevel: parseLogLevel(getEnv("PLUISJE_LOG_LEVEL", "INFO")),

		MaxStoredTurns:    getEnvInt("PLUISJE_MAX_STORED_TURNS", 12),
		PruneReserve:      getEnvInt("PLUISJE_PRUNE_RESERVE", 2),
		HistoryLimit:      getEnvInt("PLUISJE_HISTORY_LIMIT", 20),
		MaxPromptLength:   getEnvInt("PLUISJE_MAX_PROMPT_LENGTH", 1000),
		CompletionTimeout: getEnvDuration("PLUISJE_COMPLETION_TIMEOUT", 60*time.Second),
		DualResponse:      getEnvBool("PLUISJE_DUAL_RESPONSE", false),
		PersonasFile:      getEnv("PLUISJE_PERSONAS_FILE", ""),

		SessionTTL:       getEnvDuration("PLUISJE_SESSION_TTL", 24*time.Hour),
		ResetTokenMaxAge: getEnvDuration("PLUISJE_RESET_TOKEN_MAX_AGE", time.Hour),
	}
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.SecretKey == "" {
		errs = append(errs, fmt.Errorf("%w: SECRET_KEY", ErrMissingSetting))
	}
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingSetting))
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			errs = append(errs, fmt.Errorf("%w: ANTHROPIC_API_KEY", ErrMissingSetting))
		}
	case ProviderOllama, ProviderBedrock:
	default:
		errs = append(errs, fmt.Errorf("unknown PLUISJE_LLM_PROVIDER %q", c.LLMProvider))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("%w: DATABASE_URL", ErrMissingSetting))
	}
	if c.MaxStoredTurns < 0 || c.PruneReserve < 0 || c.HistoryLimit < 0 {
		errs = append(errs, errors.New("retention settings must not be negative"))
	}
	return errors.Join(errs...)
}

// MailConfigured reports whether SMTP delivery is possible.
func (c Config) MailConfigured() bool {
	return c.SMTPServer != "" && c.SMTPUsername != ""
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		slog.Warn("invalid integer setting, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return n
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvDuration accepts Go durations ("90s", "2m") or a plain number of seconds.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("invalid duration setting, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
