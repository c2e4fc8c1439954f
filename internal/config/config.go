package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Ledger backends.
const (
	LedgerMemory   = "memory"
	LedgerBigQuery = "bigquery"
)

// Config is the process configuration, read from the environment.
type Config struct {
	// HTTP server
	Port     string
	LogLevel string
	LogJSON  bool

	// Ledger
	LedgerBackend   string
	BigQueryProject string
	BigQueryDataset string
	DefaultCurrency string

	// Reasoning backend
	GeminiModel       string
	GeminiAPIKey      string
	ReasoningTimeout  time.Duration
	MaxToolIterations int
	HistoryLimit      int

	// Attachments
	AttachmentsBucket string

	// AMQP; an empty URL disables publishing
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Limits
	RateLimitRPS     float64
	RateLimitBurst   int
	BatchConcurrency int
}

// Load reads .env when present and then the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getEnvBool("LOG_JSON", false),

		LedgerBackend:   getEnv("LEDGER_BACKEND", LedgerMemory),
		BigQueryProject: getEnv("BIGQUERY_PROJECT", ""),
		BigQueryDataset: getEnv("BIGQUERY_DATASET", "finance"),
		DefaultCurrency: getEnv("DEFAULT_CURRENCY", "IDR"),

		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		ReasoningTimeout:  getEnvDuration("REASONING_TIMEOUT", 60*time.Second),
		MaxToolIterations: getEnvInt("MAX_TOOL_ITERATIONS", 5),
		HistoryLimit:      getEnvInt("HISTORY_LIMIT", 20),

		AttachmentsBucket: getEnv("ATTACHMENTS_BUCKET", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finance-assistant"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "proposal_events"),

		RateLimitRPS:     getEnvFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 5),
		BatchConcurrency: getEnvInt("BATCH_CONCURRENCY", 4),
	}
}

// Validate collects every problem instead of stopping at the first.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.LedgerBackend {
	case LedgerMemory:
	case LedgerBigQuery:
		if c.BigQueryProject == "" {
			errs = append(errs, "BIGQUERY_PROJECT is required when LEDGER_BACKEND is bigquery")
		}
		if c.BigQueryDataset == "" {
			errs = append(errs, "BIGQUERY_DATASET is required when LEDGER_BACKEND is bigquery")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid ledger backend '%s': must be one of [%s %s]", c.LedgerBackend, LedgerMemory, LedgerBigQuery))
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL: %v", err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" || c.AMQPQueue == "" {
			errs = append(errs, "AMQP exchange and queue names cannot be empty when AMQP_URL is set")
		}
	}

	if c.MaxToolIterations < 1 {
		errs = append(errs, fmt.Sprintf("MAX_TOOL_ITERATIONS must be at least 1, got %d", c.MaxToolIterations))
	}
	if c.HistoryLimit < 1 {
		errs = append(errs, fmt.Sprintf("HISTORY_LIMIT must be at least 1, got %d", c.HistoryLimit))
	}
	if c.ReasoningTimeout <= 0 {
		errs = append(errs, "REASONING_TIMEOUT must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive and RATE_LIMIT_BURST at least 1")
	}
	if c.BatchConcurrency < 1 {
		errs = append(errs, fmt.Sprintf("BATCH_CONCURRENCY must be at least 1, got %d", c.BatchConcurrency))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Address returns the listen address for the HTTP server.
func (c *Config) Address() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
