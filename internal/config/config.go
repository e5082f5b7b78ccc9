package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
)

type Config struct {
	// HTTP Server
	Port string

	// Ledger backend selection
	LedgerBackend string

	// Google Sheets
	GoogleSheetID         string
	GoogleSheetName       string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string

	// Database
	SQLiteDBPath string

	// Language model
	NLUBackend   string
	GeminiAPIKey string
	GeminiModel  string

	// Categories, either a comma separated list or a YAML file
	Categories     []string
	CategoriesFile string

	// Caching and timeouts
	CacheSize    int
	CacheTTL     time.Duration
	SessionTTL   time.Duration
	NLUTimeout   time.Duration
	StoreTimeout time.Duration

	// Validation of dates; how many days ahead a transaction may be dated
	MaxFutureDays int

	// Presentation
	CurrencySymbol string

	// Logging
	LogLevel string

	// Rate limiting of POST endpoints
	RateLimitPerMinute int

	// AMQP, optional
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string
}

var (
	validLedgerBackends = []string{"memory", "sheets", "sqlite"}
	validNLUBackends    = []string{"gemini", "rules"}
)

func Load() *Config {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		LedgerBackend: getEnv("LEDGER_BACKEND", "memory"),

		GoogleSheetID:         getEnv("GOOGLE_SHEET_ID", ""),
		GoogleSheetName:       getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleCredentialsFile: getEnv("GOOGLE_SHEETS_CREDENTIALS", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fintrack.db"),

		NLUBackend:   getEnv("NLU_BACKEND", "gemini"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		Categories:     getEnvList("CATEGORIES"),
		CategoriesFile: getEnv("CATEGORIES_FILE", ""),

		CacheSize:    getEnvInt("CACHE_SIZE", 100),
		CacheTTL:     getEnvDuration("CACHE_TTL", 10*time.Minute),
		SessionTTL:   getEnvDuration("SESSION_TTL", 30*time.Minute),
		NLUTimeout:   getEnvDuration("NLU_TIMEOUT", 15*time.Second),
		StoreTimeout: getEnvDuration("STORE_TIMEOUT", 10*time.Second),

		MaxFutureDays: getEnvInt("MAX_FUTURE_DAYS", core.DefaultMaxFutureDays),

		CurrencySymbol: getEnv("CURRENCY_SYMBOL", "Rs."),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "fintrack"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "transaction_recorded"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !oneOf(c.LedgerBackend, validLedgerBackends) {
		errors = append(errors, fmt.Sprintf("invalid ledger backend '%s': must be one of %v", c.LedgerBackend, validLedgerBackends))
	}
	if !oneOf(c.NLUBackend, validNLUBackends) {
		errors = append(errors, fmt.Sprintf("invalid NLU backend '%s': must be one of %v", c.NLUBackend, validNLUBackends))
	}

	if c.LedgerBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.LedgerBackend == "sheets" {
		if c.GoogleSheetID == "" {
			errors = append(errors, "GOOGLE_SHEET_ID is required when using sheets backend")
		}
		if c.GoogleSheetName == "" {
			errors = append(errors, "GOOGLE_SHEET_NAME cannot be empty when using sheets backend")
		}
		if c.GoogleCredentialsFile == "" && c.GoogleCredentialsJSON == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			errors = append(errors, "either GOOGLE_SHEETS_CREDENTIALS or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets backend")
		}
		if c.GoogleCredentialsFile != "" {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
	}

	if c.NLUBackend == "gemini" && c.GeminiAPIKey == "" {
		errors = append(errors, "GEMINI_API_KEY is required when using gemini NLU backend")
	}

	if c.CategoriesFile != "" {
		if _, err := os.Stat(c.CategoriesFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("categories file does not exist: %s", c.CategoriesFile))
		}
	}

	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	} else if c.CacheSize > 10000 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at most 10000", c.CacheSize))
	}
	if c.CacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.NLUTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid NLU timeout %v: must be at least 1 second", c.NLUTimeout))
	}
	if c.StoreTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid store timeout %v: must be at least 1 second", c.StoreTimeout))
	}
	if c.MaxFutureDays < 0 || c.MaxFutureDays > 366 {
		errors = append(errors, fmt.Sprintf("invalid max future days %d: must be between 0 and 366", c.MaxFutureDays))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func oneOf(v string, valid []string) bool {
	for _, s := range valid {
		if v == s {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blank entries.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
