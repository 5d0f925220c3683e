package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"expenses.durgadawaghar.com/internal/extractor"
)

// Config holds process settings read from the environment
type Config struct {
	Port         int
	DBDriver     string
	DatabaseURL  string
	RedisURL     string
	APISecret    string
	SourceStyle  extractor.SourceStyle
	KeywordsFile string
	LogLevel     string
}

// Load reads an optional .env file and then the environment
func Load() (Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "3000"))
	if err != nil {
		return Config{}, fmt.Errorf("parsing PORT: %w", err)
	}

	style, err := extractor.ParseSourceStyle(getEnv("SOURCE_STYLE", string(extractor.BankSMS)))
	if err != nil {
		return Config{}, fmt.Errorf("parsing SOURCE_STYLE: %w", err)
	}

	cfg := Config{
		Port:         port,
		DBDriver:     getEnv("DB_DRIVER", "sqlite"),
		DatabaseURL:  getEnv("DATABASE_URL", "expenses.db"),
		RedisURL:     getEnv("REDIS_URL", ""),
		APISecret:    getEnv("API_SECRET", ""),
		SourceStyle:  style,
		KeywordsFile: getEnv("KEYWORDS_FILE", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	return cfg, nil
}

// Validate checks settings only the HTTP server needs
func (c Config) Validate() error {
	if c.APISecret == "" {
		return errors.New("API_SECRET is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
