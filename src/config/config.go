// src/config/config.go
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port         string
	DatabasePath string
	LogLevel     string
	Env          string

	// Import settings
	MaxUploadSizeBytes int64
	DefaultCurrency    string

	// Reconciliation settings
	ReconcileDateToleranceDays int
}

// Cfg is a global instance of the AppConfig. Only main consumes it; the
// services and processors receive these values as explicit parameters.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
// It centralizes all configuration logic for the application.
func LoadConfig() {
	// Try the current directory first, then the parent (common when running
	// from the backend directory of a checkout).
	errEnv := loadDotEnv()
	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables (expected in production).")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760") // 10MB default
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	Cfg = &AppConfig{
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./finledger.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Env:          getEnv("GO_ENV", "DEV"),

		MaxUploadSizeBytes: maxUploadSizeBytes,
		DefaultCurrency:    getEnv("DEFAULT_CURRENCY", "INR"),

		ReconcileDateToleranceDays: getEnvAsInt("RECONCILE_DATE_TOLERANCE_DAYS", 2),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath)
}

func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil {
		return nil
	}
	return godotenv.Load("../.env")
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}
