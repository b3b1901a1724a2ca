// Package config loads service configuration from environment
// variables.
package config

import (
	"os"
)

// Config holds application configuration.
type Config struct {
	Port        string
	DBPath      string
	LogLevel    string
	OverdueCron string // cron spec for the overdue-detection pass
	CORSOrigins string
}

// New loads configuration from environment variables with defaults
// suitable for local development.
func New() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		DBPath:      getEnv("DB_PATH", "./data/lending.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		OverdueCron: getEnv("OVERDUE_CRON", "@hourly"),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
