// Package config loads engine configuration from the environment.
package config

import (
	"os"
	"strconv"
)

// Config holds the ambient configuration for a jobengine process.
type Config struct {
	Port                 string
	LogLevel             string
	DatabaseDSN          string
	MaxParallelProcesses int
	GitExportRepoPath    string
	SMTPAddr             string
}

// Load reads configuration from environment variables, falling back to
// sensible defaults for local/dev use.
func Load() *Config {
	return &Config{
		Port:                 getEnv("PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DatabaseDSN:          getEnv("DATABASE_DSN", ""),
		MaxParallelProcesses: getEnvInt("MAX_PARALLEL_PROCESSES", 5),
		GitExportRepoPath:    getEnv("GIT_EXPORT_REPO_PATH", ""),
		SMTPAddr:             getEnv("SMTP_ADDR", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

// GetPortInt returns the configured port as an integer.
func (c *Config) GetPortInt() int {
	p, _ := strconv.Atoi(c.Port)
	return p
}
