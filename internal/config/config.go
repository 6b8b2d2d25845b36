// Package config provides configuration for the casechat server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds application configuration. Values come from an optional
// TOML file, with environment variables taking precedence.
type Config struct {
	// Server settings
	Port      int    `toml:"port"`
	StaticDir string `toml:"static_dir"`
	LogDir    string `toml:"log_dir"`

	// Upstream model settings
	OpenAIAPIKey          string        `toml:"openai_api_key"`
	OpenAIBaseURL         string        `toml:"openai_base_url"`
	Model                 string        `toml:"model"`
	Temperature           float64       `toml:"temperature"`
	RequestTimeout        time.Duration `toml:"-"`
	RequestTimeoutSeconds int           `toml:"request_timeout_seconds"`

	// Storage paths
	SessionsPath     string `toml:"sessions_path"`
	SessionsTextPath string `toml:"sessions_text_path"`
	CasesDBPath      string `toml:"cases_db_path"`
	GuidelinesPath   string `toml:"guidelines_path"`

	// Login credentials, username -> password
	Users map[string]string `toml:"users"`
}

// Load reads the TOML file at path (skipped when path is empty or the
// file is absent) and applies environment overrides on top of defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:                  3001,
		StaticDir:             "public",
		LogDir:                "logs",
		OpenAIBaseURL:         "https://api.openai.com",
		Model:                 "gpt-3.5-turbo",
		Temperature:           0.7,
		RequestTimeoutSeconds: 60,
		SessionsPath:          "sessions.json",
		SessionsTextPath:      "sessions.txt",
		CasesDBPath:           "cases.db",
		GuidelinesPath:        "review.txt",
		Users:                 map[string]string{},
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.StaticDir = getEnv("STATIC_DIR", cfg.StaticDir)
	cfg.LogDir = getEnv("LOG_DIR", cfg.LogDir)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.Model = getEnv("MODEL", cfg.Model)
	cfg.SessionsPath = getEnv("SESSIONS_PATH", cfg.SessionsPath)
	cfg.SessionsTextPath = getEnv("SESSIONS_TEXT_PATH", cfg.SessionsTextPath)
	cfg.CasesDBPath = getEnv("CASES_DB_PATH", cfg.CasesDBPath)
	cfg.GuidelinesPath = getEnv("GUIDELINES_PATH", cfg.GuidelinesPath)

	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
