// Package config loads daemon configuration from defaults, an optional .env
// file, and RECAP_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Slack    SlackConfig
	OpenAI   OpenAIConfig
	Storage  StorageConfig
	Schedule ScheduleConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
	// APIToken protects the HTTP API. Empty disables bearer auth, which is
	// only sensible on a loopback deployment.
	APIToken string
}

type SlackConfig struct {
	BotToken      string
	SigningSecret string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type StorageConfig struct {
	DataDir string
}

type ScheduleConfig struct {
	EODEnabled bool
	EODCron    string
	EOWEnabled bool
	EOWCron    string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4600,
			MCPPort: 4601,
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Schedule: ScheduleConfig{
			EODCron: "0 17 * * *",
			EOWCron: "0 17 * * 5",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration in increasing precedence: built-in defaults, a
// .env file in the working directory (if present), then RECAP_* environment
// variables. Missing Slack or OpenAI credentials are not an error here; the
// affected components report themselves degraded instead.
func Load() (Config, error) {
	return loadWith(".env")
}

func loadWith(envFile string) (Config, error) {
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg := defaults()
	applyEnvOverrides(&cfg)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Server.MCPPort <= 0 || cfg.Server.MCPPort > 65535 {
		return Config{}, fmt.Errorf("invalid mcp port %d", cfg.Server.MCPPort)
	}

	return cfg, nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "recap-data"
		}
	}
	return filepath.Join(dir, "recap")
}
