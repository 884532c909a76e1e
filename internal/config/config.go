package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ObiAU/otprelay/internal/models"
)

type Config struct {
	TelegramToken      string
	TelegramWebhookURL string
	AdminID            int64
	ChatIDs            []int64
	PollInterval       time.Duration
	FetchTimeout       time.Duration
	NotifyTimeout      time.Duration
	RecordLimit        int
	StoreBackend       string
	DBPath             string
	PanelsFile         string
	ServerPort         string
	OpenAIAPIKey       string
	StatusReportSpec   string
	LogLevel           string
	LogMode            string
	LogFile            string
}

func Load() *Config {
	return &Config{
		TelegramToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramWebhookURL: getEnv("TELEGRAM_WEBHOOK_URL", ""),
		AdminID:            getEnvAsInt64("ADMIN_ID", 0),
		ChatIDs:            getEnvAsInt64List("CHAT_IDS"),
		PollInterval:       getEnvAsDuration("POLL_INTERVAL", 10*time.Second),
		FetchTimeout:       getEnvAsDuration("FETCH_TIMEOUT", 20*time.Second),
		NotifyTimeout:      getEnvAsDuration("NOTIFY_TIMEOUT", 20*time.Second),
		RecordLimit:        getEnvAsInt("RECORD_LIMIT", 5),
		StoreBackend:       getEnv("STORE_BACKEND", "sqlite"),
		DBPath:             getEnv("DB_PATH", "data/otprelay.db"),
		PanelsFile:         getEnv("PANELS_FILE", ""),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		StatusReportSpec:   getEnv("STATUS_REPORT_SPEC", "@daily"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogMode:            getEnv("LOG_MODE", "development"),
		LogFile:            getEnv("LOG_FILE", ""),
	}
}

// Validate reports the first setting that would leave the relay unable to
// deliver anything.
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.AdminID == 0 {
		return fmt.Errorf("ADMIN_ID is required")
	}
	if len(c.ChatIDs) == 0 {
		return fmt.Errorf("CHAT_IDS must list at least one destination chat")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.FetchTimeout <= 0 || c.NotifyTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT and NOTIFY_TIMEOUT must be positive")
	}
	if c.RecordLimit <= 0 {
		return fmt.Errorf("RECORD_LIMIT must be positive")
	}
	switch c.StoreBackend {
	case "sqlite", "bolt":
	default:
		return fmt.Errorf("STORE_BACKEND must be sqlite or bolt, got %q", c.StoreBackend)
	}
	return nil
}

type panelsFile struct {
	Panels []models.PanelInput `yaml:"panels"`
}

// LoadPanels reads the optional YAML seed of panels registered at startup.
func LoadPanels(path string) ([]models.PanelInput, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read panels file: %w", err)
	}

	var f panelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse panels file: %w", err)
	}
	for i, p := range f.Panels {
		p = p.Normalize()
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("panel %d (%s): %w", i, p.Name, err)
		}
		f.Panels[i] = p
	}
	return f.Panels, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64List(key string) []int64 {
	var out []int64
	for _, part := range strings.Split(os.Getenv(key), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if v, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
