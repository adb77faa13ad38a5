package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds environment-driven settings for the gateway.
type Config struct {
	Port string `yaml:"port"`

	// MEXC
	APIKey    string   `yaml:"api_key"`
	APISecret string   `yaml:"api_secret"`
	RestHost  string   `yaml:"rest_host"`
	WSHost    string   `yaml:"ws_host"`
	ProxyURL  string   `yaml:"proxy_url"`
	Symbols   []string `yaml:"symbols"`
	RestRPS   float64  `yaml:"rest_rps"`

	// Order placement service
	ExecutorURL string `yaml:"executor_url"`

	// Timer-driven cadence
	AccountPollTicks int           `yaml:"account_poll_ticks"`
	SubscribeTimeout time.Duration `yaml:"subscribe_timeout"`
	WSReadTimeout    time.Duration `yaml:"ws_read_timeout"`

	// Journal
	DBPath string `yaml:"db_path"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path"`

	// Auth
	JWTSecret string `yaml:"jwt_secret"`

	// Localization
	Language string `yaml:"language"` // "en" or "zh"
}

// Load reads environment variables (optionally via .env) into Config, then
// overlays the YAML file named by GATEWAY_CONFIG if set.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		APIKey:           os.Getenv("MEXC_API_KEY"),
		APISecret:        os.Getenv("MEXC_API_SECRET"),
		RestHost:         getEnv("MEXC_REST_HOST", "https://contract.mexc.com"),
		WSHost:           getEnv("MEXC_WS_HOST", "wss://contract.mexc.com/ws"),
		ProxyURL:         os.Getenv("PROXY_URL"),
		Symbols:          splitAndTrim(getEnv("SYMBOLS", "BTC_USDT")),
		RestRPS:          getEnvFloat("REST_RPS", 10),
		ExecutorURL:      getEnv("EXECUTOR_URL", "http://localhost:5102"),
		AccountPollTicks: getEnvInt("ACCOUNT_POLL_TICKS", 4),
		SubscribeTimeout: getEnvDuration("SUBSCRIBE_TIMEOUT", 30*time.Second),
		WSReadTimeout:    getEnvDuration("WS_READ_TIMEOUT", 60*time.Second),
		DBPath:           getEnv("DB_PATH", "./data/gateway.db"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogPath:          os.Getenv("LOG_PATH"),
		JWTSecret:        getEnv("API_JWT_SECRET", "dev-secret"),
		Language:         getEnv("LANGUAGE", "en"),
	}

	if path := os.Getenv("GATEWAY_CONFIG"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

// overlay replaces fields present in the YAML file.
func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	if c.AccountPollTicks < 0 {
		return fmt.Errorf("account_poll_ticks must be >= 0, got %d", c.AccountPollTicks)
	}
	if c.WSReadTimeout < 0 {
		return fmt.Errorf("ws_read_timeout must be >= 0, got %v", c.WSReadTimeout)
	}
	if c.RestRPS < 0 {
		return fmt.Errorf("rest_rps must be >= 0, got %v", c.RestRPS)
	}
	if c.Language != "en" && c.Language != "zh" {
		return fmt.Errorf("unsupported language %q", c.Language)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
