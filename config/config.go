package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type DiscordConfig struct {
	APIBaseURL            string
	CDNBaseURL            string
	MaxRetries            int
	MinRetryDelay         time.Duration
	MaxRetryDelay         time.Duration
	RequestsPerSecond     float64
	MessagePostsPerSecond float64
	HTTPTimeout           time.Duration
}

type DatabaseConfig struct {
	URL    string
	Schema string
}

// IsConfigured returns true if run history persistence is enabled
func (c DatabaseConfig) IsConfigured() bool {
	return c.URL != "" && c.Schema != ""
}

type SlackConfig struct {
	AlertWebhookURL string
}

// IsConfigured returns true if failure alerts can be delivered
func (c SlackConfig) IsConfigured() bool {
	return c.AlertWebhookURL != ""
}

type AppConfig struct {
	Port               string
	CORSAllowedOrigins string
	Environment        string
	LogLevel           string
	// DashboardAPIKey guards the progress socket. Empty accepts any dashboard.
	DashboardAPIKey string

	DiscordConfig  DiscordConfig
	DatabaseConfig DatabaseConfig
	SlackConfig    SlackConfig
}

// LoadConfig reads the .env file if present and then the process environment.
func LoadConfig() (*AppConfig, error) {
	// a missing .env is fine, system env vars still apply
	_ = godotenv.Load()

	maxRetries, err := getEnvInt("CLONER_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	minDelay, err := getEnvDuration("CLONER_MIN_RETRY_DELAY", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	maxDelay, err := getEnvDuration("CLONER_MAX_RETRY_DELAY", 15*time.Second)
	if err != nil {
		return nil, err
	}
	rps, err := getEnvFloat("CLONER_REQUESTS_PER_SECOND", 40)
	if err != nil {
		return nil, err
	}
	postsPerSecond, err := getEnvFloat("CLONER_MESSAGE_POSTS_PER_SECOND", 1)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := getEnvDuration("CLONER_HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	config := &AppConfig{
		Port:               getEnvWithDefault("PORT", "8080"),
		CORSAllowedOrigins: getEnvWithDefault("CORS_ALLOWED_ORIGINS", "*"),
		Environment:        getEnvWithDefault("ENVIRONMENT", "dev"),
		LogLevel:           getEnvWithDefault("LOG_LEVEL", "info"),
		DashboardAPIKey:    os.Getenv("CLONER_DASHBOARD_API_KEY"),

		DiscordConfig: DiscordConfig{
			APIBaseURL:            strings.TrimRight(getEnvWithDefault("CLONER_API_BASE_URL", "https://discord.com/api/v10"), "/"),
			CDNBaseURL:            strings.TrimRight(getEnvWithDefault("CLONER_CDN_BASE_URL", "https://cdn.discordapp.com"), "/"),
			MaxRetries:            maxRetries,
			MinRetryDelay:         minDelay,
			MaxRetryDelay:         maxDelay,
			RequestsPerSecond:     rps,
			MessagePostsPerSecond: postsPerSecond,
			HTTPTimeout:           httpTimeout,
		},

		DatabaseConfig: DatabaseConfig{
			URL:    os.Getenv("DB_URL"),
			Schema: getEnvWithDefault("DB_SCHEMA", "public"),
		},

		SlackConfig: SlackConfig{
			AlertWebhookURL: os.Getenv("SLACK_ALERT_WEBHOOK_URL"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the value ranges LoadConfig cannot express as defaults.
func (c *AppConfig) Validate() error {
	d := c.DiscordConfig
	if !strings.HasPrefix(d.APIBaseURL, "https://") {
		return fmt.Errorf("CLONER_API_BASE_URL must use https, got %q", d.APIBaseURL)
	}
	if !strings.HasPrefix(d.CDNBaseURL, "https://") {
		return fmt.Errorf("CLONER_CDN_BASE_URL must use https, got %q", d.CDNBaseURL)
	}
	if d.MaxRetries < 0 {
		return fmt.Errorf("CLONER_MAX_RETRIES must be >= 0, got %d", d.MaxRetries)
	}
	if d.MinRetryDelay <= 0 || d.MaxRetryDelay < d.MinRetryDelay {
		return fmt.Errorf("retry delay bounds are invalid: min=%s max=%s", d.MinRetryDelay, d.MaxRetryDelay)
	}
	if d.RequestsPerSecond <= 0 {
		return fmt.Errorf("CLONER_REQUESTS_PER_SECOND must be > 0")
	}
	if d.MessagePostsPerSecond <= 0 {
		return fmt.Errorf("CLONER_MESSAGE_POSTS_PER_SECOND must be > 0")
	}
	if d.HTTPTimeout <= 0 {
		return fmt.Errorf("CLONER_HTTP_TIMEOUT must be > 0")
	}
	return nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return parsed, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return parsed, nil
}
