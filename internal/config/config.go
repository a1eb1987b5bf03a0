// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend modes.
const (
	BackendMock   = "mock"
	BackendRemote = "remote"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	BannerDuration time.Duration
	WidgetIdleTTL  time.Duration
	GRPCHealthPort string // empty disables the gRPC health server
	Debug          bool
	Backend        BackendConfig
	Notify         NotifyConfig
	RateLimit      RateLimitConfig
}

// BackendConfig selects and tunes the conversation backend.
type BackendConfig struct {
	Mode              string
	RemoteBaseURL     string
	RemoteTimeout     time.Duration
	MockMinDelay      time.Duration
	MockMaxDelay      time.Duration
	TicketProbability float64
}

// NotifyConfig lists the ticket notification sinks. Empty values disable a
// sink.
type NotifyConfig struct {
	WebhookURL   string
	AMQPURL      string
	AMQPExchange string
}

// RateLimitConfig bounds chat requests per user.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/support-hub.db"),
		BannerDuration: getEnvDuration("BANNER_DURATION", 2500*time.Millisecond),
		WidgetIdleTTL:  getEnvDuration("WIDGET_IDLE_TTL", 30*time.Minute),
		GRPCHealthPort: getEnv("GRPC_HEALTH_PORT", ""),
		Debug:          getEnvBool("DEBUG", false),
		Backend: BackendConfig{
			Mode:              strings.ToLower(getEnv("BACKEND_MODE", BackendMock)),
			RemoteBaseURL:     getEnv("REMOTE_BASE_URL", "http://localhost:8000"),
			RemoteTimeout:     getEnvDuration("REMOTE_TIMEOUT", 15*time.Second),
			MockMinDelay:      getEnvDuration("MOCK_MIN_DELAY", 500*time.Millisecond),
			MockMaxDelay:      getEnvDuration("MOCK_MAX_DELAY", 1200*time.Millisecond),
			TicketProbability: getEnvFloat("TICKET_PROBABILITY", 0.4),
		},
		Notify: NotifyConfig{
			WebhookURL:   getEnv("TICKET_WEBHOOK_URL", ""),
			AMQPURL:      getEnv("AMQP_URL", ""),
			AMQPExchange: getEnv("AMQP_EXCHANGE", "support"),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.BannerDuration <= 0 {
		return fmt.Errorf("BANNER_DURATION must be > 0")
	}
	switch c.Backend.Mode {
	case BackendMock:
		if c.Backend.MockMaxDelay < c.Backend.MockMinDelay {
			return fmt.Errorf("MOCK_MAX_DELAY must be >= MOCK_MIN_DELAY")
		}
		if p := c.Backend.TicketProbability; p < 0 || p > 1 {
			return fmt.Errorf("TICKET_PROBABILITY must be within [0, 1]")
		}
	case BackendRemote:
		if c.Backend.RemoteBaseURL == "" {
			return fmt.Errorf("REMOTE_BASE_URL cannot be empty in remote mode")
		}
	default:
		return fmt.Errorf("BACKEND_MODE must be %q or %q, got %q", BackendMock, BackendRemote, c.Backend.Mode)
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins. Development allows any origin.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("2.5s") or bare milliseconds ("2500").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

// IsContainer returns true if running inside a Docker container.
func IsContainer() bool {
	if os.Getenv("CONTAINER") == "true" {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
