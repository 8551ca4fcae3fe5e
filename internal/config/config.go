package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cluster       ClusterConfig
	Quota         QuotaConfig
	Engine        EngineConfig
	PortForward   PortForwardConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
	Auth          AuthConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ClusterConfig holds Kubernetes connectivity configuration
type ClusterConfig struct {
	KubeconfigPath string
	KubectlPath    string
}

// QuotaConfig holds the default per-workspace admission ceiling
type QuotaConfig struct {
	CPU     string
	Memory  string
	Storage string
}

// EngineConfig tunes deployment workflow timeouts
type EngineConfig struct {
	ReadyTimeout          time.Duration
	DependencyWaitTimeout time.Duration
	DependencyPollEvery   time.Duration
}

// PortForwardConfig holds local access channel configuration
type PortForwardConfig struct {
	Enabled    bool
	PortStart  int
	PortEnd    int
	SweepEvery time.Duration
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// AuthConfig holds command surface authentication configuration
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "appforge"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "appforge"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Cluster: ClusterConfig{
			KubeconfigPath: getEnv("KUBECONFIG_PATH", ""),
			KubectlPath:    getEnv("KUBECTL_PATH", "kubectl"),
		},
		Quota: QuotaConfig{
			CPU:     getEnv("QUOTA_DEFAULT_CPU", "4"),
			Memory:  getEnv("QUOTA_DEFAULT_MEMORY", "8Gi"),
			Storage: getEnv("QUOTA_DEFAULT_STORAGE", "20Gi"),
		},
		Engine: EngineConfig{
			ReadyTimeout:          parseDuration("ENGINE_READY_TIMEOUT", "5m"),
			DependencyWaitTimeout: parseDuration("ENGINE_DEPENDENCY_WAIT_TIMEOUT", "10m"),
			DependencyPollEvery:   parseDuration("ENGINE_DEPENDENCY_POLL_INTERVAL", "2s"),
		},
		PortForward: PortForwardConfig{
			Enabled:    parseBool("PORTFORWARD_ENABLED", false),
			PortStart:  parseInt("PORTFORWARD_PORT_START", 30000),
			PortEnd:    parseInt("PORTFORWARD_PORT_END", 30999),
			SweepEvery: parseDuration("PORTFORWARD_SWEEP_INTERVAL", "15s"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "appforge"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: float64(parseInt("RATELIMIT_RPS", 10)),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			TokenTTL:  parseDuration("AUTH_TOKEN_TTL", "24h"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.PortForward.PortStart > c.PortForward.PortEnd {
		return fmt.Errorf("PORTFORWARD_PORT_START must not exceed PORTFORWARD_PORT_END")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
