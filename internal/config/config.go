package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Events   EventsConfig   `yaml:"events"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
	LLM      LLMConfig      `yaml:"llm"`
	Sentry   SentryConfig   `yaml:"sentry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// EventsConfig holds the optional RabbitMQ lifecycle event stream
// configuration. When disabled, job and checkpoint events are only logged.
type EventsConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	Output           string `yaml:"output"`
	EnableCaller     bool   `yaml:"enable_caller"`
	EnableStackTrace bool   `yaml:"enable_stack_trace"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	PollInterval       time.Duration    `yaml:"poll_interval"`
	MaxConcurrentJobs  int              `yaml:"max_concurrent_jobs"`
	DefaultMaxAttempts int              `yaml:"default_max_attempts"`
	MetricsPort        int              `yaml:"metrics_port"`
	ShutdownTimeout    time.Duration    `yaml:"shutdown_timeout"`
	Checkpoint         CheckpointConfig `yaml:"checkpoint"`
}

// CheckpointConfig holds checkpoint wait and expiry settings
type CheckpointConfig struct {
	WaitPollInterval time.Duration `yaml:"wait_poll_interval"`
	WaitTimeout      time.Duration `yaml:"wait_timeout"`
	DefaultTTL       time.Duration `yaml:"default_ttl"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
}

// LLMConfig holds the text-completion service configuration. The API key is
// read from the environment so it never lands in the yaml file; an empty key
// switches the client into offline mock mode.
type LLMConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKeyEnv       string        `yaml:"api_key_env"`
	Model           string        `yaml:"model"`
	MaxTokens       int           `yaml:"max_tokens"`
	Temperature     float64       `yaml:"temperature"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	CostPer1KTokens float64       `yaml:"cost_per_1k_tokens"`
}

// APIKey resolves the configured API key from the environment.
func (c *LLMConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// SentryConfig holds error-reporting configuration. An empty DSN disables
// reporting entirely.
type SentryConfig struct {
	DSN              string  `yaml:"dsn"`
	Environment      string  `yaml:"environment"`
	TracesSampleRate float64 `yaml:"traces_sample_rate"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// applyDefaults fills in documented defaults for optional settings
func (c *Config) applyDefaults() {
	if c.Worker.PollInterval <= 0 {
		c.Worker.PollInterval = 5 * time.Second
	}
	if c.Worker.MaxConcurrentJobs <= 0 {
		c.Worker.MaxConcurrentJobs = 3
	}
	if c.Worker.DefaultMaxAttempts <= 0 {
		c.Worker.DefaultMaxAttempts = 3
	}
	if c.Worker.Checkpoint.WaitPollInterval <= 0 {
		c.Worker.Checkpoint.WaitPollInterval = 5 * time.Second
	}
	if c.Worker.Checkpoint.WaitTimeout <= 0 {
		c.Worker.Checkpoint.WaitTimeout = 24 * time.Hour
	}
	if c.Worker.Checkpoint.DefaultTTL <= 0 {
		c.Worker.Checkpoint.DefaultTTL = 24 * time.Hour
	}
	if c.Worker.Checkpoint.SweepInterval <= 0 {
		c.Worker.Checkpoint.SweepInterval = time.Minute
	}
	if c.LLM.RequestTimeout <= 0 {
		c.LLM.RequestTimeout = 60 * time.Second
	}
	if c.LLM.CostPer1KTokens <= 0 {
		c.LLM.CostPer1KTokens = 0.002
	}
}

// ValidateAPIConfig checks the configuration needed by the API service
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	return c.validateEvents()
}

// ValidateWorkerConfig checks the configuration needed by the worker service
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker poll_interval must be greater than 0")
	}

	if c.Worker.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("worker max_concurrent_jobs must be greater than 0")
	}

	if c.Worker.Checkpoint.WaitPollInterval <= 0 {
		return fmt.Errorf("worker checkpoint wait_poll_interval must be greater than 0")
	}

	if c.Worker.Checkpoint.WaitTimeout <= 0 {
		return fmt.Errorf("worker checkpoint wait_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	return c.validateEvents()
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateEvents() error {
	if !c.Events.Enabled {
		return nil
	}

	if c.Events.Host == "" {
		return fmt.Errorf("events host is required when events are enabled")
	}

	if c.Events.Port < MinPort || c.Events.Port > MaxPort {
		return fmt.Errorf("invalid events port: %d (must be between %d and %d)", c.Events.Port, MinPort, MaxPort)
	}

	if c.Events.Exchange.Name == "" {
		return fmt.Errorf("events exchange name is required when events are enabled")
	}

	return nil
}
