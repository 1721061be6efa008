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
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Queue     QueueConfig     `yaml:"queue"`
	Worker    WorkerConfig    `yaml:"worker"`
	Providers ProvidersConfig `yaml:"providers"`
	Health    HealthConfig    `yaml:"health"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
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
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryInterval   time.Duration `yaml:"retry_interval"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	WorkQueue  string           `yaml:"work_queue"`
	RetryQueue string           `yaml:"retry_queue"`
	RoutingKey string           `yaml:"routing_key"`
	Durable    bool             `yaml:"durable"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// QueueConfig holds job submission settings
type QueueConfig struct {
	MaxAttempts            int  `yaml:"max_attempts"`
	DeduplicateSubmissions bool `yaml:"deduplicate_submissions"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency      int           `yaml:"concurrency"`
	PrefetchCount    int           `yaml:"prefetch_count"`
	ProviderTimeout  time.Duration `yaml:"provider_timeout"`
	BackoffBaseDelay time.Duration `yaml:"backoff_base_delay"`
	BackoffMaxDelay  time.Duration `yaml:"backoff_max_delay"`
	DrainTimeout     time.Duration `yaml:"drain_timeout"`
	CompletionPolicy string        `yaml:"completion_policy"` // any | all
	StatsInterval    time.Duration `yaml:"stats_interval"`
}

// ProvidersConfig holds per-provider analysis client settings. A provider
// with no API key (config or environment) is disabled.
type ProvidersConfig struct {
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	Gemini    ProviderConfig `yaml:"gemini"`
	XAI       ProviderConfig `yaml:"xai"`
}

// ProviderConfig holds a single provider's client settings
type ProviderConfig struct {
	APIKey            string `yaml:"api_key"`
	Model             string `yaml:"model"`
	BaseURL           string `yaml:"base_url"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// HealthConfig holds composite health check configuration
type HealthConfig struct {
	Interval time.Duration     `yaml:"interval"`
	Probes   HealthProbeConfig `yaml:"probes"`
}

// HealthProbeConfig enables and tags the individual probes
type HealthProbeConfig struct {
	Store     ProbeConfig `yaml:"store"`
	Broker    ProbeConfig `yaml:"broker"`
	Providers ProbeConfig `yaml:"providers"`
	System    ProbeConfig `yaml:"system"`
}

// ProbeConfig holds a single probe's settings
type ProbeConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Critical bool          `yaml:"critical"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MonitorConfig holds resource monitor sampling configuration
type MonitorConfig struct {
	Interval           time.Duration `yaml:"interval"`
	MemoryWarnPercent  float64       `yaml:"memory_warn_percent"`
	MemoryCritPercent  float64       `yaml:"memory_crit_percent"`
	CPUWarnPercent     float64       `yaml:"cpu_warn_percent"`
	CPUCritPercent     float64       `yaml:"cpu_crit_percent"`
	SchedulerLagWarn   time.Duration `yaml:"scheduler_lag_warn"`
	SchedulerLagCrit   time.Duration `yaml:"scheduler_lag_crit"`
	GoroutineWarnCount int           `yaml:"goroutine_warn_count"`
	GoroutineCritCount int           `yaml:"goroutine_crit_count"`
}

// RecoveryConfig holds auto-recovery configuration
type RecoveryConfig struct {
	Interval             time.Duration `yaml:"interval"`
	AlertThreshold       int           `yaml:"alert_threshold"`
	MaxRemediationCycles int           `yaml:"max_remediation_cycles"`
}

// Load reads and parses the configuration file. Environment references in
// the file (${VAR} syntax) are expanded before parsing so secrets never live
// in the YAML itself.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// applyDefaults fills in values the file may omit
func (c *Config) applyDefaults() {
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Worker.PrefetchCount <= 0 {
		c.Worker.PrefetchCount = c.Worker.Concurrency
	}
	if c.Worker.ProviderTimeout <= 0 {
		c.Worker.ProviderTimeout = 2 * time.Minute
	}
	if c.Worker.BackoffBaseDelay <= 0 {
		c.Worker.BackoffBaseDelay = time.Second
	}
	if c.Worker.BackoffMaxDelay <= 0 {
		c.Worker.BackoffMaxDelay = 5 * time.Minute
	}
	if c.Worker.CompletionPolicy == "" {
		c.Worker.CompletionPolicy = "any"
	}
	if c.Worker.StatsInterval <= 0 {
		c.Worker.StatsInterval = 30 * time.Second
	}
	if c.Health.Interval <= 0 {
		c.Health.Interval = 30 * time.Second
	}
	if c.Monitor.Interval <= 0 {
		c.Monitor.Interval = 15 * time.Second
	}
	if c.Recovery.Interval <= 0 {
		c.Recovery.Interval = time.Minute
	}
	if c.Recovery.AlertThreshold <= 0 {
		c.Recovery.AlertThreshold = 3
	}
	if c.Recovery.MaxRemediationCycles <= 0 {
		c.Recovery.MaxRemediationCycles = 3
	}
}

// ValidateAPIConfig checks the configuration needed by the API service
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateShared(); err != nil {
		return err
	}

	return nil
}

// ValidateWorkerConfig checks the configuration needed by the worker service
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.DrainTimeout <= 0 {
		return fmt.Errorf("worker drain_timeout must be greater than 0")
	}

	if c.Worker.CompletionPolicy != "any" && c.Worker.CompletionPolicy != "all" {
		return fmt.Errorf("worker completion_policy must be \"any\" or \"all\", got %q", c.Worker.CompletionPolicy)
	}

	if c.Worker.BackoffBaseDelay > c.Worker.BackoffMaxDelay {
		return fmt.Errorf("worker backoff_base_delay exceeds backoff_max_delay")
	}

	return nil
}

func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.WorkQueue == "" {
		return fmt.Errorf("rabbitmq work_queue is required")
	}

	if c.RabbitMQ.RetryQueue == "" {
		return fmt.Errorf("rabbitmq retry_queue is required")
	}

	return nil
}
