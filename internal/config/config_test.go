package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "paper_analysis", cfg.Database.Database)
				assert.Equal(t, "analysis.jobs", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "analysis.jobs.work", cfg.RabbitMQ.WorkQueue)
				assert.Equal(t, "analysis.jobs.retry", cfg.RabbitMQ.RetryQueue)
				assert.Equal(t, "paper-analysis-api", cfg.App.Name)
			}
		})
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load("testdata/missing_database.yaml")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Worker.ProviderTimeout)
	assert.Equal(t, time.Second, cfg.Worker.BackoffBaseDelay)
	assert.Equal(t, 5*time.Minute, cfg.Worker.BackoffMaxDelay)
	assert.Equal(t, "any", cfg.Worker.CompletionPolicy)
	assert.Equal(t, 30*time.Second, cfg.Health.Interval)
	assert.Equal(t, 3, cfg.Recovery.AlertThreshold)
	assert.Equal(t, 3, cfg.Recovery.MaxRemediationCycles)
}

func validBase() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "paper_analysis",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "analysis.jobs",
			},
			WorkQueue:  "analysis.jobs.work",
			RetryQueue: "analysis.jobs.retry",
		},
		Worker: WorkerConfig{
			Concurrency:      2,
			ProviderTimeout:  30 * time.Second,
			BackoffBaseDelay: time.Second,
			BackoffMaxDelay:  time.Minute,
			DrainTimeout:     10 * time.Second,
			CompletionPolicy: "any",
		},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty work queue",
			mutate:    func(c *Config) { c.RabbitMQ.WorkQueue = "" },
			wantErr:   true,
			errString: "rabbitmq work_queue is required",
		},
		{
			name:      "empty retry queue",
			mutate:    func(c *Config) { c.RabbitMQ.RetryQueue = "" },
			wantErr:   true,
			errString: "rabbitmq retry_queue is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "worker concurrency must be greater than 0",
		},
		{
			name:      "zero drain timeout",
			mutate:    func(c *Config) { c.Worker.DrainTimeout = 0 },
			wantErr:   true,
			errString: "worker drain_timeout must be greater than 0",
		},
		{
			name:      "unknown completion policy",
			mutate:    func(c *Config) { c.Worker.CompletionPolicy = "most" },
			wantErr:   true,
			errString: "completion_policy",
		},
		{
			name: "base delay exceeds max delay",
			mutate: func(c *Config) {
				c.Worker.BackoffBaseDelay = 2 * time.Minute
				c.Worker.BackoffMaxDelay = time.Minute
			},
			wantErr:   true,
			errString: "backoff_base_delay exceeds backoff_max_delay",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}
