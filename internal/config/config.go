package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Stripe    StripeConfig    `yaml:"stripe"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains PostgreSQL connection settings, used only when the
// relational backend is selected
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// StorageConfig selects and configures the repository backend
type StorageConfig struct {
	Backend string `yaml:"backend"`  // "json" or "postgres"
	DataDir string `yaml:"data_dir"` // tenant data root for the flat-file backend
}

// StripeConfig contains payment provider credentials
type StripeConfig struct {
	APIKey        string `yaml:"api_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// PricingConfig locates the process-wide pricing table
type PricingConfig struct {
	TablePath string `yaml:"table_path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// SchedulerConfig contains the global interval defaults for the
// reconciliation services. Per-shop overrides come from shop settings and
// LATE_FEE_INTERVAL_<SHOP> environment variables.
type SchedulerConfig struct {
	LateFeeInterval        string `yaml:"late_fee_interval"`
	DepositReleaseInterval string `yaml:"deposit_release_interval"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Storage
	if val := os.Getenv("ORDERS_BACKEND"); val != "" {
		c.Storage.Backend = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.Storage.DataDir = val
	}

	// Stripe
	if val := os.Getenv("STRIPE_API_KEY"); val != "" {
		c.Stripe.APIKey = val
	}
	if val := os.Getenv("STRIPE_WEBHOOK_SECRET"); val != "" {
		c.Stripe.WebhookSecret = val
	}

	// Pricing
	if val := os.Getenv("PRICING_TABLE_PATH"); val != "" {
		c.Pricing.TablePath = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Scheduler
	if val := os.Getenv("LATE_FEE_INTERVAL"); val != "" {
		c.Scheduler.LateFeeInterval = val
	}
	if val := os.Getenv("DEPOSIT_RELEASE_INTERVAL"); val != "" {
		c.Scheduler.DepositReleaseInterval = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}
}

// Validate checks if the configuration is valid and applies defaults
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Backend selection is parsed once here; money-bearing code never
	// re-reads the environment.
	switch c.Storage.Backend {
	case "", "postgres":
		c.Storage.Backend = "postgres"
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required for the postgres backend")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required for the postgres backend")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required for the postgres backend")
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case "json":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("data_dir is required for the json backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}

	// Stripe validation
	if c.Stripe.APIKey == "" {
		return fmt.Errorf("stripe api_key is required")
	}

	// Pricing validation
	if c.Pricing.TablePath == "" {
		return fmt.Errorf("pricing table_path is required")
	}

	// Scheduler defaults
	if c.Scheduler.LateFeeInterval == "" {
		c.Scheduler.LateFeeInterval = "6h"
	}
	if c.Scheduler.DepositReleaseInterval == "" {
		c.Scheduler.DepositReleaseInterval = "1h"
	}
	if _, err := time.ParseDuration(c.Scheduler.LateFeeInterval); err != nil {
		return fmt.Errorf("invalid late_fee_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Scheduler.DepositReleaseInterval); err != nil {
		return fmt.Errorf("invalid deposit_release_interval: %w", err)
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LateFeeIntervalDefault returns the validated global late-fee interval.
func (c *Config) LateFeeIntervalDefault() time.Duration {
	d, _ := time.ParseDuration(c.Scheduler.LateFeeInterval)
	return d
}

// DepositReleaseIntervalDefault returns the validated deposit-release interval.
func (c *Config) DepositReleaseIntervalDefault() time.Duration {
	d, _ := time.ParseDuration(c.Scheduler.DepositReleaseInterval)
	return d
}
