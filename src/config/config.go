package config

import (
	"fmt"
	"os"
	"strconv"

	"option-observer/src/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from a YAML file, then overlays
// environment variables (feed credentials, risk-free rate). A .env file next
// to the working directory is honored when present.
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}

	// 3. Environment overlay. Secrets never live in the YAML file.
	config.applyEnv()

	// 4. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyEnv overlays environment variables onto the YAML values.
// Missing .env is not an error; plain process env still applies.
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("FEED_API_KEY"); v != "" {
		c.Feed.APIKey = v
	}
	if v := os.Getenv("FEED_ACCESS_TOKEN"); v != "" {
		c.Feed.AccessToken = v
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv("RISK_FREE_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			c.Pricing.RiskFreeRate = rate
		}
	}
	if v := os.Getenv("DB_CONNECTION_STRING"); v != "" {
		c.Storage.DBConnectionString = v
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Storage configuration
	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	// Validate Feed configuration
	if c.Feed.PriceDivisor <= 0 {
		return fmt.Errorf("feed price divisor must be positive")
	}
	if c.Feed.ReconnectBaseDelay <= 0 {
		c.Feed.ReconnectBaseDelay = 1
	}
	if c.Feed.ReconnectMaxDelay < c.Feed.ReconnectBaseDelay {
		c.Feed.ReconnectMaxDelay = 60
	}

	// Validate Pricing configuration
	if c.Pricing.RiskFreeRate < 0 || c.Pricing.RiskFreeRate > 1 {
		return fmt.Errorf("risk-free rate %f out of range [0, 1]", c.Pricing.RiskFreeRate)
	}
	if c.Pricing.SpreadThreshold <= 0 {
		c.Pricing.SpreadThreshold = 0.10
	}
	if c.Pricing.DefaultIV <= 0 {
		c.Pricing.DefaultIV = 0.15
	}
	if c.Pricing.GridPadFactor <= 0 {
		c.Pricing.GridPadFactor = 0.05
	}

	// Validate Session configuration
	if c.Session.TradeEndHour < c.Session.TradeStartHour {
		return fmt.Errorf("trade window end hour %d before start hour %d",
			c.Session.TradeEndHour, c.Session.TradeStartHour)
	}
	if c.Session.SnapshotEnd < c.Session.SnapshotStart {
		return fmt.Errorf("snapshot window end hour %d before start hour %d",
			c.Session.SnapshotEnd, c.Session.SnapshotStart)
	}
	if c.Session.Timezone == "" {
		c.Session.Timezone = "Asia/Kolkata"
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
