package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Lending  LendingConfig  `json:"lending"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
}

// LendingConfig tunes the lending core.
type LendingConfig struct {
	// SupportedCurrencies lists the currencies petitions may be
	// denominated in.
	SupportedCurrencies []string `json:"supported_currencies"`
	// PetitionTTL is how long an open petition accepts funding before
	// the expiry worker closes it.
	PetitionTTL time.Duration `json:"petition_ttl"`
	// MaxDiscountTolerance is the fraction below ask a marketplace offer
	// may come in. Zero means offers must meet the ask exactly.
	MaxDiscountTolerance float64 `json:"max_discount_tolerance"`
	// ExpirySchedule is the cron spec driving the petition expiry worker.
	ExpirySchedule string `json:"expiry_schedule"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Default config
	config := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    os.Getenv("USER"),
			DBName:  "endless_wallet",
			SSLMode: "disable",
		},
		Lending: LendingConfig{
			SupportedCurrencies: []string{
				"USD", "EUR", "GBP", "JPY", "CAD", "AUD",
				"USDC", "USDT", "BTC", "ETH",
			},
			PetitionTTL:          30 * 24 * time.Hour,
			MaxDiscountTolerance: 0,
			ExpirySchedule:       "@every 10m",
		},
	}

	// Load from file if exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	overrideWithEnv(config)

	return config, nil
}

func overrideWithEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if ttl := os.Getenv("PETITION_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			config.Lending.PetitionTTL = d
		}
	}
	if tolerance := os.Getenv("MAX_DISCOUNT_TOLERANCE"); tolerance != "" {
		if f, err := strconv.ParseFloat(tolerance, 64); err == nil {
			config.Lending.MaxDiscountTolerance = f
		}
	}
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
