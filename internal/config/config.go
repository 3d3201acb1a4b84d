package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	// Database configuration
	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	// Exchange configuration
	Exchange struct {
		Symbols       []string `mapstructure:"symbols"`
		InboxCapacity int      `mapstructure:"inbox_capacity"`
	} `mapstructure:"exchange"`

	// Outbox publisher configuration
	Publisher struct {
		BatchSize int `mapstructure:"batch_size"`
		Workers   int `mapstructure:"workers"`
	} `mapstructure:"publisher"`

	// Expiration daemon configuration
	Expiration struct {
		IntervalMillis int `mapstructure:"interval_millis"`
		BatchSize      int `mapstructure:"batch_size"`
	} `mapstructure:"expiration"`

	// Monitoring configuration
	Monitoring struct {
		PrometheusPort int    `mapstructure:"prometheus_port"`
		LogLevel       string `mapstructure:"log_level"`
	} `mapstructure:"monitoring"`
}

// LoadConfig loads the configuration from the specified path, falling
// back to defaults and HANDLEX_-prefixed environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/handlex")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("HANDLEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults and environment variables
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "handlex")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("exchange.symbols", []string{})
	v.SetDefault("exchange.inbox_capacity", 1024)

	v.SetDefault("publisher.batch_size", 100)
	v.SetDefault("publisher.workers", 1)

	v.SetDefault("expiration.interval_millis", 1000)
	v.SetDefault("expiration.batch_size", 100)

	v.SetDefault("monitoring.prometheus_port", 9090)
	v.SetDefault("monitoring.log_level", "info")
}

// InitLogger initializes the logger based on the configuration
func InitLogger(cfg *Config) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	switch cfg.Monitoring.LogLevel {
	case "debug":
		logger, err = zap.NewDevelopment()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
