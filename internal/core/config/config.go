// Package config provides configuration management for CaseGuard services.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds configuration for the case API service.
type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	MaxPageSize    int
	RulesFile      string
	Transitions    []TransitionRule
}

// TransitionRule is the config-file shape of a status-transition rule.
type TransitionRule struct {
	From        string `mapstructure:"from"`
	To          string `mapstructure:"to"`
	AfterDays   int    `mapstructure:"after_days"`
	AfterHours  int    `mapstructure:"after_hours"`
	Description string `mapstructure:"description"`
}

// DefaultServerConfig returns configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		RequestTimeout: 30 * time.Second,
		MaxPageSize:    1000,
	}
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*ServerConfig, error) {
	v := viper.New()

	// Defaults matching DefaultServerConfig
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.max_page_size", 1000)
	v.SetDefault("server.rules_file", "")

	// Bind environment variables with CG_ prefix
	v.SetEnvPrefix("CG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &ServerConfig{
		Host:           v.GetString("server.host"),
		Port:           v.GetInt("server.port"),
		RequestTimeout: v.GetDuration("server.request_timeout"),
		MaxPageSize:    v.GetInt("server.max_page_size"),
		RulesFile:      v.GetString("server.rules_file"),
	}

	if err := v.UnmarshalKey("transitions", &cfg.Transitions); err != nil {
		return nil, fmt.Errorf("failed to parse transition rules: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range and positive values for timeout and page
// size.
func validateConfig(cfg *ServerConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}
	if cfg.MaxPageSize <= 0 {
		return fmt.Errorf("max_page_size must be positive, got %d", cfg.MaxPageSize)
	}
	return nil
}
