package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the sync pipeline.
type Config struct {
	// Vendor access
	TushareToken   string `mapstructure:"tushare_token"`
	TushareBaseURL string `mapstructure:"tushare_base_url"`

	// Destination
	DatabaseURL string `mapstructure:"database_url"`

	// Admission control and fan-out
	Rate          float64 `mapstructure:"rate"`
	Burst         int     `mapstructure:"burst"`
	MaxConcurrent int     `mapstructure:"max_concurrent"`
	TransportRate float64 `mapstructure:"transport_rate"`

	// Retry policy
	MaxAttempts   int     `mapstructure:"max_attempts"`
	BackoffFactor float64 `mapstructure:"backoff_factor"`

	// Query selectors
	Exchanges []string `mapstructure:"exchanges"`
	Symbols   []string `mapstructure:"symbols"`
	Date      string   `mapstructure:"date"`
	StartDate string   `mapstructure:"start_date"`
	EndDate   string   `mapstructure:"end_date"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

// Load reads configuration from environment variables and optional config file.
// Environment variables take precedence over config file values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("tushare_base_url", "https://api.tushare.pro")
	v.SetDefault("rate", 5.0)
	v.SetDefault("burst", 10)
	v.SetDefault("max_concurrent", 8)
	v.SetDefault("transport_rate", 10.0)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("backoff_factor", 2.0)
	v.SetDefault("exchanges", []string{"SHFE", "DCE", "CZCE", "CFFEX", "INE"})
	v.SetDefault("log_level", "info")

	// Optionally read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.futuresync")
	_ = v.ReadInConfig()

	v.BindEnv("tushare_token", "TUSHARE_TOKEN")
	v.BindEnv("tushare_base_url", "TUSHARE_BASE_URL")
	v.BindEnv("database_url", "DATABASE_URL")
	v.BindEnv("rate", "RATE")
	v.BindEnv("burst", "BURST")
	v.BindEnv("max_concurrent", "MAX_CONCURRENT")
	v.BindEnv("transport_rate", "TRANSPORT_RATE")
	v.BindEnv("max_attempts", "MAX_ATTEMPTS")
	v.BindEnv("backoff_factor", "BACKOFF_FACTOR")
	v.BindEnv("date", "DATE")
	v.BindEnv("start_date", "START_DATE")
	v.BindEnv("end_date", "END_DATE")
	v.BindEnv("log_level", "LOG_LEVEL")
	v.BindEnv("log_file", "LOG_FILE")

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var missing []string
	if config.TushareToken == "" {
		missing = append(missing, "TUSHARE_TOKEN")
	}
	if config.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if config.Rate <= 0 {
		return nil, fmt.Errorf("rate must be positive, got %v", config.Rate)
	}
	if config.Burst < 1 {
		return nil, fmt.Errorf("burst must be at least 1, got %d", config.Burst)
	}
	if config.MaxConcurrent < 1 {
		return nil, fmt.Errorf("max_concurrent must be at least 1, got %d", config.MaxConcurrent)
	}
	if config.Date != "" && (config.StartDate != "" || config.EndDate != "") {
		return nil, fmt.Errorf("date and start_date/end_date are mutually exclusive")
	}

	return config, nil
}
