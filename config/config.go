package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"chartWizard/internal/adapters/binanceclient"
	"chartWizard/internal/adapters/logger" // Import the logger package for LogLevel
	"chartWizard/internal/domain"
)

// History sources understood by HISTORY_SOURCE.
const (
	HistorySourceBinance = "binance"
	HistorySourceCSV     = "csv"
)

// Config holds all application configuration.
type Config struct {
	// Binance API (public market data works without keys)
	APIKey    string `env:"BINANCE_API_KEY"`
	SecretKey string `env:"BINANCE_API_SECRET"`
	IsTestnet bool   `env:"IS_TESTNET" envDefault:"false"`

	// Charting
	Symbols         []string      `env:"SYMBOLS" envSeparator:"," envDefault:"BTCUSDT.BINANCE"`
	BarInterval     time.Duration `env:"BAR_INTERVAL" envDefault:"1m"`
	HistoryLookback time.Duration `env:"HISTORY_LOOKBACK" envDefault:"120h"`
	HistorySource   string        `env:"HISTORY_SOURCE" envDefault:"binance"`
	HistoryDir      string        `env:"HISTORY_DIR" envDefault:"./data/history"`
	EventQueueSize  int           `env:"EVENT_QUEUE_SIZE" envDefault:"4096"`
	SinkMaxBars     int           `env:"SINK_MAX_BARS" envDefault:"10000"`

	// Instrument catalog
	DBPath          string `env:"DB_PATH" envDefault:"./data/instruments.db"`
	SyncInstruments bool   `env:"SYNC_INSTRUMENTS" envDefault:"true"`

	// Logging
	LogLevel    logger.LogLevel `env:"LOG_LEVEL" envDefault:"INFO"`
	LogEncoding string          `env:"LOG_ENCODING" envDefault:"json"`

	// Connection Settings
	ReconnectDelay       time.Duration `env:"RECONNECT_DELAY" envDefault:"1s"`
	MaxReconnectDelay    time.Duration `env:"MAX_RECONNECT_DELAY" envDefault:"1m"`
	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS" envDefault:"10"`

	// Servers
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string // Collect validation errors

	symbols := make([]string, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, _, err := domain.ParseSymbolKey(s); err != nil {
			errs = append(errs, fmt.Sprintf("invalid SYMBOLS entry: %v", err))
			continue
		}
		symbols = append(symbols, s)
	}
	c.Symbols = symbols

	if c.BarInterval <= 0 {
		errs = append(errs, "BAR_INTERVAL must be positive")
	} else if c.BarInterval%time.Second != 0 {
		errs = append(errs, "BAR_INTERVAL must be a whole number of seconds")
	}
	if c.HistoryLookback <= 0 {
		errs = append(errs, "HISTORY_LOOKBACK must be positive")
	}

	switch c.HistorySource {
	case HistorySourceBinance:
		if c.BarInterval > 0 && !binanceclient.SupportedInterval(c.BarInterval) {
			errs = append(errs, fmt.Sprintf("BAR_INTERVAL %s has no Binance kline equivalent (HISTORY_SOURCE=binance)", c.BarInterval))
		}
	case HistorySourceCSV:
		if c.HistoryDir == "" {
			errs = append(errs, "HISTORY_DIR must be set when HISTORY_SOURCE=csv")
		}
	default:
		errs = append(errs, fmt.Sprintf("HISTORY_SOURCE must be %q or %q, got %q", HistorySourceBinance, HistorySourceCSV, c.HistorySource))
	}

	if c.EventQueueSize <= 0 {
		errs = append(errs, "EVENT_QUEUE_SIZE must be positive")
	}
	if c.SinkMaxBars <= 0 {
		errs = append(errs, "SINK_MAX_BARS must be positive")
	}

	if c.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	if c.LogEncoding != "json" && c.LogEncoding != "console" {
		errs = append(errs, "LOG_ENCODING must be json or console")
	}

	if c.ReconnectDelay <= 0 {
		errs = append(errs, "RECONNECT_DELAY must be positive")
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		errs = append(errs, "MAX_RECONNECT_DELAY cannot be lower than RECONNECT_DELAY")
	}
	if c.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	if c.HTTPAddr == "" {
		errs = append(errs, "HTTP_ADDR must be set")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
