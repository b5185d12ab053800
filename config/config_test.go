package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartWizard/internal/adapters/logger"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT.BINANCE"}, cfg.Symbols)
	assert.Equal(t, time.Minute, cfg.BarInterval)
	assert.Equal(t, 120*time.Hour, cfg.HistoryLookback)
	assert.Equal(t, HistorySourceBinance, cfg.HistorySource)
	assert.Equal(t, 4096, cfg.EventQueueSize)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogEncoding)
	assert.True(t, cfg.SyncInstruments)
	assert.False(t, cfg.IsTestnet)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("SYMBOLS", "ETHUSDT.BINANCE, BTC-ETH.LOCAL ,")
	t.Setenv("BAR_INTERVAL", "5m")
	t.Setenv("HISTORY_SOURCE", "csv")
	t.Setenv("HISTORY_DIR", "/tmp/bars")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_ENCODING", "console")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"ETHUSDT.BINANCE", "BTC-ETH.LOCAL"}, cfg.Symbols)
	assert.Equal(t, 5*time.Minute, cfg.BarInterval)
	assert.Equal(t, HistorySourceCSV, cfg.HistorySource)
	assert.Equal(t, "/tmp/bars", cfg.HistoryDir)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
}

func TestLoadConfig_AccumulatesErrors(t *testing.T) {
	t.Setenv("SYMBOLS", "NODOT")
	t.Setenv("BAR_INTERVAL", "1500ms")
	t.Setenv("HISTORY_SOURCE", "ftp")
	t.Setenv("EVENT_QUEUE_SIZE", "0")

	_, err := LoadConfig()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "invalid SYMBOLS entry")
	assert.Contains(t, msg, "BAR_INTERVAL must be a whole number of seconds")
	assert.Contains(t, msg, "HISTORY_SOURCE must be")
	assert.Contains(t, msg, "EVENT_QUEUE_SIZE must be positive")
}

func TestLoadConfig_BinanceInterval(t *testing.T) {
	tests := []struct {
		name     string
		interval string
		source   string
		wantErr  bool
	}{
		{name: "served by binance", interval: "15m", source: HistorySourceBinance},
		{name: "not served by binance", interval: "2m", source: HistorySourceBinance, wantErr: true},
		{name: "seconds not served by binance", interval: "30s", source: HistorySourceBinance, wantErr: true},
		{name: "csv accepts any whole-second interval", interval: "2m", source: HistorySourceCSV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BAR_INTERVAL", tt.interval)
			t.Setenv("HISTORY_SOURCE", tt.source)

			_, err := LoadConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "no Binance kline equivalent")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoadConfig_ParseError(t *testing.T) {
	t.Setenv("BAR_INTERVAL", "soon")

	_, err := LoadConfig()
	assert.Error(t, err)
}
