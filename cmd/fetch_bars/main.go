package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"chartWizard/config"
	"chartWizard/internal/adapters/binanceclient"
	"chartWizard/internal/adapters/logger"
	"chartWizard/internal/domain"
	"chartWizard/internal/utils"
)

// fetch_bars downloads HISTORY_LOOKBACK of bars for every configured symbol
// into HISTORY_DIR, in the layout read by HISTORY_SOURCE=csv.
func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.NewZapLogger(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectDelay:    cfg.MaxReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	end := time.Now().UTC()
	start := end.Add(-cfg.HistoryLookback)

	failed := 0
	for _, symbol := range cfg.Symbols {
		if domain.IsSynthetic(symbol) {
			appLogger.Info(context.Background(), "Skipping synthetic symbol", map[string]interface{}{"symbol": symbol})
			continue
		}

		fmt.Printf("Fetching %s bars for %s from %s to %s...\n", cfg.BarInterval, symbol, start.Format(time.RFC3339), end.Format(time.RFC3339))
		bars, err := binanceClient.FetchBars(context.Background(), domain.HistoryRequest{
			Symbol:   symbol,
			Interval: cfg.BarInterval,
			Start:    start,
			End:      end,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "Error fetching bars", map[string]interface{}{"symbol": symbol})
			failed++
			continue
		}

		// The still-open bar would be stored as final
		if n := len(bars); n > 0 && !bars[n-1].Final {
			bars = bars[:n-1]
		}

		filename := filepath.Join(cfg.HistoryDir, utils.BarFileName(symbol, cfg.BarInterval))
		if err := utils.WriteBarsToCSV(bars, filename); err != nil {
			appLogger.Error(context.Background(), err, "Error writing CSV", map[string]interface{}{"symbol": symbol})
			failed++
			continue
		}
		appLogger.Info(context.Background(), "Saved bars", map[string]interface{}{"symbol": symbol, "count": len(bars), "filename": filename})
	}

	if failed > 0 {
		log.Fatalf("FATAL: %d of %d symbols failed", failed, len(cfg.Symbols))
	}
}
