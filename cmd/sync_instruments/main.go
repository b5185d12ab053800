package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"chartWizard/config"
	"chartWizard/internal/adapters/binanceclient"
	"chartWizard/internal/adapters/logger"
	"chartWizard/internal/adapters/sqlite"
	"chartWizard/internal/catalog"
)

// sync_instruments refreshes the SQLite instrument catalog from Binance exchange info.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := binanceClient.Ping(ctx); err != nil {
		log.Fatalf("FATAL: Binance is unreachable: %v", err)
	}

	instruments, err := catalog.New(repo, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize instrument catalog: %v", err)
	}
	n, err := instruments.Sync(ctx, binanceClient)
	if err != nil {
		log.Fatalf("FATAL: Instrument sync failed: %v", err)
	}
	if serverTime, err := binanceClient.GetServerTime(ctx); err == nil {
		fmt.Printf("Synchronized %d instruments into %s (exchange time %s)\n", n, cfg.DBPath, serverTime.UTC().Format(time.RFC3339))
		return
	}
	fmt.Printf("Synchronized %d instruments into %s\n", n, cfg.DBPath)
}
