package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"chartWizard/config"
	"chartWizard/internal/adapters/binanceclient"
	"chartWizard/internal/adapters/csvhistory"
	"chartWizard/internal/adapters/logger"
	"chartWizard/internal/adapters/sqlite"
	"chartWizard/internal/adapters/wssink"
	"chartWizard/internal/app"
	"chartWizard/internal/catalog"
	"chartWizard/internal/metrics"
	"chartWizard/internal/ports"
)

const shutdownTimeout = 5 * time.Second

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
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Instrument Catalog Store)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Exchange Client (Binance Adapter)
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
	appLogger.Info(context.Background(), "Binance client initialized")

	// 5. Load the instrument catalog, refreshing it from the exchange when asked
	instruments, err := catalog.New(repo, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize instrument catalog: %v", err)
	}
	if err := instruments.Load(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to load instrument catalog")
		log.Fatalf("FATAL: Failed to load instrument catalog: %v", err)
	}
	if cfg.SyncInstruments {
		syncCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if _, err := instruments.Sync(syncCtx, binanceClient); err != nil {
			// Stale metadata still lets cached symbols chart
			appLogger.Warn(context.Background(), "Instrument sync failed, using cached catalog", map[string]interface{}{"error": err.Error(), "cached": instruments.Len()})
		}
		cancel()
	}

	// 6. Initialize Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	// 7. Initialize Chart Feed (WebSocket sink)
	hub := wssink.NewHub(cfg.SinkMaxBars, appLogger)
	defer hub.Close()

	// 8. Select History Source
	var history ports.BarHistorySource = binanceClient
	if cfg.HistorySource == config.HistorySourceCSV {
		history, err = csvhistory.New(cfg.HistoryDir, appLogger)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize CSV history source: %v", err)
		}
	}
	appLogger.Info(context.Background(), "History source selected", map[string]interface{}{"source": cfg.HistorySource})

	// 9. Initialize Application Service
	chartService, err := app.NewChartService(app.ServiceConfig{
		Symbols:       cfg.Symbols,
		Interval:      cfg.BarInterval,
		Lookback:      cfg.HistoryLookback,
		QueueSize:     cfg.EventQueueSize,
		Sink:          hub,
		Resolver:      instruments,
		HistorySource: history,
		Streamer:      binanceClient,
		Logger:        appLogger,
		Metrics:       appMetrics,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize chart service")
		log.Fatalf("FATAL: Failed to initialize chart service: %v", err)
	}

	// 10. Run service and servers until a shutdown signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiServer := &http.Server{Addr: cfg.HTTPAddr, Handler: app.NewHTTPHandler(chartService, hub), ReadHeaderTimeout: 10 * time.Second}
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(registry), ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return chartService.Start(gctx)
	})
	g.Go(func() error { return serve(gctx, apiServer) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serve(gctx, metricsServer) })
	}
	appLogger.Info(ctx, "Chart server listening", map[string]interface{}{"http": cfg.HTTPAddr, "metrics": cfg.MetricsAddr})

	if err := g.Wait(); err != nil {
		appLogger.Error(context.Background(), err, "Chart server exited with error")
		os.Exit(1)
	}
	appLogger.Info(context.Background(), "Application finished gracefully.")
}

func metricsMux(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler(registry))
	return mux
}

// serve runs srv until ctx is done, then shuts it down.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
