package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chartWizard/internal/chart"
	"chartWizard/internal/domain"
	"chartWizard/internal/ports"
)

// Metrics extends the chart core's recorder with feed-level counters.
type Metrics interface {
	ports.MetricsRecorder
	HistoryFetchFailed()
	SubscriptionStarted()
}

type noopMetrics struct{}

func (noopMetrics) TickRouted(domain.TickSource) {}
func (noopMetrics) TickDropped(string)           {}
func (noopMetrics) BarClosed()                   {}
func (noopMetrics) HistoryBatch(string)          {}
func (noopMetrics) TrackedSymbols(int)           {}
func (noopMetrics) HistoryFetchFailed()          {}
func (noopMetrics) SubscriptionStarted()         {}

// ServiceConfig holds the collaborators and settings of a ChartService.
type ServiceConfig struct {
	Symbols   []string      // Tracked on Start
	Interval  time.Duration // Bar width
	Lookback  time.Duration // History window requested per symbol
	QueueSize int           // Router mailbox capacity

	Sink          ports.BarSink
	Resolver      ports.InstrumentResolver
	HistorySource ports.BarHistorySource
	Streamer      ports.TickStreamer
	Logger        ports.Logger
	Metrics       Metrics // Optional

	HandleSignals bool // Cancel on SIGINT/SIGTERM
}

// ChartService wires the chart router to history and live-data transports
// and exposes tracking to the outside world.
type ChartService struct {
	cfg     ServiceConfig
	router  *chart.Router
	history *historyFetcher
	feed    *liveFeed
	logger  ports.Logger
}

// NewChartService creates a new application service instance.
func NewChartService(cfg ServiceConfig) (*ChartService, error) {
	// Validate dependencies
	if cfg.Logger == nil || cfg.Sink == nil || cfg.Resolver == nil || cfg.HistorySource == nil || cfg.Streamer == nil {
		return nil, fmt.Errorf("missing required dependencies for ChartService")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}

	history := &historyFetcher{source: cfg.HistorySource, logger: cfg.Logger, metrics: cfg.Metrics}
	feed := &liveFeed{streamer: cfg.Streamer, logger: cfg.Logger, metrics: cfg.Metrics, streams: make(map[string]chan struct{})}

	router, err := chart.NewRouter(chart.RouterConfig{
		Interval:        cfg.Interval,
		HistoryLookback: cfg.Lookback,
		QueueSize:       cfg.QueueSize,
		Resolver:        cfg.Resolver,
		Subscriber:      feed,
		History:         history,
		Logger:          cfg.Logger,
		Metrics:         cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event router: %w", err)
	}
	// The feeds publish back into the router they serve
	history.router = router
	feed.router = router

	return &ChartService{
		cfg:     cfg,
		router:  router,
		history: history,
		feed:    feed,
		logger:  cfg.Logger,
	}, nil
}

// Start runs the router and tracks the configured symbols. It blocks until
// ctx is cancelled (or a shutdown signal arrives) and the router has stopped.
func (s *ChartService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Chart Service...", map[string]interface{}{"symbols": s.cfg.Symbols})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.cfg.HandleSignals {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case sig := <-sigCh:
				s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() { runErr <- s.router.Run(ctx) }()

	for _, symbol := range s.cfg.Symbols {
		if err := s.BeginTracking(ctx, symbol); err != nil && !errors.Is(err, ports.ErrAlreadyTracked) {
			if ctx.Err() != nil {
				break
			}
			// A bad symbol should not take the other charts down
			s.logger.Error(ctx, err, "Failed to track configured symbol", map[string]interface{}{"symbol": symbol})
		}
	}

	err := <-runErr
	s.history.wait()
	s.logger.Info(context.Background(), "Chart Service stopped", map[string]interface{}{"liveStreams": s.feed.active()})
	return err
}

// BeginTracking starts charting symbol into the configured sink.
func (s *ChartService) BeginTracking(ctx context.Context, symbol string) error {
	return s.router.Track(ctx, symbol, s.cfg.Sink)
}

// StopTracking stops charting symbol. Unknown symbols are ignored.
func (s *ChartService) StopTracking(ctx context.Context, symbol string) error {
	return s.router.Untrack(ctx, symbol)
}

// TrackedSymbols returns the tracked symbols in lexical order.
func (s *ChartService) TrackedSymbols(ctx context.Context) ([]string, error) {
	return s.router.Symbols(ctx)
}

// PublishSpread feeds a computed spread quote into the chart core.
func (s *ChartService) PublishSpread(ctx context.Context, quote domain.SpreadQuote) error {
	return s.router.Post(ctx, chart.SpreadQuoteUpdate{Quote: quote})
}
