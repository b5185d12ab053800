package app

import (
	"context"
	"errors"
	"sync"

	"chartWizard/internal/chart"
	"chartWizard/internal/domain"
	"chartWizard/internal/ports"
)

// eventPoster is the part of the router the feeds publish into.
type eventPoster interface {
	Post(ctx context.Context, ev chart.Event) error
}

// historyFetcher implements ports.HistoryRequester by running the fetch on
// its own goroutine and posting the result back into the router.
type historyFetcher struct {
	source  ports.BarHistorySource
	router  eventPoster
	logger  ports.Logger
	metrics Metrics
	wg      sync.WaitGroup
}

// RequestHistory never blocks; the batch arrives later as a chart.HistoryBatch.
func (f *historyFetcher) RequestHistory(ctx context.Context, req domain.HistoryRequest) {
	if domain.IsSynthetic(req.Symbol) {
		f.logger.Debug(ctx, "No history source for synthetic symbol", map[string]interface{}{"symbol": req.Symbol})
		return
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		op := "FetchHistory"
		bars, err := f.source.FetchBars(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.metrics.HistoryFetchFailed()
			f.logger.Error(ctx, err, op+" failed", map[string]interface{}{"symbol": req.Symbol, "session": req.Session.String()})
			return
		}

		batch := chart.HistoryBatch{Symbol: req.Symbol, Session: req.Session, Bars: bars}
		if err := f.router.Post(ctx, batch); err != nil {
			f.logger.Debug(ctx, op+": router no longer accepting batches", map[string]interface{}{"symbol": req.Symbol, "error": err.Error()})
			return
		}
		f.logger.Debug(ctx, op+" posted", map[string]interface{}{"symbol": req.Symbol, "bars": len(bars)})
	}()
}

// wait blocks until every in-flight fetch has finished.
func (f *historyFetcher) wait() {
	f.wg.Wait()
}

// liveFeed implements ports.Subscriber and ports.Unsubscriber. It keeps at most one tick stream per
// instrument and forwards every tick to the router.
type liveFeed struct {
	streamer ports.TickStreamer
	router   eventPoster
	logger   ports.Logger
	metrics  Metrics

	mu      sync.Mutex
	streams map[string]chan struct{} // Instrument key -> stop channel
}

// Subscribe starts streaming instrument unless a stream is already running.
func (f *liveFeed) Subscribe(ctx context.Context, instrument domain.Instrument) {
	key := instrument.Key()

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.streams[key]; ok {
		f.logger.Debug(ctx, "Live stream already running", map[string]interface{}{"symbol": key})
		return
	}

	handler := func(tick domain.Tick) {
		if err := f.router.Post(ctx, chart.TickUpdate{Tick: tick}); err != nil && !errors.Is(err, ports.ErrRouterStopped) && ctx.Err() == nil {
			f.logger.Warn(ctx, "Failed to post tick", map[string]interface{}{"symbol": key, "error": err.Error()})
		}
	}
	errHandler := func(err error) {
		f.logger.Warn(ctx, "Live stream error", map[string]interface{}{"symbol": key, "error": err.Error()})
	}

	doneCh, stopCh, err := f.streamer.StreamTicks(ctx, instrument, handler, errHandler)
	if err != nil {
		f.logger.Error(ctx, err, "Failed to start live stream", map[string]interface{}{"symbol": key})
		return
	}
	f.streams[key] = stopCh
	f.metrics.SubscriptionStarted()
	f.logger.Info(ctx, "Live stream started", map[string]interface{}{"symbol": key, "gateway": instrument.Gateway})

	go func() {
		<-doneCh
		f.mu.Lock()
		if f.streams[key] == stopCh {
			delete(f.streams, key)
		}
		f.mu.Unlock()
		f.logger.Info(context.Background(), "Live stream ended", map[string]interface{}{"symbol": key})
	}()
}

// Unsubscribe stops the stream of instrument, if one is running.
func (f *liveFeed) Unsubscribe(ctx context.Context, instrument domain.Instrument) {
	key := instrument.Key()

	f.mu.Lock()
	stopCh, ok := f.streams[key]
	if ok {
		delete(f.streams, key)
	}
	f.mu.Unlock()
	if !ok {
		return
	}
	close(stopCh)
	f.logger.Info(ctx, "Live stream stopping", map[string]interface{}{"symbol": key})
}

// active returns the number of running streams.
func (f *liveFeed) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}
