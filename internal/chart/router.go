package chart

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"chartWizard/internal/domain"
	"chartWizard/internal/ports"
)

// RouterConfig holds configuration for the event router.
type RouterConfig struct {
	Interval        time.Duration // Bar width; default one minute
	HistoryLookback time.Duration // Window requested when a symbol starts being tracked
	QueueSize       int           // Mailbox capacity

	Resolver   ports.InstrumentResolver
	Subscriber ports.Subscriber
	History    ports.HistoryRequester
	Logger     ports.Logger
	Metrics    ports.MetricsRecorder // Optional

	Now func() time.Time // Optional clock, used for history windows
}

// DefaultRouterConfig returns default configuration without collaborators.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Interval:        domain.DefaultInterval,
		HistoryLookback: 5 * 24 * time.Hour,
		QueueSize:       4096,
	}
}

// Router is the single consumer of all chart events. Producers on any
// goroutine Post into its mailbox; Run processes events strictly one at a
// time, in arrival order, so registry state needs no locks.
type Router struct {
	cfg      RouterConfig
	registry *Registry
	merger   *HistoryMerger
	history  ports.HistoryRequester
	unsub    ports.Unsubscriber // Optional side of the subscriber
	logger   ports.Logger
	metrics  ports.MetricsRecorder

	events  chan Event
	done    chan struct{}
	running atomic.Bool
}

// NewRouter creates a router and the registry and merger it drives.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Logger == nil || cfg.Resolver == nil || cfg.Subscriber == nil || cfg.History == nil {
		return nil, fmt.Errorf("missing required dependencies for Router")
	}
	defaults := DefaultRouterConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.HistoryLookback <= 0 {
		cfg.HistoryLookback = defaults.HistoryLookback
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	registry := NewRegistry(cfg.Interval, cfg.Resolver, cfg.Metrics)
	registry.now = cfg.Now

	unsub, _ := cfg.Subscriber.(ports.Unsubscriber)

	return &Router{
		cfg:      cfg,
		unsub:    unsub,
		registry: registry,
		merger:   NewHistoryMerger(registry, cfg.Resolver, cfg.Subscriber),
		history:  cfg.History,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		events:   make(chan Event, cfg.QueueSize),
		done:     make(chan struct{}),
	}, nil
}

// Post enqueues ev. It blocks only while the mailbox is full.
func (r *Router) Post(ctx context.Context, ev Event) error {
	select {
	case <-r.done:
		return ports.ErrRouterStopped
	default:
	}
	select {
	case r.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ports.ErrRouterStopped
	}
}

// Run consumes the mailbox until ctx is cancelled. It may be called once.
func (r *Router) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("event router already running")
	}
	defer close(r.done)

	r.logger.Info(ctx, "Event router started", map[string]interface{}{"interval": r.cfg.Interval.String(), "queueSize": r.cfg.QueueSize})
	for {
		select {
		case <-ctx.Done():
			r.logger.Info(ctx, "Event router stopped", map[string]interface{}{"pending": len(r.events), "tracked": r.registry.Len()})
			return nil
		case ev := <-r.events:
			r.dispatch(ctx, ev)
		}
	}
}

// Track asks the event loop to start tracking symbol and waits for the outcome.
func (r *Router) Track(ctx context.Context, symbol string, sink ports.BarSink) error {
	reply := make(chan error, 1)
	if err := r.Post(ctx, trackRequest{symbol: symbol, sink: sink, reply: reply}); err != nil {
		return err
	}
	return r.await(ctx, reply)
}

// Untrack asks the event loop to stop tracking symbol and waits until it has.
func (r *Router) Untrack(ctx context.Context, symbol string) error {
	reply := make(chan error, 1)
	if err := r.Post(ctx, untrackRequest{symbol: symbol, reply: reply}); err != nil {
		return err
	}
	return r.await(ctx, reply)
}

// Symbols returns the tracked symbols as seen by the event loop.
func (r *Router) Symbols(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	if err := r.Post(ctx, symbolsQuery{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case symbols := <-reply:
		return symbols, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return nil, ports.ErrRouterStopped
	}
}

func (r *Router) await(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ports.ErrRouterStopped
	}
}

func (r *Router) dispatch(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case TickUpdate:
		r.routeTick(ctx, e.Tick)
	case SpreadQuoteUpdate:
		r.routeTick(ctx, NormalizeSpread(e.Quote))
	case HistoryBatch:
		r.applyHistory(ctx, e)
	case trackRequest:
		e.reply <- r.track(ctx, e.symbol, e.sink)
	case untrackRequest:
		r.untrack(ctx, e.symbol)
		e.reply <- nil
	case symbolsQuery:
		e.reply <- r.registry.Symbols()
	default:
		r.logger.Warn(ctx, "Dropping event of unknown type", map[string]interface{}{"type": fmt.Sprintf("%T", ev)})
	}
}

func (r *Router) routeTick(ctx context.Context, tick domain.Tick) {
	err := r.registry.Route(tick.Symbol, tick)
	switch {
	case err == nil:
		r.metrics.TickRouted(tick.Source)
	case errors.Is(err, ports.ErrUnknownSymbolTick):
		r.metrics.TickDropped(DropUnknownSymbol)
	case errors.Is(err, ports.ErrOutOfOrderTick):
		r.metrics.TickDropped(DropOutOfOrder)
		r.logger.Debug(ctx, "Dropped out-of-order tick", map[string]interface{}{"symbol": tick.Symbol, "timestamp": tick.Timestamp})
	default:
		r.logger.Error(ctx, err, "Failed to route tick", map[string]interface{}{"symbol": tick.Symbol})
	}
}

func (r *Router) track(ctx context.Context, symbol string, sink ports.BarSink) error {
	op := "Track"
	entry, err := r.registry.Track(symbol, sink)
	if err != nil {
		if errors.Is(err, ports.ErrAlreadyTracked) {
			r.logger.Debug(ctx, op+": symbol already tracked", map[string]interface{}{"symbol": symbol})
		} else {
			r.logger.Warn(ctx, op+": symbol rejected", map[string]interface{}{"symbol": symbol, "error": err.Error()})
		}
		return err
	}

	end := r.cfg.Now()
	req := domain.HistoryRequest{
		Symbol:   symbol,
		Session:  entry.Session,
		Interval: r.cfg.Interval,
		Start:    end.Add(-r.cfg.HistoryLookback),
		End:      end,
	}
	entry.State = domain.LiveHistoryPending
	r.history.RequestHistory(ctx, req)

	r.logger.Info(ctx, op+": tracking started", map[string]interface{}{
		"symbol":  symbol,
		"session": entry.Session.String(),
		"start":   req.Start,
		"end":     req.End,
	})
	return nil
}

func (r *Router) untrack(ctx context.Context, symbol string) {
	entry, ok := r.registry.Entry(symbol)
	if !ok {
		r.logger.Debug(ctx, "Untrack: symbol was not tracked", map[string]interface{}{"symbol": symbol})
		return
	}
	live := entry.LiveActive()
	r.registry.Untrack(symbol)

	if live && r.unsub != nil {
		if instrument, ok := r.cfg.Resolver.ResolveInstrument(symbol); ok {
			r.unsub.Unsubscribe(ctx, instrument)
		} else {
			r.logger.Warn(ctx, "Untrack: live instrument no longer resolves, stream left running", map[string]interface{}{"symbol": symbol})
		}
	}
	r.logger.Info(ctx, "Untrack: tracking stopped", map[string]interface{}{
		"symbol":   symbol,
		"session":  entry.Session.String(),
		"duration": r.cfg.Now().Sub(entry.TrackedAt).String(),
		"live":     live,
	})
}

func (r *Router) applyHistory(ctx context.Context, batch HistoryBatch) {
	op := "ApplyHistory"
	fields := map[string]interface{}{"symbol": batch.Symbol, "bars": len(batch.Bars)}

	err := r.merger.Apply(ctx, batch)
	switch {
	case err == nil:
		r.metrics.HistoryBatch(HistoryApplied)
		entry, _ := r.registry.Entry(batch.Symbol)
		fields["state"] = entry.State.String()
		r.logger.Info(ctx, op+": history applied", fields)
	case errors.Is(err, ports.ErrEmptyHistoryBatch):
		r.metrics.HistoryBatch(HistoryEmpty)
		r.logger.Debug(ctx, op+": empty batch ignored", fields)
	case errors.Is(err, ports.ErrStaleHistoryBatch):
		r.metrics.HistoryBatch(HistoryStale)
		r.logger.Debug(ctx, op+": batch from previous session discarded", fields)
	case errors.Is(err, ports.ErrSymbolNotTracked):
		r.metrics.HistoryBatch(HistoryUntracked)
		r.logger.Debug(ctx, op+": batch for untracked symbol discarded", fields)
	case errors.Is(err, ports.ErrUnresolvedInstrument):
		r.metrics.HistoryBatch(HistoryDegraded)
		r.logger.Info(ctx, op+": no instrument to subscribe, chart stays historical", fields)
	default:
		r.logger.Error(ctx, err, op+" failed", fields)
	}
}
