package chart

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"chartWizard/internal/domain"
	"chartWizard/internal/ports"
)

// Entry is the tracking state of one symbol.
type Entry struct {
	Symbol          string
	Session         uuid.UUID // Minted per Track; echoed back by history batches
	Sink            ports.BarSink
	Aggregator      *Aggregator
	State           domain.LiveState
	HistoryReceived bool
	TrackedAt       time.Time
}

// LiveActive reports whether live ticks have been subscribed for the entry.
func (e *Entry) LiveActive() bool {
	return e.State == domain.LiveActive
}

// Registry owns the table of tracked symbols and their aggregators.
// It has no locking: only the router's event loop may call it.
type Registry struct {
	interval time.Duration
	resolver ports.InstrumentResolver
	metrics  ports.MetricsRecorder
	now      func() time.Time
	entries  map[string]*Entry
}

// NewRegistry creates an empty registry building bars of the given interval.
func NewRegistry(interval time.Duration, resolver ports.InstrumentResolver, metrics ports.MetricsRecorder) *Registry {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Registry{
		interval: interval,
		resolver: resolver,
		metrics:  metrics,
		now:      time.Now,
		entries:  make(map[string]*Entry),
	}
}

// Track creates the entry and aggregator for symbol.
// Symbols outside the synthetic namespace must resolve to an instrument first.
func (r *Registry) Track(symbol string, sink ports.BarSink) (*Entry, error) {
	if symbol == "" {
		return nil, fmt.Errorf("track: %w: empty symbol", ports.ErrInvalidRequest)
	}
	if sink == nil {
		return nil, fmt.Errorf("track %s: %w: nil sink", symbol, ports.ErrInvalidRequest)
	}
	if existing, ok := r.entries[symbol]; ok {
		return existing, ports.ErrAlreadyTracked
	}
	if !domain.IsSynthetic(symbol) && !r.resolves(symbol) {
		return nil, fmt.Errorf("track %s: %w", symbol, ports.ErrUnresolvedInstrument)
	}

	entry := &Entry{
		Symbol:    symbol,
		Session:   uuid.New(),
		Sink:      sink,
		State:     domain.LiveUnsubscribed,
		TrackedAt: r.now(),
	}
	entry.Aggregator = NewAggregator(symbol, r.interval, func(bar domain.Bar) {
		if bar.Final {
			r.metrics.BarClosed()
		}
		sink.Upsert(symbol, bar)
	})

	r.entries[symbol] = entry
	r.metrics.TrackedSymbols(len(r.entries))
	return entry, nil
}

// Untrack drops the entry for symbol and detaches its sink. It reports whether
// the symbol was tracked; calling it for an unknown symbol is a no-op.
func (r *Registry) Untrack(symbol string) bool {
	entry, ok := r.entries[symbol]
	if !ok {
		return false
	}
	delete(r.entries, symbol)
	if d, ok := entry.Sink.(ports.SinkDetacher); ok {
		d.Detach(symbol)
	}
	r.metrics.TrackedSymbols(len(r.entries))
	return true
}

// Route hands tick to the aggregator of symbol.
func (r *Registry) Route(symbol string, tick domain.Tick) error {
	entry, ok := r.entries[symbol]
	if !ok {
		return ports.ErrUnknownSymbolTick
	}
	_, err := entry.Aggregator.Update(tick)
	return err
}

// Entry looks up the tracking state of symbol.
func (r *Registry) Entry(symbol string) (*Entry, bool) {
	entry, ok := r.entries[symbol]
	return entry, ok
}

// Symbols returns the tracked symbols in lexical order.
func (r *Registry) Symbols() []string {
	symbols := make([]string, 0, len(r.entries))
	for s := range r.entries {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Len returns the number of tracked symbols.
func (r *Registry) Len() int {
	return len(r.entries)
}

func (r *Registry) resolves(symbol string) bool {
	if r.resolver == nil {
		return false
	}
	_, ok := r.resolver.ResolveInstrument(symbol)
	return ok
}
