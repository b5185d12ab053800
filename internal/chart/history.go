package chart

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"chartWizard/internal/domain"
	"chartWizard/internal/ports"
)

// HistoryMerger splices history batches into tracked series and turns on
// live data for a symbol the first time its history arrives.
type HistoryMerger struct {
	registry   *Registry
	resolver   ports.InstrumentResolver
	subscriber ports.Subscriber
}

// NewHistoryMerger creates a merger over registry.
func NewHistoryMerger(registry *Registry, resolver ports.InstrumentResolver, subscriber ports.Subscriber) *HistoryMerger {
	return &HistoryMerger{
		registry:   registry,
		resolver:   resolver,
		subscriber: subscriber,
	}
}

// Apply replaces the symbol's series with batch.Bars and, unless the entry is
// already live or degraded, resolves its instrument and subscribes exactly once.
//
// Batches for untracked symbols, batches from an earlier tracking session and
// empty batches change nothing. A resolution failure moves the entry to
// LiveDegraded for the rest of the session and is reported as
// ports.ErrUnresolvedInstrument after the bars have been applied.
func (m *HistoryMerger) Apply(ctx context.Context, batch HistoryBatch) error {
	entry, ok := m.registry.Entry(batch.Symbol)
	if !ok {
		return ports.ErrSymbolNotTracked
	}
	if batch.Session != uuid.Nil && batch.Session != entry.Session {
		return ports.ErrStaleHistoryBatch
	}
	if len(batch.Bars) == 0 {
		return ports.ErrEmptyHistoryBatch
	}

	bars := make([]domain.Bar, len(batch.Bars))
	copy(bars, batch.Bars)
	entry.Sink.Replace(batch.Symbol, bars)
	entry.HistoryReceived = true

	if entry.State == domain.LiveActive || entry.State == domain.LiveDegraded {
		return nil
	}

	instrument, ok := m.resolve(batch.Symbol)
	if !ok {
		entry.State = domain.LiveDegraded
		return fmt.Errorf("subscribe %s: %w", batch.Symbol, ports.ErrUnresolvedInstrument)
	}

	m.subscriber.Subscribe(ctx, instrument)
	entry.State = domain.LiveActive
	return nil
}

func (m *HistoryMerger) resolve(symbol string) (domain.Instrument, bool) {
	if m.resolver == nil {
		return domain.Instrument{}, false
	}
	return m.resolver.ResolveInstrument(symbol)
}
