package ports

import (
	"context"

	"chartWizard/internal/domain"
)

// InstrumentResolver looks up instrument metadata for a symbol key.
// Implementations must not block; the chart core calls it from its event loop.
type InstrumentResolver interface {
	ResolveInstrument(symbol string) (domain.Instrument, bool)
}

// Subscriber starts live tick delivery for an instrument. Fire-and-forget.
type Subscriber interface {
	Subscribe(ctx context.Context, instrument domain.Instrument)
}

// Unsubscriber stops live tick delivery started by Subscribe.
// Subscribers that hold no per-instrument resources need not implement it.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, instrument domain.Instrument)
}

// HistoryRequester registers intent to load history for a symbol.
// Results arrive later as a history batch event; the call itself must not block.
type HistoryRequester interface {
	RequestHistory(ctx context.Context, req domain.HistoryRequest)
}

// BarHistorySource fetches historical bars synchronously.
type BarHistorySource interface {
	FetchBars(ctx context.Context, req domain.HistoryRequest) ([]domain.Bar, error)
}

// TickStreamer streams live ticks for one instrument until ctx is done or stopCh is signalled.
type TickStreamer interface {
	StreamTicks(ctx context.Context, instrument domain.Instrument, handler func(tick domain.Tick), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}

// InstrumentSource lists the instruments an exchange currently offers.
type InstrumentSource interface {
	ListInstruments(ctx context.Context) ([]domain.Instrument, error)
}
