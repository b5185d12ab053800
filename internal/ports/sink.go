package ports

import "chartWizard/internal/domain"

// BarSink receives bars for display. The chart core treats it as write-only.
type BarSink interface {
	// Replace swaps the whole series for symbol with bars.
	Replace(symbol string, bars []domain.Bar)
	// Upsert updates the latest bar for symbol, appending when it opens a new bucket.
	Upsert(symbol string, bar domain.Bar)
}

// SinkDetacher is implemented by sinks that want to know when a symbol stops being tracked.
type SinkDetacher interface {
	Detach(symbol string)
}

// MetricsRecorder receives counters from the chart core.
type MetricsRecorder interface {
	TickRouted(source domain.TickSource)
	TickDropped(reason string)
	BarClosed()
	HistoryBatch(outcome string)
	TrackedSymbols(n int)
}
