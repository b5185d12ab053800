package chart

import "chartWizard/internal/domain"

// Drop reasons and history outcomes reported to ports.MetricsRecorder.
const (
	DropUnknownSymbol = "unknown_symbol"
	DropOutOfOrder    = "out_of_order"

	HistoryApplied   = "applied"
	HistoryEmpty     = "empty"
	HistoryStale     = "stale"
	HistoryUntracked = "untracked"
	HistoryDegraded  = "degraded"
)

type noopMetrics struct{}

func (noopMetrics) TickRouted(domain.TickSource) {}
func (noopMetrics) TickDropped(string)           {}
func (noopMetrics) BarClosed()                   {}
func (noopMetrics) HistoryBatch(string)          {}
func (noopMetrics) TrackedSymbols(int)           {}
