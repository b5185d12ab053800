package chart

import (
	"github.com/google/uuid"

	"chartWizard/internal/domain"
	"chartWizard/internal/ports"
)

// Event is a message accepted by the router's mailbox.
type Event interface {
	kind() string
}

// TickUpdate carries a raw exchange tick.
type TickUpdate struct {
	Tick domain.Tick
}

// SpreadQuoteUpdate carries a quote for a synthetic spread instrument.
type SpreadQuoteUpdate struct {
	Quote domain.SpreadQuote
}

// HistoryBatch carries the result of a history request.
type HistoryBatch struct {
	Symbol  string
	Session uuid.UUID // Session of the originating request; uuid.Nil skips the session check
	Bars    []domain.Bar
}

type trackRequest struct {
	symbol string
	sink   ports.BarSink
	reply  chan error
}

type untrackRequest struct {
	symbol string
	reply  chan error
}

type symbolsQuery struct {
	reply chan []string
}

func (TickUpdate) kind() string        { return "tick" }
func (SpreadQuoteUpdate) kind() string { return "spread_quote" }
func (HistoryBatch) kind() string      { return "history" }
func (trackRequest) kind() string      { return "track" }
func (untrackRequest) kind() string    { return "untrack" }
func (symbolsQuery) kind() string      { return "symbols" }
