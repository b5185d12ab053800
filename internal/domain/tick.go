package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TickSource identifies where a tick originated.
type TickSource string

const (
	SourceExchange  TickSource = "EXCHANGE"
	SourceSynthetic TickSource = "SYNTHETIC"
)

// Tick is a single point-in-time price update for an instrument.
// Ticks are passed by value and never modified after construction.
type Tick struct {
	Symbol    string // Symbol key
	Timestamp time.Time
	LastPrice decimal.Decimal
	BidPrice  decimal.Decimal
	AskPrice  decimal.Decimal
	BidVolume int64
	AskVolume int64
	Source    TickSource
	Gateway   string // Gateway that produced the tick (e.g. "BINANCE", "SPREAD")
}

// SpreadQuote is a computed quote for a synthetic multi-leg instrument.
type SpreadQuote struct {
	Name      string
	Timestamp time.Time
	BidPrice  decimal.Decimal
	AskPrice  decimal.Decimal
	BidVolume int64
	AskVolume int64
}
