package chart

import (
	"github.com/shopspring/decimal"

	"chartWizard/internal/domain"
)

var two = decimal.NewFromInt(2)

// NormalizeSpread builds a canonical tick for a synthetic spread instrument.
// The tick is priced at the mid of the quote's bid and ask.
func NormalizeSpread(q domain.SpreadQuote) domain.Tick {
	return domain.Tick{
		Symbol:    domain.SymbolKey(q.Name, domain.ExchangeLocal),
		Timestamp: q.Timestamp,
		LastPrice: q.BidPrice.Add(q.AskPrice).Div(two),
		BidPrice:  q.BidPrice,
		AskPrice:  q.AskPrice,
		BidVolume: q.BidVolume,
		AskVolume: q.AskVolume,
		Source:    domain.SourceSynthetic,
		Gateway:   domain.SpreadGateway,
	}
}
