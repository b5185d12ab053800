package domain

import (
	"fmt"
	"strings"
	"time"
)

// Exchange names the venue namespace of a symbol key.
type Exchange string

const (
	ExchangeBinance Exchange = "BINANCE"
	ExchangeLocal   Exchange = "LOCAL" // Synthetic instruments computed in-process
)

const (
	// SyntheticMarker marks symbol keys that need no instrument lookup to be tracked.
	SyntheticMarker = string(ExchangeLocal)
	// SpreadGateway is the gateway name stamped on normalized spread ticks.
	SpreadGateway = "SPREAD"
)

// Instrument describes a tradable instrument as reported by its exchange.
type Instrument struct {
	Symbol            string   // Exchange-native symbol (e.g. "BTCUSDT")
	Exchange          Exchange // Venue namespace
	Gateway           string   // Gateway used to subscribe to live data
	BaseAsset         string
	QuoteAsset        string
	PricePrecision    int
	QuantityPrecision int
	Status            string // Exchange trading status (e.g. "TRADING")
	UpdatedAt         time.Time
}

// Key returns the symbol key used throughout the chart core.
func (i Instrument) Key() string {
	return SymbolKey(i.Symbol, i.Exchange)
}

// SymbolKey joins an exchange-native symbol and its exchange.
func SymbolKey(symbol string, exchange Exchange) string {
	return symbol + "." + string(exchange)
}

// ParseSymbolKey splits a symbol key at its last dot.
func ParseSymbolKey(key string) (string, Exchange, error) {
	idx := strings.LastIndex(key, ".")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", fmt.Errorf("invalid symbol key %q: expected <symbol>.<exchange>", key)
	}
	return key[:idx], Exchange(key[idx+1:]), nil
}

// IsSynthetic reports whether key carries the synthetic-namespace marker.
func IsSynthetic(key string) bool {
	return strings.Contains(key, SyntheticMarker)
}
