package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultInterval is the bar width used when none is configured.
const DefaultInterval = time.Minute

// Bar represents a single OHLCV bucket for a symbol.
type Bar struct {
	Symbol      string          // Symbol key (e.g. "BTCUSDT.BINANCE")
	BucketStart time.Time       // Start of the bucket, floored to Interval
	Interval    time.Duration   // Bucket width
	Open        decimal.Decimal // Opening price
	High        decimal.Decimal // Highest price
	Low         decimal.Decimal // Lowest price
	Close       decimal.Decimal // Closing price
	Volume      int64           // Ticks (live) or trades (history) in the bucket
	Final       bool            // Whether the bucket has rolled over
}

// BucketEnd returns the exclusive end of the bar's bucket.
func (b Bar) BucketEnd() time.Time {
	return b.BucketStart.Add(b.Interval)
}

// FloorToInterval truncates ts to the start of its bucket.
// A non-positive interval falls back to DefaultInterval.
func FloorToInterval(ts time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return ts.Truncate(interval)
}
