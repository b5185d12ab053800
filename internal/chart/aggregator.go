package chart

import (
	"time"

	"github.com/shopspring/decimal"

	"chartWizard/internal/domain"
	"chartWizard/internal/ports"
)

// Aggregator folds the ticks of one symbol into fixed-width bars.
// It is not safe for concurrent use; the router owns every instance.
type Aggregator struct {
	symbol       string
	interval     time.Duration
	current      *domain.Bar
	lastTickTime time.Time
	emit         func(bar domain.Bar)
}

// NewAggregator creates an aggregator that reports every bar change to emit.
func NewAggregator(symbol string, interval time.Duration, emit func(bar domain.Bar)) *Aggregator {
	if interval <= 0 {
		interval = domain.DefaultInterval
	}
	if emit == nil {
		emit = func(domain.Bar) {}
	}
	return &Aggregator{
		symbol:   symbol,
		interval: interval,
		emit:     emit,
	}
}

// Update applies tick and returns the bar in progress afterwards.
//
// A tick in a later bucket closes the current bar (emitted with Final set) and opens
// a new one. A tick older than the bar in progress, or older than the last accepted
// tick, is dropped with ports.ErrOutOfOrderTick and changes nothing.
// Every accepted tick emits a copy of the bar in progress.
func (a *Aggregator) Update(tick domain.Tick) (domain.Bar, error) {
	bucket := domain.FloorToInterval(tick.Timestamp, a.interval)

	if a.current != nil {
		if bucket.Before(a.current.BucketStart) || tick.Timestamp.Before(a.lastTickTime) {
			return *a.current, ports.ErrOutOfOrderTick
		}
	}

	if a.current == nil || bucket.After(a.current.BucketStart) {
		if a.current != nil {
			closed := *a.current
			closed.Final = true
			a.emit(closed)
		}
		a.current = &domain.Bar{
			Symbol:      a.symbol,
			BucketStart: bucket,
			Interval:    a.interval,
			Open:        tick.LastPrice,
			High:        tick.LastPrice,
			Low:         tick.LastPrice,
			Close:       tick.LastPrice,
			Volume:      1,
		}
	} else {
		a.current.High = decimal.Max(a.current.High, tick.LastPrice)
		a.current.Low = decimal.Min(a.current.Low, tick.LastPrice)
		a.current.Close = tick.LastPrice
		a.current.Volume++
	}

	a.lastTickTime = tick.Timestamp
	bar := *a.current
	a.emit(bar)
	return bar, nil
}

// Current returns the bar in progress, if any.
func (a *Aggregator) Current() (domain.Bar, bool) {
	if a.current == nil {
		return domain.Bar{}, false
	}
	return *a.current, true
}

// LastTickTime returns the timestamp of the last accepted tick.
func (a *Aggregator) LastTickTime() time.Time {
	return a.lastTickTime
}

// Symbol returns the symbol key the aggregator belongs to.
func (a *Aggregator) Symbol() string {
	return a.symbol
}
