package chart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"chartWizard/internal/domain"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// sinkCall records one call made to mockSink.
type sinkCall struct {
	op     string // "replace", "upsert" or "detach"
	symbol string
	bars   []domain.Bar
}

type mockSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (m *mockSink) Replace(symbol string, bars []domain.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sinkCall{op: "replace", symbol: symbol, bars: bars})
}

func (m *mockSink) Upsert(symbol string, bar domain.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sinkCall{op: "upsert", symbol: symbol, bars: []domain.Bar{bar}})
}

func (m *mockSink) Detach(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sinkCall{op: "detach", symbol: symbol})
}

func (m *mockSink) snapshot() []sinkCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sinkCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *mockSink) ops() []string {
	var ops []string
	for _, c := range m.snapshot() {
		ops = append(ops, c.op)
	}
	return ops
}

type mockResolver struct {
	instruments map[string]domain.Instrument
}

func newMockResolver(keys ...string) *mockResolver {
	r := &mockResolver{instruments: make(map[string]domain.Instrument)}
	for _, key := range keys {
		symbol, exchange, _ := domain.ParseSymbolKey(key)
		r.instruments[key] = domain.Instrument{Symbol: symbol, Exchange: exchange, Gateway: string(exchange)}
	}
	return r
}

func (m *mockResolver) ResolveInstrument(symbol string) (domain.Instrument, bool) {
	inst, ok := m.instruments[symbol]
	return inst, ok
}

type mockSubscriber struct {
	mu           sync.Mutex
	calls        []domain.Instrument
	unsubscribed []domain.Instrument
}

func (m *mockSubscriber) Unsubscribe(ctx context.Context, instrument domain.Instrument) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribed = append(m.unsubscribed, instrument)
}

func (m *mockSubscriber) unsubscribedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for _, inst := range m.unsubscribed {
		keys = append(keys, inst.Key())
	}
	return keys
}

func (m *mockSubscriber) Subscribe(ctx context.Context, instrument domain.Instrument) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, instrument)
}

func (m *mockSubscriber) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockHistory struct {
	mu       sync.Mutex
	requests []domain.HistoryRequest
}

func (m *mockHistory) RequestHistory(ctx context.Context, req domain.HistoryRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
}

func (m *mockHistory) last() (domain.HistoryRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return domain.HistoryRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

type mockMetrics struct {
	mu      sync.Mutex
	routed  map[domain.TickSource]int
	dropped map[string]int
	closed  int
	history map[string]int
	tracked int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{
		routed:  make(map[domain.TickSource]int),
		dropped: make(map[string]int),
		history: make(map[string]int),
	}
}

func (m *mockMetrics) TickRouted(source domain.TickSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routed[source]++
}

func (m *mockMetrics) TickDropped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[reason]++
}

func (m *mockMetrics) BarClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
}

func (m *mockMetrics) HistoryBatch(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[outcome]++
}

func (m *mockMetrics) TrackedSymbols(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked = n
}

// at returns 2024-03-01 at the given wall-clock time in UTC.
func at(hour, min, sec int) time.Time {
	return time.Date(2024, 3, 1, hour, min, sec, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func tickAt(symbol string, ts time.Time, price string) domain.Tick {
	p := dec(price)
	return domain.Tick{
		Symbol:    symbol,
		Timestamp: ts,
		LastPrice: p,
		BidPrice:  p,
		AskPrice:  p,
		Source:    domain.SourceExchange,
	}
}

func assertBar(t *testing.T, bar domain.Bar, bucket time.Time, open, high, low, cls string, volume int64) {
	t.Helper()
	assert.True(t, bucket.Equal(bar.BucketStart), "bucket: want %s, got %s", bucket, bar.BucketStart)
	assert.True(t, dec(open).Equal(bar.Open), "open: want %s, got %s", open, bar.Open)
	assert.True(t, dec(high).Equal(bar.High), "high: want %s, got %s", high, bar.High)
	assert.True(t, dec(low).Equal(bar.Low), "low: want %s, got %s", low, bar.Low)
	assert.True(t, dec(cls).Equal(bar.Close), "close: want %s, got %s", cls, bar.Close)
	assert.Equal(t, volume, bar.Volume)
}
