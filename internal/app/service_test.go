package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartWizard/internal/chart"
	"chartWizard/internal/domain"
	"chartWizard/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockSink struct {
	mu       sync.Mutex
	replaced map[string][]domain.Bar
	upserts  map[string][]domain.Bar
}

func newMockSink() *mockSink {
	return &mockSink{replaced: make(map[string][]domain.Bar), upserts: make(map[string][]domain.Bar)}
}

func (m *mockSink) Replace(symbol string, bars []domain.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaced[symbol] = bars
}

func (m *mockSink) Upsert(symbol string, bar domain.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts[symbol] = append(m.upserts[symbol], bar)
}

func (m *mockSink) replacedCount(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replaced[symbol])
}

func (m *mockSink) upsertCount(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.upserts[symbol])
}

func (m *mockSink) lastUpsert(symbol string) domain.Bar {
	m.mu.Lock()
	defer m.mu.Unlock()
	ups := m.upserts[symbol]
	return ups[len(ups)-1]
}

type mockResolver struct {
	instruments map[string]domain.Instrument
}

func newMockResolver(symbols ...string) *mockResolver {
	r := &mockResolver{instruments: make(map[string]domain.Instrument)}
	for _, s := range symbols {
		name, exchange, _ := domain.ParseSymbolKey(s)
		r.instruments[s] = domain.Instrument{Symbol: name, Exchange: exchange, Gateway: string(exchange)}
	}
	return r
}

func (m *mockResolver) ResolveInstrument(symbol string) (domain.Instrument, bool) {
	inst, ok := m.instruments[symbol]
	return inst, ok
}

type mockHistorySource struct {
	mu       sync.Mutex
	bars     []domain.Bar
	err      error
	requests []domain.HistoryRequest
}

func (m *mockHistorySource) FetchBars(ctx context.Context, req domain.HistoryRequest) ([]domain.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.Bar, len(m.bars))
	for i, b := range m.bars {
		b.Symbol = req.Symbol
		out[i] = b
	}
	return out, nil
}

func (m *mockHistorySource) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type mockStream struct {
	instrument domain.Instrument
	handler    func(domain.Tick)
	doneCh     chan struct{}
	stopCh     chan struct{}
}

func (s *mockStream) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

type mockStreamer struct {
	mu      sync.Mutex
	streams []*mockStream
	err     error
}

func (m *mockStreamer) StreamTicks(ctx context.Context, instrument domain.Instrument, handler func(tick domain.Tick), errHandler func(err error)) (chan struct{}, chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, nil, m.err
	}
	s := &mockStream{instrument: instrument, handler: handler, doneCh: make(chan struct{}), stopCh: make(chan struct{})}
	m.streams = append(m.streams, s)
	return s.doneCh, s.stopCh, nil
}

func (m *mockStreamer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

func (m *mockStreamer) stream(i int) *mockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[i]
}

type mockMetrics struct {
	mu            sync.Mutex
	fetchFailures int
	subscriptions int
	outcomes      map[string]int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{outcomes: make(map[string]int)}
}

func (m *mockMetrics) TickRouted(domain.TickSource) {}
func (m *mockMetrics) TickDropped(string)           {}
func (m *mockMetrics) BarClosed()                   {}
func (m *mockMetrics) TrackedSymbols(int)           {}
func (m *mockMetrics) HistoryBatch(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}
func (m *mockMetrics) HistoryFetchFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchFailures++
}
func (m *mockMetrics) SubscriptionStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions++
}
func (m *mockMetrics) snapshot() (fetchFailures, subscriptions int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchFailures, m.subscriptions
}

// --- Fixture ---

var historyStart = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

func historyBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		p := decimal.NewFromInt(int64(100 + i))
		bars[i] = domain.Bar{
			BucketStart: historyStart.Add(time.Duration(i) * time.Minute),
			Interval:    time.Minute,
			Open:        p, High: p, Low: p, Close: p,
			Volume: 10,
			Final:  true,
		}
	}
	return bars
}

type serviceFixture struct {
	svc      *ChartService
	sink     *mockSink
	history  *mockHistorySource
	streamer *mockStreamer
	metrics  *mockMetrics
	logger   *mockLogger
}

func newServiceFixture(t *testing.T, symbols []string, resolvable ...string) serviceFixture {
	t.Helper()
	f := serviceFixture{
		sink:     newMockSink(),
		history:  &mockHistorySource{bars: historyBars(3)},
		streamer: &mockStreamer{},
		metrics:  newMockMetrics(),
		logger:   &mockLogger{},
	}
	svc, err := NewChartService(ServiceConfig{
		Symbols:       symbols,
		Interval:      time.Minute,
		Lookback:      time.Hour,
		QueueSize:     64,
		Sink:          f.sink,
		Resolver:      newMockResolver(resolvable...),
		HistorySource: f.history,
		Streamer:      f.streamer,
		Logger:        f.logger,
		Metrics:       f.metrics,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

// start runs the service until the test ends.
func (f serviceFixture) start(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.svc.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("service did not stop")
		}
	})
	return ctx
}

const waitFor = 2 * time.Second
const tickEvery = 5 * time.Millisecond

// --- Tests ---

func TestNewChartService_MissingDependencies(t *testing.T) {
	_, err := NewChartService(ServiceConfig{Logger: &mockLogger{}})
	assert.Error(t, err)
}

func TestChartService_HistoryThenLive(t *testing.T) {
	const sym = "BTCUSDT.BINANCE"
	f := newServiceFixture(t, []string{sym}, sym)
	ctx := f.start(t)

	require.Eventually(t, func() bool { return f.sink.replacedCount(sym) == 3 }, waitFor, tickEvery)
	require.Eventually(t, func() bool { return f.streamer.count() == 1 }, waitFor, tickEvery)

	stream := f.streamer.stream(0)
	assert.Equal(t, sym, stream.instrument.Key())

	ts := time.Now().UTC()
	stream.handler(domain.Tick{Symbol: sym, Timestamp: ts, LastPrice: decimal.NewFromInt(105), Source: domain.SourceExchange})
	require.Eventually(t, func() bool { return f.sink.upsertCount(sym) == 1 }, waitFor, tickEvery)

	bar := f.sink.lastUpsert(sym)
	assert.True(t, decimal.NewFromInt(105).Equal(bar.Close))
	assert.Equal(t, int64(1), bar.Volume)

	symbols, err := f.svc.TrackedSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{sym}, symbols)

	_, subs := f.metrics.snapshot()
	assert.Equal(t, 1, subs)
}

func TestChartService_HistoryFetchFailure(t *testing.T) {
	const sym = "BTCUSDT.BINANCE"
	f := newServiceFixture(t, []string{sym}, sym)
	f.history.err = errors.New("exchange down")
	ctx := f.start(t)

	require.Eventually(t, func() bool {
		failures, _ := f.metrics.snapshot()
		return failures == 1
	}, waitFor, tickEvery)

	// The symbol stays tracked but never goes live
	symbols, err := f.svc.TrackedSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{sym}, symbols)
	assert.Equal(t, 0, f.streamer.count())
	assert.Equal(t, 0, f.sink.replacedCount(sym))
}

func TestChartService_UnresolvedConfiguredSymbol(t *testing.T) {
	f := newServiceFixture(t, []string{"NOPE.BINANCE", "BTCUSDT.BINANCE"}, "BTCUSDT.BINANCE")
	ctx := f.start(t)

	require.Eventually(t, func() bool { return f.streamer.count() == 1 }, waitFor, tickEvery)
	symbols, err := f.svc.TrackedSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT.BINANCE"}, symbols)
}

func TestChartService_SyntheticSpread(t *testing.T) {
	const sym = "BTC-ETH.LOCAL"
	f := newServiceFixture(t, nil)
	ctx := f.start(t)

	require.NoError(t, f.svc.BeginTracking(ctx, sym))
	assert.ErrorIs(t, f.svc.BeginTracking(ctx, sym), ports.ErrAlreadyTracked)

	ts := time.Now().UTC()
	require.NoError(t, f.svc.PublishSpread(ctx, domain.SpreadQuote{
		Name:      "BTC-ETH",
		Timestamp: ts,
		BidPrice:  decimal.NewFromInt(10),
		AskPrice:  decimal.NewFromInt(12),
	}))

	require.Eventually(t, func() bool { return f.sink.upsertCount(sym) == 1 }, waitFor, tickEvery)
	assert.True(t, decimal.NewFromInt(11).Equal(f.sink.lastUpsert(sym).Close))
	assert.Equal(t, 0, f.history.requestCount(), "synthetic symbols have no history source")
}

func TestChartService_StopTracking(t *testing.T) {
	const sym = "BTCUSDT.BINANCE"
	f := newServiceFixture(t, []string{sym}, sym)
	ctx := f.start(t)

	require.Eventually(t, func() bool { return f.streamer.count() == 1 }, waitFor, tickEvery)
	require.False(t, f.streamer.stream(0).stopped())
	require.NoError(t, f.svc.StopTracking(ctx, sym))
	require.NoError(t, f.svc.StopTracking(ctx, sym), "untracking twice is a no-op")

	symbols, err := f.svc.TrackedSymbols(ctx)
	require.NoError(t, err)
	assert.Empty(t, symbols)
	assert.True(t, f.streamer.stream(0).stopped(), "untracking closes the live stream")
	assert.Equal(t, 0, f.svc.feed.active())

	f.streamer.stream(0).handler(domain.Tick{Symbol: sym, Timestamp: time.Now(), LastPrice: decimal.NewFromInt(1)})
	_, err = f.svc.TrackedSymbols(ctx) // barrier: the tick above has been processed
	require.NoError(t, err)
	assert.Equal(t, 0, f.sink.upsertCount(sym))
}

func TestChartService_UntrackReleasesStreams(t *testing.T) {
	symbols := []string{"A.BINANCE", "B.BINANCE", "C.BINANCE"}
	f := newServiceFixture(t, nil, symbols...)
	ctx := f.start(t)

	for i, sym := range symbols {
		require.NoError(t, f.svc.BeginTracking(ctx, sym))
		require.Eventually(t, func() bool { return f.streamer.count() == i+1 }, waitFor, tickEvery)
		require.NoError(t, f.svc.StopTracking(ctx, sym))
	}

	tracked, err := f.svc.TrackedSymbols(ctx)
	require.NoError(t, err)
	assert.Empty(t, tracked)
	assert.Equal(t, 0, f.svc.feed.active())
	for i := range symbols {
		assert.True(t, f.streamer.stream(i).stopped(), symbols[i])
	}

	// Tracking again opens a fresh stream
	require.NoError(t, f.svc.BeginTracking(ctx, "A.BINANCE"))
	require.Eventually(t, func() bool { return f.streamer.count() == 4 }, waitFor, tickEvery)
	assert.False(t, f.streamer.stream(3).stopped())
}

// --- Feed unit tests ---

type recordingPoster struct {
	mu     sync.Mutex
	events []chart.Event
	err    error
}

func (p *recordingPoster) Post(ctx context.Context, ev chart.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPoster) posted() []chart.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]chart.Event(nil), p.events...)
}

func TestLiveFeed_OneStreamPerInstrument(t *testing.T) {
	streamer := &mockStreamer{}
	poster := &recordingPoster{}
	metrics := newMockMetrics()
	feed := &liveFeed{streamer: streamer, router: poster, logger: &mockLogger{}, metrics: metrics, streams: make(map[string]chan struct{})}

	inst := domain.Instrument{Symbol: "BTCUSDT", Exchange: domain.ExchangeBinance, Gateway: "BINANCE"}
	ctx := context.Background()
	feed.Subscribe(ctx, inst)
	feed.Subscribe(ctx, inst)
	assert.Equal(t, 1, streamer.count())
	assert.Equal(t, 1, feed.active())

	tick := domain.Tick{Symbol: inst.Key(), Timestamp: time.Now(), LastPrice: decimal.NewFromInt(1)}
	streamer.stream(0).handler(tick)
	events := poster.posted()
	require.Len(t, events, 1)
	assert.Equal(t, chart.TickUpdate{Tick: tick}, events[0])

	// A finished stream can be started again
	close(streamer.stream(0).doneCh)
	require.Eventually(t, func() bool { return feed.active() == 0 }, waitFor, tickEvery)
	feed.Subscribe(ctx, inst)
	assert.Equal(t, 2, streamer.count())

	_, subs := metrics.snapshot()
	assert.Equal(t, 2, subs)
}

func TestLiveFeed_Unsubscribe(t *testing.T) {
	streamer := &mockStreamer{}
	feed := &liveFeed{streamer: streamer, router: &recordingPoster{}, logger: &mockLogger{}, metrics: newMockMetrics(), streams: make(map[string]chan struct{})}
	inst := domain.Instrument{Symbol: "BTCUSDT", Exchange: domain.ExchangeBinance, Gateway: "BINANCE"}
	ctx := context.Background()

	feed.Unsubscribe(ctx, inst) // nothing running
	feed.Subscribe(ctx, inst)
	feed.Unsubscribe(ctx, inst)
	feed.Unsubscribe(ctx, inst)

	assert.True(t, streamer.stream(0).stopped())
	assert.Equal(t, 0, feed.active())

	// The old stream finishing must not drop a newer one
	feed.Subscribe(ctx, inst)
	close(streamer.stream(0).doneCh)
	assert.Never(t, func() bool { return feed.active() == 0 }, 50*time.Millisecond, tickEvery)
}

func TestLiveFeed_StreamError(t *testing.T) {
	logger := &mockLogger{}
	feed := &liveFeed{streamer: &mockStreamer{err: errors.New("no route")}, router: &recordingPoster{}, logger: logger, metrics: newMockMetrics(), streams: make(map[string]chan struct{})}

	feed.Subscribe(context.Background(), domain.Instrument{Symbol: "BTCUSDT", Exchange: domain.ExchangeBinance})
	assert.Equal(t, 0, feed.active())
	assert.Len(t, logger.errorMsgs, 1)
}

func TestHistoryFetcher_PostsBatchWithSession(t *testing.T) {
	poster := &recordingPoster{}
	source := &mockHistorySource{bars: historyBars(2)}
	fetcher := &historyFetcher{source: source, router: poster, logger: &mockLogger{}, metrics: newMockMetrics()}

	req := domain.HistoryRequest{Symbol: "BTCUSDT.BINANCE", Interval: time.Minute, Start: historyStart, End: historyStart.Add(time.Hour)}
	fetcher.RequestHistory(context.Background(), req)
	fetcher.wait()

	events := poster.posted()
	require.Len(t, events, 1)
	batch, ok := events[0].(chart.HistoryBatch)
	require.True(t, ok)
	assert.Equal(t, req.Symbol, batch.Symbol)
	assert.Equal(t, req.Session, batch.Session)
	assert.Len(t, batch.Bars, 2)
}

func TestHistoryFetcher_CancelledFetchIsSilent(t *testing.T) {
	poster := &recordingPoster{}
	metrics := newMockMetrics()
	source := &mockHistorySource{err: context.Canceled}
	fetcher := &historyFetcher{source: source, router: poster, logger: &mockLogger{}, metrics: metrics}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetcher.RequestHistory(ctx, domain.HistoryRequest{Symbol: "BTCUSDT.BINANCE", Interval: time.Minute})
	fetcher.wait()

	assert.Empty(t, poster.posted())
	failures, _ := metrics.snapshot()
	assert.Equal(t, 0, failures)
}
