package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chartWizard/internal/domain"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"
)

// serveFunc opens one websocket connection and returns its lifecycle channels.
type serveFunc func() (doneC, stopC chan struct{}, err error)

// StreamTicks streams live ticks for instrument. Trade prices come from the
// aggregate trade stream; bid/ask come from the book ticker stream.
// Both connections are re-established with exponential backoff until ctx is
// cancelled, stopCh is signalled, or the reconnect budget is exhausted.
func (c *Client) StreamTicks(ctx context.Context, instrument domain.Instrument, handler func(tick domain.Tick), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamTicks"
	if instrument.Symbol == "" {
		return nil, nil, fmt.Errorf("%s: instrument symbol is empty", op)
	}
	wsCtx, cancelWs := context.WithCancel(ctx)
	quotes := &quoteCache{}
	symbol := instrument.Symbol

	// Wrapper for the error handler to perform translation and logging
	binanceErrHandler := func(err error) {
		translatedErr := c.handleError(wsCtx, err, op+" WebSocket")
		c.logger.Warn(wsCtx, op+": WebSocket error reported", map[string]interface{}{"symbol": symbol, "error": translatedErr.Error()})
		if errHandler != nil {
			errHandler(translatedErr)
		}
	}

	bookHandler := func(event *futures.WsBookTickerEvent) {
		if err := quotes.update(event); err != nil {
			c.logger.Debug(wsCtx, op+": Failed to translate book ticker event", map[string]interface{}{"symbol": symbol, "error": err.Error()})
		}
	}
	tradeHandler := func(event *futures.WsAggTradeEvent) {
		tick, err := quotes.tick(event, instrument)
		if err != nil {
			c.logger.Error(wsCtx, err, op+": Failed to translate aggregate trade event", map[string]interface{}{"symbol": symbol})
			return
		}
		handler(tick)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.serveWithReconnect(wsCtx, op+" bookTicker", symbol, func() (chan struct{}, chan struct{}, error) {
			return futures.WsBookTickerServe(symbol, bookHandler, binanceErrHandler)
		})
	}()
	go func() {
		defer wg.Done()
		c.serveWithReconnect(wsCtx, op+" aggTrade", symbol, func() (chan struct{}, chan struct{}, error) {
			return futures.WsAggTradeServe(symbol, tradeHandler, binanceErrHandler)
		})
	}()

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	// Link the external stopCh to the internal context cancellation
	go func() {
		select {
		case <-stopCh:
			c.logger.Info(ctx, op+": Received external stop signal, cancelling WebSocket context.", map[string]interface{}{"symbol": symbol})
			cancelWs()
		case <-wsCtx.Done():
		}
	}()

	// Close the external doneCh once both connection loops have exited
	go func() {
		wg.Wait()
		cancelWs()
		c.logger.Info(ctx, op+": WebSocket streams closed.", map[string]interface{}{"symbol": symbol})
		close(doneCh)
	}()

	return doneCh, stopCh, nil
}

// serveWithReconnect keeps one websocket stream alive until ctx is done or
// maxReconnectAttempts consecutive attempts fail. A connection that drops
// before stableConnection has elapsed counts as a failed attempt.
func (c *Client) serveWithReconnect(ctx context.Context, op, symbol string, serve serveFunc) {
	b := &backoff.Backoff{
		Min:    c.reconnectDelay,
		Max:    c.maxReconnectDelay,
		Factor: 2,
		Jitter: true,
	}
	fields := func(extra map[string]interface{}) map[string]interface{} {
		f := map[string]interface{}{"symbol": symbol}
		for k, v := range extra {
			f[k] = v
		}
		return f
	}
	// retry waits out the next backoff step; false means stop.
	retry := func(cause error, msg string) bool {
		if int(b.Attempt())+1 >= c.maxReconnectAttempts {
			c.logger.Error(ctx, cause, op+": Max reconnection attempts exceeded, giving up.", fields(map[string]interface{}{"maxAttempts": c.maxReconnectAttempts}))
			return false
		}
		delay := b.Duration()
		c.logger.Info(ctx, op+": "+msg, fields(map[string]interface{}{"attempt": int(b.Attempt()), "delay": delay.String()}))
		select {
		case <-time.After(delay):
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		if ctx.Err() != nil {
			c.logger.Info(ctx, op+": Context cancelled, stopping connection attempts.", fields(nil))
			return
		}

		c.logger.Debug(ctx, op+": Attempting WebSocket connection...", fields(map[string]interface{}{"attempt": int(b.Attempt()) + 1}))
		innerDoneCh, innerStopCh, connectErr := serve()
		if connectErr != nil {
			c.handleError(ctx, connectErr, op+" connection attempt")
			if !retry(connectErr, "Connection failed, retrying...") {
				return
			}
			continue
		}

		c.logger.Info(ctx, op+": WebSocket connection established.", fields(nil))
		connectedAt := time.Now()

		select {
		case <-innerDoneCh:
			uptime := time.Since(connectedAt)
			if uptime >= c.stableConnection {
				b.Reset()
			}
			c.logger.Warn(ctx, op+": WebSocket connection closed unexpectedly.", fields(map[string]interface{}{"uptime": uptime.String()}))
			if !retry(errors.New("websocket connection closed"), "Reconnecting...") {
				return
			}
		case <-ctx.Done():
			select {
			case innerStopCh <- struct{}{}:
				c.logger.Debug(ctx, op+": Stop signal sent to inner WebSocket.", fields(nil))
			default:
				c.logger.Debug(ctx, op+": Inner WebSocket already stopping.", fields(nil))
			}
			return
		}
	}
}

// quoteCache holds the latest top of book for one symbol.
type quoteCache struct {
	mu        sync.Mutex
	bidPrice  decimal.Decimal
	askPrice  decimal.Decimal
	bidVolume int64
	askVolume int64
}

func (q *quoteCache) update(event *futures.WsBookTickerEvent) error {
	if event == nil {
		return errors.New("received nil book ticker event")
	}
	bid, err := decimal.NewFromString(event.BestBidPrice)
	if err != nil {
		return fmt.Errorf("parsing bid price '%s': %w", event.BestBidPrice, err)
	}
	ask, err := decimal.NewFromString(event.BestAskPrice)
	if err != nil {
		return fmt.Errorf("parsing ask price '%s': %w", event.BestAskPrice, err)
	}
	bidQty, err := decimal.NewFromString(event.BestBidQty)
	if err != nil {
		return fmt.Errorf("parsing bid qty '%s': %w", event.BestBidQty, err)
	}
	askQty, err := decimal.NewFromString(event.BestAskQty)
	if err != nil {
		return fmt.Errorf("parsing ask qty '%s': %w", event.BestAskQty, err)
	}

	q.mu.Lock()
	q.bidPrice, q.askPrice = bid, ask
	q.bidVolume, q.askVolume = bidQty.IntPart(), askQty.IntPart()
	q.mu.Unlock()
	return nil
}

func (q *quoteCache) tick(event *futures.WsAggTradeEvent, instrument domain.Instrument) (domain.Tick, error) {
	if event == nil {
		return domain.Tick{}, errors.New("received nil aggregate trade event")
	}
	price, err := decimal.NewFromString(event.Price)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parsing trade price '%s': %w", event.Price, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return domain.Tick{
		Symbol:    instrument.Key(),
		Timestamp: time.UnixMilli(event.TradeTime).UTC(),
		LastPrice: price,
		BidPrice:  q.bidPrice,
		AskPrice:  q.askPrice,
		BidVolume: q.bidVolume,
		AskVolume: q.askVolume,
		Source:    domain.SourceExchange,
		Gateway:   instrument.Gateway,
	}, nil
}
