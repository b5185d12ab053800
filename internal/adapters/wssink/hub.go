// Package wssink exposes chart bars to websocket clients. The Hub is a
// ports.BarSink: every Replace/Upsert/Detach from the chart core is kept in
// a per-symbol series and broadcast to connected clients as JSON.
package wssink

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"chartWizard/internal/domain"
	"chartWizard/internal/ports"
)

const (
	MessageReplace = "replace"
	MessageUpsert  = "upsert"
	MessageDetach  = "detach"

	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	readLimit    = 512
	sendBuffer   = 256
	defaultLimit = 10000
)

// BarMessage is the wire form of a bar. Prices are decimal strings.
type BarMessage struct {
	Time     int64           `json:"time"` // Bucket start, unix seconds
	Interval int64           `json:"interval"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   int64           `json:"volume"`
	Final    bool            `json:"final"`
}

// Message is a single frame sent to clients.
type Message struct {
	Type   string       `json:"type"`
	Symbol string       `json:"symbol"`
	Bars   []BarMessage `json:"bars,omitempty"`
	Bar    *BarMessage  `json:"bar,omitempty"`
}

func toBarMessage(b domain.Bar) BarMessage {
	return BarMessage{
		Time:     b.BucketStart.Unix(),
		Interval: int64(b.Interval / time.Second),
		Open:     b.Open,
		High:     b.High,
		Low:      b.Low,
		Close:    b.Close,
		Volume:   b.Volume,
		Final:    b.Final,
	}
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	symbols map[string]struct{} // Empty means every symbol
	hub     *Hub
}

func (c *client) wants(symbol string) bool {
	if len(c.symbols) == 0 {
		return true
	}
	_, ok := c.symbols[symbol]
	return ok
}

// Hub fans bar updates out to websocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	series  map[string][]domain.Bar
	maxBars int
	closed  bool

	upgrader websocket.Upgrader
	logger   ports.Logger
}

// NewHub creates a hub that keeps at most maxBars bars per symbol.
func NewHub(maxBars int, logger ports.Logger) *Hub {
	if maxBars <= 0 {
		maxBars = defaultLimit
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		series:  make(map[string][]domain.Bar),
		maxBars: maxBars,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Replace swaps the stored series for symbol and pushes it to clients.
func (h *Hub) Replace(symbol string, bars []domain.Bar) {
	stored := make([]domain.Bar, len(bars))
	copy(stored, bars)
	if len(stored) > h.maxBars {
		stored = stored[len(stored)-h.maxBars:]
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.series[symbol] = stored
	h.broadcastLocked(symbol, replaceMessage(symbol, stored))
}

// Upsert updates the bar sharing bar's bucket, or appends when bar opens a new one.
func (h *Hub) Upsert(symbol string, bar domain.Bar) {
	h.mu.Lock()
	defer h.mu.Unlock()

	series := h.series[symbol]
	switch n := len(series); {
	case n == 0 || bar.BucketStart.After(series[n-1].BucketStart):
		series = append(series, bar)
		if len(series) > h.maxBars {
			series = series[len(series)-h.maxBars:]
		}
	default:
		i := sort.Search(n, func(i int) bool { return !series[i].BucketStart.Before(bar.BucketStart) })
		if i == n || !series[i].BucketStart.Equal(bar.BucketStart) {
			h.logger.Debug(context.Background(), "Ignoring bar older than stored series", map[string]interface{}{"symbol": symbol, "bucket": bar.BucketStart})
			return
		}
		series[i] = bar
	}
	h.series[symbol] = series

	msg := toBarMessage(bar)
	h.broadcastLocked(symbol, Message{Type: MessageUpsert, Symbol: symbol, Bar: &msg})
}

// Detach forgets symbol and tells clients it is no longer charted.
func (h *Hub) Detach(symbol string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.series, symbol)
	h.broadcastLocked(symbol, Message{Type: MessageDetach, Symbol: symbol})
}

// Bars returns a copy of the stored series for symbol.
func (h *Hub) Bars(symbol string) []domain.Bar {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.Bar, len(h.series[symbol]))
	copy(out, h.series[symbol])
	return out
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams bar updates to the new client.
// The optional "symbols" query parameter is a comma-separated filter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	c := &client{conn: conn, symbols: parseSymbols(r.URL.Query().Get("symbols")), hub: h}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		conn.Close()
		return
	}
	c.send = make(chan []byte, sendBuffer+len(h.series))
	// Snapshot is queued under the lock so no broadcast can slip ahead of it
	symbols := make([]string, 0, len(h.series))
	for symbol := range h.series {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		if !c.wants(symbol) {
			continue
		}
		if data, err := json.Marshal(replaceMessage(symbol, h.series[symbol])); err == nil {
			c.send <- data
		}
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug(r.Context(), "WebSocket client connected", map[string]interface{}{"remote": r.RemoteAddr, "clients": total})

	go c.writePump()
	go c.readPump()
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.logger.Info(context.Background(), "WebSocket hub closed")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// broadcastLocked must be called with h.mu held. Clients whose buffer is
// full are disconnected rather than allowed to block the chart core.
func (h *Hub) broadcastLocked(symbol string, msg Message) {
	if len(h.clients) == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(context.Background(), err, "Failed to encode bar message", map[string]interface{}{"symbol": symbol, "type": msg.Type})
		return
	}
	for c := range h.clients {
		if !c.wants(symbol) {
			continue
		}
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
			h.logger.Warn(context.Background(), "Dropping slow WebSocket client", map[string]interface{}{"remote": c.conn.RemoteAddr().String()})
		}
	}
}

func replaceMessage(symbol string, bars []domain.Bar) Message {
	msgs := make([]BarMessage, len(bars))
	for i, b := range bars {
		msgs[i] = toBarMessage(b)
	}
	return Message{Type: MessageReplace, Symbol: symbol, Bars: msgs}
}

func parseSymbols(raw string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

// readPump only services control frames; clients do not send data.
func (c *client) readPump() {
	defer func() { c.hub.unregister(c); c.conn.Close() }()
	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends queued frames and heartbeats to the client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() { ticker.Stop(); c.conn.Close() }()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
