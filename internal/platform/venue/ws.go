package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

type subscribeMessage struct {
	Op      string   `json:"op"`
	Channel string   `json:"channel"`
	Pairs   []string `json:"pairs"`
}

type tickerMessage struct {
	Type  string `json:"type"`
	Pair  string `json:"pair"`
	Price string `json:"price"`
	TS    int64  `json:"ts"`
}

// Feed streams ticker prices from the venue websocket into the price cache so
// that GetPrice rarely needs a REST round trip. It reconnects with exponential
// backoff and resubscribes after every reconnect; it only returns when the
// context is cancelled.
type Feed struct {
	url    string
	pairs  []string
	cache  domain.PriceCache
	logger *slog.Logger
}

// NewFeed creates a Feed subscribing to the given pairs.
func NewFeed(wsURL string, pairs []string, cache domain.PriceCache, logger *slog.Logger) *Feed {
	return &Feed{
		url:    wsURL,
		pairs:  pairs,
		cache:  cache,
		logger: logger.With(slog.String("component", "venue_feed")),
	}
}

// Run connects and consumes ticker messages until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		start := time.Now()
		err := f.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A session that survived past the backoff ceiling counts as healthy;
		// start the backoff ladder over.
		if time.Since(start) > maxReconnectDelay {
			delay = reconnectDelay
		}
		f.logger.Warn("ticker stream disconnected",
			slog.Any("error", err),
			slog.Duration("retry_in", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// session runs one websocket connection: dial, subscribe, then read tickers
// until the connection breaks or ctx is cancelled.
func (f *Feed) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("venue: dial %s: %w", f.url, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	sub := subscribeMessage{Op: "subscribe", Channel: "ticker", Pairs: f.pairs}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("venue: subscribe: %w", err)
	}
	f.logger.Info("ticker stream connected", slog.Int("pairs", len(f.pairs)))

	// The reader only unblocks on read errors, so cancellation and keepalive
	// both work by closing or writing to the connection from the side.
	done := make(chan struct{})
	defer close(done)
	go f.keepalive(ctx, conn, done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("venue: read ticker: %w", err)
		}
		f.handleMessage(ctx, raw)
	}
}

func (f *Feed) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (f *Feed) handleMessage(ctx context.Context, raw []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		f.logger.Warn("malformed ticker message", slog.Any("error", err))
		return
	}
	if msg.Type != "ticker" || msg.Pair == "" || msg.Price == "" {
		return
	}

	ts := time.UnixMilli(msg.TS).UTC()
	if msg.TS == 0 {
		ts = time.Now().UTC()
	}
	if err := f.cache.SetPrice(ctx, msg.Pair, msg.Price, ts); err != nil {
		f.logger.Warn("price cache write failed",
			slog.String("pair", msg.Pair),
			slog.Any("error", err))
	}
}
