package coinex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantfarm/crossarb/internal/domain"
	"github.com/quantfarm/crossarb/internal/symbols"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// pingPeriod keeps the v2 socket alive; the server drops idle
	// connections after a minute.
	pingPeriod = 30 * time.Second
	// reconnectDelay is the pause before redialing after a drop.
	reconnectDelay = 2 * time.Second
)

// Feed streams best bid/ask updates for a set of markets into a QuoteCache,
// where the REST client overlays them over its per-cycle ticker snapshot
// while they stay fresh. The cache is never a fallback for a failed fetch.
type Feed struct {
	wsURL  string
	syms   []domain.Symbol
	norm   *symbols.Normalizer
	cache  domain.QuoteCache
	logger *slog.Logger
}

// NewFeed creates a feed subscribing to the given canonical symbols.
func NewFeed(wsURL string, syms []domain.Symbol, norm *symbols.Normalizer, cache domain.QuoteCache, logger *slog.Logger) *Feed {
	return &Feed{
		wsURL:  wsURL,
		syms:   syms,
		norm:   norm,
		cache:  cache,
		logger: logger.With(slog.String("component", "coinex_ws_feed")),
	}
}

// Run connects, subscribes, and processes updates until ctx is cancelled.
// Reconnects with a fixed delay on disconnect.
func (f *Feed) Run(ctx context.Context) error {
	if len(f.syms) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.runConnection(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("coinex ws disconnected, reconnecting",
				slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

type wsCommand struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
	ID     int            `json:"id"`
}

type wsMessage struct {
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data"`
}

type bboUpdate struct {
	Market       string `json:"market"`
	UpdatedAt    int64  `json:"updated_at"`
	BestBidPrice string `json:"best_bid_price"`
	BestAskPrice string `json:"best_ask_price"`
}

func (f *Feed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("coinex/ws: connect: %w", err)
	}
	defer conn.Close()

	markets := make([]string, 0, len(f.syms))
	bySymbol := make(map[string]domain.Symbol, len(f.syms))
	for _, s := range f.syms {
		market := s.Base + s.Quote
		if corr, ok := f.norm.CorrectionFor(venueName, s.Base); ok {
			market = corr.VenueBase + s.Quote
		}
		markets = append(markets, market)
		bySymbol[market] = s
	}

	sub := wsCommand{
		Method: "bbo.subscribe",
		Params: map[string]any{"market_list": markets},
		ID:     1,
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("coinex/ws: subscribe: %w", err)
	}
	f.logger.Info("coinex ws subscribed", slog.Int("markets", len(markets)))

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(wsCommand{Method: "server.ping", ID: 2}); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("coinex/ws: read: %w", err)
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Method != "bbo.update" {
			continue
		}
		var update bboUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			continue
		}

		sym, ok := bySymbol[update.Market]
		if !ok {
			continue
		}
		bid, errB := strconv.ParseFloat(update.BestBidPrice, 64)
		ask, errA := strconv.ParseFloat(update.BestAskPrice, 64)
		if errB != nil || errA != nil || bid <= 0 || ask <= 0 {
			continue
		}

		quote := f.norm.StandardizeQuote(venueName, sym, domain.Quote{Bid: bid, Ask: ask})
		if err := f.cache.SetQuote(ctx, venueName, sym, quote, time.UnixMilli(update.UpdatedAt)); err != nil {
			f.logger.Warn("quote cache write failed",
				slog.String("symbol", sym.String()),
				slog.String("error", err.Error()))
		}
	}
}
