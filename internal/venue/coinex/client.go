// Package coinex implements the venue client for the CoinEx exchange,
// plus a WebSocket feed for streaming top-of-book updates.
package coinex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quantfarm/crossarb/internal/crypto"
	"github.com/quantfarm/crossarb/internal/domain"
	"github.com/quantfarm/crossarb/internal/symbols"
)

const venueName = domain.Venue("coinex")

// Client is the REST client for CoinEx. Authenticated endpoints sign
// method+path+body+timestamp with HMAC-SHA256 per the v2 API.
type Client struct {
	baseURL     string
	auth        *crypto.HMACAuth
	norm        *symbols.Normalizer
	httpClient  *http.Client
	quotes      domain.QuoteCache
	maxQuoteAge time.Duration
}

// Config holds the client's connection parameters.
type Config struct {
	BaseURL   string // e.g. "https://api.coinex.com"
	APIKey    string
	APISecret string

	// Quotes, when set, holds streamed best bid/ask written by the
	// websocket Feed; top-of-book fetches prefer an entry younger than
	// QuoteMaxAge over the REST ticker snapshot.
	Quotes      domain.QuoteCache
	QuoteMaxAge time.Duration
}

// New creates a CoinEx client.
func New(cfg Config, norm *symbols.Normalizer) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		auth:        &crypto.HMACAuth{Key: cfg.APIKey, Secret: cfg.APISecret},
		norm:        norm,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		quotes:      cfg.Quotes,
		maxQuoteAge: cfg.QuoteMaxAge,
	}
}

// Name implements venue.Client.
func (c *Client) Name() domain.Venue { return venueName }

// parseMarket splits a native market name like "BTCUSDT" into base and
// quote. Non-USDT markets are not traded here.
func parseMarket(market string) (base, quote string, ok bool) {
	if strings.HasSuffix(market, domain.QuoteUSDT) {
		return strings.TrimSuffix(market, domain.QuoteUSDT), domain.QuoteUSDT, true
	}
	return "", "", false
}

// tickerEntry is one market in /v1/market/ticker/all. Buy is the best bid,
// Sell the best ask.
type tickerEntry struct {
	Buy  string `json:"buy"`
	Sell string `json:"sell"`
	Last string `json:"last"`
}

type tickerAllResponse struct {
	Code int `json:"code"`
	Data struct {
		Ticker map[string]tickerEntry `json:"ticker"`
	} `json:"data"`
	Message string `json:"message"`
}

// FetchTopOfBook implements venue.Client. nil symbols returns every USDT
// market. Markets missing a side fall back to the last trade price, the
// same degradation the ticker feed itself applies.
func (c *Client) FetchTopOfBook(ctx context.Context, syms []domain.Symbol) (domain.VenueQuotes, error) {
	var resp tickerAllResponse
	if err := c.getJSON(ctx, "/v1/market/ticker/all", &resp); err != nil {
		return nil, fmt.Errorf("coinex: tickers: %w", err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%w: coinex: code %d: %s", domain.ErrVenueUnavailable, resp.Code, resp.Message)
	}

	var want map[domain.Symbol]bool
	if syms != nil {
		want = make(map[domain.Symbol]bool, len(syms))
		for _, s := range syms {
			want[s] = true
		}
	}

	quotes := make(domain.VenueQuotes, len(resp.Data.Ticker))
	for market, tick := range resp.Data.Ticker {
		base, quote, ok := parseMarket(market)
		if !ok {
			continue
		}
		sym, factor, allowed := c.norm.Canonical(venueName, base, quote)
		if !allowed {
			continue
		}
		if want != nil && !want[sym] {
			continue
		}

		last, _ := strconv.ParseFloat(tick.Last, 64)
		bid, err := strconv.ParseFloat(tick.Buy, 64)
		if err != nil || bid <= 0 {
			bid = last
		}
		ask, err := strconv.ParseFloat(tick.Sell, 64)
		if err != nil || ask <= 0 {
			ask = last
		}
		if bid <= 0 || ask <= 0 {
			continue
		}

		quotes[sym] = domain.Quote{Bid: bid * factor, Ask: ask * factor}
	}
	c.overlayStreamed(ctx, quotes)
	return quotes, nil
}

// overlayStreamed replaces snapshot quotes with fresher streamed BBOs. The
// ticker endpoint aggregates with some delay; a websocket quote inside the
// freshness window is the truer top-of-book. A stale or missing entry
// leaves the snapshot quote untouched.
func (c *Client) overlayStreamed(ctx context.Context, quotes domain.VenueQuotes) {
	if c.quotes == nil || c.maxQuoteAge <= 0 {
		return
	}
	cutoff := time.Now().Add(-c.maxQuoteAge)
	for sym := range quotes {
		q, ts, err := c.quotes.GetQuote(ctx, venueName, sym)
		if err != nil || ts.Before(cutoff) || q.Bid <= 0 || q.Ask <= 0 {
			continue
		}
		quotes[sym] = q
	}
}

type depthResponse struct {
	Code int `json:"code"`
	Data struct {
		Asks [][2]string `json:"asks"`
		Bids [][2]string `json:"bids"`
		Time int64       `json:"time"`
	} `json:"data"`
	Message string `json:"message"`
}

// FetchOrderBook implements venue.Client.
func (c *Client) FetchOrderBook(ctx context.Context, sym domain.Symbol) (domain.OrderBook, error) {
	path := "/v1/market/depth?market=" + c.nativeMarket(sym) + "&merge=0&limit=50"

	var resp depthResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("coinex: depth %s: %w", sym, err)
	}
	if resp.Code != 0 {
		return domain.OrderBook{}, fmt.Errorf("coinex: depth %s: code %d: %s", sym, resp.Code, resp.Message)
	}

	book := domain.OrderBook{
		Venue:     venueName,
		Symbol:    sym,
		Asks:      parseLevels(resp.Data.Asks),
		Bids:      parseLevels(resp.Data.Bids),
		Timestamp: time.UnixMilli(resp.Data.Time),
	}
	return c.norm.StandardizeBook(venueName, book), nil
}

func parseLevels(raw [][2]string) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, errP := strconv.ParseFloat(pair[0], 64)
		size, errS := strconv.ParseFloat(pair[1], 64)
		if errP != nil || errS != nil {
			continue
		}
		levels = append(levels, domain.PriceLevel{Price: price, Size: size})
	}
	return levels
}

func (c *Client) nativeMarket(sym domain.Symbol) string {
	base := sym.Base
	if corr, ok := c.norm.CorrectionFor(venueName, sym.Base); ok {
		base = corr.VenueBase
	}
	return base + sym.Quote
}

type orderResponse struct {
	Code int `json:"code"`
	Data struct {
		OrderID     int64  `json:"order_id"`
		Status      string `json:"status"`
		FilledValue string `json:"filled_value"`
		FilledAmnt  string `json:"filled_amount"`
	} `json:"data"`
	Message string `json:"message"`
}

// PlaceOrder implements venue.Client using the signed v2 spot order
// endpoint.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	_, venueAmount, venuePrice := c.norm.ToVenueOrder(venueName, req.Symbol, req.Amount, req.Price)

	body := map[string]any{
		"market":      c.nativeMarket(req.Symbol),
		"market_type": "SPOT",
		"side":        string(req.Side),
		"type":        string(req.Type),
		"amount":      strconv.FormatFloat(venueAmount, 'f', -1, 64),
	}
	if req.Type == domain.OrderTypeLimit {
		body["price"] = strconv.FormatFloat(venuePrice, 'f', -1, 64)
	}

	var resp orderResponse
	if err := c.postSignedJSON(ctx, "/v2/spot/order", body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("coinex: place order: %w", err)
	}
	if resp.Code != 0 {
		return domain.OrderResult{}, fmt.Errorf("%w: coinex: code %d: %s", domain.ErrOrderRejected, resp.Code, resp.Message)
	}

	var avg float64
	value, errV := strconv.ParseFloat(resp.Data.FilledValue, 64)
	amount, errA := strconv.ParseFloat(resp.Data.FilledAmnt, 64)
	if errV == nil && errA == nil && amount > 0 {
		avg = value / amount
	}
	// A resting limit order is not a fill; only a done status or an
	// executed amount counts.
	filled := resp.Data.Status == "filled" || (errA == nil && amount > 0)
	return domain.OrderResult{
		OrderID:      strconv.FormatInt(resp.Data.OrderID, 10),
		Filled:       filled,
		AveragePrice: avg,
	}, nil
}

type marketInfoResponse struct {
	Code int `json:"code"`
	Data []struct {
		Market           string `json:"market"`
		BaseCcy          string `json:"base_ccy"`
		QuoteCcy         string `json:"quote_ccy"`
		BaseCcyPrecision int    `json:"base_ccy_precision"`
		QuoteCcyPrecsn   int    `json:"quote_ccy_precision"`
	} `json:"data"`
	Message string `json:"message"`
}

// Precisions implements venue.Client. Decimal counts from the market info
// endpoint become step sizes.
func (c *Client) Precisions(ctx context.Context) (map[domain.Symbol]domain.Precision, error) {
	var resp marketInfoResponse
	if err := c.getJSON(ctx, "/v2/spot/market", &resp); err != nil {
		return nil, fmt.Errorf("coinex: market info: %w", err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("coinex: market info: code %d: %s", resp.Code, resp.Message)
	}

	out := make(map[domain.Symbol]domain.Precision, len(resp.Data))
	for _, m := range resp.Data {
		if m.QuoteCcy != domain.QuoteUSDT {
			continue
		}
		sym, factor, allowed := c.norm.Canonical(venueName, m.BaseCcy, m.QuoteCcy)
		if !allowed {
			continue
		}
		out[sym] = domain.Precision{
			Price:  math.Pow(10, -float64(m.QuoteCcyPrecsn)) * factor,
			Amount: math.Pow(10, -float64(m.BaseCcyPrecision)) / factor,
		}
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrVenueUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrVenueUnavailable, resp.StatusCode, data)
	}
	return json.Unmarshal(data, out)
}

// postSignedJSON sends an authenticated POST. The signature covers
// method + path + body + timestamp.
func (c *Client) postSignedJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	ts := crypto.TimestampMillis()
	message := http.MethodPost + path + string(payload) + ts
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-COINEX-KEY", c.auth.Key)
	req.Header.Set("X-COINEX-SIGN", c.auth.SignHex(message))
	req.Header.Set("X-COINEX-TIMESTAMP", ts)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrVenueUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, data)
	}
	return json.Unmarshal(data, out)
}
