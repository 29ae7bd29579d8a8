// Package nobitex implements the venue client for the Nobitex exchange.
// Nobitex quotes IRT pairs in rials; the client divides by ten and reports
// them as TMN, and inverts that when placing orders.
package nobitex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quantfarm/crossarb/internal/domain"
	"github.com/quantfarm/crossarb/internal/symbols"
)

const venueName = domain.Venue("nobitex")

// irtPerTMN converts between rial prices on the wire and toman internally.
const irtPerTMN = 10

// Client is the REST client for Nobitex. Authenticated endpoints use the
// token scheme ("Authorization: Token <token>").
type Client struct {
	baseURL    string
	optionsURL string
	token      string
	norm       *symbols.Normalizer
	httpClient *http.Client
}

// Config holds the client's connection parameters.
type Config struct {
	BaseURL    string // e.g. "https://api.nobitex.ir"
	OptionsURL string // precisions endpoint root; defaults to BaseURL
	Token      string
}

// New creates a Nobitex client.
func New(cfg Config, norm *symbols.Normalizer) *Client {
	optionsURL := cfg.OptionsURL
	if optionsURL == "" {
		optionsURL = cfg.BaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		optionsURL: strings.TrimRight(optionsURL, "/"),
		token:      cfg.Token,
		norm:       norm,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name implements venue.Client.
func (c *Client) Name() domain.Venue { return venueName }

// bookPayload is one market's entry in the orderbook responses. Levels are
// [price, amount] string pairs, best first.
type bookPayload struct {
	LastUpdate int64       `json:"lastUpdate"`
	Bids       [][2]string `json:"bids"`
	Asks       [][2]string `json:"asks"`
}

// parseMarket splits a native market name like "BTCIRT" or "SHIBUSDT" into
// base and quote, mapping IRT to TMN. The returned factor divides prices.
func parseMarket(market string) (base, quote string, priceDiv float64, ok bool) {
	switch {
	case strings.HasSuffix(market, "IRT"):
		return strings.TrimSuffix(market, "IRT"), domain.QuoteTMN, irtPerTMN, true
	case strings.HasSuffix(market, "USDT"):
		return strings.TrimSuffix(market, "USDT"), domain.QuoteUSDT, 1, true
	}
	return "", "", 0, false
}

// FetchTopOfBook implements venue.Client. nil symbols returns every market.
func (c *Client) FetchTopOfBook(ctx context.Context, syms []domain.Symbol) (domain.VenueQuotes, error) {
	books, err := c.fetchAllBooks(ctx)
	if err != nil {
		return nil, err
	}

	var want map[domain.Symbol]bool
	if syms != nil {
		want = make(map[domain.Symbol]bool, len(syms))
		for _, s := range syms {
			want[s] = true
		}
	}

	quotes := make(domain.VenueQuotes, len(books))
	for market, book := range books {
		base, quote, priceDiv, ok := parseMarket(market)
		if !ok || len(book.Bids) == 0 || len(book.Asks) == 0 {
			continue
		}

		sym, factor, allowed := c.norm.Canonical(venueName, base, quote)
		if !allowed {
			continue
		}
		if want != nil && !want[sym] {
			continue
		}

		bid, errB := strconv.ParseFloat(book.Bids[0][0], 64)
		ask, errA := strconv.ParseFloat(book.Asks[0][0], 64)
		if errB != nil || errA != nil {
			continue
		}

		quotes[sym] = domain.Quote{
			Bid: bid / priceDiv * factor,
			Ask: ask / priceDiv * factor,
		}
	}
	return quotes, nil
}

// FetchOrderBook implements venue.Client.
func (c *Client) FetchOrderBook(ctx context.Context, sym domain.Symbol) (domain.OrderBook, error) {
	market, priceDiv := c.nativeMarket(sym)

	var payload bookPayload
	if err := c.getJSON(ctx, c.baseURL+"/v3/orderbook/"+market, &payload); err != nil {
		return domain.OrderBook{}, fmt.Errorf("nobitex: order book %s: %w", sym, err)
	}

	book := domain.OrderBook{
		Venue:     venueName,
		Symbol:    sym,
		Asks:      parseLevels(payload.Asks, priceDiv),
		Bids:      parseLevels(payload.Bids, priceDiv),
		Timestamp: time.UnixMilli(payload.LastUpdate),
	}
	return c.norm.StandardizeBook(venueName, book), nil
}

func parseLevels(raw [][2]string, priceDiv float64) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, errP := strconv.ParseFloat(pair[0], 64)
		size, errS := strconv.ParseFloat(pair[1], 64)
		if errP != nil || errS != nil {
			continue
		}
		levels = append(levels, domain.PriceLevel{Price: price / priceDiv, Size: size})
	}
	return levels
}

// nativeMarket maps a canonical symbol back to the venue's market name and
// returns the rial price divisor for that market.
func (c *Client) nativeMarket(sym domain.Symbol) (market string, priceDiv float64) {
	base := sym.Base
	if corr, ok := c.norm.CorrectionFor(venueName, sym.Base); ok {
		base = corr.VenueBase
	}
	if sym.Quote == domain.QuoteTMN {
		return base + "IRT", irtPerTMN
	}
	return base + sym.Quote, 1
}

// orderResponse is the market/orders/add answer.
type orderResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Order   struct {
		ID            int64  `json:"id"`
		Status        string `json:"status"`
		Price         string `json:"price"`
		MatchedAmount string `json:"matchedAmount"`
	} `json:"order"`
}

// PlaceOrder implements venue.Client. Canonical amounts and prices are
// converted to venue units, and TMN prices back to rials.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	venueBase, venueAmount, venuePrice := c.norm.ToVenueOrder(venueName, req.Symbol, req.Amount, req.Price)

	dstCurrency := strings.ToLower(req.Symbol.Quote)
	if req.Symbol.Quote == domain.QuoteTMN {
		dstCurrency = "rls"
		venuePrice *= irtPerTMN
	}

	body := map[string]any{
		"type":        string(req.Side),
		"execution":   string(req.Type),
		"srcCurrency": strings.ToLower(venueBase),
		"dstCurrency": dstCurrency,
		"amount":      strconv.FormatFloat(venueAmount, 'f', -1, 64),
	}
	if req.Type == domain.OrderTypeLimit {
		body["price"] = strconv.FormatFloat(venuePrice, 'f', -1, 64)
	}

	var resp orderResponse
	if err := c.postJSON(ctx, c.baseURL+"/market/orders/add", body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("nobitex: place order: %w", err)
	}
	if resp.Status != "ok" {
		return domain.OrderResult{}, fmt.Errorf("%w: nobitex: %s", domain.ErrOrderRejected, resp.Message)
	}

	avg, _ := strconv.ParseFloat(resp.Order.Price, 64)
	if req.Symbol.Quote == domain.QuoteTMN {
		avg /= irtPerTMN
	}
	// A resting limit order is not a fill; only a done status or a matched
	// amount counts.
	matched, _ := strconv.ParseFloat(resp.Order.MatchedAmount, 64)
	return domain.OrderResult{
		OrderID:      strconv.FormatInt(resp.Order.ID, 10),
		Filled:       resp.Order.Status == "Done" || matched > 0,
		AveragePrice: avg,
	}, nil
}

// optionsResponse carries the precision tables from /v2/options.
type optionsResponse struct {
	Nobitex struct {
		AmountPrecisions map[string]string `json:"amountPrecisions"`
		PricePrecisions  map[string]string `json:"pricePrecisions"`
	} `json:"nobitex"`
}

// Precisions implements venue.Client. Steps for rescaled coins are
// converted to canonical units.
func (c *Client) Precisions(ctx context.Context) (map[domain.Symbol]domain.Precision, error) {
	var resp optionsResponse
	if err := c.getJSON(ctx, c.optionsURL+"/v2/options", &resp); err != nil {
		return nil, fmt.Errorf("nobitex: options: %w", err)
	}

	out := make(map[domain.Symbol]domain.Precision)
	for market, raw := range resp.Nobitex.AmountPrecisions {
		base, quote, _, ok := parseMarket(market)
		if !ok {
			continue
		}
		sym, factor, allowed := c.norm.Canonical(venueName, base, quote)
		if !allowed {
			continue
		}
		step, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		p := out[sym]
		// One venue unit is 1/factor canonical units.
		p.Amount = step / factor
		out[sym] = p
	}
	for market, raw := range resp.Nobitex.PricePrecisions {
		base, quote, priceDiv, ok := parseMarket(market)
		if !ok {
			continue
		}
		sym, factor, allowed := c.norm.Canonical(venueName, base, quote)
		if !allowed {
			continue
		}
		step, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		p := out[sym]
		p.Price = step / priceDiv * factor
		out[sym] = p
	}
	return out, nil
}

func (c *Client) fetchAllBooks(ctx context.Context) (map[string]bookPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v3/orderbook/all", nil)
	if err != nil {
		return nil, fmt.Errorf("nobitex: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: nobitex: %v", domain.ErrVenueUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("nobitex: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: nobitex: HTTP %d: %s", domain.ErrVenueUnavailable, resp.StatusCode, data)
	}

	// The payload is a flat object of market entries plus a "status" field,
	// so decode into raw messages first.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("nobitex: decode order books: %w", err)
	}
	delete(raw, "status")

	books := make(map[string]bookPayload, len(raw))
	for market, msg := range raw {
		var book bookPayload
		if err := json.Unmarshal(msg, &book); err != nil {
			continue
		}
		books[market] = book
	}
	return books, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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

func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
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
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, data)
	}
	return json.Unmarshal(data, out)
}
