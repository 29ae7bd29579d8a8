// Package wallex implements the venue client for the Wallex exchange.
package wallex

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

	"github.com/quantfarm/crossarb/internal/domain"
	"github.com/quantfarm/crossarb/internal/symbols"
)

const venueName = domain.Venue("wallex")

// maxDepthLevels caps the levels taken from the depth snapshot; deeper
// levels never matter at the notionals traded here.
const maxDepthLevels = 24

// Client is the REST client for Wallex. Authenticated endpoints use the
// "x-api-key" header.
type Client struct {
	baseURL    string
	apiKey     string
	norm       *symbols.Normalizer
	httpClient *http.Client
}

// Config holds the client's connection parameters.
type Config struct {
	BaseURL string // e.g. "https://api.wallex.ir"
	APIKey  string
}

// New creates a Wallex client.
func New(cfg Config, norm *symbols.Normalizer) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		norm:       norm,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name implements venue.Client.
func (c *Client) Name() domain.Venue { return venueName }

// marketInfo is one symbol's entry in /v1/markets.
type marketInfo struct {
	BaseAsset      string  `json:"baseAsset"`
	QuoteAsset     string  `json:"quoteAsset"`
	MinQty         float64 `json:"minQty"`
	QuotePrecision int     `json:"quotePrecision"`
	Stats          struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	} `json:"stats"`
}

type marketsResponse struct {
	Result struct {
		Symbols map[string]marketInfo `json:"symbols"`
	} `json:"result"`
}

// FetchTopOfBook implements venue.Client. nil symbols returns every market.
func (c *Client) FetchTopOfBook(ctx context.Context, syms []domain.Symbol) (domain.VenueQuotes, error) {
	var resp marketsResponse
	if err := c.getJSON(ctx, c.baseURL+"/v1/markets", &resp); err != nil {
		return nil, fmt.Errorf("wallex: markets: %w", err)
	}

	var want map[domain.Symbol]bool
	if syms != nil {
		want = make(map[domain.Symbol]bool, len(syms))
		for _, s := range syms {
			want[s] = true
		}
	}

	quotes := make(domain.VenueQuotes, len(resp.Result.Symbols))
	for _, info := range resp.Result.Symbols {
		sym, factor, allowed := c.norm.Canonical(venueName, info.BaseAsset, info.QuoteAsset)
		if !allowed {
			continue
		}
		if want != nil && !want[sym] {
			continue
		}

		bid, errB := strconv.ParseFloat(info.Stats.BidPrice, 64)
		ask, errA := strconv.ParseFloat(info.Stats.AskPrice, 64)
		if errB != nil || errA != nil || bid <= 0 || ask <= 0 {
			continue
		}

		quotes[sym] = domain.Quote{Bid: bid * factor, Ask: ask * factor}
	}
	return quotes, nil
}

// depthEntry is one level in /v2/depth/all.
type depthEntry struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type depthResponse struct {
	Result map[string]struct {
		Ask []depthEntry `json:"ask"`
		Bid []depthEntry `json:"bid"`
	} `json:"result"`
}

// FetchOrderBook implements venue.Client. Wallex only exposes a bulk depth
// endpoint, so one market's book is picked out of the full snapshot.
func (c *Client) FetchOrderBook(ctx context.Context, sym domain.Symbol) (domain.OrderBook, error) {
	var resp depthResponse
	if err := c.getJSON(ctx, c.baseURL+"/v2/depth/all", &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("wallex: depth: %w", err)
	}

	native, ok := resp.Result[c.nativeMarket(sym)]
	if !ok {
		return domain.OrderBook{}, fmt.Errorf("wallex: %w: no depth for %s", domain.ErrNotFound, sym)
	}

	book := domain.OrderBook{
		Venue:     venueName,
		Symbol:    sym,
		Asks:      parseLevels(native.Ask),
		Bids:      parseLevels(native.Bid),
		Timestamp: time.Now(),
	}
	return c.norm.StandardizeBook(venueName, book), nil
}

func parseLevels(entries []depthEntry) []domain.PriceLevel {
	if len(entries) > maxDepthLevels {
		entries = entries[:maxDepthLevels]
	}
	levels := make([]domain.PriceLevel, 0, len(entries))
	for _, e := range entries {
		price, errP := strconv.ParseFloat(e.Price, 64)
		size, errS := strconv.ParseFloat(e.Quantity, 64)
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

// orderResponse is the /v1/account/orders answer.
type orderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Result  struct {
		ClientOrderID string `json:"clientOrderId"`
		Status        string `json:"status"`
		ExecutedPrice string `json:"executedPrice"`
		ExecutedQty   string `json:"executedQty"`
	} `json:"result"`
}

// PlaceOrder implements venue.Client.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	_, venueAmount, venuePrice := c.norm.ToVenueOrder(venueName, req.Symbol, req.Amount, req.Price)

	body := map[string]any{
		"symbol":   c.nativeMarket(req.Symbol),
		"type":     strings.ToUpper(string(req.Type)),
		"side":     strings.ToUpper(string(req.Side)),
		"quantity": strconv.FormatFloat(venueAmount, 'f', -1, 64),
	}
	if req.Type == domain.OrderTypeLimit {
		body["price"] = strconv.FormatFloat(venuePrice, 'f', -1, 64)
	}

	var resp orderResponse
	if err := c.postJSON(ctx, c.baseURL+"/v1/account/orders", body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("wallex: place order: %w", err)
	}
	if !resp.Success {
		return domain.OrderResult{}, fmt.Errorf("%w: wallex: %s", domain.ErrOrderRejected, resp.Message)
	}

	avg, _ := strconv.ParseFloat(resp.Result.ExecutedPrice, 64)
	// A resting limit order is not a fill; only a done status or an
	// executed quantity counts.
	qty, _ := strconv.ParseFloat(resp.Result.ExecutedQty, 64)
	return domain.OrderResult{
		OrderID:      resp.Result.ClientOrderID,
		Filled:       resp.Result.Status == "FILLED" || qty > 0,
		AveragePrice: avg,
	}, nil
}

// Precisions implements venue.Client. The amount step is the market's
// minQty and the price step derives from the quote precision.
func (c *Client) Precisions(ctx context.Context) (map[domain.Symbol]domain.Precision, error) {
	var resp marketsResponse
	if err := c.getJSON(ctx, c.baseURL+"/v1/markets", &resp); err != nil {
		return nil, fmt.Errorf("wallex: markets: %w", err)
	}

	out := make(map[domain.Symbol]domain.Precision, len(resp.Result.Symbols))
	for _, info := range resp.Result.Symbols {
		sym, factor, allowed := c.norm.Canonical(venueName, info.BaseAsset, info.QuoteAsset)
		if !allowed {
			continue
		}
		out[sym] = domain.Precision{
			Price:  math.Pow(10, -float64(info.QuotePrecision)) * factor,
			Amount: info.MinQty / factor,
		}
	}
	return out, nil
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
	req.Header.Set("x-api-key", c.apiKey)

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
