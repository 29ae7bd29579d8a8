// Package engine runs the per-cycle decision loop: fetch quotes, scan,
// cost the shortlist with VWAPs, open the best opportunity and monitor
// open positions for exit. It also owns the position lifecycle state
// machine.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/quantfarm/crossarb/internal/domain"
	"github.com/quantfarm/crossarb/internal/notify"
	"github.com/quantfarm/crossarb/internal/pricing"
	"github.com/quantfarm/crossarb/internal/scanner"
)

// Run modes. Scan only reports, monitor only closes, trade does both.
const (
	ModeTrade   = "trade"
	ModeScan    = "scan"
	ModeMonitor = "monitor"
)

// Params are the engine's read-only decision parameters.
type Params struct {
	Venues    []domain.Venue
	TMNNative map[domain.Venue]bool

	MinMarginPercent      float64
	MaxMarginPercent      float64
	CloseMinMarginPercent float64
	StopLossPercent       float64
	TradeNotionalUSDT     float64

	ReferenceVenue  domain.Venue
	FetchTimeout    time.Duration
	LegMaxRetries   int
	LegRetryDelay   time.Duration
	OrderTypeOnOpen domain.OrderType
	Mode            string
}

// usdtTMN is the reference symbol quoting the conversion rate.
var usdtTMN = domain.Symbol{Base: domain.QuoteUSDT, Quote: domain.QuoteTMN}

// Engine wires one cycle's pipeline together.
type Engine struct {
	gateway   *tmnGateway
	store     domain.PositionStore
	scanner   *scanner.Scanner
	calc      *pricing.Calculator
	lifecycle *Lifecycle
	params    Params
	logger    *slog.Logger
}

// New creates an Engine over the given collaborators. A nil alerts notifier
// disables operator alerting.
func New(gateway domain.Gateway, store domain.PositionStore, sc *scanner.Scanner, calc *pricing.Calculator, esc Escalator, alerts *notify.Notifier, params Params, logger *slog.Logger) *Engine {
	tg := newTMNGateway(gateway, params.TMNNative)
	return &Engine{
		gateway: tg,
		store:   store,
		scanner: sc,
		calc:    calc,
		lifecycle: NewLifecycle(tg, store, esc, alerts,
			params.LegMaxRetries, params.LegRetryDelay, params.OrderTypeOnOpen, logger),
		params: params,
		logger: logger.With(slog.String("component", "engine")),
	}
}

// Cycle runs one full decision pass. Per-venue and per-symbol failures are
// logged and skipped; only store failures that block the whole pass return
// an error.
func (e *Engine) Cycle(ctx context.Context) error {
	quotes := e.fetchQuotes(ctx)
	if len(quotes) == 0 {
		e.logger.Warn("no venue answered this cycle")
		return nil
	}

	rate := e.usdtRate(quotes)
	e.gateway.SetRate(rate)
	if rate > 0 {
		e.synthesizeTMN(quotes, rate)
	}

	opps := e.scanner.Find(ctx, quotes)

	positions, err := e.store.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("engine: list open positions: %w", err)
	}

	vwaps := e.costBooks(ctx, e.opportunityBooks(opps, rate))

	finals := e.finalReturns(opps, vwaps, rate)
	e.logger.Info("cycle priced",
		slog.Int("venues", len(quotes)),
		slog.Int("opportunities", len(opps)),
		slog.Int("final_returns", len(finals)),
		slog.Int("open_positions", len(positions)),
		slog.Float64("usdt_rate", rate),
	)

	if e.params.Mode != ModeScan {
		e.monitor(ctx, positions, rate)
	}

	if e.params.Mode == ModeTrade {
		e.openBest(ctx, finals, positions)
	} else if len(finals) > 0 {
		best := finals[0]
		e.logger.Info("best opportunity (not trading)",
			slog.String("symbol", best.Opportunity.Symbol.String()),
			slog.String("buy_venue", string(best.Opportunity.BuyVenue)),
			slog.String("sell_venue", string(best.Opportunity.SellVenue)),
			slog.Float64("selected_return", best.SelectedReturnPercentage),
		)
	}
	return nil
}

// fetchQuotes asks every venue for its full top-of-book concurrently. A
// venue that fails or times out is absent from the result; it never
// participates as zero liquidity.
func (e *Engine) fetchQuotes(ctx context.Context) domain.QuoteSet {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		quotes = make(domain.QuoteSet, len(e.params.Venues))
	)
	for _, venue := range e.params.Venues {
		wg.Add(1)
		go func(venue domain.Venue) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, e.params.FetchTimeout)
			defer cancel()

			vq, err := e.gateway.FetchTopOfBook(fetchCtx, venue, nil)
			if err != nil {
				e.logger.Warn("top-of-book fetch failed",
					slog.String("venue", string(venue)),
					slog.String("error", err.Error()),
				)
				return
			}
			mu.Lock()
			quotes[venue] = vq
			mu.Unlock()
		}(venue)
	}
	wg.Wait()
	return quotes
}

// usdtRate floors the reference venue's USDT/TMN midpoint. Zero when the
// reference quote is unavailable this cycle.
func (e *Engine) usdtRate(quotes domain.QuoteSet) float64 {
	q, ok := quotes[e.params.ReferenceVenue][usdtTMN]
	if !ok {
		return 0
	}
	return math.Floor(q.Mid())
}

// synthesizeTMN derives BASE/TMN quotes from BASE/USDT ones on venues
// without native TMN markets, so those venues join TMN comparisons.
// Derived quotes are computed once and immutable for the cycle.
func (e *Engine) synthesizeTMN(quotes domain.QuoteSet, rate float64) {
	for venue, vq := range quotes {
		if e.params.TMNNative[venue] {
			continue
		}
		for sym, q := range vq {
			if sym.Quote != domain.QuoteUSDT || sym.Base == domain.QuoteUSDT {
				continue
			}
			synth := sym.WithQuote(domain.QuoteTMN)
			if _, exists := vq[synth]; exists {
				continue
			}
			vq[synth] = domain.Quote{Bid: q.Bid * rate, Ask: q.Ask * rate}
		}
	}
}

// bookKey identifies one depth fetch.
type bookKey struct {
	venue domain.Venue
	sym   domain.Symbol
}

// opportunityBooks collects both legs of every shortlisted opportunity,
// deduplicated, each mapped to its costing notional.
func (e *Engine) opportunityBooks(opps []domain.Opportunity, rate float64) map[bookKey]float64 {
	needed := make(map[bookKey]float64, 2*len(opps))
	for _, o := range opps {
		notional := e.notionalFor(o.Symbol, rate)
		needed[bookKey{o.BuyVenue, o.Symbol}] = notional
		needed[bookKey{o.SellVenue, o.Symbol}] = notional
	}
	return needed
}

// notionalFor sizes the costing target in the symbol's quote currency.
func (e *Engine) notionalFor(sym domain.Symbol, rate float64) float64 {
	if sym.Quote == domain.QuoteTMN {
		return e.params.TradeNotionalUSDT * rate
	}
	return e.params.TradeNotionalUSDT
}

// costBooks fetches the needed depth snapshots concurrently and costs
// each for its target notional. Failed fetches are skipped; the affected
// opportunity or position simply drops out of this cycle.
func (e *Engine) costBooks(ctx context.Context, targets map[bookKey]float64) pricing.VWAPSet {
	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		vwaps = make(pricing.VWAPSet)
	)
	for key, notional := range targets {
		if notional <= 0 {
			continue
		}
		wg.Add(1)
		go func(key bookKey, notional float64) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, e.params.FetchTimeout)
			defer cancel()

			book, err := e.gateway.FetchOrderBook(fetchCtx, key.venue, key.sym)
			if err != nil {
				e.logger.Debug("order book fetch failed",
					slog.String("venue", string(key.venue)),
					slog.String("symbol", key.sym.String()),
					slog.String("error", err.Error()),
				)
				return
			}
			result := pricing.Cost(book, notional)

			mu.Lock()
			if vwaps[key.venue] == nil {
				vwaps[key.venue] = make(map[domain.Symbol]pricing.Result)
			}
			vwaps[key.venue][key.sym] = result
			mu.Unlock()
		}(key, notional)
	}
	wg.Wait()
	return vwaps
}

// finalReturns prices every opportunity, keeps the ones whose selected
// return sits inside [min, max], and sorts descending. Returns above the
// max are discarded as bad data rather than traded.
func (e *Engine) finalReturns(opps []domain.Opportunity, vwaps pricing.VWAPSet, rate float64) []domain.FinalReturn {
	finals := make([]domain.FinalReturn, 0, len(opps))
	for _, opp := range opps {
		fr, ok := e.calc.FinalReturn(opp, vwaps, e.notionalFor(opp.Symbol, rate), rate)
		if !ok {
			continue
		}
		if fr.SelectedReturnPercentage < e.params.MinMarginPercent {
			continue
		}
		if fr.SelectedReturnPercentage > e.params.MaxMarginPercent {
			e.logger.Warn("return above sanity cap, discarding",
				slog.String("symbol", opp.Symbol.String()),
				slog.Float64("selected_return", fr.SelectedReturnPercentage),
			)
			continue
		}
		finals = append(finals, fr)
	}
	sort.SliceStable(finals, func(i, j int) bool {
		return finals[i].SelectedReturnPercentage > finals[j].SelectedReturnPercentage
	})
	return finals
}

// shouldClose applies the exit bounds to a recomputed close return.
func (e *Engine) shouldClose(selectedReturn float64) bool {
	if selectedReturn >= e.params.CloseMinMarginPercent {
		return true
	}
	if e.params.StopLossPercent < 0 && selectedReturn <= e.params.StopLossPercent {
		return true
	}
	return false
}

// monitor re-prices every open position with reverse legs and closes the
// ones whose selected return clears an exit bound. Positions close
// concurrently; each close only touches its own two venues.
func (e *Engine) monitor(ctx context.Context, positions []domain.Position, rate float64) {
	if len(positions) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, pos := range positions {
		wg.Add(1)
		go func(pos domain.Position) {
			defer wg.Done()

			// Exit pricing targets the position's own notional, not the
			// configured trade size.
			notional := pos.Amount * pos.EntryBuyPrice
			vwaps := e.costBooks(ctx, map[bookKey]float64{
				{pos.BuyVenue, pos.Symbol}:  notional,
				{pos.SellVenue, pos.Symbol}: notional,
			})

			fr, ok := e.calc.CloseReturn(pos, vwaps, notional, rate)
			if !ok {
				e.logger.Debug("close repricing unavailable",
					slog.String("id", pos.ID),
					slog.String("symbol", pos.Symbol.String()),
				)
				return
			}

			e.logger.Info("position monitored",
				slog.String("id", pos.ID),
				slog.String("symbol", pos.Symbol.String()),
				slog.Float64("selected_return", fr.SelectedReturnPercentage),
			)

			if !e.shouldClose(fr.SelectedReturnPercentage) {
				return
			}
			if err := e.lifecycle.Close(ctx, pos, fr); err != nil {
				e.logger.Error("close failed",
					slog.String("id", pos.ID),
					slog.String("error", err.Error()),
				)
			}
		}(pos)
	}
	wg.Wait()
}

// openBest opens the single best-ranked return, skipping symbols already
// held so the book never doubles up on one instrument.
func (e *Engine) openBest(ctx context.Context, finals []domain.FinalReturn, positions []domain.Position) {
	held := make(map[domain.Symbol]bool, len(positions))
	for _, p := range positions {
		held[p.Symbol] = true
	}

	for _, fr := range finals {
		if held[fr.Opportunity.Symbol] {
			continue
		}
		if _, err := e.lifecycle.Open(ctx, fr); err != nil {
			e.logger.Error("open failed",
				slog.String("symbol", fr.Opportunity.Symbol.String()),
				slog.String("error", err.Error()),
			)
		}
		return
	}
}
