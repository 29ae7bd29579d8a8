package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantfarm/crossarb/internal/domain"
	"github.com/quantfarm/crossarb/internal/engine"
	"github.com/quantfarm/crossarb/internal/pricing"
	"github.com/quantfarm/crossarb/internal/scanner"
	"github.com/quantfarm/crossarb/internal/venue/coinex"
)

// TradeMode runs the full decision loop: scan, open the best opportunity,
// and monitor open positions for exit. Leg failures that exhaust their
// retries escalate to the operator on stdin.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")
	esc := engine.NewPromptEscalator(os.Stdin, os.Stdout, a.cfg.Engine.EscalationTimeout.Duration, a.logger)
	return a.runEngine(ctx, deps, esc, engine.ModeTrade)
}

// ScanMode prices opportunities and reports them without ever touching a
// venue's order endpoint or the position store.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")
	return a.runEngine(ctx, deps, engine.AutoDecline{}, engine.ModeScan)
}

// MonitorMode manages already-open positions only: it re-prices them every
// cycle and closes the ones that clear an exit bound, but opens nothing new.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.runEngine(ctx, deps, engine.AutoDecline{}, engine.ModeMonitor)
}

// runEngine builds the engine for the given mode and runs its cycle loop
// alongside the streaming quote feed until the context is cancelled.
func (a *App) runEngine(ctx context.Context, deps *Dependencies, esc engine.Escalator, mode string) error {
	eng := a.buildEngine(deps, esc, mode)

	g, ctx := errgroup.WithContext(ctx)

	a.startQuoteFeed(ctx, g, deps)

	g.Go(func() error {
		return a.cycleLoop(ctx, eng)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildEngine assembles the scanner, calculator and engine from the wired
// dependencies and the configured thresholds.
func (a *App) buildEngine(deps *Dependencies, esc engine.Escalator, mode string) *engine.Engine {
	ec := a.cfg.Engine

	sc := scanner.New(deps.Fees, ec.MinMarginPercent, deps.PairCache, a.logger)
	calc := pricing.NewCalculator(deps.Fees, ec.Slippage, domain.ReturnVariant(ec.ReturnVariant))

	params := engine.Params{
		Venues:                deps.Venues,
		TMNNative:             deps.TMNNative,
		MinMarginPercent:      ec.MinMarginPercent,
		MaxMarginPercent:      ec.MaxMarginPercent,
		CloseMinMarginPercent: ec.CloseMinMarginPercent,
		StopLossPercent:       ec.StopLossPercent,
		TradeNotionalUSDT:     ec.TradeNotionalUSDT,
		ReferenceVenue:        domain.Venue(ec.ReferenceVenue),
		FetchTimeout:          ec.FetchTimeout.Duration,
		LegMaxRetries:         ec.LegMaxRetries,
		LegRetryDelay:         ec.LegRetryDelay.Duration,
		OrderTypeOnOpen:       domain.OrderType(ec.OrderTypeOnOpen),
		Mode:                  mode,
	}
	return engine.New(deps.Gateway, deps.Store, sc, calc, esc, deps.Alerts, params, a.logger)
}

// cycleLoop runs engine cycles at the configured refresh interval. A failed
// cycle is logged and the loop keeps going; transient store or venue
// problems must not take the process down.
func (a *App) cycleLoop(ctx context.Context, eng *engine.Engine) error {
	ticker := time.NewTicker(a.cfg.Engine.RefreshInterval.Duration)
	defer ticker.Stop()

	for {
		if err := eng.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Error("cycle failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// startQuoteFeed subscribes the CoinEx websocket feed for the configured
// watchlist, keeping the quote cache current between REST cycles. Without a
// websocket URL or a watchlist the feed is skipped and cycles rely on REST
// fetches alone.
func (a *App) startQuoteFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	vc, ok := a.cfg.Venues["coinex"]
	if !ok || !vc.Enabled || vc.WSURL == "" {
		return
	}
	if len(a.cfg.Engine.CoinsToConsider) == 0 {
		a.logger.Info("no watchlist configured, skipping streaming feed")
		return
	}

	syms := make([]domain.Symbol, 0, len(a.cfg.Engine.CoinsToConsider))
	for _, base := range a.cfg.Engine.CoinsToConsider {
		syms = append(syms, domain.Symbol{Base: base, Quote: domain.QuoteUSDT})
	}

	feed := coinex.NewFeed(vc.WSURL, syms, deps.Normalizer, deps.QuoteCache, a.logger)
	g.Go(func() error {
		return feed.Run(ctx)
	})
	g.Go(func() error {
		return a.reportQuoteAges(ctx, deps, syms)
	})
}

// reportQuoteAges periodically logs how stale the streamed quotes are, so a
// silently dead feed is visible in the logs before it matters.
func (a *App) reportQuoteAges(ctx context.Context, deps *Dependencies, syms []domain.Symbol) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		var oldest time.Duration
		var missing int
		for _, sym := range syms {
			_, ts, err := deps.QuoteCache.GetQuote(ctx, "coinex", sym)
			if err != nil {
				missing++
				continue
			}
			if age := time.Since(ts); age > oldest {
				oldest = age
			}
		}
		a.logger.Debug("streamed quote ages",
			slog.Duration("oldest", oldest),
			slog.Int("missing", missing),
			slog.Int("watched", len(syms)),
		)
	}
}
