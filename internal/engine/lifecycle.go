package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/quantfarm/crossarb/internal/domain"
	"github.com/quantfarm/crossarb/internal/notify"
)

// Lifecycle owns the opening, monitoring and closing of paired positions.
// Its single hard guarantee: a filled leg is never left without either a
// paired leg or an immediate unwind order.
type Lifecycle struct {
	gateway domain.Gateway
	store   domain.PositionStore
	esc     Escalator
	alerts  *notify.Notifier // nil disables alerting
	logger  *slog.Logger
	now     func() time.Time

	maxRetries int
	retryDelay time.Duration
	orderType  domain.OrderType
}

// NewLifecycle creates a Lifecycle.
func NewLifecycle(gateway domain.Gateway, store domain.PositionStore, esc Escalator, alerts *notify.Notifier, maxRetries int, retryDelay time.Duration, orderType domain.OrderType, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		gateway:    gateway,
		store:      store,
		esc:        esc,
		alerts:     alerts,
		logger:     logger.With(slog.String("component", "lifecycle")),
		now:        time.Now,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		orderType:  orderType,
	}
}

// floorToStep floors amount to a multiple of step. Zero step passes the
// amount through.
func floorToStep(amount, step float64) float64 {
	if step <= 0 {
		return amount
	}
	return math.Floor(amount/step) * step
}

// sizeAmount converts a quote-currency notional into a base amount at the
// midpoint of the selected prices, floored to the coarser of the two
// venues' amount steps so both legs can carry the identical amount.
func (l *Lifecycle) sizeAmount(fr domain.FinalReturn) float64 {
	if fr.SelectedBuyPrice <= 0 || fr.SelectedSellPrice <= 0 {
		return 0
	}
	amount := fr.TradeNotional / ((fr.SelectedBuyPrice + fr.SelectedSellPrice) / 2)
	step := math.Max(
		l.gateway.AmountPrecision(fr.Opportunity.BuyVenue, fr.Opportunity.Symbol),
		l.gateway.AmountPrecision(fr.Opportunity.SellVenue, fr.Opportunity.Symbol),
	)
	return floorToStep(amount, step)
}

// legOutcome is one leg's settlement within a pairing round.
type legOutcome struct {
	res    domain.OrderResult
	err    error
	filled bool
}

// placeLeg submits one order with bounded retries and a fixed delay.
func (l *Lifecycle) placeLeg(ctx context.Context, req domain.OrderRequest) legOutcome {
	var lastErr error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return legOutcome{err: ctx.Err()}
			case <-time.After(l.retryDelay):
			}
		}

		res, err := l.gateway.PlaceOrder(ctx, req)
		if err == nil && res.Filled {
			return legOutcome{res: res, filled: true}
		}
		if err == nil {
			err = domain.ErrOrderRejected
		}
		lastErr = err
		l.logger.Warn("leg attempt failed",
			slog.String("venue", string(req.Venue)),
			slog.String("symbol", req.Symbol.String()),
			slog.String("side", string(req.Side)),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	return legOutcome{err: lastErr}
}

// placePair issues both legs concurrently and awaits both. Whichever
// settles first never blocks the other.
func (l *Lifecycle) placePair(ctx context.Context, buyReq, sellReq domain.OrderRequest, skipBuy, skipSell bool, prevBuy, prevSell legOutcome) (buy, sell legOutcome) {
	buy, sell = prevBuy, prevSell

	var wg sync.WaitGroup
	if !skipBuy {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buy = l.placeLeg(ctx, buyReq)
		}()
	}
	if !skipSell {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sell = l.placeLeg(ctx, sellReq)
		}()
	}
	wg.Wait()
	return buy, sell
}

// unwind flattens a stray filled leg with an immediate opposing market
// order. This must not fail silently: an unpaired leg is live exposure.
func (l *Lifecycle) unwind(ctx context.Context, req domain.OrderRequest) {
	opposite := domain.OrderRequest{
		Venue:  req.Venue,
		Symbol: req.Symbol,
		Side:   req.Side.Opposite(),
		Amount: req.Amount,
		Price:  req.Price,
		Type:   domain.OrderTypeMarket,
	}
	out := l.placeLeg(ctx, opposite)
	if !out.filled {
		// Out of automated options. This log line is the operator's last
		// signal that manual intervention is required right now.
		l.logger.Error("UNWIND FAILED, stray exposure remains",
			slog.String("venue", string(opposite.Venue)),
			slog.String("symbol", opposite.Symbol.String()),
			slog.String("side", string(opposite.Side)),
			slog.Float64("amount", opposite.Amount),
			slog.String("error", out.err.Error()),
		)
		l.alerts.StrayExposure(ctx, opposite.Venue, opposite, out.err)
		return
	}
	l.logger.Info("stray leg unwound",
		slog.String("venue", string(opposite.Venue)),
		slog.String("symbol", opposite.Symbol.String()),
		slog.Float64("amount", opposite.Amount),
	)
}

func (l *Lifecycle) legError(req domain.OrderRequest, err error) *domain.LegError {
	return &domain.LegError{
		Symbol:   req.Symbol,
		Venue:    req.Venue,
		Side:     req.Side,
		Amount:   req.Amount,
		FailedAt: l.now(),
		Err:      err,
	}
}

// Open executes the entry pair for the best-ranked return: buy on the
// opportunity's buy venue, sell the same amount on its sell venue,
// concurrently. The position is persisted only once both legs fill.
//
// When a leg exhausts its retries the Escalator is consulted; a decline
// (or timeout) triggers the mandatory unwind of any already-filled leg and
// the pairing is abandoned with a LegError.
func (l *Lifecycle) Open(ctx context.Context, fr domain.FinalReturn) (domain.Position, error) {
	opp := fr.Opportunity
	amount := l.sizeAmount(fr)
	if amount <= 0 {
		return domain.Position{}, fmt.Errorf("open %s: sized amount is zero (notional %g, prices %g/%g)",
			opp.Symbol, fr.TradeNotional, fr.SelectedBuyPrice, fr.SelectedSellPrice)
	}

	buyReq := domain.OrderRequest{
		Venue:  opp.BuyVenue,
		Symbol: opp.Symbol,
		Side:   domain.OrderSideBuy,
		Amount: amount,
		Price:  fr.SelectedBuyPrice,
		Type:   l.orderType,
	}
	sellReq := domain.OrderRequest{
		Venue:  opp.SellVenue,
		Symbol: opp.Symbol,
		Side:   domain.OrderSideSell,
		Amount: amount,
		Price:  fr.SelectedSellPrice,
		Type:   l.orderType,
	}

	var buy, sell legOutcome
	for {
		buy, sell = l.placePair(ctx, buyReq, sellReq, buy.filled, sell.filled, buy, sell)
		if buy.filled && sell.filled {
			break
		}

		// At least one leg is down. Build the error for the (first) failed
		// leg and ask whether to keep going.
		var legErr *domain.LegError
		if !buy.filled {
			legErr = l.legError(buyReq, buy.err)
		} else {
			legErr = l.legError(sellReq, sell.err)
		}

		if ctx.Err() == nil && l.esc.KeepRetrying(ctx, legErr) {
			continue
		}

		if buy.filled {
			l.unwind(ctx, buyReq)
		}
		if sell.filled {
			l.unwind(ctx, sellReq)
		}
		return domain.Position{}, legErr
	}

	pos := domain.Position{
		Symbol:         opp.Symbol,
		BuyVenue:       opp.BuyVenue,
		SellVenue:      opp.SellVenue,
		Amount:         amount,
		EntryBuyPrice:  fillPrice(buy.res, fr.SelectedBuyPrice),
		EntrySellPrice: fillPrice(sell.res, fr.SelectedSellPrice),
		USDTRate:       fr.USDTRate,
		Status:         domain.PositionStatusOpen,
		OpenedAt:       l.now(),
	}

	id, err := l.store.Insert(ctx, pos)
	if err != nil {
		// Both legs are live on the venues. Report the store failure but
		// hand the position back so the caller can still monitor it.
		pos.ID = ""
		return pos, fmt.Errorf("open %s: position filled but not persisted: %w", opp.Symbol, err)
	}
	pos.ID = id

	l.logger.Info("position opened",
		slog.String("id", pos.ID),
		slog.String("symbol", pos.Symbol.String()),
		slog.String("buy_venue", string(pos.BuyVenue)),
		slog.String("sell_venue", string(pos.SellVenue)),
		slog.Float64("amount", pos.Amount),
		slog.Float64("entry_buy", pos.EntryBuyPrice),
		slog.Float64("entry_sell", pos.EntrySellPrice),
		slog.Float64("selected_return", fr.SelectedReturnPercentage),
	)
	l.alerts.PositionOpened(ctx, pos)
	return pos, nil
}

// fillPrice prefers the venue's reported average, falling back to the
// price the decision was made at when the report omits it.
func fillPrice(res domain.OrderResult, selected float64) float64 {
	if res.AveragePrice > 0 {
		return res.AveragePrice
	}
	return selected
}

// Close unwinds an open position: sell the long on BuyVenue, buy back the
// short on SellVenue, concurrently. The status flips to closing before any
// order goes out so an overlapping monitoring pass cannot double-close;
// any failure rolls the status back to open and surfaces a CloseError.
func (l *Lifecycle) Close(ctx context.Context, pos domain.Position, fr domain.FinalReturn) error {
	if err := l.store.UpdateStatus(ctx, pos.ID, domain.PositionStatusClosing); err != nil {
		return fmt.Errorf("close %s: flip to closing: %w", pos.ID, err)
	}

	// Exit legs reverse the entry: fr came from CloseReturn, so its buy
	// side is pos.SellVenue and its sell side is pos.BuyVenue.
	sellReq := domain.OrderRequest{
		Venue:  pos.BuyVenue,
		Symbol: pos.Symbol,
		Side:   domain.OrderSideSell,
		Amount: pos.Amount,
		Price:  fr.SelectedSellPrice,
		Type:   domain.OrderTypeMarket,
	}
	buyReq := domain.OrderRequest{
		Venue:  pos.SellVenue,
		Symbol: pos.Symbol,
		Side:   domain.OrderSideBuy,
		Amount: pos.Amount,
		Price:  fr.SelectedBuyPrice,
		Type:   domain.OrderTypeMarket,
	}

	buy, sell := l.placePair(ctx, buyReq, sellReq, false, false, legOutcome{}, legOutcome{})
	if !buy.filled || !sell.filled {
		err := buy.err
		if err == nil {
			err = sell.err
		}
		return l.rollbackClose(ctx, pos, err)
	}

	prices := domain.ClosePrices{
		ExitSellPrice: fillPrice(sell.res, fr.SelectedSellPrice),
		ExitBuyPrice:  fillPrice(buy.res, fr.SelectedBuyPrice),
		ReturnPercent: fr.SelectedReturnPercentage,
		ClosedAt:      l.now(),
	}
	if err := l.store.Archive(ctx, pos.ID, prices); err != nil {
		return l.rollbackClose(ctx, pos, fmt.Errorf("archive: %w", err))
	}

	l.logger.Info("position closed",
		slog.String("id", pos.ID),
		slog.String("symbol", pos.Symbol.String()),
		slog.Float64("exit_sell", prices.ExitSellPrice),
		slog.Float64("exit_buy", prices.ExitBuyPrice),
		slog.Float64("return_percent", prices.ReturnPercent),
	)
	l.alerts.PositionClosed(ctx, pos, prices)
	return nil
}

// rollbackClose reverts a failed close to open so the next monitoring
// cycle retries it, and wraps the cause in a structured CloseError.
func (l *Lifecycle) rollbackClose(ctx context.Context, pos domain.Position, cause error) error {
	if err := l.store.UpdateStatus(ctx, pos.ID, domain.PositionStatusOpen); err != nil {
		l.logger.Error("rollback to open failed, position stuck in closing",
			slog.String("id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
	cerr := &domain.CloseError{
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		BuyVenue:   pos.BuyVenue,
		SellVenue:  pos.SellVenue,
		Amount:     pos.Amount,
		FailedAt:   l.now(),
		Err:        cause,
	}
	l.alerts.CloseFailed(ctx, cerr)
	return cerr
}
