// Package notify delivers trade alerts to operators. Events are dispatched
// to all registered senders (Telegram, Discord) and can be filtered by event
// type so operators receive only the alerts they care about. Delivery is
// best-effort: a failed alert never blocks or fails a trade.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantfarm/crossarb/internal/domain"
)

// Event types emitted by the position lifecycle.
const (
	EventPositionOpened = "position_opened"
	EventPositionClosed = "position_closed"
	EventCloseFailed    = "close_failed"
	EventStrayExposure  = "stray_exposure"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier formats lifecycle events and dispatches them to one or more
// Senders. It maintains a set of allowed event types; events outside the set
// are dropped silently. A nil *Notifier is valid and does nothing, so
// callers need no enabled check.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// New creates a Notifier that delivers to the given senders. Only events
// whose type appears in the events slice are forwarded; an empty slice
// allows all event types.
func New(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// PositionOpened reports a freshly opened position with both entry legs.
func (n *Notifier) PositionOpened(ctx context.Context, pos domain.Position) {
	n.send(ctx, EventPositionOpened, "Position opened",
		fmt.Sprintf("%s  amount %.8g\nbuy  %s @ %.8g\nsell %s @ %.8g",
			pos.Symbol, pos.Amount,
			pos.BuyVenue, pos.EntryBuyPrice,
			pos.SellVenue, pos.EntrySellPrice))
}

// PositionClosed reports a completed close with the realized return.
func (n *Notifier) PositionClosed(ctx context.Context, pos domain.Position, prices domain.ClosePrices) {
	n.send(ctx, EventPositionClosed, "Position closed",
		fmt.Sprintf("%s  amount %.8g\nexit sell %s @ %.8g\nexit buy  %s @ %.8g\nreturn %.3f%%",
			pos.Symbol, pos.Amount,
			pos.BuyVenue, prices.ExitSellPrice,
			pos.SellVenue, prices.ExitBuyPrice,
			prices.ReturnPercent))
}

// CloseFailed reports a close that rolled back to open and will be retried.
func (n *Notifier) CloseFailed(ctx context.Context, cerr *domain.CloseError) {
	n.send(ctx, EventCloseFailed, "Close failed, position back to open",
		fmt.Sprintf("%s  position %s  amount %.8g\n%v",
			cerr.Symbol, cerr.PositionID, cerr.Amount, cerr.Err))
}

// StrayExposure reports an unwind that itself failed: one leg remains filled
// with nothing hedging it. This is the alert that must wake someone up.
func (n *Notifier) StrayExposure(ctx context.Context, venue domain.Venue, req domain.OrderRequest, cause error) {
	n.send(ctx, EventStrayExposure, "UNWIND FAILED: stray exposure",
		fmt.Sprintf("%s on %s, %s %.8g unhedged\n%v",
			req.Symbol, venue, req.Side, req.Amount, cause))
}

// send filters the event and dispatches to every sender. Individual sender
// failures are logged and do not stop delivery to the rest.
func (n *Notifier) send(ctx context.Context, event, title, message string) {
	if n == nil || len(n.senders) == 0 {
		return
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return
	}

	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.DebugContext(ctx, "alert sent",
			slog.String("sender", s.Name()),
			slog.String("event", event),
		)
	}
}
