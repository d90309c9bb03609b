// Package notify fans operational alerts out to one or more delivery
// channels. Each channel implements Sender; the Notifier filters by event
// type so operators can subscribe to only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/TroveFi/yieldrouter/internal/domain"
)

// Event types emitted by the engine.
const (
	EventOpportunityFound   = "opportunity_found"
	EventTriangularFound    = "triangular_found"
	EventAllocationPlanned  = "allocation_planned"
	EventRebalanceSuggested = "rebalance_suggested"
	EventEmergencyFlagged   = "emergency_flagged"
)

// Sender delivers a single notification on one channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches notifications to its senders. Notify forwards only
// events in the allowed set; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
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

// Notify delivers to all senders if the event type passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll delivers to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender. A failing sender does not block the rest;
// failures are collected into a combined error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// FormatOpportunity renders a direct opportunity as a short alert body.
func FormatOpportunity(o *domain.Opportunity) string {
	return fmt.Sprintf("%s/%s buy %s sell %s\nprofit %s score %s",
		o.TokenA, o.TokenB, o.VenueBuy, o.VenueSell,
		scaled(o.Profit), o.Score.String(),
	)
}

// FormatTriangular renders a triangular opportunity as a short alert body.
func FormatTriangular(o *domain.TriangularOpportunity) string {
	return fmt.Sprintf("%s->%s->%s via %s\nprofit %s score %s",
		o.TokenA, o.TokenB, o.TokenC, strings.Join(o.Venues, ","),
		scaled(o.ExpectedProfit), o.Score.String(),
	)
}

// scaled renders an 18-decimal fixed-point value as a decimal string with
// up to six fractional digits.
func scaled(v *big.Int) string {
	if v == nil {
		return "0"
	}
	f := new(big.Float).SetInt(v)
	f.Quo(f, new(big.Float).SetInt(domain.PriceScale))
	return f.Text('f', 6)
}
