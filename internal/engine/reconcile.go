package engine

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"knite_oms/internal/domain"
	"knite_oms/internal/event"
)

// reconcileOpenOrders polls the venue for every tracked open order and feeds
// the snapshots through the same transition function the push path uses. The
// poll is the source of truth when the stream is down.
func (m *Manager) reconcileOpenOrders(ctx context.Context) {
	if len(m.open) == 0 {
		return
	}

	ids := make([]string, 0, len(m.open))
	for id := range m.open {
		ids = append(ids, id)
	}

	snaps, err := m.gw.FetchByIDs(ctx, ids)
	if err != nil {
		// Periodic poll; one missed round is recovered by the next.
		slog.Warn("open-order poll failed", slog.Any("error", err))
		return
	}

	for _, snap := range snaps {
		o, ok := m.open[snap.ID]
		if !ok {
			continue
		}
		m.transition(ctx, o, snap.Status, snap.FilledQty)
	}
}

// applyPushUpdate mutates order state from a stream message. The lookup in
// the open map is the idempotence point: once a terminal transition removed
// the order, later duplicates of the same verdict find nothing and fall
// through.
func (m *Manager) applyPushUpdate(ctx context.Context, e event.OrderUpdate) {
	o, ok := m.open[e.VenueID]
	if !ok {
		slog.Debug("push update for untracked order", slog.String("venue_id", e.VenueID))
		return
	}
	m.transition(ctx, o, e.Status, e.FilledQty)
}

// transition advances one order by a fresh venue observation. Push and poll
// converge here so both sources apply identical semantics.
func (m *Manager) transition(ctx context.Context, o *domain.OrderIntent, status domain.OrderStatus, filledQty int64) {
	switch status {
	case domain.StatusComplete:
		delete(m.open, o.VenueID)
		m.handleFill(ctx, o, filledQty)

	case domain.StatusRejected:
		delete(m.open, o.VenueID)
		o.Status = domain.StatusRejected
		m.metrics.Fills.WithLabelValues("rejected").Inc()
		m.surfaceFailure(o, "rejected by venue after acknowledgment")

	case domain.StatusOpen:
		o.Status = domain.StatusOpen
		o.FilledQty = filledQty
		// A resting limit order that survived a full cycle gets one
		// fire-and-forget re-submit of its own terms; the venue answer, if
		// any, arrives through the normal push/poll paths.
		if o.Kind == domain.KindLimit && !o.IsRetried {
			o.IsRetried = true
			m.modifyAsync(ctx, o)
		}
	}
}

// modifyAsync issues an in-place modify off the loop goroutine. All values
// are captured before the goroutine starts so the loop may keep mutating the
// intent.
func (m *Manager) modifyAsync(ctx context.Context, o *domain.OrderIntent) {
	venueID := o.VenueID
	qty := o.Quantity
	price := o.Price
	trigger := o.StopPrice
	go func() {
		if err := m.gw.Modify(ctx, venueID, qty, price, trigger); err != nil {
			slog.Warn("order modify failed",
				slog.String("venue_id", venueID), slog.Any("error", err))
		}
	}()
}

// handleFill settles a completed order: position bookkeeping, then stop-loss
// derivation when the entry carries a protective trigger.
func (m *Manager) handleFill(ctx context.Context, o *domain.OrderIntent, filledQty int64) {
	o.Status = domain.StatusComplete
	o.FilledQty = filledQty
	m.metrics.Fills.WithLabelValues("complete").Inc()
	m.record(o.ID, "filled", map[string]int64{"filled_qty": filledQty})

	if o.IsExit {
		m.ledger.ClosePosition(o)
		return
	}
	m.ledger.OpenPosition(o)

	if o.StopPrice.IsZero() || filledQty <= 0 {
		return
	}

	// Arm a protective child only while the market has not already crossed
	// the trigger; a crossed stop at fill time means the position must be
	// handled by an exit, not a resting stop.
	ltp, err := m.gw.LastPrice(ctx, o.Symbol)
	if err != nil {
		slog.Warn("reference price unavailable, stop-loss not armed",
			slog.String("id", o.ID), slog.String("symbol", o.Symbol), slog.Any("error", err))
		return
	}
	if stopCrossed(o.Quantity, o.StopPrice, ltp) {
		slog.Warn("stop already crossed at fill, stop-loss not armed",
			slog.String("id", o.ID), slog.String("stop", o.StopPrice.String()),
			slog.String("ltp", ltp.String()))
		return
	}

	child := domain.NewStopLoss(o)
	m.stops = append(m.stops, child)
	m.record(child.ID, "stop_armed", map[string]string{
		"parent": o.ID, "trigger": o.StopPrice.String(),
	})
	slog.Info("stop-loss armed",
		slog.String("id", child.ID), slog.String("parent", o.ID),
		slog.String("trigger", o.StopPrice.String()))
}

// stopCrossed reports whether the reference price has reached the protective
// trigger for a position of the given signed quantity: a long position is
// stopped at or below the trigger, a short at or above it.
func stopCrossed(qty int64, stop, ltp decimal.Decimal) bool {
	if qty >= 0 {
		return ltp.LessThanOrEqual(stop)
	}
	return ltp.GreaterThanOrEqual(stop)
}
