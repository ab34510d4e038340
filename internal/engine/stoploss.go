package engine

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"knite_oms/internal/domain"
	"knite_oms/internal/event"
)

// sweepStops walks the protective watchlist newest first, marks children
// whose trigger the market has reached, and fires each breached child as its
// own high-priority exit batch. Fired entries leave the watchlist by
// filtering, the survivors keep their order.
func (m *Manager) sweepStops() {
	if len(m.stops) == 0 {
		return
	}

	ctx := context.Background()
	prices := make(map[string]decimal.Decimal)
	fired := make(map[string]bool)

	for i := len(m.stops) - 1; i >= 0; i-- {
		child := m.stops[i]
		if child.Status != domain.StatusPending {
			fired[child.ID] = true // already dispatched elsewhere, drop
			continue
		}

		if !child.StopBreached {
			ltp, ok := prices[child.Symbol]
			if !ok {
				var err error
				ltp, err = m.gw.LastPrice(ctx, child.Symbol)
				if err != nil {
					slog.Warn("stop-loss price check failed",
						slog.String("symbol", child.Symbol), slog.Any("error", err))
					continue
				}
				prices[child.Symbol] = ltp
			}
			// Direction comes from the parent position the stop protects.
			if !stopCrossed(child.Parent.Quantity, child.StopPrice, ltp) {
				continue
			}
			child.StopBreached = true
		}

		fired[child.ID] = true
		m.record(child.ID, "stop_fired", map[string]string{
			"trigger": child.StopPrice.String(),
		})
		slog.Info("stop-loss fired",
			slog.String("id", child.ID), slog.String("symbol", child.Symbol),
			slog.String("trigger", child.StopPrice.String()))
		m.enqueueBatch([]*domain.OrderIntent{child}, event.PriorityHigh)
	}

	if len(fired) == 0 {
		return
	}
	kept := m.stops[:0]
	for _, child := range m.stops {
		if !fired[child.ID] {
			kept = append(kept, child)
		}
	}
	m.stops = kept
}

// disarmStops retires pending watchlist children for a symbol whose position
// is being flattened, so a stale stop cannot fire against a position that no
// longer exists. The entry identified by except is the exit being dispatched
// and survives.
func (m *Manager) disarmStops(symbol, except string) {
	kept := m.stops[:0]
	for _, child := range m.stops {
		if child.Symbol == symbol && child.ID != except {
			m.record(child.ID, "stop_disarmed", map[string]string{"symbol": symbol})
			slog.Debug("stop-loss disarmed", slog.String("id", child.ID))
			continue
		}
		kept = append(kept, child)
	}
	m.stops = kept
}
