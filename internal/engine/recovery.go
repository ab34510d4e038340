package engine

import (
	"context"
	"log/slog"

	"knite_oms/internal/domain"
)

// sweepRecovery resolves intents whose placement outcome is unknown. Aged-out
// entries become permanent failures, the only give-up path in the system;
// the rest are matched against the venue order book by correlation tag and
// promoted when the venue turns out to have accepted them. Orders are never
// resubmitted from here.
func (m *Manager) sweepRecovery(ctx context.Context) {
	if len(m.recovery) == 0 {
		return
	}

	now := m.now()
	kept := m.recovery[:0]
	for _, o := range m.recovery {
		if o.TimedOut(now, m.recoveryWindow) {
			o.Status = domain.StatusRejected
			m.metrics.RecoveryDropped.Inc()
			m.record(o.ID, "recovery_dropped", map[string]string{"tag": o.Tag})
			m.surfaceFailure(o, "unresolved past recovery window")
			continue
		}
		kept = append(kept, o)
	}
	m.recovery = kept
	if len(m.recovery) == 0 {
		return
	}

	tags := make([]string, 0, len(m.recovery))
	for _, o := range m.recovery {
		tags = append(tags, o.Tag)
	}
	snaps, err := m.gw.FetchByTags(ctx, tags)
	if err != nil {
		slog.Warn("recovery tag query failed", slog.Any("error", err))
		return
	}
	byTag := make(map[string]domain.Snapshot, len(snaps))
	for _, s := range snaps {
		byTag[s.Tag] = s
	}

	kept = m.recovery[:0]
	for _, o := range m.recovery {
		snap, found := byTag[o.Tag]
		if !found {
			kept = append(kept, o)
			continue
		}
		switch snap.Status {
		case domain.StatusOpen:
			// The venue accepted the order after all; track it normally.
			o.VenueID = snap.ID
			o.Status = domain.StatusOpen
			o.FilledQty = snap.FilledQty
			m.open[o.VenueID] = o
			m.record(o.ID, "recovery_promoted", map[string]string{"venue_id": o.VenueID})
			slog.Info("recovered order promoted",
				slog.String("id", o.ID), slog.String("venue_id", o.VenueID))

		case domain.StatusComplete:
			o.VenueID = snap.ID
			m.handleFill(ctx, o, snap.FilledQty)

		case domain.StatusRejected:
			o.Status = domain.StatusRejected
			m.metrics.Fills.WithLabelValues("rejected").Inc()
			m.surfaceFailure(o, "rejected by venue, found during recovery")

		default:
			kept = append(kept, o)
		}
	}
	m.recovery = kept
}
