package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"knite_oms/internal/domain"
	"knite_oms/internal/event"
	"knite_oms/internal/execution"
)

// countingLedger records every call so tests can assert exactly-once
// semantics.
type countingLedger struct {
	opened []*domain.OrderIntent
	closed []*domain.OrderIntent
	failed []*domain.OrderIntent
}

func (l *countingLedger) OpenPosition(o *domain.OrderIntent) bool {
	l.opened = append(l.opened, o)
	return true
}

func (l *countingLedger) ClosePosition(o *domain.OrderIntent) bool {
	l.closed = append(l.closed, o)
	return true
}

func (l *countingLedger) FailOpen(o *domain.OrderIntent) {
	l.failed = append(l.failed, o)
}

// placeAndOpen runs one intent through dispatch and returns its venue id.
func placeAndOpen(t *testing.T, m *Manager, o *domain.OrderIntent) string {
	t.Helper()
	m.enqueueBatch([]*domain.OrderIntent{o}, event.PriorityLow)
	m.drainDispatch(context.Background())
	if o.VenueID == "" {
		t.Fatal("order was not acknowledged")
	}
	if _, ok := m.open[o.VenueID]; !ok {
		t.Fatalf("order %s not in open map", o.VenueID)
	}
	return o.VenueID
}

func TestStopLossArmedOnlyBelowTrigger(t *testing.T) {
	tests := []struct {
		name     string
		ltp      string
		wantStop bool
	}{
		{"price above trigger arms the stop", "105", true},
		{"price already through trigger does not", "95", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := execution.NewMockGateway()
			ledger := &countingLedger{}
			m := newTestManager(gw, ledger)
			gw.Prices["GOLD"] = decimal.RequireFromString(tt.ltp)

			entry := intent("GOLD", 10)
			entry.StopPrice = decimal.RequireFromString("100")
			venueID := placeAndOpen(t, m, entry)

			m.applyPushUpdate(context.Background(), event.OrderUpdate{
				VenueID: venueID, Status: domain.StatusComplete, FilledQty: 10,
			})

			if len(ledger.opened) != 1 {
				t.Fatalf("opened %d positions, want 1", len(ledger.opened))
			}
			if got := len(m.stops) == 1; got != tt.wantStop {
				t.Fatalf("stop armed = %v, want %v", got, tt.wantStop)
			}
			if tt.wantStop {
				child := m.stops[0]
				if child.Parent != entry {
					t.Error("child not linked to parent")
				}
				if child.Quantity != -10 {
					t.Errorf("child quantity %d, want -10", child.Quantity)
				}
				if !child.StopPrice.Equal(entry.StopPrice) {
					t.Errorf("child trigger %s, want %s", child.StopPrice, entry.StopPrice)
				}
			}
		})
	}
}

func TestZeroFillCompleteArmsNoStop(t *testing.T) {
	gw := execution.NewMockGateway()
	m := newTestManager(gw, nil)
	gw.Prices["GOLD"] = decimal.RequireFromString("105")

	entry := intent("GOLD", 10)
	entry.StopPrice = decimal.RequireFromString("100")
	venueID := placeAndOpen(t, m, entry)

	m.applyPushUpdate(context.Background(), event.OrderUpdate{
		VenueID: venueID, Status: domain.StatusComplete, FilledQty: 0,
	})
	if len(m.stops) != 0 {
		t.Fatal("stop armed for a zero-fill completion")
	}
}

func TestDuplicateTerminalPushIsNoop(t *testing.T) {
	gw := execution.NewMockGateway()
	ledger := &countingLedger{}
	m := newTestManager(gw, ledger)

	entry := intent("SILVER", 5)
	venueID := placeAndOpen(t, m, entry)

	done := event.OrderUpdate{VenueID: venueID, Status: domain.StatusComplete, FilledQty: 5}
	m.applyPushUpdate(context.Background(), done)
	m.applyPushUpdate(context.Background(), done)

	if len(ledger.opened) != 1 {
		t.Fatalf("fill settled %d times, want exactly once", len(ledger.opened))
	}
	if len(m.open) != 0 {
		t.Fatalf("open map should be empty, has %d", len(m.open))
	}
}

func TestPushAndPollConverge(t *testing.T) {
	gw := execution.NewMockGateway()
	ledger := &countingLedger{}
	m := newTestManager(gw, ledger)

	entry := intent("SILVER", 5)
	venueID := placeAndOpen(t, m, entry)

	// Stream delivers the fill first; the next poll serves the same terminal
	// snapshot and must find nothing left to do.
	m.applyPushUpdate(context.Background(), event.OrderUpdate{
		VenueID: venueID, Status: domain.StatusComplete, FilledQty: 5,
	})
	gw.Snapshots[venueID] = domain.Snapshot{
		ID: venueID, Status: domain.StatusComplete, FilledQty: 5,
	}
	m.reconcileOpenOrders(context.Background())

	if len(ledger.opened) != 1 {
		t.Fatalf("fill settled %d times, want exactly once", len(ledger.opened))
	}
}

func TestStillOpenLimitModifiedOnce(t *testing.T) {
	gw := execution.NewMockGateway()
	m := newTestManager(gw, nil)

	entry := intent("GOLD", 10)
	venueID := placeAndOpen(t, m, entry)
	gw.Snapshots[venueID] = domain.Snapshot{
		ID: venueID, Status: domain.StatusOpen, Kind: domain.KindLimit,
	}

	m.reconcileOpenOrders(context.Background())
	m.reconcileOpenOrders(context.Background())

	// The modify is fire-and-forget on its own goroutine.
	deadline := time.Now().Add(time.Second)
	for len(gw.Modified) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(gw.Modified) != 1 {
		t.Fatalf("order modified %d times, want once", len(gw.Modified))
	}
	if !entry.IsRetried {
		t.Error("retried flag not set")
	}
}

func TestRejectionSurfacedOnceNoStop(t *testing.T) {
	gw := execution.NewMockGateway()
	ledger := &countingLedger{}
	m := newTestManager(gw, ledger)
	gw.Prices["GOLD"] = decimal.RequireFromString("105")
	gw.PlaceResults = []execution.PlaceResult{execution.Rejected("margin shortfall")}

	entry := intent("GOLD", 10)
	entry.StopPrice = decimal.RequireFromString("100")
	m.enqueueBatch([]*domain.OrderIntent{entry}, event.PriorityLow)
	m.drainDispatch(context.Background())

	if entry.Status != domain.StatusRejected {
		t.Fatalf("status %s, want REJECTED", entry.Status)
	}
	if len(ledger.failed) != 1 {
		t.Fatalf("failure surfaced %d times, want once", len(ledger.failed))
	}
	if len(m.stops) != 0 {
		t.Fatal("stop armed for a rejected order")
	}
	if len(m.open) != 0 || len(m.recovery) != 0 {
		t.Fatal("rejected order must not be tracked anywhere")
	}

	// Later polls and sweeps find nothing to re-surface.
	m.reconcileOpenOrders(context.Background())
	m.sweepRecovery(context.Background())
	if len(ledger.failed) != 1 {
		t.Fatalf("failure re-surfaced, %d total", len(ledger.failed))
	}
}

func TestRecoveryTimeout(t *testing.T) {
	gw := execution.NewMockGateway()
	ledger := &countingLedger{}
	m := newTestManager(gw, ledger)
	gw.PlaceResults = []execution.PlaceResult{execution.Transport(errors.New("connection reset"))}

	base := time.Now()
	entry := intent("GOLD", 10)
	entry.CreatedAt = base
	m.enqueueBatch([]*domain.OrderIntent{entry}, event.PriorityLow)
	m.drainDispatch(context.Background())

	if len(m.recovery) != 1 {
		t.Fatalf("recovery list has %d entries, want 1", len(m.recovery))
	}

	m.now = func() time.Time { return base.Add(4 * time.Second) }
	m.sweepRecovery(context.Background())
	if len(m.recovery) != 1 {
		t.Fatal("entry dropped before the recovery window elapsed")
	}
	if len(ledger.failed) != 0 {
		t.Fatal("failure surfaced before the recovery window elapsed")
	}

	m.now = func() time.Time { return base.Add(6 * time.Second) }
	m.sweepRecovery(context.Background())
	if len(m.recovery) != 0 {
		t.Fatal("entry survived past the recovery window")
	}
	if len(ledger.failed) != 1 {
		t.Fatalf("failure surfaced %d times, want once", len(ledger.failed))
	}
	if entry.Status != domain.StatusRejected {
		t.Fatalf("status %s, want REJECTED", entry.Status)
	}
}

func TestRecoveryPromotion(t *testing.T) {
	gw := execution.NewMockGateway()
	ledger := &countingLedger{}
	m := newTestManager(gw, ledger)
	gw.PlaceResults = []execution.PlaceResult{execution.Transport(errors.New("timeout"))}

	entry := intent("GOLD", 10)
	m.enqueueBatch([]*domain.OrderIntent{entry}, event.PriorityLow)
	m.drainDispatch(context.Background())

	// The venue accepted the order despite the transport failure; the tag
	// query finds it open.
	gw.TagSnapshots[entry.Tag] = []domain.Snapshot{
		{ID: "V900001", Status: domain.StatusOpen, Tag: entry.Tag},
	}
	m.sweepRecovery(context.Background())

	if len(m.recovery) != 0 {
		t.Fatalf("recovery list has %d entries, want 0", len(m.recovery))
	}
	if _, ok := m.open["V900001"]; !ok {
		t.Fatal("promoted order missing from open map")
	}
	if entry.VenueID != "V900001" || entry.Status != domain.StatusOpen {
		t.Fatalf("promotion left entry as %s/%s", entry.VenueID, entry.Status)
	}
	if len(ledger.failed) != 0 {
		t.Fatal("promoted order surfaced as failed")
	}
}

func TestStopFiresWhenTriggerReached(t *testing.T) {
	gw := execution.NewMockGateway()
	m := newTestManager(gw, nil)
	gw.Prices["GOLD"] = decimal.RequireFromString("105")

	entry := intent("GOLD", 10)
	entry.StopPrice = decimal.RequireFromString("100")
	venueID := placeAndOpen(t, m, entry)
	m.applyPushUpdate(context.Background(), event.OrderUpdate{
		VenueID: venueID, Status: domain.StatusComplete, FilledQty: 10,
	})
	if len(m.stops) != 1 {
		t.Fatalf("stop not armed, watchlist %d", len(m.stops))
	}
	child := m.stops[0]

	// Above the trigger nothing happens.
	m.sweepStops()
	if len(m.stops) != 1 || m.queue.len() != 0 {
		t.Fatal("stop fired above its trigger")
	}

	// At the trigger the child leaves the watchlist as a high-priority batch.
	gw.Prices["GOLD"] = decimal.RequireFromString("100")
	m.sweepStops()
	if len(m.stops) != 0 {
		t.Fatal("fired stop still on watchlist")
	}
	if !child.StopBreached {
		t.Error("breach flag not set")
	}

	placed := gw.PlacedCount()
	m.drainDispatch(context.Background())
	if gw.PlacedCount() != placed+1 {
		t.Fatalf("fired stop was not dispatched")
	}
	last := gw.Placed[len(gw.Placed)-1]
	if last != child {
		t.Error("dispatched order is not the stop child")
	}
}

func TestExitAllWaves(t *testing.T) {
	gw := execution.NewMockGateway()
	m := newTestManager(gw, nil)

	normal := intent("GOLD", 10)
	urgent := intent("SILVER", -5)
	urgent.IsHighPriority = true
	placeAndOpen(t, m, normal)
	placeAndOpen(t, m, urgent)

	m.handleEvent(context.Background(), event.ExitAll{})
	if !m.exitAllRaised {
		t.Fatal("exit-all flag not raised")
	}
	m.exitAllRaised = false
	m.exitAllOrders(false)

	placed := gw.PlacedCount()
	m.drainDispatch(context.Background())
	exits := gw.Placed[placed:]
	if len(exits) != 2 {
		t.Fatalf("placed %d exits, want 2", len(exits))
	}
	// Flagged wave first, then the rest; both flatten their positions.
	if exits[0].Symbol != "SILVER" || exits[0].Quantity != 5 {
		t.Errorf("first exit %s qty %d, want SILVER qty 5", exits[0].Symbol, exits[0].Quantity)
	}
	if exits[1].Symbol != "GOLD" || exits[1].Quantity != -10 {
		t.Errorf("second exit %s qty %d, want GOLD qty -10", exits[1].Symbol, exits[1].Quantity)
	}
}

func TestPanicExitsImmediately(t *testing.T) {
	gw := execution.NewMockGateway()
	m := newTestManager(gw, nil)

	placeAndOpen(t, m, intent("GOLD", 10))

	m.handleEvent(context.Background(), event.ExitAll{Panic: true})
	if m.queue.len() == 0 {
		t.Fatal("panic did not enqueue exits")
	}

	placed := gw.PlacedCount()
	m.drainDispatch(context.Background())
	if gw.PlacedCount() != placed+1 {
		t.Fatal("panic exit not dispatched")
	}
}

func TestExitDisarmsStaleStops(t *testing.T) {
	gw := execution.NewMockGateway()
	m := newTestManager(gw, nil)
	gw.Prices["GOLD"] = decimal.RequireFromString("105")

	entry := intent("GOLD", 10)
	entry.StopPrice = decimal.RequireFromString("100")
	venueID := placeAndOpen(t, m, entry)
	m.applyPushUpdate(context.Background(), event.OrderUpdate{
		VenueID: venueID, Status: domain.StatusComplete, FilledQty: 10,
	})
	if len(m.stops) != 1 {
		t.Fatal("stop not armed")
	}

	ex := domain.ExitFor(entry)
	m.enqueueBatch([]*domain.OrderIntent{ex}, event.PriorityHigh)
	m.drainDispatch(context.Background())

	if len(m.stops) != 0 {
		t.Fatal("stale stop survived the position exit")
	}
}

func TestRunLoopProcessesInboxAndStops(t *testing.T) {
	gw := execution.NewMockGateway()
	m := newTestManager(gw, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)

	m.Inbox() <- event.SubmitBatch{
		Intents:  []*domain.OrderIntent{intent("GOLD", 10)},
		Priority: event.PriorityLow,
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.GetStatus().OpenOrders == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if gw.PlacedCount() != 1 {
		t.Fatalf("loop placed %d orders, want 1", gw.PlacedCount())
	}
	if got := m.GetStatus(); !got.Running || got.OpenOrders != 1 {
		t.Fatalf("status %+v, want running with one open order", got)
	}

	cancel()
	deadline = time.Now().Add(2 * time.Second)
	for m.GetStatus().Running && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if m.GetStatus().Running {
		t.Fatal("loop did not stop on context cancel")
	}
}
