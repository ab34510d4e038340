package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"knite_oms/internal/domain"
	"knite_oms/internal/event"
	"knite_oms/internal/execution"
	"knite_oms/internal/infra"
	"knite_oms/internal/storage"
)

// Manager is the order scheduling and reconciliation core. One instance owns
// every queue and map; the Run loop goroutine is their sole mutator. The
// push stream, the admin surface and the importer talk to it exclusively
// through the inbox channel.
type Manager struct {
	gw      execution.Gateway
	ledger  domain.PositionLedger
	journal *storage.Journal
	metrics *infra.Metrics

	inbox    chan event.Event
	queue    dispatchQueue
	barriers *barrierSet
	open     map[string]*domain.OrderIntent // venue id -> live intent
	stops    []*domain.OrderIntent          // stop-loss watchlist, oldest first
	recovery []*domain.OrderIntent

	exitAllRaised bool
	blockAll      bool

	tick           time.Duration
	drainCap       int
	recoveryWindow time.Duration

	now func() time.Time

	// Gauges readable from other goroutines (admin surface).
	openCount     atomic.Int64
	queueDepth    atomic.Int64
	recoveryDepth atomic.Int64
	watchDepth    atomic.Int64
	running       atomic.Bool
}

// NewManager wires the engine with explicit dependencies. journal may be nil
// (no audit trail); metrics may be nil (unregistered instruments).
func NewManager(cfg *infra.Config, gw execution.Gateway, ledger domain.PositionLedger, journal *storage.Journal, metrics *infra.Metrics) *Manager {
	if ledger == nil {
		ledger = domain.NoopLedger{}
	}
	if metrics == nil {
		metrics = infra.NewTestMetrics()
	}
	return &Manager{
		gw:             gw,
		ledger:         ledger,
		journal:        journal,
		metrics:        metrics,
		inbox:          make(chan event.Event, 1024),
		barriers:       newBarrierSet(),
		open:           make(map[string]*domain.OrderIntent),
		tick:           cfg.TickInterval(),
		drainCap:       cfg.Engine.DrainCap,
		recoveryWindow: cfg.RecoveryTimeout(),
		blockAll:       cfg.Engine.BlockAllOrders,
		now:            time.Now,
	}
}

// Inbox returns the event channel. The stream worker, admin surface and
// importer send here; only the Run loop receives.
func (m *Manager) Inbox() chan event.Event {
	return m.inbox
}

// Run drives the fixed-cadence scheduler until ctx is cancelled. Must run in
// a single goroutine.
func (m *Manager) Run(ctx context.Context) {
	slog.Info("order manager started", slog.Duration("tick", m.tick))
	m.running.Store(true)
	defer m.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		default:
		}

		start := m.now()

		// Each step is best effort: a failure in one never blocks the next.
		m.drainInbox(ctx)
		m.reconcileOpenOrders(ctx)
		m.drainDispatch(ctx)
		m.sweepRecovery(ctx)
		m.sweepStops()
		if m.exitAllRaised {
			m.exitAllRaised = false
			m.exitAllOrders(false)
		}

		m.publishGauges()

		elapsed := m.now().Sub(start)
		m.metrics.TickDuration.Observe(elapsed.Seconds())

		// Residual-budget sleep: a slow tick is absorbed, never compounded.
		if rest := m.tick - elapsed; rest > 0 {
			select {
			case <-ctx.Done():
				m.shutdown()
				return
			case <-time.After(rest):
			}
		}
	}
}

// drainInbox applies every queued event. Push updates mutate order state,
// control events raise flags or enqueue work; either way all mutation
// happens here, on the loop goroutine.
func (m *Manager) drainInbox(ctx context.Context) {
	for {
		select {
		case ev := <-m.inbox:
			m.handleEvent(ctx, ev)
		default:
			return
		}
	}
}

func (m *Manager) handleEvent(ctx context.Context, ev event.Event) {
	switch e := ev.(type) {
	case event.OrderUpdate:
		m.applyPushUpdate(ctx, e)
	case event.SubmitBatch:
		m.enqueueBatch(e.Intents, e.Priority)
	case event.ExitAll:
		if e.Panic {
			slog.Error("PANIC EXIT TRIGGERED")
			m.exitAllOrders(true)
			return
		}
		m.exitAllRaised = true
	case event.StreamState:
		if e.Connected {
			m.metrics.StreamConnected.Set(1)
		} else {
			m.metrics.StreamConnected.Set(0)
		}
		m.record("", "stream_state", e)
	default:
		slog.Warn("unknown inbox event", slog.Any("type", ev.GetType()))
	}
}

// enqueueBatch adds a batch plus its trailing barrier to the dispatch queue.
// High-priority batches are merged ahead of queued low-priority work.
func (m *Manager) enqueueBatch(intents []*domain.OrderIntent, priority event.Priority) {
	if len(intents) == 0 {
		return
	}

	barrier := domain.NewBarrier()
	batch := make([]*domain.OrderIntent, 0, len(intents)+1)
	batch = append(batch, intents...)
	batch = append(batch, barrier)

	if priority == event.PriorityHigh {
		m.barriers.registerHigh(barrier.ID)
		m.queue.pushHigh(batch)
	} else {
		m.barriers.registerLow(barrier.ID)
		m.queue.pushLow(batch)
	}
}

// drainDispatch pops up to drainCap entries in queue order. A barrier
// completes in place; an ineligible head stops the drain and stays queued.
func (m *Manager) drainDispatch(ctx context.Context) {
	if m.blockAll || m.queue.len() == 0 {
		return
	}

	for n := 0; n < m.drainCap && m.queue.len() > 0; n++ {
		if !m.canPlace(m.queue.head()) {
			return
		}
		m.dispatchOne(ctx, m.queue.popFront())
	}
}

// canPlace is the placement eligibility rule: an order may proceed unless it
// is a barrier blocked by an older still-pending barrier, so nothing races
// ahead of an unfinished earlier wave.
func (m *Manager) canPlace(o *domain.OrderIntent) bool {
	if !o.IsBarrier {
		return true
	}
	return m.barriers.isOldest(o.ID)
}

func (m *Manager) dispatchOne(ctx context.Context, o *domain.OrderIntent) {
	if o.IsBarrier {
		m.barriers.complete(o.ID)
		m.metrics.BarriersCompleted.Inc()
		m.record(o.ID, "barrier_complete", nil)
		slog.Debug("barrier completed", slog.String("id", o.ID))
		return
	}

	// A barrier carries no instrument; anything else with zero quantity is
	// malformed input and is dropped rather than sent.
	if o.Quantity == 0 {
		m.record(o.ID, "dropped_zero_qty", nil)
		return
	}

	if o.IsExit {
		m.disarmStops(o.Symbol, o.ID)
	}

	res := m.gw.Place(ctx, o)
	switch res.Outcome {
	case execution.OutcomePlaced:
		o.VenueID = res.OrderID
		o.Status = domain.StatusOpen
		m.open[o.VenueID] = o
		m.metrics.Orders.WithLabelValues("placed").Inc()
		m.record(o.ID, "placed", map[string]string{"venue_id": o.VenueID})

	case execution.OutcomeRejected:
		o.Status = domain.StatusRejected
		m.metrics.Orders.WithLabelValues("rejected").Inc()
		m.surfaceFailure(o, res.Reason)

	case execution.OutcomeTransport:
		// The venue verdict is unknown; reconcile by tag inside the bounded
		// recovery window instead of resubmitting.
		m.metrics.Orders.WithLabelValues("transport").Inc()
		m.recovery = append(m.recovery, o)
		m.record(o.ID, "recovery_enqueued", map[string]string{"reason": res.Reason})
		slog.Warn("order placement unresolved",
			slog.String("id", o.ID), slog.String("reason", res.Reason))
	}
}

// exitAllOrders flattens every live position. Intents flagged high-priority
// form the first wave; the rest follow as a second wave. Both waves jump
// already-queued entries. forceHigh marks the emergency path.
func (m *Manager) exitAllOrders(forceHigh bool) {
	if len(m.open) == 0 {
		return
	}

	var flagged, rest []*domain.OrderIntent
	for _, o := range m.open {
		ex := domain.ExitFor(o)
		if forceHigh {
			ex.IsHighPriority = true
		}
		if ex.IsHighPriority {
			flagged = append(flagged, ex)
		} else {
			rest = append(rest, ex)
		}
	}

	// High batches stay FIFO among themselves, so the flagged wave goes in
	// first and dispatches first.
	m.enqueueBatch(flagged, event.PriorityHigh)
	m.enqueueBatch(rest, event.PriorityHigh)
	slog.Info("exit-all enqueued",
		slog.Int("high", len(flagged)), slog.Int("low", len(rest)))
}

// surfaceFailure reports a permanently failed intent exactly once: venue
// rejection at placement, terminal rejection after acknowledgment, or a
// recovery-window timeout.
func (m *Manager) surfaceFailure(o *domain.OrderIntent, reason string) {
	m.record(o.ID, "failed", map[string]string{"reason": reason})
	slog.Warn("order failed",
		slog.String("id", o.ID), slog.String("symbol", o.Symbol), slog.String("reason", reason))
	if !o.IsExit {
		m.ledger.FailOpen(o)
	}
}

// record writes one journal row; a nil journal means no audit trail.
func (m *Manager) record(orderID, ev string, payload any) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Record(context.Background(), orderID, ev, m.now().UnixMicro(), payload); err != nil {
		slog.Warn("journal write failed", slog.Any("error", err))
	}
}

func (m *Manager) publishGauges() {
	m.openCount.Store(int64(len(m.open)))
	m.queueDepth.Store(int64(m.queue.len()))
	m.recoveryDepth.Store(int64(len(m.recovery)))
	m.watchDepth.Store(int64(len(m.stops)))

	m.metrics.OpenOrders.Set(float64(len(m.open)))
	m.metrics.QueueDepth.Set(float64(m.queue.len()))
}

// Status is a point-in-time view for the admin surface. Safe to call from
// any goroutine.
type Status struct {
	Running       bool  `json:"running"`
	OpenOrders    int64 `json:"open_orders"`
	QueueDepth    int64 `json:"queue_depth"`
	RecoveryDepth int64 `json:"recovery_depth"`
	StopWatchlist int64 `json:"stop_watchlist"`
}

// GetStatus returns the current externally visible counters.
func (m *Manager) GetStatus() Status {
	return Status{
		Running:       m.running.Load(),
		OpenOrders:    m.openCount.Load(),
		QueueDepth:    m.queueDepth.Load(),
		RecoveryDepth: m.recoveryDepth.Load(),
		StopWatchlist: m.watchDepth.Load(),
	}
}

// shutdown flushes pending structures. In-flight venue calls complete on
// their own; nothing is rolled back.
func (m *Manager) shutdown() {
	m.record("", "session_end", m.GetStatus())
	m.queue.clear()
	m.barriers.clear()
	m.open = make(map[string]*domain.OrderIntent)
	slog.Info("order manager stopped")
}
