package domain

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderIntent is an order this system wants placed, or has placed and is
// tracking. The quantity sign encodes the side (positive buy, negative sell)
// and is fixed at creation.
type OrderIntent struct {
	ID        string // local identity, nanosecond based
	VenueID   string // broker identity, set after placement
	Kind      OrderKind
	Product   string // venue product classification, "I" = intraday
	Quantity  int64  // signed; sign = side
	Price     decimal.Decimal
	StopPrice decimal.Decimal // protective trigger; required for KindStop
	Exchange  string
	Symbol    string
	CreatedAt time.Time
	Tag       string // correlation key for error recovery

	IsBarrier      bool
	IsExit         bool
	IsHighPriority bool
	IsRetried      bool

	Status       OrderStatus
	FilledQty    int64
	StopBreached bool

	// Parent is a non-owning reference set on stop-loss children.
	// The parent is never mutated through it.
	Parent *OrderIntent
}

// NewOrderIntent creates a pending intent with a fresh local identity and
// correlation tag.
func NewOrderIntent(kind OrderKind) *OrderIntent {
	return &OrderIntent{
		ID:        NewOrderID(),
		Kind:      kind,
		Product:   "I",
		Exchange:  "MCX",
		Status:    StatusPending,
		CreatedAt: time.Now(),
		Tag:       NewTag(),
	}
}

// NewBarrier creates a synchronization sentinel. A barrier carries no
// instrument and never reaches the broker gateway.
func NewBarrier() *OrderIntent {
	b := NewOrderIntent(KindLimit)
	b.IsBarrier = true
	b.Tag = "BARRIER"
	return b
}

// NewStopLoss derives a protective child from a filled entry order: same
// instrument and quantity direction reversed for the exit, priced at the
// parent's stop trigger.
func NewStopLoss(parent *OrderIntent) *OrderIntent {
	sl := NewOrderIntent(KindStop)
	sl.Parent = parent
	sl.Exchange = parent.Exchange
	sl.Symbol = parent.Symbol
	sl.Product = parent.Product
	sl.Quantity = -parent.Quantity
	sl.Price = parent.StopPrice
	sl.StopPrice = parent.StopPrice
	sl.IsExit = true
	return sl
}

// ExitFor builds a flattening counter-order for a live intent. Exits are
// dispatched ahead of queued entries.
func ExitFor(o *OrderIntent) *OrderIntent {
	ex := NewOrderIntent(KindMarket)
	ex.Exchange = o.Exchange
	ex.Symbol = o.Symbol
	ex.Product = o.Product
	ex.Quantity = -o.Quantity
	ex.IsExit = true
	ex.IsHighPriority = o.IsHighPriority
	return ex
}

// IsStopLoss reports whether this is a protective stop order.
func (o *OrderIntent) IsStopLoss() bool { return o.Kind == KindStop }

// IsOpen reports whether the venue has acknowledged the order and it has not
// reached a terminal state.
func (o *OrderIntent) IsOpen() bool { return o.Status == StatusOpen }

// TimedOut reports whether the intent has been unresolved longer than the
// recovery window.
func (o *OrderIntent) TimedOut(now time.Time, window time.Duration) bool {
	return now.Sub(o.CreatedAt) > window
}

var orderSeq atomic.Int64

// NewOrderID returns a nanosecond-based local order identity. The sequence
// suffix keeps identities unique when two are created within one clock step.
func NewOrderID() string {
	return fmt.Sprintf("ORD_%d_%d", time.Now().UnixNano(), orderSeq.Add(1))
}

// NewTag returns a short correlation tag safe for venue remark fields.
func NewTag() string {
	u := uuid.New()
	return "KN" + u.String()[:8]
}
