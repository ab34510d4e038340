package domain

import "github.com/shopspring/decimal"

// OrderStatus is the closed lifecycle vocabulary. Venue status strings are
// mapped into it at the gateway boundary and never travel past it.
type OrderStatus string

const (
	StatusPending  OrderStatus = "PENDING"
	StatusOpen     OrderStatus = "OPEN"
	StatusComplete OrderStatus = "COMPLETE"
	StatusRejected OrderStatus = "REJECTED"
)

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusRejected
}

// OrderKind classifies how an order prices itself.
type OrderKind string

const (
	KindLimit  OrderKind = "LIMIT"
	KindStop   OrderKind = "SL"
	KindMarket OrderKind = "MARKET"
)

// Snapshot is an immutable broker-reported view of an order, fetched by poll
// or constructed from a push message. A newer snapshot supersedes an older
// one; snapshots are never mutated.
type Snapshot struct {
	ID        string
	Status    OrderStatus
	Kind      OrderKind
	FilledQty int64
	Price     decimal.Decimal
	Quantity  int64
	Tag       string // venue-echoed correlation tag, used by tag reconciliation
}
