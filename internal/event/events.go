package event

import (
	"knite_oms/internal/domain"
)

// Type defines the type of event.
type Type uint16

const (
	EvOrderUpdate Type = iota + 1
	EvSubmitBatch
	EvExitAll
	EvStreamState
)

// Event is the interface for everything flowing through the manager inbox.
// The scheduler loop is the sole consumer; producers are the push stream,
// the admin surface and the importer.
type Event interface {
	GetTs() int64 // Unix microseconds
	GetType() Type
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Ts int64 `json:"ts"`
}

func (e BaseEvent) GetTs() int64 { return e.Ts }

// OrderUpdate carries one venue push notification, already mapped into the
// closed status vocabulary by the gateway.
type OrderUpdate struct {
	BaseEvent
	VenueID   string             `json:"order_id"`
	Status    domain.OrderStatus `json:"status"`
	FilledQty int64              `json:"filled_qty"`
}

func (e OrderUpdate) GetType() Type { return EvOrderUpdate }

// Priority selects the dispatch class of a submitted batch.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
)

// SubmitBatch asks the loop to enqueue a batch of intents for placement.
type SubmitBatch struct {
	BaseEvent
	Intents  []*domain.OrderIntent `json:"-"`
	Priority Priority              `json:"priority"`
}

func (e SubmitBatch) GetType() Type { return EvSubmitBatch }

// ExitAll raises the out-of-band flatten-everything command. Panic marks the
// emergency path: the resulting exit batch takes the highest priority.
type ExitAll struct {
	BaseEvent
	Panic bool `json:"panic"`
}

func (e ExitAll) GetType() Type { return EvExitAll }

// StreamState reports push-subscription connectivity changes, for journaling
// and metrics only; correctness never depends on the stream being up.
type StreamState struct {
	BaseEvent
	Connected bool `json:"connected"`
}

func (e StreamState) GetType() Type { return EvStreamState }
