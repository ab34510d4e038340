package execution

import (
	"context"

	"github.com/shopspring/decimal"

	"knite_oms/internal/domain"
)

// Outcome classifies the result of a placement attempt. Placement failures
// are data, not control flow: the recovery list is driven by matching on
// this, never by catching errors.
type Outcome int

const (
	// OutcomePlaced means the venue acknowledged and returned an identity.
	OutcomePlaced Outcome = iota
	// OutcomeRejected means the venue (or pre-send validation) refused the
	// order. Terminal; never retried.
	OutcomeRejected
	// OutcomeTransport means the call failed before a venue verdict was
	// known. The order enters the bounded recovery window.
	OutcomeTransport
)

// PlaceResult is the explicit result of Gateway.Place.
type PlaceResult struct {
	Outcome Outcome
	OrderID string // venue identity, set when Outcome == OutcomePlaced
	Reason  string // human-readable cause for Rejected/Transport
}

// Placed is a convenience constructor for the success case.
func Placed(id string) PlaceResult { return PlaceResult{Outcome: OutcomePlaced, OrderID: id} }

// Rejected marks a definitive venue/validation refusal.
func Rejected(reason string) PlaceResult {
	return PlaceResult{Outcome: OutcomeRejected, Reason: reason}
}

// Transport marks an ambiguous failure (the order may or may not exist).
func Transport(err error) PlaceResult {
	return PlaceResult{Outcome: OutcomeTransport, Reason: err.Error()}
}

// Gateway is the abstract brokerage contract the engine depends on. The
// concrete wire protocol, session handling and field mapping live behind it.
type Gateway interface {
	// Place submits one order. Venue-specific mapping (kind to price-type,
	// trigger presence, side from quantity sign) is the gateway's job.
	Place(ctx context.Context, o *domain.OrderIntent) PlaceResult

	// Modify adjusts quantity/price/trigger of a live order in place.
	Modify(ctx context.Context, venueID string, qty int64, price, trigger decimal.Decimal) error

	// FetchByIDs batch-fetches snapshots for the given venue identities.
	FetchByIDs(ctx context.Context, ids []string) ([]domain.Snapshot, error)

	// FetchByTags fetches snapshots carrying any of the given correlation
	// tags. Used only by error recovery.
	FetchByTags(ctx context.Context, tags []string) ([]domain.Snapshot, error)

	// LastPrice returns the instrument's current reference price.
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
