package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"knite_oms/internal/domain"
)

// MockGateway is a scriptable in-memory gateway. It records every call and
// serves canned responses, for tests and for running the engine without a
// venue connection.
type MockGateway struct {
	mu sync.Mutex

	// Scripted behavior. When PlaceResults is exhausted, Place acknowledges
	// with a generated identity.
	PlaceResults []PlaceResult
	Snapshots    map[string]domain.Snapshot // venue id -> snapshot served by FetchByIDs
	TagSnapshots map[string][]domain.Snapshot
	Prices       map[string]decimal.Decimal
	ModifyErr    error

	Placed    []*domain.OrderIntent
	Modified  []string
	IDQueries [][]string
	nextID    int
}

// NewMockGateway returns an empty mock that acknowledges everything.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Snapshots:    make(map[string]domain.Snapshot),
		TagSnapshots: make(map[string][]domain.Snapshot),
		Prices:       make(map[string]decimal.Decimal),
	}
}

func (m *MockGateway) Place(ctx context.Context, o *domain.OrderIntent) PlaceResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Placed = append(m.Placed, o)
	if len(m.PlaceResults) > 0 {
		res := m.PlaceResults[0]
		m.PlaceResults = m.PlaceResults[1:]
		return res
	}

	m.nextID++
	id := fmt.Sprintf("V%06d", m.nextID)
	slog.Debug("mock gateway: order acknowledged",
		slog.String("id", id), slog.String("symbol", o.Symbol), slog.Int64("qty", o.Quantity))
	return Placed(id)
}

func (m *MockGateway) Modify(ctx context.Context, venueID string, qty int64, price, trigger decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Modified = append(m.Modified, venueID)
	return m.ModifyErr
}

func (m *MockGateway) FetchByIDs(ctx context.Context, ids []string) ([]domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.IDQueries = append(m.IDQueries, ids)
	out := make([]domain.Snapshot, 0, len(ids))
	for _, id := range ids {
		if snap, ok := m.Snapshots[id]; ok {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (m *MockGateway) FetchByTags(ctx context.Context, tags []string) ([]domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Snapshot
	for _, tag := range tags {
		out = append(out, m.TagSnapshots[tag]...)
	}
	return out, nil
}

func (m *MockGateway) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	price, ok := m.Prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price available for %s", symbol)
	}
	return price, nil
}

// PlacedCount returns how many orders reached Place.
func (m *MockGateway) PlacedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Placed)
}
