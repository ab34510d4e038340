// Package importer turns order-export files into executable intents. The
// format is JSON lines, one order per line; blank lines and lines starting
// with # are skipped.
//
//	{"symbol":"GOLDM24DECFUT","quantity":1,"price":"76500","stop_price":"76100"}
package importer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"knite_oms/internal/domain"
)

// exportOrder is the wire shape of one line. Prices travel as strings to
// avoid float rounding in hand-edited files; bare numbers also decode.
type exportOrder struct {
	Symbol       string          `json:"symbol"`
	Exchange     string          `json:"exchange,omitempty"`
	Quantity     int64           `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	StopPrice    decimal.Decimal `json:"stop_price,omitempty"`
	Kind         string          `json:"kind,omitempty"` // LIMIT (default), MARKET
	HighPriority bool            `json:"high_priority,omitempty"`
	Tag          string          `json:"tag,omitempty"`
}

// ReadFile parses an export file into order intents.
func ReadFile(path string) ([]*domain.OrderIntent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open order file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses order lines from r. The whole input is rejected on the first
// malformed line; a partially imported batch is worse than none.
func Read(r io.Reader) ([]*domain.OrderIntent, error) {
	var out []*domain.OrderIntent
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var eo exportOrder
		if err := json.Unmarshal([]byte(text), &eo); err != nil {
			return nil, fmt.Errorf("order file line %d: %w", line, err)
		}
		o, err := toIntent(eo)
		if err != nil {
			return nil, fmt.Errorf("order file line %d: %w", line, err)
		}
		out = append(out, o)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read order file: %w", err)
	}
	return out, nil
}

func toIntent(eo exportOrder) (*domain.OrderIntent, error) {
	if eo.Symbol == "" {
		return nil, fmt.Errorf("missing symbol")
	}
	if eo.Quantity == 0 {
		return nil, fmt.Errorf("zero quantity for %s", eo.Symbol)
	}

	kind := domain.KindLimit
	switch strings.ToUpper(eo.Kind) {
	case "", "LIMIT":
		if eo.Price.IsZero() {
			return nil, fmt.Errorf("limit order for %s without a price", eo.Symbol)
		}
	case "MARKET":
		kind = domain.KindMarket
	default:
		return nil, fmt.Errorf("unknown order kind %q", eo.Kind)
	}

	o := domain.NewOrderIntent(kind)
	o.Symbol = eo.Symbol
	if eo.Exchange != "" {
		o.Exchange = eo.Exchange
	}
	o.Quantity = eo.Quantity
	o.Price = eo.Price
	o.StopPrice = eo.StopPrice
	o.IsHighPriority = eo.HighPriority
	if eo.Tag != "" {
		o.Tag = eo.Tag
	}
	return o, nil
}
