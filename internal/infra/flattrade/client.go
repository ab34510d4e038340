package flattrade

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"knite_oms/internal/domain"
	"knite_oms/internal/execution"
	"knite_oms/internal/infra"
)

// Client implements execution.Gateway against the Flattrade REST API.
// Every outbound call passes the rate limiter; the poll endpoints
// additionally sit behind a circuit breaker so a venue outage sheds calls
// instead of stalling ticks.
type Client struct {
	baseURL      string
	userID       string
	token        string
	tokenFile    string
	verifyCached bool

	http    *http.Client
	limiter *infra.RateLimiter
	breaker *infra.CircuitBreaker
}

// NewClient builds a gateway client from config. Authenticate must be called
// before any order call.
func NewClient(cfg *infra.Config) *Client {
	baseURL := cfg.Flattrade.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		userID:       cfg.Flattrade.UserID,
		tokenFile:    cfg.Flattrade.TokenFile,
		verifyCached: cfg.Flattrade.VerifyCached,
		http:         &http.Client{Timeout: 10 * time.Second},
		limiter:      infra.NewRateLimiter(time.Duration(cfg.Flattrade.RateLimitMS) * time.Millisecond),
		breaker:      infra.NewCircuitBreaker("flattrade-poll"),
	}
}

// Place submits one order. Field mapping is this gateway's responsibility:
// kind to price type, quantity sign to transaction side, MCX prefix strip.
// An unencodable payload is a definitive rejection, never sent.
func (c *Client) Place(ctx context.Context, o *domain.OrderIntent) execution.PlaceResult {
	if o.Kind == domain.KindStop && o.StopPrice.IsZero() {
		return execution.Rejected("stop order without trigger price")
	}

	side := "B"
	if o.Quantity < 0 {
		side = "S"
	}
	qty := o.Quantity
	if qty < 0 {
		qty = -qty
	}

	req := placeRequest{
		UID:        c.userID,
		ActID:      c.userID,
		Exchange:   o.Exchange,
		TradingSym: strings.TrimPrefix(o.Symbol, "MCX:"),
		Quantity:   strconv.FormatInt(qty, 10),
		Product:    o.Product,
		TranType:   side,
		Retention:  "DAY",
		PriceType:  mapKind(o.Kind),
		Remarks:    o.Tag,
	}

	switch o.Kind {
	case domain.KindStop:
		req.Price = o.StopPrice.String()
		req.TriggerPrice = o.StopPrice.String()
	case domain.KindLimit:
		req.Price = o.Price.String()
	default:
		req.Price = "0"
	}

	var resp placeResponse
	if err := c.post(ctx, "/PlaceOrder", req, &resp); err != nil {
		if isEncodeErr(err) {
			return execution.Rejected(err.Error())
		}
		return execution.Transport(err)
	}

	if resp.Stat != "Ok" || resp.OrderNo == "" {
		return execution.Rejected(resp.ErrMessage)
	}

	slog.Info("flattrade: order placed",
		slog.String("venue_id", resp.OrderNo), slog.String("symbol", o.Symbol),
		slog.String("side", side), slog.Int64("qty", qty))
	return execution.Placed(resp.OrderNo)
}

// Modify adjusts a live order in place. Fire-and-forget from the engine's
// point of view; failures are logged, not escalated.
func (c *Client) Modify(ctx context.Context, venueID string, qty int64, price, trigger decimal.Decimal) error {
	if qty < 0 {
		qty = -qty
	}
	req := modifyRequest{
		UID:      c.userID,
		OrderNo:  venueID,
		Quantity: strconv.FormatInt(qty, 10),
		Price:    price.String(),
	}
	if !trigger.IsZero() {
		req.TriggerPrice = trigger.String()
	}

	var resp placeResponse
	if err := c.post(ctx, "/ModifyOrder", req, &resp); err != nil {
		return err
	}
	if resp.Stat != "Ok" {
		return fmt.Errorf("modification refused: %s", resp.ErrMessage)
	}
	return nil
}

// FetchByIDs batch-fetches snapshots. One rate-limit slot covers the batch;
// a single failed lookup does not abort the rest.
func (c *Client) FetchByIDs(ctx context.Context, ids []string) ([]domain.Snapshot, error) {
	if !c.breaker.Allow() {
		return nil, fmt.Errorf("flattrade poll circuit open")
	}

	snaps := make([]domain.Snapshot, 0, len(ids))
	for _, id := range ids {
		var detail orderDetail
		err := c.post(ctx, "/SingleOrdStatus", map[string]string{
			"uid":        c.userID,
			"norenordno": id,
		}, &detail)
		if err != nil {
			c.breaker.RecordFailure()
			return snaps, err
		}
		if snap, ok := toSnapshot(detail); ok {
			snaps = append(snaps, snap)
		}
	}

	c.breaker.RecordSuccess()
	return snaps, nil
}

// FetchByTags pulls the full order book and filters by correlation tag.
func (c *Client) FetchByTags(ctx context.Context, tags []string) ([]domain.Snapshot, error) {
	if !c.breaker.Allow() {
		return nil, fmt.Errorf("flattrade poll circuit open")
	}

	var book []orderDetail
	if err := c.postList(ctx, "/OrderBook", map[string]string{"uid": c.userID}, &book); err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}
	c.breaker.RecordSuccess()

	wanted := make(map[string]bool, len(tags))
	for _, tag := range tags {
		wanted[tag] = true
	}

	var snaps []domain.Snapshot
	for _, detail := range book {
		if !wanted[detail.Remarks] {
			continue
		}
		if snap, ok := toSnapshot(detail); ok {
			snaps = append(snaps, snap)
		}
	}
	return snaps, nil
}

// LastPrice returns the instrument's current reference price.
func (c *Client) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var quote quoteResponse
	err := c.post(ctx, "/GetQuotes", map[string]string{
		"uid":  c.userID,
		"exch": "MCX",
		"tsym": strings.TrimPrefix(symbol, "MCX:"),
	}, &quote)
	if err != nil {
		return decimal.Zero, err
	}
	if quote.Stat != "Ok" || quote.LastPrice == "" {
		return decimal.Zero, fmt.Errorf("no quote for %s", symbol)
	}
	return decimal.NewFromString(quote.LastPrice)
}

// toSnapshot converts a venue order row into the local immutable view.
// Rows with an unknown status are dropped.
func toSnapshot(d orderDetail) (domain.Snapshot, bool) {
	status, ok := mapStatus(d.Status)
	if !ok {
		return domain.Snapshot{}, false
	}

	filled, _ := strconv.ParseInt(d.FillShares, 10, 64)
	qty, _ := strconv.ParseInt(d.Quantity, 10, 64)
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		price = decimal.Zero
	}

	return domain.Snapshot{
		ID:        d.OrderNo,
		Status:    status,
		Kind:      mapPriceType(d.PriceType),
		FilledQty: filled,
		Price:     price,
		Quantity:  qty,
		Tag:       d.Remarks,
	}, true
}

type encodeError struct{ err error }

func (e encodeError) Error() string { return "payload encode failed: " + e.err.Error() }
func (e encodeError) Unwrap() error { return e.err }

func isEncodeErr(err error) bool {
	_, ok := err.(encodeError)
	return ok
}

// post sends one "jData=<json>&jKey=<token>" request and decodes a single
// JSON object response.
func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := c.doRequest(ctx, path, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("malformed response from %s: %w", path, err)
	}
	return nil
}

// postList is post for endpoints returning a JSON array.
func (c *Client) postList(ctx context.Context, path string, payload any, out *[]orderDetail) error {
	body, err := c.doRequest(ctx, path, payload)
	if err != nil {
		return err
	}
	// The venue returns {"stat":"Not_Ok",...} instead of [] when empty.
	if len(body) > 0 && body[0] == '{' {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("malformed response from %s: %w", path, err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, path string, payload any) ([]byte, error) {
	jData, err := json.Marshal(payload)
	if err != nil {
		return nil, encodeError{err}
	}

	c.limiter.Wait()

	body := "jData=" + string(jData) + "&jKey=" + c.token

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned HTTP %d", path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
