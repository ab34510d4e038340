package flattrade

import "knite_oms/internal/domain"

// Venue endpoints. The REST API follows the Noren conventions: POST bodies
// of the form "jData=<json>&jKey=<token>".
const (
	DefaultBaseURL = "https://piconnect.flattrade.in/PiConnectTP"
	DefaultWSURL   = "wss://piconnect.flattrade.in/PiConnectWSTp/"
)

// placeRequest is the venue order payload.
type placeRequest struct {
	UID          string `json:"uid"`
	ActID        string `json:"actid"`
	Exchange     string `json:"exch"`
	TradingSym   string `json:"tsym"`
	Quantity     string `json:"qty"`
	Product      string `json:"prd"`
	TranType     string `json:"trantype"` // "B" or "S"
	Retention    string `json:"ret"`      // always "DAY"
	PriceType    string `json:"prctyp"`   // "LMT", "SL-LMT", "MKT"
	Price        string `json:"prc"`
	TriggerPrice string `json:"trgprc,omitempty"`
	Remarks      string `json:"remarks,omitempty"` // correlation tag
}

// placeResponse is the venue acknowledgment.
type placeResponse struct {
	Stat       string `json:"stat"` // "Ok" / "Not_Ok"
	OrderNo    string `json:"norenordno"`
	ErrMessage string `json:"emsg"`
}

// modifyRequest adjusts a live order in place.
type modifyRequest struct {
	UID          string `json:"uid"`
	OrderNo      string `json:"norenordno"`
	Exchange     string `json:"exch"`
	TradingSym   string `json:"tsym"`
	Quantity     string `json:"qty"`
	Price        string `json:"prc"`
	TriggerPrice string `json:"trgprc,omitempty"`
}

// orderDetail is one row of the venue order book / single order status.
type orderDetail struct {
	Stat       string `json:"stat"`
	OrderNo    string `json:"norenordno"`
	Status     string `json:"status"`
	PriceType  string `json:"prctyp"`
	FillShares string `json:"fillshares"`
	Price      string `json:"prc"`
	Quantity   string `json:"qty"`
	Remarks    string `json:"remarks"`
	ErrMessage string `json:"emsg"`
}

// quoteResponse carries the reference price of an instrument.
type quoteResponse struct {
	Stat      string `json:"stat"`
	LastPrice string `json:"lp"`
}

// wsAuthRequest opens the push subscription.
type wsAuthRequest struct {
	T         string `json:"t"` // "c"
	UID       string `json:"uid"`
	ActID     string `json:"actid"`
	UserToken string `json:"susertoken"`
	Source    string `json:"source,omitempty"`
}

// wsMessage is the envelope of every push frame. Only order-update ("om")
// frames matter to the engine; connection acks ("ck") are consumed here.
type wsMessage struct {
	T         string `json:"t"`
	OrderNo   string `json:"norenordno"`
	Status    string `json:"status"`
	FilledQty string `json:"fillshares"`
}

// mapStatus folds the venue status vocabulary into the closed lifecycle set.
// Raw venue strings never travel past this package. Unknown statuses return
// ok=false and are ignored by callers.
func mapStatus(venue string) (domain.OrderStatus, bool) {
	switch venue {
	case "REJECTED", "CANCELED", "CANCELLED":
		return domain.StatusRejected, true
	case "COMPLETE":
		return domain.StatusComplete, true
	case "OPEN", "PENDING", "TRIGGER_PENDING":
		return domain.StatusOpen, true
	default:
		return "", false
	}
}

// mapKind translates the local order kind to the venue price type.
func mapKind(kind domain.OrderKind) string {
	switch kind {
	case domain.KindLimit:
		return "LMT"
	case domain.KindStop:
		return "SL-LMT"
	default:
		return "MKT"
	}
}

// mapPriceType translates a venue price type back to the local kind.
func mapPriceType(prctyp string) domain.OrderKind {
	switch prctyp {
	case "LMT":
		return domain.KindLimit
	case "SL-LMT", "SL-MKT":
		return domain.KindStop
	default:
		return domain.KindMarket
	}
}
