package integrated

import (
	"net/url"
	"strings"
	"time"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/order"
	"github.com/shopspring/decimal"
)

// venueOrderResponse mirrors the Binance-shaped order payload the teacher's
// BinanceOrderResponse decodes; every integrated-style venue in this family
// (Binance, Bybit spot, OKX unified) returns the same field set.
type venueOrderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	RejectReason  string `json:"rejectReason,omitempty"`
}

func (r venueOrderResponse) toSubmitResult() adapter.SubmitResult {
	if isTerminalRejectStatus(r.Status) {
		return adapter.SubmitResult{Accepted: false, RejectReason: r.RejectReason}
	}
	return adapter.SubmitResult{Accepted: true, VenueOrderID: itoa(r.OrderID)}
}

func (r venueOrderResponse) toOrderSnapshot(canonicalID string) adapter.OrderSnapshot {
	filled := decimalOrZero(r.ExecutedQty)
	avg := decimalOrZero(r.Price)
	return adapter.OrderSnapshot{
		VenueOrderID: itoa(r.OrderID),
		CanonicalID:  canonicalID,
		Status:       convertStatus(r.Status),
		FilledQty:    filled,
		AvgPrice:     avg,
		UpdatedAt:    time.Now(),
	}
}

type venuePositionResponse struct {
	Symbol      string `json:"symbol"`
	PositionAmt string `json:"positionAmt"`
	MarkPrice   string `json:"markPrice"`
}

func (r venuePositionResponse) toPositionSnapshot(canonicalID, venueCode string) adapter.PositionSnapshot {
	return adapter.PositionSnapshot{
		PositionKey: canonicalID,
		Venue:       venueCode,
		Quantity:    decimalOrZero(r.PositionAmt),
		MarkPrice:   decimalOrZero(r.MarkPrice),
		UpdatedAt:   time.Now(),
	}
}

func buildOrderParams(symbol string, req adapter.SubmitRequest) url.Values {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("side", convertSide(req.Side))
	params.Set("type", convertType(req.Type))
	params.Set("quantity", req.Quantity.String())
	params.Set("newClientOrderId", req.OperationID)
	if req.Type == order.TypeLimit {
		params.Set("price", req.Price.String())
		params.Set("timeInForce", convertTIF(req.TimeInForce))
	}
	return params
}

func convertSide(s order.Side) string {
	if s == order.SideSell {
		return "SELL"
	}
	return "BUY"
}

func convertType(t order.Type) string {
	switch t {
	case order.TypeMarket:
		return "MARKET"
	case order.TypeLimit:
		return "LIMIT"
	default:
		return "LIMIT"
	}
}

func convertTIF(tif order.TimeInForce) string {
	switch tif {
	case order.TIFIOC:
		return "IOC"
	case order.TIFFOK:
		return "FOK"
	default:
		return "GTC"
	}
}

func convertStatus(venueStatus string) order.Status {
	switch venueStatus {
	case "NEW":
		return order.StatusSubmitted
	case "PARTIALLY_FILLED":
		return order.StatusPartiallyFilled
	case "FILLED":
		return order.StatusFilled
	case "CANCELED", "PENDING_CANCEL":
		return order.StatusCancelled
	case "REJECTED":
		return order.StatusRejected
	case "EXPIRED":
		return order.StatusExpired
	default:
		return order.StatusSubmitted
	}
}

func isTerminalRejectStatus(venueStatus string) bool {
	return venueStatus == "REJECTED"
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func itoa(v int64) string {
	return decimal.NewFromInt(v).String()
}
