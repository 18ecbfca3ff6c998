package deribit

import (
	"time"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/order"
	"github.com/shopspring/decimal"
)

type authResponse struct {
	Result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	} `json:"result"`
}

type deribitOrder struct {
	OrderID        string `json:"order_id"`
	InstrumentName string `json:"instrument_name"`
	Direction      string `json:"direction"`
	OrderState     string `json:"order_state"`
	Price          float64 `json:"price"`
	FilledAmount   float64 `json:"filled_amount"`
	Amount         float64 `json:"amount"`
	AveragePrice   float64 `json:"average_price"`
}

func (o deribitOrder) toSubmitResult() adapter.SubmitResult {
	if o.OrderState == "rejected" {
		return adapter.SubmitResult{Accepted: false, RejectReason: "rejected"}
	}
	return adapter.SubmitResult{Accepted: true, VenueOrderID: o.OrderID}
}

func (o deribitOrder) toOrderSnapshot(canonicalID string) adapter.OrderSnapshot {
	return adapter.OrderSnapshot{
		VenueOrderID: o.OrderID,
		CanonicalID:  canonicalID,
		Status:       convertOrderState(o.OrderState),
		FilledQty:    decimal.NewFromFloat(o.FilledAmount),
		AvgPrice:     decimal.NewFromFloat(o.AveragePrice),
		UpdatedAt:    time.Now(),
	}
}

func convertOrderState(state string) order.Status {
	switch state {
	case "open":
		return order.StatusSubmitted
	case "filled":
		return order.StatusFilled
	case "cancelled":
		return order.StatusCancelled
	case "rejected":
		return order.StatusRejected
	case "untriggered":
		return order.StatusSubmitted
	default:
		return order.StatusSubmitted
	}
}

type orderResultEnvelope struct {
	Result struct {
		Order deribitOrder `json:"order"`
	} `json:"result"`
}

type cancelResultEnvelope struct {
	Result deribitOrder `json:"result"`
}

type openOrdersEnvelope struct {
	Result []deribitOrder `json:"result"`
}

type deribitPosition struct {
	InstrumentName string  `json:"instrument_name"`
	Size           float64 `json:"size"`
	MarkPrice      float64 `json:"mark_price"`
}

func (p deribitPosition) toPositionSnapshot(canonicalID, venueCode string) adapter.PositionSnapshot {
	return adapter.PositionSnapshot{
		PositionKey: canonicalID,
		Venue:       venueCode,
		Quantity:    decimal.NewFromFloat(p.Size),
		MarkPrice:   decimal.NewFromFloat(p.MarkPrice),
		UpdatedAt:   time.Now(),
	}
}

type positionsEnvelope struct {
	Result []deribitPosition `json:"result"`
}

func deribitOrderType(t order.Type) string {
	if t == order.TypeMarket {
		return "market"
	}
	return "limit"
}
