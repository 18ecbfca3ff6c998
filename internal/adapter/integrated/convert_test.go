package integrated

import (
	"testing"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBuildOrderParamsLimitOrder(t *testing.T) {
	req := adapter.SubmitRequest{
		OperationID: "op-1",
		CanonicalID: "binance:spot:BTC-USDT",
		Side:        order.SideBuy,
		Quantity:    decimal.NewFromFloat(0.5),
		Price:       decimal.NewFromInt(50000),
		Type:        order.TypeLimit,
		TimeInForce: order.TIFGTC,
	}
	params := buildOrderParams("BTCUSDT", req)
	assert.Equal(t, "BTCUSDT", params.Get("symbol"))
	assert.Equal(t, "BUY", params.Get("side"))
	assert.Equal(t, "LIMIT", params.Get("type"))
	assert.Equal(t, "GTC", params.Get("timeInForce"))
	assert.Equal(t, "50000", params.Get("price"))
}

func TestBuildOrderParamsMarketOrderOmitsPrice(t *testing.T) {
	req := adapter.SubmitRequest{
		Side:     order.SideSell,
		Quantity: decimal.NewFromInt(1),
		Type:     order.TypeMarket,
	}
	params := buildOrderParams("ETHUSDT", req)
	assert.Equal(t, "MARKET", params.Get("type"))
	assert.Equal(t, "", params.Get("price"))
}

func TestConvertStatusMapsVenueStatusToLifecycleStatus(t *testing.T) {
	assert.Equal(t, order.StatusSubmitted, convertStatus("NEW"))
	assert.Equal(t, order.StatusPartiallyFilled, convertStatus("PARTIALLY_FILLED"))
	assert.Equal(t, order.StatusFilled, convertStatus("FILLED"))
	assert.Equal(t, order.StatusCancelled, convertStatus("CANCELED"))
	assert.Equal(t, order.StatusRejected, convertStatus("REJECTED"))
}

func TestVenueOrderResponseToSubmitResult(t *testing.T) {
	accepted := venueOrderResponse{OrderID: 42, Status: "NEW"}
	res := accepted.toSubmitResult()
	assert.True(t, res.Accepted)
	assert.Equal(t, "42", res.VenueOrderID)

	rejected := venueOrderResponse{OrderID: 43, Status: "REJECTED", RejectReason: "insufficient balance"}
	res = rejected.toSubmitResult()
	assert.False(t, res.Accepted)
	assert.Equal(t, "insufficient balance", res.RejectReason)
}
