package router

import (
	"context"
	"testing"
	"time"

	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoutingOrder() *order.Order {
	return &order.Order{
		OperationID: "op-1", CanonicalID: "SPOT_PAIR:BTC-USDT",
		Side: order.SideBuy, Type: order.TypeLimit,
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(50000),
	}
}

func TestRoutePassesThroughVenueBoundInstrument(t *testing.T) {
	r := New(&observability.Logger{}, Config{}, nil)
	o := &order.Order{
		CanonicalID: "binance:SPOT_PAIR:BTC-USDT", VenueKind: order.VenueKindIntegrated,
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(50000),
	}

	d, err := r.Route(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, "binance", d.Venue)
	assert.Nil(t, d.ChildPlan)
}

func TestRouteReturnsErrorWhenNoEligibleVenues(t *testing.T) {
	r := New(&observability.Logger{}, Config{}, nil)
	_, err := r.Route(context.Background(), testRoutingOrder())
	assert.Error(t, err)
}

func TestRouteSelectsLowestCostVenue(t *testing.T) {
	r := New(&observability.Logger{}, Config{}, nil)
	r.SetVenues("SPOT_PAIR:BTC-USDT", []VenueProfile{
		{VenueCode: "expensive", FeeRate: decimal.NewFromFloat(0.01)},
		{VenueCode: "cheap", FeeRate: decimal.NewFromFloat(0.0001)},
	})

	d, err := r.Route(context.Background(), testRoutingOrder())
	require.NoError(t, err)
	assert.Equal(t, "cheap", d.Venue)
}

func TestRouteTieBreaksByLowestLatencyThenVenueCode(t *testing.T) {
	r := New(&observability.Logger{}, Config{}, nil)
	r.SetVenues("SPOT_PAIR:BTC-USDT", []VenueProfile{
		{VenueCode: "zzz", FeeRate: decimal.Zero, LatencyPenalty: decimal.NewFromFloat(0.1)},
		{VenueCode: "bbb", FeeRate: decimal.Zero, LatencyPenalty: decimal.NewFromFloat(0.1)},
		{VenueCode: "aaa", FeeRate: decimal.Zero, LatencyPenalty: decimal.NewFromFloat(0.5)},
	})

	d, err := r.Route(context.Background(), testRoutingOrder())
	require.NoError(t, err)
	assert.Equal(t, "bbb", d.Venue) // same cost as zzz, same latency, lexicographically first
}

func TestRouteProducesSplitPlanWhenOverMaxClipSize(t *testing.T) {
	r := New(&observability.Logger{}, Config{EnableSplitPlans: true}, nil)
	r.SetVenues("SPOT_PAIR:BTC-USDT", []VenueProfile{
		{VenueCode: "small", FeeRate: decimal.NewFromFloat(0.0001), MaxClipSize: decimal.NewFromFloat(0.4)},
		{VenueCode: "other", FeeRate: decimal.NewFromFloat(0.0002), MaxClipSize: decimal.NewFromFloat(0.4)},
	})
	o := testRoutingOrder()
	o.Quantity = decimal.NewFromInt(1)

	d, err := r.Route(context.Background(), o)
	require.NoError(t, err)
	require.NotNil(t, d.ChildPlan)

	sum := decimal.Zero
	for _, c := range d.ChildPlan {
		sum = sum.Add(c.Quantity)
	}
	assert.True(t, sum.Equal(o.Quantity))
}

type fakeDepthProbe struct {
	slippage decimal.Decimal
	calls    int
}

func (f *fakeDepthProbe) Probe(ctx context.Context, canonicalID, venueCode string, quantity decimal.Decimal) (decimal.Decimal, error) {
	f.calls++
	return f.slippage, nil
}

func TestRouteUsesCachedDepthProbeForSlippage(t *testing.T) {
	probe := &fakeDepthProbe{slippage: decimal.NewFromInt(100)}
	r := New(&observability.Logger{}, Config{ProbeCacheTTL: time.Minute}, probe)
	r.SetVenues("SPOT_PAIR:BTC-USDT", []VenueProfile{{VenueCode: "v1"}})

	_, err := r.Route(context.Background(), testRoutingOrder())
	require.NoError(t, err)
	_, err = r.Route(context.Background(), testRoutingOrder())
	require.NoError(t, err)

	assert.Equal(t, 1, probe.calls) // second call served from cache
}
