package risk

import (
	"context"
	"testing"
	"time"

	"github.com/execorch/execorch/internal/instrument"
	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/internal/position"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	meta map[string]instrument.Metadata
}

func (f *fakeRegistry) Lookup(ctx context.Context, canonicalID string) (instrument.Metadata, error) {
	m, ok := f.meta[canonicalID]
	if !ok {
		return instrument.Metadata{}, instrument.ErrNotFound
	}
	return m, nil
}

type fakeVelocityCounter struct {
	countPerSecond int
	countPerMinute int
}

func (f *fakeVelocityCounter) CountByStrategySince(ctx context.Context, strategyID string, since time.Time) (int, error) {
	if time.Since(since) <= 2*time.Second {
		return f.countPerSecond, nil
	}
	return f.countPerMinute, nil
}

func newTestEngine(t *testing.T, cfg Config, counter velocityCounter) *Engine {
	t.Helper()
	registry := &fakeRegistry{meta: map[string]instrument.Metadata{
		"binance:SPOT_PAIR:BTC-USDT": {
			CanonicalID: "binance:SPOT_PAIR:BTC-USDT", PricePrecision: 2, SizePrecision: 4,
			MinSize: decimal.NewFromFloat(0.001),
		},
	}}
	return New(&observability.Logger{}, cfg, counter, position.New(&observability.Logger{}), registry, nil)
}

func testOrder() *order.Order {
	return &order.Order{
		OperationID: "op-1", CanonicalID: "binance:SPOT_PAIR:BTC-USDT", StrategyID: "strat-1",
		Operation: order.OperationTrade, Side: order.SideBuy, Type: order.TypeLimit,
		Quantity: decimal.NewFromFloat(0.01), Price: decimal.NewFromInt(50000),
	}
}

func TestCheckShapeDeniesNonPositiveQuantity(t *testing.T) {
	e := newTestEngine(t, Config{EnableShape: true}, &fakeVelocityCounter{})
	o := testOrder()
	o.Quantity = decimal.Zero

	d := e.Check(context.Background(), o)
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonOrderShape, d.Reason)
}

func TestCheckShapeDeniesBelowMinSize(t *testing.T) {
	e := newTestEngine(t, Config{EnableShape: true}, &fakeVelocityCounter{})
	o := testOrder()
	o.Quantity = decimal.NewFromFloat(0.0001)

	d := e.Check(context.Background(), o)
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonOrderShape, d.Reason)
}

func TestCheckShapeAllowsValidOrder(t *testing.T) {
	e := newTestEngine(t, Config{EnableShape: true}, &fakeVelocityCounter{})
	d := e.Check(context.Background(), testOrder())
	assert.True(t, d.Allow)
}

func TestCheckVelocityDeniesWhenPerSecondCapExceeded(t *testing.T) {
	e := newTestEngine(t, Config{EnableVelocity: true, VelocityWindow1s: 3}, &fakeVelocityCounter{countPerSecond: 3})
	d := e.Check(context.Background(), testOrder())
	require.False(t, d.Allow)
	assert.Equal(t, ReasonVelocity, d.Reason)
}

func TestCheckVelocityAllowsUnderCap(t *testing.T) {
	e := newTestEngine(t, Config{EnableVelocity: true, VelocityWindow1s: 3, VelocityWindow1m: 30}, &fakeVelocityCounter{countPerSecond: 1, countPerMinute: 10})
	d := e.Check(context.Background(), testOrder())
	assert.True(t, d.Allow)
}

func TestCheckOperationWhitelistDeniesUnlistedStrategy(t *testing.T) {
	e := newTestEngine(t, Config{
		EnableOperationWhitelist:   true,
		StrategyOperationWhitelist: map[string]map[order.Operation]bool{"other-strat": {order.OperationTrade: true}},
	}, &fakeVelocityCounter{})

	d := e.Check(context.Background(), testOrder())
	require.False(t, d.Allow)
	assert.Equal(t, ReasonNotPermitted, d.Reason)
}

func TestCheckOperationWhitelistAllowsPermittedOperation(t *testing.T) {
	e := newTestEngine(t, Config{
		EnableOperationWhitelist:   true,
		StrategyOperationWhitelist: map[string]map[order.Operation]bool{"strat-1": {order.OperationTrade: true}},
	}, &fakeVelocityCounter{})

	d := e.Check(context.Background(), testOrder())
	assert.True(t, d.Allow)
}

func TestCheckPriceToleranceDeniesOutsideBand(t *testing.T) {
	e := newTestEngine(t, Config{EnablePriceTolerance: true, PriceTolerancePct: decimal.NewFromFloat(0.01)}, &fakeVelocityCounter{})
	e.positions.ApplyFill(context.Background(), "binance", "binance:SPOT_ASSET:BTC", order.SideBuy, order.Fill{
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(50000),
	})

	o := testOrder()
	o.Price = decimal.NewFromInt(60000) // >1% away from the 50000 mark

	d := e.Check(context.Background(), o)
	require.False(t, d.Allow)
	assert.Equal(t, ReasonPriceTolerance, d.Reason)
}

func TestCheckTotalNotionalDeniesOverCap(t *testing.T) {
	e := newTestEngine(t, Config{EnableTotalNotionalCap: true, TotalNotionalCap: decimal.NewFromInt(100)}, &fakeVelocityCounter{})
	e.positions.ApplyFill(context.Background(), "binance", "binance:SPOT_ASSET:BTC", order.SideBuy, order.Fill{
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(50000),
	})

	d := e.Check(context.Background(), testOrder())
	require.False(t, d.Allow)
	assert.Equal(t, ReasonExposureCap, d.Reason)
}

func TestCheckTimesOutWhenContextAlreadyExpired(t *testing.T) {
	e := newTestEngine(t, Config{EnableShape: true}, &fakeVelocityCounter{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	d := e.Check(ctx, testOrder())
	require.False(t, d.Allow)
	assert.Equal(t, ReasonRiskTimeout, d.Reason)
}
