package position

import (
	"context"
	"testing"
	"time"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFillVolumeWeightedAveragesEntryPrice(t *testing.T) {
	tr := New(&observability.Logger{})

	tr.ApplyFill(context.Background(), "binance", "binance:spot:BTC-USDT", order.SideBuy, order.Fill{
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
	})
	tr.ApplyFill(context.Background(), "binance", "binance:spot:BTC-USDT", order.SideBuy, order.Fill{
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(200),
	})

	p := tr.Get("binance:spot:BTC-USDT")
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, p.AvgEntry.Equal(decimal.NewFromInt(150)), "expected avg entry 150, got %s", p.AvgEntry)
}

func TestApplyFillReducingPositionDoesNotReaverageEntry(t *testing.T) {
	tr := New(&observability.Logger{})

	tr.ApplyFill(context.Background(), "binance", "k", order.SideBuy, order.Fill{
		Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(100),
	})
	tr.ApplyFill(context.Background(), "binance", "k", order.SideSell, order.Fill{
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(500),
	})

	p := tr.Get("k")
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(1)))
	assert.True(t, p.AvgEntry.Equal(decimal.NewFromInt(100)), "entry price must not re-average on a reduce, got %s", p.AvgEntry)
}

func TestReconcileOverwritesVenueStateAndRecordsDrift(t *testing.T) {
	tr := New(&observability.Logger{})
	tr.ApplyFill(context.Background(), "binance", "k", order.SideBuy, order.Fill{
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
	})

	tr.Reconcile(context.Background(), "binance", nil, []adapter.PositionSnapshot{
		{PositionKey: "k", Venue: "binance", Quantity: decimal.NewFromInt(5), MarkPrice: decimal.NewFromInt(110), UpdatedAt: time.Now()},
	})

	p := tr.GetVenue("binance", "k")
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(5)), "venue snapshot must be authoritative")

	drift := tr.DriftLog()
	require.Len(t, drift, 1)
	assert.True(t, drift[0].Delta.Equal(decimal.NewFromInt(4)))
}

func TestReconcileZeroesPositionsTheVenueNoLongerReports(t *testing.T) {
	tr := New(&observability.Logger{})
	tr.ApplyFill(context.Background(), "binance", "k", order.SideBuy, order.Fill{
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
	})

	tr.Reconcile(context.Background(), "binance", nil, nil)

	p := tr.GetVenue("binance", "k")
	assert.True(t, p.Quantity.IsZero())
}
