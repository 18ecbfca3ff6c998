package execalgo

import (
	"testing"
	"time"

	"github.com/execorch/execorch/internal/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sumQty(slices []Slice) decimal.Decimal {
	sum := decimal.Zero
	for _, s := range slices {
		sum = sum.Add(s.Quantity)
	}
	return sum
}

func TestTWAPSlicesSumToParentQuantity(t *testing.T) {
	alg := TWAP{SliceCount: 3, Window: 30 * time.Minute}
	o := &order.Order{Quantity: decimal.NewFromFloat(1)}
	now := time.Now()

	slices, err := alg.Slices(o, "binance", now)
	require.NoError(t, err)
	require.Len(t, slices, 3)
	assert.True(t, sumQty(slices).Equal(o.Quantity))
	assert.True(t, slices[0].At.Equal(now))
}

func TestIcebergRepeatsClipUntilExhausted(t *testing.T) {
	alg := Iceberg{ClipSize: decimal.NewFromInt(3), ClipInterval: time.Second}
	o := &order.Order{Quantity: decimal.NewFromInt(10)}

	slices, err := alg.Slices(o, "binance", time.Now())
	require.NoError(t, err)
	require.Len(t, slices, 4) // 3,3,3,1
	assert.True(t, sumQty(slices).Equal(o.Quantity))
	assert.True(t, slices[3].Quantity.Equal(decimal.NewFromInt(1)))
}

func TestIcebergRejectsNonPositiveClipSize(t *testing.T) {
	alg := Iceberg{ClipSize: decimal.Zero}
	_, err := alg.Slices(&order.Order{Quantity: decimal.NewFromInt(1)}, "binance", time.Now())
	assert.Error(t, err)
}

func TestVWAPWeightsSlicesByVolumeCurve(t *testing.T) {
	alg := VWAP{
		SliceCount: 2, Window: time.Hour,
		Curve: func(i, n int) decimal.Decimal {
			if i == 0 {
				return decimal.NewFromInt(1)
			}
			return decimal.NewFromInt(3)
		},
	}
	o := &order.Order{Quantity: decimal.NewFromInt(100)}

	slices, err := alg.Slices(o, "binance", time.Now())
	require.NoError(t, err)
	require.Len(t, slices, 2)
	assert.True(t, slices[0].Quantity.Equal(decimal.NewFromInt(25)))
	assert.True(t, sumQty(slices).Equal(o.Quantity))
}

func TestVolumeCurveFromSamplesWeightsByBucketMean(t *testing.T) {
	curve := VolumeCurveFromSamples([][]float64{
		{1, 1, 1}, // mean 1
		{3, 3, 3}, // mean 3
	})

	assert.True(t, curve(0, 2).Equal(decimal.NewFromInt(1)))
	assert.True(t, curve(1, 2).Equal(decimal.NewFromInt(3)))
}

func TestVolumeCurveFromSamplesZeroForEmptyOrOutOfRangeBucket(t *testing.T) {
	curve := VolumeCurveFromSamples([][]float64{{5}})

	assert.True(t, curve(1, 2).Equal(decimal.Zero))
	assert.True(t, curve(-1, 2).Equal(decimal.Zero))
}

func TestVWAPSlicesUsingVolumeCurveFromSamples(t *testing.T) {
	alg := VWAP{
		SliceCount: 2, Window: time.Hour,
		Curve: VolumeCurveFromSamples([][]float64{{1, 1}, {3, 3}}),
	}
	o := &order.Order{Quantity: decimal.NewFromInt(100)}

	slices, err := alg.Slices(o, "binance", time.Now())
	require.NoError(t, err)
	require.Len(t, slices, 2)
	assert.True(t, sumQty(slices).Equal(o.Quantity))
}

func TestRegistryLookupReturnsRegisteredAlgorithm(t *testing.T) {
	r := NewRegistry()
	r.Register(TWAP{SliceCount: 2, Window: time.Minute})

	alg, ok := r.Lookup(order.ExecAlgorithmTWAP)
	require.True(t, ok)
	assert.Equal(t, order.ExecAlgorithmTWAP, alg.Name())

	_, ok = r.Lookup(order.ExecAlgorithmVWAP)
	assert.False(t, ok)
}
