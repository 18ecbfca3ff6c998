package execalgo

import (
	"fmt"
	"time"

	"github.com/execorch/execorch/internal/order"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// TWAP slices an order into N equal clips spread evenly over a window.
type TWAP struct {
	SliceCount int
	Window     time.Duration
}

func (t TWAP) Name() order.ExecAlgorithm { return order.ExecAlgorithmTWAP }

func (t TWAP) Slices(o *order.Order, venue string, now time.Time) ([]Slice, error) {
	n := t.SliceCount
	if n <= 0 {
		n = 1
	}
	interval := t.Window / time.Duration(n)
	clip := o.Quantity.Div(decimal.NewFromInt(int64(n)))

	out := make([]Slice, n)
	allocated := decimal.Zero
	for i := 0; i < n; i++ {
		q := clip
		if i == n-1 {
			q = o.Quantity.Sub(allocated) // last clip absorbs rounding remainder
		}
		out[i] = Slice{At: now.Add(time.Duration(i) * interval), Quantity: q}
		allocated = allocated.Add(q)
	}
	return out, nil
}

// Iceberg repeats a fixed-size clip back to back (ClipInterval apart) until
// the parent quantity is exhausted, showing only ClipSize at a time.
type Iceberg struct {
	ClipSize     decimal.Decimal
	ClipInterval time.Duration
}

func (ic Iceberg) Name() order.ExecAlgorithm { return order.ExecAlgorithmIceberg }

func (ic Iceberg) Slices(o *order.Order, venue string, now time.Time) ([]Slice, error) {
	if !ic.ClipSize.IsPositive() {
		return nil, fmt.Errorf("execalgo: iceberg clip size must be positive")
	}
	var out []Slice
	remaining := o.Quantity
	at := now
	for remaining.IsPositive() {
		q := ic.ClipSize
		if q.GreaterThan(remaining) {
			q = remaining
		}
		out = append(out, Slice{At: at, Quantity: q})
		remaining = remaining.Sub(q)
		at = at.Add(ic.ClipInterval)
	}
	return out, nil
}

// VolumeCurve supplies the VWAP algorithm's expected participation weight
// for each slice index out of n total slices; weights need not sum to 1,
// VWAP normalizes them.
type VolumeCurve func(sliceIndex, totalSlices int) decimal.Decimal

// VolumeCurveFromSamples builds a VolumeCurve from historical per-bucket
// volume observations, one []float64 per slice index (e.g. the traded
// volume seen in that time-of-day bucket on each of the last N sessions).
// Each bucket's weight is the mean of its samples, grounded on
// pkg/formulas/stats.go's stat.Mean(data, nil) pattern. A bucket with no
// samples gets weight zero, letting the curve fall back to the other
// buckets rather than erroring.
func VolumeCurveFromSamples(buckets [][]float64) VolumeCurve {
	return func(sliceIndex, _ int) decimal.Decimal {
		if sliceIndex < 0 || sliceIndex >= len(buckets) || len(buckets[sliceIndex]) == 0 {
			return decimal.Zero
		}
		return decimal.NewFromFloat(stat.Mean(buckets[sliceIndex], nil))
	}
}

// VWAP slices an order proportionally to a caller-supplied historical
// volume curve instead of splitting evenly, so clips land heavier during
// the curve's higher-volume periods.
type VWAP struct {
	SliceCount int
	Window     time.Duration
	Curve      VolumeCurve
}

func (v VWAP) Name() order.ExecAlgorithm { return order.ExecAlgorithmVWAP }

func (v VWAP) Slices(o *order.Order, venue string, now time.Time) ([]Slice, error) {
	n := v.SliceCount
	if n <= 0 {
		n = 1
	}
	curve := v.Curve
	if curve == nil {
		curve = func(int, int) decimal.Decimal { return decimal.NewFromInt(1) } // uniform fallback
	}

	weights := make([]decimal.Decimal, n)
	total := decimal.Zero
	for i := 0; i < n; i++ {
		w := curve(i, n)
		if w.IsNegative() {
			w = decimal.Zero
		}
		weights[i] = w
		total = total.Add(w)
	}
	if total.IsZero() {
		return nil, fmt.Errorf("execalgo: vwap volume curve sums to zero")
	}

	interval := v.Window / time.Duration(n)
	out := make([]Slice, n)
	allocated := decimal.Zero
	for i := 0; i < n; i++ {
		q := o.Quantity.Mul(weights[i]).Div(total)
		if i == n-1 {
			q = o.Quantity.Sub(allocated)
		}
		out[i] = Slice{At: now.Add(time.Duration(i) * interval), Quantity: q}
		allocated = allocated.Add(q)
	}
	return out, nil
}
