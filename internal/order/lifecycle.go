package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrQuantityInvariant is returned when appending a fill would push
// Σfills.quantity above the order's quantity (property 2 in §8).
var ErrQuantityInvariant = fmt.Errorf("order: appending fill would violate Σfills.quantity <= quantity")

// ValidateFill checks the quantity invariant for a candidate fill without
// mutating o. Callers append to o.Fills themselves after this succeeds so
// that OMS transactions can decide atomically whether to commit.
func (o *Order) ValidateFill(f Fill) error {
	prospective := o.FilledQuantity().Add(f.Quantity)
	if prospective.GreaterThan(o.Quantity) {
		return ErrQuantityInvariant
	}
	return nil
}

// NextStatusAfterFill determines the order's status once f has been
// appended, given the instrument's size precision. A cumulative fill within
// epsilon of Quantity is treated as FILLED; otherwise PARTIALLY_FILLED.
func (o *Order) NextStatusAfterFill(sizePrecision int32) Status {
	epsilon := decimal.New(1, -sizePrecision)
	remaining := o.Quantity.Sub(o.FilledQuantity())
	if remaining.Abs().LessThanOrEqual(epsilon) {
		return StatusFilled
	}
	return StatusPartiallyFilled
}

// IsDuplicateFill reports whether f has already been recorded on o,
// identified by (VenueFillID, FillID) — used to make re-delivered adapter
// events a no-op (§4.6 idempotency, §8 property 5's sibling for fills).
func (o *Order) IsDuplicateFill(f Fill) bool {
	for _, existing := range o.Fills {
		if f.VenueFillID != "" && existing.VenueFillID == f.VenueFillID {
			return true
		}
		if f.FillID != "" && existing.FillID == f.FillID {
			return true
		}
	}
	return false
}
