package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestStateMachineTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusSubmitted))
	assert.True(t, CanTransition(StatusPending, StatusRejected))
	assert.False(t, CanTransition(StatusPending, StatusFilled))

	assert.True(t, CanTransition(StatusSubmitted, StatusPartiallyFilled))
	assert.True(t, CanTransition(StatusSubmitted, StatusFilled))
	assert.True(t, CanTransition(StatusSubmitted, StatusCancelled))
	assert.True(t, CanTransition(StatusSubmitted, StatusExpired))

	assert.True(t, CanTransition(StatusPartiallyFilled, StatusPartiallyFilled))
	assert.True(t, CanTransition(StatusPartiallyFilled, StatusFilled))
	assert.True(t, CanTransition(StatusPartiallyFilled, StatusCancelled))
}

func TestTerminalStatesNeverLeave(t *testing.T) {
	for _, s := range []Status{StatusFilled, StatusCancelled, StatusRejected, StatusExpired} {
		assert.True(t, s.IsTerminal())
		for _, to := range []Status{StatusPending, StatusSubmitted, StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusRejected, StatusExpired} {
			assert.False(t, CanTransition(s, to), "%s must not transition to %s", s, to)
		}
	}
}

func TestValidateFillEnforcesQuantityInvariant(t *testing.T) {
	o := &Order{Quantity: mustDec(t, "1.0")}
	require.NoError(t, o.ValidateFill(Fill{Quantity: mustDec(t, "0.6")}))
	o.Fills = append(o.Fills, Fill{Quantity: mustDec(t, "0.6")})

	err := o.ValidateFill(Fill{Quantity: mustDec(t, "0.6")})
	require.ErrorIs(t, err, ErrQuantityInvariant)

	require.NoError(t, o.ValidateFill(Fill{Quantity: mustDec(t, "0.4")}))
}

func TestNextStatusAfterFill(t *testing.T) {
	o := &Order{Quantity: mustDec(t, "1.0")}
	o.Fills = append(o.Fills, Fill{Quantity: mustDec(t, "0.5")})
	assert.Equal(t, StatusPartiallyFilled, o.NextStatusAfterFill(8))

	o.Fills = append(o.Fills, Fill{Quantity: mustDec(t, "0.5")})
	assert.Equal(t, StatusFilled, o.NextStatusAfterFill(8))
}

func TestIsDuplicateFill(t *testing.T) {
	o := &Order{Fills: []Fill{{FillID: "f1", VenueFillID: "vf1"}}}
	assert.True(t, o.IsDuplicateFill(Fill{VenueFillID: "vf1"}))
	assert.True(t, o.IsDuplicateFill(Fill{FillID: "f1"}))
	assert.False(t, o.IsDuplicateFill(Fill{FillID: "f2", VenueFillID: "vf2"}))
}

func TestAvgFillPriceVolumeWeighted(t *testing.T) {
	o := &Order{Fills: []Fill{
		{Quantity: mustDec(t, "1"), Price: mustDec(t, "100")},
		{Quantity: mustDec(t, "3"), Price: mustDec(t, "200")},
	}}
	assert.True(t, o.AvgFillPrice().Equal(mustDec(t, "175")))
}
