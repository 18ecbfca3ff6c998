package router

import (
	"github.com/execorch/execorch/internal/order"
	"github.com/shopspring/decimal"
)

// VenueProfile is the router's per-(canonical-instrument, venue) cost
// input: everything needed to compute cost(v) = fee(v) + slippage(v,size)
// + latency_penalty(v) + gas(v) (§4.5).
type VenueProfile struct {
	VenueCode string
	VenueKind order.VenueKind

	FeeRate        decimal.Decimal // fraction of notional, e.g. 0.001 for 10bps
	LatencyPenalty decimal.Decimal // cost-equivalent penalty for this venue's expected latency
	GasCost        decimal.Decimal // flat on-chain gas estimate, zero for CEX venues

	// VolatilityCoefficient feeds the fallback linear slippage model when no
	// depth probe is available: slippage = VolatilityCoefficient * quantity.
	VolatilityCoefficient decimal.Decimal

	// MaxClipSize bounds a single child order on this venue; zero means
	// unbounded. Only consulted when a split plan is being built.
	MaxClipSize decimal.Decimal
}
