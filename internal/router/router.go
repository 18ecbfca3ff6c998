// Package router is the smart router (§4.5): it resolves a routing
// instrument's `canonical_id` to a venue by estimated total cost, and, when
// beneficial, rewrites a large order into a child-order split plan.
// Venue-bound instruments pass through unrouted, since the venue named in
// the canonical id is already authoritative.
//
// Grounded on internal/trading/smart_order_router.go's cost-scoring
// strategies (selectByLowestCost, selectByBalanced), generalized from that
// file's multi-strategy config (best-price/lowest-latency/highest-fill/
// lowest-cost/balanced/liquidity, selected per order) down to the single
// cost function §4.5 specifies, with its own explicit tie-break rule.
package router

import (
	"context"
	"sort"
	"time"

	"github.com/execorch/execorch/internal/instrument"
	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/internal/orcherr"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/shopspring/decimal"
)

// ChildOrder is one leg of a split plan: Quantity of the parent order to
// route to Venue. Child orders share the parent's operation_id via a link
// field the orchestrator sets when it materializes them (§4.5).
type ChildOrder struct {
	Venue    string
	Quantity decimal.Decimal
}

// Decision is the router's output for one order: either a single resolved
// Venue, or a ChildPlan of legs summing to the parent quantity.
type Decision struct {
	Venue     string
	VenueKind order.VenueKind
	ChildPlan []ChildOrder
}

// Config tunes split-plan behavior.
type Config struct {
	// ProbeCacheTTL bounds how long a depth-probe slippage estimate is
	// reused before being re-probed (<=1s per §4.5); zero, or anything
	// above one second, becomes one second.
	ProbeCacheTTL time.Duration

	// EnableSplitPlans permits a split across eligible venues when a
	// single venue cannot absorb the full quantity under its MaxClipSize.
	// When false, the router always picks one venue and leaves any
	// oversized-clip handling to the caller.
	EnableSplitPlans bool
}

func (c Config) withDefaults() Config {
	if c.ProbeCacheTTL <= 0 || c.ProbeCacheTTL > time.Second {
		c.ProbeCacheTTL = time.Second
	}
	return c
}

// Router scores eligible venues for each routing instrument and resolves a
// single venue or a split plan.
type Router struct {
	logger *observability.Logger
	cfg    Config
	probe  *cachedProbe

	// venues maps canonical_id -> the venues eligible to fill it. Populated
	// by the caller at startup (or refreshed periodically); the router
	// itself never discovers venues on its own.
	venues map[string][]VenueProfile
}

// New constructs a Router. probe may be nil, in which case every venue
// falls back to its linear volatility-based slippage model.
func New(logger *observability.Logger, cfg Config, probe DepthProbe) *Router {
	cfg = cfg.withDefaults()
	return &Router{
		logger: logger,
		cfg:    cfg,
		probe:  newCachedProbe(probe, cfg.ProbeCacheTTL),
		venues: make(map[string][]VenueProfile),
	}
}

// SetVenues replaces the eligible-venue list for canonicalID.
func (r *Router) SetVenues(canonicalID string, profiles []VenueProfile) {
	r.venues[canonicalID] = profiles
}

// Route resolves o's venue (§4.9 step 6). For a venue-bound instrument this
// is a no-op: the venue embedded in the canonical id is authoritative.
func (r *Router) Route(ctx context.Context, o *order.Order) (Decision, error) {
	id, err := instrument.Parse(o.CanonicalID)
	if err != nil {
		return Decision{}, orcherr.Wrap(orcherr.KindMalformed, "", err)
	}

	if !id.IsRoutingInstrument() {
		return Decision{Venue: id.Venue, VenueKind: o.VenueKind}, nil
	}

	profiles := r.venues[o.CanonicalID]
	if len(profiles) == 0 {
		return Decision{}, orcherr.New(orcherr.KindRouteUnavailable, "no eligible venue for routing instrument")
	}

	scored := r.score(ctx, o, profiles)
	best := scored[0]

	if r.cfg.EnableSplitPlans && best.profile.MaxClipSize.IsPositive() && o.Quantity.GreaterThan(best.profile.MaxClipSize) {
		if plan, ok := r.splitPlan(o, scored); ok {
			return Decision{ChildPlan: plan}, nil
		}
	}

	return Decision{Venue: best.profile.VenueCode, VenueKind: best.profile.VenueKind}, nil
}

type venueScore struct {
	profile        VenueProfile
	cost           decimal.Decimal
	latencyPenalty decimal.Decimal
}

// score computes cost(v) = fee(v) + slippage(v,size) + latency_penalty(v) +
// gas(v) for every eligible venue and sorts ascending by cost, tie-breaking
// on lowest latency penalty then lexicographic venue code (§4.5).
func (r *Router) score(ctx context.Context, o *order.Order, profiles []VenueProfile) []venueScore {
	notional := o.Quantity.Mul(o.Price)
	scored := make([]venueScore, len(profiles))
	for i, p := range profiles {
		fee := p.FeeRate.Mul(notional)
		slippage := r.expectedSlippage(ctx, o, p)
		cost := fee.Add(slippage).Add(p.LatencyPenalty).Add(p.GasCost)
		scored[i] = venueScore{profile: p, cost: cost, latencyPenalty: p.LatencyPenalty}
	}

	sort.Slice(scored, func(i, j int) bool {
		if !scored[i].cost.Equal(scored[j].cost) {
			return scored[i].cost.LessThan(scored[j].cost)
		}
		if !scored[i].latencyPenalty.Equal(scored[j].latencyPenalty) {
			return scored[i].latencyPenalty.LessThan(scored[j].latencyPenalty)
		}
		return scored[i].profile.VenueCode < scored[j].profile.VenueCode
	})
	return scored
}

// expectedSlippage prefers the cached depth probe; absent that, it falls
// back to a linear model keyed on the venue's configured volatility
// coefficient (§4.5).
func (r *Router) expectedSlippage(ctx context.Context, o *order.Order, p VenueProfile) decimal.Decimal {
	if slip, ok := r.probe.slippage(ctx, o.CanonicalID, p.VenueCode, o.Quantity); ok {
		return slip
	}
	return p.VolatilityCoefficient.Mul(o.Quantity)
}

// splitPlan greedily fills each venue up to its MaxClipSize in ascending
// cost order until the parent quantity is exhausted. If every venue's
// capacity is exhausted before the full quantity is placed, the remainder
// goes to the cheapest (first) venue regardless of its cap, since an
// incomplete plan is worse than one oversized leg.
func (r *Router) splitPlan(o *order.Order, scored []venueScore) ([]ChildOrder, bool) {
	remaining := o.Quantity
	var plan []ChildOrder
	for _, s := range scored {
		if remaining.IsZero() {
			break
		}
		cap := s.profile.MaxClipSize
		if !cap.IsPositive() {
			cap = remaining
		}
		qty := cap
		if qty.GreaterThan(remaining) {
			qty = remaining
		}
		plan = append(plan, ChildOrder{Venue: s.profile.VenueCode, Quantity: qty})
		remaining = remaining.Sub(qty)
	}
	if len(plan) < 2 {
		return nil, false // nothing gained over a single venue
	}
	if remaining.IsPositive() {
		plan[0].Quantity = plan[0].Quantity.Add(remaining)
	}
	return plan, true
}
