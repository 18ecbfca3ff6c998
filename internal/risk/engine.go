// Package risk implements the pre-trade risk engine (§4.4): a synchronous,
// strictly time-budgeted gate that runs in the orchestrator's request path
// before any adapter is ever called.
//
// Grounded on the teacher's internal/risk/engine.go for the overall shape
// (a registry of checks run against a signal before it is allowed through,
// with circuit breakers and monitors) and internal/risk/var_calculator.go
// for the notional/exposure arithmetic, generalized from the teacher's
// strategy-signal checks to the spec's six concrete order checks.
package risk

import (
	"context"
	"sync"
	"time"

	"github.com/execorch/execorch/internal/instrument"
	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/internal/position"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// varHistoryLen bounds the in-memory portfolio-value sample window fed to
// the informational VaR estimate; it is not persisted, so it resets on
// restart along with every other in-process cache.
const varHistoryLen = 256

// velocityCounter is the one OMS query the risk engine needs: a count of
// orders by strategy since a point in time, serviced by the
// (strategy_id, created_at) index (§4.4 check 2, §4.6 "must support
// >=1000 q/s"). *oms.Manager satisfies this; tests supply a fake.
type velocityCounter interface {
	CountByStrategySince(ctx context.Context, strategyID string, since time.Time) (int, error)
}

// Engine runs the six pre-trade checks in §4.4 order, returning the first
// denial reason encountered, or ALLOW if every enabled check passes.
type Engine struct {
	logger    *observability.Logger
	cfg       Config
	orders    velocityCounter
	positions *position.Tracker
	registry  instrument.Registry
	metrics   *observability.MetricsProvider

	varCalc *VaRCalculator

	varMu      sync.Mutex
	varHistory []*PortfolioData
}

// New constructs an Engine. cfg is filled with defaults via WithDefaults.
// metrics may be nil, in which case no denial counters are recorded.
func New(logger *observability.Logger, cfg Config, orders velocityCounter, positions *position.Tracker, registry instrument.Registry, metrics *observability.MetricsProvider) *Engine {
	return &Engine{
		logger:    logger,
		cfg:       cfg.WithDefaults(),
		orders:    orders,
		positions: positions,
		registry:  registry,
		metrics:   metrics,
		varCalc:   NewVaRCalculator(logger, VaRConfig{Method: VaRMethodParametric}),
	}
}

// Check runs every enabled check against o and returns a Decision. The call
// is bounded by cfg.Timeout (hard 50ms default); if the budget is exhausted
// before every check completes, the result is DENY(RISK_TIMEOUT) rather
// than an error, since a timed-out risk check is itself a risk verdict
// (§4.4 "hard 50ms timeout -> RISK_TIMEOUT rejection").
func (e *Engine) Check(ctx context.Context, o *order.Order) Decision {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	checks := []func(context.Context, *order.Order) Decision{
		e.checkShape,
		e.checkVelocity,
		e.checkInstrumentCap,
		e.checkTotalNotional,
		e.checkPriceTolerance,
		e.checkOperationWhitelist,
	}

	for _, check := range checks {
		if ctx.Err() != nil {
			e.metrics.RecordRiskDenial(ctx, string(ReasonRiskTimeout))
			return deny(ReasonRiskTimeout)
		}
		if d := check(ctx, o); !d.Allow {
			e.metrics.RecordRiskDenial(ctx, string(d.Reason))
			return d
		}
	}
	if ctx.Err() != nil {
		e.metrics.RecordRiskDenial(ctx, string(ReasonRiskTimeout))
		return deny(ReasonRiskTimeout)
	}
	return allow()
}

// checkShape validates quantity/price shape against the instrument's
// registered precision and minimum size (§4.4 check 1).
func (e *Engine) checkShape(ctx context.Context, o *order.Order) Decision {
	if !e.cfg.EnableShape {
		return allow()
	}
	if !o.Quantity.IsPositive() {
		return deny(ReasonOrderShape)
	}
	if o.Type == order.TypeLimit && !o.Price.IsPositive() {
		return deny(ReasonOrderShape)
	}

	meta, err := e.registry.Lookup(ctx, o.CanonicalID)
	if err != nil {
		// Instrument resolution itself happens earlier in the orchestrator
		// pipeline (§4.9 step 2); an unresolvable id here fails shape
		// validation rather than silently passing.
		return deny(ReasonOrderShape)
	}
	if meta.MinSize.IsPositive() && o.Quantity.LessThan(meta.MinSize) {
		return deny(ReasonOrderShape)
	}
	if !representableAtPrecision(o.Quantity, meta.SizePrecision) {
		return deny(ReasonOrderShape)
	}
	if o.Type == order.TypeLimit && !representableAtPrecision(o.Price, meta.PricePrecision) {
		return deny(ReasonOrderShape)
	}
	return allow()
}

func representableAtPrecision(d decimal.Decimal, precision int32) bool {
	if precision < 0 {
		return true
	}
	return d.Equal(d.Round(precision))
}

// checkVelocity counts orders for o.StrategyID within the trailing 1s and
// 1m windows via the OMS's (strategy_id, created_at) index (§4.4 check 2).
func (e *Engine) checkVelocity(ctx context.Context, o *order.Order) Decision {
	if !e.cfg.EnableVelocity || o.StrategyID == "" {
		return allow()
	}
	now := time.Now()

	countSec, err := e.orders.CountByStrategySince(ctx, o.StrategyID, now.Add(-time.Second))
	if err != nil {
		e.logger.Warn(ctx, "risk: velocity query (1s) failed", map[string]interface{}{"error": err.Error()})
		return allow()
	}
	if countSec >= e.cfg.VelocityWindow1s {
		return deny(ReasonVelocity)
	}

	countMin, err := e.orders.CountByStrategySince(ctx, o.StrategyID, now.Add(-time.Minute))
	if err != nil {
		e.logger.Warn(ctx, "risk: velocity query (1m) failed", map[string]interface{}{"error": err.Error()})
		return allow()
	}
	if countMin >= e.cfg.VelocityWindow1m {
		return deny(ReasonVelocity)
	}
	return allow()
}

// checkInstrumentCap enforces a per-canonical-id notional cap against the
// position this order would produce (§4.4 check 3).
func (e *Engine) checkInstrumentCap(ctx context.Context, o *order.Order) Decision {
	if !e.cfg.EnableInstrumentCap || len(e.cfg.InstrumentNotionalCap) == 0 {
		return allow()
	}
	cap, ok := e.cfg.InstrumentNotionalCap[o.CanonicalID]
	if !ok || !cap.IsPositive() {
		return allow()
	}

	key, mark, ok := e.positionKeyAndMark(o)
	if !ok {
		return allow()
	}
	pos := e.positions.Get(key)
	prospective := pos.Quantity.Add(signedQuantity(o)).Abs().Mul(mark)
	if prospective.GreaterThan(cap) {
		e.logger.Warn(ctx, "risk: instrument notional cap denied", map[string]interface{}{
			"canonical_id": o.CanonicalID,
			"prospective":  humanize.Commaf(prospective.InexactFloat64()),
			"cap":          humanize.Commaf(cap.InexactFloat64()),
		})
		return deny(ReasonPositionCap)
	}
	return allow()
}

// checkTotalNotional enforces a global exposure cap across every tracked
// position plus the prospective order (§4.4 check 4).
func (e *Engine) checkTotalNotional(ctx context.Context, o *order.Order) Decision {
	if !e.cfg.EnableTotalNotionalCap || !e.cfg.TotalNotionalCap.IsPositive() {
		return allow()
	}

	total := decimal.Zero
	for _, p := range e.positions.All() {
		mark := p.MarkPrice
		if !mark.IsPositive() {
			mark = p.AvgEntry // no fresh snapshot mark; fall back to last-entry price
		}
		total = total.Add(p.Quantity.Abs().Mul(mark))
	}

	if _, mark, ok := e.positionKeyAndMark(o); ok {
		total = total.Add(o.Quantity.Mul(mark))
	}

	e.recordExposureSample(ctx, total)

	if total.GreaterThan(e.cfg.TotalNotionalCap) {
		e.logger.Warn(ctx, "risk: total notional cap denied", map[string]interface{}{
			"total": humanize.Commaf(total.InexactFloat64()),
			"cap":   humanize.Commaf(e.cfg.TotalNotionalCap.InexactFloat64()),
		})
		return deny(ReasonExposureCap)
	}
	return allow()
}

// recordExposureSample appends the current total exposure to the VaR
// history buffer and, once enough samples exist, logs a parametric VaR
// estimate alongside the notional check. This never gates the decision
// (§4.4 supplemented feature: VaR is informational, not a gate).
func (e *Engine) recordExposureSample(ctx context.Context, total decimal.Decimal) {
	e.varMu.Lock()
	e.varHistory = append(e.varHistory, &PortfolioData{Timestamp: time.Now(), PortfolioValue: total})
	if len(e.varHistory) > varHistoryLen {
		e.varHistory = e.varHistory[len(e.varHistory)-varHistoryLen:]
	}
	samples := make([]*PortfolioData, len(e.varHistory))
	copy(samples, e.varHistory)
	e.varMu.Unlock()

	if len(samples) < 3 {
		return
	}
	result, err := e.varCalc.CalculateVaR(ctx, samples)
	if err != nil {
		return
	}
	e.logger.Info(ctx, "risk: exposure VaR estimate", map[string]interface{}{
		"var": result.VaR.String(), "confidence_level": result.ConfidenceLevel.String(),
		"portfolio_value": result.PortfolioValue.String(),
	})
}

// checkPriceTolerance rejects a LIMIT order whose price strays more than
// PriceTolerancePct from the resolved mark (§4.4 check 5).
func (e *Engine) checkPriceTolerance(ctx context.Context, o *order.Order) Decision {
	if !e.cfg.EnablePriceTolerance || o.Type != order.TypeLimit {
		return allow()
	}
	_, mark, ok := e.positionKeyAndMark(o)
	if !ok || !mark.IsPositive() {
		return allow()
	}

	diff := o.Price.Sub(mark).Abs().Div(mark)
	if diff.GreaterThan(e.cfg.PriceTolerancePct) {
		return deny(ReasonPriceTolerance)
	}
	return allow()
}

// checkOperationWhitelist enforces the per-strategy allowed operation set
// (§4.4 check 6).
func (e *Engine) checkOperationWhitelist(ctx context.Context, o *order.Order) Decision {
	if !e.cfg.EnableOperationWhitelist {
		return allow()
	}
	allowed, ok := e.cfg.StrategyOperationWhitelist[o.StrategyID]
	if !ok {
		return deny(ReasonNotPermitted)
	}
	if !allowed[o.Operation] {
		return deny(ReasonNotPermitted)
	}
	return allow()
}

// positionKeyAndMark resolves o's position key and a usable mark price: the
// tracker's own mark when fresh (within MarkPriceMaxAge), else the
// position's volume-weighted entry price as a last-fill proxy, else false
// with a logged warning (§4.4 check 4 "if mark absent ... skip with
// warning").
func (e *Engine) positionKeyAndMark(o *order.Order) (string, decimal.Decimal, bool) {
	id, err := instrument.Parse(o.CanonicalID)
	if err != nil {
		return "", decimal.Zero, false
	}
	key, err := instrument.PositionKey(id, o.Venue, o.Selection)
	if err != nil {
		return "", decimal.Zero, false
	}

	pos := e.positions.Get(key)
	if !pos.MarkPrice.IsZero() && time.Since(pos.UpdatedAt) <= e.cfg.MarkPriceMaxAge {
		return key, pos.MarkPrice, true
	}
	if pos.AvgEntry.IsPositive() {
		return key, pos.AvgEntry, true
	}
	e.logger.Warn(context.Background(), "risk: no mark price available, skipping mark-dependent check", map[string]interface{}{
		"canonical_id": o.CanonicalID, "position_key": key,
	})
	return key, decimal.Zero, false
}

func signedQuantity(o *order.Order) decimal.Decimal {
	if o.Side == order.SideSell || o.Side == order.SideWithdraw || o.Side == order.SideLay {
		return o.Quantity.Neg()
	}
	return o.Quantity
}
