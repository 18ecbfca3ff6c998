// Package orchestrator implements the execution orchestrator (§4.9): the
// single request-path pipeline every POST /orders call runs through,
// wiring instrument resolution, idempotency, pre-trade risk, atomic-group
// holding, routing, OMS persistence, adapter submission with retry, and
// the cancellation flow, all without any package-level singleton (§9 — the
// orchestrator is constructed once per process and owns every dependency
// it needs).
//
// Grounded on internal/trading/execution_engine.go for the overall
// request-pipeline shape (validate -> risk-check -> route -> submit ->
// persist), generalized from that file's single-venue, single-risk-check
// flow to the spec's ten-step sequence spanning routing, atomic groups,
// and retryable adapter submission.
package orchestrator

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/atomic"
	"github.com/execorch/execorch/internal/execalgo"
	"github.com/execorch/execorch/internal/instrument"
	"github.com/execorch/execorch/internal/oms"
	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/internal/orcherr"
	"github.com/execorch/execorch/internal/position"
	"github.com/execorch/execorch/internal/risk"
	"github.com/execorch/execorch/internal/router"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/shopspring/decimal"
)

// Config tunes the adapter-submit retry policy (§4.9 step 8, "retry with
// exponential backoff up to K attempts").
type Config struct {
	SubmitMaxAttempts int
	SubmitBaseBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.SubmitMaxAttempts <= 0 {
		c.SubmitMaxAttempts = 3
	}
	if c.SubmitBaseBackoff <= 0 {
		c.SubmitBaseBackoff = 100 * time.Millisecond
	}
	return c
}

// Orchestrator owns every collaborator in the request pipeline. There is
// exactly one per process; callers construct it in cmd/orchestrator/main.go
// and hand it to the HTTP layer.
type Orchestrator struct {
	logger *observability.Logger
	cfg    Config

	instruments instrument.Registry
	orders      *oms.Manager
	positions   *position.Tracker
	riskEngine  *risk.Engine
	router      *router.Router
	adapters    *adapter.Registry
	atomicGroup *atomic.Coordinator
	execAlgos   *execalgo.Registry
}

// New constructs an Orchestrator from its already-running collaborators.
func New(
	logger *observability.Logger,
	cfg Config,
	instruments instrument.Registry,
	orders *oms.Manager,
	positions *position.Tracker,
	riskEngine *risk.Engine,
	smartRouter *router.Router,
	adapters *adapter.Registry,
	atomicGroup *atomic.Coordinator,
	execAlgos *execalgo.Registry,
) *Orchestrator {
	return &Orchestrator{
		logger: logger, cfg: cfg.withDefaults(),
		instruments: instruments, orders: orders, positions: positions,
		riskEngine: riskEngine, router: smartRouter, adapters: adapters,
		atomicGroup: atomicGroup, execAlgos: execAlgos,
	}
}

// Submit runs the full §4.9 pipeline for a freshly parsed order and returns
// the order snapshot the caller should respond with.
func (o *Orchestrator) Submit(ctx context.Context, req *order.Order) (*order.Order, error) {
	// Step 2: parse canonical id, look up instrument metadata.
	id, err := instrument.Parse(req.CanonicalID)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindMalformed, "", err)
	}
	if _, err := o.instruments.Lookup(ctx, req.CanonicalID); err != nil {
		return nil, orcherr.Wrap(orcherr.KindMalformed, "instrument lookup", err)
	}

	// Step 3: idempotency check.
	if existing, err := o.orders.Get(ctx, req.OperationID); err == nil {
		return existing, nil
	} else if err != oms.ErrNotFound {
		return nil, orcherr.Wrap(orcherr.KindInternal, "idempotency lookup", err)
	}

	// Step 4: risk check.
	decision := o.riskEngine.Check(ctx, req)
	if !decision.Allow {
		req.Status = order.StatusRejected
		req.RejectionReason = string(decision.Reason)
		if err := o.orders.Create(ctx, req); err != nil {
			return nil, orcherr.Wrap(orcherr.KindInternal, "persist rejected order", err)
		}
		return req, orcherr.New(orcherr.KindRiskDenied, string(decision.Reason))
	}

	// Step 5: atomic-group hold.
	if req.AtomicGroupID != "" {
		bundler, ok := o.bundlerFor(req.Venue)
		if !ok {
			return nil, orcherr.New(orcherr.KindMalformed, "venue has no atomic bundle capability")
		}
		if err := o.atomicGroup.Hold(ctx, bundler, req); err != nil {
			return nil, orcherr.Wrap(orcherr.KindMalformed, "atomic group hold", err)
		}
		req.Status = order.StatusPendingGroup
		if err := o.orders.Create(ctx, req); err != nil {
			return nil, orcherr.Wrap(orcherr.KindInternal, "persist pending-group order", err)
		}
		return req, nil
	}

	// Step 6: route.
	route, err := o.router.Route(ctx, req)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindRouteUnavailable, "", err)
	}

	if len(route.ChildPlan) > 0 {
		return o.submitSplitPlan(ctx, req, route)
	}

	req.Venue = route.Venue
	req.VenueKind = route.VenueKind

	// Step 7: persist PENDING.
	req.Status = order.StatusPending
	if err := o.orders.Create(ctx, req); err != nil {
		return nil, orcherr.Wrap(orcherr.KindInternal, "persist pending order", err)
	}

	// Step 8: adapter submit with retry.
	if err := o.submitToAdapter(ctx, req, id); err != nil {
		req.Status = order.StatusRejected
		req.RejectionReason = string(orcherr.KindVenueUnreachable)
		req.ErrorMessage = err.Error()
		if markErr := o.orders.MarkRejected(ctx, req.OperationID, req.ErrorMessage); markErr != nil {
			o.logger.Error(ctx, "orchestrator: failed to persist adapter rejection", markErr, map[string]interface{}{
				"operation_id": req.OperationID,
			})
		}
		return req, orcherr.Wrap(orcherr.KindVenueUnreachable, "VENUE_UNREACHABLE", err)
	}

	// Step 9: respond with the current snapshot (step 10 happens
	// asynchronously as adapter events arrive via ApplyEvent).
	snapshot, err := o.orders.Get(ctx, req.OperationID)
	if err != nil {
		return req, nil
	}
	return snapshot, nil
}

// submitSplitPlan materializes a router split plan as N child orders
// sharing the parent operation id via ParentOperationID, each submitted
// independently (§4.5 "split plans create N child orders sharing the
// parent operation_id via a link field").
func (o *Orchestrator) submitSplitPlan(ctx context.Context, parent *order.Order, route router.Decision) (*order.Order, error) {
	parent.Status = order.StatusPending
	if err := o.orders.Create(ctx, parent); err != nil {
		return nil, orcherr.Wrap(orcherr.KindInternal, "persist split parent", err)
	}

	for i, child := range route.ChildPlan {
		childOrder := *parent
		childOrder.OperationID = parent.OperationID + "-child-" + strconv.Itoa(i)
		childOrder.ParentOperationID = parent.OperationID
		childOrder.Venue = child.Venue
		childOrder.Quantity = child.Quantity
		childOrder.Status = order.StatusPending

		if err := o.orders.Create(ctx, &childOrder); err != nil {
			o.logger.Error(ctx, "orchestrator: failed to persist split child", err, map[string]interface{}{
				"operation_id": childOrder.OperationID,
			})
			continue
		}

		id, err := instrument.Parse(childOrder.CanonicalID)
		if err != nil {
			continue
		}
		if err := o.submitToAdapter(ctx, &childOrder, id); err != nil {
			o.logger.Error(ctx, "orchestrator: split child adapter submit failed", err, map[string]interface{}{
				"operation_id": childOrder.OperationID,
			})
		}
	}

	snapshot, err := o.orders.Get(ctx, parent.OperationID)
	if err != nil {
		return parent, nil
	}
	return snapshot, nil
}

// submitToAdapter dispatches req to its venue's supervisor, applying the
// execution-algorithm slice schedule when one is configured, and retries
// transport failures with exponential backoff up to cfg.SubmitMaxAttempts
// (§4.9 step 8).
func (o *Orchestrator) submitToAdapter(ctx context.Context, req *order.Order, id instrument.ID) error {
	supervisor, err := o.adapters.Get(req.Venue)
	if err != nil {
		return err
	}

	if req.ExecAlgorithm == "" || req.ExecAlgorithm == order.ExecAlgorithmNormal {
		return o.submitOnce(ctx, supervisor, req, id, req.Quantity)
	}

	alg, ok := o.execAlgos.Lookup(req.ExecAlgorithm)
	if !ok {
		return orcherr.New(orcherr.KindMalformed, "unknown execution algorithm")
	}
	slices, err := alg.Slices(req, req.Venue, time.Now())
	if err != nil {
		return err
	}

	// A slice schedule can span the algorithm's full window (up to the
	// default VWAP config's 30 minutes); §5 forbids any step longer than
	// its own SLO from holding the HTTP worker, so the schedule runs in
	// the background on a context detached from the request's, which
	// net/http cancels the instant this handler returns. Submit already
	// persisted the PENDING snapshot before calling here, so the caller
	// gets an immediate response and later slice outcomes surface through
	// the normal adapter-event path (ApplyEvent) or, on scheduling
	// failure, a direct MarkRejected call.
	bgCtx := context.WithoutCancel(ctx)
	go func() {
		if err := o.submitSlices(bgCtx, supervisor, req, id, slices); err != nil {
			o.logger.Error(bgCtx, "orchestrator: sliced submission failed", err, map[string]interface{}{
				"operation_id": req.OperationID,
			})
			if markErr := o.orders.MarkRejected(bgCtx, req.OperationID, err.Error()); markErr != nil {
				o.logger.Error(bgCtx, "orchestrator: failed to persist sliced-submission rejection", markErr, map[string]interface{}{
					"operation_id": req.OperationID,
				})
			}
		}
	}()
	return nil
}

func (o *Orchestrator) submitSlices(ctx context.Context, supervisor *adapter.Supervisor, req *order.Order, id instrument.ID, slices []execalgo.Slice) error {
	for _, s := range slices {
		wait := time.Until(s.At)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := o.submitOnce(ctx, supervisor, req, id, s.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) submitOnce(ctx context.Context, supervisor *adapter.Supervisor, req *order.Order, id instrument.ID, quantity decimal.Decimal) error {
	submitReq := adapter.SubmitRequest{
		OperationID: req.OperationID, CanonicalID: req.CanonicalID, VenueSymbol: id.Payload,
		Side: req.Side, Type: req.Type, TimeInForce: req.TimeInForce,
		Quantity: quantity, Price: req.Price,
	}

	var lastErr error
	for attempt := 0; attempt < o.cfg.SubmitMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(o.cfg.SubmitBaseBackoff) * math.Pow(2, float64(attempt-1)))
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		result, err := supervisor.Submit(ctx, submitReq)
		if err == nil {
			if result.Accepted {
				return o.orders.SetVenueOrderID(ctx, req.OperationID, result.VenueOrderID)
			}
			return orcherr.New(orcherr.KindVenueRejected, result.RejectReason)
		}
		lastErr = err
	}
	return lastErr
}

// Cancel dispatches cancel() on the owning adapter (§4.9 "Cancellation").
func (o *Orchestrator) Cancel(ctx context.Context, operationID string) (*order.Order, error) {
	existing, err := o.orders.Get(ctx, operationID)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindMalformed, "cancel: unknown operation id", err)
	}
	supervisor, err := o.adapters.Get(existing.Venue)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindVenueUnreachable, "cancel", err)
	}

	result, err := supervisor.Cancel(ctx, existing.VenueOrderID)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindVenueUnreachable, "cancel", err)
	}
	if !result.Confirmed {
		return existing, orcherr.New(orcherr.KindVenueRejected, result.Reason)
	}
	// The authoritative CANCELLED transition happens when the adapter's
	// OrderCancelled event arrives through ApplyEvent (§4.9 step 10); this
	// call only confirms the venue accepted the cancel request.
	return o.orders.Get(ctx, operationID)
}

// bundlerFor resolves the Bundler capability for a venue's adapter, if the
// underlying adapter implements it (§4.8).
func (o *Orchestrator) bundlerFor(venueCode string) (atomic.Bundler, bool) {
	supervisor, err := o.adapters.Get(venueCode)
	if err != nil {
		return nil, false
	}
	b, ok := supervisor.Adapter().(atomic.Bundler)
	return b, ok
}
