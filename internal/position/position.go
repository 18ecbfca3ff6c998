// Package position is the unified Position Tracker: per-venue and
// aggregated positions keyed by canonical position key, volume-weighted
// average entry price, and reconciliation-on-reconnect with drift detection
// (§4.7).
//
// Grounded on the teacher's common.PositionRisk/AccountInfo shape
// (internal/exchanges/common/interface.go), generalized from one venue's
// margin-account view to a venue-plus-aggregate tracker spanning every
// adapter the registry fronts.
package position

import (
	"context"
	"sync"
	"time"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/shopspring/decimal"
)

// Position is one venue's (or the cross-venue aggregate's) holding for a
// canonical position key.
type Position struct {
	PositionKey string
	Venue       string // empty for the aggregate view
	Quantity    decimal.Decimal
	AvgEntry    decimal.Decimal
	MarkPrice   decimal.Decimal
	UpdatedAt   time.Time
}

// DriftEvent records a reconciliation snapshot that disagreed with the
// tracker's fill-driven state, logged rather than silently overwritten so
// operators can see when a venue's ground truth diverged (§4.7).
type DriftEvent struct {
	PositionKey string
	Venue       string
	Tracked     decimal.Decimal
	Snapshot    decimal.Decimal
	Delta       decimal.Decimal
	OccurredAt  time.Time
}

// Tracker owns every venue position and the cross-venue aggregate.
type Tracker struct {
	logger *observability.Logger

	mu        sync.RWMutex
	perVenue  map[string]map[string]*Position // venue -> positionKey -> Position
	aggregate map[string]*Position            // positionKey -> Position

	driftMu sync.Mutex
	drift   []DriftEvent
}

// New constructs an empty Tracker.
func New(logger *observability.Logger) *Tracker {
	return &Tracker{
		logger:    logger,
		perVenue:  make(map[string]map[string]*Position),
		aggregate: make(map[string]*Position),
	}
}

// ApplyFill applies a single fill's signed-quantity delta to both the
// venue-level and aggregate positions, updating the volume-weighted average
// entry price (§4.7 "volume-weighted avg entry price").
func (t *Tracker) ApplyFill(ctx context.Context, venue, positionKey string, side order.Side, f order.Fill) {
	delta := f.Quantity
	if side == order.SideSell {
		delta = delta.Neg()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.applyDelta(t.venuePositions(venue), positionKey, venue, delta, f.Price)
	t.applyDelta(t.aggregate, positionKey, "", delta, f.Price)
}

func (t *Tracker) venuePositions(venue string) map[string]*Position {
	m, ok := t.perVenue[venue]
	if !ok {
		m = make(map[string]*Position)
		t.perVenue[venue] = m
	}
	return m
}

func (t *Tracker) applyDelta(m map[string]*Position, positionKey, venue string, delta, fillPrice decimal.Decimal) {
	p, ok := m[positionKey]
	if !ok {
		p = &Position{PositionKey: positionKey, Venue: venue}
		m[positionKey] = p
	}

	newQty := p.Quantity.Add(delta)

	// Volume-weighted average entry price only advances when the position
	// grows in the same direction; a reducing or flipping fill realizes PnL
	// against the existing entry price instead of re-averaging it.
	sameDirection := (p.Quantity.IsZero()) ||
		(p.Quantity.IsPositive() && delta.IsPositive()) ||
		(p.Quantity.IsNegative() && delta.IsNegative())

	if sameDirection && !delta.IsZero() {
		prevNotional := p.AvgEntry.Mul(p.Quantity.Abs())
		addNotional := fillPrice.Mul(delta.Abs())
		totalQty := p.Quantity.Abs().Add(delta.Abs())
		if !totalQty.IsZero() {
			p.AvgEntry = prevNotional.Add(addNotional).Div(totalQty)
		}
	} else if newQty.IsZero() {
		p.AvgEntry = decimal.Zero
	}

	p.Quantity = newQty
	p.UpdatedAt = time.Now()
}

// Get returns the aggregate position for a canonical key.
func (t *Tracker) Get(positionKey string) Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.aggregate[positionKey]; ok {
		return *p
	}
	return Position{PositionKey: positionKey}
}

// GetVenue returns venue's position for a canonical key.
func (t *Tracker) GetVenue(venue, positionKey string) Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if m, ok := t.perVenue[venue]; ok {
		if p, ok := m[positionKey]; ok {
			return *p
		}
	}
	return Position{PositionKey: positionKey, Venue: venue}
}

// All returns every aggregate position, for GET /api/positions (§6).
func (t *Tracker) All() []Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Position, 0, len(t.aggregate))
	for _, p := range t.aggregate {
		out = append(out, *p)
	}
	return out
}

// AllForVenue returns every position the named venue holds, for the
// GET /api/positions?venue= filter (§6).
func (t *Tracker) AllForVenue(venue string) []Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m := t.perVenue[venue]
	out := make([]Position, 0, len(m))
	for _, p := range m {
		out = append(out, *p)
	}
	return out
}

// Reconcile is a ReconcileFunc-compatible callback, registered on every
// supervisor by cmd/orchestrator: on every adapter reconnect, the venue's authoritative position snapshot overwrites the
// tracker's venue-level state (the venue is ground truth, never the
// tracker's own fill-derived count), and any disagreement is logged as a
// DriftEvent rather than silently discarded (§4.7, §8 property 8).
func (t *Tracker) Reconcile(ctx context.Context, venue string, _ []adapter.OrderSnapshot, positions []adapter.PositionSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	venuePositions := t.venuePositions(venue)
	seen := make(map[string]bool, len(positions))

	for _, snap := range positions {
		seen[snap.PositionKey] = true
		existing, had := venuePositions[snap.PositionKey]

		if had && !existing.Quantity.Equal(snap.Quantity) {
			t.recordDrift(DriftEvent{
				PositionKey: snap.PositionKey,
				Venue:       venue,
				Tracked:     existing.Quantity,
				Snapshot:    snap.Quantity,
				Delta:       snap.Quantity.Sub(existing.Quantity),
				OccurredAt:  time.Now(),
			})
		}

		venuePositions[snap.PositionKey] = &Position{
			PositionKey: snap.PositionKey,
			Venue:       venue,
			Quantity:    snap.Quantity,
			MarkPrice:   snap.MarkPrice,
			UpdatedAt:   snap.UpdatedAt,
		}
	}

	// Positions the venue no longer reports are closed; zero them rather
	// than leaving stale nonzero quantities behind.
	for key, p := range venuePositions {
		if !seen[key] && !p.Quantity.IsZero() {
			t.recordDrift(DriftEvent{
				PositionKey: key,
				Venue:       venue,
				Tracked:     p.Quantity,
				Snapshot:    decimal.Zero,
				Delta:       p.Quantity.Neg(),
				OccurredAt:  time.Now(),
			})
			p.Quantity = decimal.Zero
			p.UpdatedAt = time.Now()
		}
	}

	t.recomputeAggregate(venuePositions)
}

func (t *Tracker) recomputeAggregate(venuePositions map[string]*Position) {
	for key, vp := range venuePositions {
		agg, ok := t.aggregate[key]
		if !ok {
			agg = &Position{PositionKey: key}
			t.aggregate[key] = agg
		}
		total := decimal.Zero
		for _, vm := range t.perVenue {
			if p, ok := vm[key]; ok {
				total = total.Add(p.Quantity)
			}
		}
		agg.Quantity = total
		agg.MarkPrice = vp.MarkPrice
		agg.UpdatedAt = time.Now()
	}
}

func (t *Tracker) recordDrift(e DriftEvent) {
	t.driftMu.Lock()
	t.drift = append(t.drift, e)
	t.driftMu.Unlock()
	t.logger.Warn(context.Background(), "position: reconciliation drift detected", map[string]interface{}{
		"position_key": e.PositionKey, "venue": e.Venue,
		"tracked": e.Tracked.String(), "snapshot": e.Snapshot.String(), "delta": e.Delta.String(),
	})
}

// DriftLog returns every recorded drift event, for the health surface.
func (t *Tracker) DriftLog() []DriftEvent {
	t.driftMu.Lock()
	defer t.driftMu.Unlock()
	return append([]DriftEvent(nil), t.drift...)
}
