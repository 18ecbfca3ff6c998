// Package oms is the unified Order Manager: durable relational persistence
// for every order this orchestrator has ever submitted, a strictly
// read-through cache in front of it, and an idempotent mapping from adapter
// events onto row mutations (§4.6).
//
// It is grounded on the teacher's internal/exchanges/order_manager.go for
// the managed-order shape and lifecycle bookkeeping, generalized from an
// in-memory map to durable storage via pkg/database, since §4.6 requires
// orders to survive process restart.
package oms

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/internal/orcherr"
	"github.com/execorch/execorch/pkg/database"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an operation id has no corresponding order.
var ErrNotFound = errors.New("oms: order not found")

// Manager is the unified Order Manager.
type Manager struct {
	logger  *observability.Logger
	db      *database.DB
	cache   *database.RedisClient
	metrics *observability.MetricsProvider
}

// New constructs a Manager. Callers must run Schema against db once
// at startup (cmd/orchestrator/main.go does this before Start is called on
// anything that depends on oms.Manager). metrics may be nil.
func New(logger *observability.Logger, db *database.DB, cache *database.RedisClient, metrics *observability.MetricsProvider) *Manager {
	return &Manager{logger: logger, db: db, cache: cache, metrics: metrics}
}

// Create persists a brand-new order with the status it carries: PENDING on
// the routed path, REJECTED for a risk denial, PENDING_GROUP for a held
// atomic-group member. On the routed path it is the first durable write in
// the orchestrator's request pipeline (§4.9 step "OMS PENDING persist"),
// before the adapter is ever called.
func (m *Manager) Create(ctx context.Context, o *order.Order) error {
	_, err := m.db.ExecWithMetrics(ctx, `
		INSERT INTO orders (
			operation_id, canonical_id, venue, venue_order_id, strategy_id,
			side, order_type, time_in_force, quantity, price, status,
			filled_quantity, avg_fill_price, atomic_group_id, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (operation_id) DO NOTHING`,
		o.OperationID, o.CanonicalID, o.Venue, o.VenueOrderID, o.StrategyID,
		string(o.Side), string(o.Type), string(o.TimeInForce), o.Quantity, o.Price,
		string(o.Status), o.FilledQuantity(), o.AvgFillPrice(), o.AtomicGroupID,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("oms: create order: %w", err)
	}
	m.invalidate(ctx, o.OperationID)
	return nil
}

// SetVenueOrderID records the venue-assigned id once the adapter accepts a
// submission, and transitions PENDING -> SUBMITTED.
func (m *Manager) SetVenueOrderID(ctx context.Context, operationID, venueOrderID string) error {
	_, err := m.db.ExecWithMetrics(ctx, `
		UPDATE orders SET venue_order_id = $2, status = $3, updated_at = $4
		WHERE operation_id = $1 AND status = $5`,
		operationID, venueOrderID, string(order.StatusSubmitted), time.Now(), string(order.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("oms: set venue order id: %w", err)
	}
	m.invalidate(ctx, operationID)
	return nil
}

// MarkRejected transitions an order straight to REJECTED, e.g. when the
// venue refuses a submission synchronously.
func (m *Manager) MarkRejected(ctx context.Context, operationID, reason string) error {
	_, err := m.db.ExecWithMetrics(ctx, `
		UPDATE orders SET status = $2, reject_reason = $3, updated_at = $4
		WHERE operation_id = $1`,
		operationID, string(order.StatusRejected), reason, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("oms: mark rejected: %w", err)
	}
	m.invalidate(ctx, operationID)
	return nil
}

// ApplyEvent maps a single adapter event onto an idempotent row mutation
// (§4.6 "idempotent event-to-mutation mapping"). Fill events are inserted
// into the fills table keyed by (operation_id, venue_fill_id); a replayed
// event is a no-op thanks to the unique index, never a double-counted fill.
func (m *Manager) ApplyEvent(ctx context.Context, evt adapter.Event) error {
	m.metrics.RecordAdapterReceive(ctx, evt.Venue)
	defer func() {
		if !evt.Timestamp.IsZero() {
			m.metrics.RecordEventDBLag(ctx, evt.Venue, time.Since(evt.Timestamp))
		}
	}()

	o, err := m.findByVenueOrderID(ctx, evt.VenueOrderID)
	if err != nil {
		return err
	}

	switch evt.Type {
	case adapter.EventOrderFilled:
		if evt.Fill == nil {
			return nil
		}
		return m.applyFill(ctx, o, *evt.Fill)
	case adapter.EventOrderCancelled:
		return m.transition(ctx, o.OperationID, order.StatusCancelled, "")
	case adapter.EventOrderRejected:
		return m.transition(ctx, o.OperationID, order.StatusRejected, evt.RejectReason)
	default:
		return nil
	}
}

func (m *Manager) applyFill(ctx context.Context, o *order.Order, f order.Fill) error {
	if f.VenueFillID == "" {
		f.VenueFillID = fmt.Sprintf("%s-%d", o.VenueOrderID, f.Timestamp.UnixNano())
	}

	return m.db.Transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO fills (fill_id, operation_id, venue_fill_id, quantity, price, fee, occurred_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (operation_id, venue_fill_id) DO NOTHING`,
			fmt.Sprintf("%s:%s", o.OperationID, f.VenueFillID), o.OperationID, f.VenueFillID,
			f.Quantity, f.Price, f.Fee, f.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("oms: insert fill: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil // duplicate delivery of an already-applied fill
		}

		newFilled := o.FilledQuantity().Add(f.Quantity)
		if newFilled.GreaterThan(o.Quantity) {
			return orcherr.New(orcherr.KindInternal, "fill exceeds order quantity")
		}
		newStatus := order.StatusPartiallyFilled
		if newFilled.Equal(o.Quantity) {
			newStatus = order.StatusFilled
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET filled_quantity = $2, status = $3, updated_at = $4
			WHERE operation_id = $1`,
			o.OperationID, newFilled, string(newStatus), time.Now(),
		)
		if err != nil {
			return fmt.Errorf("oms: update filled quantity: %w", err)
		}
		m.invalidate(ctx, o.OperationID)
		return nil
	})
}

// ResolveAtomicMember transitions a PENDING_GROUP order straight to its
// terminal state once the coordinator's bundle submission returns, since an
// atomic group has no intermediate SUBMITTED step (§4.8: every member is
// FILLED together or REJECTED together).
func (m *Manager) ResolveAtomicMember(ctx context.Context, operationID string, filled bool, reason string) error {
	to := order.StatusRejected
	if filled {
		to = order.StatusFilled
	}
	return m.transition(ctx, operationID, to, reason)
}

func (m *Manager) transition(ctx context.Context, operationID string, to order.Status, reason string) error {
	_, err := m.db.ExecWithMetrics(ctx, `
		UPDATE orders SET status = $2, reject_reason = $3, updated_at = $4
		WHERE operation_id = $1 AND status NOT IN ($5,$6,$7,$8)`,
		operationID, string(to), reason, time.Now(),
		string(order.StatusFilled), string(order.StatusCancelled),
		string(order.StatusRejected), string(order.StatusExpired),
	)
	if err != nil {
		return fmt.Errorf("oms: transition: %w", err)
	}
	m.invalidate(ctx, operationID)
	return nil
}

// Get returns an order by operation id, read-through the cache.
func (m *Manager) Get(ctx context.Context, operationID string) (*order.Order, error) {
	cacheKey := "oms:order:" + operationID
	val, err := m.cache.GetWithFallback(ctx, cacheKey, func() (interface{}, error) {
		return m.loadByOperationID(ctx, operationID)
	}, 30*time.Second)
	if err != nil {
		return nil, err
	}
	if o, ok := val.(*order.Order); ok {
		return o, nil
	}
	// A cache hit decodes through RedisClient's generic JSON envelope, so the
	// concrete type is lost in transit; re-decode it into order.Order rather
	// than silently bypassing the cache on every hit.
	raw, err := json.Marshal(val)
	if err != nil {
		return m.loadByOperationID(ctx, operationID)
	}
	var o order.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return m.loadByOperationID(ctx, operationID)
	}
	return &o, nil
}

func (m *Manager) loadByOperationID(ctx context.Context, operationID string) (*order.Order, error) {
	row := m.db.GetReadConnection().QueryRowContext(ctx, `
		SELECT operation_id, canonical_id, venue, venue_order_id, strategy_id,
			side, order_type, time_in_force, quantity, price, status,
			filled_quantity, avg_fill_price, atomic_group_id, created_at, updated_at
		FROM orders WHERE operation_id = $1`, operationID)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("oms: load order: %w", err)
	}
	if err := m.attachFills(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (m *Manager) findByVenueOrderID(ctx context.Context, venueOrderID string) (*order.Order, error) {
	row := m.db.GetReadConnection().QueryRowContext(ctx, `
		SELECT operation_id, canonical_id, venue, venue_order_id, strategy_id,
			side, order_type, time_in_force, quantity, price, status,
			filled_quantity, avg_fill_price, atomic_group_id, created_at, updated_at
		FROM orders WHERE venue_order_id = $1`, venueOrderID)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("oms: load order by venue id: %w", err)
	}
	if err := m.attachFills(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// attachFills populates o.Fills from the append-only fills table (§3), the
// real per-fill rows applyFill inserts, rather than the synthesized single
// aggregate fill scanOrder used to fabricate from orders.filled_quantity.
func (m *Manager) attachFills(ctx context.Context, o *order.Order) error {
	rows, err := m.db.GetReadConnection().QueryContext(ctx, `
		SELECT fill_id, venue_fill_id, quantity, price, fee, occurred_at
		FROM fills WHERE operation_id = $1 ORDER BY occurred_at ASC`, o.OperationID)
	if err != nil {
		return fmt.Errorf("oms: load fills: %w", err)
	}
	defer rows.Close()

	var fills []order.Fill
	for rows.Next() {
		var f order.Fill
		if err := rows.Scan(&f.FillID, &f.VenueFillID, &f.Quantity, &f.Price, &f.Fee, &f.Timestamp); err != nil {
			return fmt.Errorf("oms: scan fill: %w", err)
		}
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("oms: iterate fills: %w", err)
	}
	o.Fills = fills
	return nil
}

// ListOpenByStrategy lists non-terminal orders for a strategy, newest first.
func (m *Manager) ListOpenByStrategy(ctx context.Context, strategyID string) ([]*order.Order, error) {
	rows, err := m.db.GetReadConnection().QueryContext(ctx, `
		SELECT operation_id, canonical_id, venue, venue_order_id, strategy_id,
			side, order_type, time_in_force, quantity, price, status,
			filled_quantity, avg_fill_price, atomic_group_id, created_at, updated_at
		FROM orders
		WHERE strategy_id = $1 AND status NOT IN ($2,$3,$4,$5)
		ORDER BY created_at DESC`,
		strategyID, string(order.StatusFilled), string(order.StatusCancelled),
		string(order.StatusRejected), string(order.StatusExpired),
	)
	if err != nil {
		return nil, fmt.Errorf("oms: list open orders: %w", err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("oms: scan open order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range out {
		if err := m.attachFills(ctx, o); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CountByStrategySince counts orders created by strategyID at or after
// since, using the (strategy_id, created_at) index (§4.4 velocity check,
// §4.6 "must support >=1000 q/s on a local DB with the indexes above").
func (m *Manager) CountByStrategySince(ctx context.Context, strategyID string, since time.Time) (int, error) {
	row := m.db.GetReadConnection().QueryRowContext(ctx, `
		SELECT count(*) FROM orders WHERE strategy_id = $1 AND created_at >= $2`,
		strategyID, since,
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("oms: count by strategy since: %w", err)
	}
	return n, nil
}

func (m *Manager) invalidate(ctx context.Context, operationID string) {
	if err := m.cache.DeleteKeys(ctx, "oms:order:"+operationID); err != nil {
		m.logger.Warn(ctx, "oms: cache invalidation failed", map[string]interface{}{
			"operation_id": operationID, "error": err.Error(),
		})
	}
}

// rowScanner abstracts *sql.Row and *sql.Rows so scanOrder serves both Get
// and List paths.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(r rowScanner) (*order.Order, error) {
	var o order.Order
	var side, typ, tif, status string
	var venueOrderID, atomicGroupID sql.NullString
	// filled_quantity/avg_fill_price are denormalized columns: applyFill
	// keeps filled_quantity in sync, while avg_fill_price holds only the
	// value Create wrote. The caller repopulates o.Fills from the real fills
	// table via attachFills, so these two scan targets are discarded here.
	var price, filled, avg decimal.Decimal

	err := r.Scan(
		&o.OperationID, &o.CanonicalID, &o.Venue, &venueOrderID, &o.StrategyID,
		&side, &typ, &tif, &o.Quantity, &price, &status,
		&filled, &avg, &atomicGroupID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Side = order.Side(side)
	o.Type = order.Type(typ)
	o.TimeInForce = order.TimeInForce(tif)
	o.Status = order.Status(status)
	o.VenueOrderID = venueOrderID.String
	o.AtomicGroupID = atomicGroupID.String
	o.Price = price
	_, _ = filled, avg
	return &o, nil
}
