// Package adapter defines the uniform venue adapter contract (§4.2) shared
// by the integrated multi-venue driver and every external-SDK adapter, plus
// the event types adapters push onto their sink.
package adapter

import (
	"context"
	"time"

	"github.com/execorch/execorch/internal/order"
	"github.com/shopspring/decimal"
)

// SubmitRequest is the venue-facing order submission payload.
type SubmitRequest struct {
	OperationID   string
	CanonicalID   string
	VenueSymbol   string
	Side          order.Side
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	Type          order.Type
	TimeInForce   order.TimeInForce
}

// SubmitResult is the synchronous response to Submit (§4.2).
type SubmitResult struct {
	Accepted      bool
	VenueOrderID  string
	RejectReason  string
}

// CancelResult is the synchronous response to Cancel.
type CancelResult struct {
	Confirmed bool
	Reason    string
}

// OrderSnapshot is a point-in-time view of a venue order, returned by
// OpenOrders and by reconciliation snapshots.
type OrderSnapshot struct {
	VenueOrderID string
	CanonicalID  string
	Status       order.Status
	FilledQty    decimal.Decimal
	AvgPrice     decimal.Decimal
	Fills        []order.Fill
	UpdatedAt    time.Time
}

// PositionSnapshot is a point-in-time view of a venue's holding for a
// canonical position key (§4.7 reconciliation).
type PositionSnapshot struct {
	PositionKey string
	Venue       string
	Quantity    decimal.Decimal
	MarkPrice   decimal.Decimal
	UpdatedAt   time.Time
}

// EventType enumerates the events an adapter pushes onto its sink (§4.2).
type EventType string

const (
	EventOrderSubmitted  EventType = "OrderSubmitted"
	EventOrderFilled     EventType = "OrderFilled"
	EventOrderCancelled  EventType = "OrderCancelled"
	EventOrderRejected   EventType = "OrderRejected"
	EventPositionUpdated EventType = "PositionUpdated"
	EventAccountUpdated  EventType = "AccountUpdated"
)

// Event is a single adapter-emitted event. Ordering per VenueOrderID is
// monotonic (§4.2, §5); exactly one field among the Fill/Position/Reason
// payloads is meaningful per EventType.
type Event struct {
	Type         EventType
	Venue        string
	VenueOrderID string
	Fill         *order.Fill
	Position     *PositionSnapshot
	RejectReason string
	Timestamp    time.Time
}

// Health reports adapter connectivity (§4.2, surfaced at GET /api/health).
type Health struct {
	Connected  bool
	LastIO     time.Time
}

// Adapter is the uniform contract every venue — hosted multi-venue runtime
// or bespoke per-venue client — presents (§4.2). All methods are safe to
// call concurrently; Connect/Disconnect are idempotent.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)
	Cancel(ctx context.Context, venueOrderID string) (CancelResult, error)
	OpenOrders(ctx context.Context) ([]OrderSnapshot, error)
	Positions(ctx context.Context) ([]PositionSnapshot, error)

	// SubscribeEvents pushes Event values onto sink and blocks until ctx is
	// cancelled or the adapter's event stream ends; the supervisor treats
	// its return as a disconnect.
	SubscribeEvents(ctx context.Context, sink chan<- Event) error

	Health() Health

	// Kind reports which of the two dispatch paths this adapter
	// implements (§4.2, §2).
	Kind() order.VenueKind

	// VenueCode is the venue identifier this adapter instance answers for.
	// Every instance, external-SDK or integrated, answers for exactly one
	// venue and is registered under that code (see registry.go).
	VenueCode() string
}
