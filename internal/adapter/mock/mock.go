// Package mock provides a spy adapter implementing adapter.Adapter,
// grounded in the teacher's internal/trading/testing mock exchange, for use
// in orchestrator and risk-engine tests (§8 property 6: risk denials never
// produce an adapter call, asserted via a spy recording no calls).
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/order"
	"github.com/google/uuid"
)

// Adapter is an in-memory venue simulator that records every call it
// receives and lets tests script canned responses and event emissions.
type Adapter struct {
	venueCode string
	kind      order.VenueKind

	mu          sync.Mutex
	connected   bool
	submitCalls []adapter.SubmitRequest
	cancelCalls []string

	// NextSubmitResult, if set, is returned (and then cleared) by the next
	// call to Submit; otherwise Submit auto-accepts with a generated id.
	NextSubmitResult *adapter.SubmitResult
	NextSubmitErr    error

	openOrders []adapter.OrderSnapshot
	positions  []adapter.PositionSnapshot

	sink chan<- adapter.Event
}

// New constructs a mock adapter for venueCode.
func New(venueCode string, kind order.VenueKind) *Adapter {
	return &Adapter{venueCode: venueCode, kind: kind}
}

func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = true
	return nil
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}

func (a *Adapter) Submit(ctx context.Context, req adapter.SubmitRequest) (adapter.SubmitResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitCalls = append(a.submitCalls, req)

	if a.NextSubmitErr != nil {
		err := a.NextSubmitErr
		a.NextSubmitErr = nil
		return adapter.SubmitResult{}, err
	}
	if a.NextSubmitResult != nil {
		res := *a.NextSubmitResult
		a.NextSubmitResult = nil
		return res, nil
	}
	return adapter.SubmitResult{Accepted: true, VenueOrderID: "mock-" + uuid.NewString()}, nil
}

func (a *Adapter) Cancel(ctx context.Context, venueOrderID string) (adapter.CancelResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelCalls = append(a.cancelCalls, venueOrderID)
	return adapter.CancelResult{Confirmed: true}, nil
}

func (a *Adapter) OpenOrders(ctx context.Context) ([]adapter.OrderSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]adapter.OrderSnapshot(nil), a.openOrders...), nil
}

func (a *Adapter) Positions(ctx context.Context) ([]adapter.PositionSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]adapter.PositionSnapshot(nil), a.positions...), nil
}

func (a *Adapter) SubscribeEvents(ctx context.Context, sink chan<- adapter.Event) error {
	a.mu.Lock()
	a.sink = sink
	a.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (a *Adapter) Health() adapter.Health {
	a.mu.Lock()
	defer a.mu.Unlock()
	return adapter.Health{Connected: a.connected, LastIO: time.Now()}
}

func (a *Adapter) Kind() order.VenueKind { return a.kind }
func (a *Adapter) VenueCode() string     { return a.venueCode }

// Emit pushes evt onto the subscribed sink, if any; tests use this to
// simulate adapter-originated fills/cancellations/rejections.
func (a *Adapter) Emit(evt adapter.Event) {
	a.mu.Lock()
	sink := a.sink
	a.mu.Unlock()
	if sink != nil {
		sink <- evt
	}
}

// SubmitCalls returns a snapshot of every Submit call received, for
// asserting that risk denials produced zero adapter calls.
func (a *Adapter) SubmitCalls() []adapter.SubmitRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]adapter.SubmitRequest(nil), a.submitCalls...)
}

// SetOpenOrders scripts the snapshot OpenOrders returns.
func (a *Adapter) SetOpenOrders(s []adapter.OrderSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.openOrders = s
}

// SetPositions scripts the snapshot Positions returns.
func (a *Adapter) SetPositions(s []adapter.PositionSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions = s
}
