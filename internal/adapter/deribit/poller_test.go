package deribit

import (
	"testing"
	"time"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func newTestPoller() *poller {
	return newPoller(&observability.Logger{}, &Client{cfg: Config{VenueCode: "deribit"}}, time.Second)
}

func TestPollerEmitsSubmittedOnFirstSight(t *testing.T) {
	p := newTestPoller()
	sink := make(chan adapter.Event, 8)

	p.emitIfChanged(sink, adapter.OrderSnapshot{
		VenueOrderID: "vo-1",
		Status:       order.StatusSubmitted,
		FilledQty:    decimal.Zero,
	})

	evt := <-sink
	assert.Equal(t, adapter.EventOrderSubmitted, evt.Type)
}

func TestPollerEmitsFillOnFilledQtyIncrease(t *testing.T) {
	p := newTestPoller()
	sink := make(chan adapter.Event, 8)

	p.emitIfChanged(sink, adapter.OrderSnapshot{VenueOrderID: "vo-1", Status: order.StatusSubmitted, FilledQty: decimal.Zero})
	<-sink // submitted

	p.emitIfChanged(sink, adapter.OrderSnapshot{VenueOrderID: "vo-1", Status: order.StatusPartiallyFilled, FilledQty: decimal.NewFromInt(1)})
	evt := <-sink
	assert.Equal(t, adapter.EventOrderFilled, evt.Type)
	assert.True(t, evt.Fill.Quantity.Equal(decimal.NewFromInt(1)))
}

func TestPollerEmitsNothingWhenUnchanged(t *testing.T) {
	p := newTestPoller()
	sink := make(chan adapter.Event, 8)

	snap := adapter.OrderSnapshot{VenueOrderID: "vo-1", Status: order.StatusSubmitted, FilledQty: decimal.Zero}
	p.emitIfChanged(sink, snap)
	<-sink
	p.emitIfChanged(sink, snap)

	select {
	case evt := <-sink:
		t.Fatalf("expected no further events, got %+v", evt)
	default:
	}
}
