package adapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/execorch/execorch/internal/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 50*time.Millisecond)
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.Allow())

	time.Sleep(60 * time.Millisecond)
	assert.True(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestEventBusPreservesPerOrderOrdering(t *testing.T) {
	var mu sync.Mutex
	received := map[string][]int{}

	bus := NewEventBus(4, 64, func(ctx context.Context, evt Event) {
		mu.Lock()
		defer mu.Unlock()
		seq := evt.Fill.Quantity.IntPart()
		received[evt.VenueOrderID] = append(received[evt.VenueOrderID], int(seq))
	})

	ctx, cancel := context.WithCancel(context.Background())
	go bus.Run(ctx)

	const perOrder = 20
	orderIDs := []string{"vo-1", "vo-2", "vo-3"}
	for _, id := range orderIDs {
		id := id
		go func() {
			for i := 0; i < perOrder; i++ {
				f := order.Fill{Quantity: decimal.NewFromInt(int64(i))}
				bus.Publish(Event{
					VenueOrderID: id,
					Type:         EventOrderFilled,
					Fill:         &f,
				})
			}
		}()
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, id := range orderIDs {
			if len(received[id]) != perOrder {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	cancel()

	mu.Lock()
	defer mu.Unlock()
	for _, id := range orderIDs {
		seq := received[id]
		for i, v := range seq {
			assert.Equal(t, i, v, "order %s must see events in emission order", id)
		}
	}
}
