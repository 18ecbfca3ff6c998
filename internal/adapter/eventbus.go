package adapter

import (
	"context"
	"hash/fnv"
)

// Handler processes a single adapter event. Implementations are supplied by
// the OMS and position tracker; the event bus itself never mutates either
// table (§3 "Ownership").
type Handler func(ctx context.Context, evt Event)

// EventBus fans adapter events out to a fixed pool of workers, partitioned
// by a hash of VenueOrderID, so that every event for a given venue order is
// processed by exactly one goroutine in emission order (§5 "Ordering
// guarantees", §8 property 7) without a global lock.
type EventBus struct {
	workers []chan Event
	handler Handler
}

// NewEventBus creates a bus with the given worker count and channel depth.
func NewEventBus(workerCount, channelDepth int, handler Handler) *EventBus {
	if workerCount <= 0 {
		workerCount = 8
	}
	if channelDepth <= 0 {
		channelDepth = 1024
	}
	b := &EventBus{
		workers: make([]chan Event, workerCount),
		handler: handler,
	}
	for i := range b.workers {
		b.workers[i] = make(chan Event, channelDepth)
	}
	return b
}

// Run starts the worker pool; it blocks until ctx is cancelled.
func (b *EventBus) Run(ctx context.Context) {
	done := make(chan struct{})
	for _, ch := range b.workers {
		ch := ch
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case evt, ok := <-ch:
					if !ok {
						return
					}
					b.handler(ctx, evt)
				}
			}
		}()
	}
	<-ctx.Done()
	close(done)
}

// Publish routes evt to the worker partition owning its VenueOrderID. If the
// partition's channel is full the call blocks, applying backpressure to the
// adapter's emission goroutine rather than silently dropping events.
func (b *EventBus) Publish(evt Event) {
	idx := b.partition(evt.VenueOrderID)
	b.workers[idx] <- evt
}

func (b *EventBus) partition(key string) int {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()) % len(b.workers)
}
