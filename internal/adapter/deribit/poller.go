package deribit

import (
	"context"
	"time"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/shopspring/decimal"
)

// poller stands in for a push feed: it snapshots open orders on an interval
// and, relative to the previous snapshot, emits OrderFilled for a rise in
// filled quantity, OrderSubmitted for a newly seen order with no new fill,
// OrderCancelled/OrderRejected when an order first reports that status, and
// OrderCancelled when a non-terminal order leaves the open list. Other
// status changes emit nothing (§4.2 "external-SDK adapters
// may poll when no push channel is available; polling fallback 1-2s").
type poller struct {
	logger   *observability.Logger
	client   *Client
	interval time.Duration

	lastFilled map[string]decimal.Decimal
	lastStatus map[string]order.Status
}

func newPoller(logger *observability.Logger, client *Client, interval time.Duration) *poller {
	return &poller{
		logger:     logger,
		client:     client,
		interval:   interval,
		lastFilled: make(map[string]decimal.Decimal),
		lastStatus: make(map[string]order.Status),
	}
}

func (p *poller) run(ctx context.Context, sink chan<- adapter.Event) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx, sink)
		}
	}
}

func (p *poller) tick(ctx context.Context, sink chan<- adapter.Event) {
	snapshots, err := p.client.OpenOrders(ctx)
	if err != nil {
		p.logger.Warn(ctx, "deribit: poll open orders failed", map[string]interface{}{
			"venue": p.client.cfg.VenueCode, "error": err.Error(),
		})
		return
	}

	seen := make(map[string]bool, len(snapshots))
	for _, snap := range snapshots {
		seen[snap.VenueOrderID] = true
		p.emitIfChanged(sink, snap)
	}

	for id, status := range p.lastStatus {
		if !seen[id] && !isTerminalPollStatus(status) {
			sink <- adapter.Event{
				Type:         adapter.EventOrderCancelled,
				Venue:        p.client.cfg.VenueCode,
				VenueOrderID: id,
				Timestamp:    time.Now(),
			}
			delete(p.lastStatus, id)
			delete(p.lastFilled, id)
		}
	}
}

func (p *poller) emitIfChanged(sink chan<- adapter.Event, snap adapter.OrderSnapshot) {
	prevStatus, known := p.lastStatus[snap.VenueOrderID]
	prevFilled := p.lastFilled[snap.VenueOrderID]

	if known && prevStatus == snap.Status && prevFilled.Equal(snap.FilledQty) {
		return
	}

	delta := snap.FilledQty.Sub(prevFilled)
	if delta.IsPositive() {
		sink <- adapter.Event{
			Type:         adapter.EventOrderFilled,
			Venue:        p.client.cfg.VenueCode,
			VenueOrderID: snap.VenueOrderID,
			Fill: &order.Fill{
				Quantity:  delta,
				Price:     snap.AvgPrice,
				Timestamp: time.Now(),
			},
			Timestamp: time.Now(),
		}
	} else if !known {
		sink <- adapter.Event{
			Type:         adapter.EventOrderSubmitted,
			Venue:        p.client.cfg.VenueCode,
			VenueOrderID: snap.VenueOrderID,
			Timestamp:    time.Now(),
		}
	}

	if snap.Status == order.StatusCancelled || snap.Status == order.StatusRejected {
		evtType := adapter.EventOrderCancelled
		if snap.Status == order.StatusRejected {
			evtType = adapter.EventOrderRejected
		}
		sink <- adapter.Event{
			Type:         evtType,
			Venue:        p.client.cfg.VenueCode,
			VenueOrderID: snap.VenueOrderID,
			Timestamp:    time.Now(),
		}
	}

	p.lastStatus[snap.VenueOrderID] = snap.Status
	p.lastFilled[snap.VenueOrderID] = snap.FilledQty
}

func isTerminalPollStatus(s order.Status) bool {
	return s == order.StatusFilled || s == order.StatusCancelled || s == order.StatusRejected || s == order.StatusExpired
}
