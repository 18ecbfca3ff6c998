package integrated

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/gorilla/websocket"
)

// userDataStream owns the authenticated WebSocket connection a venue uses to
// push order and fill updates, grounded on the teacher's WebSocketManager
// (internal/exchanges/binance/websocket.go) but narrowed to the single
// stream the orchestrator needs: account/order execution reports.
type userDataStream struct {
	logger *observability.Logger
	cfg    Config

	mu   sync.Mutex
	conn *websocket.Conn
}

func newUserDataStream(logger *observability.Logger, cfg Config) *userDataStream {
	return &userDataStream{logger: logger, cfg: cfg}
}

func (s *userDataStream) connect(ctx context.Context) error {
	url := s.cfg.WSBaseURL + "/userdata"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("integrated: dial user data stream: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

func (s *userDataStream) close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// run reads execution-report frames off the connection and translates each
// into an adapter.Event, blocking until ctx is cancelled or the connection
// drops — matching every Adapter's SubscribeEvents contract.
func (s *userDataStream) run(ctx context.Context, sink chan<- adapter.Event, instrumentFor func(string) (string, error)) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("integrated: user data stream not connected")
	}

	done := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			var report executionReport
			if err := json.Unmarshal(msg, &report); err != nil {
				s.logger.Warn(ctx, "integrated: malformed execution report", map[string]interface{}{
					"venue": s.cfg.VenueCode, "error": err.Error(),
				})
				continue
			}
			evt, ok := report.toEvent(s.cfg.VenueCode, instrumentFor)
			if ok {
				sink <- evt
			}
		}
	}()

	select {
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// executionReport mirrors a Binance-family "executionReport" user-data-stream
// frame (see BinanceWSUserData in the teacher's types.go).
type executionReport struct {
	EventType     string `json:"e"`
	Symbol        string `json:"s"`
	OrderID       int64  `json:"i"`
	ClientOrderID string `json:"c"`
	Side          string `json:"S"`
	OrderStatus   string `json:"X"`
	LastExecQty   string `json:"l"`
	LastExecPrice string `json:"L"`
	RejectReason  string `json:"r"`
	EventTime     int64  `json:"E"`
}

func (r executionReport) toEvent(venueCode string, instrumentFor func(string) (string, error)) (adapter.Event, bool) {
	if r.EventType != "executionReport" {
		return adapter.Event{}, false
	}

	evt := adapter.Event{
		Venue:        venueCode,
		VenueOrderID: itoa(r.OrderID),
		Timestamp:    time.UnixMilli(r.EventTime),
	}

	switch r.OrderStatus {
	case "NEW":
		evt.Type = adapter.EventOrderSubmitted
	case "PARTIALLY_FILLED", "FILLED":
		evt.Type = adapter.EventOrderFilled
		qty := decimalOrZero(r.LastExecQty)
		price := decimalOrZero(r.LastExecPrice)
		evt.Fill = &order.Fill{
			Quantity:  qty,
			Price:     price,
			Timestamp: evt.Timestamp,
		}
	case "CANCELED", "EXPIRED":
		evt.Type = adapter.EventOrderCancelled
	case "REJECTED":
		evt.Type = adapter.EventOrderRejected
		evt.RejectReason = r.RejectReason
	default:
		return adapter.Event{}, false
	}

	return evt, true
}
