package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/execorch/execorch/internal/adapter"
	mockadapter "github.com/execorch/execorch/internal/adapter/mock"
	"github.com/execorch/execorch/internal/orcherr"
	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/internal/position"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/shopspring/decimal"
)

func TestConvertOrderRequestRejectsMissingOperationID(t *testing.T) {
	_, err := convertOrderRequest(&orderRequest{CanonicalID: "BINANCE:SPOT_PAIR:BTC-USDT", Quantity: "1"})
	if err == nil {
		t.Fatal("expected an error for a missing operation_id")
	}
}

func TestConvertOrderRequestRejectsMalformedQuantity(t *testing.T) {
	_, err := convertOrderRequest(&orderRequest{
		OperationID: "op-1", CanonicalID: "BINANCE:SPOT_PAIR:BTC-USDT", Quantity: "not-a-number",
	})
	if err == nil {
		t.Fatal("expected an error for a malformed quantity")
	}
}

func TestConvertOrderRequestRequiresPriceForLimitOrders(t *testing.T) {
	_, err := convertOrderRequest(&orderRequest{
		OperationID: "op-1", CanonicalID: "BINANCE:SPOT_PAIR:BTC-USDT", Quantity: "1", Type: "LIMIT",
	})
	if err == nil {
		t.Fatal("expected an error when a LIMIT order carries no price")
	}
}

func TestConvertOrderRequestDefaultsOperationTypeAndTIF(t *testing.T) {
	o, err := convertOrderRequest(&orderRequest{
		OperationID: "op-1", CanonicalID: "BINANCE:SPOT_PAIR:BTC-USDT", Quantity: "1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Operation != order.OperationTrade {
		t.Errorf("expected default operation trade, got %q", o.Operation)
	}
	if o.Type != order.TypeMarket {
		t.Errorf("expected default type MARKET, got %q", o.Type)
	}
	if o.TimeInForce != order.TIFGTC {
		t.Errorf("expected default time_in_force GTC, got %q", o.TimeInForce)
	}
}

func TestConvertOrderRequestParsesExpectedDeltas(t *testing.T) {
	o, err := convertOrderRequest(&orderRequest{
		OperationID: "op-1", CanonicalID: "BINANCE:SPOT_PAIR:BTC-USDT", Quantity: "1",
		ExpectedDeltas: map[string]string{"BINANCE:SPOT_ASSET:BTC": "1.5"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := o.ExpectedDeltas["BINANCE:SPOT_ASSET:BTC"]
	if !ok || !got.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("expected_deltas not parsed correctly: %v", o.ExpectedDeltas)
	}
}

func TestToOrderResponseOmitsPriceForMarketOrders(t *testing.T) {
	o := &order.Order{
		OperationID: "op-1", Type: order.TypeMarket, Quantity: decimal.NewFromInt(1),
		Price: decimal.NewFromInt(100),
	}
	resp := toOrderResponse(o)
	if resp.Price != "" {
		t.Errorf("expected no price on a MARKET order response, got %q", resp.Price)
	}
}

func TestToOrderResponseIncludesPriceForLimitOrders(t *testing.T) {
	o := &order.Order{
		OperationID: "op-1", Type: order.TypeLimit, Quantity: decimal.NewFromInt(1),
		Price: decimal.NewFromInt(100),
	}
	resp := toOrderResponse(o)
	if resp.Price != "100" {
		t.Errorf("expected price 100 on a LIMIT order response, got %q", resp.Price)
	}
}

func TestListPositionsFiltersByVenueAndBaseAsset(t *testing.T) {
	tracker := position.New(&observability.Logger{})
	tracker.ApplyFill(context.Background(), "BINANCE", "BINANCE:SPOT_ASSET:BTC", order.SideBuy, order.Fill{
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(50000), Timestamp: time.Now(),
	})
	tracker.ApplyFill(context.Background(), "BINANCE", "BINANCE:SPOT_ASSET:ETH", order.SideBuy, order.Fill{
		Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(3000), Timestamp: time.Now(),
	})

	h := &Handlers{positions: tracker, logger: &observability.Logger{}}

	req := httptest.NewRequest(http.MethodGet, "/api/positions?venue=BINANCE&base_asset=BTC", nil)
	rec := httptest.NewRecorder()
	h.listPositions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "BTC") || strings.Contains(body, "SPOT_ASSET:ETH") {
		t.Errorf("expected only the BTC position in the response, got %s", body)
	}
}

func TestHealthReportsDegradedWhenAnyAdapterDisconnected(t *testing.T) {
	logger := &observability.Logger{}
	registry := adapter.NewRegistry(logger, 2, nil)

	connected := mockadapter.New("BINANCE", order.VenueKindExternalSDK)
	registry.Register("BINANCE", connected, adapter.SupervisorConfig{})

	h := &Handlers{adapters: registry, logger: logger}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	// Before Start() connects it, the mock adapter reports disconnected, so
	// the aggregate status must be "degraded" rather than "healthy".
	if !strings.Contains(rec.Body.String(), `"status":"degraded"`) {
		t.Errorf("expected a degraded status before the adapter connects, got %s", rec.Body.String())
	}
}

func TestStatusForKindMapsRiskDenialToForbidden(t *testing.T) {
	status := statusForKind(orcherr.New(orcherr.KindRiskDenied, "VELOCITY_EXCEEDED"))
	if status != http.StatusForbidden {
		t.Errorf("expected 403 for a risk denial, got %d", status)
	}
}
