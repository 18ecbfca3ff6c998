// Package api implements the inbound HTTP surface (§6): order submission
// and cancellation, order/position queries, and the aggregate health
// endpoint. The core mandates no other caller-facing contract.
//
// Grounded on the teacher's api/sor_handlers.go handler shape (a struct
// holding its collaborator plus a logger, one method per endpoint:
// decode -> validate -> convert -> call -> encode), and on
// cmd/api-gateway/main.go for the stdlib ServeMux + middleware-chain
// wiring idiom (method-pattern routes, Recovery/Logging/Tracing/CORS).
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/oms"
	"github.com/execorch/execorch/internal/orcherr"
	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/internal/orchestrator"
	"github.com/execorch/execorch/internal/position"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/shopspring/decimal"
)

// Handlers serves the §6 HTTP surface over an Orchestrator and its
// constituent stores.
type Handlers struct {
	orch      *orchestrator.Orchestrator
	orders    *oms.Manager
	positions *position.Tracker
	adapters  *adapter.Registry
	logger    *observability.Logger
	audit     *observability.AuditLogger
}

func New(orch *orchestrator.Orchestrator, orders *oms.Manager, positions *position.Tracker, adapters *adapter.Registry, logger *observability.Logger) *Handlers {
	return &Handlers{orch: orch, orders: orders, positions: positions, adapters: adapters, logger: logger, audit: observability.NewAuditLogger(logger)}
}

// Routes registers the §6 endpoints on mux, using Go 1.22 method-pattern
// routing as cmd/api-gateway/main.go does.
func (h *Handlers) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.submitOrder)
	mux.HandleFunc("GET /api/orders/{operation_id}", h.getOrder)
	mux.HandleFunc("DELETE /api/orders/{operation_id}", h.cancelOrder)
	mux.HandleFunc("GET /api/positions", h.listPositions)
	mux.HandleFunc("GET /api/health", h.health)
}

// orderRequest is the order-submission JSON (§3): every user-assignable
// field. Decimal-bearing fields travel as strings to avoid float rounding
// at the JSON boundary.
type orderRequest struct {
	OperationID         string                 `json:"operation_id"`
	Operation           string                 `json:"operation"`
	CanonicalID         string                 `json:"canonical_id"`
	Side                string                 `json:"side"`
	Quantity            string                 `json:"quantity"`
	Price               string                 `json:"price,omitempty"`
	Type                string                 `json:"type"`
	TimeInForce         string                 `json:"time_in_force,omitempty"`
	ExecAlgorithm       string                 `json:"exec_algorithm,omitempty"`
	ExecAlgorithmParams map[string]interface{} `json:"exec_algorithm_params,omitempty"`
	ExpectedDeltas      map[string]string      `json:"expected_deltas,omitempty"`
	AtomicGroupID       string                 `json:"atomic_group_id,omitempty"`
	SequenceInGroup     int                    `json:"sequence_in_group,omitempty"`
	AtomicGroupSize     int                    `json:"atomic_group_size,omitempty"`
	Odds                string                 `json:"odds,omitempty"`
	Selection           string                 `json:"selection,omitempty"`
	StrategyID          string                 `json:"strategy_id,omitempty"`
}

// orderResponse is the order snapshot shape returned by every endpoint that
// surfaces an order (§6).
type orderResponse struct {
	OperationID       string            `json:"operation_id"`
	Status            string            `json:"status"`
	Venue             string            `json:"venue,omitempty"`
	VenueOrderID      string            `json:"venue_order_id,omitempty"`
	CanonicalID       string            `json:"canonical_id"`
	Side              string            `json:"side"`
	Quantity          string            `json:"quantity"`
	Price             string            `json:"price,omitempty"`
	Fills             []fillResponse    `json:"fills"`
	RejectionReason   string            `json:"rejection_reason,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	ParentOperationID string            `json:"parent_operation_id,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

type fillResponse struct {
	FillID      string    `json:"fill_id"`
	Quantity    string    `json:"quantity"`
	Price       string    `json:"price"`
	Fee         string    `json:"fee"`
	VenueFillID string    `json:"venue_fill_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func toOrderResponse(o *order.Order) orderResponse {
	fills := make([]fillResponse, len(o.Fills))
	for i, f := range o.Fills {
		fills[i] = fillResponse{
			FillID: f.FillID, Quantity: f.Quantity.String(), Price: f.Price.String(),
			Fee: f.Fee.String(), VenueFillID: f.VenueFillID, Timestamp: f.Timestamp,
		}
	}
	var price string
	if o.Type == order.TypeLimit {
		price = o.Price.String()
	}
	return orderResponse{
		OperationID: o.OperationID, Status: string(o.Status), Venue: o.Venue,
		VenueOrderID: o.VenueOrderID, CanonicalID: o.CanonicalID, Side: string(o.Side),
		Quantity: o.Quantity.String(), Price: price, Fills: fills,
		RejectionReason: o.RejectionReason, ErrorMessage: o.ErrorMessage,
		ParentOperationID: o.ParentOperationID, CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt,
	}
}

func (h *Handlers) submitOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, orcherr.KindMalformed, "invalid request body")
		return
	}

	o, err := convertOrderRequest(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, orcherr.KindMalformed, err.Error())
		return
	}

	result, err := h.orch.Submit(ctx, o)
	if err != nil {
		h.logger.Error(ctx, "api: order submission failed", err, map[string]interface{}{
			"operation_id": o.OperationID,
		})
		if result != nil {
			writeJSON(w, statusForKind(err), toOrderResponse(result))
			return
		}
		writeOrcherr(w, err)
		return
	}

	h.audit.LogOrderAction(ctx, "submit_order", result.OperationID, result.StrategyID, map[string]interface{}{
		"canonical_id": result.CanonicalID, "status": string(result.Status),
	})
	writeJSON(w, http.StatusCreated, toOrderResponse(result))
}

func convertOrderRequest(req *orderRequest) (*order.Order, error) {
	if req.OperationID == "" {
		return nil, errMissingField("operation_id")
	}
	if req.CanonicalID == "" {
		return nil, errMissingField("canonical_id")
	}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return nil, errInvalidDecimal("quantity", req.Quantity)
	}

	o := &order.Order{
		OperationID:         req.OperationID,
		Operation:           order.Operation(req.Operation),
		CanonicalID:         req.CanonicalID,
		Side:                order.Side(req.Side),
		Quantity:            qty,
		Type:                order.Type(req.Type),
		TimeInForce:         order.TimeInForce(req.TimeInForce),
		ExecAlgorithm:       order.ExecAlgorithm(req.ExecAlgorithm),
		ExecAlgorithmParams: req.ExecAlgorithmParams,
		AtomicGroupID:       req.AtomicGroupID,
		SequenceInGroup:     req.SequenceInGroup,
		AtomicGroupSize:     req.AtomicGroupSize,
		Selection:           req.Selection,
		StrategyID:          req.StrategyID,
	}
	if o.Operation == "" {
		o.Operation = order.OperationTrade
	}
	if o.Type == "" {
		o.Type = order.TypeMarket
	}
	if o.TimeInForce == "" {
		o.TimeInForce = order.TIFGTC
	}

	if req.Price != "" {
		price, err := decimal.NewFromString(req.Price)
		if err != nil {
			return nil, errInvalidDecimal("price", req.Price)
		}
		o.Price = price
	}
	if o.Type == order.TypeLimit && o.Price.IsZero() {
		return nil, errMissingField("price (required for LIMIT orders)")
	}

	if req.Odds != "" {
		odds, err := decimal.NewFromString(req.Odds)
		if err != nil {
			return nil, errInvalidDecimal("odds", req.Odds)
		}
		o.Odds = odds
	}

	if len(req.ExpectedDeltas) > 0 {
		o.ExpectedDeltas = make(map[string]decimal.Decimal, len(req.ExpectedDeltas))
		for k, v := range req.ExpectedDeltas {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return nil, errInvalidDecimal("expected_deltas["+k+"]", v)
			}
			o.ExpectedDeltas[k] = d
		}
	}

	return o, nil
}

func (h *Handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	operationID := r.PathValue("operation_id")
	o, err := h.orders.Get(r.Context(), operationID)
	if err != nil {
		writeError(w, http.StatusNotFound, orcherr.KindMalformed, "unknown operation_id")
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operationID := r.PathValue("operation_id")

	o, err := h.orch.Cancel(ctx, operationID)
	if err != nil {
		h.logger.Error(ctx, "api: order cancel failed", err, map[string]interface{}{
			"operation_id": operationID,
		})
		if o != nil {
			writeJSON(w, statusForKind(err), toOrderResponse(o))
			return
		}
		writeOrcherr(w, err)
		return
	}
	h.audit.LogOrderAction(ctx, "cancel_order", o.OperationID, o.StrategyID, map[string]interface{}{
		"canonical_id": o.CanonicalID, "status": string(o.Status),
	})
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type positionResponse struct {
	PositionKey string    `json:"position_key"`
	Venue       string    `json:"venue,omitempty"`
	Quantity    string    `json:"quantity"`
	AvgEntry    string    `json:"avg_entry"`
	MarkPrice   string    `json:"mark_price"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (h *Handlers) listPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	canonicalKey := q.Get("canonical_key")
	baseAsset := q.Get("base_asset")
	venue := q.Get("venue")

	var positions []position.Position
	if venue != "" {
		positions = h.positions.AllForVenue(venue)
	} else {
		positions = h.positions.All()
	}

	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		if canonicalKey != "" && p.PositionKey != canonicalKey {
			continue
		}
		if baseAsset != "" && !strings.HasSuffix(p.PositionKey, ":"+baseAsset) {
			continue
		}
		out = append(out, positionResponse{
			PositionKey: p.PositionKey, Venue: p.Venue, Quantity: p.Quantity.String(),
			AvgEntry: p.AvgEntry.String(), MarkPrice: p.MarkPrice.String(), UpdatedAt: p.UpdatedAt,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

type adapterHealthResponse struct {
	Connected bool      `json:"connected"`
	LastIO    time.Time `json:"last_io"`
}

type healthResponse struct {
	Status   string                            `json:"status"`
	Adapters map[string]adapterHealthResponse `json:"adapters"`
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	snapshot := h.adapters.HealthSnapshot()
	resp := healthResponse{Status: "healthy", Adapters: make(map[string]adapterHealthResponse, len(snapshot))}
	for venue, health := range snapshot {
		if !health.Connected {
			resp.Status = "degraded"
		}
		resp.Adapters[venue] = adapterHealthResponse{Connected: health.Connected, LastIO: health.LastIO}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeError(w http.ResponseWriter, status int, kind orcherr.Kind, reason string) {
	writeJSON(w, status, errorResponse{Error: string(kind), Reason: reason})
}

// writeOrcherr maps an *orcherr.Error to its HTTP status and body (§7).
func writeOrcherr(w http.ResponseWriter, err error) {
	oe, ok := err.(*orcherr.Error)
	if !ok {
		writeError(w, http.StatusInternalServerError, orcherr.KindInternal, err.Error())
		return
	}
	writeJSON(w, statusForKind(err), errorResponse{Error: string(oe.Kind), Reason: oe.Reason})
}

func statusForKind(err error) int {
	oe, ok := err.(*orcherr.Error)
	if !ok {
		return http.StatusInternalServerError
	}
	switch oe.Kind {
	case orcherr.KindMalformed, orcherr.KindDuplicateOp:
		return http.StatusBadRequest
	case orcherr.KindRiskDenied:
		return http.StatusForbidden
	case orcherr.KindRouteUnavailable, orcherr.KindVenueUnreachable:
		return http.StatusServiceUnavailable
	case orcherr.KindVenueRejected:
		return http.StatusUnprocessableEntity
	case orcherr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errMissingField(name string) error {
	return &fieldError{field: name, reason: "is required"}
}

func errInvalidDecimal(name, value string) error {
	return &fieldError{field: name, reason: "is not a valid decimal: " + value}
}

type fieldError struct {
	field  string
	reason string
}

func (e *fieldError) Error() string { return e.field + " " + e.reason }
