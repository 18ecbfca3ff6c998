package integrated

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/pkg/observability"
)

// Driver is a push-based venue connection: signed REST for submit/cancel and
// snapshot reads, an authenticated WebSocket for order/fill events. It
// implements adapter.Adapter directly; a Supervisor wraps it for reconnect,
// circuit-breaking and deadlines (§4.2).
type Driver struct {
	logger *observability.Logger
	cfg    Config
	kind   order.VenueKind

	httpClient *http.Client
	limiter    *rateLimiter

	ws *userDataStream

	mu        sync.RWMutex
	connected bool
	lastIO    time.Time
}

// New constructs a Driver for one venue connection.
func New(logger *observability.Logger, cfg Config, kind order.VenueKind) *Driver {
	cfg = cfg.withDefaults()
	return &Driver{
		logger: logger,
		cfg:    cfg,
		kind:   kind,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: newRateLimiter(cfg.RateLimit),
		ws:      newUserDataStream(logger, cfg),
	}
}

func (d *Driver) Connect(ctx context.Context) error {
	if err := d.ping(ctx); err != nil {
		return fmt.Errorf("integrated: connectivity check failed: %w", err)
	}
	if err := d.ws.connect(ctx); err != nil {
		return fmt.Errorf("integrated: user data stream connect failed: %w", err)
	}
	d.mu.Lock()
	d.connected = true
	d.lastIO = time.Now()
	d.mu.Unlock()
	return nil
}

func (d *Driver) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()
	return d.ws.close()
}

func (d *Driver) Kind() order.VenueKind { return d.kind }
func (d *Driver) VenueCode() string     { return d.cfg.VenueCode }

func (d *Driver) Health() adapter.Health {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return adapter.Health{
		Connected: d.connected,
		LastIO:    d.lastIO,
	}
}

func (d *Driver) touch() {
	d.mu.Lock()
	d.lastIO = time.Now()
	d.mu.Unlock()
}

func (d *Driver) ping(ctx context.Context) error {
	_, err := d.request(ctx, http.MethodGet, "/api/v3/ping", url.Values{}, false)
	return err
}

// SubscribeEvents hands the driver's user-data-stream channel to the caller;
// it blocks for the life of the connection, matching the contract every
// Adapter implementation shares (§4.2).
func (d *Driver) SubscribeEvents(ctx context.Context, sink chan<- adapter.Event) error {
	return d.ws.run(ctx, sink, d.cfg.InstrumentFor)
}

// Submit places an order via signed REST.
func (d *Driver) Submit(ctx context.Context, req adapter.SubmitRequest) (adapter.SubmitResult, error) {
	if !d.limiter.Allow() {
		return adapter.SubmitResult{}, fmt.Errorf("integrated: rate limit exceeded")
	}

	symbol, err := d.cfg.SymbolFor(req.CanonicalID)
	if err != nil {
		return adapter.SubmitResult{}, fmt.Errorf("integrated: unresolvable symbol: %w", err)
	}

	params := buildOrderParams(symbol, req)
	body, err := d.request(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return adapter.SubmitResult{}, err
	}

	var resp venueOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return adapter.SubmitResult{}, fmt.Errorf("integrated: decode submit response: %w", err)
	}
	d.touch()
	return resp.toSubmitResult(), nil
}

// Cancel cancels an order via signed REST.
func (d *Driver) Cancel(ctx context.Context, venueOrderID string) (adapter.CancelResult, error) {
	if !d.limiter.Allow() {
		return adapter.CancelResult{}, fmt.Errorf("integrated: rate limit exceeded")
	}

	params := url.Values{}
	params.Set("orderId", venueOrderID)

	body, err := d.request(ctx, http.MethodDelete, "/api/v3/order", params, true)
	if err != nil {
		return adapter.CancelResult{}, err
	}

	var resp venueOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return adapter.CancelResult{}, fmt.Errorf("integrated: decode cancel response: %w", err)
	}
	d.touch()
	return adapter.CancelResult{Confirmed: resp.Status == "CANCELED"}, nil
}

// OpenOrders returns the venue's current open-order snapshot, used for
// reconciliation on reconnect (§4.7).
func (d *Driver) OpenOrders(ctx context.Context) ([]adapter.OrderSnapshot, error) {
	body, err := d.request(ctx, http.MethodGet, "/api/v3/openOrders", url.Values{}, true)
	if err != nil {
		return nil, err
	}
	var resp []venueOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("integrated: decode open orders: %w", err)
	}
	out := make([]adapter.OrderSnapshot, 0, len(resp))
	for _, r := range resp {
		canonical, err := d.cfg.InstrumentFor(r.Symbol)
		if err != nil {
			continue
		}
		out = append(out, r.toOrderSnapshot(canonical))
	}
	return out, nil
}

// Positions returns the venue's current position snapshot. Spot venues hold
// no margin positions so this returns an empty slice; margin/perp variants
// of this driver override resolution through cfg.InstrumentFor per symbol.
func (d *Driver) Positions(ctx context.Context) ([]adapter.PositionSnapshot, error) {
	body, err := d.request(ctx, http.MethodGet, "/fapi/v2/positionRisk", url.Values{}, true)
	if err != nil {
		return nil, nil
	}
	var resp []venuePositionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil
	}
	out := make([]adapter.PositionSnapshot, 0, len(resp))
	for _, r := range resp {
		canonical, err := d.cfg.InstrumentFor(r.Symbol)
		if err != nil {
			continue
		}
		out = append(out, r.toPositionSnapshot(canonical, d.cfg.VenueCode))
	}
	return out, nil
}

func (d *Driver) request(ctx context.Context, method, endpoint string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	}

	fullURL := d.cfg.BaseURL + endpoint
	var body io.Reader
	var queryString string

	if method == http.MethodGet || method == http.MethodDelete {
		queryString = params.Encode()
	} else {
		queryString = params.Encode()
	}

	if signed {
		sig := d.sign(queryString)
		queryString += "&signature=" + sig
	}

	if method == http.MethodGet || method == http.MethodDelete {
		if queryString != "" {
			fullURL += "?" + queryString
		}
	} else {
		body = strings.NewReader(queryString)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("integrated: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if d.cfg.APIKey != "" {
		httpReq.Header.Set("X-MBX-APIKEY", d.cfg.APIKey)
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("integrated: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("integrated: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("integrated: venue error %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (d *Driver) sign(queryString string) string {
	mac := hmac.New(sha256.New, []byte(d.cfg.SecretKey))
	mac.Write([]byte(queryString))
	return hex.EncodeToString(mac.Sum(nil))
}
