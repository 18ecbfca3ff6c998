package deribit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/go-resty/resty/v2"
)

// Client is the Deribit REST adapter. It authenticates with a client
// credentials grant, retries 5xx responses, and falls back to polling
// open orders/positions for event detection since its JSON-RPC WebSocket
// gateway is out of scope for this driver (§4.2).
type Client struct {
	logger *observability.Logger
	cfg    Config
	http   *resty.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
	connected   bool
	lastIO      time.Time

	poller *poller
}

// New constructs a Deribit adapter.
func New(logger *observability.Logger, cfg Config) *Client {
	cfg = cfg.withDefaults()
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(300 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	c := &Client{logger: logger, cfg: cfg, http: httpClient}
	c.poller = newPoller(logger, c, cfg.PollInterval)
	return c
}

func (c *Client) Connect(ctx context.Context) error {
	if err := c.authenticate(ctx); err != nil {
		return fmt.Errorf("deribit: authenticate: %w", err)
	}
	c.mu.Lock()
	c.connected = true
	c.lastIO = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

func (c *Client) Kind() order.VenueKind { return order.VenueKindExternalSDK }
func (c *Client) VenueCode() string     { return c.cfg.VenueCode }

func (c *Client) Health() adapter.Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	return adapter.Health{Connected: c.connected, LastIO: c.lastIO}
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastIO = time.Now()
	c.mu.Unlock()
}

func (c *Client) authenticate(ctx context.Context) error {
	var result authResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
		}).
		SetResult(&result).
		Get("/api/v2/public/auth")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	}
	c.mu.Lock()
	c.accessToken = result.Result.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(result.Result.ExpiresIn) * time.Second)
	c.mu.Unlock()
	return nil
}

func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.Lock()
	expired := time.Now().After(c.tokenExpiry)
	c.mu.Unlock()
	if expired {
		return c.authenticate(ctx)
	}
	return nil
}

func (c *Client) bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return "Bearer " + c.accessToken
}

// Submit places a limit or market order on Deribit.
func (c *Client) Submit(ctx context.Context, req adapter.SubmitRequest) (adapter.SubmitResult, error) {
	if err := c.ensureToken(ctx); err != nil {
		return adapter.SubmitResult{}, fmt.Errorf("deribit: token refresh: %w", err)
	}
	symbol, err := c.cfg.SymbolFor(req.CanonicalID)
	if err != nil {
		return adapter.SubmitResult{}, fmt.Errorf("deribit: unresolvable instrument: %w", err)
	}

	endpoint := "/api/v2/private/buy"
	if req.Side == order.SideSell {
		endpoint = "/api/v2/private/sell"
	}

	params := map[string]string{
		"instrument_name": symbol,
		"amount":          req.Quantity.String(),
		"type":            deribitOrderType(req.Type),
		"label":           req.OperationID,
	}
	if req.Type == order.TypeLimit {
		params["price"] = req.Price.String()
	}

	var result orderResultEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", c.bearer()).
		SetQueryParams(params).
		SetResult(&result).
		Get(endpoint)
	if err != nil {
		return adapter.SubmitResult{}, fmt.Errorf("deribit: submit request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return adapter.SubmitResult{}, fmt.Errorf("deribit: submit status %d: %s", resp.StatusCode(), resp.String())
	}
	c.touch()
	return result.Result.Order.toSubmitResult(), nil
}

// Cancel cancels an order by its Deribit order id.
func (c *Client) Cancel(ctx context.Context, venueOrderID string) (adapter.CancelResult, error) {
	if err := c.ensureToken(ctx); err != nil {
		return adapter.CancelResult{}, fmt.Errorf("deribit: token refresh: %w", err)
	}

	var result cancelResultEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", c.bearer()).
		SetQueryParam("order_id", venueOrderID).
		SetResult(&result).
		Get("/api/v2/private/cancel")
	if err != nil {
		return adapter.CancelResult{}, fmt.Errorf("deribit: cancel request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return adapter.CancelResult{}, fmt.Errorf("deribit: cancel status %d: %s", resp.StatusCode(), resp.String())
	}
	c.touch()
	return adapter.CancelResult{Confirmed: result.Result.State == "cancelled"}, nil
}

// OpenOrders returns the venue's live open-order snapshot.
func (c *Client) OpenOrders(ctx context.Context) ([]adapter.OrderSnapshot, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, fmt.Errorf("deribit: token refresh: %w", err)
	}
	var result openOrdersEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", c.bearer()).
		SetQueryParam("kind", "future").
		SetResult(&result).
		Get("/api/v2/private/get_open_orders_by_currency")
	if err != nil {
		return nil, fmt.Errorf("deribit: open orders request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("deribit: open orders status %d: %s", resp.StatusCode(), resp.String())
	}

	out := make([]adapter.OrderSnapshot, 0, len(result.Result))
	for _, o := range result.Result {
		canonical, err := c.cfg.InstrumentFor(o.InstrumentName)
		if err != nil {
			continue
		}
		out = append(out, o.toOrderSnapshot(canonical))
	}
	return out, nil
}

// Positions returns the venue's current position snapshot.
func (c *Client) Positions(ctx context.Context) ([]adapter.PositionSnapshot, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, fmt.Errorf("deribit: token refresh: %w", err)
	}
	var result positionsEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", c.bearer()).
		SetQueryParam("currency", "BTC").
		SetResult(&result).
		Get("/api/v2/private/get_positions")
	if err != nil {
		return nil, fmt.Errorf("deribit: positions request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("deribit: positions status %d: %s", resp.StatusCode(), resp.String())
	}

	out := make([]adapter.PositionSnapshot, 0, len(result.Result))
	for _, p := range result.Result {
		canonical, err := c.cfg.InstrumentFor(p.InstrumentName)
		if err != nil {
			continue
		}
		out = append(out, p.toPositionSnapshot(canonical, c.cfg.VenueCode))
	}
	return out, nil
}

// SubscribeEvents runs the polling loop that diffs successive open-order and
// position snapshots into synthetic Event values (§4.2 polling fallback).
func (c *Client) SubscribeEvents(ctx context.Context, sink chan<- adapter.Event) error {
	return c.poller.run(ctx, sink)
}
