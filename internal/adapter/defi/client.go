package defi

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/atomic"
	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/shopspring/decimal"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// erc20BalanceOfABI is the minimal ERC-20 fragment Positions needs,
// grounded on internal/web3/erc20_helpers.go's parsedERC20ABI pattern.
const erc20BalanceOfABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}]`

var parsedERC20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20BalanceOfABI))
	if err != nil {
		panic(fmt.Errorf("defi: parse erc20 abi: %w", err))
	}
	parsedERC20ABI = parsed
}

// trackedTx is a broadcast transaction this adapter is still watching for a
// receipt.
type trackedTx struct {
	canonicalID string
	quantity    decimal.Decimal
	price       decimal.Decimal
	submittedAt time.Time
	status      order.Status
}

// Client is the on-chain venue adapter: one ethclient connection per
// configured chain, submitting pre-signed transactions and polling for
// receipts in lieu of a push feed (§4.2 "external-SDK adapters may poll
// when no push channel is available" -- an on-chain mempool has no
// per-account event stream to subscribe to).
type Client struct {
	logger *observability.Logger
	cfg    Config
	eth    *ethclient.Client

	mu        sync.Mutex
	connected bool
	lastIO    time.Time
	pending   map[string]*trackedTx // tx hash -> tracked order
}

// New constructs a defi Client. Dialing the RPC endpoint happens in
// Connect, matching the Adapter contract's explicit connect/disconnect
// lifecycle.
func New(logger *observability.Logger, cfg Config) *Client {
	return &Client{logger: logger, cfg: cfg.withDefaults(), pending: make(map[string]*trackedTx)}
}

func (c *Client) Connect(ctx context.Context) error {
	eth, err := ethclient.DialContext(ctx, c.cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("defi: dial %s: %w", c.cfg.RPCURL, err)
	}
	c.mu.Lock()
	c.eth = eth
	c.connected = true
	c.lastIO = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eth != nil {
		c.eth.Close()
	}
	c.connected = false
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

// Submit broadcasts the caller's pre-signed transaction and tracks it by
// hash until OpenOrders observes a receipt.
func (c *Client) Submit(ctx context.Context, req adapter.SubmitRequest) (adapter.SubmitResult, error) {
	raw, err := c.cfg.SignedTxFor(req)
	if err != nil {
		return adapter.SubmitResult{}, fmt.Errorf("defi: sign submission: %w", err)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return adapter.SubmitResult{}, fmt.Errorf("defi: decode signed tx: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return adapter.SubmitResult{}, fmt.Errorf("defi: broadcast: %w", err)
	}
	c.touch()

	hash := tx.Hash().Hex()
	c.mu.Lock()
	c.pending[hash] = &trackedTx{
		canonicalID: req.CanonicalID, quantity: req.Quantity, price: req.Price,
		submittedAt: time.Now(), status: order.StatusSubmitted,
	}
	c.mu.Unlock()

	return adapter.SubmitResult{Accepted: true, VenueOrderID: hash}, nil
}

// Cancel always reports unconfirmed: once broadcast, an on-chain
// transaction cannot be withdrawn from the mempool (§4.8 DeFi semantics --
// the only undo available is a competing higher-fee transaction, which is
// not a capability this adapter exposes).
func (c *Client) Cancel(ctx context.Context, venueOrderID string) (adapter.CancelResult, error) {
	return adapter.CancelResult{Confirmed: false, Reason: "on-chain transactions cannot be cancelled once broadcast"}, nil
}

// OpenOrders polls every tracked transaction's receipt, reporting fills for
// the ones that have mined.
func (c *Client) OpenOrders(ctx context.Context) ([]adapter.OrderSnapshot, error) {
	c.mu.Lock()
	tracked := make(map[string]*trackedTx, len(c.pending))
	for hash, t := range c.pending {
		tracked[hash] = t
	}
	c.mu.Unlock()

	out := make([]adapter.OrderSnapshot, 0, len(tracked))
	for hash, t := range tracked {
		snap := adapter.OrderSnapshot{
			VenueOrderID: hash, CanonicalID: t.canonicalID,
			Status: t.status, UpdatedAt: t.submittedAt,
		}
		receipt, err := c.eth.TransactionReceipt(ctx, common.HexToHash(hash))
		if err == nil && receipt != nil {
			c.touch()
			if receipt.Status == types.ReceiptStatusSuccessful {
				snap.Status = order.StatusFilled
				snap.FilledQty = t.quantity
				snap.AvgPrice = t.price
			} else {
				snap.Status = order.StatusRejected
			}
			c.mu.Lock()
			c.pending[hash].status = snap.Status
			c.mu.Unlock()
		}
		out = append(out, snap)
	}
	return out, nil
}

// Positions reports the configured holder's ERC-20 balance for each distinct
// instrument among the transactions this client has submitted and still
// tracks, where TokenAddressFor resolves it; instruments never submitted
// through this client are not reported. Grounded on
// internal/web3/erc20_helpers.go's CallContract(balanceOf) pattern.
func (c *Client) Positions(ctx context.Context) ([]adapter.PositionSnapshot, error) {
	c.mu.Lock()
	tracked := make([]string, 0, len(c.pending))
	for _, t := range c.pending {
		tracked = append(tracked, t.canonicalID)
	}
	c.mu.Unlock()

	out := make([]adapter.PositionSnapshot, 0, len(tracked))
	seen := make(map[string]bool, len(tracked))
	for _, canonicalID := range tracked {
		if seen[canonicalID] || c.cfg.TokenAddressFor == nil {
			continue
		}
		seen[canonicalID] = true

		tokenAddr, err := c.cfg.TokenAddressFor(canonicalID)
		if err != nil {
			continue
		}
		balance, err := c.erc20BalanceOf(ctx, tokenAddr, c.cfg.HolderAddress)
		if err != nil {
			c.logger.Warn(ctx, "defi: balanceOf failed", map[string]interface{}{
				"canonical_id": canonicalID, "token": tokenAddr, "error": err.Error(),
			})
			continue
		}
		out = append(out, adapter.PositionSnapshot{
			PositionKey: canonicalID, Venue: c.cfg.VenueCode,
			Quantity: balance, UpdatedAt: time.Now(),
		})
	}
	return out, nil
}

func (c *Client) erc20BalanceOf(ctx context.Context, tokenAddr, holder string) (decimal.Decimal, error) {
	to := common.HexToAddress(tokenAddr)
	callData, err := parsedERC20ABI.Pack("balanceOf", common.HexToAddress(holder))
	if err != nil {
		return decimal.Zero, fmt.Errorf("abi pack balanceOf: %w", err)
	}
	res, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: callData}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("call balanceOf: %w", err)
	}
	var out []interface{}
	if err := parsedERC20ABI.UnpackIntoInterface(&out, "balanceOf", res); err != nil {
		return decimal.Zero, fmt.Errorf("unpack balanceOf: %w", err)
	}
	if len(out) != 1 {
		return decimal.Zero, fmt.Errorf("unexpected balanceOf output shape")
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected balanceOf output type")
	}
	return decimal.NewFromBigInt(raw, 0), nil
}

// SubscribeEvents polls OpenOrders on cfg.PollInterval and emits an
// OrderFilled/OrderRejected event the first time a tracked hash's status
// leaves Submitted, since an RPC node exposes no per-account push feed.
func (c *Client) SubscribeEvents(ctx context.Context, sink chan<- adapter.Event) error {
	last := make(map[string]order.Status)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snapshots, err := c.OpenOrders(ctx)
			if err != nil {
				continue
			}
			for _, s := range snapshots {
				if last[s.VenueOrderID] == s.Status {
					continue
				}
				last[s.VenueOrderID] = s.Status
				switch s.Status {
				case order.StatusFilled:
					sink <- adapter.Event{
						Type: adapter.EventOrderFilled, Venue: c.cfg.VenueCode, VenueOrderID: s.VenueOrderID,
						Fill: &order.Fill{Quantity: s.FilledQty, Price: s.AvgPrice, Timestamp: time.Now()},
						Timestamp: time.Now(),
					}
				case order.StatusRejected:
					sink <- adapter.Event{
						Type: adapter.EventOrderRejected, Venue: c.cfg.VenueCode, VenueOrderID: s.VenueOrderID,
						RejectReason: "transaction reverted", Timestamp: time.Now(),
					}
				}
			}
		}
	}
}

// SubmitBundle implements atomic.Bundler: it broadcasts the caller's
// pre-signed multicall transaction bundling every member and waits up to
// ReceiptWindow for its receipt, since a bundle's all-or-nothing verdict
// depends on exactly one transaction mining (§4.8).
func (c *Client) SubmitBundle(ctx context.Context, venue string, reqs []atomic.BundleRequest) (atomic.BundleResult, error) {
	raw, err := c.cfg.SignedBundleFor(reqs)
	if err != nil {
		return atomic.BundleResult{}, fmt.Errorf("defi: sign bundle: %w", err)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return atomic.BundleResult{}, fmt.Errorf("defi: decode signed bundle tx: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return atomic.BundleResult{}, fmt.Errorf("defi: broadcast bundle: %w", err)
	}
	c.touch()

	deadline := time.Now().Add(c.cfg.ReceiptWindow)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, tx.Hash())
		if err == nil && receipt != nil {
			return atomic.BundleResult{
				Success:      receipt.Status == types.ReceiptStatusSuccessful,
				VenueTxHash:  tx.Hash().Hex(),
				RejectReason: bundleRejectReason(receipt.Status),
			}, nil
		}
		if time.Now().After(deadline) {
			return atomic.BundleResult{VenueTxHash: tx.Hash().Hex(), RejectReason: "timed out waiting for bundle receipt"}, nil
		}
		select {
		case <-ctx.Done():
			return atomic.BundleResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func bundleRejectReason(status uint64) string {
	if status == types.ReceiptStatusSuccessful {
		return ""
	}
	return "bundle transaction reverted"
}
