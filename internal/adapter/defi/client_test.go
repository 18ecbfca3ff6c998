package defi

import (
	"context"
	"testing"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/atomic"
	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelAlwaysReportsUnconfirmed(t *testing.T) {
	c := New(&observability.Logger{}, Config{VenueCode: "UNISWAP"})
	result, err := c.Cancel(context.Background(), "0xdeadbeef")
	require.NoError(t, err)
	assert.False(t, result.Confirmed)
	assert.NotEmpty(t, result.Reason)
}

func TestVenueCodeAndKind(t *testing.T) {
	c := New(&observability.Logger{}, Config{VenueCode: "UNISWAP"})
	assert.Equal(t, "UNISWAP", c.VenueCode())
	assert.Equal(t, order.VenueKindExternalSDK, c.Kind())
}

func TestWithDefaultsFillsUnconfiguredHooks(t *testing.T) {
	cfg := Config{VenueCode: "UNISWAP"}.withDefaults()

	_, err := cfg.SignedTxFor(adapter.SubmitRequest{})
	assert.ErrorIs(t, err, errNotConfigured)

	_, err = cfg.SignedBundleFor(nil)
	assert.ErrorIs(t, err, errNotConfigured)

	_, err = cfg.TokenAddressFor("BTC-USD")
	assert.ErrorIs(t, err, errNotConfigured)
}

func TestWithDefaultsPreservesConfiguredHooks(t *testing.T) {
	called := false
	cfg := Config{
		VenueCode: "UNISWAP",
		TokenAddressFor: func(canonicalID string) (string, error) {
			called = true
			return "0xtoken", nil
		},
	}.withDefaults()

	addr, err := cfg.TokenAddressFor("BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, "0xtoken", addr)
	assert.True(t, called)
}

func TestWithDefaultsSetsTimings(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.NotZero(t, cfg.Timeout)
	assert.NotZero(t, cfg.PollInterval)
	assert.NotZero(t, cfg.ReceiptWindow)
}

func TestBundleRejectReasonEmptyOnSuccess(t *testing.T) {
	assert.Empty(t, bundleRejectReason(types.ReceiptStatusSuccessful))
}

func TestBundleRejectReasonSetOnFailure(t *testing.T) {
	assert.NotEmpty(t, bundleRejectReason(types.ReceiptStatusFailed))
}

func TestSubmitFailsClosedWithoutSigner(t *testing.T) {
	c := New(&observability.Logger{}, Config{VenueCode: "UNISWAP"})
	_, err := c.Submit(context.Background(), adapter.SubmitRequest{CanonicalID: "ETH-USD"})
	assert.ErrorIs(t, err, errNotConfigured)
}

func TestSubmitBundleFailsClosedWithoutSigner(t *testing.T) {
	c := New(&observability.Logger{}, Config{VenueCode: "UNISWAP"})
	_, err := c.SubmitBundle(context.Background(), "UNISWAP", []atomic.BundleRequest{})
	assert.ErrorIs(t, err, errNotConfigured)
}

func TestHealthReflectsConnectionState(t *testing.T) {
	c := New(&observability.Logger{}, Config{VenueCode: "UNISWAP"})
	h := c.Health()
	assert.False(t, h.Connected)
}
