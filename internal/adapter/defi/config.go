// Package defi is an on-chain venue adapter: it broadcasts pre-signed
// transactions over an Ethereum-compatible JSON-RPC endpoint and tracks
// them to confirmation. It also implements atomic.Bundler, submitting an
// atomic-group's members as one multicall transaction (§4.8).
//
// Signing itself is out of scope here (§9 "the core has no wallet custody
// of its own") -- SignedTxFor/SignedBundleFor hand this package an
// already-signed, RLP-encoded transaction to broadcast, the same
// injected-translation-function idiom internal/adapter/integrated and
// internal/adapter/deribit use for SymbolFor/InstrumentFor.
package defi

import (
	"errors"
	"time"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/atomic"
)

// errNotConfigured is what SignedTxFor/SignedBundleFor/TokenAddressFor
// return when a deployment has not injected a wallet/custody signer or
// token address map: this package deliberately does not hold private
// keys, so until something wires those hooks the adapter can connect but
// not submit or report balances.
var errNotConfigured = errors.New("defi: not configured for this venue")

// Config carries the on-chain connection parameters for a Client.
type Config struct {
	VenueCode string
	RPCURL    string
	ChainID   int64

	Timeout       time.Duration
	PollInterval  time.Duration // receipt-polling cadence, default 3s
	ReceiptWindow time.Duration // how long to wait for a bundle receipt before TIMEOUT, default 2m

	// SignedTxFor returns the RLP-encoded, already-signed transaction for a
	// single-order submission.
	SignedTxFor func(req adapter.SubmitRequest) ([]byte, error)

	// SignedBundleFor returns the RLP-encoded, already-signed multicall
	// transaction bundling every member of an atomic group into one
	// on-chain call.
	SignedBundleFor func(members []atomic.BundleRequest) ([]byte, error)

	// TokenAddressFor resolves a canonical instrument id to the ERC-20
	// contract address backing its base asset, for Positions' balance
	// query.
	TokenAddressFor func(canonicalID string) (string, error)

	// HolderAddress is the account whose ERC-20 balances Positions reports.
	HolderAddress string
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.ReceiptWindow == 0 {
		c.ReceiptWindow = 2 * time.Minute
	}
	if c.SignedTxFor == nil {
		c.SignedTxFor = func(adapter.SubmitRequest) ([]byte, error) { return nil, errNotConfigured }
	}
	if c.SignedBundleFor == nil {
		c.SignedBundleFor = func([]atomic.BundleRequest) ([]byte, error) { return nil, errNotConfigured }
	}
	if c.TokenAddressFor == nil {
		c.TokenAddressFor = func(canonicalID string) (string, error) { return "", errNotConfigured }
	}
	return c
}
