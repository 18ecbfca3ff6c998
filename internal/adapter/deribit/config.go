// Package deribit is an external-SDK venue adapter: a signed REST client
// over resty, reference-grounded on the teacher pack's Polymarket CLOB
// client (0xtitan6-polymarket-mm/internal/exchange/client.go), paired with a
// polling loop standing in for a push feed (§4.2 "external-SDK adapters may
// poll when no push channel is available"). Deribit itself exposes a JSON-RPC
// WebSocket; this adapter models the polling-fallback path of that same
// contract so both dispatch shapes in §4.2 have a concrete home.
package deribit

import "time"

// Config carries Deribit REST connection parameters.
type Config struct {
	VenueCode string
	BaseURL   string // e.g. https://www.deribit.com
	ClientID  string
	ClientSecret string

	Timeout      time.Duration
	PollInterval time.Duration // default 1500ms, per §2 "polling fallback 1-2s"

	SymbolFor     func(canonicalID string) (string, error)
	InstrumentFor func(symbol string) (string, error)
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 1500 * time.Millisecond
	}
	if c.SymbolFor == nil {
		c.SymbolFor = func(canonicalID string) (string, error) { return canonicalID, nil }
	}
	if c.InstrumentFor == nil {
		c.InstrumentFor = func(symbol string) (string, error) { return symbol, nil }
	}
	return c
}
