// Package integrated adapts a push-based, natively-hosted multi-venue
// connection (modeled on the teacher's internal/exchanges/binance client) to
// the adapter.Adapter contract. A Driver owns one signed REST connection and
// one authenticated user-data WebSocket per venue; SubscribeEvents streams
// order and fill events as they arrive rather than through polling.
package integrated

import "time"

// Config carries the per-venue connection parameters for an integrated
// Driver. SymbolFor/InstrumentFor translate between canonical instrument IDs
// and the venue's own symbol spelling (e.g. "BTCUSDT").
type Config struct {
	VenueCode string
	BaseURL   string
	WSBaseURL string

	APIKey    string
	SecretKey string

	Timeout    time.Duration
	MaxRetries int
	RateLimit  int // requests per minute

	SymbolFor     func(canonicalID string) (string, error)
	InstrumentFor func(symbol string) (string, error)
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RateLimit == 0 {
		c.RateLimit = 1200
	}
	if c.SymbolFor == nil {
		c.SymbolFor = func(canonicalID string) (string, error) { return canonicalID, nil }
	}
	if c.InstrumentFor == nil {
		c.InstrumentFor = func(symbol string) (string, error) { return symbol, nil }
	}
	return c
}
