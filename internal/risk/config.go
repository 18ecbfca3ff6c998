package risk

import (
	"time"

	"github.com/execorch/execorch/internal/order"
	"github.com/shopspring/decimal"
)

// Config tunes every pre-trade check (§4.4). A check whose corresponding
// Enable flag is false is a no-op, per "a check disabled by config is a
// no-op".
type Config struct {
	Timeout time.Duration // hard budget for the whole Check call; default 50ms

	EnableShape bool

	EnableVelocity   bool
	VelocityWindow1s int // max orders per strategy_id in the trailing second
	VelocityWindow1m int // max orders per strategy_id in the trailing minute

	EnableInstrumentCap  bool
	InstrumentNotionalCap map[string]decimal.Decimal // canonical_id -> cap

	EnableTotalNotionalCap bool
	TotalNotionalCap       decimal.Decimal
	MarkPriceMaxAge        time.Duration // how long the tracker's mark stays usable before the entry price is used instead

	EnablePriceTolerance bool
	PriceTolerancePct    decimal.Decimal // e.g. 0.05 for +/-5%

	EnableOperationWhitelist   bool
	StrategyOperationWhitelist map[string]map[order.Operation]bool
}

// WithDefaults fills the zero-value gaps the same way SupervisorConfig does:
// an unset numeric field takes the spec's documented default, an unset bool
// stays false (every check defaults to disabled until configured on).
func (c Config) WithDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = 50 * time.Millisecond
	}
	if c.VelocityWindow1s == 0 {
		c.VelocityWindow1s = 5
	}
	if c.VelocityWindow1m == 0 {
		c.VelocityWindow1m = 60
	}
	if c.MarkPriceMaxAge == 0 {
		c.MarkPriceMaxAge = 5 * time.Second
	}
	if c.PriceTolerancePct.IsZero() {
		c.PriceTolerancePct = decimal.NewFromFloat(0.05)
	}
	return c
}
