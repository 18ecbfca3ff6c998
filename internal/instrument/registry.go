package instrument

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by Registry.Lookup when the canonical id is unknown.
var ErrNotFound = errors.New("instrument: not found in registry")

// Metadata carries the precision rules the core needs to validate and
// represent orders against a given instrument. The registry that produces
// it is an external collaborator (§4.1); this is a read-only contract.
type Metadata struct {
	CanonicalID    string
	PricePrecision int32
	SizePrecision  int32
	MinSize        decimal.Decimal
	TickSize       decimal.Decimal
	ContractSize   decimal.Decimal
	Inverse        bool
}

// Registry is the read interface the core requires from an instrument
// metadata provider. Implementations may be backed by a config file, a
// database table, or a venue's exchange-info endpoint; none of that is
// specified here.
type Registry interface {
	Lookup(ctx context.Context, canonicalID string) (Metadata, error)
}
