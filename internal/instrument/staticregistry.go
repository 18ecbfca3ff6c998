package instrument

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// StaticRegistry is a file-backed Registry: a concrete, minimal stand-in
// for the external instrument-metadata collaborator the core only
// requires a read interface from (§4.1, §6). Production deployments are
// expected to front a real exchange-info service or database table
// instead; this one exists so the orchestrator process has something
// concrete to wire Lookup against out of the box.
type StaticRegistry struct {
	mu  sync.RWMutex
	byID map[string]Metadata
}

// staticEntry is the YAML row shape; decimal fields travel as strings so
// the file format matches the wire format used everywhere else.
type staticEntry struct {
	CanonicalID    string `yaml:"canonical_id"`
	PricePrecision int32  `yaml:"price_precision"`
	SizePrecision  int32  `yaml:"size_precision"`
	MinSize        string `yaml:"min_size"`
	TickSize       string `yaml:"tick_size"`
	ContractSize   string `yaml:"contract_size"`
	Inverse        bool   `yaml:"inverse"`
}

// NewStaticRegistry constructs an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{byID: make(map[string]Metadata)}
}

// LoadStaticRegistryFile reads a YAML instrument list from path (see
// staticEntry for the row shape) into a new StaticRegistry.
func LoadStaticRegistryFile(path string) (*StaticRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("instrument: reading %s: %w", path, err)
	}

	var entries []staticEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("instrument: parsing %s: %w", path, err)
	}

	r := NewStaticRegistry()
	for _, e := range entries {
		md := Metadata{
			CanonicalID:    e.CanonicalID,
			PricePrecision: e.PricePrecision,
			SizePrecision:  e.SizePrecision,
			Inverse:        e.Inverse,
		}
		if md.MinSize, err = decimalOrZero(e.MinSize); err != nil {
			return nil, fmt.Errorf("instrument: %s: min_size: %w", e.CanonicalID, err)
		}
		if md.TickSize, err = decimalOrZero(e.TickSize); err != nil {
			return nil, fmt.Errorf("instrument: %s: tick_size: %w", e.CanonicalID, err)
		}
		if md.ContractSize, err = decimalOrZero(e.ContractSize); err != nil {
			return nil, fmt.Errorf("instrument: %s: contract_size: %w", e.CanonicalID, err)
		}
		r.byID[e.CanonicalID] = md
	}
	return r, nil
}

func decimalOrZero(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// Put registers or replaces md, keyed by its own CanonicalID.
func (r *StaticRegistry) Put(md Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[md.CanonicalID] = md
}

// Lookup implements Registry.
func (r *StaticRegistry) Lookup(ctx context.Context, canonicalID string) (Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	md, ok := r.byID[canonicalID]
	if !ok {
		return Metadata{}, ErrNotFound
	}
	return md, nil
}
