package instrument

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadStaticRegistryFileParsesDecimalFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instruments.yaml")
	contents := `
- canonical_id: "BINANCE:SPOT_PAIR:BTC-USDT"
  price_precision: 2
  size_precision: 5
  min_size: "0.0001"
  tick_size: "0.01"
  contract_size: "1"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	reg, err := LoadStaticRegistryFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	md, err := reg.Lookup(context.Background(), "BINANCE:SPOT_PAIR:BTC-USDT")
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	if md.PricePrecision != 2 || md.SizePrecision != 5 {
		t.Errorf("unexpected precision: %+v", md)
	}
	if md.TickSize.String() != "0.01" {
		t.Errorf("expected tick_size 0.01, got %s", md.TickSize)
	}
}

func TestLookupReturnsErrNotFoundForUnknownInstrument(t *testing.T) {
	reg := NewStaticRegistry()
	if _, err := reg.Lookup(context.Background(), "UNKNOWN"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPutOverwritesExistingEntry(t *testing.T) {
	reg := NewStaticRegistry()
	reg.Put(Metadata{CanonicalID: "X", PricePrecision: 1})
	reg.Put(Metadata{CanonicalID: "X", PricePrecision: 2})

	md, err := reg.Lookup(context.Background(), "X")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md.PricePrecision != 2 {
		t.Errorf("expected overwritten precision 2, got %d", md.PricePrecision)
	}
}
