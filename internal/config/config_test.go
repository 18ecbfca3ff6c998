package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadFailsWithoutDatabaseURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	if _, err := Load(); err == nil {
		t.Fatal("expected Load to fail when DATABASE_URL is unset")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/execorch")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Risk.MaxOrdersPerSecond != 10 {
		t.Errorf("expected default RISK_MAX_ORDERS_PER_SECOND 10, got %d", cfg.Risk.MaxOrdersPerSecond)
	}
	if !cfg.Router.SmartExecutionEnabled {
		t.Error("expected router.smart_execution_enabled to default true")
	}
	if cfg.OMS.PollIntervalMS != 2000 {
		t.Errorf("expected default oms.poll_interval_ms 2000, got %d", cfg.OMS.PollIntervalMS)
	}
}

func TestLoadReadsOverridesFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/execorch")
	t.Setenv("RISK_MAX_ORDERS_PER_SECOND", "50")
	t.Setenv("RISK_ENABLED", "false")
	t.Setenv("READ_TIMEOUT", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Risk.MaxOrdersPerSecond != 50 {
		t.Errorf("expected RISK_MAX_ORDERS_PER_SECOND override to take effect, got %d", cfg.Risk.MaxOrdersPerSecond)
	}
	if cfg.Risk.Enabled {
		t.Error("expected RISK_ENABLED=false to disable the risk engine")
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("expected READ_TIMEOUT override, got %v", cfg.Server.ReadTimeout)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[0] != "https://a.example" {
		t.Errorf("expected CORS_ALLOWED_ORIGINS to split on commas, got %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoadParsesMaxPositionPerInstrumentMap(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/execorch")
	t.Setenv("RISK_MAX_POSITION_PER_INSTRUMENT", "BTC-USDT=5, ETH-USDT=50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Risk.MaxPositionPerInstrument["BTC-USDT"] != 5 {
		t.Errorf("expected BTC-USDT cap 5, got %v", cfg.Risk.MaxPositionPerInstrument["BTC-USDT"])
	}
	if cfg.Risk.MaxPositionPerInstrument["ETH-USDT"] != 50 {
		t.Errorf("expected ETH-USDT cap 50, got %v", cfg.Risk.MaxPositionPerInstrument["ETH-USDT"])
	}
}
