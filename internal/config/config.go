// Package config loads execorch's configuration (§6's configuration
// table) from environment variables, following the teacher's
// getEnv/getIntEnv/... loader idiom, with a viper file overlay so an
// operator can also hand the orchestrator a YAML/JSON config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every configuration value the orchestrator process needs.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Risk          RiskConfig
	Router        RouterConfig
	Adapters      map[string]AdapterConfig
	OMS           OMSConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL                 string
	MaxOpenConns        int
	MaxIdleConns        int
	ConnMaxLifetime     time.Duration
	ConnMaxIdleTime     time.Duration
	QueryTimeout        time.Duration
	EnableQueryCache    bool
	CacheSize           int
	CacheTTL            time.Duration
	ReadReplicaURL      string
	EnableReadReplica   bool
	HealthCheckInterval time.Duration
}

type RedisConfig struct {
	URL                string
	Password           string
	DB                 int
	PoolSize           int
	MinIdleConns       int
	MaxIdleConns       int
	PoolTimeout        time.Duration
	IdleTimeout        time.Duration
	IdleCheckFrequency time.Duration
	MaxRetries         int
	MinRetryBackoff    time.Duration
	MaxRetryBackoff    time.Duration
	EnableMetrics      bool
	MaxMemory          string
	EvictionPolicy     string
	CompressionLevel   int
}

type ObservabilityConfig struct {
	OTLPEndpoint string
	ServiceName  string
	LogLevel     string
	LogFormat    string
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// CORSConfig governs the cross-origin policy applied to the §6 HTTP
// surface (§6 doesn't name a CORS key directly, but cmd/api-gateway's
// middleware.CORS needs an origin list from somewhere ambient).
type CORSConfig struct {
	AllowedOrigins []string
}

// RiskConfig is the §6 `risk.*` configuration block.
type RiskConfig struct {
	Enabled                 bool
	MaxOrdersPerSecond      int
	MaxOrdersPerMinute      int
	MaxPositionPerInstrument map[string]float64
	MaxTotalNotional        float64
	PriceToleranceBps       int
}

// RouterConfig is the §6 `router.*` configuration block.
type RouterConfig struct {
	SmartExecutionEnabled bool
	VenuesEnabled         []string
}

// AdapterConfig is one `adapters.<venue>.*` block (§6): per-adapter
// credentials, endpoints, and rate limits.
type AdapterConfig struct {
	Kind               string // "integrated", "external_sdk", or "defi" (§4.2, §4.8)
	BaseURL            string
	APIKey             string
	APISecret          string
	RateLimitPerSecond float64
	RateBurst          int
}

// OMSConfig is the §6 `oms.*` configuration block.
type OMSConfig struct {
	PollIntervalMS int
}

// Load reads configuration from environment variables, optionally
// overlaid by a config file (YAML/JSON/TOML via viper) named by the
// EXECORCH_CONFIG_FILE environment variable.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EXECORCH")
	v.AutomaticEnv()
	if path := os.Getenv("EXECORCH_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv(v, "PORT", "8080"),
			Host:         getEnv(v, "HOST", "0.0.0.0"),
			ReadTimeout:  getDurationEnv(v, "READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDurationEnv(v, "WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getDurationEnv(v, "IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			URL:                 getEnv(v, "DATABASE_URL", ""),
			MaxOpenConns:        getIntEnv(v, "DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:        getIntEnv(v, "DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime:     getDurationEnv(v, "DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime:     getDurationEnv(v, "DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			QueryTimeout:        getDurationEnv(v, "DB_QUERY_TIMEOUT", 30*time.Second),
			EnableQueryCache:    getBoolEnv(v, "DB_ENABLE_QUERY_CACHE", true),
			CacheSize:           getIntEnv(v, "DB_CACHE_SIZE", 1000),
			CacheTTL:            getDurationEnv(v, "DB_CACHE_TTL", 5*time.Minute),
			ReadReplicaURL:      getEnv(v, "DATABASE_READ_REPLICA_URL", ""),
			EnableReadReplica:   getBoolEnv(v, "DB_ENABLE_READ_REPLICA", false),
			HealthCheckInterval: getDurationEnv(v, "DB_HEALTH_CHECK_INTERVAL", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:                getEnv(v, "REDIS_URL", "redis://localhost:6379"),
			Password:           getEnv(v, "REDIS_PASSWORD", ""),
			DB:                 getIntEnv(v, "REDIS_DB", 0),
			PoolSize:           getIntEnv(v, "REDIS_POOL_SIZE", 20),
			MinIdleConns:       getIntEnv(v, "REDIS_MIN_IDLE_CONNS", 5),
			MaxIdleConns:       getIntEnv(v, "REDIS_MAX_IDLE_CONNS", 10),
			PoolTimeout:        getDurationEnv(v, "REDIS_POOL_TIMEOUT", 4*time.Second),
			IdleTimeout:        getDurationEnv(v, "REDIS_IDLE_TIMEOUT", 5*time.Minute),
			IdleCheckFrequency: getDurationEnv(v, "REDIS_IDLE_CHECK_FREQUENCY", 1*time.Minute),
			MaxRetries:         getIntEnv(v, "REDIS_MAX_RETRIES", 3),
			MinRetryBackoff:    getDurationEnv(v, "REDIS_MIN_RETRY_BACKOFF", 8*time.Millisecond),
			MaxRetryBackoff:    getDurationEnv(v, "REDIS_MAX_RETRY_BACKOFF", 512*time.Millisecond),
			EnableMetrics:      getBoolEnv(v, "REDIS_ENABLE_METRICS", true),
			MaxMemory:          getEnv(v, "REDIS_MAX_MEMORY", "256mb"),
			EvictionPolicy:     getEnv(v, "REDIS_EVICTION_POLICY", "allkeys-lru"),
			CompressionLevel:   getIntEnv(v, "REDIS_COMPRESSION_LEVEL", 6),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint: getEnv(v, "OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName:  getEnv(v, "OTEL_SERVICE_NAME", "execorch"),
			LogLevel:     getEnv(v, "LOG_LEVEL", "info"),
			LogFormat:    getEnv(v, "LOG_FORMAT", "json"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getIntEnv(v, "RATE_LIMIT_REQUESTS_PER_MINUTE", 100),
			Burst:             getIntEnv(v, "RATE_LIMIT_BURST", 20),
		},
		CORS: CORSConfig{
			AllowedOrigins: getSliceEnv(v, "CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Risk: RiskConfig{
			Enabled:            getBoolEnv(v, "RISK_ENABLED", true),
			MaxOrdersPerSecond: getIntEnv(v, "RISK_MAX_ORDERS_PER_SECOND", 10),
			MaxOrdersPerMinute: getIntEnv(v, "RISK_MAX_ORDERS_PER_MINUTE", 300),
			MaxTotalNotional:   getFloatEnv(v, "RISK_MAX_TOTAL_NOTIONAL", 1_000_000),
			PriceToleranceBps:  getIntEnv(v, "RISK_PRICE_TOLERANCE_BPS", 50),
		},
		Router: RouterConfig{
			SmartExecutionEnabled: getBoolEnv(v, "ROUTER_SMART_EXECUTION_ENABLED", true),
			VenuesEnabled:         getSliceEnv(v, "ROUTER_VENUES_ENABLED", nil),
		},
		Adapters: loadAdapterConfigs(v),
		OMS: OMSConfig{
			PollIntervalMS: getIntEnv(v, "OMS_POLL_INTERVAL_MS", 2000),
		},
	}

	cfg.Risk.MaxPositionPerInstrument = loadFloatMapEnv(v, "RISK_MAX_POSITION_PER_INSTRUMENT")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// loadAdapterConfigs reads adapters.<venue>.* from the overlay file, since
// a per-venue credential map has no sane environment-variable shape.
func loadAdapterConfigs(v *viper.Viper) map[string]AdapterConfig {
	out := make(map[string]AdapterConfig)
	raw := v.GetStringMap("adapters")
	for venue := range raw {
		prefix := "adapters." + venue + "."
		out[strings.ToUpper(venue)] = AdapterConfig{
			Kind:               v.GetString(prefix + "kind"),
			BaseURL:            v.GetString(prefix + "base_url"),
			APIKey:             v.GetString(prefix + "api_key"),
			APISecret:          v.GetString(prefix + "api_secret"),
			RateLimitPerSecond: v.GetFloat64(prefix + "rate_limit_per_second"),
			RateBurst:          v.GetInt(prefix + "rate_burst"),
		}
	}
	return out
}

// loadFloatMapEnv reads a comma-separated KEY=VALUE list from the
// overlay file or environment, for risk.max_position_per_instrument's
// per-instrument cap map.
func loadFloatMapEnv(v *viper.Viper, key string) map[string]float64 {
	raw := os.Getenv(key)
	if raw == "" {
		raw = v.GetString(key)
	}
	if raw == "" {
		return nil
	}
	out := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(kv[0])] = f
	}
	return out
}

// Helper functions for environment variable parsing, env-first and
// falling back to any viper-loaded config file value.
func getEnv(v *viper.Viper, key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value := v.GetString(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(v *viper.Viper, key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	if v.IsSet(key) {
		return v.GetInt(key)
	}
	return defaultValue
}

func getBoolEnv(v *viper.Viper, key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return defaultValue
}

func getFloatEnv(v *viper.Viper, key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	if v.IsSet(key) {
		return v.GetFloat64(key)
	}
	return defaultValue
}

func getDurationEnv(v *viper.Viper, key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	if v.IsSet(key) {
		return v.GetDuration(key)
	}
	return defaultValue
}

func getSliceEnv(v *viper.Viper, key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	if v.IsSet(key) {
		if s := v.GetStringSlice(key); len(s) > 0 {
			return s
		}
	}
	return defaultValue
}
