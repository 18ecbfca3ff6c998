// Command orchestrator boots the execution orchestrator process: it wires
// every collaborator by hand, with no package-level singleton (§9) --
// Postgres/Redis connections, the instrument registry, OMS, position
// tracker, risk engine, smart router, adapter registry (with the venues
// this deployment enables), atomic-group coordinator, execution-algorithm
// registry, and finally the HTTP server -- then serves until SIGINT/
// SIGTERM, draining in-flight work before exit.
//
// Grounded on cmd/api-gateway/main.go's bootstrap idiom: config.Load,
// observability init, Postgres/Redis connect, http.Server with graceful
// shutdown via context.WithTimeout(30s) on SIGINT/SIGTERM.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/execorch/execorch/internal/adapter"
	"github.com/execorch/execorch/internal/adapter/defi"
	"github.com/execorch/execorch/internal/adapter/deribit"
	"github.com/execorch/execorch/internal/adapter/integrated"
	"github.com/execorch/execorch/internal/api"
	"github.com/execorch/execorch/internal/atomic"
	"github.com/execorch/execorch/internal/config"
	"github.com/execorch/execorch/internal/execalgo"
	"github.com/execorch/execorch/internal/instrument"
	"github.com/execorch/execorch/internal/oms"
	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/internal/orchestrator"
	"github.com/execorch/execorch/internal/position"
	"github.com/execorch/execorch/internal/risk"
	"github.com/execorch/execorch/internal/router"
	"github.com/execorch/execorch/internal/schedule"
	"github.com/execorch/execorch/pkg/database"
	"github.com/execorch/execorch/pkg/middleware"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	obsConfig := observability.GetDefaultSimpleConfig()
	obsConfig.ServiceName = "execorch"
	obsConfig.LogLevel = cfg.Observability.LogLevel
	obsConfig.LogFormat = cfg.Observability.LogFormat
	obsProvider, err := observability.NewSimpleObservabilityProvider(obsConfig)
	if err != nil {
		log.Fatalf("Failed to initialize observability: %v", err)
	}
	logger := obsProvider.Logger

	tracingProvider, err := observability.NewTracingProvider(context.Background(), cfg.Observability)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn(context.Background(), "tracing provider shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	db, err := database.NewPostgresDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(context.Background(), oms.Schema); err != nil {
		log.Fatalf("Failed to apply order-store schema: %v", err)
	}

	cache, err := database.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer cache.Close()

	instruments := instrument.NewStaticRegistry()
	if path := os.Getenv("EXECORCH_INSTRUMENTS_FILE"); path != "" {
		loaded, err := instrument.LoadStaticRegistryFile(path)
		if err != nil {
			log.Fatalf("Failed to load instrument registry: %v", err)
		}
		instruments = loaded
	}

	metrics, err := observability.NewMetricsProvider(observability.MetricsConfig{
		ServiceName: "execorch", Namespace: "execorch", Enabled: true,
	})
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}
	go func() {
		if err := metrics.StartMetricsServer(9090); err != nil && err != http.ErrServerClosed {
			logger.Error(context.Background(), "metrics server stopped", err, nil)
		}
	}()

	orders := oms.New(logger, db, cache, metrics)
	positions := position.New(logger)

	riskEngine := risk.New(logger, riskConfigFrom(cfg.Risk), orders, positions, instruments, metrics)

	smartRouter := router.New(logger, router.Config{
		EnableSplitPlans: cfg.Router.SmartExecutionEnabled,
	}, nil)

	adapters := adapter.NewRegistry(logger, 4, metrics)
	registerAdapters(adapters, cfg, logger)
	for _, venue := range adapters.Venues() {
		if s, err := adapters.Get(venue); err == nil {
			s.SetReconcileFunc(positions.Reconcile)
		}
	}

	atomicGroup := atomic.New(logger, func(ctx context.Context, groupID string, members []*order.Order, result atomic.BundleResult, bundleErr error) {
		for _, m := range members {
			reason := result.RejectReason
			if bundleErr != nil {
				reason = bundleErr.Error()
			}
			if err := orders.ResolveAtomicMember(ctx, m.OperationID, result.Success, reason); err != nil {
				logger.Error(ctx, "orchestrator: failed to resolve atomic group member", err, map[string]interface{}{
					"operation_id": m.OperationID, "atomic_group_id": groupID,
				})
			}
		}
	})

	execAlgos := execalgo.NewRegistry()
	execAlgos.Register(execalgo.TWAP{SliceCount: 4, Window: 5 * time.Minute})
	execAlgos.Register(execalgo.Iceberg{ClipSize: decimal.NewFromInt(1), ClipInterval: 30 * time.Second})
	execAlgos.Register(execalgo.VWAP{SliceCount: 6, Window: 30 * time.Minute})

	orch := orchestrator.New(logger, orchestrator.Config{}, instruments, orders, positions, riskEngine, smartRouter, adapters, atomicGroup, execAlgos)

	handlers := api.New(orch, orders, positions, adapters, logger)
	mux := http.NewServeMux()
	handlers.Routes(mux)

	healthChecker := observability.NewHealthChecker(logger)
	healthChecker.RegisterCheck("postgres", observability.DatabaseHealthCheck(db.PingContext))
	healthChecker.RegisterCheck("redis", observability.RedisHealthCheck(func(ctx context.Context) error {
		return cache.Ping(ctx).Err()
	}))
	environment := os.Getenv("EXECORCH_ENVIRONMENT")
	if environment == "" {
		environment = "production"
	}
	healthServer := observability.NewHealthServer(healthChecker, observability.ServiceInfo{
		Name: "execorch", Environment: environment,
	}, logger)
	healthServer.RegisterRoutes(mux)

	handler := middleware.Recovery(logger)(
		middleware.Logging(logger)(
			middleware.Tracing("execorch")(
				middleware.Metrics(metrics)(
					middleware.CORS(cfg.CORS.AllowedOrigins)(
						middleware.RateLimit(cfg.RateLimit)(mux),
					),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	bootCtx, bootCancel := context.WithCancel(context.Background())
	adapters.Start(bootCtx)
	defer bootCancel()

	scheduler := schedule.New(zerolog.New(os.Stderr).With().Timestamp().Logger())
	reconcileEvery := time.Duration(cfg.OMS.PollIntervalMS) * time.Millisecond
	if err := scheduler.AddJob("@every "+reconcileEvery.String(), schedule.ReconcileJob{Registry: adapters}); err != nil {
		log.Fatalf("Failed to register reconciliation job: %v", err)
	}
	scheduler.Start()

	go func() {
		logger.Info(context.Background(), "Starting execution orchestrator", map[string]interface{}{
			"addr": server.Addr,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(context.Background(), "Shutting down execution orchestrator...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	scheduler.Stop(shutdownCtx)
	adapters.Stop(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		logger.Warn(context.Background(), "metrics provider shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	logger.Info(context.Background(), "Execution orchestrator stopped")
}

// riskConfigFrom translates the §6 flat risk.* keys into risk.Config,
// enabling every check the config turns on.
func riskConfigFrom(c config.RiskConfig) risk.Config {
	cfg := risk.Config{
		EnableShape:            c.Enabled,
		EnableVelocity:         c.Enabled,
		VelocityWindow1s:       c.MaxOrdersPerSecond,
		VelocityWindow1m:       c.MaxOrdersPerMinute,
		EnableTotalNotionalCap: c.Enabled && c.MaxTotalNotional > 0,
		TotalNotionalCap:       decimal.NewFromFloat(c.MaxTotalNotional),
		EnablePriceTolerance:   c.Enabled && c.PriceToleranceBps > 0,
		PriceTolerancePct:      decimal.NewFromInt(int64(c.PriceToleranceBps)).Div(decimal.NewFromInt(10000)),
	}
	if len(c.MaxPositionPerInstrument) > 0 {
		cfg.EnableInstrumentCap = c.Enabled
		cfg.InstrumentNotionalCap = make(map[string]decimal.Decimal, len(c.MaxPositionPerInstrument))
		for id, cap := range c.MaxPositionPerInstrument {
			cfg.InstrumentNotionalCap[id] = decimal.NewFromFloat(cap)
		}
	}
	return cfg
}

// registerAdapters wires one adapter per configured venue: integrated
// venues dispatch through the push-based multi-venue driver, external-SDK
// venues through a bespoke REST client, and defi venues broadcast
// pre-signed transactions over an RPC endpoint (§4.2, §2, §4.8). Deribit is
// the one external-SDK client this tree ships; additional venues register
// the same way once their clients exist.
func registerAdapters(registry *adapter.Registry, cfg *config.Config, logger *observability.Logger) {
	for venueCode, a := range cfg.Adapters {
		supervisorCfg := adapter.SupervisorConfig{
			RateLimitPerSecond: a.RateLimitPerSecond,
			RateBurst:          a.RateBurst,
		}

		switch a.Kind {
		case "external_sdk":
			if venueCode != "DERIBIT" {
				logger.Warn(context.Background(), "orchestrator: no external-SDK client available for venue", map[string]interface{}{
					"venue": venueCode,
				})
				continue
			}
			client := deribit.New(logger, deribit.Config{
				VenueCode:    venueCode,
				BaseURL:      a.BaseURL,
				ClientID:     a.APIKey,
				ClientSecret: a.APISecret,
			})
			registry.Register(venueCode, client, supervisorCfg)
		case "defi":
			client := defi.New(logger, defi.Config{
				VenueCode:     venueCode,
				RPCURL:        a.BaseURL,
				HolderAddress: a.APIKey,
			})
			registry.Register(venueCode, client, supervisorCfg)
		default:
			driver := integrated.New(logger, integrated.Config{
				VenueCode: venueCode,
				BaseURL:   a.BaseURL,
				APIKey:    a.APIKey,
				SecretKey: a.APISecret,
			}, order.VenueKindIntegrated)
			registry.Register(venueCode, driver, supervisorCfg)
		}
	}
}
