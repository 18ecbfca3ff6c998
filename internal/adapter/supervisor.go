package adapter

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/execorch/execorch/internal/orcherr"
	"github.com/execorch/execorch/pkg/observability"
	"golang.org/x/time/rate"
)

// ErrShutdown is the deterministic error an in-flight Submit receives when
// the supervisor is shutting down (§4.2 "Cancellation of an outstanding
// submit on supervisor shutdown must propagate a deterministic SHUTDOWN
// error").
var ErrShutdown = errors.New("adapter: supervisor shutdown")

// SupervisorConfig tunes the reconnect/circuit-breaker/rate-limit/deadline
// behavior of a single adapter supervisor (§4.2, §5).
type SupervisorConfig struct {
	BackoffBase time.Duration // default 1s
	BackoffCap  time.Duration // default 60s

	CircuitThreshold int           // consecutive transport failures before tripping
	CircuitCooldown  time.Duration

	SubmitTimeout   time.Duration // default 5s
	CancelTimeout   time.Duration // default 5s
	SnapshotTimeout time.Duration // default 30s

	ShutdownGrace time.Duration // drain period before cancelling in-flight submits

	RateLimitPerSecond float64 // token bucket refill rate
	RateBurst          int     // token bucket burst
	QueueDepth         int     // bounded FIFO length before VENUE_BACKPRESSURE
}

func (c SupervisorConfig) withDefaults() SupervisorConfig {
	if c.BackoffBase == 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = 60 * time.Second
	}
	if c.CircuitThreshold == 0 {
		c.CircuitThreshold = 5
	}
	if c.CircuitCooldown == 0 {
		c.CircuitCooldown = 30 * time.Second
	}
	if c.SubmitTimeout == 0 {
		c.SubmitTimeout = 5 * time.Second
	}
	if c.CancelTimeout == 0 {
		c.CancelTimeout = 5 * time.Second
	}
	if c.SnapshotTimeout == 0 {
		c.SnapshotTimeout = 30 * time.Second
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = 5 * time.Second
	}
	if c.RateLimitPerSecond == 0 {
		c.RateLimitPerSecond = 20
	}
	if c.RateBurst == 0 {
		c.RateBurst = 20
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = 256
	}
	return c
}

// ReconcileFunc is invoked with a freshly reconnected adapter's open orders
// and position snapshots (§4.7 "Reconciliation on reconnect").
// cmd/orchestrator registers the position tracker's Reconcile here (the OMS
// registers none); the supervisor itself never mutates order or position
// state.
type ReconcileFunc func(ctx context.Context, venueCode string, orders []OrderSnapshot, positions []PositionSnapshot)

// Supervisor owns one adapter's connection lifecycle: exponential backoff
// reconnect, circuit breaker, per-call deadlines, a token-bucket rate
// governor with a bounded FIFO queue, and reconciliation on reconnect.
type Supervisor struct {
	logger    *observability.Logger
	venueCode string
	adapter   Adapter
	cfg       SupervisorConfig
	metrics   *observability.MetricsProvider

	breaker *CircuitBreaker
	limiter *rate.Limiter

	reconcile ReconcileFunc

	mu         sync.Mutex
	connected  bool
	shutdownCh chan struct{}
	shutOnce   sync.Once
	inFlight   sync.WaitGroup
	queueSem   chan struct{}
}

// NewSupervisor wraps a.
func NewSupervisor(logger *observability.Logger, venueCode string, a Adapter, cfg SupervisorConfig, metrics *observability.MetricsProvider) *Supervisor {
	cfg = cfg.withDefaults()
	return &Supervisor{
		logger:     logger,
		venueCode:  venueCode,
		adapter:    a,
		cfg:        cfg,
		metrics:    metrics,
		breaker:    NewCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitCooldown),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateBurst),
		shutdownCh: make(chan struct{}),
		queueSem:   make(chan struct{}, cfg.QueueDepth),
	}
}

// SetReconcileFunc registers the reconciliation callback invoked after every
// successful reconnect.
func (s *Supervisor) SetReconcileFunc(f ReconcileFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconcile = f
}

// Adapter exposes the underlying adapter for callers (e.g. event
// subscription) that need it directly.
func (s *Supervisor) Adapter() Adapter { return s.adapter }

// Run drives the connect/reconnect loop with exponential backoff until ctx
// is cancelled or Shutdown is called.
func (s *Supervisor) Run(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		default:
		}

		if !s.breaker.Allow() {
			s.sleep(ctx, s.backoffFor(attempt))
			continue
		}

		connectCtx, cancel := context.WithTimeout(ctx, s.cfg.SnapshotTimeout)
		err := s.adapter.Connect(connectCtx)
		cancel()
		if err != nil {
			s.breaker.RecordFailure()
			s.logger.Warn(ctx, "adapter connect failed, backing off", map[string]interface{}{
				"venue": s.venueCode, "attempt": attempt, "error": err.Error(),
			})
			attempt++
			s.sleep(ctx, s.backoffFor(attempt))
			continue
		}

		s.breaker.RecordSuccess()
		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		attempt = 0

		s.logger.Info(ctx, "adapter connected", map[string]interface{}{"venue": s.venueCode})
		s.runReconciliation(ctx)

		// Block here until the connection drops or we are told to stop;
		// SubscribeEvents blocks for the life of the connection in real
		// adapters, so treat its return as a disconnect signal.
		events := make(chan Event, 256)
		subErr := s.adapter.SubscribeEvents(ctx, events)

		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()

		if subErr != nil && ctx.Err() == nil {
			s.logger.Warn(ctx, "adapter event stream ended, reconnecting", map[string]interface{}{
				"venue": s.venueCode, "error": subErr.Error(),
			})
			s.breaker.RecordFailure()
		}

		select {
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		default:
		}
	}
}

// Reconcile runs an on-demand reconciliation sweep against this venue, the
// same snapshot-and-diff path Run triggers on every reconnect (§4.7), for
// callers that want periodic reconciliation independent of connection
// churn. It is a no-op while the adapter is disconnected.
func (s *Supervisor) Reconcile(ctx context.Context) {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected {
		return
	}
	s.runReconciliation(ctx)
}

func (s *Supervisor) runReconciliation(ctx context.Context) {
	s.mu.Lock()
	reconcile := s.reconcile
	s.mu.Unlock()
	if reconcile == nil {
		return
	}

	snapCtx, cancel := context.WithTimeout(ctx, s.cfg.SnapshotTimeout)
	defer cancel()

	orders, err := s.adapter.OpenOrders(snapCtx)
	if err != nil {
		s.logger.Error(ctx, "reconciliation: open orders snapshot failed", err, map[string]interface{}{"venue": s.venueCode})
		return
	}
	positions, err := s.adapter.Positions(snapCtx)
	if err != nil {
		s.logger.Error(ctx, "reconciliation: positions snapshot failed", err, map[string]interface{}{"venue": s.venueCode})
		return
	}
	reconcile(ctx, s.venueCode, orders, positions)
}

func (s *Supervisor) backoffFor(attempt int) time.Duration {
	d := s.cfg.BackoffBase * time.Duration(1<<uint(min(attempt, 10)))
	if d > s.cfg.BackoffCap || d <= 0 {
		d = s.cfg.BackoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4 + 1))
	return d + jitter
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-s.shutdownCh:
	case <-time.After(d):
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Submit enforces the submit deadline, the rate governor, and the deterministic
// shutdown error, then delegates to the underlying adapter.
func (s *Supervisor) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	s.metrics.RecordAdapterSend(ctx, s.venueCode)

	select {
	case <-s.shutdownCh:
		return SubmitResult{}, ErrShutdown
	default:
	}

	select {
	case s.queueSem <- struct{}{}:
		defer func() { <-s.queueSem }()
	default:
		return SubmitResult{}, orcherr.New(orcherr.KindVenueUnreachable, "VENUE_BACKPRESSURE")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return SubmitResult{}, orcherr.Wrap(orcherr.KindTimeout, "rate limiter wait", err)
	}

	s.inFlight.Add(1)
	defer s.inFlight.Done()

	submitCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()

	resChan := make(chan struct {
		res SubmitResult
		err error
	}, 1)
	go func() {
		res, err := s.adapter.Submit(submitCtx, req)
		resChan <- struct {
			res SubmitResult
			err error
		}{res, err}
	}()

	select {
	case <-s.shutdownCh:
		// Shutdown has begun: the call already in flight gets up to
		// ShutdownGrace to finish; past that, returning cancels submitCtx.
		select {
		case out := <-resChan:
			return out.res, out.err
		case <-submitCtx.Done():
		case <-time.After(s.cfg.ShutdownGrace):
		}
		return SubmitResult{}, ErrShutdown
	case <-submitCtx.Done():
		s.breaker.RecordFailure()
		return SubmitResult{}, orcherr.New(orcherr.KindTimeout, "submit deadline exceeded")
	case out := <-resChan:
		if out.err != nil {
			s.breaker.RecordFailure()
		} else {
			s.breaker.RecordSuccess()
		}
		return out.res, out.err
	}
}

// Cancel enforces the cancel deadline then delegates to the underlying adapter.
func (s *Supervisor) Cancel(ctx context.Context, venueOrderID string) (CancelResult, error) {
	cancelCtx, cancel := context.WithTimeout(ctx, s.cfg.CancelTimeout)
	defer cancel()
	res, err := s.adapter.Cancel(cancelCtx, venueOrderID)
	if err != nil {
		return CancelResult{}, orcherr.Wrap(orcherr.KindVenueUnreachable, "cancel failed", err)
	}
	return res, nil
}

// Connected reports current connection state for health reporting.
func (s *Supervisor) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// CircuitState exposes the breaker state for health reporting.
func (s *Supervisor) CircuitState() CircuitState { return s.breaker.State() }

// Shutdown drains in-flight submits up to the configured grace period, then
// disconnects.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.shutOnce.Do(func() { close(s.shutdownCh) })

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGrace):
	}

	discCtx, cancel := context.WithTimeout(ctx, s.cfg.CancelTimeout)
	defer cancel()
	if err := s.adapter.Disconnect(discCtx); err != nil {
		s.logger.Warn(ctx, "adapter disconnect returned error during shutdown", map[string]interface{}{
			"venue": s.venueCode, "error": err.Error(),
		})
	}
}
