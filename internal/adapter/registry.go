package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/execorch/execorch/pkg/observability"
)

// Registry is the adapter registry keyed by venue code (§4.2). On Start it
// connects every registered adapter in parallel with bounded concurrency;
// a single bad adapter must not prevent others from serving.
type Registry struct {
	logger   *observability.Logger
	adapters map[string]*Supervisor
	maxConcurrentConnect int
	metrics  *observability.MetricsProvider

	mu sync.RWMutex
}

// NewRegistry creates an empty registry. metrics may be nil.
func NewRegistry(logger *observability.Logger, maxConcurrentConnect int, metrics *observability.MetricsProvider) *Registry {
	if maxConcurrentConnect <= 0 {
		maxConcurrentConnect = 4
	}
	return &Registry{
		logger:               logger,
		adapters:             make(map[string]*Supervisor),
		maxConcurrentConnect: maxConcurrentConnect,
		metrics:              metrics,
	}
}

// Register adds a venue adapter (wrapped in a supervisor) to the registry.
// It must be called before Start.
func (r *Registry) Register(venueCode string, a Adapter, cfg SupervisorConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[venueCode] = NewSupervisor(r.logger, venueCode, a, cfg, r.metrics)
}

// Start connects every registered adapter in parallel, bounded by
// maxConcurrentConnect. Individual connect failures are logged but do not
// fail the whole process: the supervisor's own reconnect loop takes over.
func (r *Registry) Start(ctx context.Context) {
	r.mu.RLock()
	supervisors := make([]*Supervisor, 0, len(r.adapters))
	for _, s := range r.adapters {
		supervisors = append(supervisors, s)
	}
	r.mu.RUnlock()

	sem := make(chan struct{}, r.maxConcurrentConnect)
	var wg sync.WaitGroup
	for _, s := range supervisors {
		s := s
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.Run(ctx)
		}()
	}
	wg.Wait()
}

// Stop shuts down every supervisor, draining in-flight submits up to their
// grace period (§5 "Resource lifetimes").
func (r *Registry) Stop(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var wg sync.WaitGroup
	for _, s := range r.adapters {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Shutdown(ctx)
		}()
	}
	wg.Wait()
}

// Get returns the supervisor fronting venueCode.
func (r *Registry) Get(venueCode string) (*Supervisor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.adapters[venueCode]
	if !ok {
		return nil, fmt.Errorf("adapter: no supervisor registered for venue %q", venueCode)
	}
	return s, nil
}

// Venues lists every registered venue code.
func (r *Registry) Venues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for v := range r.adapters {
		out = append(out, v)
	}
	return out
}

// ReconcileAll triggers an on-demand Supervisor.Reconcile sweep against
// every registered venue, for a scheduled periodic reconciliation pass
// independent of connection churn (§4.7).
func (r *Registry) ReconcileAll(ctx context.Context) {
	r.mu.RLock()
	supervisors := make([]*Supervisor, 0, len(r.adapters))
	for _, s := range r.adapters {
		supervisors = append(supervisors, s)
	}
	r.mu.RUnlock()
	for _, s := range supervisors {
		s.Reconcile(ctx)
	}
}

// HealthSnapshot returns a venue -> Health map for GET /api/health (§6).
func (r *Registry) HealthSnapshot() map[string]Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Health, len(r.adapters))
	for v, s := range r.adapters {
		out[v] = s.adapter.Health()
	}
	return out
}
