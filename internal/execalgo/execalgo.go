// Package execalgo defines the execution-algorithm plug-in contract that
// sits downstream of the smart router (§4.5 last paragraph): TWAP, VWAP,
// and Iceberg rewrite a routed order into a lazy sequence of timed child
// submissions instead of one immediate submit. The router chooses the
// venue; an Algorithm chooses the slice schedule.
//
// Grounded on the shape of internal/trading/algorithm_manager.go's
// AlgorithmManager (a small registry callers look algorithms up in by
// name), generalized from that manager's strategy-lifecycle bookkeeping
// to the narrower (order, venue, now) -> schedule contract the spec
// names explicitly.
package execalgo

import (
	"time"

	"github.com/execorch/execorch/internal/order"
	"github.com/shopspring/decimal"
)

// Slice is one scheduled child submission: Quantity of the parent order,
// to be submitted at or after At.
type Slice struct {
	At       time.Time
	Quantity decimal.Decimal
}

// Algorithm produces the slice schedule for a routed order. Implementations
// must be pure functions of their inputs: the orchestrator calls Slices
// once at routing time and owns scheduling the returned slices itself, so
// an Algorithm must not assume it will be invoked again as time passes.
type Algorithm interface {
	// Name identifies the algorithm, matching order.ExecAlgorithm values
	// ("TWAP", "VWAP", "ICEBERG").
	Name() order.ExecAlgorithm

	// Slices produces the child-order schedule for o on venue, anchored at
	// now. The returned slices' quantities must sum to o.Quantity exactly;
	// callers may assume the slice with the earliest At is first.
	Slices(o *order.Order, venue string, now time.Time) ([]Slice, error)
}

// Registry looks algorithms up by name for the router/orchestrator.
type Registry struct {
	algorithms map[order.ExecAlgorithm]Algorithm
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{algorithms: make(map[order.ExecAlgorithm]Algorithm)}
}

// Register adds or replaces the Algorithm for its own Name().
func (r *Registry) Register(a Algorithm) {
	r.algorithms[a.Name()] = a
}

// Lookup returns the Algorithm registered for name, or false if none is.
func (r *Registry) Lookup(name order.ExecAlgorithm) (Algorithm, bool) {
	a, ok := r.algorithms[name]
	return a, ok
}
