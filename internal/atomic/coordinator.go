// Package atomic implements the DeFi atomic-group coordinator (§4.8): when
// an order carries an atomic_group_id, the orchestrator holds it until
// every declared member of the group has arrived, then submits the whole
// group to the target adapter as one on-chain bundle. Partial success is
// impossible — the group fills together or every member is rejected
// together.
//
// Grounded on the mutex-protected per-key state pattern in
// internal/adapter/circuit_breaker.go, generalized from a single breaker
// state machine to a map of held groups keyed by AtomicGroupID.
package atomic

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/pkg/observability"
)

// bundleSubmitTimeout bounds the detached background submission below, since
// it no longer inherits a caller-supplied deadline. It allows enough headroom
// beyond internal/adapter/defi's own 2-minute receipt wait for the bundle
// transaction to land and confirm.
const bundleSubmitTimeout = 3 * time.Minute

// BundleRequest is one member of a group submission, in sequence order.
type BundleRequest struct {
	OperationID string
	CanonicalID string
	Operation   order.Operation
	Side        order.Side
	Quantity    string
}

// BundleResult is the adapter's all-or-nothing verdict for a submitted
// group (§4.8 "the group is FILLED together or all orders are REJECTED
// together").
type BundleResult struct {
	Success      bool
	VenueTxHash  string
	RejectReason string
}

// Bundler is the capability a venue adapter exposes to submit an atomic
// group as a single on-chain transaction. Not every Adapter implements
// this; only DeFi-capable adapters need to (§4.8, SPEC_FULL DeFi adapter
// dependency on go-ethereum's bundle/transaction types).
type Bundler interface {
	SubmitBundle(ctx context.Context, venue string, reqs []BundleRequest) (BundleResult, error)
}

// GroupCompleteFunc is invoked once a group is fully submitted, with the
// adapter's verdict and every member in sequence order, so the caller (the
// orchestrator) can persist FILLED/REJECTED across the whole group.
type GroupCompleteFunc func(ctx context.Context, groupID string, members []*order.Order, result BundleResult, bundleErr error)

type heldGroup struct {
	venue       string
	expected    int
	membersBySeq map[int]*order.Order
}

// Coordinator holds atomic-group members until complete, then submits the
// group as one bundle via the venue's Bundler.
type Coordinator struct {
	logger *observability.Logger

	mu     sync.Mutex
	groups map[string]*heldGroup

	onComplete GroupCompleteFunc
}

// New constructs a Coordinator. onComplete is called (on its own goroutine,
// one per completed group) once a held group's bundle submission returns.
func New(logger *observability.Logger, onComplete GroupCompleteFunc) *Coordinator {
	return &Coordinator{
		logger:     logger,
		groups:     make(map[string]*heldGroup),
		onComplete: onComplete,
	}
}

// Hold enqueues o as a member of its atomic group (§4.9 step 5). Once every
// declared member (per o.AtomicGroupSize) has arrived, it starts the bundle
// submission on its own goroutine, and the GroupCompleteFunc callback
// follows when that submission finishes; Hold itself never blocks on I/O.
//
// o.Operation must satisfy IsAtomicGroupEligible and o.AtomicGroupSize must
// be positive and consistent across every member sharing o.AtomicGroupID;
// a mismatch is reported as an error rather than silently dropped.
func (c *Coordinator) Hold(ctx context.Context, bundler Bundler, o *order.Order) error {
	if o.AtomicGroupID == "" {
		return fmt.Errorf("atomic: order %s has no atomic_group_id", o.OperationID)
	}
	if !o.Operation.IsAtomicGroupEligible() {
		return fmt.Errorf("atomic: operation %q is not atomic-group eligible", o.Operation)
	}
	if o.AtomicGroupSize <= 0 {
		return fmt.Errorf("atomic: order %s declares a non-positive atomic_group_size", o.OperationID)
	}

	c.mu.Lock()
	g, ok := c.groups[o.AtomicGroupID]
	if !ok {
		g = &heldGroup{venue: o.Venue, expected: o.AtomicGroupSize, membersBySeq: make(map[int]*order.Order)}
		c.groups[o.AtomicGroupID] = g
	}
	if g.expected != o.AtomicGroupSize {
		c.mu.Unlock()
		return fmt.Errorf("atomic: group %s size mismatch (held %d, order declares %d)", o.AtomicGroupID, g.expected, o.AtomicGroupSize)
	}
	if _, dup := g.membersBySeq[o.SequenceInGroup]; dup {
		c.mu.Unlock()
		return fmt.Errorf("atomic: group %s already has a member at sequence %d", o.AtomicGroupID, o.SequenceInGroup)
	}
	g.membersBySeq[o.SequenceInGroup] = o
	complete := len(g.membersBySeq) == g.expected
	if complete {
		delete(c.groups, o.AtomicGroupID)
	}
	c.mu.Unlock()

	if !complete {
		c.logger.Info(ctx, "atomic: group member held pending completion", map[string]interface{}{
			"atomic_group_id": o.AtomicGroupID, "sequence_in_group": o.SequenceInGroup, "expected": g.expected,
		})
		return nil
	}

	members := orderedMembers(g)
	// The bundle submission outlives this request: Hold returns a
	// "pending_group" response before the submission finishes, and
	// net/http cancels ctx the moment the handler returns. Detaching onto
	// context.WithoutCancel(ctx) keeps any request-scoped values (trace
	// span, request id) while dropping the cancellation that would
	// otherwise abort the on-chain submission almost immediately.
	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bundleSubmitTimeout)
	go func() {
		defer cancel()
		c.submit(submitCtx, bundler, o.AtomicGroupID, members)
	}()
	return nil
}

func orderedMembers(g *heldGroup) []*order.Order {
	seqs := make([]int, 0, len(g.membersBySeq))
	for seq := range g.membersBySeq {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	out := make([]*order.Order, len(seqs))
	for i, seq := range seqs {
		out[i] = g.membersBySeq[seq]
	}
	return out
}

func (c *Coordinator) submit(ctx context.Context, bundler Bundler, groupID string, members []*order.Order) {
	reqs := make([]BundleRequest, len(members))
	for i, m := range members {
		reqs[i] = BundleRequest{
			OperationID: m.OperationID, CanonicalID: m.CanonicalID,
			Operation: m.Operation, Side: m.Side, Quantity: m.Quantity.String(),
		}
	}

	result, err := bundler.SubmitBundle(ctx, members[0].Venue, reqs)
	if err != nil {
		c.logger.Error(ctx, "atomic: group bundle submission failed", err, map[string]interface{}{
			"atomic_group_id": groupID,
		})
	}
	if c.onComplete != nil {
		c.onComplete(ctx, groupID, members, result, err)
	}
}

// PendingGroupCount reports how many distinct groups are currently held
// incomplete, for health/metrics surfacing.
func (c *Coordinator) PendingGroupCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.groups)
}
