package atomic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/execorch/execorch/internal/order"
	"github.com/execorch/execorch/pkg/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBundler struct {
	result BundleResult
	err    error

	mu   sync.Mutex
	reqs []BundleRequest
}

func (f *fakeBundler) SubmitBundle(ctx context.Context, venue string, reqs []BundleRequest) (BundleResult, error) {
	f.mu.Lock()
	f.reqs = reqs
	f.mu.Unlock()
	return f.result, f.err
}

func groupMember(seq, size int) *order.Order {
	return &order.Order{
		OperationID: "op-" + string(rune('0'+seq)), Venue: "aave",
		Operation: order.OperationSupply, Side: order.SideSupply,
		Quantity:        decimal.NewFromInt(1),
		AtomicGroupID:   "g-7",
		SequenceInGroup: seq,
		AtomicGroupSize: size,
	}
}

func TestHoldDoesNotSubmitUntilGroupComplete(t *testing.T) {
	bundler := &fakeBundler{result: BundleResult{Success: true}}
	var completed []string
	var mu sync.Mutex
	c := New(&observability.Logger{}, func(ctx context.Context, groupID string, members []*order.Order, result BundleResult, err error) {
		mu.Lock()
		completed = append(completed, groupID)
		mu.Unlock()
	})

	err := c.Hold(context.Background(), bundler, groupMember(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, c.PendingGroupCount())

	bundler.mu.Lock()
	assert.Nil(t, bundler.reqs)
	bundler.mu.Unlock()
}

func TestHoldSubmitsBundleOnceGroupComplete(t *testing.T) {
	bundler := &fakeBundler{result: BundleResult{Success: true, VenueTxHash: "0xabc"}}
	done := make(chan []*order.Order, 1)
	c := New(&observability.Logger{}, func(ctx context.Context, groupID string, members []*order.Order, result BundleResult, err error) {
		done <- members
	})

	require.NoError(t, c.Hold(context.Background(), bundler, groupMember(1, 2)))
	require.NoError(t, c.Hold(context.Background(), bundler, groupMember(2, 2)))

	select {
	case members := <-done:
		require.Len(t, members, 2)
		assert.Equal(t, 1, members[0].SequenceInGroup)
		assert.Equal(t, 2, members[1].SequenceInGroup)
	case <-time.After(time.Second):
		t.Fatal("group completion callback never fired")
	}
	assert.Equal(t, 0, c.PendingGroupCount())

	bundler.mu.Lock()
	assert.Len(t, bundler.reqs, 2)
	bundler.mu.Unlock()
}

func TestHoldRejectsGroupSizeMismatch(t *testing.T) {
	bundler := &fakeBundler{}
	c := New(&observability.Logger{}, nil)

	require.NoError(t, c.Hold(context.Background(), bundler, groupMember(1, 2)))
	err := c.Hold(context.Background(), bundler, groupMember(2, 3))
	assert.Error(t, err)
}

func TestHoldRejectsDuplicateSequence(t *testing.T) {
	bundler := &fakeBundler{}
	c := New(&observability.Logger{}, nil)

	require.NoError(t, c.Hold(context.Background(), bundler, groupMember(1, 2)))
	err := c.Hold(context.Background(), bundler, groupMember(1, 2))
	assert.Error(t, err)
}

func TestHoldRejectsIneligibleOperation(t *testing.T) {
	bundler := &fakeBundler{}
	c := New(&observability.Logger{}, nil)

	m := groupMember(1, 1)
	m.Operation = order.OperationTrade
	err := c.Hold(context.Background(), bundler, m)
	assert.Error(t, err)
}
