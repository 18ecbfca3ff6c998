package schedule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeRegistry struct {
	calls int
}

func (f *fakeRegistry) ReconcileAll(ctx context.Context) {
	f.calls++
}

func TestReconcileJobDelegatesToRegistry(t *testing.T) {
	reg := &fakeRegistry{}
	job := ReconcileJob{Registry: reg}

	assert.Equal(t, "adapter-reconciliation", job.Name())

	err := job.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, reg.calls)
}
