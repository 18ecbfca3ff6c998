package schedule

import "context"

// registry is the subset of adapter.Registry a ReconcileJob needs; kept
// narrow so this package doesn't import internal/adapter just for a type.
type registry interface {
	ReconcileAll(ctx context.Context)
}

// ReconcileJob runs a full reconciliation sweep across every registered
// adapter (§4.7), catching drift on connections that have stayed up long
// enough to never hit Supervisor.Run's reconnect-triggered path.
type ReconcileJob struct {
	Registry registry
}

func (j ReconcileJob) Name() string { return "adapter-reconciliation" }

func (j ReconcileJob) Run(ctx context.Context) error {
	j.Registry.ReconcileAll(ctx)
	return nil
}
