package deploymenttracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/clustergateway"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
)

func submitPending(t *testing.T, tracker *Tracker, resourceType PrimaryResourceType) Deployment {
	t.Helper()
	d, err := tracker.Submit(context.Background(), []byte(sampleJobYAML), "default", nil)
	require.NoError(t, err)
	require.Equal(t, resourceType, d.PrimaryResourceType)
	return d
}

// TestReconcileJobPendingToRunning covers the first leg of Concrete
// Scenario 6's lattice: an observed in-progress Job moves pending ->
// running.
func TestReconcileJobPendingToRunning(t *testing.T) {
	gw := &fakeGateway{status: clustergateway.ResourceStatus{Phase: "Active", Completions: 1}}
	tracker, deployments := newTestTracker(gw, &fakePodLister{})
	d := submitPending(t, tracker, ResourceJob)

	reconciler := NewReconciler(tracker, core.SystemClock{}, core.NopLogger{}, time.Second, 4, 0, nil)
	reconciler.sweep(context.Background())

	stored, err := deployments.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, stored.Status)
}

// TestReconcileJobRunningToCompleted covers the succeeded_count >=
// completions completion rule.
func TestReconcileJobRunningToCompleted(t *testing.T) {
	gw := &fakeGateway{status: clustergateway.ResourceStatus{Phase: "Active", Completions: 1}}
	tracker, deployments := newTestTracker(gw, &fakePodLister{})
	d := submitPending(t, tracker, ResourceJob)

	reconciler := NewReconciler(tracker, core.SystemClock{}, core.NopLogger{}, time.Second, 4, 0, nil)
	reconciler.sweep(context.Background()) // -> running

	gw.status = clustergateway.ResourceStatus{Phase: "Active", Completions: 1, SucceededCount: 1}
	reconciler.sweep(context.Background()) // -> completed

	stored, err := deployments.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, stored.Status)
}

// TestReconcileJobFailsOnBackoffExceeded is Concrete Scenario 6: a Job
// that immediately fails transitions to failed with last_error set,
// and terminal Deployments drop out of subsequent sweeps.
func TestReconcileJobFailsOnBackoffExceeded(t *testing.T) {
	gw := &fakeGateway{status: clustergateway.ResourceStatus{
		Phase:        "Active",
		Completions:  1,
		FailedCount:  1,
		BackoffLimit: 0,
		Conditions:   []string{"Failed: Job has reached the specified backoff limit"},
	}}
	tracker, deployments := newTestTracker(gw, &fakePodLister{})
	d := submitPending(t, tracker, ResourceJob)

	reconciler := NewReconciler(tracker, core.SystemClock{}, core.NopLogger{}, time.Second, 4, 0, nil)
	reconciler.sweep(context.Background())

	stored, err := deployments.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, stored.Status)
	require.Contains(t, stored.LastError, "backoff limit")

	// A terminal Deployment is excluded from the next sweep's
	// non-terminal filter, so a later observation failure can't
	// resurrect it.
	gw.statusErr = context.DeadlineExceeded
	reconciler.sweep(context.Background())
	stillFailed, err := deployments.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, stillFailed.Status)
}

// TestReconcileObservationFailureKeepsState: observation failures are
// logged and the status is left unchanged, distinct from a
// resource-reported failure.
func TestReconcileObservationFailureKeepsState(t *testing.T) {
	gw := &fakeGateway{statusErr: context.DeadlineExceeded}
	tracker, deployments := newTestTracker(gw, &fakePodLister{})
	d := submitPending(t, tracker, ResourceJob)

	reconciler := NewReconciler(tracker, core.SystemClock{}, core.NopLogger{}, time.Second, 4, 0, nil)
	reconciler.sweep(context.Background())

	stored, err := deployments.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
}

// TestReconcilePendingTimeoutFailsStuckDeployment: a Deployment still
// pending past the configured deployment timeout is failed even when
// its status cannot be observed at all.
func TestReconcilePendingTimeoutFailsStuckDeployment(t *testing.T) {
	gw := &fakeGateway{statusErr: context.DeadlineExceeded}
	tracker, deployments := newTestTracker(gw, &fakePodLister{})
	d := submitPending(t, tracker, ResourceJob)

	// Backdate creation so the deployment is already past the timeout.
	_, err := deployments.CompareAndSwap(context.Background(), d.ID, func(cur Deployment) (Deployment, error) {
		cur.CreatedAt = cur.CreatedAt.Add(-time.Hour)
		return cur, nil
	})
	require.NoError(t, err)

	reconciler := NewReconciler(tracker, core.SystemClock{}, core.NopLogger{}, time.Second, 4, 10*time.Minute, nil)
	reconciler.sweep(context.Background())

	stored, err := deployments.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, stored.Status)
	require.Contains(t, stored.LastError, "timed out")
}

// TestValidTransitionLattice directly exercises the monotonicity law:
// every state reaches `deleted`, but terminal states never regress to
// a non-terminal one.
func TestValidTransitionLattice(t *testing.T) {
	require.True(t, ValidTransition(StatusPending, StatusRunning))
	require.True(t, ValidTransition(StatusPending, StatusFailed))
	require.True(t, ValidTransition(StatusRunning, StatusCompleted))
	require.True(t, ValidTransition(StatusRunning, StatusFailed))
	require.True(t, ValidTransition(StatusCompleted, StatusDeleted))
	require.True(t, ValidTransition(StatusFailed, StatusDeleted))

	require.False(t, ValidTransition(StatusCompleted, StatusRunning))
	require.False(t, ValidTransition(StatusFailed, StatusPending))
	require.False(t, ValidTransition(StatusDeleted, StatusRunning))
	require.False(t, ValidTransition(StatusPending, StatusCompleted))
}
