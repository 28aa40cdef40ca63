package deploymenttracker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/clustergateway"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/dbstore"
)

const sampleJobYAML = `
apiVersion: batch/v1
kind: Job
metadata:
  name: bench-job
spec:
  template:
    spec:
      containers:
      - name: bench
        image: example/bench:latest
`

// fakeGateway substitutes clustergateway.Gateway for tests, following
// the same narrow-interface-plus-closure fake style sweeper_test.go
// uses for TrackerSubmit.
type fakeGateway struct {
	applyErr  error
	deleteErr error
	status    clustergateway.ResourceStatus
	statusErr error
}

func (f *fakeGateway) Apply(ctx context.Context, yamlBytes []byte, namespace string) ([]clustergateway.AppliedResource, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	return []clustergateway.AppliedResource{{Kind: "Job", Name: "bench-job", Namespace: namespace}}, nil
}

func (f *fakeGateway) Delete(ctx context.Context, yamlBytes []byte, namespace string) error {
	return f.deleteErr
}

func (f *fakeGateway) GetStatus(ctx context.Context, gvk schema.GroupVersionKind, namespace, name string) (clustergateway.ResourceStatus, error) {
	if f.statusErr != nil {
		return clustergateway.ResourceStatus{}, f.statusErr
	}
	return f.status, nil
}

func (f *fakeGateway) TailLogs(ctx context.Context, namespace, pod, container string, since *time.Time, tailLines int64, follow bool) (io.ReadCloser, error) {
	return io.NopCloser(nil), nil
}

type fakePodLister struct {
	pod, container string
	err            error
}

func (f *fakePodLister) PrimaryPod(ctx context.Context, namespace string, resourceType PrimaryResourceType, resourceName string) (string, string, error) {
	return f.pod, f.container, f.err
}

func newTestTracker(gw Gateway, pods PodLister) (*Tracker, dbstore.Collection[Deployment]) {
	deployments := dbstore.NewMemoryCollection[Deployment]("deployments")
	tracker := New(deployments, gw, pods, core.NewSequentialGenerator("d"), core.SystemClock{}, core.NopLogger{}, 3, 3)
	return tracker, deployments
}

// TestSubmitAppliesAndPersistsPending covers the Submit contract: the
// DB write precedes the cluster call, and success leaves the
// Deployment pending.
func TestSubmitAppliesAndPersistsPending(t *testing.T) {
	tracker, deployments := newTestTracker(&fakeGateway{}, &fakePodLister{})

	d, err := tracker.Submit(context.Background(), []byte(sampleJobYAML), "default", nil)
	require.NoError(t, err)
	require.Equal(t, StatusPending, d.Status)
	require.Equal(t, ResourceJob, d.PrimaryResourceType)
	require.Equal(t, "bench-job", d.PrimaryResourceName)
	require.False(t, d.IsVLLM)

	stored, err := deployments.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
}

// TestSubmitMarksFailedOnApplyError covers the atomicity rule: a
// cluster apply failure transitions the already-persisted Deployment
// to failed rather than leaving it pending.
func TestSubmitMarksFailedOnApplyError(t *testing.T) {
	applyErr := errors.New("admission webhook denied")
	tracker, deployments := newTestTracker(&fakeGateway{applyErr: applyErr}, &fakePodLister{})

	d, err := tracker.Submit(context.Background(), []byte(sampleJobYAML), "default", nil)
	require.Error(t, err)
	require.Equal(t, core.KindUpstream, core.KindOf(err))
	require.Equal(t, StatusFailed, d.Status)
	require.Contains(t, d.LastError, "admission webhook denied")

	stored, getErr := deployments.Get(context.Background(), d.ID)
	require.NoError(t, getErr)
	require.Equal(t, StatusFailed, stored.Status)
}

// TestSubmitVLLMCarriesFingerprint checks the VLLMDeployment
// specialization: a non-nil fingerprint marks IsVLLM and is persisted
// alongside the Deployment.
func TestSubmitVLLMCarriesFingerprint(t *testing.T) {
	tracker, _ := newTestTracker(&fakeGateway{}, &fakePodLister{})
	fp := &Fingerprint{ModelName: "llama-3-8b", GPUResourceType: "nvidia.com/gpu", GPUResourceCount: 1}

	d, err := tracker.Submit(context.Background(), []byte(sampleJobYAML), "default", fp)
	require.NoError(t, err)
	require.True(t, d.IsVLLM)
	require.Equal(t, "llama-3-8b", d.Fingerprint.ModelName)
}

// TestDeleteIsIdempotent: deleting an already-deleted Deployment is a
// no-op success.
func TestDeleteIsIdempotent(t *testing.T) {
	tracker, deployments := newTestTracker(&fakeGateway{}, &fakePodLister{})
	d, err := tracker.Submit(context.Background(), []byte(sampleJobYAML), "default", nil)
	require.NoError(t, err)

	require.NoError(t, tracker.Delete(context.Background(), d.ID))
	stored, err := deployments.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDeleted, stored.Status)

	// Second delete is a no-op success, not a not-found or gateway call.
	require.NoError(t, tracker.Delete(context.Background(), d.ID))
}

func TestDeleteUnknownIDIsNotFound(t *testing.T) {
	tracker, _ := newTestTracker(&fakeGateway{}, &fakePodLister{})
	err := tracker.Delete(context.Background(), "does-not-exist")
	require.Error(t, err)
	require.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestGetLogsResolvesPrimaryPod(t *testing.T) {
	tracker, _ := newTestTracker(&fakeGateway{}, &fakePodLister{pod: "bench-job-abcde", container: "bench"})
	d, err := tracker.Submit(context.Background(), []byte(sampleJobYAML), "default", nil)
	require.NoError(t, err)

	rc, err := tracker.GetLogs(context.Background(), d.ID, 100, false, nil)
	require.NoError(t, err)
	require.NotNil(t, rc)
}

func TestGetLogsPropagatesPodResolutionFailure(t *testing.T) {
	tracker, _ := newTestTracker(&fakeGateway{}, &fakePodLister{err: errors.New("no ready pod")})
	d, err := tracker.Submit(context.Background(), []byte(sampleJobYAML), "default", nil)
	require.NoError(t, err)

	_, err = tracker.GetLogs(context.Background(), d.ID, 100, false, nil)
	require.Error(t, err)
	require.Equal(t, core.KindUpstream, core.KindOf(err))
}
