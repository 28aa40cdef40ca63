package deploymenttracker

import (
	"context"
	"io"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/clustergateway"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/dbstore"
)

// Gateway is the subset of clustergateway.Gateway the Tracker depends
// on, kept narrow so tests substitute a fake without building a real
// cluster client.
type Gateway interface {
	Apply(ctx context.Context, yamlBytes []byte, namespace string) ([]clustergateway.AppliedResource, error)
	Delete(ctx context.Context, yamlBytes []byte, namespace string) error
	GetStatus(ctx context.Context, gvk schema.GroupVersionKind, namespace, name string) (clustergateway.ResourceStatus, error)
	TailLogs(ctx context.Context, namespace, pod, container string, since *time.Time, tailLines int64, follow bool) (io.ReadCloser, error)
}

// PodLister resolves the primary pod backing a Deployment or Job, used
// by GetLogs.
type PodLister interface {
	PrimaryPod(ctx context.Context, namespace string, resourceType PrimaryResourceType, resourceName string) (podName, containerName string, err error)
}

// Tracker owns Deployments and VLLMDeployments.
type Tracker struct {
	deployments dbstore.Collection[Deployment]
	gateway     Gateway
	pods        PodLister
	ids         core.IDGenerator
	clock       core.Clock
	logger      core.Logger

	jobMaxFailures  int
	vllmMaxFailures int
}

// New builds a Tracker. jobMaxFailures and vllmMaxFailures are the
// separate failure budgets for plain Jobs and vLLM deployments.
func New(
	deployments dbstore.Collection[Deployment],
	gateway Gateway,
	pods PodLister,
	ids core.IDGenerator,
	clock core.Clock,
	logger core.Logger,
	jobMaxFailures, vllmMaxFailures int,
) *Tracker {
	return &Tracker{
		deployments:     deployments,
		gateway:         gateway,
		pods:            pods,
		ids:             ids,
		clock:           clock,
		logger:          logger,
		jobMaxFailures:  jobMaxFailures,
		vllmMaxFailures: vllmMaxFailures,
	}
}

// Submit parses the manifest to identify the primary resource, records
// a pending Deployment (the DB write precedes the cluster call), then
// delegates to the Cluster Gateway. On cluster failure the Deployment
// is marked failed rather than left pending.
func (t *Tracker) Submit(ctx context.Context, yamlBytes []byte, namespace string, fingerprint *Fingerprint) (Deployment, error) {
	docs, err := clustergateway.DecodeDocuments(yamlBytes)
	if err != nil {
		return Deployment{}, invalidManifestError(err)
	}
	primary := docs[0]

	now := t.clock.Now()
	d := Deployment{
		ID:                  t.ids.NewID(),
		YAMLContent:         yamlBytes,
		Namespace:           namespace,
		PrimaryResourceType: resourceTypeOf(primary),
		PrimaryResourceName: primary.GetName(),
		Status:              StatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
		IsVLLM:              fingerprint != nil,
		Fingerprint:         fingerprint,
	}
	if err := t.deployments.Create(ctx, d); err != nil {
		return Deployment{}, err
	}

	applyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := t.gateway.Apply(applyCtx, yamlBytes, namespace); err != nil {
		failed, casErr := t.deployments.CompareAndSwap(ctx, d.ID, func(cur Deployment) (Deployment, error) {
			cur.Status = StatusFailed
			cur.LastError = err.Error()
			cur.UpdatedAt = t.clock.Now()
			return cur, nil
		})
		if casErr != nil {
			return d, core.Wrap(core.KindUpstream, "apply_failed", "cluster apply failed", err)
		}
		return failed, core.Wrap(core.KindUpstream, "apply_failed", "cluster apply failed", err)
	}

	return d, nil
}

// Get returns a Deployment by ID.
func (t *Tracker) Get(ctx context.Context, id string) (Deployment, error) {
	d, err := t.deployments.Get(ctx, id)
	if err != nil {
		return Deployment{}, notFoundError(id)
	}
	return d, nil
}

// List returns every Deployment matching filter (nil matches all).
func (t *Tracker) List(ctx context.Context, filter func(Deployment) bool) ([]Deployment, error) {
	return t.deployments.List(ctx, filter)
}

// Delete deletes cluster resources via the gateway (using the stored
// YAML, not re-derived) and transitions the Deployment to `deleted`.
// Idempotent: deleting an already-deleted Deployment is a no-op
// success.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	d, err := t.deployments.Get(ctx, id)
	if err != nil {
		return notFoundError(id)
	}
	if d.Status == StatusDeleted {
		return nil
	}
	if err := t.gateway.Delete(ctx, d.YAMLContent, d.Namespace); err != nil {
		return core.Wrap(core.KindUpstream, "delete_failed", "cluster delete failed", err)
	}
	_, err = t.deployments.CompareAndSwap(ctx, id, func(cur Deployment) (Deployment, error) {
		cur.Status = StatusDeleted
		cur.UpdatedAt = t.clock.Now()
		return cur, nil
	})
	return err
}

// GetLogs proxies to the gateway's TailLogs for the Deployment's
// primary pod.
func (t *Tracker) GetLogs(ctx context.Context, id string, tailLines int64, follow bool, since *time.Time) (io.ReadCloser, error) {
	d, err := t.deployments.Get(ctx, id)
	if err != nil {
		return nil, notFoundError(id)
	}
	pod, container, err := t.pods.PrimaryPod(ctx, d.Namespace, d.PrimaryResourceType, d.PrimaryResourceName)
	if err != nil {
		return nil, core.Wrap(core.KindUpstream, "primary_pod_unresolved", "could not resolve primary pod", err)
	}
	return t.gateway.TailLogs(ctx, d.Namespace, pod, container, since, tailLines, follow)
}

func resourceTypeOf(u *unstructured.Unstructured) PrimaryResourceType {
	switch strings.ToLower(u.GetKind()) {
	case "job":
		return ResourceJob
	case "deployment":
		return ResourceDeployment
	case "service":
		return ResourceService
	case "configmap":
		return ResourceConfigMap
	case "secret":
		return ResourceSecret
	default:
		return ResourceUnknown
	}
}
