package deploymenttracker

import (
	"context"
	"fmt"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/clustergateway"
)

// GatewayPodLister adapts clustergateway.Gateway's untyped
// resource-kind PrimaryPod to the PodLister interface, translating
// PrimaryResourceType into the lowercase kind string the gateway
// expects.
type GatewayPodLister struct {
	Gateway *clustergateway.Gateway
}

func (l *GatewayPodLister) PrimaryPod(ctx context.Context, namespace string, resourceType PrimaryResourceType, resourceName string) (string, string, error) {
	switch resourceType {
	case ResourceJob:
		return l.Gateway.PrimaryPod(ctx, namespace, "job", resourceName)
	case ResourceDeployment:
		return l.Gateway.PrimaryPod(ctx, namespace, "deployment", resourceName)
	default:
		return "", "", fmt.Errorf("deploymenttracker: no pod resolution for resource type %q", resourceType)
	}
}

// PrimaryPod satisfies terminalbroker.PodResolver: it looks up the
// Deployment's namespace and primary resource, then delegates to the
// configured PodLister. This lets the Terminal Broker open a session
// against "dep-123" without knowing anything about Jobs or
// Deployments.
func (t *Tracker) PrimaryPod(ctx context.Context, deploymentID string) (namespace, pod, container string, err error) {
	d, err := t.deployments.Get(ctx, deploymentID)
	if err != nil {
		return "", "", "", notFoundError(deploymentID)
	}
	pod, container, err = t.pods.PrimaryPod(ctx, d.Namespace, d.PrimaryResourceType, d.PrimaryResourceName)
	if err != nil {
		return "", "", "", err
	}
	return d.Namespace, pod, container, nil
}
