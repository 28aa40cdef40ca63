package clustergateway

import (
	"context"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
)

// PrimaryPod resolves the pod a log/exec request against resourceKind/
// resourceName should target: Jobs resolve to their most recent pod,
// Deployments to any ready replica (or, when none is ready, the first
// pod listed).
// resourceKind is the lowercase Kubernetes kind ("job" or "deployment").
func (g *Gateway) PrimaryPod(ctx context.Context, namespace, resourceKind, resourceName string) (podName, containerName string, err error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	switch resourceKind {
	case "job":
		return g.primaryJobPod(ctx, namespace, resourceName)
	case "deployment":
		return g.primaryDeploymentPod(ctx, namespace, resourceName)
	default:
		return "", "", fmt.Errorf("clustergateway: cannot resolve primary pod for kind %q", resourceKind)
	}
}

func (g *Gateway) primaryJobPod(ctx context.Context, namespace, jobName string) (string, string, error) {
	pods, err := g.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labels.SelectorFromSet(labels.Set{"job-name": jobName}).String(),
	})
	if err != nil {
		return "", "", fmt.Errorf("clustergateway: list pods for job %s: %w", jobName, err)
	}
	if len(pods.Items) == 0 {
		return "", "", fmt.Errorf("clustergateway: no pods found for job %s", jobName)
	}
	sort.Slice(pods.Items, func(i, j int) bool {
		return pods.Items[i].CreationTimestamp.After(pods.Items[j].CreationTimestamp.Time)
	})
	pod := pods.Items[0]
	return pod.Name, firstContainerName(pod), nil
}

func (g *Gateway) primaryDeploymentPod(ctx context.Context, namespace, deploymentName string) (string, string, error) {
	deployment, err := g.clientset.AppsV1().Deployments(namespace).Get(ctx, deploymentName, metav1.GetOptions{})
	if err != nil {
		return "", "", fmt.Errorf("clustergateway: get deployment %s: %w", deploymentName, err)
	}
	selector, err := metav1.LabelSelectorAsSelector(deployment.Spec.Selector)
	if err != nil {
		return "", "", fmt.Errorf("clustergateway: deployment %s selector: %w", deploymentName, err)
	}
	pods, err := g.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return "", "", fmt.Errorf("clustergateway: list pods for deployment %s: %w", deploymentName, err)
	}
	for _, pod := range pods.Items {
		if isPodReady(pod) {
			return pod.Name, firstContainerName(pod), nil
		}
	}
	if len(pods.Items) > 0 {
		return pods.Items[0].Name, firstContainerName(pods.Items[0]), nil
	}
	return "", "", fmt.Errorf("clustergateway: no pods found for deployment %s", deploymentName)
}

func firstContainerName(pod corev1.Pod) string {
	if len(pod.Spec.Containers) == 0 {
		return ""
	}
	return pod.Spec.Containers[0].Name
}

func isPodReady(pod corev1.Pod) bool {
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}
