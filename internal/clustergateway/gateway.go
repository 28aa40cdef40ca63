// Package clustergateway is the sole component that talks to the
// cluster's API: apply, delete, watch status, tail logs,
// exec. It never persists state; every call carries a per-call timeout
// except log-follow and exec, which are unbounded but close on
// cancellation.
package clustergateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/remotecommand"
	kstatus "sigs.k8s.io/cli-utils/pkg/kstatus/status"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
)

// DefaultTimeout bounds every non-streaming call.
const DefaultTimeout = 10 * time.Second

// AppliedResource identifies one resource created or updated by Apply,
// in document order.
type AppliedResource struct {
	Kind      string
	Name      string
	Namespace string
}

// ResourceStatus is the normalized status Cluster Gateway computes for
// any resource kind.
type ResourceStatus struct {
	Phase          string
	Conditions     []string
	ReadyReplicas  int32
	StartTime      *time.Time
	CompletionTime *time.Time
	// SucceededCount/FailedCount/BackoffLimit are populated for Jobs,
	// needed by the Deployment Tracker's completion/failure rule.
	SucceededCount int32
	FailedCount    int32
	Completions    int32
	BackoffLimit   int32
}

// Gateway is the concrete Cluster Gateway, backed by client-go's
// dynamic client + discovery/RESTMapper for Apply/Delete/GetStatus, the
// typed clientset for log streaming, and remotecommand/SPDY for Exec —
// the same stack hashmap-kz-katomik's apply package and
// GoogleCloudPlatform-prometheus-engine's e2e/kubeutil use, composed
// for long-running server use rather than a one-shot CLI invocation.
type Gateway struct {
	restConfig *rest.Config
	dynamic    dynamic.Interface
	discovery  discovery.DiscoveryInterface
	mapper     meta.RESTMapper
	clientset  kubernetes.Interface
	logger     core.Logger
}

// New builds a Gateway from a REST config (in-cluster or from
// KUBECONFIG; resolving which is the caller's responsibility).
func New(restConfig *rest.Config, logger core.Logger) (*Gateway, error) {
	dyn, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("clustergateway: dynamic client: %w", err)
	}
	disc, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("clustergateway: discovery client: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("clustergateway: typed client: %w", err)
	}
	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(disc))
	return &Gateway{
		restConfig: restConfig,
		dynamic:    dyn,
		discovery:  disc,
		mapper:     mapper,
		clientset:  clientset,
		logger:     logger,
	}, nil
}

func (g *Gateway) resourceFor(u *unstructured.Unstructured, namespace string) (dynamic.ResourceInterface, error) {
	gvk := u.GroupVersionKind()
	m, err := g.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		if rm, ok := g.mapper.(*restmapper.DeferredDiscoveryRESTMapper); ok {
			rm.Reset()
			m, err = g.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
		}
		if err != nil {
			return nil, fmt.Errorf("clustergateway: resolve %v: %w", gvk, err)
		}
	}
	if m.Scope.Name() == meta.RESTScopeNameNamespace {
		ns := u.GetNamespace()
		if ns == "" {
			ns = namespace
		}
		u.SetNamespace(ns)
		return g.dynamic.Resource(m.Resource).Namespace(ns), nil
	}
	return g.dynamic.Resource(m.Resource), nil
}

// DecodeDocuments splits yamlBytes into one or more resource documents,
// in apply order.
func DecodeDocuments(yamlBytes []byte) ([]*unstructured.Unstructured, error) {
	var docs []*unstructured.Unstructured
	stream := utilyaml.NewYAMLOrJSONDecoder(bytes.NewReader(yamlBytes), 4096)
	for {
		obj := &unstructured.Unstructured{}
		if err := stream.Decode(obj); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if len(obj.Object) > 0 {
			docs = append(docs, obj)
		}
	}
	if len(docs) == 0 {
		return nil, errors.New("clustergateway: no resource documents found")
	}
	return docs, nil
}

// Apply parses one or more YAML documents and applies each with
// server-side semantics: create if absent, update if present by
// name+namespace+kind.
func (g *Gateway) Apply(ctx context.Context, yamlBytes []byte, namespace string) ([]AppliedResource, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	docs, err := DecodeDocuments(yamlBytes)
	if err != nil {
		return nil, err
	}

	out := make([]AppliedResource, 0, len(docs))
	for _, u := range docs {
		ri, err := g.resourceFor(u, namespace)
		if err != nil {
			return out, err
		}
		objJSON, err := u.MarshalJSON()
		if err != nil {
			return out, err
		}
		applied, err := ri.Patch(ctx, u.GetName(), serverSideApplyType, objJSON, metav1.PatchOptions{
			FieldManager: "vllm-bench-deployer",
			Force:        boolPtr(true),
		})
		if err != nil {
			return out, fmt.Errorf("clustergateway: apply %s/%s: %w", u.GetKind(), u.GetName(), err)
		}
		out = append(out, AppliedResource{
			Kind:      applied.GetKind(),
			Name:      applied.GetName(),
			Namespace: applied.GetNamespace(),
		})
	}
	return out, nil
}

// Delete parses the same YAML bytes Apply was given and deletes each
// named resource, symmetric to Apply.
func (g *Gateway) Delete(ctx context.Context, yamlBytes []byte, namespace string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	docs, err := DecodeDocuments(yamlBytes)
	if err != nil {
		return err
	}
	for _, u := range docs {
		ri, err := g.resourceFor(u, namespace)
		if err != nil {
			return err
		}
		if err := ri.Delete(ctx, u.GetName(), metav1.DeleteOptions{}); err != nil {
			if apierrors.IsNotFound(err) {
				continue
			}
			return fmt.Errorf("clustergateway: delete %s/%s: %w", u.GetKind(), u.GetName(), err)
		}
	}
	return nil
}

// GetStatus returns a normalized status for one resource, using
// sigs.k8s.io/cli-utils/pkg/kstatus/status.
func (g *Gateway) GetStatus(ctx context.Context, gvk schema.GroupVersionKind, namespace, name string) (ResourceStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	m, err := g.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return ResourceStatus{}, fmt.Errorf("clustergateway: resolve %v: %w", gvk, err)
	}
	var ri dynamic.ResourceInterface
	if m.Scope.Name() == meta.RESTScopeNameNamespace {
		ri = g.dynamic.Resource(m.Resource).Namespace(namespace)
	} else {
		ri = g.dynamic.Resource(m.Resource)
	}
	u, err := ri.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return ResourceStatus{}, fmt.Errorf("clustergateway: get %s/%s: %w", gvk.Kind, name, err)
	}

	res, err := kstatus.Compute(u)
	if err != nil {
		return ResourceStatus{}, fmt.Errorf("clustergateway: compute status %s/%s: %w", gvk.Kind, name, err)
	}

	out := ResourceStatus{Phase: string(res.Status), Conditions: conditionMessages(res)}
	if gvk.Kind == "Job" {
		succeeded, _, _ := unstructured.NestedInt64(u.Object, "status", "succeeded")
		failed, _, _ := unstructured.NestedInt64(u.Object, "status", "failed")
		completions, _, _ := unstructured.NestedInt64(u.Object, "spec", "completions")
		backoffLimit, _, _ := unstructured.NestedInt64(u.Object, "spec", "backoffLimit")
		out.SucceededCount = int32(succeeded)
		out.FailedCount = int32(failed)
		out.Completions = int32(completions)
		out.BackoffLimit = int32(backoffLimit)
	}
	if gvk.Kind == "Deployment" {
		ready, _, _ := unstructured.NestedInt64(u.Object, "status", "readyReplicas")
		out.ReadyReplicas = int32(ready)
	}
	return out, nil
}

func conditionMessages(res *kstatus.Result) []string {
	if res == nil {
		return nil
	}
	msgs := make([]string, 0, len(res.Conditions))
	for _, c := range res.Conditions {
		msgs = append(msgs, string(c.Type)+": "+c.Message)
	}
	return msgs
}

// TailLogs streams logs for one container
// (GetLogs(...).Stream(ctx)), exposing tail/since/follow instead of
// always reading to completion.
func (g *Gateway) TailLogs(ctx context.Context, namespace, pod, container string, since *time.Time, tailLines int64, follow bool) (io.ReadCloser, error) {
	opts := &corev1.PodLogOptions{
		Container: container,
		Follow:    follow,
	}
	if tailLines > 0 {
		opts.TailLines = &tailLines
	}
	if since != nil {
		t := metav1.NewTime(*since)
		opts.SinceTime = &t
	}
	req := g.clientset.CoreV1().Pods(namespace).GetLogs(pod, opts)
	return req.Stream(ctx)
}

// ExecSession is a bidirectional byte channel bound to a running
// container, the seam the Terminal Broker bridges to a client stream.
type ExecSession struct {
	Stdin  io.WriteCloser
	Stdout io.Reader
	Stderr io.Reader
	Resize chan remotecommand.TerminalSize
	done   chan error
}

// Wait blocks until the exec session ends, returning the stream
// error (if any).
func (s *ExecSession) Wait() error { return <-s.done }

// Exec opens an interactive exec channel into pod/container, the
// client-go facility for interactive exec over SPDY.
func (g *Gateway) Exec(ctx context.Context, namespace, pod, container string, argv []string, tty bool) (*ExecSession, error) {
	req := g.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(namespace).
		SubResource("exec")
	// A TTY merges stderr into stdout; requesting both is rejected by
	// the API server.
	req.VersionedParams(&corev1.PodExecOptions{
		Container: container,
		Command:   argv,
		Stdin:     true,
		Stdout:    true,
		Stderr:    !tty,
		TTY:       tty,
	}, execParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(g.restConfig, "POST", req.URL())
	if err != nil {
		return nil, fmt.Errorf("clustergateway: build executor: %w", err)
	}

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	resize := make(chan remotecommand.TerminalSize, 1)
	done := make(chan error, 1)

	opts := remotecommand.StreamOptions{
		Stdin:             stdinR,
		Stdout:            stdoutW,
		Tty:               tty,
		TerminalSizeQueue: sizeQueue{ch: resize},
	}
	if !tty {
		opts.Stderr = stderrW
	}
	go func() {
		done <- executor.StreamWithContext(ctx, opts)
		stdoutW.Close()
		stderrW.Close()
	}()

	return &ExecSession{Stdin: stdinW, Stdout: stdoutR, Stderr: stderrR, Resize: resize, done: done}, nil
}

type sizeQueue struct {
	ch chan remotecommand.TerminalSize
}

func (q sizeQueue) Next() *remotecommand.TerminalSize {
	size, ok := <-q.ch
	if !ok {
		return nil
	}
	return &size
}

func boolPtr(b bool) *bool { return &b }
