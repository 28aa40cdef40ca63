package placement

import (
	"bytes"
	"fmt"
	"strconv"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/yaml"
)

// DefaultImage is the vLLM serving image used when a candidate does
// not name one.
const DefaultImage = "vllm/vllm-openai:latest"

// ManifestOptions carries the request-scoped fields a ConfigFingerprint
// alone does not determine (namespace, container image, and the name
// given to both the Deployment and the Service).
type ManifestOptions struct {
	Name      string
	Namespace string
	Image     string
}

// BuildManifest renders the Kubernetes Deployment+Service pair that
// serves an admitted vLLM configuration, passed to the Deployment
// Tracker's Submit after Admit returns ADMIT or EVICT_AND_ADMIT.
// The container's args mirror vLLM's own
// `--model/--served-model-name/--port/...` OpenAI-compatible server
// invocation; GPU resources are requested under the fingerprint's
// GPUResourceType key so scheduling honors device-plugin advertised
// resources (including MIG slice types).
func BuildManifest(candidate ConfigFingerprint, opts ManifestOptions) ([]byte, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("placement: manifest options require a Name")
	}
	image := opts.Image
	if image == "" {
		image = DefaultImage
	}
	port := int32(8000)

	args := []string{
		"--model", candidate.ModelName,
		"--port", strconv.Itoa(int(port)),
	}
	if candidate.ServedModelName != "" {
		args = append(args, "--served-model-name", candidate.ServedModelName)
	}
	if candidate.DType != "" {
		args = append(args, "--dtype", candidate.DType)
	}
	if candidate.MaxModelLen > 0 {
		args = append(args, "--max-model-len", strconv.Itoa(candidate.MaxModelLen))
	}
	if candidate.MaxNumSeqs > 0 {
		args = append(args, "--max-num-seqs", strconv.Itoa(candidate.MaxNumSeqs))
	}
	if candidate.BlockSize > 0 {
		args = append(args, "--block-size", strconv.Itoa(candidate.BlockSize))
	}
	if candidate.TensorParallelSize > 0 {
		args = append(args, "--tensor-parallel-size", strconv.Itoa(candidate.TensorParallelSize))
	}
	if candidate.PipelineParallelSize > 0 {
		args = append(args, "--pipeline-parallel-size", strconv.Itoa(candidate.PipelineParallelSize))
	}
	if candidate.GPUMemoryUtilization > 0 {
		args = append(args, "--gpu-memory-utilization", strconv.FormatFloat(candidate.GPUMemoryUtilization, 'f', -1, 64))
	}
	if candidate.Quantization != "" {
		args = append(args, "--quantization", candidate.Quantization)
	}
	if candidate.TrustRemoteCode {
		args = append(args, "--trust-remote-code")
	}
	for _, k := range canonicalKeys(candidate.AdditionalArgs) {
		args = append(args, "--"+k, candidate.AdditionalArgs[k])
	}

	labels := map[string]string{"app": opts.Name}

	resourceList := corev1.ResourceList{}
	if candidate.GPUResourceType != "" && candidate.GPUResourceCount > 0 {
		resourceList[corev1.ResourceName(candidate.GPUResourceType)] = *resource.NewQuantity(int64(candidate.GPUResourceCount), resource.DecimalSI)
	}

	replicas := int32(1)
	deployment := &appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{Name: opts.Name, Namespace: opts.Namespace, Labels: labels},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  "vllm",
						Image: image,
						Args:  args,
						Ports: []corev1.ContainerPort{{ContainerPort: port}},
						Resources: corev1.ResourceRequirements{
							Limits:   resourceList,
							Requests: resourceList,
						},
					}},
				},
			},
		},
	}

	service := &corev1.Service{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{Name: opts.Name, Namespace: opts.Namespace, Labels: labels},
		Spec: corev1.ServiceSpec{
			Selector: labels,
			Ports:    []corev1.ServicePort{{Port: port, TargetPort: intstr.FromInt32(port)}},
		},
	}

	return encodeMultiDoc(deployment, service)
}

func encodeMultiDoc(objs ...any) ([]byte, error) {
	var buf bytes.Buffer
	for i, o := range objs {
		if i > 0 {
			buf.WriteString("---\n")
		}
		b, err := yaml.Marshal(o)
		if err != nil {
			return nil, fmt.Errorf("placement: encode document %d: %w", i, err)
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}
