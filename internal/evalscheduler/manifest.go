package evalscheduler

import (
	"bytes"
	"encoding/json"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/yaml"

	batchv1 "k8s.io/api/batch/v1"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
)

// configMapMountPath is where the evaluation config is mounted inside
// the benchmark container.
const configMapMountPath = "/app/configs/eval_config.json"

// composeSubmission decodes jobYAML as a single batch/v1 Job and
// mutates it:
//
//   - appends one `env` entry VLLM_MODEL_ENDPOINT to the first container
//   - appends a volumeMount for the config and a matching volume backed
//     by a ConfigMap named {job-name}-eval-config
//
// and returns the combined multi-document YAML (Job first so
// Tracker.Submit's primary-resource selection lands on the Job, not
// the ConfigMap — the Cluster Gateway applies server side, so
// document order doesn't gate the ConfigMap existing before
// the Job mounts it) plus the job's name, for use as the Deployment's
// primary resource name.
func composeSubmission(jobYAML, configJSON []byte, modelEndpoint, jobNameOverride string) ([]byte, string, error) {
	job, err := decodeJob(jobYAML)
	if err != nil {
		return nil, "", core.Wrap(core.KindInvalid, "invalid_job_manifest", "job file did not decode as a batch/v1 Job", err)
	}
	if jobNameOverride != "" {
		job.Name = jobNameOverride
	}
	if job.Name == "" {
		return nil, "", core.NewError(core.KindInvalid, "job_missing_name", "job manifest must set metadata.name")
	}
	if len(job.Spec.Template.Spec.Containers) == 0 {
		return nil, "", core.NewError(core.KindInvalid, "job_missing_container", "job manifest must define at least one container")
	}

	configMapName := job.Name + "-eval-config"
	normalizedConfig, err := normalizeConfigJSON(configJSON)
	if err != nil {
		return nil, "", core.Wrap(core.KindInvalid, "invalid_config", "config file did not decode as JSON", err)
	}

	configMap := &corev1.ConfigMap{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      configMapName,
			Namespace: job.Namespace,
		},
		Data: map[string]string{"eval_config.json": string(normalizedConfig)},
	}

	container := &job.Spec.Template.Spec.Containers[0]
	container.Env = append(container.Env, corev1.EnvVar{
		Name:  "VLLM_MODEL_ENDPOINT",
		Value: modelEndpoint,
	})
	container.VolumeMounts = append(container.VolumeMounts, corev1.VolumeMount{
		Name:      "eval-config",
		MountPath: configMapMountPath,
		SubPath:   "eval_config.json",
	})
	job.Spec.Template.Spec.Volumes = append(job.Spec.Template.Spec.Volumes, corev1.Volume{
		Name: "eval-config",
		VolumeSource: corev1.VolumeSource{
			ConfigMap: &corev1.ConfigMapVolumeSource{
				LocalObjectReference: corev1.LocalObjectReference{Name: configMapName},
			},
		},
	})

	combined, err := encodeMultiDoc(job, configMap)
	if err != nil {
		return nil, "", err
	}
	return combined, job.Name, nil
}

func decodeJob(jobYAML []byte) (*batchv1.Job, error) {
	u := &unstructured.Unstructured{}
	if err := yaml.Unmarshal(jobYAML, &u.Object); err != nil {
		return nil, err
	}
	job := &batchv1.Job{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.Object, job); err != nil {
		return nil, err
	}
	if job.APIVersion == "" {
		job.APIVersion = "batch/v1"
	}
	if job.Kind == "" {
		job.Kind = "Job"
	}
	return job, nil
}

// normalizeConfigJSON decodes content and re-encodes it as canonical
// JSON, so the mounted file is always valid JSON regardless of the
// original file's whitespace.
func normalizeConfigJSON(content []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(content, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func encodeMultiDoc(objs ...any) ([]byte, error) {
	var buf bytes.Buffer
	for i, o := range objs {
		if i > 0 {
			buf.WriteString("---\n")
		}
		b, err := yaml.Marshal(o)
		if err != nil {
			return nil, fmt.Errorf("evalscheduler: encode document %d: %w", i, err)
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}
